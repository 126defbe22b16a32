package redisq

// Lua scripts keep every multi-key state transition atomic. Keys that embed
// the priority or job id are derived inside the script from the base prefix
// (ARGV[1]); the queue targets a single logical Redis, not a cluster.

// enqueueScript writes the job hash and appends the id to its priority
// class's FIFO list.
// KEYS: jobKey, waitKey, priosKey
// ARGV: id, payload, priority, maxAttempts, enqueuedAtMs
const enqueueScript = `
redis.call("HSET", KEYS[1],
  "id", ARGV[1],
  "payload", ARGV[2],
  "priority", ARGV[3],
  "attempts", 0,
  "max_attempts", ARGV[4],
  "state", "waiting",
  "reason", "",
  "enqueued_at", ARGV[5])
redis.call("RPUSH", KEYS[2], ARGV[1])
redis.call("ZADD", KEYS[3], tonumber(ARGV[3]), ARGV[3])
return 1
`

// fetchScript pops the head of the lowest-numbered priority class, marks the
// job active with a stall deadline and increments its attempt counter.
// KEYS: priosKey, activeKey
// ARGV: base, deadlineMs
const fetchScript = `
local prios = redis.call("ZRANGE", KEYS[1], 0, -1)
for _, p in ipairs(prios) do
  local waitKey = ARGV[1] .. ":wait:" .. p
  local id = redis.call("LPOP", waitKey)
  if id then
    if redis.call("LLEN", waitKey) == 0 then
      redis.call("ZREM", KEYS[1], p)
    end
    local jobKey = ARGV[1] .. ":job:" .. id
    local attempts = redis.call("HINCRBY", jobKey, "attempts", 1)
    redis.call("HSET", jobKey, "state", "active")
    redis.call("ZADD", KEYS[2], tonumber(ARGV[2]), id)
    local vals = redis.call("HMGET", jobKey, "payload", "priority", "max_attempts", "reason")
    return {id, vals[1], vals[2], attempts, vals[3], vals[4]}
  end
end
return false
`

// promoteScript moves due delayed jobs back to their waiting lists.
// KEYS: delayedKey, priosKey
// ARGV: base, nowMs, limit
const promoteScript = `
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[2], "LIMIT", 0, tonumber(ARGV[3]))
for _, id in ipairs(due) do
  redis.call("ZREM", KEYS[1], id)
  local jobKey = ARGV[1] .. ":job:" .. id
  local p = redis.call("HGET", jobKey, "priority")
  if p then
    redis.call("HSET", jobKey, "state", "waiting")
    redis.call("RPUSH", ARGV[1] .. ":wait:" .. p, id)
    redis.call("ZADD", KEYS[2], tonumber(p), p)
  end
end
return #due
`

// retryScript reschedules a transiently failed job with its backoff delay,
// or, when attempts are exhausted, moves it to the failed list and trims
// retention.
// KEYS: activeKey, delayedKey, failedKey
// ARGV: base, id, readyAtMs, reason, keepFailed
const retryScript = `
local jobKey = ARGV[1] .. ":job:" .. ARGV[2]
redis.call("ZREM", KEYS[1], ARGV[2])
redis.call("HSET", jobKey, "reason", ARGV[4])
local attempts = tonumber(redis.call("HGET", jobKey, "attempts") or "0")
local max = tonumber(redis.call("HGET", jobKey, "max_attempts") or "0")
if attempts >= max then
  redis.call("HSET", jobKey, "state", "failed")
  redis.call("LPUSH", KEYS[3], ARGV[2])
  while redis.call("LLEN", KEYS[3]) > tonumber(ARGV[5]) do
    local evicted = redis.call("RPOP", KEYS[3])
    if evicted then redis.call("DEL", ARGV[1] .. ":job:" .. evicted) end
  end
  return "failed"
end
redis.call("HSET", jobKey, "state", "delayed")
redis.call("ZADD", KEYS[2], tonumber(ARGV[3]), ARGV[2])
return "delayed"
`

// completeScript acknowledges a job and trims completed retention.
// KEYS: activeKey, completedKey
// ARGV: base, id, keepCompleted
const completeScript = `
local jobKey = ARGV[1] .. ":job:" .. ARGV[2]
redis.call("ZREM", KEYS[1], ARGV[2])
redis.call("HSET", jobKey, "state", "completed")
redis.call("LPUSH", KEYS[2], ARGV[2])
while redis.call("LLEN", KEYS[2]) > tonumber(ARGV[3]) do
  local evicted = redis.call("RPOP", KEYS[2])
  if evicted then redis.call("DEL", ARGV[1] .. ":job:" .. evicted) end
end
return 1
`

// failScript moves a job terminally failed regardless of remaining attempts
// (the MoveToFailed bypass for business failures).
// KEYS: activeKey, failedKey
// ARGV: base, id, reason, keepFailed
const failScript = `
local jobKey = ARGV[1] .. ":job:" .. ARGV[2]
redis.call("ZREM", KEYS[1], ARGV[2])
redis.call("HSET", jobKey, "state", "failed", "reason", ARGV[3])
redis.call("LPUSH", KEYS[2], ARGV[2])
while redis.call("LLEN", KEYS[2]) > tonumber(ARGV[4]) do
  local evicted = redis.call("RPOP", KEYS[2])
  if evicted then redis.call("DEL", ARGV[1] .. ":job:" .. evicted) end
end
return 1
`

// reclaimScript returns jobs whose stall deadline passed to their waiting
// lists and reports their ids.
// KEYS: activeKey, priosKey
// ARGV: base, nowMs, limit
const reclaimScript = `
local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[2], "LIMIT", 0, tonumber(ARGV[3]))
for _, id in ipairs(expired) do
  redis.call("ZREM", KEYS[1], id)
  local jobKey = ARGV[1] .. ":job:" .. id
  local p = redis.call("HGET", jobKey, "priority")
  if p then
    redis.call("HSET", jobKey, "state", "waiting")
    redis.call("RPUSH", ARGV[1] .. ":wait:" .. p, id)
    redis.call("ZADD", KEYS[2], tonumber(p), p)
  end
end
return expired
`
