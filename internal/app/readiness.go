package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// DBCheck probes the database pool. A nil pool (memory-store mode) reads as
// ready.
func DBCheck(pool Pinger) ReadyCheck {
	return ReadyCheck{Name: "db", Check: func(ctx context.Context) error {
		if pool == nil {
			return nil
		}
		return pool.Ping(ctx)
	}}
}

// RedisCheck probes the queue's Redis.
func RedisCheck(rdb redis.UniversalClient) ReadyCheck {
	return ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
		if rdb == nil {
			return fmt.Errorf("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}}
}

type readyStatus struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	Err  string `json:"error,omitempty"`
}

// ReadyzHandler runs all checks with a short deadline and reports 503 when
// any fails.
func ReadyzHandler(checks []ReadyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		out := make([]readyStatus, 0, len(checks))
		allOK := true
		for _, c := range checks {
			st := readyStatus{Name: c.Name, OK: true}
			if err := c.Check(ctx); err != nil {
				st.OK = false
				st.Err = err.Error()
				allOK = false
			}
			out = append(out, st)
		}
		status := http.StatusOK
		if !allOK {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"checks": out})
	}
}
