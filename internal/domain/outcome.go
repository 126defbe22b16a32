package domain

// OutcomeKind partitions handler results into the three terminal decisions
// the queue adapter understands.
type OutcomeKind int

const (
	// OutcomeConfirmed acknowledges the job: either the order was confirmed
	// by this attempt or an earlier attempt already settled it.
	OutcomeConfirmed OutcomeKind = iota
	// OutcomeBusinessFailed is a terminal domain failure (insufficient stock,
	// missing reference). Never retried.
	OutcomeBusinessFailed
	// OutcomeTransient is a recoverable failure (contention exhaustion, I/O,
	// payment timeout). The queue retries with backoff.
	OutcomeTransient
)

// Outcome is the tagged result of processing one order job. Using an explicit
// result instead of error-type sniffing keeps the business/transient split
// out of the queue's control flow.
type Outcome struct {
	Kind   OutcomeKind
	Reason string // set for business failures
	Err    error  // set for transient failures
	// Settled marks an acknowledgement of a redelivered job whose order was
	// already terminal; the order may have FAILED, so no status event belongs
	// to this attempt.
	Settled bool
}

func Confirmed() Outcome { return Outcome{Kind: OutcomeConfirmed} }

// AlreadySettled acknowledges a redelivery without claiming the confirmation.
func AlreadySettled() Outcome { return Outcome{Kind: OutcomeConfirmed, Settled: true} }

func BusinessFailed(reason string) Outcome {
	return Outcome{Kind: OutcomeBusinessFailed, Reason: reason}
}

func Transient(err error) Outcome { return Outcome{Kind: OutcomeTransient, Err: err} }
