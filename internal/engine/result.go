package engine

import "time"

// Status is the terminal state of one mining invocation.
type Status int

const (
	// StatusFound means a nonce produced a hash meeting the target.
	StatusFound Status = iota + 1
	// StatusExhausted means the attempt budget ran out without a solution.
	StatusExhausted
	// StatusCancelled means the caller's context ended the search.
	// Cancellation is a normal terminal state, not an error.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusExhausted:
		return "exhausted"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is the immutable outcome of one invocation. Header bytes and hash
// are populated only when Status is StatusFound.
type Result struct {
	Status     Status
	Nonce      uint32
	ExtraNonce uint64
	Header     []byte // 80-byte serialized header of the solution
	Hash       [32]byte
	Attempts   uint64
	Elapsed    time.Duration
}
