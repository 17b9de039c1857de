package scheduler

import (
	"time"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// FetchAttempt is one outstanding request. Values are never mutated; a retry
// is a new attempt derived with Retry.
type FetchAttempt struct {
	URL        string
	Kind       models.DocumentKind
	RetryCount int
	Priority   int
	NotBefore  time.Time
	seq        uint64
	gen        uint64 // cancel generation at dispatch
}

// Retry derives the next attempt for the same URL.
func (a FetchAttempt) Retry(notBefore time.Time, priorityAdjust int) FetchAttempt {
	next := a
	next.RetryCount++
	next.Priority += priorityAdjust
	next.NotBefore = notBefore
	return next
}

// OutcomeKind is the terminal state of a submitted URL.
type OutcomeKind int

const (
	OutcomeDocument OutcomeKind = iota
	OutcomeExhausted
	OutcomeAbandoned
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDocument:
		return "document"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Outcome is delivered exactly once per submitted URL.
type Outcome struct {
	Kind    OutcomeKind
	Attempt FetchAttempt
	Status  int
	Body    []byte
	Err     error
}

// URL returns the URL of the attempt that produced the outcome.
func (o Outcome) URL() string {
	return o.Attempt.URL
}

// Handler consumes outcomes. It runs on a worker goroutine and may call
// Submit or CancelPending.
type Handler func(Outcome)
