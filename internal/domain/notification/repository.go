package notification

import (
	"context"
	"strconv"
)

// Queue is the dispatcher's view of pending webhook jobs.
// Jobs are enqueued by the payment store together with the transition that caused them.
type Queue interface {
	// GetPending returns up to limit pending jobs, oldest first
	GetPending(ctx context.Context, limit int) ([]*Job, error)
	// MarkDelivered removes a job from the pending queue after a successful POST
	MarkDelivered(ctx context.Context, id int64) error
	// RecordAttempt persists the attempt counter and last error of a failed POST
	RecordAttempt(ctx context.Context, job *Job) error
	// MarkFailed removes a job whose retry budget is spent from the pending queue
	MarkFailed(ctx context.Context, id int64) error
}

// ErrJobNotFound indicates a missing notification job
type ErrJobNotFound struct {
	ID int64
}

func (e ErrJobNotFound) Error() string {
	return "notification job not found: " + strconv.FormatInt(e.ID, 10)
}
