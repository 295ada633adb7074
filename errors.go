package hangfire

import (
	"github.com/pkg/errors"
)

// ErrLockTimeout is returned when a distributed lock could not be acquired
// within its deadline. Watchers treat it as "another instance is handling
// it" and move on.
var ErrLockTimeout = errors.New("hangfire: distributed lock not acquired before timeout")

// ErrTransactionCommitted is returned when Commit is called twice on the
// same write transaction.
var ErrTransactionCommitted = errors.New("hangfire: transaction already committed")

// argumentError reports a null or out-of-range input. It is raised
// synchronously and never retried.
func argumentError(name string) error {
	return errors.Errorf("hangfire: argument %s must not be empty", name)
}

// storageError wraps a Redis transport or protocol failure. The core never
// retries these; the outer scheduler decides.
func storageError(err error, op string) error {
	return errors.Wrap(err, "hangfire: "+op)
}

// JobLoadError reports an invocation blob that cannot be deserialized. It is
// carried on JobData rather than returned, so the fetch loop is not
// interrupted and the caller may surface it in the failed-state history.
type JobLoadError struct {
	JobID   string
	Message string
}

func (e *JobLoadError) Error() string {
	return "hangfire: cannot load job " + e.JobID + ": " + e.Message
}
