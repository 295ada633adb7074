package hangfire

import (
	"time"
)

// Lifecycle state names with secondary indices.
const (
	StateProcessing = "Processing"
	StateSucceeded  = "Succeeded"
	StateFailed     = "Failed"
	StateDeleted    = "Deleted"
)

const dayCounterTTL = 30 * 24 * time.Hour

// ApplyStateContext is what a state handler gets to know about a
// transition.
type ApplyStateContext struct {
	JobID        string
	NewState     State
	OldStateName string
}

// StateHandler maintains a secondary index for one state name. The outer
// scheduler invokes Apply when a job enters the state and Unapply when it
// leaves, composing every registered handler into the state-change
// transaction so the indices update atomically with the job hash. Handlers
// operate exclusively through the supplied transaction.
type StateHandler interface {
	StateName() string
	Apply(ctx *ApplyStateContext, tx *Transaction)
	Unapply(ctx *ApplyStateContext, tx *Transaction)
}

type processingStateHandler struct{}

func (processingStateHandler) StateName() string { return StateProcessing }

func (processingStateHandler) Apply(ctx *ApplyStateContext, tx *Transaction) {
	tx.AddToSetWithScore("processing", ctx.JobID, float64(nowEpochSeconds()))
}

func (processingStateHandler) Unapply(ctx *ApplyStateContext, tx *Transaction) {
	tx.RemoveFromSet("processing", ctx.JobID)
}

type failedStateHandler struct{}

func (failedStateHandler) StateName() string { return StateFailed }

func (failedStateHandler) Apply(ctx *ApplyStateContext, tx *Transaction) {
	tx.AddToSetWithScore("failed", ctx.JobID, float64(nowEpochSeconds()))
}

func (failedStateHandler) Unapply(ctx *ApplyStateContext, tx *Transaction) {
	tx.RemoveFromSet("failed", ctx.JobID)
}

type succeededStateHandler struct {
	listSize int
}

func (succeededStateHandler) StateName() string { return StateSucceeded }

func (h succeededStateHandler) Apply(ctx *ApplyStateContext, tx *Transaction) {
	tx.InsertToList("succeeded", ctx.JobID)
	tx.TrimList("succeeded", 0, h.listSize)
	tx.IncrementCounter("stats:succeeded")
	tx.IncrementCounterWithExpiry("stats:succeeded:"+nowUTC().Format("2006-01-02"), dayCounterTTL)
}

func (succeededStateHandler) Unapply(ctx *ApplyStateContext, tx *Transaction) {
	tx.RemoveFromList("succeeded", ctx.JobID)
	tx.DecrementCounter("stats:succeeded")
}

type deletedStateHandler struct {
	listSize int
}

func (deletedStateHandler) StateName() string { return StateDeleted }

func (h deletedStateHandler) Apply(ctx *ApplyStateContext, tx *Transaction) {
	tx.InsertToList("deleted", ctx.JobID)
	tx.TrimList("deleted", 0, h.listSize)
	tx.IncrementCounter("stats:deleted")
	tx.IncrementCounterWithExpiry("stats:deleted:"+nowUTC().Format("2006-01-02"), dayCounterTTL)
}

func (deletedStateHandler) Unapply(ctx *ApplyStateContext, tx *Transaction) {
	tx.RemoveFromList("deleted", ctx.JobID)
	tx.DecrementCounter("stats:deleted")
}
