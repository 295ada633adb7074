package hangfire

import (
	"encoding/json"
	"time"
)

// InvocationData is the serialized form of a job invocation: a target type,
// a method, the parameter types, and the argument list, all opaque to this
// package. How they were produced is the caller's concern.
type InvocationData struct {
	Type           string
	Method         string
	ParameterTypes string
	Arguments      string
}

// JobData is the result of reading a job record. When the invocation blob is
// unreadable, LoadError carries the reason and Invocation is nil; the read
// itself still succeeds.
type JobData struct {
	Invocation *InvocationData
	State      string
	CreatedAt  time.Time
	LoadError  error
}

// StateData is the current-state snapshot of a job.
type StateData struct {
	Name   string
	Reason string
	Data   map[string]string
}

// State describes a lifecycle state to be applied to a job: its name, an
// optional human-readable reason, and the state's serialized data.
type State struct {
	Name   string
	Reason string
	Data   map[string]string
}

// serializeHistoryEntry flattens a state into the JSON object appended to
// job:<id>:history: State, Reason (only when set), CreatedAt plus the state's
// data fields.
func serializeHistoryEntry(state State, createdAt time.Time) ([]byte, error) {
	entry := make(map[string]string, len(state.Data)+3)
	for k, v := range state.Data {
		entry[k] = v
	}
	entry["State"] = state.Name
	if state.Reason != "" {
		entry["Reason"] = state.Reason
	}
	entry["CreatedAt"] = formatTime(createdAt)
	return json.Marshal(entry)
}

func deserializeHistoryEntry(raw string) (map[string]string, error) {
	var entry map[string]string
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// invocationFromHash rebuilds the invocation blob from a job hash. A record
// without a target type or method is unloadable.
func invocationFromHash(jobID string, fields map[string]string) (*InvocationData, error) {
	inv := &InvocationData{
		Type:           fields["Type"],
		Method:         fields["Method"],
		ParameterTypes: fields["ParameterTypes"],
		Arguments:      fields["Arguments"],
	}
	if inv.Type == "" || inv.Method == "" {
		return nil, &JobLoadError{JobID: jobID, Message: "job hash has no invocation target"}
	}
	return inv, nil
}
