package types

import (
	"encoding/json"
	"time"
)

// JobArguments carries the operation-specific parameters of a Job.
type JobArguments map[string]any

// Job is a single invocation against one of the backends. Identity names the
// account the operation runs on behalf of; when empty, the worker picks one.
type Job struct {
	Type      string        `json:"type"`
	Identity  string        `json:"identity,omitempty"`
	Arguments JobArguments  `json:"arguments"`
	UUID      string        `json:"-"`
	Timeout   time.Duration `json:"-"`
}

// JobResult carries the outcome of one invocation. UUID echoes the
// per-invocation id assigned when the job was accepted.
type JobResult struct {
	UUID  string `json:"uuid,omitempty"`
	Error string `json:"error"`
	Data  any    `json:"data"`
}

func (jr JobResult) Success() bool {
	return jr.Error == ""
}

// Unmarshal decodes the result data into the supplied value.
func (jr JobResult) Unmarshal(i any) error {
	dat, err := json.Marshal(jr.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(dat, i)
}

func (ja JobArguments) Unmarshal(i any) error {
	dat, err := json.Marshal(ja)
	if err != nil {
		return err
	}
	return json.Unmarshal(dat, i)
}
