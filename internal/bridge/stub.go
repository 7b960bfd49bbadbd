package bridge

import (
	"context"
	"encoding/json"
	"sync"
)

// Stub is an in-memory Executor for deterministic tests. It records every
// request and delegates to Handler; with no Handler it answers every
// operation with an empty success.
type Stub struct {
	Handler func(req Request) (*Response, error)

	mu    sync.Mutex
	calls []Request
}

func (s *Stub) Execute(_ context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if s.Handler != nil {
		return s.Handler(req)
	}
	return OkResponse(map[string]any{}), nil
}

// Calls returns a copy of every request seen so far.
func (s *Stub) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times the named operation was executed.
func (s *Stub) CallCount(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Operation == operation {
			n++
		}
	}
	return n
}

// Reset clears the recorded requests and the handler.
func (s *Stub) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.Handler = nil
}

// OkResponse builds a successful response carrying the given payload.
func OkResponse(data any) *Response {
	raw, _ := json.Marshal(data)
	return &Response{Ok: true, Data: raw}
}

// FailResponse builds a failure response with the given wire error.
func FailResponse(kind, message string) *Response {
	return &Response{Ok: false, Error: &WireError{Kind: kind, Message: message}}
}

var _ Executor = (*Stub)(nil)
