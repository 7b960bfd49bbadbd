// Package bridge executes single operations against the Node.js provider
// library, one isolated worker process per invocation.
package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tweetscout/tweetscout/api/types"
)

// Operations the auth manager invokes directly, outside the capability
// registry.
const (
	OpGenerateGuestKey = "generate_guest_key"
	OpValidateApiKey   = "validate_api_key"
)

// Credential is the authentication material forwarded to the worker. Field
// names follow the provider library's configuration object.
type Credential struct {
	ApiKey   string `json:"apiKey,omitempty"`
	GuestKey string `json:"guestKey,omitempty"`
	Proxy    string `json:"proxyUrl,omitempty"`
}

// Request describes one bridged operation. It is created per invocation and
// never persisted.
type Request struct {
	Operation  string         `json:"operation"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Credential Credential     `json:"credential"`

	// Timeout bounds the whole invocation. Zero means the executor default.
	Timeout time.Duration `json:"-"`
}

// WireError is a failure the worker reports through its response, as opposed
// to a process-level failure.
type WireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Response is the single structured object a worker emits before exiting.
type Response struct {
	Ok    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *WireError      `json:"error,omitempty"`
}

// Unmarshal decodes the response data into the supplied value.
func (r *Response) Unmarshal(i any) error {
	return json.Unmarshal(r.Data, i)
}

// UpstreamError converts a failure response into the matching typed error.
// Returns nil for successful responses.
func (r *Response) UpstreamError(op string) error {
	if r.Ok {
		return nil
	}
	kind, message := "unknown", "provider reported failure without detail"
	if r.Error != nil {
		kind, message = r.Error.Kind, r.Error.Message
	}
	return &types.UpstreamError{Operation: types.Capability(op), Kind: kind, Message: message}
}

// Executor runs one bridged operation in an isolated worker process and
// returns its single response. Implementations hold no state shared between
// calls; EnhancedAPI and the auth manager depend on this interface, never on
// process mechanics.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}
