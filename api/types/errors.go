package types

import "fmt"

// AuthErrorKind classifies credential failures.
type AuthErrorKind string

const (
	AuthErrorMissingCredential AuthErrorKind = "missing_credential"
	AuthErrorInvalidCredential AuthErrorKind = "invalid_credential"
)

// AuthError reports a missing or invalid credential for an identity.
type AuthError struct {
	Kind     AuthErrorKind
	Username string
	Message  string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth error (%s) for %s: %s", e.Kind, e.Username, e.Message)
	}
	return fmt.Sprintf("auth error (%s) for %s", e.Kind, e.Username)
}

// BridgeErrorKind classifies failures of the worker process itself, as opposed
// to failures the provider reports through a well-formed response.
type BridgeErrorKind string

const (
	BridgeErrorSpawn             BridgeErrorKind = "spawn_failure"
	BridgeErrorTimeout           BridgeErrorKind = "timeout"
	BridgeErrorAbnormalExit      BridgeErrorKind = "abnormal_exit"
	BridgeErrorMalformedResponse BridgeErrorKind = "malformed_response"
)

// BridgeProcessError reports a worker process failure.
type BridgeProcessError struct {
	Kind    BridgeErrorKind
	Message string
	Err     error
}

func (e *BridgeProcessError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("bridge process error (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("bridge process error (%s)", e.Kind)
}

func (e *BridgeProcessError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth a single retry. Timeouts are
// never retried automatically.
func (e *BridgeProcessError) Retryable() bool {
	return e.Kind == BridgeErrorAbnormalExit || e.Kind == BridgeErrorMalformedResponse
}

// UnsupportedCapabilityError is returned when an operation is unknown or not
// permitted under the caller's current auth mode.
type UnsupportedCapabilityError struct {
	Operation Capability
	Mode      AuthMode
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("operation %q is not supported in %s mode", e.Operation, e.Mode)
}

// UpstreamError is a failure the external provider reported through a
// well-formed bridge response, e.g. rate limiting.
type UpstreamError struct {
	Operation Capability
	Kind      string
	Message   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (%s) during %s: %s", e.Kind, e.Operation, e.Message)
}

// ValidationError reports malformed input parameters, rejected before any
// process is spawned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
