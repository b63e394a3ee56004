// Package registry implements the write-once capability registry keyed by (namespace, command).
package registry

import "context"

// Error codes carried by RegistryError.
const (
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodeLookup        = "LOOKUP_ERROR"
	CodeInvocation    = "INVOCATION_ERROR"
	CodeProtocol      = "PROTOCOL_ERROR"
)

// Variant is the calling convention fixed for a capability at registration time.
type Variant int

const (
	VariantSync Variant = iota
	VariantAsync
)

func (v Variant) String() string {
	if v == VariantAsync {
		return "async"
	}
	return "sync"
}

// Completion is the one-shot handle given to an asynchronous capability.
// The values passed to Complete become the response result verbatim.
type Completion interface {
	Complete(result ...any) error
}

// Capability is a named operation. It is implemented only by SyncFunc and AsyncFunc.
type Capability interface {
	variant() Variant
}

// SyncFunc is a capability that returns its result directly.
type SyncFunc func(ctx context.Context, args Args) (any, error)

// AsyncFunc is a capability that reports its result later through done.
// Its return is not a result; nothing is sent until done is invoked.
type AsyncFunc func(ctx context.Context, args Args, done Completion)

func (SyncFunc) variant() Variant  { return VariantSync }
func (AsyncFunc) variant() Variant { return VariantAsync }

// Entry is a registered capability.
type Entry struct {
	Namespace  string
	Command    string
	Variant    Variant
	Capability Capability
}

// Ref returns the "namespace.command" form of the entry.
func (e *Entry) Ref() string {
	return e.Namespace + "." + e.Command
}

// IsAsync reports whether the entry uses the asynchronous calling convention.
func (e *Entry) IsAsync() bool {
	return e.Variant == VariantAsync
}

// EntryInfo is the serializable view of an Entry.
type EntryInfo struct {
	Namespace string `json:"namespace"`
	Command   string `json:"command"`
	Variant   string `json:"variant"`
}

// HealthOutput holds the result of the health check.
type HealthOutput struct {
	Status       string          `json:"status"`
	Capabilities int             `json:"capabilities"`
	Checks       map[string]bool `json:"checks"`
	Timestamp    string          `json:"timestamp"`
}

// RegistryError is a structured error from the registry.
type RegistryError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *RegistryError) Error() string {
	return e.Code + ": " + e.Message
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(code, message string) *RegistryError {
	return &RegistryError{Code: code, Message: message}
}

// IsCode reports whether err is a *RegistryError with the given code.
func IsCode(err error, code string) bool {
	regErr, ok := err.(*RegistryError)
	return ok && regErr.Code == code
}
