package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors classify failures; the typed errors below wrap them.
var (
	// ErrNotFound marks a lookup of an identifier that is not in the graph.
	ErrNotFound = errors.New("not found")
	// ErrInvalid marks a mutation that would violate a structural invariant.
	ErrInvalid = errors.New("invalid")
	// ErrUnsupportedVersion marks a document newer than this build understands.
	ErrUnsupportedVersion = errors.New("unsupported document version")
	// ErrCorrupted marks a session whose history could not be replayed; the
	// project must be reloaded from its last persisted state.
	ErrCorrupted = errors.New("session state corrupted")
)

// ValidationError is returned when a requested mutation violates an
// invariant. The graph is left unchanged.
type ValidationError struct {
	Entity EntityType
	ID     string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFound builds a ValidationError wrapping ErrNotFound.
func NotFound(entity EntityType, id string) error {
	return &ValidationError{Entity: entity, ID: id, Reason: "not found", Err: ErrNotFound}
}

// Invalid builds a ValidationError wrapping ErrInvalid.
func Invalid(entity EntityType, id, reason string) error {
	return &ValidationError{Entity: entity, ID: id, Reason: reason, Err: ErrInvalid}
}

// EngineError is a structured failure reported by the numerical engine.
// No result is created and nothing is recorded when it is returned.
type EngineError struct {
	Code    string
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine: %s: %s", e.Code, e.Message)
}

// Common engine failure codes.
const (
	EngineCodeNonConvergence = "non_convergence"
	EngineCodeInvalidSetting = "invalid_settings"
	EngineCodeUnsupported    = "unsupported"
	EngineCodeCancelled      = "cancelled"
)

// PersistenceError wraps a failed save, load or snapshot operation.
type PersistenceError struct {
	Op       string
	Location string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Location, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// MigrationError is returned when a document cannot be brought up to the
// current format version. No partially migrated state is exposed.
type MigrationError struct {
	From int
	To   int
	Err  error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migrate document v%d to v%d: %v", e.From, e.To, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }
