package ports

import (
	"errors"
	"fmt"
	"time"
)

// Provider-independent failure classes. Provider errors match the first
// three through errors.Is.
var (
	// ErrRateLimited indicates the provider throttled the call.
	ErrRateLimited = errors.New("rate limited")
	// ErrServiceUnavailable indicates a provider-side or network outage.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrTimeout indicates the call ran past its deadline.
	ErrTimeout = errors.New("operation timed out")
	// ErrConfigNotFound means an explicitly named config file does not exist.
	ErrConfigNotFound = errors.New("configuration not found")
)

// LLMError wraps a failed candidate call with the model that made it.
// RetryAfter is set when the provider asked for a pause.
type LLMError struct {
	Model      string
	Operation  string
	Err        error
	RetryAfter *time.Duration
}

// Error names the model and operation that failed.
func (e *LLMError) Error() string {
	msg := fmt.Sprintf("LLM error: model=%s, operation=%s, err=%v", e.Model, e.Operation, e.Err)
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(", retry_after=%v", *e.RetryAfter)
	}
	return msg
}

// Unwrap returns the provider error.
func (e *LLMError) Unwrap() error { return e.Err }

// NewLLMError wraps err for the given model and operation.
func NewLLMError(model, operation string, err error) *LLMError {
	return &LLMError{Model: model, Operation: operation, Err: err}
}

// StoreError wraps a failed persistence call. BattleID is zero for
// operations that span battles, such as ListBattles or ClearAll.
// ErrBattleNotFound stays reachable through Unwrap.
type StoreError struct {
	Operation string
	BattleID  int64
	Err       error
}

// Error names the store operation and, when set, the battle id.
func (e *StoreError) Error() string {
	if e.BattleID != 0 {
		return fmt.Sprintf("store error: operation=%s, battle_id=%d, err=%v", e.Operation, e.BattleID, e.Err)
	}
	return fmt.Sprintf("store error: operation=%s, err=%v", e.Operation, e.Err)
}

// Unwrap returns the underlying store error.
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err for the given operation and battle id.
func NewStoreError(operation string, battleID int64, err error) *StoreError {
	return &StoreError{Operation: operation, BattleID: battleID, Err: err}
}

// ConfigError reports a config load or validation failure. The CLI exits
// with a distinct status when it sees one.
type ConfigError struct {
	ConfigKey string
	Err       error
}

// Error names the configuration key that failed.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying load or validation error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err for the given configuration key.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{ConfigKey: key, Err: err}
}
