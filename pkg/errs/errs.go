// Package errs defines the error taxonomy shared by the engine.
//
// Config, module-not-found and parameter errors are fatal to a run and are
// raised during preflight, before any remote side effect. Transport, guard
// and escalation errors are host-scoped: they fail the host they occurred
// on without touching sibling hosts.
package errs

import "fmt"

// ConfigError reports malformed inventory, playbook or defaults sources.
type ConfigError struct {
	File string
	Msg  string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("config: %s: %s", e.File, e.Msg)
	}
	return "config: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Configf builds a ConfigError without a source file attached.
func Configf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// ModuleNotFoundError reports a task naming a module no registry entry matches.
type ModuleNotFoundError struct {
	Name string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("unknown module: %s", e.Name)
}

// ParameterValidationError reports a declared module argument rejected by
// the module's parameter schema.
type ParameterValidationError struct {
	Module string
	Param  string
	Reason string
}

func (e *ParameterValidationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Module, e.Reason)
	}
	return fmt.Sprintf("%s: parameter %q: %s", e.Module, e.Param, e.Reason)
}

// TransportError reports a connection-level failure (dial, auth, timeout).
type TransportError struct {
	Host string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Host, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// EscalationError reports a privilege escalation that could not be
// performed, distinct from the wrapped module failing on its own.
type EscalationError struct {
	Method string
	Reason string
}

func (e *EscalationError) Error() string {
	if e.Method == "" {
		return "escalation: " + e.Reason
	}
	return fmt.Sprintf("escalation (%s): %s", e.Method, e.Reason)
}

// GuardError reports a `when` expression that could not be evaluated,
// typically a reference to an undefined variable.
type GuardError struct {
	Expr   string
	Reason string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("when %q: %s", e.Expr, e.Reason)
}
