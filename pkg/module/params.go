package module

import (
	"fmt"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
)

// Kind is the accepted YAML shape of a parameter value.
type Kind int

const (
	String Kind = iota
	Bool
	Int
	Map
	List
	Any
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Map:
		return "map"
	case List:
		return "list"
	}
	return "any"
}

// Param describes one accepted parameter. FreeForm is the parameter bound
// when the task gives the module a bare scalar instead of a mapping.
type Param struct {
	Kind     Kind
	Required bool
	Default  any
	Enum     []string
}

// Params is a module's declared parameter schema, keyed by name. The
// FreeForm key holds the scalar form (`shell: uptime`).
type Params map[string]Param

// FreeForm is the args key carrying a task's bare scalar module value.
const FreeForm = "_"

// Keys injected by the executor, never declared by tasks.
const (
	varsKey    = "vars"
	becomeKey  = "_become"
	baseDirKey = "_basedir"
)

// Args is a validated argument mapping as handed to Check/Apply.
type Args map[string]any

func (a Args) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

func (a Args) Int(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func (a Args) List(key string) []any {
	l, _ := a[key].([]any)
	return l
}

func (a Args) StringMap(key string) map[string]string {
	out := map[string]string{}
	m, _ := a[key].(map[string]any)
	for k, v := range m {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// Vars is the per-host variable environment, injected by the executor for
// modules that render content themselves (template, debug).
func (a Args) Vars() map[string]any {
	m, _ := a[varsKey].(map[string]any)
	return m
}

// Become reports the effective elevation request for this invocation.
func (a Args) Become() bool { return a.Bool(becomeKey) }

// BaseDir is the playbook directory, for resolving relative src paths.
func (a Args) BaseDir() string { return a.String(baseDirKey) }

// WithContext returns a copy of args carrying the executor-injected keys.
func (a Args) WithContext(vars map[string]any, become bool, baseDir string) Args {
	out := make(Args, len(a)+3)
	for k, v := range a {
		out[k] = v
	}
	out[varsKey] = vars
	out[becomeKey] = become
	out[baseDirKey] = baseDir
	return out
}

// ValidateArgs checks raw task arguments against a schema: unknown names,
// kind mismatches and enum violations are *errs.ParameterValidationError;
// defaults are filled in. Validation happens before any remote dispatch.
func ValidateArgs(moduleName string, ps Params, raw map[string]any) (Args, error) {
	out := make(Args, len(raw))
	for name, v := range raw {
		switch name {
		case varsKey, becomeKey, baseDirKey:
			continue
		}
		p, ok := ps[name]
		if !ok {
			return nil, &errs.ParameterValidationError{Module: moduleName, Param: name, Reason: "unknown parameter"}
		}
		cv, err := coerce(v, p.Kind)
		if err != nil {
			return nil, &errs.ParameterValidationError{Module: moduleName, Param: name, Reason: err.Error()}
		}
		if len(p.Enum) > 0 {
			s := fmt.Sprintf("%v", cv)
			found := false
			for _, e := range p.Enum {
				if s == e {
					found = true
					break
				}
			}
			if !found {
				return nil, &errs.ParameterValidationError{
					Module: moduleName, Param: name,
					Reason: fmt.Sprintf("value %q not one of %v", s, p.Enum),
				}
			}
		}
		out[name] = cv
	}
	for name, p := range ps {
		if _, ok := out[name]; ok {
			continue
		}
		if p.Required {
			reason := "required parameter missing"
			if name == FreeForm {
				reason = "requires a value"
			}
			return nil, &errs.ParameterValidationError{Module: moduleName, Param: name, Reason: reason}
		}
		if p.Default != nil {
			out[name] = p.Default
		}
	}
	return out, nil
}

func coerce(v any, k Kind) (any, error) {
	switch k {
	case Any:
		return v, nil
	case String:
		switch v.(type) {
		case string, int, int64, float64, bool:
			return fmt.Sprintf("%v", v), nil
		}
		return nil, fmt.Errorf("expected string, got %T", v)
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("expected bool, got %T", v)
	case Int:
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			if n == float64(int(n)) {
				return int(n), nil
			}
		}
		return nil, fmt.Errorf("expected integer, got %T", v)
	case Map:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("expected mapping, got %T", v)
	case List:
		if l, ok := v.([]any); ok {
			return l, nil
		}
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	return v, nil
}
