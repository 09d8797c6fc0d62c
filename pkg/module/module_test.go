package module

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
)

type stubModule struct{ name string }

func (s stubModule) Name() string { return s.name }
func (s stubModule) Params() Params {
	return Params{
		"path":  {Kind: String, Required: true},
		"state": {Kind: String, Default: "present", Enum: []string{"present", "absent"}},
		"mode":  {Kind: String},
		"force": {Kind: Bool},
		"count": {Kind: Int},
		"env":   {Kind: Map},
		"items": {Kind: List},
	}
}
func (s stubModule) Check(context.Context, Conn, Args) (Result, error) { return Result{}, nil }
func (s stubModule) Apply(context.Context, Conn, Args) (Result, error) { return Result{}, nil }

func TestRegistryLookup(t *testing.T) {
	Register(stubModule{name: "stub_registry"})
	m, err := Get("stub_registry")
	require.NoError(t, err)
	assert.Equal(t, "stub_registry", m.Name())
	assert.Contains(t, Names(), "stub_registry")
}

func TestUnknownModule(t *testing.T) {
	_, err := Get("no_such_module")
	var nf *errs.ModuleNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "no_such_module", nf.Name)
}

func TestValidateArgs(t *testing.T) {
	ps := stubModule{}.Params()

	t.Run("defaults and coercion", func(t *testing.T) {
		args, err := ValidateArgs("stub", ps, map[string]any{
			"path":  "/etc/app",
			"force": true,
			"count": 3,
		})
		require.NoError(t, err)
		assert.Equal(t, "present", args.String("state"))
		assert.True(t, args.Bool("force"))
		assert.Equal(t, 3, args.Int("count"))
	})

	t.Run("unknown parameter", func(t *testing.T) {
		_, err := ValidateArgs("stub", ps, map[string]any{"path": "/x", "paht": "/y"})
		var pe *errs.ParameterValidationError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "paht", pe.Param)
	})

	t.Run("missing required", func(t *testing.T) {
		_, err := ValidateArgs("stub", ps, map[string]any{"state": "absent"})
		var pe *errs.ParameterValidationError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "path", pe.Param)
	})

	t.Run("enum violation", func(t *testing.T) {
		_, err := ValidateArgs("stub", ps, map[string]any{"path": "/x", "state": "sideways"})
		var pe *errs.ParameterValidationError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "state", pe.Param)
	})

	t.Run("kind mismatch", func(t *testing.T) {
		_, err := ValidateArgs("stub", ps, map[string]any{"path": "/x", "force": "yes"})
		var pe *errs.ParameterValidationError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "force", pe.Param)
	})

	t.Run("scalars stringify", func(t *testing.T) {
		args, err := ValidateArgs("stub", ps, map[string]any{"path": "/x", "mode": 644})
		require.NoError(t, err)
		assert.Equal(t, "644", args.String("mode"))
	})
}

func TestArgsContextInjection(t *testing.T) {
	base := Args{"path": "/x"}
	vars := map[string]any{"inventory_hostname": "web1"}
	got := base.WithContext(vars, true, "/plays")
	assert.True(t, got.Become())
	assert.Equal(t, "/plays", got.BaseDir())
	assert.Equal(t, "web1", got.Vars()["inventory_hostname"])
	// Original untouched.
	assert.False(t, base.Become())
}
