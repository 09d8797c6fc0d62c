package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
)

func env() map[string]any {
	return map[string]any{
		"ansible_distribution": "Ubuntu",
		"ansible_os_family":    "Debian",
		"port":                 8080,
		"enabled":              true,
		"tags":                 []any{"web", "db"},
		"nested":               map[string]any{"depth": map[string]any{"leaf": "ok"}},
		"empty":                "",
	}
}

func TestWhen(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{``, true},
		{`ansible_distribution == "Ubuntu"`, true},
		{`ansible_distribution == 'CentOS'`, false},
		{`ansible_distribution != 'CentOS'`, true},
		{`not enabled`, false},
		{`port == 8080`, true},
		{`port > 80`, true},
		{`port <= 8080`, true},
		{`port < 80`, false},
		{`enabled and ansible_os_family == "Debian"`, true},
		{`enabled and ansible_os_family == "RedHat"`, false},
		{`ansible_os_family == "RedHat" or port == 8080`, true},
		{`not (enabled and port == 80)`, true},
		{`"web" in tags`, true},
		{`"cache" in tags`, false},
		{`"bun" in ansible_distribution`, true},
		{`nested.depth.leaf == "ok"`, true},
		{`missing is not defined`, true},
		{`missing is defined`, false},
		{`port is defined`, true},
		{`empty`, false},
		{`enabled`, true},
		{`true`, true},
		{`false or enabled`, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := When(tt.expr, env())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUndefinedVariableIsAnError(t *testing.T) {
	var ge *errs.GuardError
	_, err := When(`no_such_var == "x"`, env())
	require.ErrorAs(t, err, &ge)
	assert.Contains(t, ge.Reason, "no_such_var")

	// A dotted path that dead-ends is undefined too.
	_, err = When(`nested.missing.leaf == 1`, env())
	require.ErrorAs(t, err, &ge)
}

func TestShortCircuitSkipsUndefined(t *testing.T) {
	// `and` must not evaluate its right side once the left is false, so a
	// guarded reference behind `is defined` works.
	got, err := When(`missing is defined and missing == "x"`, env())
	require.NoError(t, err)
	assert.False(t, got)
}

func TestParseErrors(t *testing.T) {
	var ge *errs.GuardError
	for _, expr := range []string{
		`port ===`,
		`(enabled`,
		`"unterminated`,
		`port is`,
		`and and`,
		`port == `,
		`port ~ 2`,
	} {
		_, err := Parse(expr)
		require.ErrorAs(t, err, &ge, "expr %q", expr)
	}
}

func TestParseOnlyDoesNotTouchVars(t *testing.T) {
	// Preflight compiles guards without an environment.
	n, err := Parse(`deploy_env == "prod"`)
	require.NoError(t, err)
	require.NotNil(t, n)
}

func TestEvaluationIsDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		got, err := When(`"web" in tags and port >= 1024`, env())
		require.NoError(t, err)
		assert.True(t, got)
	}
}
