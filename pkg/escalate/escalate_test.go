package escalate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
)

func TestSudoWithoutPassword(t *testing.T) {
	got, err := Config{}.Wrap("systemctl restart nginx")
	require.NoError(t, err)
	assert.Contains(t, got, "sudo -n ")
	assert.Contains(t, got, `"systemctl restart nginx"`)
	assert.NotContains(t, got, "-S")
}

func TestSudoWithPasswordAndUser(t *testing.T) {
	got, err := Config{User: "postgres", Password: "pw"}.Wrap("pg_ctl reload")
	require.NoError(t, err)
	assert.Contains(t, got, "sudo -S -p ''")
	assert.Contains(t, got, `-u "postgres"`)
}

func TestSudoRootUserNeedsNoFlag(t *testing.T) {
	got, err := Config{User: "root"}.Wrap("id")
	require.NoError(t, err)
	assert.NotContains(t, got, "-u ")
}

func TestSuRequiresPassword(t *testing.T) {
	_, err := Config{Method: "su"}.Wrap("id")
	var ee *errs.EscalationError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "su", ee.Method)
}

func TestUnsupportedMethod(t *testing.T) {
	_, err := Config{Method: "doas"}.Wrap("id")
	var ee *errs.EscalationError
	require.ErrorAs(t, err, &ee)
}

func TestDenied(t *testing.T) {
	assert.True(t, Denied("sudo: a password is required\n", 1))
	assert.True(t, Denied("su: Authentication failure\n", 1))
	assert.False(t, Denied("a password is required", 0))
	assert.False(t, Denied("rm: cannot remove '/x': Permission denied\n", 1))
}
