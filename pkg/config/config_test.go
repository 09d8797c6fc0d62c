package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
)

func writeCfg(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "anscraft.cfg")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.cfg"))
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadOverrides(t *testing.T) {
	p := writeCfg(t, `
[defaults]
inventory = hosts.ini
forks = 20
remote_user = deploy
timeout = 30
gathering = explicit

[privilege_escalation]
become = true
become_method = su
become_user = admin

[winrm]
port = 5986
use_tls = true
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "hosts.ini", cfg.Inventory)
	assert.Equal(t, 20, cfg.Forks)
	assert.Equal(t, "deploy", cfg.RemoteUser)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "explicit", cfg.Gathering)
	assert.True(t, cfg.Become)
	assert.Equal(t, "su", cfg.BecomeMethod)
	assert.Equal(t, "admin", cfg.BecomeUser)
	assert.Equal(t, 5986, cfg.WinRMPort)
	assert.True(t, cfg.WinRMUseTLS)
}

func TestLoadKeepsBuiltinDefaults(t *testing.T) {
	cfg, err := Load(writeCfg(t, "[defaults]\nforks = 2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Forks)
	assert.Equal(t, "ssh", cfg.Transport)
	assert.Equal(t, "sudo", cfg.BecomeMethod)
	assert.Equal(t, 5*time.Minute, cfg.CommandTimeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	var ce *errs.ConfigError

	_, err := Load(writeCfg(t, "[defaults]\nforks = 0\n"))
	require.ErrorAs(t, err, &ce)

	_, err = Load(writeCfg(t, "[defaults]\ngathering = sometimes\n"))
	require.ErrorAs(t, err, &ce)
}

func TestVaultPasswordFile(t *testing.T) {
	pf := filepath.Join(t.TempDir(), "pass")
	require.NoError(t, os.WriteFile(pf, []byte("sekrit\n"), 0o600))
	cfg := Default()
	cfg.VaultPasswordFile = pf
	got, err := cfg.VaultPassword()
	require.NoError(t, err)
	assert.Equal(t, []byte("sekrit"), got)
}
