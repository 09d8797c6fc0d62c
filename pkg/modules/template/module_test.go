package template

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type fakeConn struct {
	files map[string]string
	puts  map[string]string
}

func (f *fakeConn) Exec(context.Context, string, map[string]string, bool) (string, string, int, error) {
	return "", "", 0, nil
}
func (f *fakeConn) Put(_ context.Context, r io.Reader, dst string, _ os.FileMode) error {
	b, _ := io.ReadAll(r)
	if f.puts == nil {
		f.puts = map[string]string{}
	}
	f.puts[dst] = string(b)
	return nil
}
func (f *fakeConn) Get(_ context.Context, path string) (io.ReadCloser, error) {
	s, ok := f.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(s)), nil
}
func (f *fakeConn) Family() string { return "posix" }

func writeTemplate(t *testing.T, body string) (dir, name string) {
	t.Helper()
	dir = t.TempDir()
	name = "motd.tmpl"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	return dir, name
}

func args(dir, src string, vars map[string]any) module.Args {
	a := module.Args{"src": src, "dest": "/etc/motd", "mode": "0644"}
	return a.WithContext(vars, false, dir)
}

func TestApplyRendersVars(t *testing.T) {
	dir, src := writeTemplate(t, "welcome to {{.inventory_hostname}} ({{.env}})\n")
	c := &fakeConn{}
	res, err := mod{}.Apply(context.Background(), c, args(dir, src, map[string]any{
		"inventory_hostname": "web1", "env": "prod",
	}))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "welcome to web1 (prod)\n", c.puts["/etc/motd"])
}

func TestApplyUndefinedVariable(t *testing.T) {
	dir, src := writeTemplate(t, "{{.missing}}\n")
	_, err := mod{}.Apply(context.Background(), &fakeConn{}, args(dir, src, map[string]any{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestCheckUnchanged(t *testing.T) {
	dir, src := writeTemplate(t, "hi {{.name}}\n")
	c := &fakeConn{files: map[string]string{"/etc/motd": "hi bob\n"}}
	res, err := mod{}.Check(context.Background(), c, args(dir, src, map[string]any{"name": "bob"}))
	require.NoError(t, err)
	assert.False(t, res.Changed)

	res, err = mod{}.Check(context.Background(), c, args(dir, src, map[string]any{"name": "alice"}))
	require.NoError(t, err)
	assert.True(t, res.Changed)
}

func TestApplyMissingSource(t *testing.T) {
	_, err := mod{}.Apply(context.Background(), &fakeConn{}, args(t.TempDir(), "nope.tmpl", nil))
	require.Error(t, err)
}
