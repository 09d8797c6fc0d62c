package lineinfile

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

func TestRenderAppend(t *testing.T) {
	args := module.Args{"line": "PermitRootLogin no", "state": "present"}
	next, changed, err := render(args, "Port 22\n", true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Port 22\nPermitRootLogin no\n", next)
}

func TestRenderAlreadyPresent(t *testing.T) {
	args := module.Args{"line": "Port 22", "state": "present"}
	_, changed, err := render(args, "Port 22\nPermitRootLogin no\n", true)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRenderRegexpReplace(t *testing.T) {
	args := module.Args{"line": "Port 2222", "regexp": "^Port ", "state": "present"}
	next, changed, err := render(args, "Port 22\nPermitRootLogin no\n", true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Port 2222\nPermitRootLogin no\n", next)
}

func TestRenderAbsent(t *testing.T) {
	args := module.Args{"regexp": "^Permit", "state": "absent"}
	next, changed, err := render(args, "Port 22\nPermitRootLogin no\n", true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Port 22\n", next)

	_, changed, err = render(args, "Port 22\n", true)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRenderMissingFileNeedsCreate(t *testing.T) {
	args := module.Args{"line": "hello", "state": "present"}
	_, _, err := render(args, "", false)
	var pve *errs.ParameterValidationError
	require.ErrorAs(t, err, &pve)

	args["create"] = true
	next, changed, err := render(args, "", false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "hello\n", next)
}

type memConn struct {
	files map[string]string
	puts  map[string]string
}

func (m *memConn) Exec(context.Context, string, map[string]string, bool) (string, string, int, error) {
	return "", "", 0, nil
}
func (m *memConn) Put(_ context.Context, r io.Reader, dst string, _ os.FileMode) error {
	b, _ := io.ReadAll(r)
	if m.puts == nil {
		m.puts = map[string]string{}
	}
	m.puts[dst] = string(b)
	return nil
}
func (m *memConn) Get(_ context.Context, path string) (io.ReadCloser, error) {
	s, ok := m.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(s)), nil
}
func (m *memConn) Family() string { return "posix" }

func TestApplyWritesEditedFile(t *testing.T) {
	c := &memConn{files: map[string]string{"/etc/ssh/sshd_config": "Port 22\n"}}
	args := module.Args{
		"path":  "/etc/ssh/sshd_config",
		"line":  "PermitRootLogin no",
		"state": "present",
	}
	res, err := mod{}.Apply(context.Background(), c, args)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "Port 22\nPermitRootLogin no\n", c.puts["/etc/ssh/sshd_config"])
}

func TestApplyUnchangedDoesNotWrite(t *testing.T) {
	c := &memConn{files: map[string]string{"/f": "x\n"}}
	res, err := mod{}.Apply(context.Background(), c, module.Args{"path": "/f", "line": "x", "state": "present"})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, c.puts)
}
