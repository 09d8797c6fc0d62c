// Package shell runs a command line through bash, so pipes, globs and
// redirections work.
package shell

import (
	"context"
	"fmt"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type mod struct{}

func (mod) Name() string { return "shell" }

func (mod) Params() module.Params {
	return module.Params{
		module.FreeForm: {Kind: module.String, Required: true},
		"creates":       {Kind: module.String},
		"chdir":         {Kind: module.String},
		"env":           {Kind: module.Map},
	}
}

func (mod) Check(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	if creates := args.String("creates"); creates != "" {
		_, _, exit, err := c.Exec(ctx, fmt.Sprintf("test -e %q", creates), nil, false)
		if err != nil {
			return module.Result{}, err
		}
		if exit == 0 {
			return module.Result{Msg: creates + " exists"}, nil
		}
	}
	return module.Result{Changed: true}, nil
}

func (mod) Apply(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	script := args.String(module.FreeForm)
	if chdir := args.String("chdir"); chdir != "" {
		script = fmt.Sprintf("cd %q && { %s; }", chdir, script)
	}
	cmd := fmt.Sprintf("bash -lc %q", script)
	stdout, stderr, exit, err := c.Exec(ctx, cmd, args.StringMap("env"), args.Become())
	if err != nil {
		return module.Result{}, err
	}
	res := module.Result{
		Changed:   true,
		Msg:       strings.TrimSpace(stdout),
		Data:      map[string]any{"stdout": stdout, "stderr": stderr, "rc": exit},
		Artifacts: map[string]any{"cmd": script, "stdout": stdout, "stderr": stderr, "rc": exit},
	}
	if exit != 0 {
		return res, fmt.Errorf("shell command failed (rc=%d): %s", exit, strings.TrimSpace(stderr))
	}
	return res, nil
}

func init() { module.Register(mod{}) }
