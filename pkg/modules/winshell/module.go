// Package winshell runs a PowerShell script block on Windows targets.
package winshell

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
	"github.com/vsantiago113/AnsibleCraft/pkg/module"
	"golang.org/x/text/encoding/unicode"
)

type mod struct{}

func (mod) Name() string { return "win_shell" }

func (mod) Params() module.Params {
	return module.Params{
		module.FreeForm: {Kind: module.String, Required: true},
		"creates":       {Kind: module.String},
		"chdir":         {Kind: module.String},
	}
}

func requireWindows(c module.Conn) error {
	if c.Family() != "windows" {
		return &errs.ParameterValidationError{Module: "win_shell", Reason: "target is not a windows host"}
	}
	return nil
}

// encode wraps a script for powershell -EncodedCommand, which expects
// base64 over UTF-16LE.
func encode(script string) (string, error) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	b, err := enc.Bytes([]byte(script))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (mod) Check(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	if err := requireWindows(c); err != nil {
		return module.Result{}, err
	}
	if creates := args.String("creates"); creates != "" {
		enc, err := encode(fmt.Sprintf("if (Test-Path %q) { exit 0 } else { exit 1 }", creates))
		if err != nil {
			return module.Result{}, err
		}
		_, _, exit, err := c.Exec(ctx, "powershell -NoProfile -EncodedCommand "+enc, nil, false)
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
	if err := requireWindows(c); err != nil {
		return module.Result{}, err
	}
	script := args.String(module.FreeForm)
	if chdir := args.String("chdir"); chdir != "" {
		script = fmt.Sprintf("Set-Location %q; %s", chdir, script)
	}
	enc, err := encode(script)
	if err != nil {
		return module.Result{}, err
	}
	stdout, stderr, exit, err := c.Exec(ctx, "powershell -NoProfile -EncodedCommand "+enc, nil, args.Become())
	if err != nil {
		return module.Result{}, err
	}
	res := module.Result{
		Changed:   true,
		Msg:       strings.TrimSpace(stdout),
		Data:      map[string]any{"stdout": stdout, "stderr": stderr, "rc": exit},
		Artifacts: map[string]any{"cmd": args.String(module.FreeForm), "stdout": stdout, "stderr": stderr, "rc": exit},
	}
	if exit != 0 {
		return res, fmt.Errorf("win_shell failed (rc=%d): %s", exit, strings.TrimSpace(stderr))
	}
	return res, nil
}

func init() { module.Register(mod{}) }
