// Package unarchive extracts tar and zip archives already present on the
// target (or uploaded from the controller first).
package unarchive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type mod struct{}

func (mod) Name() string { return "unarchive" }

func (mod) Params() module.Params {
	return module.Params{
		"src":        {Kind: module.String, Required: true},
		"dest":       {Kind: module.String, Required: true},
		"remote_src": {Kind: module.Bool, Default: false},
		"creates":    {Kind: module.String},
	}
}

func extractCmd(src, dest string) (string, error) {
	switch {
	case strings.HasSuffix(src, ".tar"):
		return fmt.Sprintf("tar -xf %q -C %q", src, dest), nil
	case strings.HasSuffix(src, ".tar.gz"), strings.HasSuffix(src, ".tgz"):
		return fmt.Sprintf("tar -xzf %q -C %q", src, dest), nil
	case strings.HasSuffix(src, ".tar.bz2"):
		return fmt.Sprintf("tar -xjf %q -C %q", src, dest), nil
	case strings.HasSuffix(src, ".tar.xz"):
		return fmt.Sprintf("tar -xJf %q -C %q", src, dest), nil
	case strings.HasSuffix(src, ".zip"):
		return fmt.Sprintf("unzip -o -q %q -d %q", src, dest), nil
	}
	return "", &errs.ParameterValidationError{Module: "unarchive", Param: "src", Reason: "unsupported archive type"}
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
	if _, err := extractCmd(args.String("src"), args.String("dest")); err != nil {
		return module.Result{}, err
	}
	return module.Result{Changed: true}, nil
}

func (mod) Apply(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	src := args.String("src")
	dest := args.String("dest")
	become := args.Become()

	if creates := args.String("creates"); creates != "" {
		_, _, exit, err := c.Exec(ctx, fmt.Sprintf("test -e %q", creates), nil, false)
		if err != nil {
			return module.Result{}, err
		}
		if exit == 0 {
			return module.Result{Msg: creates + " exists"}, nil
		}
	}

	remote := src
	if !args.Bool("remote_src") {
		local := src
		if !filepath.IsAbs(local) {
			local = filepath.Join(args.BaseDir(), local)
		}
		f, err := os.Open(local)
		if err != nil {
			return module.Result{}, &errs.ParameterValidationError{Module: "unarchive", Param: "src", Reason: err.Error()}
		}
		defer f.Close()
		remote = "/tmp/anscraft-" + filepath.Base(src)
		if err := c.Put(ctx, f, remote, 0o644); err != nil {
			return module.Result{}, err
		}
		defer c.Exec(ctx, fmt.Sprintf("rm -f %q", remote), nil, false) //nolint:errcheck
	}

	cmd, err := extractCmd(remote, dest)
	if err != nil {
		return module.Result{}, err
	}
	full := fmt.Sprintf("mkdir -p %q && %s", dest, cmd)
	if _, stderr, exit, err := c.Exec(ctx, full, nil, become); err != nil {
		return module.Result{}, err
	} else if exit != 0 {
		return module.Result{}, fmt.Errorf("extract failed (rc=%d): %s", exit, strings.TrimSpace(stderr))
	}
	return module.Result{
		Changed:   true,
		Msg:       "extracted " + src + " to " + dest,
		Data:      map[string]any{"src": src, "dest": dest},
		Artifacts: map[string]any{"src": src, "dest": dest},
	}, nil
}

func init() { module.Register(mod{}) }
