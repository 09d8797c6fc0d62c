// Package git clones or updates a repository checkout on the target.
package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type mod struct{}

func (mod) Name() string { return "git" }

func (mod) Params() module.Params {
	return module.Params{
		"repo":    {Kind: module.String, Required: true},
		"dest":    {Kind: module.String, Required: true},
		"version": {Kind: module.String, Default: "HEAD"},
		"depth":   {Kind: module.Int},
		"force":   {Kind: module.Bool, Default: false},
	}
}

func head(ctx context.Context, c module.Conn, dest string) (string, bool, error) {
	out, _, exit, err := c.Exec(ctx, fmt.Sprintf("git -C %q rev-parse HEAD 2>/dev/null", dest), nil, false)
	if err != nil {
		return "", false, err
	}
	if exit != 0 {
		return "", false, nil
	}
	return strings.TrimSpace(out), true, nil
}

func (mod) Check(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	dest := args.String("dest")
	before, cloned, err := head(ctx, c, dest)
	if err != nil {
		return module.Result{}, err
	}
	// Without talking to the remote we only know "not cloned yet" for sure.
	return module.Result{
		Changed:   !cloned || args.Bool("force"),
		Artifacts: map[string]any{"dest": dest, "before": before},
	}, nil
}

func (mod) Apply(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	repo := args.String("repo")
	dest := args.String("dest")
	version := args.String("version")
	become := args.Become()

	before, cloned, err := head(ctx, c, dest)
	if err != nil {
		return module.Result{}, err
	}

	run := func(cmd string) error {
		_, stderr, exit, err := c.Exec(ctx, cmd, nil, become)
		if err != nil {
			return err
		}
		if exit != 0 {
			return fmt.Errorf("git failed (rc=%d): %s", exit, strings.TrimSpace(stderr))
		}
		return nil
	}

	if !cloned {
		clone := fmt.Sprintf("git clone %q %q", repo, dest)
		if depth := args.Int("depth"); depth > 0 {
			clone = fmt.Sprintf("git clone --depth %d %q %q", depth, repo, dest)
		}
		if err := run(clone); err != nil {
			return module.Result{}, err
		}
	} else {
		if args.Bool("force") {
			if err := run(fmt.Sprintf("git -C %q reset --hard", dest)); err != nil {
				return module.Result{}, err
			}
		}
		if err := run(fmt.Sprintf("git -C %q fetch --tags origin", dest)); err != nil {
			return module.Result{}, err
		}
	}
	if version != "HEAD" {
		if err := run(fmt.Sprintf("git -C %q checkout -q %q", dest, version)); err != nil {
			return module.Result{}, err
		}
	} else if cloned {
		if err := run(fmt.Sprintf("git -C %q pull --ff-only", dest)); err != nil {
			return module.Result{}, err
		}
	}

	after, _, err := head(ctx, c, dest)
	if err != nil {
		return module.Result{}, err
	}
	return module.Result{
		Changed:   before != after,
		Msg:       fmt.Sprintf("%s at %s", dest, after),
		Data:      map[string]any{"dest": dest, "before": before, "after": after},
		Artifacts: map[string]any{"repo": repo, "dest": dest, "before": before, "after": after},
	}, nil
}

func init() { module.Register(mod{}) }
