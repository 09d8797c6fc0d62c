// Package file manages paths on the target: plain files, directories and
// their absence, plus mode and ownership.
package file

import (
	"context"
	"fmt"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type mod struct{}

func (mod) Name() string { return "file" }

func (mod) Params() module.Params {
	return module.Params{
		"path":  {Kind: module.String, Required: true},
		"state": {Kind: module.String, Default: "present", Enum: []string{"present", "directory", "absent", "touch"}},
		"mode":  {Kind: module.String},
		"owner": {Kind: module.String},
		"group": {Kind: module.String},
	}
}

func exists(ctx context.Context, c module.Conn, path string) (bool, bool, error) {
	out, _, exit, err := c.Exec(ctx, fmt.Sprintf("if [ -d %q ]; then echo dir; elif [ -e %q ]; then echo file; fi", path, path), nil, false)
	if err != nil {
		return false, false, err
	}
	_ = exit
	switch strings.TrimSpace(out) {
	case "dir":
		return true, true, nil
	case "file":
		return true, false, nil
	}
	return false, false, nil
}

func (mod) Check(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	path := args.String("path")
	there, isDir, err := exists(ctx, c, path)
	if err != nil {
		return module.Result{}, err
	}
	switch args.String("state") {
	case "absent":
		return module.Result{Changed: there, Artifacts: map[string]any{"path": path, "state": "absent"}}, nil
	case "directory":
		return module.Result{Changed: !isDir, Artifacts: map[string]any{"path": path, "state": "directory"}}, nil
	case "touch":
		return module.Result{Changed: true, Artifacts: map[string]any{"path": path, "state": "touch"}}, nil
	default:
		return module.Result{Changed: !there, Artifacts: map[string]any{"path": path, "state": "present"}}, nil
	}
}

func (m mod) Apply(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	path := args.String("path")
	state := args.String("state")
	become := args.Become()

	var cmd string
	switch state {
	case "absent":
		there, _, err := exists(ctx, c, path)
		if err != nil {
			return module.Result{}, err
		}
		if !there {
			return module.Result{Msg: path + " already absent"}, nil
		}
		cmd = fmt.Sprintf("rm -rf %q", path)
	case "directory":
		cmd = fmt.Sprintf("mkdir -p %q", path)
	default: // present, touch
		cmd = fmt.Sprintf("touch %q", path)
	}
	if _, stderr, exit, err := c.Exec(ctx, cmd, nil, become); err != nil {
		return module.Result{}, err
	} else if exit != 0 {
		return module.Result{}, fmt.Errorf("file %s failed (rc=%d): %s", state, exit, strings.TrimSpace(stderr))
	}

	if state != "absent" {
		if err := applyAttrs(ctx, c, args, path, become); err != nil {
			return module.Result{}, err
		}
	}
	return module.Result{
		Changed:   true,
		Msg:       fmt.Sprintf("%s is %s", path, state),
		Data:      map[string]any{"path": path, "state": state},
		Artifacts: map[string]any{"path": path, "state": state},
	}, nil
}

func applyAttrs(ctx context.Context, c module.Conn, args module.Args, path string, become bool) error {
	if mode := args.String("mode"); mode != "" {
		if _, stderr, exit, err := c.Exec(ctx, fmt.Sprintf("chmod %s %q", mode, path), nil, become); err != nil {
			return err
		} else if exit != 0 {
			return fmt.Errorf("chmod failed: %s", strings.TrimSpace(stderr))
		}
	}
	owner, group := args.String("owner"), args.String("group")
	if owner != "" || group != "" {
		spec := owner
		if group != "" {
			spec += ":" + group
		}
		if _, stderr, exit, err := c.Exec(ctx, fmt.Sprintf("chown %s %q", spec, path), nil, become); err != nil {
			return err
		} else if exit != 0 {
			return fmt.Errorf("chown failed: %s", strings.TrimSpace(stderr))
		}
	}
	return nil
}

func init() { module.Register(mod{}) }
