// Package service drives systemd units: start, stop, restart, reload,
// enable and disable.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type mod struct{}

func (mod) Name() string { return "service" }

func (mod) Params() module.Params {
	return module.Params{
		"name":    {Kind: module.String, Required: true},
		"state":   {Kind: module.String, Enum: []string{"started", "stopped", "restarted", "reloaded"}},
		"enabled": {Kind: module.Bool},
	}
}

func isActive(ctx context.Context, c module.Conn, name string) (bool, error) {
	_, _, exit, err := c.Exec(ctx, fmt.Sprintf("systemctl is-active --quiet %q", name), nil, false)
	if err != nil {
		return false, err
	}
	return exit == 0, nil
}

func isEnabled(ctx context.Context, c module.Conn, name string) (bool, error) {
	_, _, exit, err := c.Exec(ctx, fmt.Sprintf("systemctl is-enabled --quiet %q", name), nil, false)
	if err != nil {
		return false, err
	}
	return exit == 0, nil
}

func (mod) Check(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	name := args.String("name")
	changed := false
	switch args.String("state") {
	case "started":
		active, err := isActive(ctx, c, name)
		if err != nil {
			return module.Result{}, err
		}
		changed = !active
	case "stopped":
		active, err := isActive(ctx, c, name)
		if err != nil {
			return module.Result{}, err
		}
		changed = active
	case "restarted", "reloaded":
		changed = true
	}
	if enabled, ok := args["enabled"]; ok && !changed {
		cur, err := isEnabled(ctx, c, name)
		if err != nil {
			return module.Result{}, err
		}
		changed = cur != enabled.(bool)
	}
	return module.Result{Changed: changed, Artifacts: map[string]any{"unit": name}}, nil
}

func (mod) Apply(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	name := args.String("name")
	become := args.Become()
	changed := false
	var actions []string

	run := func(verb string) error {
		_, stderr, exit, err := c.Exec(ctx, fmt.Sprintf("systemctl %s %q", verb, name), nil, become)
		if err != nil {
			return err
		}
		if exit != 0 {
			return fmt.Errorf("systemctl %s %s failed (rc=%d): %s", verb, name, exit, strings.TrimSpace(stderr))
		}
		actions = append(actions, verb)
		changed = true
		return nil
	}

	switch args.String("state") {
	case "started":
		active, err := isActive(ctx, c, name)
		if err != nil {
			return module.Result{}, err
		}
		if !active {
			if err := run("start"); err != nil {
				return module.Result{}, err
			}
		}
	case "stopped":
		active, err := isActive(ctx, c, name)
		if err != nil {
			return module.Result{}, err
		}
		if active {
			if err := run("stop"); err != nil {
				return module.Result{}, err
			}
		}
	case "restarted":
		if err := run("restart"); err != nil {
			return module.Result{}, err
		}
	case "reloaded":
		if err := run("reload"); err != nil {
			return module.Result{}, err
		}
	}

	if enabled, ok := args["enabled"]; ok {
		want := enabled.(bool)
		cur, err := isEnabled(ctx, c, name)
		if err != nil {
			return module.Result{}, err
		}
		if cur != want {
			verb := "enable"
			if !want {
				verb = "disable"
			}
			if err := run(verb); err != nil {
				return module.Result{}, err
			}
		}
	}

	msg := name + " unchanged"
	if changed {
		msg = name + ": " + strings.Join(actions, ", ")
	}
	return module.Result{
		Changed:   changed,
		Msg:       msg,
		Data:      map[string]any{"name": name, "actions": actions},
		Artifacts: map[string]any{"unit": name, "actions": actions},
	}, nil
}

func init() { module.Register(mod{}) }
