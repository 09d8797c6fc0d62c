// Package pip installs Python packages, optionally into a virtualenv
// which is created on demand.
package pip

import (
	"context"
	"fmt"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type mod struct{}

func (mod) Name() string { return "pip" }

func (mod) Params() module.Params {
	return module.Params{
		"name":       {Kind: module.Any, Required: true},
		"state":      {Kind: module.String, Default: "present", Enum: []string{"present", "absent", "latest"}},
		"virtualenv": {Kind: module.String},
		"executable": {Kind: module.String, Default: "pip3"},
	}
}

// names accepts both a single requirement and a list.
func names(args module.Args) []string {
	if l := args.List("name"); l != nil {
		out := make([]string, 0, len(l))
		for _, v := range l {
			out = append(out, fmt.Sprintf("%v", v))
		}
		return out
	}
	return []string{args.String("name")}
}

func pipPath(args module.Args) string {
	if venv := args.String("virtualenv"); venv != "" {
		return venv + "/bin/pip"
	}
	return args.String("executable")
}

func installedSet(ctx context.Context, c module.Conn, pip string) (map[string]bool, error) {
	out, _, exit, err := c.Exec(ctx, pip+" list --format=freeze 2>/dev/null", nil, false)
	if err != nil {
		return nil, err
	}
	set := map[string]bool{}
	if exit != 0 {
		return set, nil
	}
	for _, line := range strings.Split(out, "\n") {
		if name, _, ok := strings.Cut(strings.TrimSpace(line), "=="); ok {
			set[strings.ToLower(name)] = true
		}
	}
	return set, nil
}

// base strips any version specifier from a requirement string.
func base(req string) string {
	i := strings.IndexAny(req, "=<>!~")
	if i < 0 {
		return strings.ToLower(req)
	}
	return strings.ToLower(req[:i])
}

func (mod) Check(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	if args.String("state") == "latest" {
		return module.Result{Changed: true}, nil
	}
	have, err := installedSet(ctx, c, pipPath(args))
	if err != nil {
		return module.Result{}, err
	}
	want := args.String("state") == "present"
	var pending []string
	for _, req := range names(args) {
		if have[base(req)] != want {
			pending = append(pending, req)
		}
	}
	return module.Result{Changed: len(pending) > 0, Artifacts: map[string]any{"pending": pending}}, nil
}

func (mod) Apply(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	state := args.String("state")
	reqs := names(args)
	become := args.Become()
	pip := pipPath(args)

	if venv := args.String("virtualenv"); venv != "" {
		cmd := fmt.Sprintf("test -x %q || python3 -m venv %q", pip, venv)
		if _, stderr, exit, err := c.Exec(ctx, cmd, nil, become); err != nil {
			return module.Result{}, err
		} else if exit != 0 {
			return module.Result{}, fmt.Errorf("virtualenv creation failed (rc=%d): %s", exit, strings.TrimSpace(stderr))
		}
	}

	var todo []string
	if state == "latest" {
		todo = reqs
	} else {
		have, err := installedSet(ctx, c, pip)
		if err != nil {
			return module.Result{}, err
		}
		want := state == "present"
		for _, req := range reqs {
			if have[base(req)] != want {
				todo = append(todo, req)
			}
		}
	}
	if len(todo) == 0 {
		return module.Result{Msg: "pip packages already " + state}, nil
	}

	var cmd string
	switch state {
	case "absent":
		cmd = fmt.Sprintf("%s uninstall -y %s", pip, strings.Join(todo, " "))
	case "latest":
		cmd = fmt.Sprintf("%s install --upgrade %s", pip, strings.Join(todo, " "))
	default:
		cmd = fmt.Sprintf("%s install %s", pip, strings.Join(todo, " "))
	}
	_, stderr, exit, err := c.Exec(ctx, cmd, nil, become)
	if err != nil {
		return module.Result{}, err
	}
	if exit != 0 {
		return module.Result{}, fmt.Errorf("pip %s failed (rc=%d): %s", state, exit, strings.TrimSpace(stderr))
	}
	return module.Result{
		Changed:   true,
		Msg:       fmt.Sprintf("pip %s: %s", state, strings.Join(todo, ", ")),
		Data:      map[string]any{"packages": todo, "state": state},
		Artifacts: map[string]any{"packages": todo},
	}, nil
}

func init() { module.Register(mod{}) }
