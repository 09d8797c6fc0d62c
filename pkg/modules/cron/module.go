// Package cron manages crontab entries, tagged with a managed-by marker
// comment so repeated runs update in place.
package cron

import (
	"context"
	"fmt"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type mod struct{}

func (mod) Name() string { return "cron" }

func (mod) Params() module.Params {
	return module.Params{
		"name":    {Kind: module.String, Required: true},
		"job":     {Kind: module.String},
		"minute":  {Kind: module.String, Default: "*"},
		"hour":    {Kind: module.String, Default: "*"},
		"day":     {Kind: module.String, Default: "*"},
		"month":   {Kind: module.String, Default: "*"},
		"weekday": {Kind: module.String, Default: "*"},
		"user":    {Kind: module.String},
		"state":   {Kind: module.String, Default: "present", Enum: []string{"present", "absent"}},
	}
}

func marker(name string) string { return "#Anscraft: " + name }

func entry(args module.Args) string {
	return fmt.Sprintf("%s %s %s %s %s %s",
		args.String("minute"), args.String("hour"), args.String("day"),
		args.String("month"), args.String("weekday"), args.String("job"))
}

func crontabCmd(args module.Args, sub string) string {
	if u := args.String("user"); u != "" {
		return fmt.Sprintf("crontab -u %q %s", u, sub)
	}
	return "crontab " + sub
}

func current(ctx context.Context, c module.Conn, args module.Args) ([]string, error) {
	out, _, exit, err := c.Exec(ctx, crontabCmd(args, "-l"), nil, args.Become())
	if err != nil {
		return nil, err
	}
	if exit != 0 { // no crontab yet
		return nil, nil
	}
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// rewrite returns the desired crontab lines and whether they differ.
func rewrite(lines []string, args module.Args) ([]string, bool, error) {
	name := args.String("name")
	mark := marker(name)
	present := args.String("state") == "present"
	if present && args.String("job") == "" {
		return nil, false, &errs.ParameterValidationError{Module: "cron", Param: "job", Reason: "required when state=present"}
	}

	var out []string
	changed := false
	for i := 0; i < len(lines); i++ {
		if lines[i] != mark {
			out = append(out, lines[i])
			continue
		}
		// marker plus its job line
		old := ""
		if i+1 < len(lines) {
			old = lines[i+1]
			i++
		}
		if !present {
			changed = true
			continue
		}
		if old == entry(args) {
			out = append(out, mark, old)
		} else {
			out = append(out, mark, entry(args))
			changed = true
		}
		present = false // consumed
	}
	if present {
		out = append(out, mark, entry(args))
		changed = true
	}
	return out, changed, nil
}

func (mod) Check(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	lines, err := current(ctx, c, args)
	if err != nil {
		return module.Result{}, err
	}
	_, changed, err := rewrite(lines, args)
	if err != nil {
		return module.Result{}, err
	}
	return module.Result{Changed: changed, Artifacts: map[string]any{"name": args.String("name")}}, nil
}

func (mod) Apply(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	name := args.String("name")
	lines, err := current(ctx, c, args)
	if err != nil {
		return module.Result{}, err
	}
	next, changed, err := rewrite(lines, args)
	if err != nil {
		return module.Result{}, err
	}
	if !changed {
		return module.Result{Msg: "cron entry " + name + " unchanged"}, nil
	}
	body := strings.Join(next, "\n")
	if body != "" {
		body += "\n"
	}
	cmd := fmt.Sprintf("printf %%s %q | %s", body, crontabCmd(args, "-"))
	if _, stderr, exit, err := c.Exec(ctx, cmd, nil, args.Become()); err != nil {
		return module.Result{}, err
	} else if exit != 0 {
		return module.Result{}, fmt.Errorf("crontab install failed (rc=%d): %s", exit, strings.TrimSpace(stderr))
	}
	return module.Result{
		Changed:   true,
		Msg:       "cron entry " + name + " " + args.String("state"),
		Data:      map[string]any{"name": name, "state": args.String("state")},
		Artifacts: map[string]any{"name": name},
	}, nil
}

func init() { module.Register(mod{}) }
