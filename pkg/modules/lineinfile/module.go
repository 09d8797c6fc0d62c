// Package lineinfile ensures a single line is present in (or absent from)
// a remote file, optionally replacing the first line matching a regexp.
package lineinfile

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type mod struct{}

func (mod) Name() string { return "lineinfile" }

func (mod) Params() module.Params {
	return module.Params{
		"path":   {Kind: module.String, Required: true},
		"line":   {Kind: module.String},
		"regexp": {Kind: module.String},
		"state":  {Kind: module.String, Default: "present", Enum: []string{"present", "absent"}},
		"create": {Kind: module.Bool, Default: false},
	}
}

// render computes the desired file content, or ok=false when the file is
// already as wanted.
func render(args module.Args, current string, found bool) (string, bool, error) {
	state := args.String("state")
	line := args.String("line")
	pattern := args.String("regexp")

	if state == "present" && line == "" {
		return "", false, &errs.ParameterValidationError{Module: "lineinfile", Param: "line", Reason: "required when state=present"}
	}
	if state == "absent" && line == "" && pattern == "" {
		return "", false, &errs.ParameterValidationError{Module: "lineinfile", Reason: "state=absent needs line or regexp"}
	}

	var re *regexp.Regexp
	if pattern != "" {
		var err error
		if re, err = regexp.Compile(pattern); err != nil {
			return "", false, &errs.ParameterValidationError{Module: "lineinfile", Param: "regexp", Reason: err.Error()}
		}
	}

	lines := []string{}
	if current != "" {
		lines = strings.Split(strings.TrimRight(current, "\n"), "\n")
	}
	matches := func(l string) bool {
		if re != nil {
			return re.MatchString(l)
		}
		return l == line
	}

	if state == "absent" {
		kept := lines[:0]
		removed := false
		for _, l := range lines {
			if matches(l) {
				removed = true
				continue
			}
			kept = append(kept, l)
		}
		if !removed {
			return "", false, nil
		}
		return join(kept), true, nil
	}

	if re != nil {
		for i, l := range lines {
			if re.MatchString(l) {
				if l == line {
					return "", false, nil
				}
				lines[i] = line
				return join(lines), true, nil
			}
		}
	}
	for _, l := range lines {
		if l == line {
			return "", false, nil
		}
	}
	if !found && !args.Bool("create") {
		return "", false, &errs.ParameterValidationError{Module: "lineinfile", Param: "path", Reason: "file does not exist (set create: true)"}
	}
	lines = append(lines, line)
	return join(lines), true, nil
}

func join(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func read(ctx context.Context, c module.Conn, path string) (string, bool, error) {
	rc, err := c.Get(ctx, path)
	if err != nil {
		return "", false, nil
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func (mod) Check(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	current, found, err := read(ctx, c, args.String("path"))
	if err != nil {
		return module.Result{}, err
	}
	_, changed, err := render(args, current, found)
	if err != nil {
		return module.Result{}, err
	}
	return module.Result{Changed: changed, Artifacts: map[string]any{"path": args.String("path")}}, nil
}

func (mod) Apply(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	path := args.String("path")
	current, found, err := read(ctx, c, path)
	if err != nil {
		return module.Result{}, err
	}
	next, changed, err := render(args, current, found)
	if err != nil {
		return module.Result{}, err
	}
	if !changed {
		return module.Result{Msg: path + " unchanged"}, nil
	}
	if err := c.Put(ctx, bytes.NewReader([]byte(next)), path, 0o644); err != nil {
		return module.Result{}, err
	}
	return module.Result{
		Changed:   true,
		Msg:       "edited " + path,
		Data:      map[string]any{"path": path},
		Artifacts: map[string]any{"path": path},
	}, nil
}

func init() { module.Register(mod{}) }
