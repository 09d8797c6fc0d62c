// Package packagex installs and removes OS packages, picking the package
// manager from what the target actually has on PATH.
package packagex

import (
	"context"
	"fmt"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type mod struct{}

func (mod) Name() string { return "package" }

func (mod) Params() module.Params {
	return module.Params{
		"name":  {Kind: module.Any, Required: true},
		"state": {Kind: module.String, Default: "present", Enum: []string{"present", "absent", "latest"}},
	}
}

// names accepts both a single package and a list.
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

// manager describes one package-manager backend.
type manager struct {
	probe   string
	install string
	latest  string
	remove  string
	query   string // echoes nothing / rc!=0 when the package is missing
}

var managers = []manager{
	{
		probe:   "apt-get",
		install: "DEBIAN_FRONTEND=noninteractive apt-get install -y %s",
		latest:  "DEBIAN_FRONTEND=noninteractive apt-get install -y %s",
		remove:  "DEBIAN_FRONTEND=noninteractive apt-get remove -y %s",
		query:   "dpkg-query -W -f '${Status}' %s 2>/dev/null | grep -q 'install ok installed'",
	},
	{
		probe:   "dnf",
		install: "dnf install -y %s",
		latest:  "dnf upgrade -y %s",
		remove:  "dnf remove -y %s",
		query:   "rpm -q %s >/dev/null",
	},
	{
		probe:   "yum",
		install: "yum install -y %s",
		latest:  "yum update -y %s",
		remove:  "yum remove -y %s",
		query:   "rpm -q %s >/dev/null",
	},
	{
		probe:   "apk",
		install: "apk add %s",
		latest:  "apk add --upgrade %s",
		remove:  "apk del %s",
		query:   "apk info -e %s >/dev/null",
	},
}

func detect(ctx context.Context, c module.Conn) (manager, error) {
	for _, m := range managers {
		_, _, exit, err := c.Exec(ctx, "command -v "+m.probe, nil, false)
		if err != nil {
			return manager{}, err
		}
		if exit == 0 {
			return m, nil
		}
	}
	return manager{}, fmt.Errorf("no supported package manager found on target")
}

func installed(ctx context.Context, c module.Conn, m manager, name string) (bool, error) {
	_, _, exit, err := c.Exec(ctx, fmt.Sprintf(m.query, name), nil, false)
	if err != nil {
		return false, err
	}
	return exit == 0, nil
}

func (mod) Check(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	m, err := detect(ctx, c)
	if err != nil {
		return module.Result{}, err
	}
	state := args.String("state")
	if state == "latest" {
		return module.Result{Changed: true}, nil
	}
	want := state == "present"
	var pending []string
	for _, name := range names(args) {
		have, err := installed(ctx, c, m, name)
		if err != nil {
			return module.Result{}, err
		}
		if have != want {
			pending = append(pending, name)
		}
	}
	return module.Result{Changed: len(pending) > 0, Artifacts: map[string]any{"pending": pending}}, nil
}

func (mod) Apply(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	m, err := detect(ctx, c)
	if err != nil {
		return module.Result{}, err
	}
	state := args.String("state")
	pkgs := names(args)
	become := args.Become()

	var todo []string
	if state == "latest" {
		todo = pkgs
	} else {
		want := state == "present"
		for _, name := range pkgs {
			have, err := installed(ctx, c, m, name)
			if err != nil {
				return module.Result{}, err
			}
			if have != want {
				todo = append(todo, name)
			}
		}
	}
	if len(todo) == 0 {
		return module.Result{Msg: "packages already " + state}, nil
	}

	tmpl := m.install
	switch state {
	case "absent":
		tmpl = m.remove
	case "latest":
		tmpl = m.latest
	}
	cmd := fmt.Sprintf(tmpl, strings.Join(todo, " "))
	_, stderr, exit, err := c.Exec(ctx, cmd, nil, become)
	if err != nil {
		return module.Result{}, err
	}
	if exit != 0 {
		return module.Result{}, fmt.Errorf("package %s failed (rc=%d): %s", state, exit, strings.TrimSpace(stderr))
	}
	return module.Result{
		Changed:   true,
		Msg:       fmt.Sprintf("%s: %s", state, strings.Join(todo, ", ")),
		Data:      map[string]any{"packages": todo, "state": state},
		Artifacts: map[string]any{"manager": m.probe, "packages": todo},
	}, nil
}

func init() { module.Register(mod{}) }
