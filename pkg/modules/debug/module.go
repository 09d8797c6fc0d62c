// Package debug prints a message or a variable from the host's variable
// environment. It never touches the target.
package debug

import (
	"context"
	"fmt"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type mod struct{}

func (mod) Name() string { return "debug" }

func (mod) Params() module.Params {
	return module.Params{
		"msg": {Kind: module.String},
		"var": {Kind: module.String},
	}
}

func render(args module.Args) (string, any, error) {
	if name := args.String("var"); name != "" {
		val, ok := lookup(args.Vars(), name)
		if !ok {
			return "", nil, &errs.GuardError{Expr: name, Reason: "variable is not defined"}
		}
		return fmt.Sprintf("%s = %v", name, val), val, nil
	}
	if msg, ok := args["msg"]; ok {
		return msg.(string), msg, nil
	}
	return "Hello world!", "Hello world!", nil
}

func lookup(vars map[string]any, path string) (any, bool) {
	var cur any = vars
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func (mod) Check(_ context.Context, _ module.Conn, args module.Args) (module.Result, error) {
	msg, val, err := render(args)
	if err != nil {
		return module.Result{}, err
	}
	return module.Result{Msg: msg, Data: map[string]any{"msg": val}}, nil
}

func (mod) Apply(_ context.Context, _ module.Conn, args module.Args) (module.Result, error) {
	msg, val, err := render(args)
	if err != nil {
		return module.Result{}, err
	}
	return module.Result{Msg: msg, Data: map[string]any{"msg": val}}, nil
}

func init() { module.Register(mod{}) }
