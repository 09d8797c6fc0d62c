// Package main is an example plugin pack. Build it with
//
//	go build -buildmode=plugin -o probe.so ./plugins/probe
//
// and drop the .so into $ANSCRAFT_HOME/plugins. The pack contributes one
// module, net.probe, which checks TCP reachability of a port from the
// target host's point of view.
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

// Register is the symbol the plugin loader calls.
func Register() {
	module.Register(probe{})
}

type probe struct{}

func (probe) Name() string      { return "net.probe" }
func (probe) Namespace() string { return "net" }

func (probe) Params() module.Params {
	return module.Params{
		"host":    {Kind: module.String, Required: true},
		"port":    {Kind: module.Int, Required: true},
		"timeout": {Kind: module.Int, Default: 5},
	}
}

func probeCmd(args module.Args) string {
	// bash's /dev/tcp works everywhere sshd does; nc may not be installed.
	return fmt.Sprintf("timeout %d bash -c 'exec 3<>/dev/tcp/%s/%d' 2>&1",
		args.Int("timeout"), args.String("host"), args.Int("port"))
}

func (probe) Check(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	return run(ctx, c, args)
}

func (probe) Apply(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	return run(ctx, c, args)
}

func run(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	target := fmt.Sprintf("%s:%d", args.String("host"), args.Int("port"))
	out, _, exit, err := c.Exec(ctx, probeCmd(args), nil, false)
	if err != nil {
		return module.Result{}, err
	}
	data := map[string]any{"target": target, "reachable": exit == 0}
	if exit != 0 {
		return module.Result{Msg: target + " unreachable", Data: data},
			fmt.Errorf("cannot reach %s: %s", target, strings.TrimSpace(out))
	}
	return module.Result{Msg: target + " reachable", Data: data}, nil
}

// main is unused; plugins are loaded via Register, but the default build
// mode still requires an entry point in a main package.
func main() {}
