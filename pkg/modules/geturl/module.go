// Package geturl downloads a URL to a path on the target, fetching with
// whatever downloader the target has (curl, then wget).
package geturl

import (
	"context"
	"fmt"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type mod struct{}

func (mod) Name() string { return "get_url" }

func (mod) Params() module.Params {
	return module.Params{
		"url":      {Kind: module.String, Required: true},
		"dest":     {Kind: module.String, Required: true},
		"mode":     {Kind: module.String},
		"checksum": {Kind: module.String}, // "sha256:<hex>"
		"force":    {Kind: module.Bool, Default: false},
	}
}

func wantSum(args module.Args) (string, error) {
	cs := args.String("checksum")
	if cs == "" {
		return "", nil
	}
	algo, hex, ok := strings.Cut(cs, ":")
	if !ok || algo != "sha256" || hex == "" {
		return "", &errs.ParameterValidationError{Module: "get_url", Param: "checksum", Reason: "expected sha256:<hex>"}
	}
	return hex, nil
}

func destSum(ctx context.Context, c module.Conn, dest string) (string, bool, error) {
	out, _, exit, err := c.Exec(ctx, fmt.Sprintf("sha256sum %q 2>/dev/null | cut -d' ' -f1", dest), nil, false)
	if err != nil {
		return "", false, err
	}
	s := strings.TrimSpace(out)
	if exit != 0 || s == "" {
		return "", false, nil
	}
	return s, true, nil
}

func (mod) Check(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	want, err := wantSum(args)
	if err != nil {
		return module.Result{}, err
	}
	dest := args.String("dest")
	if args.Bool("force") {
		return module.Result{Changed: true, Artifacts: map[string]any{"dest": dest}}, nil
	}
	have, there, err := destSum(ctx, c, dest)
	if err != nil {
		return module.Result{}, err
	}
	changed := !there || (want != "" && have != want)
	return module.Result{Changed: changed, Artifacts: map[string]any{"dest": dest, "checksum": have}}, nil
}

func (mod) Apply(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	url := args.String("url")
	dest := args.String("dest")
	become := args.Become()

	want, err := wantSum(args)
	if err != nil {
		return module.Result{}, err
	}
	if !args.Bool("force") {
		have, there, err := destSum(ctx, c, dest)
		if err != nil {
			return module.Result{}, err
		}
		if there && (want == "" || have == want) {
			return module.Result{Msg: dest + " already downloaded", Data: map[string]any{"dest": dest, "checksum": have}}, nil
		}
	}

	cmd := fmt.Sprintf("if command -v curl >/dev/null; then curl -fsSL -o %q %q; else wget -q -O %q %q; fi", dest, url, dest, url)
	if _, stderr, exit, err := c.Exec(ctx, cmd, nil, become); err != nil {
		return module.Result{}, err
	} else if exit != 0 {
		return module.Result{}, fmt.Errorf("download of %s failed (rc=%d): %s", url, exit, strings.TrimSpace(stderr))
	}

	have, _, err := destSum(ctx, c, dest)
	if err != nil {
		return module.Result{}, err
	}
	if want != "" && have != want {
		return module.Result{}, fmt.Errorf("checksum mismatch for %s: got sha256:%s", dest, have)
	}
	if mode := args.String("mode"); mode != "" {
		if _, stderr, exit, err := c.Exec(ctx, fmt.Sprintf("chmod %s %q", mode, dest), nil, become); err != nil {
			return module.Result{}, err
		} else if exit != 0 {
			return module.Result{}, fmt.Errorf("chmod failed: %s", strings.TrimSpace(stderr))
		}
	}
	return module.Result{
		Changed:   true,
		Msg:       "downloaded " + dest,
		Data:      map[string]any{"dest": dest, "url": url, "checksum": have},
		Artifacts: map[string]any{"dest": dest, "url": url, "checksum": have},
	}, nil
}

func init() { module.Register(mod{}) }
