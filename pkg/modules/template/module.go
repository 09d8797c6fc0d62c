// Package template renders a local Go text/template against the host's
// variable environment and uploads the result.
package template

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type mod struct{}

func (mod) Name() string { return "template" }

func (mod) Params() module.Params {
	return module.Params{
		"src":  {Kind: module.String, Required: true},
		"dest": {Kind: module.String, Required: true},
		"mode": {Kind: module.String, Default: "0644"},
	}
}

func renderSrc(args module.Args) ([]byte, error) {
	src := args.String("src")
	if !filepath.IsAbs(src) {
		src = filepath.Join(args.BaseDir(), src)
	}
	raw, err := os.ReadFile(src)
	if err != nil {
		return nil, &errs.ParameterValidationError{Module: "template", Param: "src", Reason: err.Error()}
	}
	tpl, err := template.New(filepath.Base(src)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, args.Vars()); err != nil {
		return nil, fmt.Errorf("render %s: %w", src, err)
	}
	return buf.Bytes(), nil
}

func (mod) Check(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	want, err := renderSrc(args)
	if err != nil {
		return module.Result{}, err
	}
	dest := args.String("dest")
	rc, err := c.Get(ctx, dest)
	if err != nil {
		return module.Result{Changed: true, Artifacts: map[string]any{"dest": dest}}, nil
	}
	defer rc.Close()
	have, _ := io.ReadAll(rc)
	return module.Result{
		Changed:   !bytes.Equal(have, want),
		Artifacts: map[string]any{"dest": dest, "before": sum(have), "after": sum(want)},
	}, nil
}

func (mod) Apply(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	data, err := renderSrc(args)
	if err != nil {
		return module.Result{}, err
	}
	dest := args.String("dest")
	if err := c.Put(ctx, bytes.NewReader(data), dest, parseMode(args.String("mode"))); err != nil {
		return module.Result{}, err
	}
	return module.Result{
		Changed:   true,
		Msg:       "templated " + dest,
		Data:      map[string]any{"dest": dest, "checksum": sum(data)},
		Artifacts: map[string]any{"dest": dest, "checksum": sum(data)},
	}, nil
}

func sum(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

func parseMode(s string) os.FileMode {
	var m uint32
	if _, err := fmt.Sscanf(s, "%o", &m); err != nil {
		return 0o644
	}
	return os.FileMode(m)
}

func init() { module.Register(mod{}) }
