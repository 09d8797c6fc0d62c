// Package copy ships local file content (or inline content) to a remote
// path, comparing checksums so unchanged files are left alone.
package copy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type mod struct{}

func (mod) Name() string { return "copy" }

func (mod) Params() module.Params {
	return module.Params{
		"src":     {Kind: module.String},
		"content": {Kind: module.String},
		"dest":    {Kind: module.String, Required: true},
		"mode":    {Kind: module.String, Default: "0644"},
	}
}

func payload(args module.Args) ([]byte, error) {
	if content, ok := args["content"]; ok {
		return []byte(content.(string)), nil
	}
	src := args.String("src")
	if src == "" {
		return nil, &errs.ParameterValidationError{Module: "copy", Reason: "either src or content is required"}
	}
	if !filepath.IsAbs(src) {
		src = filepath.Join(args.BaseDir(), src)
	}
	return os.ReadFile(src)
}

func (mod) Check(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	want, err := payload(args)
	if err != nil {
		return module.Result{}, err
	}
	dest := args.String("dest")
	rc, err := c.Get(ctx, dest)
	if err != nil {
		return module.Result{Changed: true, Artifacts: map[string]any{"dest": dest, "after": sum(want)}}, nil
	}
	defer rc.Close()
	have, _ := io.ReadAll(rc)
	arts := map[string]any{"dest": dest, "before": sum(have), "after": sum(want)}
	return module.Result{Changed: !bytes.Equal(have, want), Artifacts: arts}, nil
}

func (mod) Apply(ctx context.Context, c module.Conn, args module.Args) (module.Result, error) {
	data, err := payload(args)
	if err != nil {
		return module.Result{}, err
	}
	dest := args.String("dest")
	mode := parseMode(args.String("mode"))
	if err := c.Put(ctx, bytes.NewReader(data), dest, mode); err != nil {
		return module.Result{}, err
	}
	return module.Result{
		Changed:   true,
		Msg:       "copied to " + dest,
		Data:      map[string]any{"dest": dest, "checksum": sum(data)},
		Artifacts: map[string]any{"dest": dest, "mode": mode.String(), "checksum": sum(data)},
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
