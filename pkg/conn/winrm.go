package conn

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/masterzen/winrm"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
)

// winrmSession executes over WinRM. File transfer is done by shipping
// base64 chunks through the shell and decoding remotely; slow, but it
// needs nothing beyond the WinRM service itself.
type winrmSession struct {
	host   string
	client *winrm.Client
}

func dialWinRM(ctx context.Context, host string, o Options) (Session, error) {
	port := o.Port
	if port == 0 {
		port = 5985
		if o.UseTLS {
			port = 5986
		}
	}
	endpoint := winrm.NewEndpoint(o.Addr, port, o.UseTLS, o.Insecure, nil, nil, nil, o.Timeout)
	client, err := winrm.NewClient(endpoint, o.User, o.Password)
	if err != nil {
		return nil, &errs.TransportError{Host: host, Err: err}
	}
	s := &winrmSession{host: host, client: client}
	// NewClient does not touch the network; probe so auth failures surface
	// as host-level transport errors at open time.
	if _, _, _, err := s.Exec(ctx, "cmd /c exit 0", nil, false); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *winrmSession) Family() string { return "windows" }

func (s *winrmSession) Exec(ctx context.Context, cmd string, env map[string]string, elevate bool) (string, string, int, error) {
	if elevate {
		// No sudo analogue exists over this transport; the session user
		// already carries its configured rights.
		return "", "", -1, &errs.EscalationError{Reason: "become is not supported over winrm"}
	}
	if len(env) > 0 {
		var sb strings.Builder
		for k, v := range env {
			fmt.Fprintf(&sb, "set %s=%s&& ", k, v)
		}
		cmd = sb.String() + cmd
	}
	stdout, stderr, exit, err := s.client.RunWithContextWithString(ctx, cmd, "")
	if err != nil {
		return stdout, stderr, -1, &errs.TransportError{Host: s.host, Err: err}
	}
	return stdout, stderr, exit, nil
}

// runPS executes a powershell snippet.
func (s *winrmSession) runPS(ctx context.Context, script string) (string, string, int, error) {
	stdout, stderr, exit, err := s.client.RunWithContextWithString(ctx, winrm.Powershell(script), "")
	if err != nil {
		return stdout, stderr, -1, &errs.TransportError{Host: s.host, Err: err}
	}
	return stdout, stderr, exit, nil
}

const putChunkSize = 6000 // base64 characters per shell round-trip

func (s *winrmSession) Put(ctx context.Context, src io.Reader, dst string, mode os.FileMode) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	tmp := dst + ".b64"
	if _, _, _, err := s.runPS(ctx, fmt.Sprintf(`Set-Content -Path %q -Value $null`, tmp)); err != nil {
		return err
	}
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 0 {
		n := min(len(enc), putChunkSize)
		script := fmt.Sprintf(`Add-Content -Path %q -Value %q`, tmp, enc[:n])
		if _, stderr, exit, err := s.runPS(ctx, script); err != nil {
			return err
		} else if exit != 0 {
			return &errs.TransportError{Host: s.host, Err: fmt.Errorf("upload chunk: %s", strings.TrimSpace(stderr))}
		}
		enc = enc[n:]
	}
	decode := fmt.Sprintf(
		`$b64 = (Get-Content -Path %q -Raw) -replace "\r|\n",""; [System.IO.File]::WriteAllBytes(%q, [Convert]::FromBase64String($b64)); Remove-Item -Path %q`,
		tmp, dst, tmp)
	_, stderr, exit, err := s.runPS(ctx, decode)
	if err != nil {
		return err
	}
	if exit != 0 {
		return &errs.TransportError{Host: s.host, Err: fmt.Errorf("decode upload: %s", strings.TrimSpace(stderr))}
	}
	return nil
}

func (s *winrmSession) Get(ctx context.Context, src string) (io.ReadCloser, error) {
	script := fmt.Sprintf(`[Convert]::ToBase64String([System.IO.File]::ReadAllBytes(%q))`, src)
	stdout, stderr, exit, err := s.runPS(ctx, script)
	if err != nil {
		return nil, err
	}
	if exit != 0 {
		return nil, fmt.Errorf("remote read %s: %s", src, strings.TrimSpace(stderr))
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(stdout))
	if err != nil {
		return nil, fmt.Errorf("remote read %s: %w", src, err)
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (s *winrmSession) Close() error { return nil }
