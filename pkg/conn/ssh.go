package conn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
	"github.com/vsantiago113/AnsibleCraft/pkg/escalate"
)

// sshSession executes over SSH and transfers files over SFTP.
type sshSession struct {
	host   string
	client *ssh.Client
	sftp   *sftp.Client

	mu  sync.Mutex
	esc escalate.Config
}

// SetEscalation replaces the become identity for subsequent Exec calls.
// The dial options only seed the initial value; a task may narrow it.
func (s *sshSession) SetEscalation(c escalate.Config) {
	s.mu.Lock()
	s.esc = c
	s.mu.Unlock()
}

func (s *sshSession) escalation() escalate.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.esc
}

func dialSSH(ctx context.Context, host string, o Options) (Session, error) {
	var auth []ssh.AuthMethod
	if len(o.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(o.PrivateKey)
		if err != nil {
			return nil, &errs.TransportError{Host: host, Err: fmt.Errorf("parse private key: %w", err)}
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if o.Password != "" {
		auth = append(auth, ssh.Password(o.Password))
	}
	if len(auth) == 0 {
		return nil, &errs.TransportError{Host: host, Err: fmt.Errorf("no authentication method (key or password) available")}
	}
	port := o.Port
	if port == 0 {
		port = 22
	}
	cfg := &ssh.ClientConfig{
		User:            o.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         o.Timeout,
	}
	client, err := ssh.Dial("tcp", net.JoinHostPort(o.Addr, fmt.Sprintf("%d", port)), cfg)
	if err != nil {
		return nil, &errs.TransportError{Host: host, Err: err}
	}
	ftp, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return nil, &errs.TransportError{Host: host, Err: fmt.Errorf("sftp subsystem: %w", err)}
	}
	return &sshSession{host: host, client: client, sftp: ftp, esc: o.Escalation}, nil
}

func (s *sshSession) Family() string { return "posix" }

func (s *sshSession) Exec(ctx context.Context, cmd string, env map[string]string, elevate bool) (string, string, int, error) {
	esc := s.escalation()
	if elevate {
		wrapped, err := esc.Wrap(cmd)
		if err != nil {
			return "", "", -1, err
		}
		cmd = wrapped
	}
	sess, err := s.client.NewSession()
	if err != nil {
		return "", "", -1, &errs.TransportError{Host: s.host, Err: err}
	}
	defer sess.Close()
	// Setenv needs AcceptEnv server-side; inline the assignments instead.
	if len(env) > 0 {
		var sb strings.Builder
		for k, v := range env {
			fmt.Fprintf(&sb, "export %s=%q; ", k, v)
		}
		cmd = sb.String() + cmd
	}
	var stdout, stderr strings.Builder
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	if err := sess.Start(cmd); err != nil {
		return "", "", -1, &errs.TransportError{Host: s.host, Err: err}
	}
	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()
	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return stdout.String(), stderr.String(), -1, ctx.Err()
	case err := <-done:
		exit := 0
		if err != nil {
			var ee *ssh.ExitError
			if errors.As(err, &ee) {
				exit = ee.ExitStatus()
			} else {
				return stdout.String(), stderr.String(), -1, &errs.TransportError{Host: s.host, Err: err}
			}
		}
		if elevate && escalate.Denied(stderr.String(), exit) {
			return stdout.String(), stderr.String(), exit, &errs.EscalationError{
				Method: esc.Method, Reason: strings.TrimSpace(stderr.String()),
			}
		}
		return stdout.String(), stderr.String(), exit, nil
	}
}

func (s *sshSession) Put(ctx context.Context, src io.Reader, dst string, mode os.FileMode) error {
	f, err := s.sftp.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return &errs.TransportError{Host: s.host, Err: err}
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		return &errs.TransportError{Host: s.host, Err: err}
	}
	return s.sftp.Chmod(dst, mode)
}

func (s *sshSession) Get(ctx context.Context, src string) (io.ReadCloser, error) {
	return s.sftp.Open(src)
}

func (s *sshSession) Close() error {
	_ = s.sftp.Close()
	return s.client.Close()
}
