// Package conn establishes and pools transport sessions. Two transports
// are provided: SSH (+SFTP) for posix targets and WinRM for Windows
// targets. All dial/auth/timeout failures surface as TransportError and
// are host-scoped, never fatal to the run.
package conn

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
	"github.com/vsantiago113/AnsibleCraft/pkg/escalate"
	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

// Session is a live transport to one host.
type Session interface {
	module.Conn
	io.Closer
}

// Options carries everything needed to reach one host.
type Options struct {
	Transport  string // ssh | winrm
	Addr       string
	Port       int
	User       string
	Password   string
	PrivateKey []byte
	Timeout    time.Duration
	Escalation escalate.Config

	// WinRM only.
	UseTLS   bool
	Insecure bool
}

// Dialer opens a session; substituted in tests.
type Dialer func(ctx context.Context, host string, o Options) (Session, error)

// Dial is the production dialer.
func Dial(ctx context.Context, host string, o Options) (Session, error) {
	switch o.Transport {
	case "", "ssh":
		return dialSSH(ctx, host, o)
	case "winrm":
		return dialWinRM(ctx, host, o)
	default:
		return nil, &errs.TransportError{Host: host, Err: errUnknownTransport(o.Transport)}
	}
}

type errUnknownTransport string

func (e errUnknownTransport) Error() string { return "unknown transport: " + string(e) }

// Pool caches at most one session per host for the duration of a run.
// Workers never share a host, so the mutex only guards the map itself.
type Pool struct {
	dial Dialer

	mu       sync.Mutex
	sessions map[string]Session
}

func NewPool(dial Dialer) *Pool {
	if dial == nil {
		dial = Dial
	}
	return &Pool{dial: dial, sessions: map[string]Session{}}
}

// Get returns the cached session for host, dialing on first use.
func (p *Pool) Get(ctx context.Context, host string, o Options) (module.Conn, error) {
	p.mu.Lock()
	if s, ok := p.sessions[host]; ok {
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	s, err := p.dial(ctx, host, o)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.sessions[host]; ok {
		// Lost a race; keep the first session.
		_ = s.Close()
		return prev, nil
	}
	p.sessions[host] = s
	return s, nil
}

// CloseAll tears down every cached session at run end.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for host, s := range p.sessions {
		_ = s.Close()
		delete(p.sessions, host)
	}
}
