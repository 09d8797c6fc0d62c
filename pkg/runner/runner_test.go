package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsantiago113/AnsibleCraft/pkg/config"
	"github.com/vsantiago113/AnsibleCraft/pkg/conn"
	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
	"github.com/vsantiago113/AnsibleCraft/pkg/escalate"
	"github.com/vsantiago113/AnsibleCraft/pkg/inventory"
	"github.com/vsantiago113/AnsibleCraft/pkg/play"

	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/command"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/debug"
)

// fakeSession records executed commands and answers from a script.
type fakeSession struct {
	host string

	mu       sync.Mutex
	cmds     []string
	fail     map[string]int // command substring -> exit code
	errOn    string         // command substring -> transport error
	cancelOn string         // command substring -> cancel the run context
	cancel   context.CancelFunc
	esc      []string // become users, in configuration order
}

func (f *fakeSession) Exec(_ context.Context, cmd string, _ map[string]string, _ bool) (string, string, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	if f.cancelOn != "" && f.cancel != nil && strings.Contains(cmd, f.cancelOn) {
		f.cancel()
	}
	if f.errOn != "" && strings.Contains(cmd, f.errOn) {
		return "", "", 0, &errs.TransportError{Host: f.host, Err: errors.New("connection reset")}
	}
	for sub, rc := range f.fail {
		if strings.Contains(cmd, sub) {
			return "", "boom", rc, nil
		}
	}
	return "out from " + f.host + "\n", "", 0, nil
}

func (f *fakeSession) SetEscalation(c escalate.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.esc = append(f.esc, c.User)
}

func (f *fakeSession) becomeUsers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.esc...)
}
func (f *fakeSession) Put(context.Context, io.Reader, string, os.FileMode) error { return nil }
func (f *fakeSession) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, os.ErrNotExist
}
func (f *fakeSession) Family() string { return "posix" }
func (f *fakeSession) Close() error   { return nil }

func (f *fakeSession) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.cmds...)
}

// recordingPrinter keeps events for assertions.
type recordingPrinter struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPrinter) PlayStart(string, int) {}
func (p *recordingPrinter) Result(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}
func (p *recordingPrinter) PrintRecap(*Recap) {}

func (p *recordingPrinter) byHost(host string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.Host == host {
			out = append(out, e)
		}
	}
	return out
}

func testInventory(t *testing.T) *inventory.Inventory {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.yml")
	require.NoError(t, os.WriteFile(path, []byte(`all:
  children:
    web:
      hosts:
        ubu1:
          ansible_distribution: Ubuntu
        cen1:
          ansible_distribution: CentOS
`), 0o644))
	inv, err := inventory.LoadFromFile(path)
	require.NoError(t, err)
	return inv
}

func newTestRunner(t *testing.T, book play.Playbook) (*Runner, map[string]*fakeSession, *recordingPrinter) {
	t.Helper()
	sessions := map[string]*fakeSession{}
	var mu sync.Mutex
	dial := func(_ context.Context, host string, _ conn.Options) (conn.Session, error) {
		mu.Lock()
		defer mu.Unlock()
		s, ok := sessions[host]
		if !ok {
			s = &fakeSession{host: host}
			sessions[host] = s
		}
		return s, nil
	}
	out := &recordingPrinter{}
	cfg := config.Default()
	cfg.Forks = 2
	return &Runner{
		Cfg:    cfg,
		Inv:    testInventory(t),
		Book:   book,
		Dialer: dial,
		Out:    out,
	}, sessions, out
}

func boolp(b bool) *bool { return &b }

func TestGuardSkipsPerHost(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Name:        "guarded",
		Hosts:       "web",
		GatherFacts: boolp(false),
		Tasks: []play.Task{{
			Name:   "ubuntu only",
			Module: "command",
			Args:   map[string]any{"_": "apt-get update"},
			When:   `ansible_distribution == "Ubuntu"`,
		}},
	}}}
	r, sessions, out := newTestRunner(t, book)

	recap, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, recap.ExitCode())

	require.Len(t, out.byHost("ubu1"), 1)
	assert.Equal(t, EvChanged, out.byHost("ubu1")[0].Status)
	require.Len(t, out.byHost("cen1"), 1)
	assert.Equal(t, EvSkipped, out.byHost("cen1")[0].Status)

	assert.Contains(t, sessions["ubu1"].executed(), "apt-get update")
	// The skipped host never dials at all.
	_, dialed := sessions["cen1"]
	assert.False(t, dialed)
}

func TestGuardUndefinedVariableFailsTask(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts:       "ubu1",
		GatherFacts: boolp(false),
		Tasks: []play.Task{{
			Name:   "bad guard",
			Module: "command",
			Args:   map[string]any{"_": "true"},
			When:   `no_such_var == "x"`,
		}},
	}}}
	r, _, out := newTestRunner(t, book)

	recap, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, recap.ExitCode())
	require.Len(t, out.byHost("ubu1"), 1)
	assert.Equal(t, EvFailed, out.byHost("ubu1")[0].Status)
	assert.Contains(t, out.byHost("ubu1")[0].Msg, "no_such_var")
}

func TestLoopRunsPerItem(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts:       "ubu1",
		GatherFacts: boolp(false),
		Tasks: []play.Task{{
			Name:   "echo each",
			Module: "command",
			Args:   map[string]any{"_": "echo {{.item}}"},
			Loop:   []any{"a", "b", "c"},
		}},
	}}}
	r, sessions, out := newTestRunner(t, book)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"echo a", "echo b", "echo c"}, sessions["ubu1"].executed())
	assert.Len(t, out.byHost("ubu1"), 3)
}

func TestLoopFromListVariable(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts:       "ubu1",
		GatherFacts: boolp(false),
		Vars:        map[string]any{"pkgs": []any{"curl", "jq"}},
		Tasks: []play.Task{{
			Module: "command",
			Args:   map[string]any{"_": "install {{.item}}"},
			Loop:   "{{ pkgs }}",
		}},
	}}}
	r, sessions, _ := newTestRunner(t, book)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"install curl", "install jq"}, sessions["ubu1"].executed())
}

func TestHostFailureIsIsolated(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts:       "web",
		GatherFacts: boolp(false),
		Tasks: []play.Task{
			{Name: "step one", Module: "command", Args: map[string]any{"_": "deploy"}},
			{Name: "step two", Module: "command", Args: map[string]any{"_": "verify"}},
		},
	}}}
	r, sessions, out := newTestRunner(t, book)
	sessions["cen1"] = &fakeSession{host: "cen1", fail: map[string]int{"deploy": 1}}

	recap, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, recap.ExitCode())

	// cen1 fails on step one and never reaches step two.
	cenEvents := out.byHost("cen1")
	require.Len(t, cenEvents, 1)
	assert.Equal(t, EvFailed, cenEvents[0].Status)
	// ubu1 runs both steps to completion.
	assert.Equal(t, []string{"deploy", "verify"}, sessions["ubu1"].executed())

	_, stats := recap.Hosts()
	assert.Equal(t, 1, stats["cen1"].Failed)
	assert.Equal(t, 0, stats["ubu1"].Failed)
	assert.Equal(t, 2, stats["ubu1"].OK)
}

func TestTransportErrorIsUnreachable(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts:       "ubu1",
		GatherFacts: boolp(false),
		Tasks:       []play.Task{{Module: "command", Args: map[string]any{"_": "uptime"}}},
	}}}
	r, sessions, out := newTestRunner(t, book)
	sessions["ubu1"] = &fakeSession{host: "ubu1", errOn: "uptime"}

	recap, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, recap.ExitCode())
	require.Len(t, out.byHost("ubu1"), 1)
	assert.Equal(t, EvUnreachable, out.byHost("ubu1")[0].Status)
	_, stats := recap.Hosts()
	assert.Equal(t, 1, stats["ubu1"].Unreachable)
}

func TestSerialOneIsDeterministic(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts:       "web",
		Serial:      1,
		GatherFacts: boolp(false),
		Tasks: []play.Task{
			{Module: "command", Args: map[string]any{"_": "one"}},
			{Module: "command", Args: map[string]any{"_": "two"}},
		},
	}}}
	r, _, out := newTestRunner(t, book)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	var order []string
	for _, e := range out.events {
		order = append(order, e.Host)
	}
	// Hosts sort by name, and serial=1 finishes one host before the next.
	assert.Equal(t, []string{"cen1", "cen1", "ubu1", "ubu1"}, order)
}

func TestRegisterFeedsLaterTasks(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts:       "ubu1",
		GatherFacts: boolp(false),
		Tasks: []play.Task{
			{Name: "probe", Module: "command", Args: map[string]any{"_": "cat /etc/motd"}, Register: "probe_out"},
			{Name: "use it", Module: "debug", Args: map[string]any{"msg": "saw {{.probe_out.stdout}}"}},
			{Name: "guard on it", Module: "command", Args: map[string]any{"_": "noop"}, When: "probe_out.rc == 0"},
		},
	}}}
	r, _, out := newTestRunner(t, book)

	recap, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, recap.ExitCode())

	events := out.byHost("ubu1")
	require.Len(t, events, 3)
	assert.Contains(t, events[1].Msg, "saw out from ubu1")
	assert.Equal(t, EvChanged, events[2].Status)
}

func TestIgnoreErrorsContinues(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts:       "ubu1",
		GatherFacts: boolp(false),
		Tasks: []play.Task{
			{Name: "flaky", Module: "command", Args: map[string]any{"_": "breaks"}, IgnoreErrors: true},
			{Name: "after", Module: "command", Args: map[string]any{"_": "continues"}},
		},
	}}}
	r, sessions, _ := newTestRunner(t, book)
	sessions["ubu1"] = &fakeSession{host: "ubu1", fail: map[string]int{"breaks": 1}}

	recap, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, sessions["ubu1"].executed(), "continues")
	_, stats := recap.Hosts()
	assert.Equal(t, 1, stats["ubu1"].Failed)
	assert.Equal(t, 1, stats["ubu1"].OK)
}

func TestNotifyRunsHandlersOnceAfterTasks(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts:       "ubu1",
		GatherFacts: boolp(false),
		Tasks: []play.Task{
			{Name: "edit a", Module: "command", Args: map[string]any{"_": "edit one"}, Notify: []string{"restart app"}},
			{Name: "edit b", Module: "command", Args: map[string]any{"_": "edit two"}, Notify: []string{"restart app"}},
		},
		Handlers: []play.Task{
			{Name: "restart app", Module: "command", Args: map[string]any{"_": "systemctl restart app"}},
			{Name: "never notified", Module: "command", Args: map[string]any{"_": "should not run"}},
		},
	}}}
	r, sessions, _ := newTestRunner(t, book)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	cmds := sessions["ubu1"].executed()
	assert.Equal(t, []string{"edit one", "edit two", "systemctl restart app"}, cmds)
}

func TestCheckModeDoesNotApply(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts:       "ubu1",
		GatherFacts: boolp(false),
		Tasks: []play.Task{{
			Module: "command",
			Args:   map[string]any{"_": "dangerous", "creates": "/etc/done"},
		}},
	}}}
	r, sessions, out := newTestRunner(t, book)
	r.Check = true
	sessions["ubu1"] = &fakeSession{host: "ubu1", fail: map[string]int{"test -e": 1}}

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	// Check mode only probes the creates path; the command itself never runs.
	for _, cmd := range sessions["ubu1"].executed() {
		assert.NotEqual(t, "dangerous", cmd)
	}
	require.Len(t, out.byHost("ubu1"), 1)
	assert.Equal(t, EvChanged, out.byHost("ubu1")[0].Status)
}

func TestPreflightRejectsUnknownModule(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts: "web",
		Tasks: []play.Task{{Module: "no_such_module", Args: map[string]any{}}},
	}}}
	r, sessions, _ := newTestRunner(t, book)

	_, err := r.Run(context.Background())
	var mnf *errs.ModuleNotFoundError
	require.ErrorAs(t, err, &mnf)
	assert.Equal(t, "no_such_module", mnf.Name)
	assert.Empty(t, sessions, "preflight failures must not open connections")
}

func TestPreflightRejectsUnknownParameter(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts: "web",
		Tasks: []play.Task{{Module: "command", Args: map[string]any{"_": "x", "bogus": 1}}},
	}}}
	r, _, _ := newTestRunner(t, book)

	_, err := r.Run(context.Background())
	var pve *errs.ParameterValidationError
	require.ErrorAs(t, err, &pve)
	assert.Equal(t, "bogus", pve.Param)
}

func TestUndefinedTemplateVariableFails(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts:       "ubu1",
		GatherFacts: boolp(false),
		Tasks: []play.Task{{
			Module: "command",
			Args:   map[string]any{"_": "echo {{.nope}}"},
		}},
	}}}
	r, _, out := newTestRunner(t, book)

	recap, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, recap.ExitCode())
	require.Len(t, out.byHost("ubu1"), 1)
	assert.Equal(t, EvFailed, out.byHost("ubu1")[0].Status)
}

func TestFailedHostDropsOutOfLaterPlays(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{
		{
			Hosts:       "web",
			GatherFacts: boolp(false),
			Tasks:       []play.Task{{Module: "command", Args: map[string]any{"_": "first"}}},
		},
		{
			Hosts:       "web",
			GatherFacts: boolp(false),
			Tasks:       []play.Task{{Module: "command", Args: map[string]any{"_": "second"}}},
		},
	}}
	r, sessions, _ := newTestRunner(t, book)
	sessions["cen1"] = &fakeSession{host: "cen1", fail: map[string]int{"first": 1}}

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, sessions["ubu1"].executed())
	assert.Equal(t, []string{"first"}, sessions["cen1"].executed())
}

func TestTaskBecomeUserReachesEscalation(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts:       "ubu1",
		GatherFacts: boolp(false),
		BecomeUser:  "admin",
		Tasks: []play.Task{
			{Name: "as play user", Module: "command", Args: map[string]any{"_": "whoami"}, Become: boolp(true)},
			{Name: "as deploy", Module: "command", Args: map[string]any{"_": "id"}, Become: boolp(true), BecomeUser: "deploy"},
		},
	}}}
	r, sessions, _ := newTestRunner(t, book)
	sessions["ubu1"] = &fakeSession{host: "ubu1"}

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	// Each elevated task re-points the session at its own become user.
	assert.Equal(t, []string{"admin", "deploy"}, sessions["ubu1"].becomeUsers())
}

func TestAllTasksSkippedHostCompletes(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts:       "cen1",
		GatherFacts: boolp(false),
		Tasks: []play.Task{{
			Name:   "ubuntu only",
			Module: "command",
			Args:   map[string]any{"_": "apt-get update"},
			When:   `ansible_distribution == "Ubuntu"`,
		}},
	}}}
	r, sessions, _ := newTestRunner(t, book)

	recap, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, recap.ExitCode())
	// Every task guarded away is still a clean finish, not a degraded one.
	assert.Equal(t, StatusCompleted, recap.Status("cen1"))
	_, stats := recap.Hosts()
	assert.Equal(t, 1, stats["cen1"].Skipped)
	_, dialed := sessions["cen1"]
	assert.False(t, dialed)
}

func TestAbortMidRunCountsAsFailure(t *testing.T) {
	book := play.Playbook{Plays: []play.Play{{
		Hosts:       "ubu1",
		GatherFacts: boolp(false),
		Tasks: []play.Task{
			{Name: "first", Module: "command", Args: map[string]any{"_": "one"}},
			{Name: "second", Module: "command", Args: map[string]any{"_": "two"}},
		},
	}}}
	r, sessions, out := newTestRunner(t, book)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sessions["ubu1"] = &fakeSession{host: "ubu1", cancelOn: "one", cancel: cancel}

	recap, err := r.Run(ctx)
	require.NoError(t, err)
	// The in-flight command finishes; the next one never starts, and the
	// interrupted host surfaces in the recap and the exit code.
	assert.Equal(t, []string{"one"}, sessions["ubu1"].executed())
	assert.Equal(t, 2, recap.ExitCode())
	assert.Equal(t, StatusFailed, recap.Status("ubu1"))

	events := out.byHost("ubu1")
	require.Len(t, events, 2)
	assert.Equal(t, EvFailed, events[1].Status)
	assert.Contains(t, events[1].Msg, "aborted")
}

func TestRecapCounters(t *testing.T) {
	r := NewRecap()
	r.Add("h1", EvOK)
	r.Add("h1", EvChanged)
	r.Add("h1", EvSkipped)
	r.Add("h2", EvFailed)
	assert.Equal(t, 2, r.ExitCode())
	names, stats := r.Hosts()
	assert.Equal(t, []string{"h1", "h2"}, names)
	assert.Equal(t, &HostStats{OK: 2, Changed: 1, Skipped: 1}, stats["h1"])
	assert.Equal(t, &HostStats{Failed: 1}, stats["h2"])
}

func TestJSONPrinterEmitsLines(t *testing.T) {
	var sb strings.Builder
	p := NewJSONPrinter(&sb)
	p.PlayStart("deploy", 2)
	p.Result(Event{Host: "h1", Task: "t", Status: EvOK})
	rec := NewRecap()
	rec.Add("h1", EvOK)
	p.PrintRecap(rec)

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"play_start"`)
	assert.Contains(t, lines[1], fmt.Sprintf(`"host":%q`, "h1"))
	assert.Contains(t, lines[2], `"recap"`)
}
