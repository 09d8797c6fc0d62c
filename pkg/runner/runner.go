// Package runner executes playbooks against resolved inventory hosts.
// Hosts proceed through their task list independently, bounded by the
// configured forks; one host's failure never touches another host.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vsantiago113/AnsibleCraft/pkg/config"
	"github.com/vsantiago113/AnsibleCraft/pkg/conn"
	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
	"github.com/vsantiago113/AnsibleCraft/pkg/escalate"
	"github.com/vsantiago113/AnsibleCraft/pkg/eval"
	"github.com/vsantiago113/AnsibleCraft/pkg/facts"
	"github.com/vsantiago113/AnsibleCraft/pkg/inventory"
	"github.com/vsantiago113/AnsibleCraft/pkg/module"
	"github.com/vsantiago113/AnsibleCraft/pkg/play"
)

// Status is a host's position in its per-run lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusGathering Status = "gathering_facts"
	StatusRunning   Status = "running_tasks"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Runner drives one playbook run end to end.
type Runner struct {
	Cfg   *config.Config
	Inv   *inventory.Inventory
	Book  play.Playbook
	Limit string // extra host pattern on top of each play's hosts
	Check bool   // report would-be changes without mutating targets

	// Dialer is swapped in tests; nil means the real transports.
	Dialer    conn.Dialer
	Out       Printer
	Log       *zap.SugaredLogger
	VaultPass []byte
}

// Run executes every play in order. Fatal setup problems (bad playbook,
// unknown module, invalid parameters, unresolvable vars files) return an
// error before any host is contacted; runtime failures are host-scoped
// and land in the recap instead.
func (r *Runner) Run(ctx context.Context) (*Recap, error) {
	if r.Out == nil {
		r.Out = NewTextPrinter(nil, false)
	}
	if r.Log == nil {
		r.Log = zap.NewNop().Sugar()
	}
	if err := r.preflight(); err != nil {
		return nil, err
	}

	recap := NewRecap()
	pool := conn.NewPool(r.Dialer)
	defer pool.CloseAll()

	// Hosts that failed in an earlier play drop out of later ones.
	out := map[string]bool{}

	for pi := range r.Book.Plays {
		pl := &r.Book.Plays[pi]
		if ctx.Err() != nil {
			r.Log.Warnw("run aborted", "play", pl.Name)
			break
		}
		hosts := r.selectHosts(pl)
		r.Out.PlayStart(pl.Name, len(hosts))
		if len(hosts) == 0 {
			r.Log.Warnw("no hosts matched", "play", pl.Name, "pattern", pl.Hosts)
			continue
		}
		fileVars, err := r.loadVarsFiles(pl)
		if err != nil {
			return nil, err
		}

		for _, batch := range batches(hosts, pl.Serial) {
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(r.Cfg.Forks)
			for _, h := range batch {
				if out[h.Name] {
					r.Log.Debugw("host state", "host", h.Name, "play", pl.Name, "state", string(StatusSkipped))
					continue
				}
				h := h
				g.Go(func() error {
					r.runHost(gctx, pool, pl, h, fileVars, recap)
					return nil
				})
			}
			g.Wait() //nolint:errcheck // workers never return errors
		}
		for _, h := range hosts {
			if recap.failed(h.Name) {
				out[h.Name] = true
			}
		}
	}
	r.Out.PrintRecap(recap)
	return recap, nil
}

// preflight validates the whole playbook before any connection is opened:
// every module must exist, every declared parameter name must be known,
// every guard must parse.
func (r *Runner) preflight() error {
	for pi := range r.Book.Plays {
		pl := &r.Book.Plays[pi]
		for _, t := range append(append([]play.Task{}, pl.Tasks...), pl.Handlers...) {
			m, err := module.Get(t.Module)
			if err != nil {
				return err
			}
			ps := m.Params()
			for name := range t.Args {
				if _, ok := ps[name]; !ok {
					return &errs.ParameterValidationError{Module: t.Module, Param: name, Reason: "unknown parameter"}
				}
			}
			if t.When != "" {
				if _, err := eval.Parse(t.When); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (r *Runner) selectHosts(pl *play.Play) []inventory.Host {
	hosts := r.Inv.AllHosts(pl.Hosts)
	if r.Limit == "" {
		return hosts
	}
	allowed := map[string]bool{}
	for _, h := range r.Inv.AllHosts(r.Limit) {
		allowed[h.Name] = true
	}
	kept := hosts[:0]
	for _, h := range hosts {
		if allowed[h.Name] {
			kept = append(kept, h)
		}
	}
	return kept
}

func (r *Runner) loadVarsFiles(pl *play.Play) (map[string]any, error) {
	out := map[string]any{}
	for _, f := range pl.VarsFiles {
		if !filepath.IsAbs(f) {
			f = filepath.Join(r.Book.BaseDir, f)
		}
		vs, err := play.LoadVarsFile(f, r.VaultPass)
		if err != nil {
			return nil, err
		}
		for k, v := range vs {
			out[k] = v
		}
	}
	return out, nil
}

// batches splits hosts into serial-sized groups; serial<=0 is one batch.
func batches(hosts []inventory.Host, serial int) [][]inventory.Host {
	if serial <= 0 || serial >= len(hosts) {
		return [][]inventory.Host{hosts}
	}
	var out [][]inventory.Host
	for len(hosts) > 0 {
		n := serial
		if n > len(hosts) {
			n = len(hosts)
		}
		out = append(out, hosts[:n])
		hosts = hosts[n:]
	}
	return out
}

// hostRun is the per-host mutable state for one play.
type hostRun struct {
	host   inventory.Host
	status Status
	vars   map[string]any
	conn   module.Conn
	notify []string
}

// escalationSetter is implemented by transports whose become identity can
// change between invocations on one cached session.
type escalationSetter interface {
	SetEscalation(escalate.Config)
}

func (hr *hostRun) to(s Status, log *zap.SugaredLogger) {
	hr.status = s
	log.Debugw("host state", "state", string(s))
}

func (r *Runner) runHost(ctx context.Context, pool *conn.Pool, pl *play.Play, h inventory.Host, fileVars map[string]any, recap *Recap) {
	hr := &hostRun{host: h, status: StatusPending, vars: r.baseVars(pl, h, fileVars)}
	log := r.Log.With("host", h.Name, "play", pl.Name)
	defer func() { recap.SetStatus(h.Name, hr.status) }()

	if r.gatherFacts(pl) {
		hr.to(StatusGathering, log)
		log.Debugw("gathering facts")
		c, err := pool.Get(ctx, h.Name, r.connOptions(pl, h))
		if err != nil {
			log.Errorw("host unreachable", "error", err)
			recap.Add(h.Name, EvUnreachable)
			r.Out.Result(Event{Host: h.Name, Task: "gather facts", Status: EvUnreachable, Msg: err.Error()})
			hr.to(StatusFailed, log)
			return
		}
		hr.conn = c
		f, err := facts.Gather(ctx, c)
		if err != nil {
			log.Errorw("fact gathering failed", "error", err)
			recap.Add(h.Name, EvUnreachable)
			r.Out.Result(Event{Host: h.Name, Task: "gather facts", Status: EvUnreachable, Msg: err.Error()})
			hr.to(StatusFailed, log)
			return
		}
		for k, v := range f {
			hr.vars[k] = v
		}
		recap.Add(h.Name, EvOK)
		r.Out.Result(Event{Host: h.Name, Task: "gather facts", Status: EvOK})
	}

	hr.to(StatusRunning, log)
	abort := func(task string) {
		log.Warnw("run aborted", "task", task)
		recap.Add(h.Name, EvFailed)
		r.Out.Result(Event{Host: h.Name, Task: task, Status: EvFailed, Msg: "run aborted"})
		hr.to(StatusFailed, log)
	}
	for ti := range pl.Tasks {
		if ctx.Err() != nil {
			abort(pl.Tasks[ti].Name)
			return
		}
		if !r.runTask(ctx, pool, pl, hr, &pl.Tasks[ti], recap, log) {
			hr.to(StatusFailed, log)
			return
		}
	}

	for hi := range pl.Handlers {
		hd := &pl.Handlers[hi]
		if !contains(hr.notify, hd.Name) {
			continue
		}
		if ctx.Err() != nil {
			abort(hd.Name)
			return
		}
		if !r.runTask(ctx, pool, pl, hr, hd, recap, log) {
			hr.to(StatusFailed, log)
			return
		}
	}
	hr.to(StatusCompleted, log)
}

// runTask executes one task (all loop items) on one host. It reports
// whether the host may continue.
func (r *Runner) runTask(ctx context.Context, pool *conn.Pool, pl *play.Play, hr *hostRun, t *play.Task, recap *Recap, log *zap.SugaredLogger) bool {
	items, looped, err := loopItems(t.Loop, hr.vars)
	if err != nil {
		recap.Add(hr.host.Name, EvFailed)
		r.Out.Result(Event{Host: hr.host.Name, Task: t.Name, Status: EvFailed, Msg: err.Error()})
		return t.IgnoreErrors
	}

	var results []map[string]any
	anyChanged, anyFailed := false, false

	for _, item := range items {
		vars := hr.vars
		if looped {
			vars = cloneVars(hr.vars)
			vars["item"] = item
		}
		ev := r.runOnce(ctx, pool, pl, hr, t, vars, item, log)
		r.Out.Result(ev)
		recap.Add(hr.host.Name, ev.Status)
		anyChanged = anyChanged || ev.Status == EvChanged
		if ev.Status == EvFailed || ev.Status == EvUnreachable {
			anyFailed = true
		}
		results = append(results, ev.registered)
		if anyFailed && !t.IgnoreErrors {
			break
		}
	}

	if t.Register != "" {
		if looped {
			rs := make([]any, len(results))
			for i, m := range results {
				rs[i] = m
			}
			hr.vars[t.Register] = map[string]any{"results": rs, "changed": anyChanged, "failed": anyFailed}
		} else if len(results) > 0 {
			hr.vars[t.Register] = results[len(results)-1]
		}
	}
	if anyChanged {
		for _, n := range t.Notify {
			if !contains(hr.notify, n) {
				hr.notify = append(hr.notify, n)
			}
		}
	}
	if anyFailed && !t.IgnoreErrors {
		return false
	}
	return true
}

// runOnce performs a single module invocation (one loop item).
func (r *Runner) runOnce(ctx context.Context, pool *conn.Pool, pl *play.Play, hr *hostRun, t *play.Task, vars map[string]any, item any, log *zap.SugaredLogger) Event {
	ev := Event{Host: hr.host.Name, Task: t.Name, Item: item}
	fail := func(err error) Event {
		log.Errorw("task failed", "task", t.Name, "error", err)
		ev.Status = EvFailed
		ev.Msg = err.Error()
		ev.registered = map[string]any{"failed": true, "msg": err.Error()}
		var te *errs.TransportError
		if errors.As(err, &te) {
			ev.Status = EvUnreachable
		}
		return ev
	}

	if t.When != "" {
		ok, err := eval.When(t.When, vars)
		if err != nil {
			return fail(err)
		}
		if !ok {
			ev.Status = EvSkipped
			ev.registered = map[string]any{"skipped": true, "changed": false}
			return ev
		}
	}

	m, err := module.Get(t.Module)
	if err != nil {
		return fail(err)
	}
	raw, err := renderArgs(t.Args, vars)
	if err != nil {
		return fail(err)
	}
	args, err := module.ValidateArgs(t.Module, m.Params(), raw)
	if err != nil {
		return fail(err)
	}
	become := r.becomeFor(pl, t, hr.host)
	args = args.WithContext(vars, become, r.Book.BaseDir)

	c := hr.conn
	if c == nil && t.Module != "debug" {
		c, err = pool.Get(ctx, hr.host.Name, r.connOptions(pl, hr.host))
		if err != nil {
			return fail(err)
		}
		hr.conn = c
	}
	if become {
		// The pool hands back one session per host, dialed with the
		// play-level identity; re-point it at this task's become user.
		if es, ok := c.(escalationSetter); ok {
			es.SetEscalation(r.escalationFor(pl, t, hr.host))
		}
	}

	// A run abort lets the in-flight invocation finish; the command
	// timeout still bounds it.
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.Cfg.CommandTimeout)
	defer cancel()

	// Check first; Apply only when a change is predicted. In check mode
	// the prediction is the result.
	res, err := m.Check(mctx, c, args)
	if err != nil {
		return fail(err)
	}
	if res.Changed && !r.Check {
		if res, err = m.Apply(mctx, c, args); err != nil {
			return fail(err)
		}
	}

	ev.Status = EvOK
	if res.Changed {
		ev.Status = EvChanged
	}
	ev.Msg = res.Msg
	reg := map[string]any{"changed": res.Changed, "failed": false, "msg": res.Msg}
	for k, v := range res.Data {
		reg[k] = v
	}
	ev.registered = reg
	log.Debugw("task done", "task", t.Name, "module", t.Module, "changed", res.Changed)
	return ev
}

func (r *Runner) baseVars(pl *play.Play, h inventory.Host, fileVars map[string]any) map[string]any {
	vars := map[string]any{}
	for k, v := range pl.Vars {
		vars[k] = v
	}
	for k, v := range fileVars {
		vars[k] = v
	}
	for k, v := range h.Vars {
		vars[k] = v
	}
	vars["inventory_hostname"] = h.Name
	vars["ansible_check_mode"] = r.Check
	return vars
}

func (r *Runner) gatherFacts(pl *play.Play) bool {
	if pl.GatherFacts != nil {
		return *pl.GatherFacts
	}
	return r.Cfg.Gathering == "implicit"
}

// connOptions assembles transport options from configuration defaults
// overridden by the host's effective variables.
func (r *Runner) connOptions(pl *play.Play, h inventory.Host) conn.Options {
	o := conn.Options{
		Transport: r.Cfg.Transport,
		Addr:      h.Addr,
		Port:      h.Port,
		User:      r.Cfg.RemoteUser,
		Timeout:   r.Cfg.Timeout,
		UseTLS:    r.Cfg.WinRMUseTLS,
		Insecure:  r.Cfg.WinRMInsecure,
		Escalation: escalate.Config{
			Method: r.Cfg.BecomeMethod,
			User:   r.Cfg.BecomeUser,
		},
	}
	if v := varStr(h.Vars, "ansible_connection", "connection"); v != "" {
		o.Transport = v
	}
	if v := varStr(h.Vars, "ansible_user", "user"); v != "" {
		o.User = v
	}
	if v := varStr(h.Vars, "ansible_password", "password"); v != "" {
		o.Password = v
	}
	if v := varStr(h.Vars, "ansible_ssh_private_key_file", "ssh_private_key_file"); v != "" {
		if b, err := readKey(v, r.Inv.BaseDir()); err == nil {
			o.PrivateKey = b
		}
	} else if r.Cfg.PrivateKeyFile != "" {
		if b, err := readKey(r.Cfg.PrivateKeyFile, ""); err == nil {
			o.PrivateKey = b
		}
	}
	if o.Transport == "winrm" && o.Port == 0 {
		o.Port = r.Cfg.WinRMPort
	}
	if v := varStr(h.Vars, "ansible_become_method"); v != "" {
		o.Escalation.Method = v
	}
	if u := becomeUser(pl, h); u != "" {
		o.Escalation.User = u
	}
	if v := varStr(h.Vars, "ansible_become_password"); v != "" {
		o.Escalation.Password = v
	}
	return o
}

func (r *Runner) becomeFor(pl *play.Play, t *play.Task, h inventory.Host) bool {
	if t.Become != nil {
		return *t.Become
	}
	if b, ok := h.Vars["ansible_become"].(bool); ok {
		return b
	}
	if pl.Become {
		return true
	}
	return r.Cfg.Become
}

func becomeUser(pl *play.Play, h inventory.Host) string {
	if v := varStr(h.Vars, "ansible_become_user"); v != "" {
		return v
	}
	return pl.BecomeUser
}

// escalationFor resolves the become identity for one invocation. The
// task's become_user outranks the host variable, which outranks the play
// and configuration defaults.
func (r *Runner) escalationFor(pl *play.Play, t *play.Task, h inventory.Host) escalate.Config {
	ec := escalate.Config{
		Method: r.Cfg.BecomeMethod,
		User:   r.Cfg.BecomeUser,
	}
	if v := varStr(h.Vars, "ansible_become_method"); v != "" {
		ec.Method = v
	}
	if v := varStr(h.Vars, "ansible_become_password"); v != "" {
		ec.Password = v
	}
	if u := becomeUser(pl, h); u != "" {
		ec.User = u
	}
	if t.BecomeUser != "" {
		ec.User = t.BecomeUser
	}
	return ec
}

// renderArgs walks the raw argument tree and expands {{...}} templates in
// every string against the host's variables. A reference to an undefined
// variable is an error, not empty output.
func renderArgs(raw map[string]any, vars map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		rv, err := renderValue(v, vars)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", k, err)
		}
		out[k] = rv
	}
	return out, nil
}

func renderValue(v any, vars map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		return renderString(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, mv := range t {
			rv, err := renderValue(mv, vars)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, lv := range t {
			rv, err := renderValue(lv, vars)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	}
	return v, nil
}

func renderString(s string, vars map[string]any) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	tpl, err := template.New("arg").Option("missingkey=error").Parse(s)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// loopItems expands a task's loop: a list literal, or a string naming a
// list variable ("{{ pkgs }}" or a dotted path). looped is false for
// loop-less tasks, which run exactly once.
func loopItems(loop any, vars map[string]any) (items []any, looped bool, err error) {
	switch l := loop.(type) {
	case nil:
		return []any{nil}, false, nil
	case []any:
		out := make([]any, len(l))
		for i, v := range l {
			if out[i], err = renderValue(v, vars); err != nil {
				return nil, true, err
			}
		}
		return out, true, nil
	case string:
		name := strings.TrimSpace(l)
		name = strings.TrimPrefix(name, "{{")
		name = strings.TrimSuffix(name, "}}")
		name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "."))
		v, ok := lookupVar(vars, name)
		if !ok {
			return nil, true, &errs.GuardError{Expr: l, Reason: "loop variable is not defined"}
		}
		list, ok := v.([]any)
		if !ok {
			return nil, true, &errs.GuardError{Expr: l, Reason: "loop variable is not a list"}
		}
		return list, true, nil
	}
	return nil, true, fmt.Errorf("loop must be a list or a list variable, got %T", loop)
}

func lookupVar(vars map[string]any, path string) (any, bool) {
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

func cloneVars(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		out[k] = v
	}
	return out
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func varStr(vars map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := vars[key]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

func readKey(path, baseDir string) ([]byte, error) {
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	return os.ReadFile(path)
}
