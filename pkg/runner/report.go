package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event statuses for individual task results.
const (
	EvOK          = "ok"
	EvChanged     = "changed"
	EvFailed      = "failed"
	EvSkipped     = "skipped"
	EvUnreachable = "unreachable"
)

// Event is one task outcome on one host.
type Event struct {
	Host   string `json:"host"`
	Task   string `json:"task"`
	Status string `json:"status"`
	Msg    string `json:"msg,omitempty"`
	Item   any    `json:"item,omitempty"`

	registered map[string]any
}

// Printer receives run progress. Implementations must be safe for
// concurrent use; hosts report from worker goroutines.
type Printer interface {
	PlayStart(name string, hosts int)
	Result(Event)
	PrintRecap(*Recap)
}

// Recap accumulates per-host counters for the end-of-run summary.
type Recap struct {
	RunID   string
	Started time.Time

	mu     sync.Mutex
	hosts  map[string]*HostStats
	order  []string
	status map[string]Status
}

// HostStats is one host's tallies.
type HostStats struct {
	OK, Changed, Failed, Skipped, Unreachable int
}

func NewRecap() *Recap {
	return &Recap{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		hosts:   map[string]*HostStats{},
		status:  map[string]Status{},
	}
}

// SetStatus records the host's terminal state in its most recent play.
func (r *Recap) SetStatus(host string, s Status) {
	r.mu.Lock()
	r.status[host] = s
	r.mu.Unlock()
}

// Status returns the host's last recorded terminal state; empty if the
// host never started.
func (r *Recap) Status(host string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status[host]
}

func (r *Recap) Add(host, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.hosts[host]
	if !ok {
		s = &HostStats{}
		r.hosts[host] = s
		r.order = append(r.order, host)
	}
	switch status {
	case EvOK:
		s.OK++
	case EvChanged:
		s.OK++
		s.Changed++
	case EvFailed:
		s.Failed++
	case EvSkipped:
		s.Skipped++
	case EvUnreachable:
		s.Unreachable++
	}
}

// Hosts returns stats in first-seen order.
func (r *Recap) Hosts() ([]string, map[string]*HostStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := append([]string{}, r.order...)
	out := make(map[string]*HostStats, len(r.hosts))
	for k, v := range r.hosts {
		cp := *v
		out[k] = &cp
	}
	return names, out
}

func (r *Recap) failed(host string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.hosts[host]
	return ok && (s.Failed > 0 || s.Unreachable > 0)
}

// ExitCode is 0 for a clean run and 2 when any host failed or was
// unreachable.
func (r *Recap) ExitCode() int {
	names, stats := r.Hosts()
	for _, n := range names {
		if s := stats[n]; s.Failed > 0 || s.Unreachable > 0 {
			return 2
		}
	}
	return 0
}

const (
	colReset  = "\033[0m"
	colGreen  = "\033[32m"
	colYellow = "\033[33m"
	colRed    = "\033[31m"
	colCyan   = "\033[36m"
	colBold   = "\033[1m"
)

// TextPrinter writes colored, human-oriented progress lines.
type TextPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func NewTextPrinter(w io.Writer, color bool) *TextPrinter {
	if w == nil {
		w = os.Stdout
	}
	return &TextPrinter{w: w, color: color}
}

func (p *TextPrinter) paint(col, s string) string {
	if !p.color {
		return s
	}
	return col + s + colReset
}

func (p *TextPrinter) PlayStart(name string, hosts int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name == "" {
		name = "unnamed play"
	}
	fmt.Fprintf(p.w, "\n%s [%d hosts]\n", p.paint(colBold, "PLAY: "+name), hosts)
}

func statusColor(status string) string {
	switch status {
	case EvChanged:
		return colYellow
	case EvFailed, EvUnreachable:
		return colRed
	case EvSkipped:
		return colCyan
	}
	return colGreen
}

func (p *TextPrinter) Result(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	task := e.Task
	if task == "" {
		task = "(unnamed task)"
	}
	line := fmt.Sprintf("%s | %s | %s", e.Host, task, p.paint(statusColor(e.Status), e.Status))
	if e.Item != nil {
		line += fmt.Sprintf(" (item=%v)", e.Item)
	}
	if e.Msg != "" {
		line += " : " + e.Msg
	}
	fmt.Fprintln(p.w, line)
}

func (p *TextPrinter) PrintRecap(r *Recap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\n%s\n", p.paint(colBold, "RECAP "+r.RunID))
	names, stats := r.Hosts()
	for _, n := range names {
		s := stats[n]
		col := colGreen
		if s.Failed > 0 || s.Unreachable > 0 {
			col = colRed
		} else if s.Changed > 0 {
			col = colYellow
		}
		fmt.Fprintf(p.w, "%-24s : ok=%d changed=%d failed=%d skipped=%d unreachable=%d\n",
			p.paint(col, n), s.OK, s.Changed, s.Failed, s.Skipped, s.Unreachable)
	}
}

// JSONPrinter emits one JSON object per line, for machine consumption.
type JSONPrinter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONPrinter(w io.Writer) *JSONPrinter {
	if w == nil {
		w = os.Stdout
	}
	return &JSONPrinter{enc: json.NewEncoder(w)}
}

func (p *JSONPrinter) PlayStart(name string, hosts int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enc.Encode(map[string]any{"event": "play_start", "play": name, "hosts": hosts}) //nolint:errcheck
}

func (p *JSONPrinter) Result(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enc.Encode(map[string]any{ //nolint:errcheck
		"event": "task_result", "host": e.Host, "task": e.Task,
		"status": e.Status, "msg": e.Msg, "item": e.Item,
	})
}

func (p *JSONPrinter) PrintRecap(r *Recap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	names, stats := r.Hosts()
	hosts := map[string]any{}
	for _, n := range names {
		s := stats[n]
		hosts[n] = map[string]any{
			"ok": s.OK, "changed": s.Changed, "failed": s.Failed,
			"skipped": s.Skipped, "unreachable": s.Unreachable,
			"state": string(r.Status(n)),
		}
	}
	p.enc.Encode(map[string]any{"event": "recap", "run_id": r.RunID, "hosts": hosts}) //nolint:errcheck
}
