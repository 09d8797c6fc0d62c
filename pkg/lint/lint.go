// Package lint statically validates playbooks and inventories without
// contacting any host. It applies the same preflight rules the executor
// enforces, so a clean lint means the run will not die on setup errors.
package lint

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vsantiago113/AnsibleCraft/pkg/eval"
	"github.com/vsantiago113/AnsibleCraft/pkg/inventory"
	"github.com/vsantiago113/AnsibleCraft/pkg/module"
	"github.com/vsantiago113/AnsibleCraft/pkg/play"
)

// Finding is one problem in one file.
type Finding struct {
	File string
	Msg  string
}

func (f Finding) String() string { return f.File + ": " + f.Msg }

// Run lints path. A directory is walked for *.yml / *.yaml files; a
// single file is linted directly. Exclude patterns match base names.
func Run(path string, excludes []string) ([]Finding, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return lintFile(path), nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if excluded(d.Name(), excludes) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}
		if excluded(filepath.Base(p), excludes) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var out []Finding
	for _, f := range files {
		out = append(out, lintFile(f)...)
	}
	return out, nil
}

func excluded(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// lintFile classifies a YAML document by its root node: a sequence is a
// playbook, a mapping is an inventory or vars file.
func lintFile(path string) []Finding {
	data, err := os.ReadFile(path)
	if err != nil {
		return []Finding{{File: path, Msg: err.Error()}}
	}
	var root any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return []Finding{{File: path, Msg: "invalid YAML: " + err.Error()}}
	}
	switch r := root.(type) {
	case []any:
		return lintPlaybook(path)
	case map[string]any:
		if _, ok := r["all"]; ok {
			return lintInventory(path)
		}
		return nil // vars file; any mapping is fine
	case nil:
		return []Finding{{File: path, Msg: "empty document"}}
	}
	return []Finding{{File: path, Msg: "root must be a play list or a mapping"}}
}

func lintPlaybook(path string) []Finding {
	book, err := play.LoadPlaybook(path)
	if err != nil {
		return []Finding{{File: path, Msg: err.Error()}}
	}
	var out []Finding
	add := func(format string, args ...any) {
		out = append(out, Finding{File: path, Msg: fmt.Sprintf(format, args...)})
	}

	for pi := range book.Plays {
		pl := &book.Plays[pi]
		where := pl.Name
		if where == "" {
			where = fmt.Sprintf("play %d", pi+1)
		}
		if len(pl.Tasks) == 0 && len(pl.Handlers) == 0 {
			add("%s: has no tasks", where)
		}
		handlers := map[string]bool{}
		for _, h := range pl.Handlers {
			if h.Name == "" {
				add("%s: handler without a name can never be notified", where)
				continue
			}
			handlers[h.Name] = true
		}
		for _, t := range append(append([]play.Task{}, pl.Tasks...), pl.Handlers...) {
			lintTask(pl, t, where, add)
		}
		for _, t := range pl.Tasks {
			for _, n := range t.Notify {
				if !handlers[n] {
					add("%s: task %q notifies unknown handler %q", where, t.Name, n)
				}
			}
		}
		for _, vf := range pl.VarsFiles {
			p := vf
			if !filepath.IsAbs(p) {
				p = filepath.Join(book.BaseDir, p)
			}
			if _, err := os.Stat(p); err != nil {
				add("%s: vars file %q not found", where, vf)
			}
		}
	}
	return out
}

func lintTask(pl *play.Play, t play.Task, where string, add func(string, ...any)) {
	label := t.Name
	if label == "" {
		label = t.Module
	}
	m, err := module.Get(t.Module)
	if err != nil {
		add("%s: task %q: %v", where, label, err)
		return
	}
	ps := m.Params()
	for name := range t.Args {
		if _, ok := ps[name]; !ok {
			add("%s: task %q: unknown parameter %q", where, label, name)
		}
	}
	// Required params can only be checked statically when no template or
	// loop could supply them later.
	for name, p := range ps {
		if !p.Required || name == module.FreeForm {
			continue
		}
		if _, ok := t.Args[name]; !ok {
			add("%s: task %q: missing required parameter %q", where, label, name)
		}
	}
	if _, ok := ps[module.FreeForm]; ok {
		if _, given := t.Args[module.FreeForm]; !given && ps[module.FreeForm].Required {
			add("%s: task %q: %s requires a value", where, label, t.Module)
		}
	}
	if t.When != "" {
		if _, err := eval.Parse(t.When); err != nil {
			add("%s: task %q: %v", where, label, err)
		}
	}
	switch t.Loop.(type) {
	case nil, []any, string:
	default:
		add("%s: task %q: loop must be a list or a list variable", where, label)
	}
}

func lintInventory(path string) []Finding {
	if _, err := inventory.LoadFromFile(path); err != nil {
		return []Finding{{File: path, Msg: err.Error()}}
	}
	return nil
}

// Describe renders findings one per line for CLI output.
func Describe(findings []Finding) string {
	var sb strings.Builder
	for _, f := range findings {
		sb.WriteString(f.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
