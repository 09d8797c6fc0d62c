package play

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
	"github.com/vsantiago113/AnsibleCraft/pkg/vault"
)

// Reserved task keys; exactly one remaining key names the module.
var reservedTaskKeys = map[string]bool{
	"name": true, "when": true, "loop": true, "with_items": true,
	"become": true, "become_user": true, "register": true,
	"notify": true, "tags": true, "ignore_errors": true, "args": true,
}

// LoadPlaybook parses a playbook file: a top-level list of plays.
func LoadPlaybook(path string) (Playbook, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Playbook{}, &errs.ConfigError{File: path, Msg: "cannot read playbook", Err: err}
	}
	var rawPlays []map[string]any
	if err := yaml.Unmarshal(b, &rawPlays); err != nil {
		return Playbook{}, &errs.ConfigError{File: path, Msg: "cannot parse playbook", Err: err}
	}
	pb := Playbook{BaseDir: filepath.Dir(path)}
	for idx, raw := range rawPlays {
		pl, err := parsePlay(path, idx, raw)
		if err != nil {
			return Playbook{}, err
		}
		pb.Plays = append(pb.Plays, pl)
	}
	if len(pb.Plays) == 0 {
		return Playbook{}, &errs.ConfigError{File: path, Msg: "playbook defines no plays"}
	}
	return pb, nil
}

func parsePlay(file string, idx int, raw map[string]any) (Play, error) {
	var pl Play
	pl.Name, _ = raw["name"].(string)
	hosts, ok := raw["hosts"].(string)
	if !ok || hosts == "" {
		return Play{}, playErr(file, idx, "play requires a hosts selector")
	}
	pl.Hosts = hosts
	pl.Become, _ = raw["become"].(bool)
	pl.BecomeUser, _ = raw["become_user"].(string)
	if v, ok := raw["serial"].(int); ok {
		pl.Serial = v
	}
	if v, ok := raw["gather_facts"].(bool); ok {
		pl.GatherFacts = &v
	}
	if v, ok := raw["vars"].(map[string]any); ok {
		pl.Vars = v
	}
	pl.VarsFiles = stringList(raw["vars_files"])

	tasks, err := parseTasks(file, idx, raw["tasks"])
	if err != nil {
		return Play{}, err
	}
	pl.Tasks = tasks
	handlers, err := parseTasks(file, idx, raw["handlers"])
	if err != nil {
		return Play{}, err
	}
	pl.Handlers = handlers
	if len(pl.Tasks) == 0 && len(pl.Handlers) == 0 {
		return Play{}, playErr(file, idx, "play defines no tasks")
	}
	return pl, nil
}

func parseTasks(file string, playIdx int, raw any) ([]Task, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, playErr(file, playIdx, "tasks must be a list")
	}
	var tasks []Task
	for _, entry := range list {
		tm, ok := entry.(map[string]any)
		if !ok {
			return nil, playErr(file, playIdx, "task entries must be mappings")
		}
		t, err := parseTask(file, playIdx, tm)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func parseTask(file string, playIdx int, tm map[string]any) (Task, error) {
	var t Task
	t.Name, _ = tm["name"].(string)
	t.When, _ = tm["when"].(string)
	if v, ok := tm["loop"]; ok {
		t.Loop = v
	} else if v, ok := tm["with_items"]; ok {
		t.Loop = v
	}
	if v, ok := tm["become"].(bool); ok {
		t.Become = &v
	}
	t.BecomeUser, _ = tm["become_user"].(string)
	t.Register, _ = tm["register"].(string)
	t.Notify = stringList(tm["notify"])
	t.Tags = stringList(tm["tags"])
	t.IgnoreErrors, _ = tm["ignore_errors"].(bool)

	extraArgs, _ := tm["args"].(map[string]any)
	for key, val := range tm {
		if reservedTaskKeys[key] {
			continue
		}
		if t.Module != "" {
			return Task{}, playErr(file, playIdx,
				fmt.Sprintf("task %q declares two modules (%s, %s)", t.Name, t.Module, key))
		}
		t.Module = key
		switch a := val.(type) {
		case map[string]any:
			t.Args = a
		case nil:
			t.Args = map[string]any{}
		default:
			t.Args = map[string]any{"_": a}
		}
	}
	if t.Module == "" {
		return Task{}, playErr(file, playIdx, fmt.Sprintf("task %q declares no module", t.Name))
	}
	if len(extraArgs) > 0 {
		merged := make(map[string]any, len(t.Args)+len(extraArgs))
		for k, v := range extraArgs {
			merged[k] = v
		}
		for k, v := range t.Args {
			merged[k] = v
		}
		t.Args = merged
	}
	return t, nil
}

func playErr(file string, playIdx int, msg string) error {
	return &errs.ConfigError{File: file, Msg: fmt.Sprintf("play %d: %s", playIdx+1, msg)}
}

func stringList(v any) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case []any:
		var out []string
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// LoadVarsFile reads a YAML variable file, transparently decrypting vault
// data when a passphrase is available.
func LoadVarsFile(path string, passphrase []byte) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ConfigError{File: path, Msg: "cannot read vars file", Err: err}
	}
	if vault.IsVault(b) {
		if len(passphrase) == 0 {
			return nil, &errs.ConfigError{File: path, Msg: "vars file is vault-encrypted and no vault password is configured"}
		}
		b, err = vault.Decrypt(b, passphrase)
		if err != nil {
			return nil, &errs.ConfigError{File: path, Msg: "cannot decrypt vars file", Err: err}
		}
	}
	var vars map[string]any
	if err := yaml.Unmarshal(b, &vars); err != nil {
		return nil, &errs.ConfigError{File: path, Msg: "cannot parse vars file", Err: err}
	}
	return vars, nil
}
