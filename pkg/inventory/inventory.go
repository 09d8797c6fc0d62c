// Package inventory resolves host/group sources into effective per-host
// variable sets. Two source formats are accepted: the YAML layout
// (all/children/hosts/vars) and INI sections ([group], [group:vars],
// [group:children]). Variable precedence, lowest to highest: `all` vars,
// ancestor group vars (outer to inner), host vars.
package inventory

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
)

// Host is a resolved inventory entry with its effective variables.
type Host struct {
	Name string
	Addr string
	Port int
	Vars map[string]any
}

// Addr and connection keys are recognized under both ansible_* names and
// the short names older inventories use.
var (
	addrKeys = []string{"ansible_host", "host"}
	portKeys = []string{"ansible_port", "port"}
)

type group struct {
	name     string
	vars     map[string]any
	hosts    []string
	children []string
	depth    int
}

// Inventory is the parsed and validated source; resolution output is
// deterministic for unchanged input.
type Inventory struct {
	file     string
	groups   map[string]*group
	hostVars map[string]map[string]any
	hostOf   map[string][]string // host -> group names
	order    []string            // host names, sorted
}

// LoadFromFile parses path, dispatching on extension: .yml/.yaml is the
// YAML layout, anything else the INI layout.
func LoadFromFile(p string) (*Inventory, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, &errs.ConfigError{File: p, Msg: "cannot read inventory", Err: err}
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yml", ".yaml":
		return parseYAML(p, b)
	default:
		return parseINI(p, b)
	}
}

func newInventory(file string) *Inventory {
	inv := &Inventory{
		file:     file,
		groups:   map[string]*group{},
		hostVars: map[string]map[string]any{},
		hostOf:   map[string][]string{},
	}
	inv.groups["all"] = &group{name: "all", vars: map[string]any{}}
	return inv
}

func (i *Inventory) ensureGroup(name string) *group {
	g, ok := i.groups[name]
	if !ok {
		g = &group{name: name, vars: map[string]any{}}
		i.groups[name] = g
	}
	return g
}

// addHost merges one host definition into the inventory. A variable bound
// to conflicting types across duplicate definitions is a ConfigError.
func (i *Inventory) addHost(groupName, hostName string, vars map[string]any) error {
	g := i.ensureGroup(groupName)
	found := false
	for _, h := range g.hosts {
		if h == hostName {
			found = true
			break
		}
	}
	if !found {
		g.hosts = append(g.hosts, hostName)
	}
	member := false
	for _, gn := range i.hostOf[hostName] {
		if gn == groupName {
			member = true
			break
		}
	}
	if !member {
		i.hostOf[hostName] = append(i.hostOf[hostName], groupName)
	}
	existing, ok := i.hostVars[hostName]
	if !ok {
		existing = map[string]any{}
		i.hostVars[hostName] = existing
		i.order = append(i.order, hostName)
	}
	for k, v := range vars {
		if old, ok := existing[k]; ok && !sameType(old, v) {
			return &errs.ConfigError{
				File: i.file,
				Msg:  fmt.Sprintf("host %q defined twice with conflicting types for %q (%T vs %T)", hostName, k, old, v),
			}
		}
		existing[k] = v
	}
	return nil
}

func sameType(a, b any) bool {
	if a == nil || b == nil {
		return true
	}
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

// validate finishes loading: group-cycle detection and depth assignment.
func (i *Inventory) validate() error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := map[string]int{}
	var visit func(name string, depth int) error
	visit = func(name string, depth int) error {
		g, ok := i.groups[name]
		if !ok {
			return &errs.ConfigError{File: i.file, Msg: fmt.Sprintf("group %q references undefined group", name)}
		}
		if color[name] == grey {
			return &errs.ConfigError{File: i.file, Msg: fmt.Sprintf("group hierarchy cycle through %q", name)}
		}
		if color[name] == black && depth <= g.depth {
			return nil
		}
		if depth > g.depth {
			g.depth = depth
		}
		if color[name] == black {
			// Revisit only to push the deeper depth down the subtree.
			for _, c := range g.children {
				if err := visit(c, depth+1); err != nil {
					return err
				}
			}
			return nil
		}
		color[name] = grey
		for _, c := range g.children {
			if err := visit(c, depth+1); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}
	if err := visit("all", 0); err != nil {
		return err
	}
	// Top-level groups not nested anywhere hang off all.
	referenced := map[string]bool{}
	for _, g := range i.groups {
		for _, c := range g.children {
			referenced[c] = true
		}
	}
	all := i.groups["all"]
	var loose []string
	for name := range i.groups {
		if name != "all" && !referenced[name] {
			loose = append(loose, name)
		}
	}
	sort.Strings(loose)
	for _, name := range loose {
		all.children = append(all.children, name)
		if err := visit(name, 1); err != nil {
			return err
		}
	}
	// A group referenced only from inside a cycle is neither loose nor
	// reachable from all, so the walks above never enter it. Any group
	// still unvisited sits on such a cycle.
	remaining := make([]string, 0, len(i.groups))
	for name := range i.groups {
		if color[name] != black {
			remaining = append(remaining, name)
		}
	}
	sort.Strings(remaining)
	for _, name := range remaining {
		if err := visit(name, 1); err != nil {
			return err
		}
	}
	sort.Strings(i.order)
	return nil
}

// effectiveVars merges group vars (shallow groups first, ties broken by
// name) then host vars, so re-resolution is reproducible.
func (i *Inventory) effectiveVars(hostName string) map[string]any {
	gs := append([]string{}, i.hostOf[hostName]...)
	withAncestors := map[string]bool{"all": true}
	var mark func(name string)
	mark = func(name string) {
		if withAncestors[name] {
			return
		}
		withAncestors[name] = true
		for parent, g := range i.groups {
			for _, c := range g.children {
				if c == name {
					mark(parent)
				}
			}
		}
	}
	for _, gn := range gs {
		mark(gn)
		for parent, g := range i.groups {
			for _, c := range g.children {
				if c == gn {
					mark(parent)
				}
			}
		}
	}
	ordered := make([]string, 0, len(withAncestors))
	for name := range withAncestors {
		ordered = append(ordered, name)
	}
	sort.Slice(ordered, func(a, b int) bool {
		ga, gb := i.groups[ordered[a]], i.groups[ordered[b]]
		if ga.depth != gb.depth {
			return ga.depth < gb.depth
		}
		return ga.name < gb.name
	})
	out := map[string]any{}
	for _, gn := range ordered {
		for k, v := range i.groups[gn].vars {
			out[k] = v
		}
	}
	for k, v := range i.hostVars[hostName] {
		out[k] = v
	}
	return out
}

func (i *Inventory) resolve(name string) Host {
	vars := i.effectiveVars(name)
	h := Host{Name: name, Vars: vars}
	for _, k := range addrKeys {
		if s, ok := vars[k].(string); ok && s != "" {
			h.Addr = s
			break
		}
	}
	if h.Addr == "" {
		h.Addr = name
	}
	for _, k := range portKeys {
		switch v := vars[k].(type) {
		case int:
			h.Port = v
		case float64:
			h.Port = int(v)
		}
		if h.Port != 0 {
			break
		}
	}
	return h
}

// AllHosts returns resolved hosts matching limit: empty selects all,
// otherwise comma-separated glob patterns matched against host and group
// names.
func (i *Inventory) AllHosts(limit string) []Host {
	var out []Host
	for _, name := range i.order {
		if i.matches(limit, name) {
			out = append(out, i.resolve(name))
		}
	}
	return out
}

func (i *Inventory) matches(limit, hostName string) bool {
	if limit == "" || limit == "all" {
		return true
	}
	names := append([]string{hostName}, i.groupClosure(hostName)...)
	for _, pat := range strings.Split(limit, ",") {
		pat = strings.TrimSpace(pat)
		for _, n := range names {
			if ok, _ := path.Match(pat, n); ok || pat == n {
				return true
			}
		}
	}
	return false
}

func (i *Inventory) groupClosure(hostName string) []string {
	seen := map[string]bool{}
	var walk func(name string)
	walk = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		for parent, g := range i.groups {
			for _, c := range g.children {
				if c == name {
					walk(parent)
				}
			}
		}
	}
	for _, gn := range i.hostOf[hostName] {
		walk(gn)
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// GroupNames lists all defined groups, sorted.
func (i *Inventory) GroupNames() []string {
	out := make([]string, 0, len(i.groups))
	for n := range i.groups {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// BaseDir is the directory the inventory was loaded from, the anchor for
// relative paths in plays.
func (i *Inventory) BaseDir() string {
	return filepath.Dir(i.file)
}
