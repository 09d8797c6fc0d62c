package inventory

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
)

// parseINI reads the section-keyed format: bare host lines, [group]
// sections, [group:vars] key=value sections and [group:children]
// membership sections. The host-line grammar (`name key=val key=val`) is
// not INI key=value, so the lines are split by hand.
func parseINI(file string, data []byte) (*Inventory, error) {
	inv := newInventory(file)
	section := "ungrouped"
	mode := "hosts" // hosts | vars | children

	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, iniErr(file, lineNo, "unterminated section header")
			}
			header := line[1 : len(line)-1]
			switch {
			case strings.HasSuffix(header, ":vars"):
				section, mode = strings.TrimSuffix(header, ":vars"), "vars"
			case strings.HasSuffix(header, ":children"):
				section, mode = strings.TrimSuffix(header, ":children"), "children"
			default:
				section, mode = header, "hosts"
			}
			if section == "" {
				return nil, iniErr(file, lineNo, "empty group name")
			}
			inv.ensureGroup(section)
			continue
		}
		switch mode {
		case "vars":
			k, v, ok := strings.Cut(line, "=")
			if !ok {
				return nil, iniErr(file, lineNo, "expected key=value")
			}
			inv.ensureGroup(section).vars[strings.TrimSpace(k)] = autoType(strings.TrimSpace(v))
		case "children":
			child := line
			g := inv.ensureGroup(section)
			g.children = append(g.children, child)
			inv.ensureGroup(child)
		default:
			fields := strings.Fields(line)
			hostName := fields[0]
			vars := map[string]any{}
			for _, f := range fields[1:] {
				k, v, ok := strings.Cut(f, "=")
				if !ok {
					return nil, iniErr(file, lineNo, fmt.Sprintf("bad host variable %q", f))
				}
				vars[k] = autoType(v)
			}
			if err := inv.addHost(section, hostName, vars); err != nil {
				return nil, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &errs.ConfigError{File: file, Msg: "cannot read inventory", Err: err}
	}
	if err := inv.validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

func iniErr(file string, line int, msg string) error {
	return &errs.ConfigError{File: file, Msg: fmt.Sprintf("line %d: %s", line, msg)}
}

func autoType(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	switch strings.ToLower(s) {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}
	return strings.Trim(s, `"'`)
}
