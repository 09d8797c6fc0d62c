// Package facts discovers remote-system attributes once per host per run.
// The resulting set is merged into the host's variable environment under
// ansible_* names and is immutable for the rest of the run.
package facts

import (
	"context"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

type Facts map[string]any

// Gather probes the target through an open session. Individual probe
// failures degrade to missing keys; only a dead transport is an error.
func Gather(ctx context.Context, c module.Conn) (Facts, error) {
	if c.Family() == "windows" {
		return gatherWindows(ctx, c)
	}
	return gatherPosix(ctx, c)
}

func gatherPosix(ctx context.Context, c module.Conn) (Facts, error) {
	f := Facts{"ansible_os_family": "Linux"}

	out, _, _, err := c.Exec(ctx, "uname -s", nil, false)
	if err != nil {
		return nil, err
	}
	system := strings.TrimSpace(out)
	f["ansible_system"] = system
	if system == "Darwin" {
		f["ansible_os_family"] = "Darwin"
		f["ansible_distribution"] = "MacOSX"
	}
	if out, _, _, err := c.Exec(ctx, "uname -m", nil, false); err == nil {
		f["ansible_architecture"] = strings.TrimSpace(out)
	}
	if out, _, _, err := c.Exec(ctx, "hostname", nil, false); err == nil {
		f["ansible_hostname"] = strings.TrimSpace(out)
	}
	if out, _, exit, err := c.Exec(ctx, "cat /etc/os-release", nil, false); err == nil && exit == 0 {
		applyOSRelease(f, ParseOSRelease(out))
	}
	return f, nil
}

// ParseOSRelease reads the KEY=value lines of /etc/os-release.
func ParseOSRelease(data string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[k] = strings.Trim(v, `"`)
	}
	return out
}

// distFamilies maps os-release IDs onto distribution name and family.
var distFamilies = map[string][2]string{
	"ubuntu": {"Ubuntu", "Debian"},
	"debian": {"Debian", "Debian"},
	"centos": {"CentOS", "RedHat"},
	"rhel":   {"RedHat", "RedHat"},
	"fedora": {"Fedora", "RedHat"},
	"rocky":  {"Rocky", "RedHat"},
	"alma":   {"AlmaLinux", "RedHat"},
	"alpine": {"Alpine", "Alpine"},
	"suse":   {"SLES", "Suse"},
}

func applyOSRelease(f Facts, kv map[string]string) {
	id := strings.ToLower(kv["ID"])
	if m, ok := distFamilies[id]; ok {
		f["ansible_distribution"] = m[0]
		f["ansible_os_family"] = m[1]
	} else if name := kv["NAME"]; name != "" {
		f["ansible_distribution"] = strings.Fields(name)[0]
	}
	if v := kv["VERSION_ID"]; v != "" {
		f["ansible_distribution_version"] = v
	}
}

func gatherWindows(ctx context.Context, c module.Conn) (Facts, error) {
	f := Facts{
		"ansible_system":    "Win32NT",
		"ansible_os_family": "Windows",
	}
	out, _, _, err := c.Exec(ctx, "hostname", nil, false)
	if err != nil {
		return nil, err
	}
	f["ansible_hostname"] = strings.TrimSpace(out)
	if out, _, exit, err := c.Exec(ctx, `powershell -NoProfile -Command "(Get-CimInstance Win32_OperatingSystem).Caption"`, nil, false); err == nil && exit == 0 {
		if caption := strings.TrimSpace(out); caption != "" {
			f["ansible_distribution"] = caption
		}
	}
	if out, _, exit, err := c.Exec(ctx, `powershell -NoProfile -Command "(Get-CimInstance Win32_OperatingSystem).Version"`, nil, false); err == nil && exit == 0 {
		if v := strings.TrimSpace(out); v != "" {
			f["ansible_distribution_version"] = v
		}
	}
	return f, nil
}
