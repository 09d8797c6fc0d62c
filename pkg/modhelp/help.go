// Package modhelp holds the built-in module documentation shown by
// `anscraft modules --help-for`.
package modhelp

import "sort"

// Doc is one module's help entry.
type Doc struct {
	Synopsis string
	Params   map[string]string
	Example  string
}

var docs = map[string]Doc{
	"command": {
		Synopsis: "Run a single command on the target.",
		Params: map[string]string{
			"_":       "the command line (free form)",
			"creates": "skip when this path exists",
			"removes": "skip when this path is absent",
			"chdir":   "run from this directory",
			"env":     "extra environment variables",
		},
		Example: "- name: kernel version\n  command: uname -r\n",
	},
	"shell": {
		Synopsis: "Run a command line through bash (pipes and globs work).",
		Params: map[string]string{
			"_":       "the shell snippet (free form)",
			"creates": "skip when this path exists",
			"chdir":   "run from this directory",
			"env":     "extra environment variables",
		},
		Example: "- name: count listeners\n  shell: ss -tln | wc -l\n",
	},
	"copy": {
		Synopsis: "Upload a local file or inline content to the target.",
		Params: map[string]string{
			"src":     "local file, relative to the playbook",
			"content": "inline content (alternative to src)",
			"dest":    "remote path (required)",
			"mode":    "octal file mode, default 0644",
		},
		Example: "- copy:\n    src: files/app.conf\n    dest: /etc/app.conf\n",
	},
	"template": {
		Synopsis: "Render a Go text/template with host variables and upload it.",
		Params: map[string]string{
			"src":  "local template, relative to the playbook (required)",
			"dest": "remote path (required)",
			"mode": "octal file mode, default 0644",
		},
		Example: "- template:\n    src: templates/motd.tmpl\n    dest: /etc/motd\n",
	},
	"file": {
		Synopsis: "Manage a path: file, directory or absent, plus mode and owner.",
		Params: map[string]string{
			"path":  "remote path (required)",
			"state": "present | directory | absent | touch",
			"mode":  "octal file mode",
			"owner": "owning user",
			"group": "owning group",
		},
		Example: "- file:\n    path: /srv/www\n    state: directory\n    mode: \"0755\"\n",
	},
	"lineinfile": {
		Synopsis: "Ensure a line is present in (or absent from) a file.",
		Params: map[string]string{
			"path":   "remote file (required)",
			"line":   "the exact line to manage",
			"regexp": "replace the first matching line instead of appending",
			"state":  "present | absent",
			"create": "create the file when missing",
		},
		Example: "- lineinfile:\n    path: /etc/sysctl.conf\n    line: vm.swappiness=10\n",
	},
	"package": {
		Synopsis: "Install or remove OS packages (apt, dnf, yum, apk).",
		Params: map[string]string{
			"name":  "package name or list (required)",
			"state": "present | absent | latest",
		},
		Example: "- package:\n    name: [nginx, curl]\n    state: present\n  become: true\n",
	},
	"service": {
		Synopsis: "Control systemd units.",
		Params: map[string]string{
			"name":    "unit name (required)",
			"state":   "started | stopped | restarted | reloaded",
			"enabled": "enable or disable at boot",
		},
		Example: "- service:\n    name: nginx\n    state: started\n    enabled: true\n  become: true\n",
	},
	"cron": {
		Synopsis: "Manage a named crontab entry.",
		Params: map[string]string{
			"name":   "entry identifier (required)",
			"job":    "command to schedule",
			"minute": "cron minute field, default *",
			"hour":   "cron hour field, default *",
			"user":   "install into this user's crontab",
			"state":  "present | absent",
		},
		Example: "- cron:\n    name: nightly backup\n    job: /usr/local/bin/backup.sh\n    hour: \"2\"\n    minute: \"0\"\n",
	},
	"get_url": {
		Synopsis: "Download a URL to the target with curl or wget.",
		Params: map[string]string{
			"url":      "source URL (required)",
			"dest":     "remote path (required)",
			"checksum": "sha256:<hex> to verify",
			"mode":     "octal file mode",
			"force":    "always re-download",
		},
		Example: "- get_url:\n    url: https://example.com/app.tgz\n    dest: /tmp/app.tgz\n",
	},
	"git": {
		Synopsis: "Clone or update a git checkout.",
		Params: map[string]string{
			"repo":    "repository URL (required)",
			"dest":    "checkout directory (required)",
			"version": "branch, tag or commit, default HEAD",
			"depth":   "shallow clone depth",
			"force":   "discard local modifications",
		},
		Example: "- git:\n    repo: https://github.com/example/app.git\n    dest: /opt/app\n    version: v2.1.0\n",
	},
	"unarchive": {
		Synopsis: "Extract a tar or zip archive on the target.",
		Params: map[string]string{
			"src":        "archive path (local, or remote with remote_src)",
			"dest":       "extraction directory (required)",
			"remote_src": "src is already on the target",
			"creates":    "skip when this path exists",
		},
		Example: "- unarchive:\n    src: /tmp/app.tgz\n    dest: /opt/app\n    remote_src: true\n",
	},
	"pip": {
		Synopsis: "Install Python packages, optionally in a virtualenv.",
		Params: map[string]string{
			"name":       "requirement or list (required)",
			"state":      "present | absent | latest",
			"virtualenv": "create and use this virtualenv",
			"executable": "pip binary, default pip3",
		},
		Example: "- pip:\n    name: requests\n    virtualenv: /opt/app/venv\n",
	},
	"debug": {
		Synopsis: "Print a message or a variable. Never touches the target.",
		Params: map[string]string{
			"msg": "message to print",
			"var": "variable name to print instead",
		},
		Example: "- debug:\n    var: ansible_distribution\n",
	},
	"win_shell": {
		Synopsis: "Run a PowerShell script block on a Windows target.",
		Params: map[string]string{
			"_":       "the script (free form)",
			"creates": "skip when this path exists",
			"chdir":   "run from this directory",
		},
		Example: "- win_shell: Get-Service W3SVC | Restart-Service\n",
	},
}

// Get returns the doc for a module name.
func Get(name string) (Doc, bool) {
	d, ok := docs[name]
	return d, ok
}

// Names lists documented modules in order.
func Names() []string {
	out := make([]string, 0, len(docs))
	for n := range docs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
