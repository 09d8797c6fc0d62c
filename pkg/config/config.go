// Package config loads the engine defaults from an ansible.cfg-style INI
// file. The resulting Config is assembled once at startup and handed
// explicitly to each component; nothing reads it from global state.
package config

import (
	"os"
	"time"

	"gopkg.in/ini.v1"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
)

// EnvConfig names the environment variable pointing at an alternate
// defaults file; DefaultFile is probed in the working directory otherwise.
const (
	EnvConfig   = "ANSCRAFT_CONFIG"
	DefaultFile = "anscraft.cfg"
)

type Config struct {
	// [defaults]
	Inventory         string
	Forks             int
	RemoteUser        string
	PrivateKeyFile    string
	Transport         string
	Timeout           time.Duration // connection establishment
	CommandTimeout    time.Duration // single module invocation
	Gathering         string        // implicit | explicit
	VaultPasswordFile string

	// [privilege_escalation]
	Become       bool
	BecomeMethod string
	BecomeUser   string

	// [winrm]
	WinRMPort     int
	WinRMUseTLS   bool
	WinRMInsecure bool
}

func Default() *Config {
	return &Config{
		Inventory:      "inventory.yml",
		Forks:          5,
		Transport:      "ssh",
		Timeout:        15 * time.Second,
		CommandTimeout: 5 * time.Minute,
		Gathering:      "implicit",
		BecomeMethod:   "sudo",
		BecomeUser:     "root",
		WinRMPort:      5985,
	}
}

// Load reads path on top of the built-in defaults. An empty path falls
// back to $ANSCRAFT_CONFIG, then ./anscraft.cfg; if neither exists the
// defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		} else {
			return cfg, nil
		}
	}
	f, err := ini.Load(path)
	if err != nil {
		return nil, &errs.ConfigError{File: path, Msg: "cannot parse defaults file", Err: err}
	}

	d := f.Section("defaults")
	cfg.Inventory = d.Key("inventory").MustString(cfg.Inventory)
	cfg.Forks = d.Key("forks").MustInt(cfg.Forks)
	cfg.RemoteUser = d.Key("remote_user").MustString(cfg.RemoteUser)
	cfg.PrivateKeyFile = d.Key("private_key_file").MustString(cfg.PrivateKeyFile)
	cfg.Transport = d.Key("transport").MustString(cfg.Transport)
	cfg.Timeout = secs(d.Key("timeout"), cfg.Timeout)
	cfg.CommandTimeout = secs(d.Key("command_timeout"), cfg.CommandTimeout)
	cfg.Gathering = d.Key("gathering").MustString(cfg.Gathering)
	cfg.VaultPasswordFile = d.Key("vault_password_file").MustString(cfg.VaultPasswordFile)

	p := f.Section("privilege_escalation")
	cfg.Become = p.Key("become").MustBool(cfg.Become)
	cfg.BecomeMethod = p.Key("become_method").MustString(cfg.BecomeMethod)
	cfg.BecomeUser = p.Key("become_user").MustString(cfg.BecomeUser)

	w := f.Section("winrm")
	cfg.WinRMPort = w.Key("port").MustInt(cfg.WinRMPort)
	cfg.WinRMUseTLS = w.Key("use_tls").MustBool(cfg.WinRMUseTLS)
	cfg.WinRMInsecure = w.Key("insecure").MustBool(cfg.WinRMInsecure)

	if cfg.Forks < 1 {
		return nil, &errs.ConfigError{File: path, Msg: "forks must be >= 1"}
	}
	switch cfg.Gathering {
	case "implicit", "explicit":
	default:
		return nil, &errs.ConfigError{File: path, Msg: "gathering must be implicit or explicit"}
	}
	return cfg, nil
}

// VaultPassword resolves the vault passphrase: explicit env first, then
// the configured password file.
func (c *Config) VaultPassword() ([]byte, error) {
	if p := os.Getenv("ANSCRAFT_VAULT_PASSWORD"); p != "" {
		return []byte(p), nil
	}
	if c.VaultPasswordFile == "" {
		return nil, nil
	}
	b, err := os.ReadFile(c.VaultPasswordFile)
	if err != nil {
		return nil, &errs.ConfigError{File: c.VaultPasswordFile, Msg: "cannot read vault password file", Err: err}
	}
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b, nil
}

func secs(k *ini.Key, def time.Duration) time.Duration {
	n := k.MustInt(int(def / time.Second))
	return time.Duration(n) * time.Second
}
