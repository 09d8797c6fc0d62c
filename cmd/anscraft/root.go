// anscraft is an agentless automation engine: it resolves an inventory,
// renders playbook tasks per host and dispatches them over SSH or WinRM.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vsantiago113/AnsibleCraft/pkg/config"
	"github.com/vsantiago113/AnsibleCraft/pkg/version"

	// Built-in modules register from init.
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/command"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/copy"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/cron"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/debug"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/file"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/geturl"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/git"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/lineinfile"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/packagex"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/pip"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/service"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/shell"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/template"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/unarchive"
	_ "github.com/vsantiago113/AnsibleCraft/pkg/modules/winshell"
)

var (
	flagConfig    string
	flagInventory string
	flagVerbosity int
	flagJSON      bool

	log *zap.SugaredLogger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "anscraft",
		Short:         "agentless task executor for fleets of hosts",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log = newLogger(flagVerbosity)
			return loadPlugins(log)
		},
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "defaults file (else $ANSCRAFT_CONFIG, then ./anscraft.cfg)")
	root.PersistentFlags().StringVarP(&flagInventory, "inventory", "i", "", "inventory file (overrides the configured default)")
	root.PersistentFlags().CountVarP(&flagVerbosity, "verbose", "v", "increase log verbosity (-v, -vv, -vvv)")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "machine-readable output, one JSON object per line")

	root.AddCommand(newRunCmd())
	root.AddCommand(newLintCmd())
	root.AddCommand(newInventoryCmd())
	root.AddCommand(newModulesCmd())
	root.AddCommand(newPingCmd())
	root.AddCommand(newVaultCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print the engine version",
		Run:   func(*cobra.Command, []string) { fmt.Println("anscraft", version.Version) },
	})
	return root
}

// execute runs the CLI and maps outcomes onto exit codes: 0 clean, 1 for
// usage/setup errors, 2 when any host failed.
func execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var he hostsFailedError
		if ok := asHostsFailed(err, &he); ok {
			return int(he)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// hostsFailedError carries the recap exit code through cobra's error path
// without printing a redundant message.
type hostsFailedError int

func (e hostsFailedError) Error() string { return "one or more hosts failed" }

func asHostsFailed(err error, out *hostsFailedError) bool {
	he, ok := err.(hostsFailedError)
	if ok {
		*out = he
	}
	return ok
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagInventory != "" {
		cfg.Inventory = flagInventory
	}
	return cfg, nil
}

func newLogger(verbosity int) *zap.SugaredLogger {
	level := zapcore.ErrorLevel
	switch {
	case verbosity >= 3:
		level = zapcore.DebugLevel
	case verbosity == 2:
		level = zapcore.InfoLevel
	case verbosity == 1:
		level = zapcore.WarnLevel
	}
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.Lock(os.Stderr), level)
	return zap.New(core).Sugar()
}
