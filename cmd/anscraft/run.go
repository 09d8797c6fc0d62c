package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vsantiago113/AnsibleCraft/pkg/inventory"
	"github.com/vsantiago113/AnsibleCraft/pkg/play"
	"github.com/vsantiago113/AnsibleCraft/pkg/runner"
)

func newRunCmd() *cobra.Command {
	var (
		limit     string
		forks     int
		check     bool
		vaultFile string
	)
	cmd := &cobra.Command{
		Use:   "run PLAYBOOK",
		Short: "execute a playbook against the inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if forks > 0 {
				cfg.Forks = forks
			}
			if vaultFile != "" {
				cfg.VaultPasswordFile = vaultFile
			}
			inv, err := inventory.LoadFromFile(cfg.Inventory)
			if err != nil {
				return err
			}
			book, err := play.LoadPlaybook(args[0])
			if err != nil {
				return err
			}
			pass, err := cfg.VaultPassword()
			if err != nil {
				return err
			}

			var out runner.Printer
			if flagJSON {
				out = runner.NewJSONPrinter(os.Stdout)
			} else {
				out = runner.NewTextPrinter(os.Stdout, isTTY())
			}

			// SIGINT stops scheduling new tasks; in-flight module
			// invocations finish under the command timeout.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := &runner.Runner{
				Cfg:       cfg,
				Inv:       inv,
				Book:      book,
				Limit:     limit,
				Check:     check,
				Out:       out,
				Log:       log,
				VaultPass: pass,
			}
			recap, err := r.Run(ctx)
			if err != nil {
				return err
			}
			if code := recap.ExitCode(); code != 0 {
				return hostsFailedError(code)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&limit, "limit", "l", "", "restrict the run to hosts matching this pattern")
	cmd.Flags().IntVarP(&forks, "forks", "f", 0, "maximum hosts executing concurrently")
	cmd.Flags().BoolVar(&check, "check", false, "report what would change without changing it")
	cmd.Flags().StringVar(&vaultFile, "vault-password-file", "", "file holding the vault passphrase")
	return cmd
}

func isTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
