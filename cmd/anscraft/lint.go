package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vsantiago113/AnsibleCraft/pkg/lint"
)

func newLintCmd() *cobra.Command {
	var excludes []string
	cmd := &cobra.Command{
		Use:   "lint PATH",
		Short: "statically validate playbooks and inventories",
		Long: "Applies the executor's preflight rules to every YAML file under PATH\n" +
			"without contacting any host. Exits non-zero when findings exist.",
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			findings, err := lint.Run(args[0], excludes)
			if err != nil {
				return err
			}
			if flagJSON {
				enc := json.NewEncoder(os.Stdout)
				for _, f := range findings {
					enc.Encode(map[string]string{"file": f.File, "msg": f.Msg}) //nolint:errcheck
				}
			} else {
				fmt.Print(lint.Describe(findings))
			}
			if len(findings) > 0 {
				return hostsFailedError(1)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&excludes, "exclude", nil, "file or directory name pattern to skip (repeatable)")
	return cmd
}
