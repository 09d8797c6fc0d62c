package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vsantiago113/AnsibleCraft/pkg/inventory"
)

func newInventoryCmd() *cobra.Command {
	var asList bool
	cmd := &cobra.Command{
		Use:   "inventory [PATTERN]",
		Short: "show resolved hosts and their effective variables",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			inv, err := inventory.LoadFromFile(cfg.Inventory)
			if err != nil {
				return err
			}
			pattern := "all"
			if len(args) == 1 {
				pattern = args[0]
			}
			hosts := inv.AllHosts(pattern)

			if asList || flagJSON {
				out := map[string]any{}
				for _, h := range hosts {
					out[h.Name] = map[string]any{"addr": h.Addr, "port": h.Port, "vars": h.Vars}
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"groups": inv.GroupNames(), "hosts": out})
			}

			fmt.Printf("groups: %v\n", inv.GroupNames())
			for _, h := range hosts {
				fmt.Printf("%s (%s:%d)\n", h.Name, h.Addr, h.Port)
				for k, v := range h.Vars {
					fmt.Printf("    %s = %v\n", k, v)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asList, "list", false, "emit the full inventory as JSON")
	return cmd
}
