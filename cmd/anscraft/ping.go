package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vsantiago113/AnsibleCraft/pkg/inventory"
)

func newPingCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "ping [PATTERN]",
		Short: "check TCP reachability of inventory hosts",
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

			down := 0
			for _, h := range inv.AllHosts(pattern) {
				port := h.Port
				if port == 0 {
					port = 22
				}
				addr := net.JoinHostPort(h.Addr, strconv.Itoa(port))
				c, err := net.DialTimeout("tcp", addr, timeout)
				if err != nil {
					down++
					fmt.Printf("%-24s %s DOWN (%v)\n", h.Name, addr, err)
					continue
				}
				c.Close()
				fmt.Printf("%-24s %s UP\n", h.Name, addr)
			}
			if down > 0 {
				return hostsFailedError(2)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "per-host connect timeout")
	return cmd
}
