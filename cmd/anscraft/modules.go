package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vsantiago113/AnsibleCraft/pkg/modhelp"
	"github.com/vsantiago113/AnsibleCraft/pkg/module"
)

func newModulesCmd() *cobra.Command {
	var helpFor string
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "list available modules, grouped by namespace",
		RunE: func(_ *cobra.Command, _ []string) error {
			if helpFor != "" {
				return printModuleHelp(helpFor)
			}

			// Plugin-pack modules group under their namespace; built-ins
			// under "builtin".
			groups := map[string][]string{}
			for _, name := range module.Names() {
				m, err := module.Get(name)
				if err != nil {
					continue
				}
				ns := "builtin"
				if n, ok := m.(module.Namespaced); ok {
					ns = n.Namespace()
				}
				groups[ns] = append(groups[ns], name)
			}
			var nss []string
			for ns := range groups {
				nss = append(nss, ns)
			}
			sort.Strings(nss)
			for _, ns := range nss {
				fmt.Printf("%s:\n", ns)
				for _, name := range groups[ns] {
					line := "  " + name
					if d, ok := modhelp.Get(name); ok {
						line += " - " + d.Synopsis
					}
					fmt.Println(line)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&helpFor, "help-for", "", "show detailed help for one module")
	return cmd
}

func printModuleHelp(name string) error {
	m, err := module.Get(name)
	if err != nil {
		return err
	}
	fmt.Printf("module: %s\n", name)
	d, ok := modhelp.Get(name)
	if ok {
		fmt.Println(d.Synopsis)
	}
	fmt.Println("\nparameters:")
	ps := m.Params()
	var names []string
	for n := range ps {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		p := ps[n]
		label := n
		if n == module.FreeForm {
			label = "(free form)"
		}
		line := fmt.Sprintf("  %-12s %s", label, p.Kind)
		if p.Required {
			line += " (required)"
		}
		if p.Default != nil {
			line += fmt.Sprintf(" [default %v]", p.Default)
		}
		if len(p.Enum) > 0 {
			line += fmt.Sprintf(" one of %v", p.Enum)
		}
		if ok {
			if desc, has := d.Params[n]; has {
				line += " - " + desc
			}
		}
		fmt.Println(line)
	}
	if ok && d.Example != "" {
		fmt.Println("\nexample:")
		fmt.Print(d.Example)
	}
	return nil
}
