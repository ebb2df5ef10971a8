package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			fmt.Println("Scenarios:")
			for _, name := range e.registry.Names() {
				s, _ := e.registry.Lookup(name)
				alias := ""
				if s.Name != name {
					alias = fmt.Sprintf(" (alias of %s)", s.Name)
				}
				marker := " "
				if name == e.cfg.Scenario {
					marker = "*"
				}
				fmt.Printf("%s %s%s\n", marker, name, alias)
				if alias == "" {
					if s.Description != "" {
						fmt.Printf("    %s\n", s.Description)
					}
					fmt.Printf("    filters: %v\n", s.Filters.Names())
					fmt.Printf("    scorers: %v\n", s.Scorers.Names())
				}
			}
			return nil
		},
	}
}
