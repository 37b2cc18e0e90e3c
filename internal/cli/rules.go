package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rules", Short: "Inspect the rule catalog"}
	var packs []string
	list := &cobra.Command{
		Use:   "list",
		Short: "List built-in and rule-pack detectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			c, err := s.catalog(packs...)
			if err != nil {
				return err
			}
			for _, r := range c.Rules() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", r.ID, r.Severity, r.Category, r.Title)
			}
			return nil
		},
	}
	list.Flags().StringSliceVar(&packs, "rules-pack", nil, "Additional YAML/TOML rule pack (repeatable)")
	cmd.AddCommand(list)
	return cmd
}
