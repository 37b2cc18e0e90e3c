package cli

import (
	"fmt"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/storage"
)

func newHistoryCmd() *cobra.Command {
	var (
		db    string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List scans recorded in the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if db == "" {
				db = s.cfg.Database
			}
			if db == "" {
				return fmt.Errorf("no history database (use --db or set database in the config)")
			}
			store, err := storage.Open(cmd.Context(), db)
			if err != nil {
				return err
			}
			defer store.Close()
			scans, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(scans) == 0 {
				fmt.Fprintln(w, "No scans recorded.")
				return nil
			}
			fmt.Fprintf(w, "%-5s %-20s %-19s %5s %8s %5s  %s\n", "ID", "STARTED", "RISK", "FILES", "FINDINGS", "SCORE", "TARGET")
			for _, sc := range scans {
				risk := sc.RiskLabel
				if sc.Partial {
					risk += "*"
				}
				fmt.Fprintf(w, "%-5d %-20s %-19s %5d %8d %5d  %s\n", sc.ID, sc.StartedAt.Local().Format(time.DateTime),
					risk, sc.Files, sc.Findings, sc.Score, runewidth.Truncate(sc.Target, 60, "..."))
				fmt.Fprintf(w, "      C%d H%d M%d L%d  %s\n", sc.Counts[model.SeverityCritical], sc.Counts[model.SeverityHigh],
					sc.Counts[model.SeverityMedium], sc.Counts[model.SeverityLow], sc.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "History database path")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of scans to show (0: all)")
	return cmd
}
