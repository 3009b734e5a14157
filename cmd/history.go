package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"volley/internal/storage"
	"volley/internal/tui/styles"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and prune stored test runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	Args:  cobra.NoArgs,
	RunE: withHistory(func(cmd *cobra.Command, args []string, store storage.HistoryStore) error {
		items, err := store.List()
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No test history.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), historyTable(items))
		return nil
	}),
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one stored run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: withHistory(func(cmd *cobra.Command, args []string, store storage.HistoryStore) error {
		item, err := store.Get(args[0])
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(item, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	}),
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one stored run",
	Args:  cobra.ExactArgs(1),
	RunE: withHistory(func(cmd *cobra.Command, args []string, store storage.HistoryStore) error {
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Test history deleted")
		return nil
	}),
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored runs",
	Args:  cobra.NoArgs,
	RunE: withHistory(func(cmd *cobra.Command, args []string, store storage.HistoryStore) error {
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All test history cleared")
		return nil
	}),
}

func init() {
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyClearCmd)
}

func withHistory(fn func(*cobra.Command, []string, storage.HistoryStore) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		defer env.close()

		store, err := env.openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		return fn(cmd, args, store)
	}
}

func historyTable(items []storage.HistoryItem) string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			it.ID,
			it.Timestamp.Local().Format("2006-01-02 15:04:05"),
			it.State,
			it.Config.Method + " " + it.Config.URL,
			strconv.Itoa(it.Config.ConcurrentUsers),
			fmt.Sprintf("%d/%d", it.Stats.TotalRequests, it.Config.TotalRequests),
			fmt.Sprintf("%.1f%%", it.Stats.SuccessRate),
			fmt.Sprintf("%.1f", it.Stats.AvgResponseTime),
			fmt.Sprintf("%.2fs", it.Duration),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.ColorBorder)).
		Headers("ID", "WHEN", "STATE", "TARGET", "USERS", "DONE", "OK", "AVG MS", "TOOK").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Active.Padding(0, 1)
			}
			return styles.Text.Padding(0, 1)
		}).
		String()
}
