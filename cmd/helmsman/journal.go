package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahul/helmsman/internal/gateway"
	"github.com/rahul/helmsman/internal/store"
)

var (
	journalChat  string
	journalLimit int
	forgetChat   string
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recently executed actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := store.NewHistoryStore(cfg.Memory.Path)
		if err != nil {
			return err
		}
		defer h.Close()

		entries, err := h.Journal(cmd.Context(), journalChat, journalLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			status := "ok"
			if !e.Succeeded {
				status = e.ErrorKind
			}
			fmt.Fprintf(out, "%s  %-8s  %-8s  %6dms  %-22s %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), shortPlan(e.PlanID), e.Kind, e.DurationMs, status, e.Action)
		}
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Clear the conversation history of a chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := store.NewHistoryStore(cfg.Memory.Path)
		if err != nil {
			return err
		}
		defer h.Close()
		return h.ClearHistory(cmd.Context(), forgetChat)
	},
}

func shortPlan(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	journalCmd.Flags().StringVar(&journalChat, "chat", gateway.ConsoleChatID, "chat to show")
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "number of entries")
	forgetCmd.Flags().StringVar(&forgetChat, "chat", gateway.ConsoleChatID, "chat to clear")
	rootCmd.AddCommand(journalCmd, forgetCmd)
}
