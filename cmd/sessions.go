package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haldis/webchat/internal/config"
	"github.com/haldis/webchat/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored chat transcripts",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		sessions, err := store.List(cmd.Context(), 50)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No stored sessions.")
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("%s  %-14s %3d turns  %s\n",
				s.ID, s.Model, s.TurnCount, s.UpdatedAt.Format(time.DateTime))
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a stored transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		sess, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if sess == nil {
			return fmt.Errorf("session not found: %s", args[0])
		}
		turns, err := store.Turns(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, turn := range turns {
			fmt.Printf("[%s] %s\n", turn.Role, turn.Content)
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return store.Delete(cmd.Context(), args[0])
	},
}

func openSessionStore() (*session.Store, error) {
	dataDir, err := config.GetDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	return session.Open(session.Config{Path: session.DefaultPath(dataDir)})
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}
