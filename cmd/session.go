package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/shopbot/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or repair stored conversation states",
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <user>",
	Short: "Print the stored state of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore(cfg.Session)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		state, found, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("reading state: %w", err)
		}
		if !found {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: no state (starts at %s)\n", args[0], session.StateStart)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], state)
		return nil
	},
}

var sessionSetCmd = &cobra.Command{
	Use:   "set <user> <state>",
	Short: "Overwrite the stored state of a user",
	Long:  fmt.Sprintf("Overwrite the stored state of a user. Valid states: %v.", session.States),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := session.ParseState(args[1])
		if err != nil {
			return err
		}
		store, err := openSessionStore(cfg.Session)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.Set(cmd.Context(), args[0], state); err != nil {
			return fmt.Errorf("writing state: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], state)
		return nil
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset <user>",
	Short: "Forget the stored state so the user starts over",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore(cfg.Session)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("deleting state: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: reset\n", args[0])
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionGetCmd, sessionSetCmd, sessionResetCmd)
	rootCmd.AddCommand(sessionCmd)
}
