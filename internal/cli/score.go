package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scoreSessionID string

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Show the document score for a session",
	RunE:  runScore,
}

func init() {
	scoreCmd.Flags().StringVarP(&scoreSessionID, "session", "s", "", "session id (default is the current session)")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.backend()
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := sessionOrCurrent(cmd, store, scoreSessionID)
	if err != nil {
		return err
	}

	score, err := client.Score(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to get score: %s", uploadDetail(err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session: %s\nScore: %.1f\n", id, score)
	return nil
}
