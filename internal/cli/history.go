package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/harun/doctalk/pkg/conversation"
	"github.com/spf13/cobra"
)

var (
	historySessionID string
	historySearch    string
	historyDelete    string
	historyPrune     time.Duration
	historyLimit     int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded sessions and conversations",
	Long: `Show the local transcript.

Without flags the most recent sessions are listed. With --session the
conversation of that session is printed, and with --search messages
containing the text are listed. --delete removes a session and its messages, and --prune removes every
session idle for longer than the given duration.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historySessionID, "session", "s", "", "print the conversation of a session")
	historyCmd.Flags().StringVarP(&historySearch, "search", "q", "", "search messages for text")
	historyCmd.Flags().StringVar(&historyDelete, "delete", "", "delete a session from the transcript")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "delete sessions idle for longer than this, e.g. 720h")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of sessions or search hits")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case historyPrune > 0:
		n, err := store.Prune(ctx, time.Now().Add(-historyPrune))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pruned %d sessions\n", n)

	case historyDelete != "":
		if err := store.DeleteSession(ctx, historyDelete); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted session %s\n", historyDelete)

	case historySearch != "":
		hits, err := store.Search(ctx, historySearch, historyLimit)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Fprintln(out, "No matching messages")
			return nil
		}
		for _, hit := range hits {
			fmt.Fprintf(out, "[%s] %s %s\n", hit.SessionID, prefix(hit.Message.Origin), hit.Message.Content)
		}

	case historySessionID != "":
		msgs, err := store.Messages(ctx, historySessionID)
		if err != nil {
			return err
		}
		newPrinter(out).groups(conversation.GroupMessages(msgs))

	default:
		sessions, err := store.Sessions(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions recorded")
			return nil
		}
		current, _, err := store.Current(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SESSION\tDOCUMENT\tMESSAGES\tLAST ACTIVE\tDATA")
		for _, s := range sessions {
			id := s.ID
			if id == current {
				id += " *"
			}
			data := "yes"
			if !s.HasSubjectData {
				data = "no"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", id, s.Document, s.MessageCount, s.LastActiveAt.Format(time.DateTime), data)
		}
		return tw.Flush()
	}
	return nil
}
