package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/harun/doctalk/pkg/transcript"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and the current session",
	Long:  `Show the service endpoints in use and the session doctalk will resume by default.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backend: %s\n", a.cfg.Server.BaseURL)
	fmt.Fprintf(out, "Chat: %s\n", a.cfg.ChatURL())
	fmt.Fprintf(out, "Data: %s\n", a.cfg.DataDir)

	id, ok, err := store.Current(cmd.Context())
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "Session: none")
		return nil
	}

	rec, err := store.Session(cmd.Context(), id)
	if errors.Is(err, transcript.ErrNotFound) {
		fmt.Fprintf(out, "Session: %s (removed)\n", id)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Session: %s\n", rec.ID)
	fmt.Fprintf(out, "Document: %s\n", rec.Document)
	fmt.Fprintf(out, "Messages: %d\n", rec.MessageCount)
	fmt.Fprintf(out, "Last active: %s ago\n", formatDuration(time.Since(rec.LastActiveAt)))
	if !rec.HasSubjectData {
		fmt.Fprintln(out, "Document data: gone, upload again to chat")
	}
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
