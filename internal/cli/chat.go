package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harun/doctalk/pkg/conversation"
	"github.com/harun/doctalk/pkg/docwatch"
	"github.com/spf13/cobra"
)

var (
	chatFile      string
	chatSessionID string
	chatWatch     bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Upload a document and chat about it",
	Long: `Upload a document and open a live chat session about it.

With --watch the document is uploaded again whenever it changes on disk and
the chat moves to the new session. With --session and no --file an earlier
session is resumed.

Type a message and press Enter to send it. Commands:
  /more   show earlier messages
  /score  show the document score
  /quit   leave the chat`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatFile, "file", "f", "", "document to upload (.pdf, .docx, .doc, .txt)")
	chatCmd.Flags().StringVarP(&chatSessionID, "session", "s", "", "session id to upload under or resume")
	chatCmd.Flags().BoolVarP(&chatWatch, "watch", "w", false, "re-upload the document when it changes")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	if chatFile == "" && chatSessionID == "" {
		return fmt.Errorf("either --file or --session is required")
	}
	if chatWatch && chatFile == "" {
		return fmt.Errorf("--watch requires --file")
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := a.backend()
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	dialer, err := a.dialer()
	if err != nil {
		return err
	}

	if addr := a.cfg.Metrics.Addr; addr != "" {
		ms, err := startMetricsServer(addr, a.component("metrics"))
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer ms.Shutdown()
	}

	cs, err := newChatSession(chatSessionConfig{
		Backend:       client,
		Store:         store,
		Dialer:        dialer,
		Policy:        a.retryPolicy(),
		WarnAfter:     a.cfg.Retry.RateLimitWarnThreshold,
		NoDataMarkers: a.cfg.Classifier.NoDataMarkers,
		PageSize:      a.cfg.Chat.PageSize,
		Logger:        a.component("chat"),
	})
	if err != nil {
		return err
	}
	defer cs.Close()

	p := newPrinter(cmd.OutOrStdout())
	unsubscribe := cs.client.Subscribe(p.message, p.stateChange)
	defer unsubscribe()

	if chatFile != "" {
		if _, err := cs.start(ctx, chatFile, chatSessionID); err != nil {
			return err
		}
	} else {
		history, err := store.Messages(ctx, chatSessionID)
		if err != nil {
			return err
		}
		groups := conversation.GroupMessages(history)
		p.groups(conversation.Page(groups, a.cfg.Chat.PageSize, a.cfg.Chat.PageSize))
		if _, err := cs.resume(ctx, chatSessionID); err != nil {
			return err
		}
	}

	if chatWatch {
		w, err := docwatch.New(docwatch.Config{
			Path:               chatFile,
			StabilityThreshold: time.Duration(a.cfg.Upload.WatchDebounceMs) * time.Millisecond,
			OnChange: func(path string) error {
				p.printf("-- %s changed, uploading again\n", path)
				_, err := cs.start(ctx, path, "")
				return err
			},
			Logger: a.component("docwatch"),
		})
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
	}

	p.printf("Type a message and press Enter. /quit leaves the chat.\n")
	return chatLoop(ctx, cmd.InOrStdin(), cs, p)
}

// chatLoop sends each input line until the input ends, /quit is typed or ctx
// is done.
func chatLoop(ctx context.Context, in io.Reader, cs *chatSession, p *printer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	visible := cs.client.PageSize()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
			case "/quit", "/exit":
				return nil
			case "/more":
				groups := cs.client.Grouped()
				visible = conversation.NextVisible(visible, cs.client.PageSize(), len(groups))
				p.groups(conversation.Page(groups, visible, cs.client.PageSize()))
			case "/score":
				score, err := cs.score(ctx)
				if err != nil {
					p.printf("error> %v\n", err)
					continue
				}
				p.printf("* Score: %.1f\n", score)
			default:
				if err := cs.client.SendMessage(line); err != nil {
					p.printf("error> %v\n", err)
				}
			}
		}
	}
}
