package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/harun/doctalk/pkg/chatconn"
	"github.com/harun/doctalk/pkg/conversation"
)

// printer renders conversation events as terminal lines. Listeners run on
// connection goroutines, so every write is serialized.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// message prints one live message. User messages are echoes of what was just
// typed and are not repeated.
func (p *printer) message(msg chatconn.Message) {
	if msg.Origin == chatconn.OriginUser {
		return
	}
	p.printf("%s %s\n", prefix(msg.Origin), msg.Content)
}

func (p *printer) stateChange(c chatconn.StateChange) {
	switch c.To {
	case chatconn.StateOpen:
		p.printf("-- connected (session %s)\n", c.SessionID)
	case chatconn.StateConnecting:
		if c.RetryCount > 0 {
			p.printf("-- reconnecting (attempt %d)\n", c.RetryCount)
		}
	case chatconn.StateFailed:
		p.printf("-- connection failed\n")
	case chatconn.StateClosed:
		if c.From == chatconn.StateOpen {
			p.printf("-- disconnected\n")
		}
	}
}

// groups prints grouped history, user lines included.
func (p *printer) groups(groups []conversation.Group) {
	for _, g := range groups {
		p.printf("%s %s\n", prefix(g.Origin), g.Content)
	}
}

func prefix(origin chatconn.Origin) string {
	switch origin {
	case chatconn.OriginUser:
		return "you>"
	case chatconn.OriginAssistant:
		return "assistant>"
	case chatconn.OriginError:
		return "error>"
	default:
		return "*"
	}
}
