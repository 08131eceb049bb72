package conversation

import (
	"strings"

	"github.com/harun/doctalk/pkg/chatconn"
)

// DefaultPageSize is the number of groups shown before paging further back.
const DefaultPageSize = 20

// Group is one rendered bubble of the conversation.
type Group struct {
	Origin  chatconn.Origin
	Content string
	Kind    chatconn.ErrorKind
}

// GroupMessages folds a message log into groups. Consecutive assistant
// chunks are joined with a space and consecutive user lines with a newline.
// Error and system messages always stand alone.
func GroupMessages(msgs []chatconn.Message) []Group {
	var (
		groups []Group
		buf    []string
		origin chatconn.Origin
	)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		sep := "\n"
		if origin == chatconn.OriginAssistant {
			sep = " "
		}
		groups = append(groups, Group{Origin: origin, Content: strings.Join(buf, sep)})
		buf = nil
	}

	for _, msg := range msgs {
		switch msg.Origin {
		case chatconn.OriginAssistant, chatconn.OriginUser:
			if msg.Content == "" {
				continue
			}
			if msg.Origin != origin {
				flush()
				origin = msg.Origin
			}
			buf = append(buf, msg.Content)
		default:
			flush()
			origin = msg.Origin
			groups = append(groups, Group{Origin: msg.Origin, Content: msg.Content, Kind: msg.Kind})
		}
	}
	flush()
	return groups
}

// Page returns the last visible groups. A non-positive visible means pageSize.
func Page(groups []Group, visible, pageSize int) []Group {
	if visible <= 0 {
		visible = pageSize
	}
	if visible >= len(groups) {
		return groups
	}
	return groups[len(groups)-visible:]
}

// NextVisible grows visible by one page, capped at total.
func NextVisible(visible, pageSize, total int) int {
	next := visible + pageSize
	if next > total {
		next = total
	}
	return next
}
