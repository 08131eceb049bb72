package frames

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrProtocol marks frames that could not be decoded or validated.
var ErrProtocol = errors.New("protocol error")

// DefaultNoDataMarkers are phrases the backend uses when a session has no
// indexed document behind it.
var DefaultNoDataMarkers = []string{
	"no resume data found",
	"no document data found",
	"no data available for this session",
}

// Classifier turns raw frames into typed messages.
type Classifier struct {
	markers []string
}

// NewClassifier creates a classifier matching the given no-data markers
// case-insensitively. With no markers the defaults are used.
func NewClassifier(markers ...string) *Classifier {
	if len(markers) == 0 {
		markers = DefaultNoDataMarkers
	}
	normalized := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			normalized = append(normalized, m)
		}
	}
	return &Classifier{markers: normalized}
}

// Classify interprets one inbound frame.
func (c *Classifier) Classify(raw []byte) Classified {
	if err := validateInbound(raw); err != nil {
		return protocolError(err)
	}

	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return protocolError(err)
	}

	switch in.Type {
	case TypeAssistant:
		return Classified{
			Kind:          KindAssistant,
			Content:       in.Content,
			NoSubjectData: c.SignalsNoData(in.Content),
		}
	case TypeError:
		return Classified{
			Kind:          KindError,
			Content:       in.Content,
			NoSubjectData: c.SignalsNoData(in.Content),
		}
	case TypeConnection:
		return Classified{Kind: KindAck, Status: in.Status}
	default:
		return protocolError(fmt.Errorf("unknown frame type %q", in.Type))
	}
}

// SignalsNoData reports whether content contains a no-data marker.
func (c *Classifier) SignalsNoData(content string) bool {
	if content == "" {
		return false
	}
	lower := strings.ToLower(content)
	for _, m := range c.markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// EncodeOutbound serializes a user message for the channel.
func EncodeOutbound(content string) ([]byte, error) {
	data, err := json.Marshal(Outbound{Content: content})
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

func protocolError(err error) Classified {
	return Classified{
		Kind: KindProtocolError,
		Err:  fmt.Errorf("%w: %v", ErrProtocol, err),
	}
}
