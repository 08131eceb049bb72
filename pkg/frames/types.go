package frames

// Frame type discriminators
const (
	TypeAssistant  = "assistant"
	TypeError      = "error"
	TypeConnection = "connection"
)

// Kind is the classified meaning of an inbound frame.
type Kind string

const (
	KindAssistant     Kind = "assistant"
	KindError         Kind = "error"
	KindAck           Kind = "ack"
	KindProtocolError Kind = "protocol_error"
)

// Inbound is the wire shape of a server frame.
type Inbound struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Outbound is the wire shape of a client frame.
type Outbound struct {
	Content string `json:"content"`
}

// Classified is the result of classifying one inbound frame.
type Classified struct {
	Kind    Kind
	Content string
	Status  string

	// NoSubjectData is set when the content says the server holds no
	// document data for the session.
	NoSubjectData bool

	// Err explains a KindProtocolError.
	Err error
}

// IsProtocolError reports whether the frame could not be understood.
func (c Classified) IsProtocolError() bool {
	return c.Kind == KindProtocolError
}
