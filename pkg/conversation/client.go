package conversation

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/doctalk/pkg/chatconn"
	"github.com/rs/zerolog"
)

// Conn is the connection the client consumes; *chatconn.Manager implements it.
type Conn interface {
	Connect(sessionID string) error
	Send(content string) error
	State() chatconn.State
	OnStateChange(fn func(chatconn.StateChange)) func()
	OnMessage(fn func(chatconn.Message)) func()
}

// Sink persists messages as they enter the log.
type Sink interface {
	Append(msg chatconn.Message) error
}

// Config holds client configuration
type Config struct {
	Conn     Conn
	Sink     Sink
	PageSize int
	Logger   zerolog.Logger
	Now      func() time.Time
}

type subscriber struct {
	onMessage     func(chatconn.Message)
	onStateChange func(chatconn.StateChange)
	active        atomic.Bool
}

// Client is the consumer API over a connection.
type Client struct {
	conn     Conn
	sink     Sink
	pageSize int
	logger   zerolog.Logger
	now      func() time.Time

	mu          sync.RWMutex
	log         []chatconn.Message
	subscribers []*subscriber
	closed      bool

	// pending deliveries run one at a time, in order, on whichever
	// goroutine finds the queue idle.
	pending    []func()
	delivering bool

	unsubscribe []func()
	closeOnce   sync.Once
}

// NewClient subscribes to conn and starts recording the conversation.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Conn == nil {
		return nil, errors.New("connection is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Client{
		conn:     cfg.Conn,
		sink:     cfg.Sink,
		pageSize: cfg.PageSize,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	c.unsubscribe = []func(){
		cfg.Conn.OnMessage(c.handleMessage),
		cfg.Conn.OnStateChange(c.handleStateChange),
	}
	return c, nil
}

// Subscribe registers callbacks for messages and state changes. Either may
// be nil. The returned func unsubscribes and may be called any number of times.
func (c *Client) Subscribe(onMessage func(chatconn.Message), onStateChange func(chatconn.StateChange)) func() {
	s := &subscriber{onMessage: onMessage, onStateChange: onStateChange}
	s.active.Store(true)

	c.mu.Lock()
	c.subscribers = append(c.subscribers, s)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.active.Store(false)
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, e := range c.subscribers {
				if e == s {
					c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)
					break
				}
			}
		})
	}
}

// Connect binds the client's connection to sessionID.
func (c *Client) Connect(sessionID string) error {
	return c.conn.Connect(sessionID)
}

// SendMessage sends a user message over the connection.
func (c *Client) SendMessage(content string) error {
	if err := c.conn.Send(content); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// ConnectionState returns the current connection state
func (c *Client) ConnectionState() chatconn.State {
	return c.conn.State()
}

// Notice adds a locally produced message, such as an upload result, to the
// log and delivers it to subscribers.
func (c *Client) Notice(origin chatconn.Origin, content string) {
	c.handleMessage(chatconn.Message{
		Origin:  origin,
		Content: content,
		At:      c.now(),
	})
}

// Messages returns a copy of the conversation log.
func (c *Client) Messages() []chatconn.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]chatconn.Message, len(c.log))
	copy(out, c.log)
	return out
}

// Grouped returns the log folded into display groups.
func (c *Client) Grouped() []Group {
	return GroupMessages(c.Messages())
}

// Page returns the last visible groups; zero means one page.
func (c *Client) Page(visible int) []Group {
	return Page(c.Grouped(), visible, c.pageSize)
}

// PageSize returns the configured page size
func (c *Client) PageSize() int {
	return c.pageSize
}

// Close detaches from the connection. The connection itself stays open.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		for _, unsubscribe := range c.unsubscribe {
			unsubscribe()
		}
		c.mu.Lock()
		c.closed = true
		c.subscribers = nil
		c.mu.Unlock()
	})
	return nil
}

func (c *Client) handleMessage(msg chatconn.Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.log = append(c.log, msg)
	c.enqueue(func() {
		if c.sink != nil {
			if err := c.sink.Append(msg); err != nil {
				c.logger.Warn().Err(err).Str("session_id", msg.SessionID).Msg("Failed to persist message")
			}
		}
		for _, s := range c.subscribersSnapshot() {
			if s.active.Load() && s.onMessage != nil {
				s.onMessage(msg)
			}
		}
	})
}

func (c *Client) handleStateChange(change chatconn.StateChange) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.enqueue(func() {
		for _, s := range c.subscribersSnapshot() {
			if s.active.Load() && s.onStateChange != nil {
				s.onStateChange(change)
			}
		}
	})
}

// enqueue queues fn and drains the queue unless another goroutine already
// is. Called with c.mu held; returns with it released.
func (c *Client) enqueue(fn func()) {
	c.pending = append(c.pending, fn)
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	for len(c.pending) > 0 {
		next := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		next()
		c.mu.Lock()
	}
	c.delivering = false
	c.mu.Unlock()
}

func (c *Client) subscribersSnapshot() []*subscriber {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot()
}

// snapshot copies the subscriber list. Called with c.mu held.
func (c *Client) snapshot() []*subscriber {
	subs := make([]*subscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	return subs
}
