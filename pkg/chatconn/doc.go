// Package chatconn manages the real-time chat channel bound to a document
// session: connecting, classifying inbound frames, reconnecting with
// exponential backoff and guarding sends.
//
// Invariants:
// - At most one channel per manager is Connecting or Open.
// - RetryCount resets to 0 whenever the channel reaches Open.
// - No reconnect is scheduled once the session has no subject data.
// - Connect attempts for one session are at least MinInterval apart.
// - RetryCount never exceeds MaxRetries; exceeding it moves the connection to Failed.
// - Listeners run one at a time, in event order; nothing is delivered after Close.
//
// The state machine is the pure function Transition. Manager feeds it events
// from callers, the transport and the retry timer, then carries out the
// returned effects.
//
// Usage:
//
//	mgr, _ := chatconn.NewManager(chatconn.Config{Dialer: dialer, Binding: binding})
//	defer mgr.Close()
//	unsubscribe := mgr.OnMessage(func(m chatconn.Message) { fmt.Println(m.Content) })
//	defer unsubscribe()
//	_ = mgr.Connect(sessionID)
package chatconn
