// Package conversation is the consumer-facing view of a chat: it fans
// connection events out to any number of subscribers and keeps the
// conversation log that a UI renders.
//
// Invariants:
// - Subscribers see messages in the order the connection produced them.
// - Unsubscribe is idempotent, and a subscriber removed during delivery is not called again.
// - Nothing is delivered after Close.
//
// Usage:
//
//	client, _ := conversation.NewClient(conversation.Config{Conn: mgr})
//	unsubscribe := client.Subscribe(onMessage, onStateChange)
//	defer unsubscribe()
//	_ = client.SendMessage("What are the key skills?")
package conversation
