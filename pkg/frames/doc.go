// Package frames decodes and classifies frames exchanged over the chat channel.
//
// Inbound frames are JSON envelopes with a "type" discriminator:
//
//	{"type": "assistant", "content": "..."}
//	{"type": "error", "content": "..."}
//	{"type": "connection", "status": "connected"}
//
// Anything that does not parse or does not match the envelope schema is
// classified as KindProtocolError. Classification never touches connection
// state; callers decide what to do with the result.
package frames
