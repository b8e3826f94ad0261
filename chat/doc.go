// Package chat is the outbound side of the bot: posting messages into
// rooms.
//
// The wire-level login flow of the chat network is deliberately out of
// scope here; a Sender is handed an already-authenticated HTTP client (or
// runs in local dry-run mode) and performs a single send attempt per
// message. The Registry guarantees one client per chat server per run,
// created lazily and torn down once.
package chat
