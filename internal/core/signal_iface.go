package core

// Frame is a raw serialized event payload.
type Frame []byte

// SignalConnection abstracts the event transport of one client.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend never blocks; a full buffer returns an error.
	TrySend(Frame) error
	Close()
}
