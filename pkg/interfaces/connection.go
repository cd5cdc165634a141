package interfaces

// Connection is the transport handle of one live session
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// so the broadcast engine can be driven by fake connections in tests
type Connection interface {
	// Send queues an already serialized text frame (thread-safe)
	// FUNCTIONAL DISCOVERY: Broadcasts marshal once and reuse the bytes
	// for every recipient, so the raw form is the primary write path
	Send(data []byte) error

	// Ping sends a transport-level liveness probe
	Ping() error

	// Close closes the connection and releases its resources.
	// Calling Close more than once is safe.
	Close() error
}
