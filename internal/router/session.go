package router

// Session is the router's view of one open transport connection. The
// transport supplies a stable unique id for the connection's lifetime and a
// non-blocking way to enqueue an outbound frame.
type Session interface {
	ID() string
	Send(frame []byte) error
}

// Per-connection record binding a transport identity to a room and a display
// name. Both bindings are empty until a join event is processed; events other
// than join are dropped while they are.
//
// A connState is only ever touched by its own connection's handling
// goroutine, so the fields need no lock of their own.
type connState struct {
	sess     Session
	roomID   string
	username string
}
