package realtime

import "context"

// Conn is one established transport connection. Receive is only called from
// the channel's read loop; Send may be called concurrently with Receive.
type Conn interface {
	Receive(ctx context.Context) (Event, error)
	Send(ctx context.Context, ev Event) error
	Close() error
}

// Dialer opens transport connections for the channel.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}
