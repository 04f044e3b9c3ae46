package pools

// Dialer opens physical connections to the broker.
type Dialer interface {
	// Dial opens one connection. The name is reported to the broker where supported.
	Dial(connectionName string) (Connection, error)
}

// Connection is a single physical broker connection.
type Connection interface {
	// CreateChannel opens a channel on this connection. Ackable channels are put in confirm mode.
	CreateChannel(ackable bool) (Channel, error)
	IsOpen() bool
	Close() error
}

// Channel is a multiplexed session over one Connection.
type Channel interface {
	IsOpen() bool
	Close() error
}

// DialerFunc adapts a plain function to the Dialer interface.
type DialerFunc func(connectionName string) (Connection, error)

// Dial calls f(connectionName).
func (f DialerFunc) Dial(connectionName string) (Connection, error) {
	return f(connectionName)
}
