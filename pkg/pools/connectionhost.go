package pools

import (
	"sync"
)

// ConnectionHost is one connection slot of the ConnectionPool.
type ConnectionHost struct {
	ConnectionID   uint64
	connectionName string
	connection     Connection
	connLock       *sync.RWMutex
}

// NewConnectionHost dials a connection for the given slot.
func NewConnectionHost(dialer Dialer, connectionName string, connectionID uint64) (*ConnectionHost, error) {

	connHost := &ConnectionHost{
		ConnectionID:   connectionID,
		connectionName: connectionName,
		connLock:       &sync.RWMutex{},
	}

	if err := connHost.Connect(dialer); err != nil {
		return nil, err
	}

	return connHost, nil
}

// Connect dials (or re-dials) the slot once if it isn't open.
func (ch *ConnectionHost) Connect(dialer Dialer) error {

	// Compare, Lock, Recompare Strategy
	if ch.IsOpen() {
		return nil
	}

	ch.connLock.Lock() // Block all but one.
	defer ch.connLock.Unlock()

	// Recompare, check if an operation is still necessary after acquiring lock.
	if ch.connection != nil && ch.connection.IsOpen() {
		return nil
	}

	conn, err := dialer.Dial(ch.connectionName)
	if err != nil {
		return err
	}

	ch.connection = conn
	return nil
}

// Connection returns the current broker connection of this slot.
func (ch *ConnectionHost) Connection() Connection {
	ch.connLock.RLock()
	defer ch.connLock.RUnlock()

	return ch.connection
}

// Name is the connection name reported to the broker.
func (ch *ConnectionHost) Name() string {
	return ch.connectionName
}

// IsOpen reports whether the slot holds an open connection.
func (ch *ConnectionHost) IsOpen() bool {
	conn := ch.Connection()
	return conn != nil && conn.IsOpen()
}

// CreateChannel opens a channel on this slot's connection.
func (ch *ConnectionHost) CreateChannel(ackable bool) (Channel, error) {
	conn := ch.Connection()
	if conn == nil || !conn.IsOpen() {
		return nil, ErrConnectionClosed
	}

	return conn.CreateChannel(ackable)
}

// Close closes the underlying connection, safe to call more than once.
func (ch *ConnectionHost) Close() error {
	conn := ch.Connection()
	if conn == nil || !conn.IsOpen() {
		return nil
	}

	return conn.Close()
}
