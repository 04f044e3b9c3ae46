package pools

import (
	"errors"

	"github.com/streadway/amqp"
)

var (
	// ErrConnectionClosed is returned when a channel is requested from a closed connection.
	// you can check for this error with errors.Is
	ErrConnectionClosed = errors.New("connection is already closed")

	// ErrConnectionPoolClosed is returned when a connection pool shutdown has been triggered.
	ErrConnectionPoolClosed = errors.New("connection pool closed")

	// ErrConnectionPoolNotInitialized is returned when a connection is requested before Initialize.
	ErrConnectionPoolNotInitialized = errors.New("connection pool has not been initialized")

	// ErrInitialization wraps any failure to open the connections or channels of a pool.
	ErrInitialization = errors.New("pool initialization failed")

	// ErrChannelPoolNotInitialized is returned when a channel is requested before Initialize.
	ErrChannelPoolNotInitialized = errors.New("channel pool has not been initialized")

	// ErrChannelPoolClosed is returned when the channel pool has been shutdown.
	ErrChannelPoolClosed = errors.New("channel pool has been shutdown")

	// ErrChannelPoolExhausted is returned when a checkout used up MaxWaitRetryCount waits on an empty pool.
	ErrChannelPoolExhausted = errors.New("channel pool exhausted")

	// ErrChannelRepairFailed is returned when a dead channel could not be replaced during checkout.
	ErrChannelRepairFailed = errors.New("channel repair failed")

	// ErrChannelClosed is returned by a Channel that has already been closed.
	ErrChannelClosed = errors.New("channel is already closed")

	// ErrInvalidConfig wraps every PoolConfig validation failure.
	ErrInvalidConfig = errors.New("invalid pool config")
)

// IsChannelDeadError reports whether err means the channel it came from can't be used again
// and should be flagged with FlagChannel.
func IsChannelDeadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, amqp.ErrClosed) || errors.Is(err, ErrChannelClosed) || errors.Is(err, ErrConnectionClosed) {
		return true
	}

	// Every channel exception (soft or hard) closes the channel it was raised on.
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr)
}
