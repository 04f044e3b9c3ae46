package pools

import (
	"sync"
	"sync/atomic"

	"github.com/streadway/amqp"
)

// ChannelHost is a pooled channel entry. ID never changes, the underlying Channel can be
// replaced in place when the entry is repaired.
type ChannelHost struct {
	ID           uint64
	Ackable      bool
	connectionID uint64
	channel      Channel
	queued       int32 // 1 while the entry sits in its container
	chanLock     *sync.RWMutex
}

func newChannelHost(id uint64, ackable bool, connectionID uint64, channel Channel) *ChannelHost {
	return &ChannelHost{
		ID:           id,
		Ackable:      ackable,
		connectionID: connectionID,
		channel:      channel,
		chanLock:     &sync.RWMutex{},
	}
}

// Channel returns the current channel handle.
func (ch *ChannelHost) Channel() Channel {
	ch.chanLock.RLock()
	defer ch.chanLock.RUnlock()

	return ch.channel
}

// AMQPChannel returns the amqp.Channel when the pool dials RabbitMQ with the AMQPDialer, nil otherwise.
func (ch *ChannelHost) AMQPChannel() *amqp.Channel {
	if amqpChan, ok := ch.Channel().(*AMQPChannel); ok {
		return amqpChan.Channel
	}

	return nil
}

// ConnectionID is the slot of the connection the current handle was created on.
func (ch *ChannelHost) ConnectionID() uint64 {
	ch.chanLock.RLock()
	defer ch.chanLock.RUnlock()

	return ch.connectionID
}

// IsOpen reports whether the current handle is usable.
func (ch *ChannelHost) IsOpen() bool {
	channel := ch.Channel()
	return channel != nil && channel.IsOpen()
}

// Close allows for manual close of the channel kept internally.
func (ch *ChannelHost) Close() error {
	channel := ch.Channel()
	if channel == nil {
		return nil
	}

	return channel.Close()
}

// replace swaps in a new handle and returns the previous one.
func (ch *ChannelHost) replace(channel Channel, connectionID uint64) Channel {
	ch.chanLock.Lock()
	defer ch.chanLock.Unlock()

	previous := ch.channel
	ch.channel = channel
	ch.connectionID = connectionID

	return previous
}

func (ch *ChannelHost) markQueued() bool {
	return atomic.CompareAndSwapInt32(&ch.queued, 0, 1)
}

func (ch *ChannelHost) markTaken() {
	atomic.StoreInt32(&ch.queued, 0)
}
