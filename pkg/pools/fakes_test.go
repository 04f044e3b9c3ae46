package pools_test

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/houseofcat/cookedrabbit/pkg/pools"
)

var (
	errDialRefused    = errors.New("dial refused")
	errChannelRefused = errors.New("channel refused")
)

// fakeBroker is an in-memory Dialer that records every connection it opens.
type fakeBroker struct {
	dialLock    *sync.Mutex
	connections []*fakeConnection
	failDialAt  int // dial number that starts failing, -1 never fails
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		dialLock:   &sync.Mutex{},
		failDialAt: -1,
	}
}

func (b *fakeBroker) Dial(connectionName string) (pools.Connection, error) {
	b.dialLock.Lock()
	defer b.dialLock.Unlock()

	if b.failDialAt >= 0 && len(b.connections) >= b.failDialAt {
		return nil, errDialRefused
	}

	conn := &fakeConnection{
		name:     connectionName,
		chanLock: &sync.Mutex{},
	}
	b.connections = append(b.connections, conn)

	return conn, nil
}

func (b *fakeBroker) dialed() []*fakeConnection {
	b.dialLock.Lock()
	defer b.dialLock.Unlock()

	return append([]*fakeConnection(nil), b.connections...)
}

// refuseChannels makes every connection dialed so far fail channel creation.
func (b *fakeBroker) refuseChannels(refuse bool) {
	for _, conn := range b.dialed() {
		conn.refuseChannels(refuse)
	}
}

func (b *fakeBroker) channels() []*fakeChannel {
	var channels []*fakeChannel
	for _, conn := range b.dialed() {
		channels = append(channels, conn.created()...)
	}
	return channels
}

type fakeConnection struct {
	name     string
	closed   int32
	refuse   int32
	chanLock *sync.Mutex
	channels []*fakeChannel
}

func (c *fakeConnection) CreateChannel(ackable bool) (pools.Channel, error) {
	if !c.IsOpen() {
		return nil, pools.ErrConnectionClosed
	}

	if atomic.LoadInt32(&c.refuse) == 1 {
		return nil, errChannelRefused
	}

	channel := &fakeChannel{
		conn:    c,
		ackable: ackable,
	}

	c.chanLock.Lock()
	c.channels = append(c.channels, channel)
	c.chanLock.Unlock()

	return channel, nil
}

func (c *fakeConnection) IsOpen() bool {
	return atomic.LoadInt32(&c.closed) == 0
}

// Close closes the connection and, like a broker, every channel on it.
func (c *fakeConnection) Close() error {
	atomic.StoreInt32(&c.closed, 1)

	for _, channel := range c.created() {
		_ = channel.Close()
	}

	return nil
}

func (c *fakeConnection) refuseChannels(refuse bool) {
	value := int32(0)
	if refuse {
		value = 1
	}
	atomic.StoreInt32(&c.refuse, value)
}

func (c *fakeConnection) created() []*fakeChannel {
	c.chanLock.Lock()
	defer c.chanLock.Unlock()

	return append([]*fakeChannel(nil), c.channels...)
}

type fakeChannel struct {
	conn    *fakeConnection
	ackable bool
	closed  int32
}

func (ch *fakeChannel) IsOpen() bool {
	return atomic.LoadInt32(&ch.closed) == 0 && ch.conn.IsOpen()
}

func (ch *fakeChannel) Close() error {
	atomic.StoreInt32(&ch.closed, 1)
	return nil
}

func testConfig() *pools.PoolConfig {
	return &pools.PoolConfig{
		ApplicationName:       "PoolTests",
		ConnectionCount:       2,
		ChannelCount:          4,
		AckChannelCount:       2,
		EmptyPoolWaitInterval: 20,
	}
}
