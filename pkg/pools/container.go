package pools

import (
	"sync/atomic"

	"github.com/Workiva/go-datastructures/queue"
)

// channelContainer holds the available entries of one population (plain or ackable).
// An entry is queued at most once; Put never blocks.
type channelContainer struct {
	capacity int64 // initial size plus auto scaled entries
	ackable  bool
	channels *queue.Queue
}

func newChannelContainer(ackable bool, capacity uint64) *channelContainer {
	return &channelContainer{
		ackable:  ackable,
		channels: queue.New(int64(capacity)),
	}
}

// put enqueues the entry unless it is already queued. It reports whether the entry is
// available in the container afterwards.
func (cc *channelContainer) put(chanHost *ChannelHost) bool {
	if !chanHost.markQueued() {
		return true
	}

	if err := cc.channels.Put(chanHost); err != nil { // disposed
		chanHost.markTaken()
		return false
	}

	return true
}

// tryTake dequeues one entry without waiting.
func (cc *channelContainer) tryTake() (*ChannelHost, bool) {
	taken := false
	items, err := cc.channels.TakeUntil(func(interface{}) bool {
		if taken {
			return false
		}
		taken = true
		return true
	})
	if err != nil || len(items) == 0 {
		return nil, false
	}

	chanHost, ok := items[0].(*ChannelHost)
	if !ok {
		return nil, false
	}

	chanHost.markTaken()
	return chanHost, true
}

func (cc *channelContainer) grow() {
	atomic.AddInt64(&cc.capacity, 1)
}

func (cc *channelContainer) Capacity() int64 {
	return atomic.LoadInt64(&cc.capacity)
}

func (cc *channelContainer) Len() int64 {
	return cc.channels.Len()
}

// dispose empties the container; later puts fail.
func (cc *channelContainer) dispose() {
	for _, item := range cc.channels.Dispose() {
		if chanHost, ok := item.(*ChannelHost); ok {
			chanHost.markTaken()
		}
	}
}
