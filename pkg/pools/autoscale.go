package pools

import (
	"sync/atomic"
)

// autoScaler grows a container by one channel each time ScaleTriggerMissCount misses have
// accumulated since the previous growth, up to MaxAutoScaleCount channels in total.
type autoScaler struct {
	misses        uint64
	scaleEvents   uint64
	lastScaleMiss uint64 // miss count at the last growth
	threshold     uint64
	ceiling       uint64
	scaling       int32
	enabled       bool
}

func newAutoScaler(config *PoolConfig) *autoScaler {
	return &autoScaler{
		enabled:   config.AutoScale,
		threshold: config.ScaleTriggerMissCount,
		ceiling:   config.MaxAutoScaleCount,
	}
}

// recordMiss counts one empty-container checkout and returns the new total.
func (as *autoScaler) recordMiss() uint64 {
	return atomic.AddUint64(&as.misses, 1)
}

// tryScale calls grow when the hysteresis threshold is met and the ceiling isn't reached.
// Only one caller grows at a time; the others keep waiting. A failed grow is not a scale event.
func (as *autoScaler) tryScale(misses uint64, grow func() error) (bool, error) {
	if !as.enabled {
		return false, nil
	}

	if !atomic.CompareAndSwapInt32(&as.scaling, 0, 1) {
		return false, nil
	}
	defer atomic.StoreInt32(&as.scaling, 0)

	last := atomic.LoadUint64(&as.lastScaleMiss)
	if misses <= last || misses-last < as.threshold {
		return false, nil
	}

	if atomic.LoadUint64(&as.scaleEvents) >= as.ceiling {
		return false, nil
	}

	if err := grow(); err != nil {
		return false, err
	}

	atomic.StoreUint64(&as.lastScaleMiss, atomic.LoadUint64(&as.misses))
	atomic.AddUint64(&as.scaleEvents, 1)

	return true, nil
}

func (as *autoScaler) reset() {
	atomic.StoreUint64(&as.misses, 0)
	atomic.StoreUint64(&as.scaleEvents, 0)
	atomic.StoreUint64(&as.lastScaleMiss, 0)
}

func (as *autoScaler) missCount() uint64 {
	return atomic.LoadUint64(&as.misses)
}

func (as *autoScaler) scaleEventCount() uint64 {
	return atomic.LoadUint64(&as.scaleEvents)
}
