package pools

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
)

func newTestScaler(threshold, ceiling uint64) *autoScaler {
	return newAutoScaler(&PoolConfig{
		AutoScale:             true,
		ScaleTriggerMissCount: threshold,
		MaxAutoScaleCount:     ceiling,
	})
}

func TestAutoScalerDisabled(t *testing.T) {
	as := newAutoScaler(&PoolConfig{})

	grown := 0
	for i := 0; i < 10; i++ {
		scaled, err := as.tryScale(as.recordMiss(), func() error {
			grown++
			return nil
		})
		assert.NoError(t, err)
		assert.False(t, scaled)
	}

	assert.Zero(t, grown)
	assert.Equal(t, uint64(10), as.missCount())
	assert.Zero(t, as.scaleEventCount())
}

func TestAutoScalerHysteresis(t *testing.T) {
	as := newTestScaler(3, 10)
	grow := func() error { return nil }

	var scaledAt []uint64
	for i := 0; i < 9; i++ {
		misses := as.recordMiss()
		scaled, err := as.tryScale(misses, grow)
		assert.NoError(t, err)
		if scaled {
			scaledAt = append(scaledAt, misses)
		}
	}

	assert.Equal(t, []uint64{3, 6, 9}, scaledAt)
	assert.Equal(t, uint64(3), as.scaleEventCount())
}

func TestAutoScalerCeiling(t *testing.T) {
	as := newTestScaler(1, 2)

	grown := 0
	for i := 0; i < 5; i++ {
		_, err := as.tryScale(as.recordMiss(), func() error {
			grown++
			return nil
		})
		assert.NoError(t, err)
	}

	assert.Equal(t, 2, grown)
	assert.Equal(t, uint64(2), as.scaleEventCount())
	assert.Equal(t, uint64(5), as.missCount())
}

func TestAutoScalerFailedGrowIsNotCounted(t *testing.T) {
	as := newTestScaler(2, 5)
	errGrow := errors.New("grow failed")

	as.recordMiss()
	scaled, err := as.tryScale(as.recordMiss(), func() error { return errGrow })
	assert.False(t, scaled)
	assert.True(t, errors.Is(err, errGrow))
	assert.Zero(t, as.scaleEventCount())

	// the threshold is still met on the next miss, so the next try grows
	scaled, err = as.tryScale(as.recordMiss(), func() error { return nil })
	assert.True(t, scaled)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), as.scaleEventCount())
}

func TestAutoScalerOneGrowerAtATime(t *testing.T) {
	defer leaktest.Check(t)() // Fail on leaked goroutines.

	as := newTestScaler(1, 100)

	release := make(chan struct{})
	started := make(chan struct{})
	var growing int32

	go func() {
		_, _ = as.tryScale(as.recordMiss(), func() error {
			atomic.AddInt32(&growing, 1)
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	wg := &sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			scaled, err := as.tryScale(as.recordMiss(), func() error {
				atomic.AddInt32(&growing, 1)
				return nil
			})
			assert.NoError(t, err)
			assert.False(t, scaled)
		}()
	}
	wg.Wait()
	close(release)

	assert.Eventually(t, func() bool { return as.scaleEventCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&growing))
}

func TestAutoScalerReset(t *testing.T) {
	as := newTestScaler(1, 5)

	_, _ = as.tryScale(as.recordMiss(), func() error { return nil })
	assert.Equal(t, uint64(1), as.scaleEventCount())

	as.reset()
	assert.Zero(t, as.missCount())
	assert.Zero(t, as.scaleEventCount())

	scaled, err := as.tryScale(as.recordMiss(), func() error { return nil })
	assert.NoError(t, err)
	assert.True(t, scaled)
}
