package pools

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ChannelPool houses the pools of plain and ackable channels, backed by a ConnectionPool.
type ChannelPool struct {
	channelID      uint64
	closed         int32
	Config         PoolConfig
	connectionPool *ConnectionPool
	state          atomic.Value // *channelPoolState, nil while uninitialized
	scaler         *autoScaler
	emptyPoolWait  time.Duration
	poolLock       *sync.Mutex
	reporter       *errorReporter
	logger         zerolog.Logger
}

// PoolStats is a point in time view of a ChannelPool.
type PoolStats struct {
	ChannelCount        int64 // plain channels available
	AckChannelCount     int64 // ackable channels available
	ChannelCapacity     int64
	AckChannelCapacity  int64
	FlaggedChannelCount int
	MissCount           uint64
	ScaleEventCount     uint64
}

type channelPoolState struct {
	channels    *channelContainer
	ackChannels *channelContainer
	flagged     *flaggedChannels
	registry    *channelRegistry
	done        chan struct{}
}

func newChannelPoolState(config *PoolConfig) *channelPoolState {
	return &channelPoolState{
		channels:    newChannelContainer(false, config.ChannelCount),
		ackChannels: newChannelContainer(true, config.AckChannelCount),
		flagged:     newFlaggedChannels(),
		registry:    newChannelRegistry(),
		done:        make(chan struct{}),
	}
}

func (s *channelPoolState) container(ackable bool) *channelContainer {
	if ackable {
		return s.ackChannels
	}
	return s.channels
}

// NewChannelPool creates hosting structure for the ChannelPool.
// A nil connPool is replaced by a ConnectionPool dialing RabbitMQ with config.
func NewChannelPool(
	config *PoolConfig,
	connPool *ConnectionPool,
	initializeNow bool) (*ChannelPool, error) {

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if connPool == nil {
		var err error // If connPool is nil, create one here.
		connPool, err = NewConnectionPool(config, nil)
		if err != nil {
			return nil, err
		}
	}

	logger := connPool.logger.With().Str("component", "channelpool").Logger()

	cp := &ChannelPool{
		Config:         *config,
		connectionPool: connPool,
		scaler:         newAutoScaler(config),
		emptyPoolWait:  config.emptyPoolWait(),
		poolLock:       &sync.Mutex{},
		logger:         logger,
		reporter: &errorReporter{
			errorHandler:         connPool.reporter.errorHandler,
			logger:               logger,
			sleepOnErrorInterval: config.sleepOnError(),
		},
	}
	cp.state.Store((*channelPoolState)(nil))

	if initializeNow {
		if err := cp.Initialize(); err != nil {
			return nil, err
		}
	}

	return cp, nil
}

// Initialize opens the connections (or reopens closed ones) and creates ChannelCount plain and
// AckChannelCount ackable channels. On failure everything it created is closed. Resets auto scaling.
func (cp *ChannelPool) Initialize() error {
	cp.poolLock.Lock()
	defer cp.poolLock.Unlock()

	if cp.loadState() != nil {
		return nil
	}

	openedConnections := false
	if !cp.connectionPool.IsInitialized() {
		if err := cp.connectionPool.Initialize(); err != nil {
			return err
		}
		openedConnections = true
	} else if err := cp.connectionPool.ReopenConnections(); err != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	state := newChannelPoolState(&cp.Config)

	err := cp.fillContainer(state, state.channels, cp.Config.ChannelCount)
	if err == nil {
		err = cp.fillContainer(state, state.ackChannels, cp.Config.AckChannelCount)
	}

	if err != nil {
		state.channels.dispose()
		state.ackChannels.dispose()
		closeChannelHosts(state.registry.all())

		if openedConnections {
			cp.connectionPool.Shutdown()
		}

		return err
	}

	cp.scaler.reset()
	atomic.StoreInt32(&cp.closed, 0)
	cp.state.Store(state)

	cp.logger.Debug().
		Uint64("channels", cp.Config.ChannelCount).
		Uint64("ackChannels", cp.Config.AckChannelCount).
		Msg("channel pool initialized")

	return nil
}

func (cp *ChannelPool) fillContainer(state *channelPoolState, container *channelContainer, count uint64) error {
	for i := uint64(0); i < count; i++ {
		if _, err := cp.createChannelHost(state, container); err != nil {
			return fmt.Errorf("%w: %w", ErrInitialization, err)
		}
	}

	return nil
}

// createChannelHost creates a new tracked entry with a fresh id and queues it in container.
func (cp *ChannelPool) createChannelHost(state *channelPoolState, container *channelContainer) (*ChannelHost, error) {
	channel, connectionID, err := cp.createChannel(container.ackable)
	if err != nil {
		return nil, err
	}

	chanHost := newChannelHost(atomic.AddUint64(&cp.channelID, 1)-1, container.ackable, connectionID, channel)
	state.registry.add(chanHost)
	container.grow()

	if !container.put(chanHost) { // raced with a shutdown
		_ = channel.Close()
		return nil, ErrChannelPoolClosed
	}

	return chanHost, nil
}

// createChannel opens a channel on the next round robin connection.
func (cp *ChannelPool) createChannel(ackable bool) (Channel, uint64, error) {
	connHost, err := cp.connectionPool.GetConnection()
	if err != nil {
		return nil, 0, err
	}

	channel, err := connHost.CreateChannel(ackable)
	if err != nil {
		return nil, 0, fmt.Errorf("creating channel on connection %d: %w", connHost.ConnectionID, err)
	}

	return channel, connHost.ConnectionID, nil
}

func (cp *ChannelPool) loadState() *channelPoolState {
	return cp.state.Load().(*channelPoolState)
}

func (cp *ChannelPool) currentState() (*channelPoolState, error) {
	if state := cp.loadState(); state != nil {
		return state, nil
	}

	if atomic.LoadInt32(&cp.closed) == 1 {
		return nil, ErrChannelPoolClosed
	}

	return nil, ErrChannelPoolNotInitialized
}

// IsInitialized reports whether channels can be checked out.
func (cp *ChannelPool) IsInitialized() bool {
	return cp.loadState() != nil
}

// GetChannel checks out a plain channel. See getChannel for the waiting behavior.
func (cp *ChannelPool) GetChannel(ctx context.Context) (*ChannelHost, error) {
	return cp.getChannel(ctx, false)
}

// GetAckableChannel checks out a channel in confirm mode.
func (cp *ChannelPool) GetAckableChannel(ctx context.Context) (*ChannelHost, error) {
	return cp.getChannel(ctx, true)
}

// getChannel takes an entry from the container. On an empty container it counts a miss,
// lets the auto scaler add a channel, or waits EmptyPoolWaitInterval before trying again.
// Waiting stops on ctx, on Shutdown, or after MaxWaitRetryCount waits.
//
// Unless ExclusiveCheckout is set the entry is put straight back in the container and
// the caller holds a shared borrow: other callers may be handed the same entry before
// it's returned.
func (cp *ChannelPool) getChannel(ctx context.Context, ackable bool) (*ChannelHost, error) {
	waits := uint32(0)

	for {
		state, err := cp.currentState()
		if err != nil {
			return nil, err
		}

		container := state.container(ackable)

		if chanHost, ok := container.tryTake(); ok {
			return cp.checkout(state, container, chanHost)
		}

		misses := cp.scaler.recordMiss()
		scaled, err := cp.scaler.tryScale(misses, func() error {
			chanHost, err := cp.createChannelHost(state, container)
			if err != nil {
				return err
			}

			cp.logger.Debug().
				Uint64("channel", chanHost.ID).
				Bool("ackable", ackable).
				Int64("capacity", container.Capacity()).
				Msg("channel pool scaled up")
			return nil
		})
		if err != nil {
			cp.reporter.handleError(err, "auto scaling channel pool failed")
		}

		if scaled {
			continue
		}

		if cp.Config.MaxWaitRetryCount > 0 && waits >= cp.Config.MaxWaitRetryCount {
			return nil, ErrChannelPoolExhausted
		}
		waits++

		if err := cp.waitOnEmptyPool(ctx, state.done); err != nil {
			return nil, err
		}
	}
}

func (cp *ChannelPool) checkout(state *channelPoolState, container *channelContainer, chanHost *ChannelHost) (*ChannelHost, error) {

	// Between these two states we do our best to determine that a channel is dead in the various
	// lifecycles.
	if state.flagged.isFlagged(chanHost.ID) || !chanHost.IsOpen() {

		if err := cp.repairChannelHost(state, chanHost); err != nil {
			container.put(chanHost) // still dead, the next checkout tries again
			return nil, err
		}

		if cp.loadState() != state { // shutdown while repairing
			_ = chanHost.Close()
			return nil, ErrChannelPoolClosed
		}
	}

	if !cp.Config.ExclusiveCheckout {
		// Puts the channel back in the queue while also returning a pointer to the caller.
		// This creates a Round Robin on Channels and their resources.
		container.put(chanHost)
	}

	return chanHost, nil
}

// repairChannelHost gives the entry a new channel from the next connection, keeping its id.
func (cp *ChannelPool) repairChannelHost(state *channelPoolState, chanHost *ChannelHost) error {
	channel, connectionID, err := cp.createChannel(chanHost.Ackable)
	if err != nil {
		cp.logger.Warn().Err(err).Uint64("channel", chanHost.ID).Msg("channel repair failed")
		return fmt.Errorf("%w: channel %d: %w", ErrChannelRepairFailed, chanHost.ID, err)
	}

	previous := chanHost.replace(channel, connectionID)
	state.flagged.unflag(chanHost.ID)

	if previous != nil {
		if err := previous.Close(); err != nil {
			cp.logger.Debug().Err(err).Uint64("channel", chanHost.ID).Msg("closing replaced channel failed")
		}
	}

	cp.logger.Debug().
		Uint64("channel", chanHost.ID).
		Uint64("connection", connectionID).
		Msg("channel repaired")

	return nil
}

func (cp *ChannelPool) waitOnEmptyPool(ctx context.Context, done <-chan struct{}) error {
	timer := time.NewTimer(cp.emptyPoolWait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-done:
		return ErrChannelPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReturnChannel puts a checked out channel back in its pool, flagging it as dead first when
// flagChannel is true. It returns false when the pool is not initialized or the channel
// doesn't belong to it; the caller should then just drop the channel. Returning a channel
// that is still in the pool (shared borrow) is a no-op that reports true.
func (cp *ChannelPool) ReturnChannel(chanHost *ChannelHost, flagChannel bool) bool {
	if chanHost == nil {
		return false
	}

	state := cp.loadState()
	if state == nil || !state.registry.owns(chanHost) {
		return false
	}

	if flagChannel {
		state.flagged.flag(chanHost.ID)
	}

	return state.container(chanHost.Ackable).put(chanHost)
}

// FlagChannel marks the channel as dead; it gets replaced on its next checkout.
func (cp *ChannelPool) FlagChannel(channelID uint64) {
	if state := cp.loadState(); state != nil {
		state.flagged.flag(channelID)
	}
}

// UnflagChannel flags that channel as usable in the future.
func (cp *ChannelPool) UnflagChannel(channelID uint64) {
	if state := cp.loadState(); state != nil {
		state.flagged.unflag(channelID)
	}
}

// IsChannelFlagged checks to see if the channel has been flagged for replacement.
func (cp *ChannelPool) IsChannelFlagged(channelID uint64) bool {
	state := cp.loadState()
	return state != nil && state.flagged.isFlagged(channelID)
}

// GetTransientChannel creates an unmanaged channel through the ConnectionPool.
func (cp *ChannelPool) GetTransientChannel(ackable bool) (Channel, error) {
	return cp.connectionPool.GetTransientChannel(ackable)
}

// ChannelCount lets you know how many non-ackable channels are available.
func (cp *ChannelPool) ChannelCount() int64 {
	if state := cp.loadState(); state != nil {
		return state.channels.Len()
	}
	return 0
}

// AckChannelCount lets you know how many ackable channels are available.
func (cp *ChannelPool) AckChannelCount() int64 {
	if state := cp.loadState(); state != nil {
		return state.ackChannels.Len()
	}
	return 0
}

// MissCount is the number of times a checkout found its container empty since Initialize.
func (cp *ChannelPool) MissCount() uint64 {
	return cp.scaler.missCount()
}

// ScaleEventCount is the number of channels auto scaling added since Initialize.
func (cp *ChannelPool) ScaleEventCount() uint64 {
	return cp.scaler.scaleEventCount()
}

// Stats snapshots the pool counters.
func (cp *ChannelPool) Stats() PoolStats {
	stats := PoolStats{
		MissCount:       cp.scaler.missCount(),
		ScaleEventCount: cp.scaler.scaleEventCount(),
	}

	if state := cp.loadState(); state != nil {
		stats.ChannelCount = state.channels.Len()
		stats.AckChannelCount = state.ackChannels.Len()
		stats.ChannelCapacity = state.channels.Capacity()
		stats.AckChannelCapacity = state.ackChannels.Capacity()
		stats.FlaggedChannelCount = state.flagged.count()
	}

	return stats
}

// CloseConnections closes all channels and connections but keeps the connection slots;
// a later Initialize reopens them.
func (cp *ChannelPool) CloseConnections() {
	cp.close(false)
}

// Shutdown closes all channels and all connections. Waiting checkouts give up with ErrChannelPoolClosed.
func (cp *ChannelPool) Shutdown() {
	cp.close(true)
}

func (cp *ChannelPool) close(shutdownConnections bool) {
	cp.poolLock.Lock()
	defer cp.poolLock.Unlock()

	atomic.StoreInt32(&cp.closed, 1)

	if state := cp.loadState(); state != nil {
		cp.state.Store((*channelPoolState)(nil))
		close(state.done)

		state.channels.dispose()
		state.ackChannels.dispose()

		// Checked out channels are closed too, their holders see errors on next use.
		for _, err := range closeChannelHosts(state.registry.all()) {
			cp.reporter.handleError(err, "closing channel failed")
		}
	}

	if shutdownConnections {
		cp.connectionPool.Shutdown()
		return
	}

	cp.connectionPool.CloseConnections()
	cp.connectionPool.resetCursor()
}

func closeChannelHosts(hosts []*ChannelHost) []error {
	wg := &sync.WaitGroup{}
	errs := make(chan error, len(hosts))

	for _, chanHost := range hosts {
		wg.Add(1)

		// Started receiving panics on Channel.Close()
		go func(chanHost *ChannelHost) {
			defer wg.Done()
			defer func() { _ = recover() }()

			if err := chanHost.Close(); err != nil {
				errs <- fmt.Errorf("closing channel %d: %w", chanHost.ID, err)
			}
		}(chanHost)
	}

	wg.Wait()
	close(errs)

	var result []error
	for err := range errs {
		result = append(result, err)
	}

	return result
}
