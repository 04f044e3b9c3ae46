package pools

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ConnectionPool houses the pool of RabbitMQ connections.
type ConnectionPool struct {
	cursor      uint64
	initialized int32
	Config      PoolConfig
	poolID      string
	dialer      Dialer
	connections atomic.Value // []*ConnectionHost
	poolLock    *sync.Mutex
	reporter    *errorReporter
	logger      zerolog.Logger
}

// NewConnectionPool creates hosting structure for the ConnectionPool.
// A nil dialer dials RabbitMQ with the AMQP settings found in config.
func NewConnectionPool(config *PoolConfig, dialer Dialer) (*ConnectionPool, error) {
	return NewConnectionPoolWithHandlers(config, dialer, nil, zerolog.Nop())
}

// NewConnectionPoolWithErrorHandler creates hosting structure for the ConnectionPool with an error handler.
func NewConnectionPoolWithErrorHandler(config *PoolConfig, dialer Dialer, errorHandler func(error)) (*ConnectionPool, error) {
	return NewConnectionPoolWithHandlers(config, dialer, errorHandler, zerolog.Nop())
}

// NewConnectionPoolWithHandlers creates hosting structure for the ConnectionPool with an error handler and a logger.
// The ChannelPools built on top of it share both.
func NewConnectionPoolWithHandlers(
	config *PoolConfig,
	dialer Dialer,
	errorHandler func(error),
	logger zerolog.Logger) (*ConnectionPool, error) {

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if dialer == nil {
		amqpDialer, err := NewAMQPDialer(config)
		if err != nil {
			return nil, err
		}
		dialer = amqpDialer
	}

	poolID := uuid.New().String()
	logger = logger.With().Str("pool", poolID).Logger()

	cp := &ConnectionPool{
		Config:   *config,
		poolID:   poolID,
		dialer:   dialer,
		poolLock: &sync.Mutex{},
		logger:   logger,
		reporter: &errorReporter{
			errorHandler:         errorHandler,
			logger:               logger,
			sleepOnErrorInterval: config.sleepOnError(),
		},
	}
	cp.connections.Store([]*ConnectionHost{})

	return cp, nil
}

// Initialize opens ConnectionCount connections, one after another.
// Any failure closes what was opened and leaves the pool uninitialized.
func (cp *ConnectionPool) Initialize() error {
	cp.poolLock.Lock()
	defer cp.poolLock.Unlock()

	if cp.IsInitialized() {
		return nil
	}

	connections := make([]*ConnectionHost, 0, cp.Config.ConnectionCount)
	for i := uint64(0); i < cp.Config.ConnectionCount; i++ {

		connHost, err := NewConnectionHost(cp.dialer, cp.connectionName(i), i)
		if err != nil {
			closeConnectionHosts(connections)
			return fmt.Errorf("%w: opening connection %d: %w", ErrInitialization, i, err)
		}

		cp.logger.Debug().Uint64("connection", i).Str("name", connHost.Name()).Msg("connection opened")
		connections = append(connections, connHost)
	}

	atomic.StoreUint64(&cp.cursor, 0)
	cp.connections.Store(connections)
	atomic.StoreInt32(&cp.initialized, 1)

	return nil
}

func (cp *ConnectionPool) connectionName(connectionID uint64) string {
	appName := cp.Config.ApplicationName
	if appName == "" {
		appName = "cookedrabbit-" + cp.poolID[:8]
	}

	return appName + "-" + strconv.FormatUint(connectionID, 10)
}

// IsInitialized reports whether Initialize succeeded and Shutdown hasn't been called since.
func (cp *ConnectionPool) IsInitialized() bool {
	return atomic.LoadInt32(&cp.initialized) == 1
}

// ConnectionCount is the number of connection slots currently held.
func (cp *ConnectionPool) ConnectionCount() int {
	return len(cp.loadConnections())
}

func (cp *ConnectionPool) loadConnections() []*ConnectionHost {
	return cp.connections.Load().([]*ConnectionHost)
}

// GetConnection returns the next connection in round robin order. It never blocks and never reconnects,
// so the returned connection may be closed; CreateChannel reports that.
func (cp *ConnectionPool) GetConnection() (*ConnectionHost, error) {
	connections := cp.loadConnections()
	if len(connections) == 0 {
		return nil, ErrConnectionPoolNotInitialized
	}

	next := atomic.AddUint64(&cp.cursor, 1) - 1
	return connections[next%uint64(len(connections))], nil
}

// GetTransientChannel creates an unmanaged channel on the next connection.
// Closing it is the caller's job. Failures are returned, not retried.
func (cp *ConnectionPool) GetTransientChannel(ackable bool) (Channel, error) {
	connHost, err := cp.GetConnection()
	if err != nil {
		return nil, err
	}

	channel, err := connHost.CreateChannel(ackable)
	if err != nil {
		cp.logger.Warn().Err(err).Uint64("connection", connHost.ConnectionID).Msg("transient channel creation failed")
		return nil, fmt.Errorf("creating transient channel on connection %d: %w", connHost.ConnectionID, err)
	}

	return channel, nil
}

// ReopenConnections re-dials every slot whose connection is closed.
func (cp *ConnectionPool) ReopenConnections() error {
	if !cp.IsInitialized() {
		return ErrConnectionPoolNotInitialized
	}

	var firstErr error
	for _, connHost := range cp.loadConnections() {
		if connHost.IsOpen() {
			continue
		}

		if err := connHost.Connect(cp.dialer); err != nil {
			cp.reporter.handleError(err, "reopening connection failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("reopening connection %d: %w", connHost.ConnectionID, err)
			}
			continue
		}

		cp.logger.Debug().Uint64("connection", connHost.ConnectionID).Msg("connection reopened")
	}

	return firstErr
}

// CloseConnections closes every connection but keeps the slots, so ReopenConnections can bring them back.
func (cp *ConnectionPool) CloseConnections() {
	if cp == nil {
		return
	}

	for _, err := range closeConnectionHosts(cp.loadConnections()) {
		cp.reporter.handleError(err, "closing connection failed")
	}
}

// Shutdown closes all connections in the ConnectionPool and resets the Pool to pre-initialized state.
func (cp *ConnectionPool) Shutdown() {
	if cp == nil {
		return
	}

	cp.poolLock.Lock()
	defer cp.poolLock.Unlock()

	cp.CloseConnections()

	atomic.StoreInt32(&cp.initialized, 0)
	cp.connections.Store([]*ConnectionHost{})
	cp.resetCursor()
}

func (cp *ConnectionPool) resetCursor() {
	atomic.StoreUint64(&cp.cursor, 0)
}

func closeConnectionHosts(connections []*ConnectionHost) []error {
	wg := &sync.WaitGroup{}
	errs := make(chan error, len(connections))

	for _, connHost := range connections {
		wg.Add(1)

		// Started receiving panics on Connection.Close()
		go func(connHost *ConnectionHost) {
			defer wg.Done()
			defer func() { _ = recover() }()

			if err := connHost.Close(); err != nil {
				errs <- fmt.Errorf("closing connection %d: %w", connHost.ConnectionID, err)
			}
		}(connHost)
	}

	wg.Wait()
	close(errs)

	var result []error
	for err := range errs {
		result = append(result, err)
	}

	return result
}
