package pools

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/streadway/amqp"
)

const confirmationBuffer = 100

// AMQPDialer opens RabbitMQ connections with streadway/amqp.
type AMQPDialer struct {
	uri            string
	config         amqp.Config
	globalQosCount int
}

// NewAMQPDialer builds the dial settings (heartbeat, timeout, TLS) from the PoolConfig.
func NewAMQPDialer(config *PoolConfig) (*AMQPDialer, error) {
	if config.Heartbeat == 0 || config.ConnectionTimeout == 0 {
		return nil, fmt.Errorf("%w: heartbeat or connectiontimeout can't be 0", ErrInvalidConfig)
	}

	dialer := &AMQPDialer{
		uri: config.URI,
		config: amqp.Config{
			Heartbeat: time.Duration(config.Heartbeat) * time.Second,
			Dial:      amqp.DefaultDial(time.Duration(config.ConnectionTimeout) * time.Second),
		},
		globalQosCount: config.GlobalQosCount,
	}

	if config.TLSConfig != nil && config.TLSConfig.EnableTLS {
		tlsConfig, err := CreateTLSConfig(
			config.TLSConfig.PEMCertLocation,
			config.TLSConfig.LocalCertLocation)
		if err != nil {
			return nil, err
		}

		dialer.uri = "amqps://" + config.TLSConfig.CertServerName
		dialer.config.TLSClientConfig = tlsConfig
	}

	if dialer.uri == "" {
		return nil, fmt.Errorf("%w: uri can't be empty", ErrInvalidConfig)
	}

	return dialer, nil
}

// Dial opens one AMQP connection named connectionName.
func (d *AMQPDialer) Dial(connectionName string) (Connection, error) {
	config := d.config
	config.Properties = amqp.Table{
		"connection_name": connectionName,
	}

	amqpConn, err := amqp.DialConfig(d.uri, config)
	if err != nil {
		return nil, err
	}

	return &AMQPConnection{
		Connection:     amqpConn,
		globalQosCount: d.globalQosCount,
	}, nil
}

// AMQPConnection is the Connection backed by an amqp.Connection.
type AMQPConnection struct {
	Connection     *amqp.Connection
	globalQosCount int
}

// CreateChannel opens an amqp.Channel, in confirm mode when ackable.
func (c *AMQPConnection) CreateChannel(ackable bool) (Channel, error) {
	if c.Connection.IsClosed() {
		return nil, ErrConnectionClosed
	}

	amqpChan, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}

	channel := &AMQPChannel{
		Channel: amqpChan,
		Ackable: ackable,
		errors:  make(chan *amqp.Error, 1),
	}

	// streadway/amqp closes this on channel shutdown.
	amqpChan.NotifyClose(channel.errors)

	if c.globalQosCount > 0 {
		if err = amqpChan.Qos(c.globalQosCount, 0, true); err != nil {
			_ = amqpChan.Close()
			return nil, err
		}
	}

	if ackable {
		if err = amqpChan.Confirm(false); err != nil {
			_ = amqpChan.Close()
			return nil, err
		}

		channel.Confirmations = make(chan amqp.Confirmation, confirmationBuffer)
		amqpChan.NotifyPublish(channel.Confirmations)
	}

	return channel, nil
}

// IsOpen is atomic.
func (c *AMQPConnection) IsOpen() bool {
	return !c.Connection.IsClosed()
}

// Close closes the connection; closing twice is not an error.
func (c *AMQPConnection) Close() error {
	if c.Connection.IsClosed() {
		return nil
	}

	err := c.Connection.Close()
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}

	return err
}

// AMQPChannel is the Channel backed by an amqp.Channel.
// Ackable channels publish confirmations on Confirmations, which callers must drain.
type AMQPChannel struct {
	Channel       *amqp.Channel
	Ackable       bool
	Confirmations chan amqp.Confirmation
	errors        chan *amqp.Error
	closed        int32
}

// IsOpen reports false once the broker or the client closed the channel.
func (ch *AMQPChannel) IsOpen() bool {
	if atomic.LoadInt32(&ch.closed) == 1 {
		return false
	}

	select {
	case <-ch.errors: // either the close reason or the notification channel being closed
		atomic.StoreInt32(&ch.closed, 1)
		return false
	default:
		return true
	}
}

// Close closes the amqp.Channel; closing twice is not an error.
func (ch *AMQPChannel) Close() error {
	atomic.StoreInt32(&ch.closed, 1)

	err := ch.Channel.Close()
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}

	return err
}
