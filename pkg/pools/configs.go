package pools

import (
	"fmt"
	"time"
)

// DefaultEmptyPoolWaitInterval is used when PoolConfig.EmptyPoolWaitInterval is 0.
const DefaultEmptyPoolWaitInterval = 100 * time.Millisecond

// RabbitSeasoning represents the configuration values.
type RabbitSeasoning struct {
	PoolConfig *PoolConfig `json:"PoolConfig" yaml:"PoolConfig" toml:"PoolConfig"`
}

// PoolConfig represents settings for creating/configuring pools.
type PoolConfig struct {
	ApplicationName       string     `json:"ApplicationName" yaml:"ApplicationName" toml:"ApplicationName"`
	URI                   string     `json:"URI" yaml:"URI" toml:"URI"`
	Heartbeat             uint32     `json:"Heartbeat" yaml:"Heartbeat" toml:"Heartbeat"`                                     // seconds
	ConnectionTimeout     uint32     `json:"ConnectionTimeout" yaml:"ConnectionTimeout" toml:"ConnectionTimeout"`             // seconds
	SleepOnErrorInterval  uint32     `json:"SleepOnErrorInterval" yaml:"SleepOnErrorInterval" toml:"SleepOnErrorInterval"`    // sleep length on errors (ms)
	ConnectionCount       uint64     `json:"ConnectionCount" yaml:"ConnectionCount" toml:"ConnectionCount"`                   // number of connections to create in the pool
	ChannelCount          uint64     `json:"ChannelCount" yaml:"ChannelCount" toml:"ChannelCount"`                            // initial plain channels
	AckChannelCount       uint64     `json:"AckChannelCount" yaml:"AckChannelCount" toml:"AckChannelCount"`                   // initial ackable channels
	AutoScale             bool       `json:"AutoScale" yaml:"AutoScale" toml:"AutoScale"`                                     // grow the pool under sustained misses
	EmptyPoolWaitInterval uint32     `json:"EmptyPoolWaitInterval" yaml:"EmptyPoolWaitInterval" toml:"EmptyPoolWaitInterval"` // sleep on an empty pool (ms)
	ScaleTriggerMissCount uint64     `json:"ScaleTriggerMissCount" yaml:"ScaleTriggerMissCount" toml:"ScaleTriggerMissCount"` // misses needed for one growth step
	MaxAutoScaleCount     uint64     `json:"MaxAutoScaleCount" yaml:"MaxAutoScaleCount" toml:"MaxAutoScaleCount"`             // channels auto scaling may add in total
	MaxWaitRetryCount     uint32     `json:"MaxWaitRetryCount" yaml:"MaxWaitRetryCount" toml:"MaxWaitRetryCount"`             // 0 waits until the context is done
	ExclusiveCheckout     bool       `json:"ExclusiveCheckout" yaml:"ExclusiveCheckout" toml:"ExclusiveCheckout"`             // keep checked out channels out of the pool until returned
	GlobalQosCount        int        `json:"GlobalQosCount" yaml:"GlobalQosCount" toml:"GlobalQosCount"`                      // if zero ignored
	TLSConfig             *TLSConfig `json:"TLSConfig" yaml:"TLSConfig" toml:"TLSConfig"`                                     // TLS settings for connection with AMQPS.
}

// TLSConfig represents settings for configuring TLS.
type TLSConfig struct {
	EnableTLS         bool   `json:"EnableTLS" yaml:"EnableTLS" toml:"EnableTLS"` // Use TLSConfig to create connections with AMQPS uri.
	PEMCertLocation   string `json:"PEMCertLocation" yaml:"PEMCertLocation" toml:"PEMCertLocation"`
	LocalCertLocation string `json:"LocalCertLocation" yaml:"LocalCertLocation" toml:"LocalCertLocation"`
	CertServerName    string `json:"CertServerName" yaml:"CertServerName" toml:"CertServerName"`
}

// Validate checks the values consumed by the pools.
// Dial settings (URI, Heartbeat, ConnectionTimeout) are checked by NewAMQPDialer.
func (pc *PoolConfig) Validate() error {
	if pc == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}

	if pc.ConnectionCount == 0 {
		return fmt.Errorf("%w: connectioncount can't be 0", ErrInvalidConfig)
	}

	if pc.AutoScale {
		if pc.ScaleTriggerMissCount == 0 {
			return fmt.Errorf("%w: scaletriggermisscount can't be 0 when autoscale is enabled", ErrInvalidConfig)
		}
		if pc.MaxAutoScaleCount == 0 {
			return fmt.Errorf("%w: maxautoscalecount can't be 0 when autoscale is enabled", ErrInvalidConfig)
		}
	}

	if pc.TLSConfig != nil && pc.TLSConfig.EnableTLS && pc.TLSConfig.CertServerName == "" {
		return fmt.Errorf("%w: tls is enabled without a certservername", ErrInvalidConfig)
	}

	return nil
}

func (pc *PoolConfig) emptyPoolWait() time.Duration {
	if pc.EmptyPoolWaitInterval == 0 {
		return DefaultEmptyPoolWaitInterval
	}
	return time.Duration(pc.EmptyPoolWaitInterval) * time.Millisecond
}

func (pc *PoolConfig) sleepOnError() time.Duration {
	return time.Duration(pc.SleepOnErrorInterval) * time.Millisecond
}
