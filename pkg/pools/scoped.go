package pools

import "context"

// WithChannel checks out a channel, runs fn with it and always returns it to the pool,
// also when fn panics. The channel is flagged dead when fn's error satisfies IsChannelDeadError.
func (cp *ChannelPool) WithChannel(ctx context.Context, ackable bool, fn func(*ChannelHost) error) error {
	chanHost, err := cp.getChannel(ctx, ackable)
	if err != nil {
		return err
	}

	returned := false
	defer func() {
		if !returned {
			cp.ReturnChannel(chanHost, false)
		}
	}()

	err = fn(chanHost)

	returned = true
	cp.ReturnChannel(chanHost, IsChannelDeadError(err))

	return err
}
