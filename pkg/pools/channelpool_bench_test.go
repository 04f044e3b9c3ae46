package pools_test

import (
	"context"
	"runtime/trace"
	"testing"

	"github.com/houseofcat/cookedrabbit/pkg/pools"
)

func newBenchChannelPool(b *testing.B, exclusive bool) *pools.ChannelPool {
	config := testConfig()
	config.ConnectionCount = 4
	config.ChannelCount = 32
	config.AckChannelCount = 0
	config.ExclusiveCheckout = exclusive
	config.EmptyPoolWaitInterval = 1

	connPool, err := pools.NewConnectionPool(config, newFakeBroker())
	if err != nil {
		b.Fatal(err)
	}

	chanPool, err := pools.NewChannelPool(config, connPool, true)
	if err != nil {
		b.Fatal(err)
	}

	return chanPool
}

func benchmarkGetChannel(b *testing.B, exclusive bool) {
	b.ReportAllocs()
	ctx, task := trace.NewTask(context.Background(), "BenchmarkGetChannel")
	defer task.End()

	chanPool := newBenchChannelPool(b, exclusive)
	defer chanPool.Shutdown()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			chanHost, err := chanPool.GetChannel(ctx)
			if err != nil {
				b.Error(err)
				return
			}

			chanPool.ReturnChannel(chanHost, false)
		}
	})
}

func BenchmarkGetChannelShared(b *testing.B) {
	benchmarkGetChannel(b, false)
}

func BenchmarkGetChannelExclusive(b *testing.B) {
	benchmarkGetChannel(b, true)
}

func BenchmarkGetChannelWithRepair(b *testing.B) {
	b.ReportAllocs()

	chanPool := newBenchChannelPool(b, false)
	defer chanPool.Shutdown()

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		chanHost, err := chanPool.GetChannel(ctx)
		if err != nil {
			b.Fatal(err)
		}

		chanPool.ReturnChannel(chanHost, i%10 == 0)
	}
}
