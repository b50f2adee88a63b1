package analytics

import (
	"context"

	"github.com/srinipal/filesearch/pkg/kafka"
	"github.com/srinipal/filesearch/pkg/resilience"
)

type guardedPublisher struct {
	pub     Publisher
	breaker *resilience.CircuitBreaker
}

// Guard routes batches through cb. While the circuit is open, batches are
// rejected at once and the collector logs and drops them.
func Guard(pub Publisher, cb *resilience.CircuitBreaker) Publisher {
	return &guardedPublisher{pub: pub, breaker: cb}
}

func (g *guardedPublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	return g.breaker.Execute(func() error {
		return g.pub.PublishBatch(ctx, events)
	})
}
