// Package analytics ships search and corpus events to Kafka. Tracking never
// blocks a query: events are buffered and dropped when the buffer is full.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srinipal/filesearch/pkg/kafka"
)

const (
	DefaultBufferSize    = 10000
	DefaultBatchSize     = 100
	DefaultFlushInterval = 2 * time.Second
)

// Publisher writes a batch of events, satisfied by *kafka.Producer.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Event is anything the collector can ship.
type Event interface {
	key() string
}

type Collector struct {
	publisher     Publisher
	eventCh       chan Event
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Int64
	logger        *slog.Logger
	started       atomic.Bool
	done          chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewCollector(publisher Publisher, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan Event, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start runs the flush loop until ctx is cancelled or Close is called.
// Buffered events are flushed before it returns.
func (c *Collector) Start(ctx context.Context) {
	c.started.Store(true)
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		batch := make([]kafka.Event, 0, c.batchSize)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					c.flush(batch)
					return
				}
				batch = append(batch, kafka.Event{Key: event.key(), Value: event})
				if len(batch) >= c.batchSize {
					c.flush(batch)
					batch = batch[:0]
				}
			case <-ticker.C:
				c.flush(batch)
				batch = batch[:0]
			case <-ctx.Done():
				c.flush(c.drain(batch))
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track queues event for publishing. It drops the event if the buffer is
// full or the collector is closed.
func (c *Collector) Track(event Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.eventCh <- event:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics events dropped (buffer full)", "dropped_total", c.dropped.Load())
		}
	}
}

// Dropped returns how many events were discarded unpublished.
func (c *Collector) Dropped() int64 { return c.dropped.Load() }

// Close stops accepting events and waits for the final flush. Later calls
// to Track and Close are no-ops.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	if c.started.Load() {
		<-c.done
	}
}

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, kafka.Event{Key: event.key(), Value: event})
		default:
			return batch
		}
	}
}

func (c *Collector) flush(batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics flush failed", "events", len(batch), "error", err)
		return
	}
	c.logger.Debug("analytics batch flushed", "events", len(batch))
}
