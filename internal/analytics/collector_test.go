package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srinipal/filesearch/pkg/kafka"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return p.err
}

func (p *recordingPublisher) events() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []kafka.Event
	for _, b := range p.batches {
		all = append(all, b...)
	}
	return all
}

func TestCollectorFlushesOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 16, 100, time.Hour)
	c.Start(context.Background())

	c.Track(SearchEvent{Type: EventSearch, Query: "cat dog", Outcome: "matched", TotalHits: 2})
	c.Track(CorpusEvent{Type: EventCorpusReload, Status: "ok", Documents: 3})
	c.Close()

	events := pub.events()
	require.Len(t, events, 2)
	assert.Equal(t, "search", events[0].Key)
	assert.Equal(t, "cat dog", events[0].Value.(SearchEvent).Query)
	assert.Equal(t, "corpus_reload", events[1].Key)
}

func TestCollectorFlushesFullBatches(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 64, 5, time.Hour)
	c.Start(context.Background())

	for i := 0; i < 12; i++ {
		c.Track(SearchEvent{Type: EventSearch})
	}
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 3)
	assert.Len(t, pub.batches[0], 5)
	assert.Len(t, pub.batches[1], 5)
	assert.Len(t, pub.batches[2], 2)
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 16, 100, 20*time.Millisecond)
	c.Start(context.Background())
	defer c.Close()

	c.Track(SearchEvent{Type: EventZeroResult})
	assert.Eventually(t, func() bool { return len(pub.events()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestCollectorDrainsOnCancel(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 16, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	c.Track(SearchEvent{Type: EventSearch})
	c.Track(SearchEvent{Type: EventSearch})
	c.Start(ctx)
	cancel()
	<-c.done

	assert.Len(t, pub.events(), 2)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 2, 100, time.Hour)

	for i := 0; i < 5; i++ {
		c.Track(SearchEvent{Type: EventSearch})
	}
	assert.Equal(t, int64(3), c.Dropped())

	c.Start(context.Background())
	c.Close()
	assert.Len(t, pub.events(), 2)
}

func TestCollectorPublishErrorIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	c := NewCollector(pub, 4, 1, time.Hour)
	c.Start(context.Background())

	c.Track(SearchEvent{Type: EventSearch})
	c.Track(SearchEvent{Type: EventSearch})
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Len(t, pub.batches, 2)
}

func TestCollectorTrackAfterClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 16, 100, time.Hour)
	c.Start(context.Background())
	c.Track(SearchEvent{Type: EventSearch, Query: "cat"})
	c.Close()

	assert.NotPanics(t, func() {
		c.Track(SearchEvent{Type: EventSearch, Query: "late"})
		c.Close()
	})
	assert.Len(t, pub.events(), 1)
	assert.Equal(t, int64(1), c.Dropped())
}

func TestCollectorCloseRacesTrack(t *testing.T) {
	c := NewCollector(&recordingPublisher{}, 1024, 10, time.Hour)
	c.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Track(SearchEvent{Type: EventSearch, Query: "cat"})
			}
		}()
	}
	c.Close()
	wg.Wait()
}

func TestCollectorCloseWithoutStart(t *testing.T) {
	c := NewCollector(&recordingPublisher{}, 4, 1, time.Hour)
	c.Close()
	c.Track(SearchEvent{Type: EventSearch, Query: "cat"})
	assert.Equal(t, int64(1), c.Dropped())
}
