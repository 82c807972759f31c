package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/mongoversioning/internal/oplog"
)

// demux routes tailed records to per-collection channels.
//
// Channels are created lazily the first time a collection is seen, each with
// its own worker goroutine. Routing never drops a record: when a channel is
// full, route blocks until its worker frees a slot, which in turn stops the
// tailer from reading further entries.
//
// Thread-safety: route and close must be called from the single tail
// goroutine. lookup and statuses are safe from any goroutine.
type demux struct {
	capacity int
	handle   handlerFunc
	report   ErrorHandler
	metrics  *Metrics

	mu       sync.Mutex
	channels map[string]*collectionChannel

	wg sync.WaitGroup
}

func newDemux(capacity int, handle handlerFunc, report ErrorHandler, m *Metrics) *demux {
	return &demux{
		capacity: capacity,
		handle:   handle,
		report:   report,
		metrics:  m,
		channels: make(map[string]*collectionChannel),
	}
}

// route hands rec to its collection's channel. It returns ctx.Err() if the
// context is cancelled while waiting for space.
func (d *demux) route(ctx context.Context, rec oplog.Record) error {
	ch := d.channelFor(ctx, rec.Collection())

	select {
	case ch.records <- rec:
		d.routed(ch)
		return nil
	default:
	}

	d.metrics.BackpressureWaits.WithLabelValues(ch.name).Inc()
	slog.Debug("collection channel full, pausing tail",
		"collection", ch.name,
		"capacity", cap(ch.records),
		"ts", rec.TS.String(),
	)

	select {
	case ch.records <- rec:
		d.routed(ch)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *demux) routed(ch *collectionChannel) {
	d.metrics.RecordsRouted.WithLabelValues(ch.name).Inc()
	d.metrics.ChannelDepth.WithLabelValues(ch.name).Set(float64(len(ch.records)))
}

// channelFor returns the channel of collection, starting it on first use.
func (d *demux) channelFor(ctx context.Context, collection string) *collectionChannel {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch, ok := d.channels[collection]; ok {
		return ch
	}

	ch := newCollectionChannel(collection, d.capacity, d.handle, d.report, d.metrics)
	d.channels[collection] = ch

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ch.run(ctx)
	}()

	slog.Debug("collection channel started", "collection", collection, "capacity", d.capacity)
	return ch
}

// close tells every worker that no more records will arrive. Workers drain
// what is buffered and exit.
func (d *demux) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.channels {
		close(ch.records)
	}
}

// wait blocks until every worker has exited.
func (d *demux) wait() {
	d.wg.Wait()
}

// lookup returns the channel of collection, if it has been started.
func (d *demux) lookup(collection string) (*collectionChannel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.channels[collection]
	return ch, ok
}

// statuses returns the status of every started channel, ordered by name.
func (d *demux) statuses() []ChannelStatus {
	d.mu.Lock()
	chans := make([]*collectionChannel, 0, len(d.channels))
	for _, ch := range d.channels {
		chans = append(chans, ch)
	}
	d.mu.Unlock()

	out := make([]ChannelStatus, len(chans))
	for i, ch := range chans {
		out[i] = ch.Status()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Collection < out[j].Collection })
	return out
}
