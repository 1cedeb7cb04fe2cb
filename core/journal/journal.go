// Package journal persists player events in the background.
package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"midiplayer/core/event"
	"midiplayer/logger"
	"midiplayer/model"
)

// Store is where batches of events end up.
type Store interface {
	CreateBatch(ctx context.Context, events []*model.PlaybackEvent) error
}

// Options 调整批量写入参数
type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	// KeepProgress also records the Play event emitted on every audio block.
	KeepProgress bool
}

func (o *Options) withDefaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 1024
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 2 * time.Second
	}
}

// Journal buffers events and writes them to a Store from a single worker.
// Record never blocks the caller; events are dropped when the buffer is full.
type Journal struct {
	store    Store
	opts     Options
	ch       chan *model.PlaybackEvent
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	dropped  atomic.Int64
	now      func() time.Time
}

// New starts the background writer.
func New(store Store, opts Options) *Journal {
	opts.withDefaults()
	j := &Journal{
		store:    store,
		opts:     opts,
		ch:       make(chan *model.PlaybackEvent, opts.BufferSize),
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
	j.wg.Add(1)
	go j.worker()
	return j
}

// Record queues e.
func (j *Journal) Record(e event.Event) {
	if !j.opts.KeepProgress && e.Kind == event.KindPlay && e.Seconds() > 0 {
		return
	}
	select {
	case <-j.stopChan:
		return
	default:
	}
	select {
	case j.ch <- model.NewPlaybackEvent(e, j.now()):
	default:
		if j.dropped.Add(1)%100 == 1 {
			logger.Warn("[Journal.Record] buffer full, dropping events", logger.Int64("dropped", j.dropped.Load()))
		}
	}
}

// Sink records every event and passes it on to next, if any.
func (j *Journal) Sink(next event.Sink) event.Sink {
	return func(e event.Event) {
		j.Record(e)
		if next != nil {
			next(e)
		}
	}
}

// Dropped counts events lost to a full buffer.
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

// Close flushes what is queued and stops the worker.
func (j *Journal) Close() {
	j.once.Do(func() {
		close(j.stopChan)
		j.wg.Wait()
	})
}

func (j *Journal) worker() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]*model.PlaybackEvent, 0, j.opts.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := j.store.CreateBatch(ctx, batch); err != nil {
			logger.Error("[Journal] 写入事件失败", logger.Int("count", len(batch)), logger.ErrorField(err))
		}
		batch = make([]*model.PlaybackEvent, 0, j.opts.BatchSize)
	}

	for {
		select {
		case rec := <-j.ch:
			batch = append(batch, rec)
			if len(batch) >= j.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-j.stopChan:
			for {
				select {
				case rec := <-j.ch:
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}
