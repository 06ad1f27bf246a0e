package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pepperpark/mailcopy/internal/message"
)

// DefaultBufferSize is the number of outstanding writes allowed when none
// is configured.
const DefaultBufferSize = 10

// Appender is the write side of a mail store.
type Appender interface {
	Append(folder string, body []byte, flags []string, date time.Time) error
}

// PipelineStats summarizes completed writes.
type PipelineStats struct {
	Written int
	Failed  int
	Bytes   int64
}

// Pipeline performs appends on a single background worker while the caller
// keeps reading. Submit never blocks; callers bound the lookahead with
// WaitForCapacity.
type Pipeline struct {
	dst        Appender
	bufferSize int
	log        *slog.Logger

	mu          sync.Mutex
	cond        *sync.Cond
	queue       []*message.Message
	outstanding int
	closed      bool
	stats       PipelineStats

	done chan struct{}
}

// NewPipeline starts the worker. It runs until Close.
func NewPipeline(dst Appender, bufferSize int, logger *slog.Logger) *Pipeline {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		dst:        dst,
		bufferSize: bufferSize,
		log:        logger,
		done:       make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.run()
	return p
}

// Submit queues msg for writing to msg.Folder and returns immediately.
func (p *Pipeline) Submit(msg *message.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.log.Warn("write after close dropped", "id", msg.ID, "folder", msg.Folder)
		return
	}
	p.queue = append(p.queue, msg)
	p.outstanding++
	p.cond.Broadcast()
}

// WaitForCapacity blocks until fewer than the buffer size writes are
// outstanding. It only fails when ctx is done.
func (p *Pipeline) WaitForCapacity(ctx context.Context) error {
	return p.waitUntil(ctx, func() bool { return p.outstanding < p.bufferSize })
}

// Drain blocks until every submitted write has completed.
func (p *Pipeline) Drain(ctx context.Context) error {
	return p.waitUntil(ctx, func() bool { return p.outstanding == 0 })
}

func (p *Pipeline) waitUntil(ctx context.Context, cond func() bool) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for !cond() {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.cond.Wait()
	}
	return nil
}

// Outstanding returns the number of submitted writes not yet completed.
func (p *Pipeline) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

func (p *Pipeline) Stats() PipelineStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close lets the worker finish the queue and stops it.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.cond.Broadcast()
	}
	p.mu.Unlock()
	<-p.done
}

func (p *Pipeline) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		msg := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		err := p.write(msg)

		p.mu.Lock()
		p.outstanding--
		if err != nil {
			p.stats.Failed++
		} else {
			p.stats.Written++
			p.stats.Bytes += msg.Size
		}
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// write makes a single attempt; failures are logged and not retried.
func (p *Pipeline) write(msg *message.Message) error {
	p.log.Debug("write", "id", msg.ID, "size", humanize.IBytes(uint64(msg.Size)), "folder", msg.Folder, "date", msg.Date)
	if err := p.dst.Append(msg.Folder, msg.Body, msg.Flags, msg.Date); err != nil {
		p.log.Warn("write error", "id", msg.ID, "folder", msg.Folder, "err", err)
		return err
	}
	return nil
}
