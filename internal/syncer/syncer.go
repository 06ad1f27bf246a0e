package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/pepperpark/mailcopy/internal/mailstore"
	"github.com/pepperpark/mailcopy/internal/message"
)

// DefaultBatchSize bounds the number of identifiers per fetch request.
const DefaultBatchSize = 1000

// ErrAlreadyRun is returned by a second call to Run.
var ErrAlreadyRun = errors.New("syncer: already run")

type Options struct {
	DryRun bool
	// LimitSize skips messages larger than this many bytes; <= 0 disables it.
	LimitSize  int64
	BufferSize int
	BatchSize  int
	Exclude    []string
	Map        map[string]string // optional exact folder name mapping: src->dst
}

// FolderStats are the counters of one source folder.
type FolderStats struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Copied      int    `json:"copied"`
	Bytes       int64  `json:"bytes"`
	Skipped     int    `json:"skipped"`
	TooLarge    int    `json:"too_large"`
	Malformed   int    `json:"malformed"`
}

// Result summarizes a run.
type Result struct {
	Folders    []FolderStats
	BytesTotal int64
	Excluded   []string
	Writes     PipelineStats
}

// Syncer copies the messages of every source folder that are missing from
// the matching destination folder.
type Syncer struct {
	src, dst mailstore.Client
	opts     Options
	exclude  *ExcludeMatcher
	log      *slog.Logger
	events   chan Event
	ran      atomic.Bool
}

func New(src, dst mailstore.Client, opts Options, logger *slog.Logger) *Syncer {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		src:     src,
		dst:     dst,
		opts:    opts,
		exclude: NewExcludeMatcher(opts.Exclude),
		log:     logger,
		events:  make(chan Event, 128),
	}
}

// Events returns a read-only channel of progress events. It is closed when
// Run returns.
func (s *Syncer) Events() <-chan Event { return s.events }

func (s *Syncer) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		// drop if slow consumer
	}
}

// Run walks the source folders once. Per-message write failures are logged
// by the pipeline and do not fail the run; store errors do.
//
// A Syncer runs only once: the events channel is closed when Run returns and
// later calls fail with ErrAlreadyRun.
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	if !s.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	defer close(s.events)

	pipe := NewPipeline(s.dst, s.opts.BufferSize, s.log)
	defer pipe.Close()

	folders, err := s.src.ListFolders()
	if err != nil {
		return nil, fmt.Errorf("list source folders: %w", err)
	}
	res := &Result{}
	for _, f := range folders {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if s.exclude.Excluded(normalizePath(f.Name, f.Delimiter)) {
			s.log.Info("skipped source folder", "folder", f.Name)
			res.Excluded = append(res.Excluded, f.Name)
			s.emit(Event{Type: EventFolderSkipped, Folder: f.Name})
			continue
		}
		if !f.Selectable() {
			s.log.Debug("source folder not selectable", "folder", f.Name)
			continue
		}
		st, err := s.syncFolder(ctx, pipe, f.Name)
		if err != nil {
			res.Writes = pipe.Stats()
			return res, fmt.Errorf("%s: %w", f.Name, err)
		}
		if st == nil {
			continue
		}
		res.Folders = append(res.Folders, *st)
		res.BytesTotal += st.Bytes
	}
	res.Writes = pipe.Stats()
	s.log.Info("copied", "bytes", humanize.IBytes(uint64(res.BytesTotal)), "write_failures", res.Writes.Failed)
	return res, nil
}

// syncFolder returns nil stats for an empty source folder.
func (s *Syncer) syncFolder(ctx context.Context, pipe *Pipeline, name string) (*FolderStats, error) {
	s.log.Debug("processing source folder", "folder", name)
	s.emit(Event{Type: EventFolderStart, Folder: name})

	if err := s.src.SelectFolder(name, true); err != nil {
		return nil, err
	}
	dstName := s.mapName(name)
	dstExists, err := s.dst.FolderExists(dstName)
	if err != nil {
		return nil, fmt.Errorf("check destination %s: %w", dstName, err)
	}
	if !dstExists {
		s.log.Debug("folder not in destination", "folder", dstName)
		if !s.opts.DryRun {
			if err := s.dst.CreateFolder(dstName); err != nil {
				return nil, fmt.Errorf("create destination %s: %w", dstName, err)
			}
			s.log.Debug("created destination folder", "folder", dstName)
		}
	} else if err := s.dst.SelectFolder(dstName, s.opts.DryRun); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	srcData, err := fetchAll(s.src, message.HeaderItems, s.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch source headers: %w", err)
	}
	if len(srcData) == 0 {
		s.log.Debug("source folder is empty, skipped", "folder", name)
		s.emit(Event{Type: EventFolderDone, Folder: name})
		return nil, nil
	}
	s.log.Debug("found messages in source", "folder", name, "count", len(srcData))

	idx := Index{}
	if dstExists {
		dstData, err := fetchAll(s.dst, message.HeaderItems, s.opts.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("fetch destination headers: %w", err)
		}
		s.log.Debug("fetched message-id from destination", "folder", dstName, "count", len(dstData))
		idx = s.buildDestinationIndex(dstData, dstName)
	}

	st := &FolderStats{Source: name, Destination: dstName}
	uids := sortedIDs(srcData)
	total := len(uids)
	s.emit(Event{Type: EventFolderProgress, Folder: name, Total: total})

	for i, uid := range uids {
		if err := ctx.Err(); err != nil {
			_ = pipe.Drain(context.Background())
			return st, err
		}
		h, err := message.ParseHeader(srcData[uid])
		switch {
		case err != nil:
			s.log.Warn("skipped message without usable header", "folder", name, "uid", uid, "err", err)
			st.Malformed++
		case idx.Contains(h.ID):
			st.Skipped++
		case s.opts.LimitSize > 0 && h.Size > s.opts.LimitSize:
			s.log.Info("skipped message over limit-size", "id", h.ID, "folder", name, "size", humanize.IBytes(uint64(h.Size)))
			st.TooLarge++
		default:
			if err := s.copyMessage(ctx, pipe, uid, h, dstName, st); err != nil {
				_ = pipe.Drain(context.Background())
				return st, err
			}
		}
		s.emit(Event{Type: EventFolderProgress, Folder: name, Total: total, Done: i + 1})
	}
	if st.Skipped > 0 {
		s.log.Debug("skipped previously copied messages", "folder", name, "count", st.Skipped)
	}

	s.log.Debug("waiting writes to destination folder", "folder", dstName)
	if err := pipe.Drain(ctx); err != nil {
		return st, err
	}
	if st.Copied > 0 {
		s.log.Info("copied messages", "count", st.Copied, "bytes", humanize.IBytes(uint64(st.Bytes)),
			"source", name, "destination", dstName, "dry_run", s.opts.DryRun)
	}
	s.emit(Event{Type: EventFolderDone, Folder: name, Total: total, Done: total, Stats: st})
	return st, nil
}

// copyMessage fetches one message body and hands it to the pipeline. In dry
// run it only counts.
func (s *Syncer) copyMessage(ctx context.Context, pipe *Pipeline, uid uint32, h message.Header, dstName string, st *FolderStats) error {
	s.log.Debug("read from source", "id", h.ID, "size", humanize.IBytes(uint64(h.Size)))
	if s.opts.DryRun {
		st.Copied++
		st.Bytes += h.Size
		return nil
	}
	if err := pipe.WaitForCapacity(ctx); err != nil {
		return err
	}
	data, err := s.src.Fetch([]uint32{uid}, message.BodyItems)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", h.ID, err)
	}
	resp, ok := data[uid]
	if !ok {
		s.log.Warn("message vanished from source", "id", h.ID, "uid", uid)
		st.Malformed++
		return nil
	}
	msg, err := message.ParseMessage(dstName, h.ID, resp)
	if err != nil {
		s.log.Warn("skipped unreadable message", "id", h.ID, "err", err)
		st.Malformed++
		return nil
	}
	pipe.Submit(msg)
	st.Copied++
	st.Bytes += h.Size
	return nil
}

// buildDestinationIndex indexes destination headers. Headers without an
// identifier can never match a source message and are left out.
func (s *Syncer) buildDestinationIndex(data map[uint32]message.Response, folder string) Index {
	headers := make([]message.Header, 0, len(data))
	for uid, resp := range data {
		h, err := message.ParseHeader(resp)
		if err != nil {
			s.log.Debug("ignored destination header", "folder", folder, "uid", uid, "err", err)
			continue
		}
		headers = append(headers, h)
	}
	return BuildIndex(headers)
}

// fetchAll fetches items for every message of the selected folder, in
// batches of at most batch identifiers.
func fetchAll(c mailstore.Client, items []string, batch int) (map[uint32]message.Response, error) {
	ids, err := c.Search()
	if err != nil {
		return nil, err
	}
	result := make(map[uint32]message.Response, len(ids))
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		part, err := c.Fetch(ids[start:end], items)
		if err != nil {
			return nil, err
		}
		for id, resp := range part {
			result[id] = resp
		}
	}
	return result, nil
}

func sortedIDs(data map[uint32]message.Response) []uint32 {
	ids := make([]uint32, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Syncer) mapName(name string) string {
	if s.opts.Map == nil {
		return name
	}
	if to, ok := s.opts.Map[name]; ok && to != "" {
		return to
	}
	return name
}
