package report

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pepperpark/mailcopy/internal/syncer"
)

// Report records what a run did, per source folder.
type Report struct {
	mu            sync.Mutex
	RunID         string                        `json:"run_id"`
	Source        string                        `json:"source"`
	Destination   string                        `json:"destination"`
	DryRun        bool                          `json:"dry_run"`
	Started       time.Time                     `json:"started"`
	Finished      time.Time                     `json:"finished"`
	Folders       map[string]syncer.FolderStats `json:"folders"`
	Excluded      []string                      `json:"excluded,omitempty"`
	BytesTotal    int64                         `json:"bytes_total"`
	WriteFailures int                           `json:"write_failures"`
	Error         string                        `json:"error,omitempty"`
}

func New(runID, source, destination string, dryRun bool) *Report {
	return &Report{
		RunID:       runID,
		Source:      source,
		Destination: destination,
		DryRun:      dryRun,
		Started:     time.Now().UTC(),
		Folders:     make(map[string]syncer.FolderStats),
	}
}

// Record stores the counters of one folder, replacing earlier ones.
func (r *Report) Record(st syncer.FolderStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Folders[st.Source] = st
}

// Finish copies the run totals. res may be partial when err is set.
func (r *Report) Finish(res *syncer.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Finished = time.Now().UTC()
	if err != nil {
		r.Error = err.Error()
	}
	if res == nil {
		return
	}
	for _, st := range res.Folders {
		r.Folders[st.Source] = st
	}
	r.Excluded = res.Excluded
	r.BytesTotal = res.BytesTotal
	r.WriteFailures = res.Writes.Failed
}

func (r *Report) Save(path string) error {
	if path == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
