package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepperpark/mailcopy/internal/mboxstore"
	"github.com/pepperpark/mailcopy/internal/report"
	"github.com/pepperpark/mailcopy/internal/syncer"
)

func TestFormatETA(t *testing.T) {
	cases := []struct {
		remaining int
		rate      float64
		want      string
	}{
		{0, 10, "ETA 0s"},
		{10, 0, "ETA --"},
		{5, 10, "ETA <1s"},
		{30, 1, "ETA 30s"},
		{90, 1, "ETA 1m30s"},
		{7260, 1, "ETA 2h1m"},
		{10000000, 1, "ETA >99h"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, formatETA(c.remaining, c.rate), "%d@%v", c.remaining, c.rate)
	}
}

func TestModelAppliesEvents(t *testing.T) {
	rep := report.New("run", "src", "dst", false)
	m := newModel(context.Background(), func() {}, nil, rep)

	m.apply(syncer.Event{Type: syncer.EventFolderSkipped, Folder: "Trash"})
	m.apply(syncer.Event{Type: syncer.EventFolderStart, Folder: "INBOX"})
	m.apply(syncer.Event{Type: syncer.EventFolderProgress, Folder: "INBOX", Total: 4, Done: 1})
	m.apply(syncer.Event{Type: syncer.EventFolderProgress, Folder: "Work", Total: 6})
	assert.Equal(t, "INBOX", m.current)
	assert.Equal(t, 10, m.totalAll)
	assert.Equal(t, 1, m.doneAll)

	st := &syncer.FolderStats{Source: "INBOX", Destination: "INBOX", Copied: 3, Skipped: 1}
	m.apply(syncer.Event{Type: syncer.EventFolderDone, Folder: "INBOX", Total: 4, Done: 4, Stats: st})
	assert.Equal(t, 4, m.doneAll)
	assert.Equal(t, 3, m.copied)
	assert.Equal(t, 1, m.skipped)
	assert.Equal(t, 1, m.excluded)
	assert.Contains(t, rep.Folders, "INBOX")
}

func TestModelRateFallsBackToAverage(t *testing.T) {
	m := newModel(context.Background(), func() {}, nil, report.New("run", "", "", false))
	m.started = time.Now().Add(-10 * time.Second)
	m.doneAll = 50
	assert.InDelta(t, 5.0, m.rate(), 0.5)
}

func TestModelCountsFromResultWhenEventsDropped(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	var b strings.Builder
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&b, "From sender@example.com Fri Mar  1 10:00:00 2024\n")
		fmt.Fprintf(&b, "Message-ID: <%d@x>\nDate: Fri, 01 Mar 2024 10:00:00 +0000\n\nmessage %d\n\n", i, i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "INBOX.mbox"), []byte(b.String()), 0o600))
	src, err := mboxstore.Open(srcDir)
	require.NoError(t, err)
	dst, err := mboxstore.Open(dstDir)
	require.NoError(t, err)

	worker := syncer.New(src, dst, syncer.Options{DryRun: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rep := report.New("run", "src", "dst", true)
	m := newModel(context.Background(), func() {}, worker, rep)

	// nothing reads events while the run is going, so most of them are dropped
	res, err := worker.Run(context.Background())
	require.NoError(t, err)
	m.Update(doneMsg{res: res, err: err})

	assert.True(t, m.finished)
	assert.Equal(t, 300, m.copied)
	assert.Equal(t, m.totalAll, m.doneAll)
	assert.NotContains(t, m.View(), "up to date")
}
