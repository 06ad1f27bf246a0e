package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepperpark/mailcopy/internal/mboxstore"
)

func writeMbox(t *testing.T, root, folder string, ids ...string) {
	t.Helper()
	var b strings.Builder
	for i, id := range ids {
		fmt.Fprintf(&b, "From sender@example.com Fri Mar  1 1%d:00:00 2024\n", i%10)
		fmt.Fprintf(&b, "Message-ID: %s\nDate: Fri, 01 Mar 2024 10:00:00 +0000\nStatus: RO\n\nmessage %d\n\n", id, i)
	}
	p := filepath.Join(root, filepath.FromSlash(folder)+".mbox")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o600))
}

func TestMboxToMboxIncremental(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	writeMbox(t, srcDir, "INBOX", "<1@x>", "<2@x>", "<3@x>")
	writeMbox(t, srcDir, "Archive/2023", "<4@x>")
	writeMbox(t, srcDir, "Trash", "<5@x>")
	// destination already has part of INBOX
	writeMbox(t, dstDir, "INBOX", "<2@x>")

	src, err := mboxstore.Open(srcDir)
	require.NoError(t, err)
	dst, err := mboxstore.Open(dstDir)
	require.NoError(t, err)
	opts := Options{Exclude: []string{"Trash"}, BufferSize: 2}

	res, err := New(src, dst, opts, discardLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, statsFor(res, "INBOX").Copied)
	assert.Equal(t, 1, statsFor(res, "INBOX").Skipped)
	assert.Equal(t, 1, statsFor(res, "Archive/2023").Copied)
	assert.Equal(t, 3, res.Writes.Written)

	exists, err := dst.FolderExists("Trash")
	require.NoError(t, err)
	assert.False(t, exists)

	// a second run finds everything in place
	res, err = New(src, dst, opts, discardLogger()).Run(context.Background())
	require.NoError(t, err)
	for _, st := range res.Folders {
		assert.Zero(t, st.Copied, st.Source)
	}
	assert.Equal(t, 3, statsFor(res, "INBOX").Skipped)

	require.NoError(t, dst.SelectFolder("INBOX", true))
	ids, err := dst.Search()
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}
