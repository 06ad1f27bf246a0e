package imaputil

import (
	"bytes"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepperpark/mailcopy/internal/message"
)

func TestToResponseHeaderPass(t *testing.T) {
	date := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := imap.NewMessage(7, []imap.FetchItem{imap.FetchRFC822Size, imap.FetchInternalDate, imap.FetchUid})
	msg.Uid = 42
	msg.Size = 1234
	msg.InternalDate = date

	// servers answer without the .PEEK and sometimes quote the field names
	sec, err := imap.ParseBodySectionName(`BODY[HEADER.FIELDS ("Message-ID")]`)
	require.NoError(t, err)
	msg.Body[sec] = bytes.NewBufferString("Message-ID: <abc@example.com>\r\n\r\n")

	resp, err := toResponse(msg)
	require.NoError(t, err)

	h, err := message.ParseHeader(resp)
	require.NoError(t, err)
	assert.Equal(t, "<abc@example.com>", h.ID)
	assert.Equal(t, int64(1234), h.Size)
	assert.Equal(t, date, resp[message.ItemInternalDate])
}

func TestToResponseBodyPass(t *testing.T) {
	raw := "Message-ID: <abc@example.com>\r\n\r\nhello\r\n"
	msg := imap.NewMessage(1, []imap.FetchItem{imap.FetchRFC822Size, imap.FetchFlags, imap.FetchInternalDate, imap.FetchUid})
	msg.Uid = 3
	msg.Size = uint32(len(raw))
	msg.Flags = []string{imap.SeenFlag, imap.RecentFlag}
	msg.InternalDate = time.Now()
	sec, err := imap.ParseBodySectionName("BODY[]")
	require.NoError(t, err)
	msg.Body[sec] = bytes.NewBufferString(raw)

	resp, err := toResponse(msg)
	require.NoError(t, err)

	m, err := message.ParseMessage("Archive", "<abc@example.com>", resp)
	require.NoError(t, err)
	assert.Equal(t, raw, string(m.Body))
	assert.Equal(t, []string{imap.SeenFlag}, m.Flags)
	assert.Equal(t, "Archive", m.Folder)
}
