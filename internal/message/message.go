// Package message turns raw fetch responses into typed records.
package message

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/textproto"
)

// Fetch item names as requested from a store.
const (
	ItemHeaders      = "BODY.PEEK[HEADER.FIELDS (MESSAGE-ID)]"
	ItemBodyPeek     = "BODY.PEEK[]"
	ItemFlags        = "FLAGS"
	ItemSize         = "RFC822.SIZE"
	ItemInternalDate = "INTERNALDATE"
)

// Keys under which the items above come back. Stores answer PEEK requests
// without the .PEEK suffix.
const (
	keyHeaders = "BODY[HEADER.FIELDS (MESSAGE-ID)]"
	keyBody    = "BODY[]"
)

const (
	headerMessageID = "Message-Id"
	recentFlag      = `\Recent`
)

var (
	ErrMalformedHeader  = errors.New("malformed message header")
	ErrMalformedMessage = errors.New("malformed message")
)

// HeaderItems is the minimal item list of the header pass.
var HeaderItems = []string{ItemHeaders, ItemSize, ItemInternalDate}

// BodyItems is the item list used to fetch a message selected for copy.
var BodyItems = []string{ItemFlags, ItemBodyPeek, ItemSize, ItemInternalDate}

// Response is the field data a store returned for one message, keyed by
// fetch item name as the store spelled it.
type Response map[string]any

// Lookup finds an item ignoring double quotes and letter case in the key.
func (r Response) Lookup(item string) (any, bool) {
	if v, ok := r[item]; ok {
		return v, true
	}
	want := normalizeKey(item)
	for k, v := range r {
		if normalizeKey(k) == want {
			return v, true
		}
	}
	return nil, false
}

func normalizeKey(k string) string {
	return strings.ToUpper(strings.ReplaceAll(k, `"`, ""))
}

// Header is the lightweight record built by the header pass.
type Header struct {
	ID   string
	Size int64
}

// Message is a full message selected for copy.
type Message struct {
	ID     string
	Size   int64
	Folder string
	Body   []byte
	Flags  []string
	Date   time.Time
}

// MalformedHeaderError reports a header response that cannot be used for
// deduplication.
type MalformedHeaderError struct {
	Field string
	Err   error
}

func (e *MalformedHeaderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed header: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed header: missing %s", e.Field)
}

func (e *MalformedHeaderError) Is(target error) bool { return target == ErrMalformedHeader }

func (e *MalformedHeaderError) Unwrap() error { return e.Err }

// MalformedMessageError reports a full-message response missing a required
// field.
type MalformedMessageError struct {
	ID    string
	Field string
	Err   error
}

func (e *MalformedMessageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed message %s: %s: %v", e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("malformed message %s: missing %s", e.ID, e.Field)
}

func (e *MalformedMessageError) Is(target error) bool { return target == ErrMalformedMessage }

func (e *MalformedMessageError) Unwrap() error { return e.Err }

// ParseHeader extracts the message identifier and size from a header pass
// response.
func ParseHeader(resp Response) (Header, error) {
	size, err := sizeOf(resp)
	if err != nil {
		return Header{}, &MalformedHeaderError{Field: ItemSize, Err: err}
	}
	v, ok := resp.Lookup(keyHeaders)
	if !ok {
		return Header{}, &MalformedHeaderError{Field: keyHeaders}
	}
	block, err := bytesOf(v)
	if err != nil {
		return Header{}, &MalformedHeaderError{Field: keyHeaders, Err: err}
	}
	id, err := messageID(block)
	if err != nil {
		return Header{}, &MalformedHeaderError{Field: headerMessageID, Err: err}
	}
	if id == "" {
		return Header{}, &MalformedHeaderError{Field: headerMessageID}
	}
	return Header{ID: id, Size: size}, nil
}

// ParseMessage builds a Message destined for folder from a full fetch
// response. The \Recent flag is session state and is dropped.
func ParseMessage(folder, id string, resp Response) (*Message, error) {
	size, err := sizeOf(resp)
	if err != nil {
		return nil, &MalformedMessageError{ID: id, Field: ItemSize, Err: err}
	}
	v, ok := resp.Lookup(keyBody)
	if !ok {
		return nil, &MalformedMessageError{ID: id, Field: keyBody}
	}
	body, err := bytesOf(v)
	if err != nil {
		return nil, &MalformedMessageError{ID: id, Field: keyBody, Err: err}
	}
	v, ok = resp.Lookup(ItemInternalDate)
	if !ok {
		return nil, &MalformedMessageError{ID: id, Field: ItemInternalDate}
	}
	date, ok := v.(time.Time)
	if !ok {
		return nil, &MalformedMessageError{ID: id, Field: ItemInternalDate, Err: fmt.Errorf("unexpected type %T", v)}
	}
	v, ok = resp.Lookup(ItemFlags)
	if !ok {
		return nil, &MalformedMessageError{ID: id, Field: ItemFlags}
	}
	flags, err := flagsOf(v)
	if err != nil {
		return nil, &MalformedMessageError{ID: id, Field: ItemFlags, Err: err}
	}
	return &Message{
		ID:     id,
		Size:   size,
		Folder: folder,
		Body:   body,
		Flags:  flags,
		Date:   date,
	}, nil
}

// messageID reads the Message-Id field of a header block. Folded values are
// unfolded by the header reader.
func messageID(block []byte) (string, error) {
	block = append(bytes.TrimRight(block, "\r\n"), "\r\n\r\n"...)
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(block)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(h.Get(headerMessageID)), nil
}

func sizeOf(resp Response) (int64, error) {
	v, ok := resp.Lookup(ItemSize)
	if !ok {
		return 0, errors.New("missing")
	}
	switch n := v.(type) {
	case uint32:
		return int64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative size %d", n)
		}
		return int64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative size %d", n)
		}
		return n, nil
	case uint64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func bytesOf(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case io.Reader:
		return io.ReadAll(b)
	case nil:
		return []byte{}, nil
	default:
		return nil, fmt.Errorf("unexpected type %T", v)
	}
}

func flagsOf(v any) ([]string, error) {
	var raw []string
	switch f := v.(type) {
	case []string:
		raw = f
	case []any:
		for _, x := range f {
			s, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected flag type %T", x)
			}
			raw = append(raw, s)
		}
	case nil:
	default:
		return nil, fmt.Errorf("unexpected type %T", v)
	}
	flags := make([]string, 0, len(raw))
	for _, f := range raw {
		if strings.EqualFold(f, recentFlag) {
			continue
		}
		flags = append(flags, f)
	}
	return flags, nil
}
