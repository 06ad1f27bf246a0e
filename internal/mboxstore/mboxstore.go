// Package mboxstore exposes a directory of mbox files as a mail store.
//
// Folder "a/b" lives in the file "<root>/a/b.mbox". Message identifiers are
// 1-based positions within the selected file. Flags are kept in the
// Status, X-Status and X-Keywords header fields, as most mbox readers do.
package mboxstore

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-mbox"
	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/pepperpark/mailcopy/internal/mailstore"
	"github.com/pepperpark/mailcopy/internal/message"
)

const (
	ext       = ".mbox"
	delimiter = "/"
	sender    = "MAILER-DAEMON"
)

// Store is a mail store backed by mbox files under a root directory.
type Store struct {
	root string

	mu       sync.Mutex
	selected string
	entries  []entry
}

type entry struct {
	raw   []byte
	id    string
	date  time.Time
	flags []string
}

var _ mailstore.Client = (*Store)(nil)

// Open returns a store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &mailstore.ConnectionError{Addr: dir, Err: err}
	}
	return &Store{root: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name)+ext)
}

func (s *Store) ListFolders() ([]mailstore.Folder, error) {
	var folders []mailstore.Folder
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		folders = append(folders, mailstore.Folder{
			Delimiter: delimiter,
			Name:      strings.TrimSuffix(filepath.ToSlash(rel), ext),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

func (s *Store) FolderExists(name string) (bool, error) {
	fi, err := os.Stat(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}

func (s *Store) CreateFolder(name string) error {
	p := s.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	return f.Close()
}

// SelectFolder loads the folder's messages. Selection mode is irrelevant for
// local files.
func (s *Store) SelectFolder(name string, _ bool) error {
	entries, err := s.load(name)
	if err != nil {
		return fmt.Errorf("select %s: %w", name, err)
	}
	s.mu.Lock()
	s.selected, s.entries = name, entries
	s.mu.Unlock()
	return nil
}

func (s *Store) load(name string) ([]entry, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []entry
	r := mbox.NewReader(f)
	for {
		mr, err := r.NextMessage()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read mbox: %w", err)
		}
		raw, err := io.ReadAll(mr)
		if err != nil {
			return nil, fmt.Errorf("read message: %w", err)
		}
		entries = append(entries, parseEntry(raw))
	}
}

// parseEntry splits the status fields off a stored message. A message whose
// header cannot be parsed is kept verbatim with no identifier.
func parseEntry(raw []byte) entry {
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return entry{raw: raw}
	}
	e := entry{
		raw:   raw,
		id:    strings.TrimSpace(h.Get("Message-Id")),
		flags: flagsFromHeader(h),
	}
	mh := mail.Header{Header: gomessage.Header{Header: h}}
	if d, err := mh.Date(); err == nil {
		e.date = d
	}
	if h.Has("Status") || h.Has("X-Status") || h.Has("X-Keywords") {
		h.Del("Status")
		h.Del("X-Status")
		h.Del("X-Keywords")
		var buf bytes.Buffer
		if err := textproto.WriteHeader(&buf, h); err == nil {
			if _, err := io.Copy(&buf, br); err == nil {
				e.raw = buf.Bytes()
			}
		}
	}
	return e
}

// Search returns the positions of all messages in the selected folder.
func (s *Store) Search() ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return nil, errors.New("search: no folder selected")
	}
	ids := make([]uint32, len(s.entries))
	for i := range s.entries {
		ids[i] = uint32(i + 1)
	}
	return ids, nil
}

// Fetch answers with the same item names an IMAP server would use.
func (s *Store) Fetch(ids []uint32, items []string) (map[uint32]message.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return nil, errors.New("fetch: no folder selected")
	}
	result := make(map[uint32]message.Response, len(ids))
	for _, id := range ids {
		if id == 0 || int(id) > len(s.entries) {
			continue
		}
		e := s.entries[id-1]
		resp := message.Response{}
		for _, item := range items {
			switch item {
			case message.ItemHeaders:
				block := "\r\n"
				if e.id != "" {
					block = "Message-Id: " + e.id + "\r\n\r\n"
				}
				resp["BODY[HEADER.FIELDS (MESSAGE-ID)]"] = []byte(block)
			case message.ItemBodyPeek:
				resp["BODY[]"] = e.raw
			case message.ItemSize:
				resp[message.ItemSize] = int64(len(e.raw))
			case message.ItemInternalDate:
				resp[message.ItemInternalDate] = e.date
			case message.ItemFlags:
				resp[message.ItemFlags] = append([]string(nil), e.flags...)
			}
		}
		result[id] = resp
	}
	return result, nil
}

// Append adds a message to the end of an existing folder file.
func (s *Store) Append(folder string, body []byte, flags []string, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(folder), os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return &mailstore.WriteError{Folder: folder, Err: err}
	}
	defer f.Close()

	if date.IsZero() {
		date = time.Now()
	}
	raw := append(statusFields(flags, lineEnding(body)), body...)

	w := mbox.NewWriter(f)
	mw, err := w.CreateMessage(sender, date)
	if err != nil {
		return &mailstore.WriteError{Folder: folder, Err: err}
	}
	if _, err := mw.Write(raw); err != nil {
		return &mailstore.WriteError{Folder: folder, Err: err}
	}
	if err := w.Close(); err != nil {
		return &mailstore.WriteError{Folder: folder, Err: err}
	}
	if err := f.Close(); err != nil {
		return &mailstore.WriteError{Folder: folder, Err: err}
	}
	if folder == s.selected {
		s.entries = append(s.entries, parseEntry(raw))
	}
	return nil
}

// Logout releases the selected folder.
func (s *Store) Logout() error {
	s.mu.Lock()
	s.selected, s.entries = "", nil
	s.mu.Unlock()
	return nil
}

func lineEnding(body []byte) string {
	if bytes.Contains(body, []byte("\r\n")) {
		return "\r\n"
	}
	return "\n"
}
