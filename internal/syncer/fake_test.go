package syncer

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/pepperpark/mailcopy/internal/mailstore"
	"github.com/pepperpark/mailcopy/internal/message"
)

type fakeMsg struct {
	id    string // empty means no Message-ID header
	body  string
	flags []string
}

// fakeStore is an in-memory mailstore.Client that records what the driver
// asked of it.
type fakeStore struct {
	mu        sync.Mutex
	delim     string
	folders   map[string][]fakeMsg
	order     []string
	attrs     map[string][]string
	selected  string
	created   []string
	appended  []fakeAppend
	fetchSize []int
	failIDs   map[string]bool
	// noFlags omits FLAGS from body fetches of these ids.
	noFlags map[string]bool
	// vanished ids answer header fetches but not body fetches.
	vanished map[string]bool
	// appendHook runs before every append, outside the lock.
	appendHook func(folder string, body []byte)
}

type fakeAppend struct {
	folder string
	id     string
	body   []byte
	flags  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{delim: "/", folders: map[string][]fakeMsg{}, attrs: map[string][]string{}, failIDs: map[string]bool{},
		noFlags: map[string]bool{}, vanished: map[string]bool{}}
}

func (f *fakeStore) add(folder string, msgs ...fakeMsg) *fakeStore {
	if _, ok := f.folders[folder]; !ok {
		f.order = append(f.order, folder)
	}
	f.folders[folder] = append(f.folders[folder], msgs...)
	return f
}

func rawMessage(id, body string) string {
	return fmt.Sprintf("Message-ID: %s\r\nSubject: test\r\n\r\n%s", id, body)
}

func (f *fakeStore) ListFolders() ([]mailstore.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mailstore.Folder, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, mailstore.Folder{Name: name, Delimiter: f.delim, Attributes: f.attrs[name]})
	}
	return out, nil
}

func (f *fakeStore) FolderExists(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.folders[name]
	return ok, nil
}

func (f *fakeStore) CreateFolder(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.folders[name]; ok {
		return fmt.Errorf("%s exists", name)
	}
	f.folders[name] = nil
	f.order = append(f.order, name)
	f.created = append(f.created, name)
	return nil
}

func (f *fakeStore) SelectFolder(name string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.folders[name]; !ok {
		return fmt.Errorf("no folder %s", name)
	}
	f.selected = name
	return nil
}

func (f *fakeStore) Search() ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uint32, len(f.folders[f.selected]))
	for i := range ids {
		ids[i] = uint32(i + 1)
	}
	return ids, nil
}

func (f *fakeStore) Fetch(ids []uint32, items []string) (map[uint32]message.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchSize = append(f.fetchSize, len(ids))
	msgs := f.folders[f.selected]
	out := map[uint32]message.Response{}
	for _, id := range ids {
		m := msgs[id-1]
		raw := rawMessage(m.id, m.body)
		if m.id == "" {
			raw = "Subject: test\r\n\r\n" + m.body
		}
		body := slices.Contains(items, message.ItemBodyPeek)
		if body && f.vanished[m.id] {
			continue
		}
		resp := message.Response{}
		for _, it := range items {
			if it == message.ItemFlags && f.noFlags[m.id] {
				continue
			}
			switch it {
			case message.ItemHeaders:
				if m.id != "" {
					resp[`BODY[HEADER.FIELDS ("MESSAGE-ID")]`] = []byte("Message-ID: " + m.id + "\r\n\r\n")
				} else {
					resp[`BODY[HEADER.FIELDS ("MESSAGE-ID")]`] = []byte("\r\n")
				}
			case message.ItemSize:
				resp[it] = uint32(len(raw))
			case message.ItemInternalDate:
				resp[it] = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			case message.ItemFlags:
				resp[it] = append([]string{`\Recent`}, m.flags...)
			case message.ItemBodyPeek:
				resp["BODY[]"] = []byte(raw)
			}
		}
		out[id] = resp
	}
	return out, nil
}

func (f *fakeStore) Append(folder string, body []byte, flags []string, _ time.Time) error {
	if f.appendHook != nil {
		f.appendHook(folder, body)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := headerID(body)
	if f.failIDs[id] {
		return &mailstore.WriteError{Folder: folder, Err: fmt.Errorf("rejected")}
	}
	if _, ok := f.folders[folder]; !ok {
		return &mailstore.WriteError{Folder: folder, Err: fmt.Errorf("no such folder")}
	}
	f.folders[folder] = append(f.folders[folder], fakeMsg{id: id, body: string(body), flags: flags})
	f.appended = append(f.appended, fakeAppend{folder: folder, id: id, body: body, flags: flags})
	return nil
}

func (f *fakeStore) Logout() error { return nil }

func (f *fakeStore) appendedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, a := range f.appended {
		ids = append(ids, a.id)
	}
	sort.Strings(ids)
	return ids
}

// headerID pulls the Message-ID out of a body produced by rawMessage.
func headerID(body []byte) string {
	var id string
	_, _ = fmt.Sscanf(string(body), "Message-ID: %s", &id)
	return id
}
