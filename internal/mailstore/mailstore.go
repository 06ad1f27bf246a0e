// Package mailstore describes the mail store capability the sync engine
// consumes, independent of the backing protocol.
package mailstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pepperpark/mailcopy/internal/message"
)

// NoSelectAttr marks a folder that holds no messages of its own.
const NoSelectAttr = `\Noselect`

// Folder is one entry of a folder listing.
type Folder struct {
	Attributes []string
	Delimiter  string
	Name       string
}

// Selectable reports whether the folder can hold messages.
func (f Folder) Selectable() bool {
	for _, a := range f.Attributes {
		if strings.EqualFold(a, NoSelectAttr) {
			return false
		}
	}
	return true
}

// Client is a connected, authenticated mail store.
//
// Search, Fetch and SelectFolder operate on the currently selected folder.
type Client interface {
	ListFolders() ([]Folder, error)
	FolderExists(name string) (bool, error)
	CreateFolder(name string) error
	SelectFolder(name string, readOnly bool) error
	Search() ([]uint32, error)
	Fetch(ids []uint32, items []string) (map[uint32]message.Response, error)
	Append(folder string, body []byte, flags []string, date time.Time) error
	Logout() error
}

// ErrInvalidScheme is returned for store URLs with an unsupported scheme.
var ErrInvalidScheme = errors.New("invalid scheme")

// ConnectionError reports a failure to reach a store.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthenticationError reports rejected credentials.
type AuthenticationError struct {
	User string
	Err  error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.User, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// WriteError reports a store-side rejection of an append.
type WriteError struct {
	Folder string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("append to %s: %v", e.Folder, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
