// Package imaputil implements mailstore.Client on top of an IMAP connection.
package imaputil

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"

	"github.com/pepperpark/mailcopy/internal/mailstore"
	"github.com/pepperpark/mailcopy/internal/message"
)

// DialOptions tunes how a connection is established.
type DialOptions struct {
	TLSConfig *tls.Config
	// StartTLS upgrades plain imap:// connections.
	StartTLS bool
	// Debug receives the raw protocol exchange when non-nil.
	Debug io.Writer
}

// Client is an authenticated IMAP session.
type Client struct {
	c *client.Client
}

var _ mailstore.Client = (*Client)(nil)

// Dial connects and authenticates against the endpoint, then selects its
// initial folder if the URL names one.
func Dial(ctx context.Context, ep *mailstore.Endpoint, opts DialOptions) (*Client, error) {
	addr := ep.Addr()
	tlsConfig := opts.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	if tlsConfig.ServerName == "" {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.ServerName = ep.Host
	}

	var c *client.Client
	var err error
	if ep.TLS() {
		c, err = client.DialTLS(addr, tlsConfig)
		if err != nil {
			return nil, &mailstore.ConnectionError{Addr: addr, Err: err}
		}
	} else {
		c, err = client.Dial(addr)
		if err != nil {
			return nil, &mailstore.ConnectionError{Addr: addr, Err: err}
		}
		if opts.StartTLS {
			if err := c.StartTLS(tlsConfig); err != nil {
				_ = c.Logout()
				return nil, &mailstore.ConnectionError{Addr: addr, Err: fmt.Errorf("starttls: %w", err)}
			}
		}
	}
	// Enable raw IMAP wire debug if requested via environment variable
	if opts.Debug != nil {
		c.SetDebug(opts.Debug)
	} else if os.Getenv("MAILCOPY_IMAP_DEBUG") == "1" {
		c.SetDebug(os.Stderr)
	}
	// On cancel, force-close the connection to unblock I/O
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()

	if err := login(c, ep.User, ep.Password); err != nil {
		_ = c.Logout()
		return nil, &mailstore.AuthenticationError{User: ep.User, Err: err}
	}
	if ep.Path != "" {
		if _, err := c.Select(ep.Path, false); err != nil {
			_ = c.Logout()
			return nil, fmt.Errorf("select %s: %w", ep.Path, err)
		}
	}
	return &Client{c: c}, nil
}

// login prefers SASL PLAIN and falls back to LOGIN.
func login(c *client.Client, user, pass string) error {
	if ok, err := c.SupportAuth(sasl.Plain); err == nil && ok {
		return c.Authenticate(sasl.NewPlainClient("", user, pass))
	}
	return c.Login(user, pass)
}

// Terminate closes the connection without a LOGOUT exchange.
func (c *Client) Terminate() error { return c.c.Terminate() }

// ListFolders returns all folders.
func (c *Client) ListFolders() ([]mailstore.Folder, error) {
	return c.list("*")
}

func (c *Client) list(pattern string) ([]mailstore.Folder, error) {
	folders := []mailstore.Folder{}
	ch := make(chan *imap.MailboxInfo, 32)
	done := make(chan error, 1)
	go func() {
		done <- c.c.List("", pattern, ch)
	}()
	for m := range ch {
		if m != nil {
			folders = append(folders, mailstore.Folder{
				Attributes: m.Attributes,
				Delimiter:  m.Delimiter,
				Name:       m.Name,
			})
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("list %q: %w", pattern, err)
	}
	return folders, nil
}

// FolderExists lists the exact name.
func (c *Client) FolderExists(name string) (bool, error) {
	folders, err := c.list(name)
	if err != nil {
		return false, err
	}
	for _, f := range folders {
		if f.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) CreateFolder(name string) error {
	if err := c.c.Create(name); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	return nil
}

// SelectFolder selects a folder in read-only or read-write mode.
func (c *Client) SelectFolder(name string, readOnly bool) error {
	if _, err := c.c.Select(name, readOnly); err != nil {
		return fmt.Errorf("select %s: %w", name, err)
	}
	return nil
}

// Search returns the UIDs of all messages in the selected folder.
func (c *Client) Search() ([]uint32, error) {
	uids, err := c.c.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return uids, nil
}

// Fetch retrieves items for the given UIDs. Body sections are keyed by the
// name the server answered with.
func (c *Client) Fetch(ids []uint32, items []string) (map[uint32]message.Response, error) {
	result := make(map[uint32]message.Response, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	seq := new(imap.SeqSet)
	seq.AddNum(ids...)

	fetchItems := make([]imap.FetchItem, 0, len(items)+1)
	for _, it := range items {
		fetchItems = append(fetchItems, imap.FetchItem(it))
	}
	fetchItems = append(fetchItems, imap.FetchUid)

	msgs := make(chan *imap.Message, 64)
	done := make(chan error, 1)
	go func() {
		done <- c.c.UidFetch(seq, fetchItems, msgs)
	}()
	for msg := range msgs {
		if msg == nil || msg.Uid == 0 {
			continue
		}
		resp, err := toResponse(msg)
		if err != nil {
			// keep draining so the fetch goroutine can finish
			for range msgs {
			}
			<-done
			return nil, fmt.Errorf("fetch uid %d: %w", msg.Uid, err)
		}
		result[msg.Uid] = resp
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return result, nil
}

func toResponse(msg *imap.Message) (message.Response, error) {
	resp := make(message.Response, len(msg.Items)+len(msg.Body))
	for k := range msg.Items {
		switch k {
		case imap.FetchRFC822Size:
			resp[string(k)] = msg.Size
		case imap.FetchInternalDate:
			resp[string(k)] = msg.InternalDate
		case imap.FetchFlags:
			resp[string(k)] = msg.Flags
		case imap.FetchUid:
			resp[string(k)] = msg.Uid
		}
	}
	for section, lit := range msg.Body {
		var b []byte
		if lit != nil {
			var err error
			if b, err = io.ReadAll(lit); err != nil {
				return nil, err
			}
		}
		resp[string(section.FetchItem())] = b
	}
	return resp, nil
}

// Append stores body in folder with the given flags and internal date.
func (c *Client) Append(folder string, body []byte, flags []string, date time.Time) error {
	if err := c.c.Append(folder, flags, date, bytes.NewReader(body)); err != nil {
		return &mailstore.WriteError{Folder: folder, Err: err}
	}
	return nil
}

func (c *Client) Logout() error {
	return c.c.Logout()
}
