// Package imap provides an IMAP-backed inbox for the list manager,
// built on github.com/emersion/go-imap/v2.
package imap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/qll/ezlist"
)

// Sentinel errors.
var (
	// ErrNotConnected is returned when the inbox is used before Connect.
	ErrNotConnected = errors.New("imap: not connected")

	// ErrAlreadyConnected is returned by Connect on a connected inbox.
	ErrAlreadyConnected = errors.New("imap: already connected")
)

// Inbox polls a single IMAP mailbox. It implements ezlist.Inbox.
//
// An Inbox is connection-scoped, not goroutine-safe: the list manager
// connects, drains the mailbox and disconnects within one processing
// pass.
type Inbox struct {
	addr     string
	username string
	password string

	opts   *options
	logger *slog.Logger

	connected int32
	client    *imapclient.Client
}

var _ ezlist.Inbox = (*Inbox)(nil)

// New creates an inbox for the mailbox at addr (host:port).
func New(addr, username, password string, opts ...Option) *Inbox {
	o := newOptions(opts...)
	return &Inbox{
		addr:     addr,
		username: username,
		password: password,
		opts:     o,
		logger:   o.logger,
	}
}

// Connect dials the server, authenticates and selects the mailbox.
func (in *Inbox) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&in.connected, 0, 1) {
		return ErrAlreadyConnected
	}

	client, err := in.dial()
	if err != nil {
		atomic.StoreInt32(&in.connected, 0)
		return fmt.Errorf("failed to dial %s: %w", in.addr, err)
	}

	if err := client.Login(in.username, in.password).Wait(); err != nil {
		client.Close()
		atomic.StoreInt32(&in.connected, 0)
		return fmt.Errorf("failed to login as %s: %w", in.username, err)
	}

	if _, err := client.Select(in.opts.mailbox, nil).Wait(); err != nil {
		client.Close()
		atomic.StoreInt32(&in.connected, 0)
		return fmt.Errorf("failed to select mailbox %s: %w", in.opts.mailbox, err)
	}

	in.client = client
	in.logger.Debug("connected to imap server",
		"addr", in.addr,
		"mailbox", in.opts.mailbox,
	)
	return nil
}

func (in *Inbox) dial() (*imapclient.Client, error) {
	options := &imapclient.Options{TLSConfig: in.opts.tlsConfig}
	switch in.opts.security {
	case SecurityStartTLS:
		return imapclient.DialStartTLS(in.addr, options)
	case SecurityNone:
		return imapclient.DialInsecure(in.addr, options)
	default:
		return imapclient.DialTLS(in.addr, options)
	}
}

// Close expunges deleted messages and logs out.
func (in *Inbox) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&in.connected, 1, 0) {
		return nil
	}
	client := in.client
	in.client = nil

	if err := client.Expunge().Close(); err != nil {
		client.Close()
		return fmt.Errorf("failed to expunge mailbox: %w", err)
	}
	if err := client.Logout().Wait(); err != nil {
		client.Close()
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// Messages returns an iterator over every message currently in the
// mailbox. Messages are fetched lazily, one per Next call.
func (in *Inbox) Messages(ctx context.Context) ezlist.MessageIter {
	it := &messageIter{inbox: in}
	it.fetch = it.fetchClient
	return it
}

// Delete flags the message for deletion. The flag takes effect on the
// expunge performed by Close.
func (in *Inbox) Delete(ctx context.Context, id string) error {
	if atomic.LoadInt32(&in.connected) == 0 {
		return ErrNotConnected
	}

	uid, err := parseUID(id)
	if err != nil {
		return err
	}

	storeFlags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Flags:  []imap.Flag{imap.FlagDeleted},
		Silent: true,
	}
	if err := in.client.Store(imap.UIDSetNum(uid), storeFlags, nil).Close(); err != nil {
		return fmt.Errorf("failed to flag message %s as deleted: %w", id, err)
	}
	return nil
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q: %w", id, err)
	}
	return imap.UID(n), nil
}

// messageIter fetches mailbox messages one at a time. The UID list is
// resolved on the first Next call.
type messageIter struct {
	inbox *Inbox
	fetch func(uid imap.UID) (*ezlist.Message, error)

	searched bool
	uids     []imap.UID
	pos      int

	id  string
	msg *ezlist.Message
}

var _ ezlist.MessageIter = (*messageIter)(nil)

// Next advances to the next readable message. A message that cannot be
// fetched or parsed is logged and skipped; it stays in the mailbox
// without holding up the mail queued behind it. Errors are reserved for
// mailbox-level failures.
func (it *messageIter) Next(ctx context.Context) (bool, error) {
	if atomic.LoadInt32(&it.inbox.connected) == 0 {
		return false, ErrNotConnected
	}

	if !it.searched {
		data, err := it.inbox.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
		if err != nil {
			return false, fmt.Errorf("failed to search mailbox: %w", err)
		}
		it.uids = data.AllUIDs()
		it.searched = true
		it.pos = -1
	}

	for it.pos++; it.pos < len(it.uids); it.pos++ {
		uid := it.uids[it.pos]
		msg, err := it.fetch(uid)
		if err != nil {
			it.inbox.logger.Error("skipping unreadable message",
				"uid", uid,
				"error", err,
			)
			continue
		}

		it.id = strconv.FormatUint(uint64(uid), 10)
		it.msg = msg
		return true, nil
	}

	return false, nil
}

func (it *messageIter) fetchClient(uid imap.UID) (*ezlist.Message, error) {
	section := &imap.FetchItemBodySection{}
	fetchOptions := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	msgs, err := it.inbox.client.Fetch(imap.UIDSetNum(uid), fetchOptions).Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", uid, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("message %d vanished during fetch", uid)
	}

	raw := msgs[0].FindBodySection(section)
	msg, err := ezlist.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message %d: %w", uid, err)
	}
	return msg, nil
}

func (it *messageIter) Message() (string, *ezlist.Message) {
	return it.id, it.msg
}
