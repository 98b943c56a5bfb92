// Package mailboxtest provides an in-memory IMAP session for tests.
package mailboxtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/mailtriage/internal/mailbox"
)

// Message is one stored message.
type Message struct {
	UID   imap.UID
	Raw   []byte
	Flags []imap.Flag
}

// HasFlag reports whether the message carries flag.
func (m *Message) HasFlag(flag imap.Flag) bool {
	for _, f := range m.Flags {
		if strings.EqualFold(string(f), string(flag)) {
			return true
		}
	}
	return false
}

func (m *Message) addFlag(flag imap.Flag) {
	if !m.HasFlag(flag) {
		m.Flags = append(m.Flags, flag)
	}
}

type box struct {
	entry    mailbox.Entry
	messages []*Message
	nextUID  imap.UID
}

// Server is a single-user in-memory mail store implementing
// mailbox.Session. Rejection switches make it behave like partially
// compliant servers. Every command is recorded in Calls.
type Server struct {
	mu sync.Mutex

	boxes    []*box
	selected *box

	// Calls is the command log, e.g. "COPY 1 Escalar" or "UID STORE 42
	// +FLAGS (\Deleted)". Rejected commands carry a " NO" suffix.
	Calls []string

	RejectSeqCopy  bool
	RejectSeqStore bool
	RejectUIDCopy  bool
	RejectUIDStore bool
	RejectCreate   bool
	OmitUID        bool
	RejectCopyTo   map[string]bool

	ListErr       error
	DialErr       error
	FetchErr      error
	PanicOnSearch bool

	LoggedOut int
	Dials     int

	defaultDelim string
}

var _ mailbox.Session = (*Server)(nil)

// NewServer returns a server with an INBOX using delim as hierarchy
// delimiter.
func NewServer(delim string) *Server {
	s := &Server{defaultDelim: delim, RejectCopyTo: map[string]bool{}}
	s.AddMailbox("INBOX")
	return s
}

// AddMailbox creates a mailbox with the given attributes.
func (s *Server) AddMailbox(name string, attrs ...imap.MailboxAttr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boxes = append(s.boxes, &box{
		entry:   mailbox.Entry{Name: name, Delimiter: s.defaultDelim, Attrs: attrs},
		nextUID: 1,
	})
}

// AddListLine registers a mailbox from a LIST response captured from a
// real server.
func (s *Server) AddListLine(line string) error {
	e, err := mailbox.ParseListLine(line)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boxes = append(s.boxes, &box{entry: e, nextUID: 1})
	return nil
}

// Deliver appends raw to mailbox name as an unseen message and returns its
// uid.
func (s *Server) Deliver(name string, raw []byte) imap.UID {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.find(name)
	if b == nil {
		panic("mailboxtest: no mailbox " + name)
	}
	return b.add(raw, nil)
}

// Messages returns the messages of mailbox name.
func (s *Server) Messages(name string) []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.find(name); b != nil {
		return b.messages
	}
	return nil
}

// Exists reports whether mailbox name exists.
func (s *Server) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(name) != nil
}

// CallLog returns a copy of the command log.
func (s *Server) CallLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Calls...)
}

// Dialer returns a mailbox.Dialer handing out this server.
func (s *Server) Dialer() mailbox.Dialer {
	return func(context.Context) (mailbox.Session, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.Dials++
		if s.DialErr != nil {
			return nil, s.DialErr
		}
		s.selected = nil
		return s, nil
	}
}

func (b *box) add(raw []byte, flags []imap.Flag) imap.UID {
	uid := b.nextUID
	b.nextUID++
	b.messages = append(b.messages, &Message{
		UID:   uid,
		Raw:   append([]byte(nil), raw...),
		Flags: append([]imap.Flag(nil), flags...),
	})
	return uid
}

func (s *Server) find(name string) *box {
	for _, b := range s.boxes {
		if b.entry.Name == name || (strings.EqualFold(name, "INBOX") && strings.EqualFold(b.entry.Name, "INBOX")) {
			return b
		}
	}
	return nil
}

func (s *Server) record(format string, args ...any) {
	s.Calls = append(s.Calls, fmt.Sprintf(format, args...))
}

// done marks the last logged command as rejected when err is non-nil.
func (s *Server) done(err error) error {
	if err != nil && len(s.Calls) > 0 {
		s.Calls[len(s.Calls)-1] += " NO"
	}
	return err
}

func no(text string) error {
	return &imap.Error{Type: imap.StatusResponseTypeNo, Text: text}
}

func (s *Server) bySeq(seq uint32) (*Message, error) {
	if s.selected == nil {
		return nil, no("no mailbox selected")
	}
	if seq == 0 || int(seq) > len(s.selected.messages) {
		return nil, no("invalid sequence number")
	}
	return s.selected.messages[seq-1], nil
}

func (s *Server) byUID(uid imap.UID) (*Message, error) {
	if s.selected == nil {
		return nil, no("no mailbox selected")
	}
	for _, m := range s.selected.messages {
		if m.UID == uid {
			return m, nil
		}
	}
	return nil, no("no such uid")
}

func (s *Server) SelectMailbox(_ context.Context, name string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SELECT %s", name)
	b := s.find(name)
	if b == nil {
		return 0, no("mailbox does not exist")
	}
	s.selected = b
	return uint32(len(b.messages)), nil
}

func (s *Server) SearchUnseen(context.Context) ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SEARCH UNSEEN")
	if s.PanicOnSearch {
		panic("mailboxtest: search exploded")
	}
	if s.selected == nil {
		return nil, no("no mailbox selected")
	}
	var out []uint32
	for i, m := range s.selected.messages {
		if !m.HasFlag(imap.FlagSeen) {
			out = append(out, uint32(i+1))
		}
	}
	return out, nil
}

func (s *Server) FetchRaw(_ context.Context, seq uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FETCH %d BODY[]", seq)
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	m, err := s.bySeq(seq)
	if err != nil {
		return nil, err
	}
	m.addFlag(imap.FlagSeen)
	return append([]byte(nil), m.Raw...), nil
}

func (s *Server) FetchUID(_ context.Context, seq uint32) (imap.UID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FETCH %d UID", seq)
	m, err := s.bySeq(seq)
	if err != nil {
		return 0, err
	}
	if s.OmitUID {
		return 0, nil
	}
	return m.UID, nil
}

func (s *Server) copyTo(m *Message, dest string) error {
	if s.RejectCopyTo[dest] {
		return no("copy refused")
	}
	b := s.find(dest)
	if b == nil {
		return &imap.Error{Type: imap.StatusResponseTypeNo, Code: imap.ResponseCodeTryCreate, Text: "mailbox does not exist"}
	}
	if !b.entry.Selectable() {
		return no("mailbox is not selectable")
	}
	b.add(m.Raw, m.Flags)
	return nil
}

func (s *Server) CopySeq(_ context.Context, seq uint32, dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("COPY %d %s", seq, dest)
	return s.done(func() error {
		if s.RejectSeqCopy {
			return no("COPY not permitted")
		}
		m, err := s.bySeq(seq)
		if err != nil {
			return err
		}
		return s.copyTo(m, dest)
	}())
}

func (s *Server) CopyUID(_ context.Context, uid imap.UID, dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UID COPY %d %s", uid, dest)
	return s.done(func() error {
		if s.RejectUIDCopy {
			return no("UID COPY not permitted")
		}
		m, err := s.byUID(uid)
		if err != nil {
			return err
		}
		return s.copyTo(m, dest)
	}())
}

func (s *Server) MarkDeletedSeq(_ context.Context, seq uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("STORE %d +FLAGS (\\Deleted)", seq)
	return s.done(func() error {
		if s.RejectSeqStore {
			return no("STORE not permitted")
		}
		m, err := s.bySeq(seq)
		if err != nil {
			return err
		}
		m.addFlag(imap.FlagDeleted)
		return nil
	}())
}

func (s *Server) MarkDeletedUID(_ context.Context, uid imap.UID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UID STORE %d +FLAGS (\\Deleted)", uid)
	return s.done(func() error {
		if s.RejectUIDStore {
			return no("UID STORE not permitted")
		}
		m, err := s.byUID(uid)
		if err != nil {
			return err
		}
		m.addFlag(imap.FlagDeleted)
		return nil
	}())
}

func (s *Server) ListMailboxes(context.Context) ([]*imap.ListData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("LIST \"\" *")
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]*imap.ListData, 0, len(s.boxes))
	for _, b := range s.boxes {
		d := &imap.ListData{Mailbox: b.entry.Name, Attrs: b.entry.Attrs}
		if b.entry.Delimiter != "" {
			d.Delim = []rune(b.entry.Delimiter)[0]
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Server) CreateMailbox(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CREATE %s", name)
	return s.done(func() error {
		if s.find(name) != nil {
			return &imap.Error{
				Type: imap.StatusResponseTypeNo,
				Code: imap.ResponseCodeAlreadyExists,
				Text: "Mailbox already exists",
			}
		}
		if s.RejectCreate {
			return no("CREATE not permitted")
		}
		s.boxes = append(s.boxes, &box{
			entry:   mailbox.Entry{Name: name, Delimiter: s.defaultDelim},
			nextUID: 1,
		})
		return nil
	}())
}

func (s *Server) Append(_ context.Context, name string, raw []byte, flags []imap.Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("APPEND %s", name)
	b := s.find(name)
	if b == nil {
		return &imap.Error{Type: imap.StatusResponseTypeNo, Code: imap.ResponseCodeTryCreate, Text: "mailbox does not exist"}
	}
	b.add(raw, flags)
	return nil
}

func (s *Server) Expunge(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("EXPUNGE")
	if s.selected == nil {
		return no("no mailbox selected")
	}
	kept := s.selected.messages[:0]
	for _, m := range s.selected.messages {
		if !m.HasFlag(imap.FlagDeleted) {
			kept = append(kept, m)
		}
	}
	s.selected.messages = kept
	return nil
}

func (s *Server) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("LOGOUT")
	s.LoggedOut++
	s.selected = nil
	return nil
}
