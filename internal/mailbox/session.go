package mailbox

import (
	"context"

	"github.com/emersion/go-imap/v2"
)

// Session is the subset of an authenticated IMAP connection the catalog,
// the move engine and the poll cycle need. Client implements it over
// go-imap; mailboxtest.Server implements it in memory.
type Session interface {
	SelectMailbox(ctx context.Context, name string) (uint32, error)
	SearchUnseen(ctx context.Context) ([]uint32, error)
	FetchRaw(ctx context.Context, seq uint32) ([]byte, error)

	// FetchUID returns the unique id of seq, or 0 when the server did not
	// report one.
	FetchUID(ctx context.Context, seq uint32) (imap.UID, error)

	CopySeq(ctx context.Context, seq uint32, dest string) error
	CopyUID(ctx context.Context, uid imap.UID, dest string) error
	MarkDeletedSeq(ctx context.Context, seq uint32) error
	MarkDeletedUID(ctx context.Context, uid imap.UID) error

	ListMailboxes(ctx context.Context) ([]*imap.ListData, error)
	CreateMailbox(ctx context.Context, name string) error
	Append(ctx context.Context, mailbox string, raw []byte, flags []imap.Flag) error
	Expunge(ctx context.Context) error
	Logout() error
}

// Dialer opens a new authenticated Session.
type Dialer func(ctx context.Context) (Session, error)
