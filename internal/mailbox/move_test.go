package mailbox_test

import (
	"context"
	"strings"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/nhle/mailtriage/internal/mailbox"
	"github.com/nhle/mailtriage/internal/mailbox/mailboxtest"
)

const sample = "From: a@example.com\r\nSubject: hi\r\nMessage-Id: <m@x>\r\n\r\nbody\r\n"

// setup returns a server with one message in INBOX, selected.
func setup(t *testing.T, delim string) (*mailboxtest.Server, *mailbox.Mover) {
	t.Helper()
	srv := mailboxtest.NewServer(delim)
	srv.Deliver("INBOX", []byte(sample))
	_, err := srv.SelectMailbox(context.Background(), "INBOX")
	require.NoError(t, err)
	srv.Calls = nil

	catalog := mailbox.NewCatalog(srv, zerolog.Nop())
	return srv, mailbox.NewMover(srv, catalog, zerolog.Nop())
}

func TestMoveBySequence(t *testing.T) {
	srv, mover := setup(t, ".")
	srv.AddMailbox("INBOX.Respondidos")

	out := mover.Move(context.Background(), 1, "Respondidos")

	require.True(t, out.Moved)
	assert.Equal(t, mailbox.StrategySequence, out.Strategy)
	assert.Equal(t, "INBOX.Respondidos", out.Mailbox)
	assert.NoError(t, out.Err)

	assert.Equal(t, []string{
		`LIST "" *`,
		"COPY 1 INBOX.Respondidos",
		`STORE 1 +FLAGS (\Deleted)`,
	}, srv.CallLog())

	require.Len(t, srv.Messages("INBOX.Respondidos"), 1)
	assert.True(t, srv.Messages("INBOX")[0].HasFlag(imap.FlagDeleted))
}

func TestMoveCreatesMissingMailbox(t *testing.T) {
	srv, mover := setup(t, "/")

	out := mover.Move(context.Background(), 1, "Escalar")

	require.True(t, out.Moved)
	assert.Equal(t, "Escalar", out.Mailbox)
	assert.True(t, srv.Exists("Escalar"))
	assert.Contains(t, srv.CallLog(), "CREATE Escalar")
}

func TestMoveFallsBackToUID(t *testing.T) {
	srv, mover := setup(t, ".")
	srv.AddMailbox("INBOX.Respondidos")
	srv.RejectSeqCopy = true

	out := mover.Move(context.Background(), 1, "Respondidos")

	require.True(t, out.Moved)
	assert.Equal(t, mailbox.StrategyUID, out.Strategy)
	assert.Equal(t, "INBOX.Respondidos", out.Mailbox)

	calls := srv.CallLog()
	assert.Equal(t, []string{
		`UID COPY 1 INBOX.Respondidos`,
		`UID STORE 1 +FLAGS (\Deleted)`,
	}, calls[len(calls)-2:])

	for _, c := range calls {
		assert.False(t, strings.HasPrefix(c, "STORE "), "sequence store after rejected copy: %s", c)
	}
}

func TestMoveFailsWithoutUID(t *testing.T) {
	srv, mover := setup(t, ".")
	srv.RejectSeqCopy = true
	srv.OmitUID = true

	out := mover.Move(context.Background(), 1, "Escalar")

	assert.False(t, out.Moved)
	assert.Equal(t, mailbox.StrategyNone, out.Strategy)
	assert.ErrorIs(t, out.Err, mailbox.ErrNoUID)

	for _, c := range srv.CallLog() {
		assert.False(t, strings.HasPrefix(c, "UID "), "uid command without uid: %s", c)
	}
	assert.False(t, srv.Messages("INBOX")[0].HasFlag(imap.FlagDeleted))
}

func TestMoveAllRejected(t *testing.T) {
	srv, mover := setup(t, ".")
	srv.RejectSeqCopy = true
	srv.RejectUIDCopy = true

	out := mover.Move(context.Background(), 1, "Escalar")

	assert.False(t, out.Moved)
	assert.Error(t, out.Err)
	assert.False(t, srv.Messages("INBOX")[0].HasFlag(imap.FlagDeleted))
}

func TestMoveTriesNextCandidate(t *testing.T) {
	srv, mover := setup(t, ".")
	srv.AddMailbox("Escalar")
	srv.RejectCopyTo["Escalar"] = true

	out := mover.Move(context.Background(), 1, "Escalar")

	require.True(t, out.Moved)
	assert.Equal(t, mailbox.StrategySequence, out.Strategy)
	assert.Equal(t, "INBOX.Escalar", out.Mailbox)
}

// storesFollowCopies checks that every flag store directly follows an
// accepted copy in the same addressing mode.
func storesFollowCopies(calls []string) (string, bool) {
	for i, c := range calls {
		var want string
		switch {
		case strings.HasPrefix(c, "UID STORE "):
			want = "UID COPY "
		case strings.HasPrefix(c, "STORE "):
			want = "COPY "
		default:
			continue
		}
		if i == 0 {
			return c, false
		}
		prev := calls[i-1]
		if !strings.HasPrefix(prev, want) || strings.HasSuffix(prev, " NO") {
			return c, false
		}
	}
	return "", true
}

func TestMoveNeverMarksWithoutCopy(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		delim := rapid.SampledFrom([]string{".", "/"}).Draw(t, "delim")
		srv := mailboxtest.NewServer(delim)
		srv.Deliver("INBOX", []byte(sample))
		if _, err := srv.SelectMailbox(context.Background(), "INBOX"); err != nil {
			t.Fatal(err)
		}

		if rapid.Bool().Draw(t, "existing") {
			srv.AddMailbox("INBOX" + delim + "Escalar")
		}
		srv.RejectSeqCopy = rapid.Bool().Draw(t, "rejectSeqCopy")
		srv.RejectSeqStore = rapid.Bool().Draw(t, "rejectSeqStore")
		srv.RejectUIDCopy = rapid.Bool().Draw(t, "rejectUIDCopy")
		srv.RejectUIDStore = rapid.Bool().Draw(t, "rejectUIDStore")
		srv.RejectCreate = rapid.Bool().Draw(t, "rejectCreate")
		srv.OmitUID = rapid.Bool().Draw(t, "omitUID")
		for _, name := range []string{"Escalar", "INBOX.Escalar", "INBOX/Escalar"} {
			srv.RejectCopyTo[name] = rapid.Bool().Draw(t, "reject "+name)
		}

		mover := mailbox.NewMover(srv, mailbox.NewCatalog(srv, zerolog.Nop()), zerolog.Nop())
		out := mover.Move(context.Background(), 1, "Escalar")

		calls := srv.CallLog()
		if bad, ok := storesFollowCopies(calls); !ok {
			t.Fatalf("store %q not preceded by accepted copy: %v", bad, calls)
		}

		deleted := srv.Messages("INBOX")[0].HasFlag(imap.FlagDeleted)
		if out.Moved != deleted {
			t.Fatalf("moved=%v but deleted flag=%v", out.Moved, deleted)
		}
		if out.Moved && out.Strategy == mailbox.StrategyNone {
			t.Fatalf("moved without strategy")
		}
		if !out.Moved && out.Strategy != mailbox.StrategyNone {
			t.Fatalf("strategy %v without move", out.Strategy)
		}
	})
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "sequence", mailbox.StrategySequence.String())
	assert.Equal(t, "uid", mailbox.StrategyUID.String())
	assert.Equal(t, "none", mailbox.StrategyNone.String())
}
