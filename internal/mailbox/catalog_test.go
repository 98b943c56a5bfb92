package mailbox_test

import (
	"context"
	"errors"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailtriage/internal/mailbox"
	"github.com/nhle/mailtriage/internal/mailbox/mailboxtest"
)

func newCatalog(t *testing.T, srv *mailboxtest.Server) *mailbox.Catalog {
	t.Helper()
	return mailbox.NewCatalog(srv, zerolog.Nop())
}

func TestResolveRanking(t *testing.T) {
	srv := mailboxtest.NewServer(".")
	srv.AddMailbox("INBOX.Respondidos")
	srv.AddMailbox("Archive.OldRespondidos")
	srv.AddMailbox("respondidos")

	got := newCatalog(t, srv).Resolve(context.Background(), "Respondidos")

	assert.Equal(t, []string{
		"respondidos",
		"INBOX.Respondidos",
		"Archive.OldRespondidos",
		"Respondidos",
		"INBOX/Respondidos",
	}, got)
}

func TestResolveSynthesizesWhenNothingMatches(t *testing.T) {
	srv := mailboxtest.NewServer("/")

	got := newCatalog(t, srv).Resolve(context.Background(), "Escalar")

	assert.Equal(t, []string{"Escalar", "INBOX/Escalar", "INBOX.Escalar"}, got)
}

func TestResolveSkipsInboxPrefixForInboxNames(t *testing.T) {
	srv := mailboxtest.NewServer(".")

	got := newCatalog(t, srv).Resolve(context.Background(), "INBOX.Escalar")

	assert.Equal(t, []string{"INBOX.Escalar"}, got)
}

func TestResolveExcludesNoselect(t *testing.T) {
	srv := mailboxtest.NewServer("/")
	require.NoError(t, srv.AddListLine(`(\Noselect \HasChildren) "/" "Escalar"`))
	require.NoError(t, srv.AddListLine(`(\HasNoChildren) "/" "Work/Escalar"`))

	got := newCatalog(t, srv).Resolve(context.Background(), "Escalar")

	assert.Equal(t, []string{"Work/Escalar", "INBOX/Escalar", "INBOX.Escalar"}, got)
}

func TestResolveListFailureFallsBackToSynthesized(t *testing.T) {
	srv := mailboxtest.NewServer(".")
	srv.ListErr = errors.New("connection reset")

	got := newCatalog(t, srv).Resolve(context.Background(), "Escalar")

	assert.Equal(t, []string{"Escalar", "INBOX/Escalar", "INBOX.Escalar"}, got)
}

func TestListIsCachedPerCatalog(t *testing.T) {
	srv := mailboxtest.NewServer(".")
	c := newCatalog(t, srv)
	ctx := context.Background()

	_, err := c.List(ctx)
	require.NoError(t, err)
	_ = c.Resolve(ctx, "Escalar")
	_ = c.Resolve(ctx, "Respondidos")

	lists := 0
	for _, call := range srv.CallLog() {
		if call == `LIST "" *` {
			lists++
		}
	}
	assert.Equal(t, 1, lists)

	// A new connection gets a fresh catalog.
	_, err = newCatalog(t, srv).List(ctx)
	require.NoError(t, err)
	lists = 0
	for _, call := range srv.CallLog() {
		if call == `LIST "" *` {
			lists++
		}
	}
	assert.Equal(t, 2, lists)
}

func TestEnsureExistsIsIdempotent(t *testing.T) {
	srv := mailboxtest.NewServer(".")
	ctx := context.Background()

	c := newCatalog(t, srv)
	require.NoError(t, c.EnsureExists(ctx, "Escalar"))
	assert.True(t, srv.Exists("Escalar"))

	// Known on this connection: no second CREATE.
	_, err := c.List(ctx)
	require.NoError(t, err)
	require.NoError(t, c.EnsureExists(ctx, "Escalar"))

	// Fresh catalog without LIST: CREATE is answered ALREADYEXISTS.
	require.NoError(t, newCatalog(t, srv).EnsureExists(ctx, "Escalar"))

	assert.Equal(t, []string{
		"CREATE Escalar",
		`LIST "" *`,
		"CREATE Escalar NO",
	}, srv.CallLog())
}

func TestEnsureExistsSurfacesOtherRejections(t *testing.T) {
	srv := mailboxtest.NewServer(".")
	srv.RejectCreate = true

	err := newCatalog(t, srv).EnsureExists(context.Background(), "Escalar")
	require.Error(t, err)
	assert.False(t, mailbox.IsAlreadyExists(err))
}

func TestIsAlreadyExistsByText(t *testing.T) {
	assert.True(t, mailbox.IsAlreadyExists(&imap.Error{Type: imap.StatusResponseTypeNo, Text: "Mailbox already exists"}))
	assert.True(t, mailbox.IsAlreadyExists(errors.New("NO [ALREADYEXISTS] already exists")))
	assert.False(t, mailbox.IsAlreadyExists(nil))
	assert.False(t, mailbox.IsAlreadyExists(errors.New("permission denied")))
}

func TestRoleMailbox(t *testing.T) {
	ctx := context.Background()

	srv := mailboxtest.NewServer(".")
	srv.AddMailbox("INBOX.Sent")
	srv.AddMailbox("INBOX.Enviadas", imap.MailboxAttrSent)
	assert.Equal(t, "INBOX.Enviadas", newCatalog(t, srv).RoleMailbox(ctx, imap.MailboxAttrSent, "Sent"))

	srv = mailboxtest.NewServer(".")
	srv.AddMailbox("INBOX.Sent")
	assert.Equal(t, "INBOX.Sent", newCatalog(t, srv).RoleMailbox(ctx, imap.MailboxAttrSent, "Outbox"))

	srv = mailboxtest.NewServer(".")
	srv.AddMailbox("Outbox")
	assert.Equal(t, "Outbox", newCatalog(t, srv).RoleMailbox(ctx, imap.MailboxAttrSent, "outbox"))

	srv = mailboxtest.NewServer(".")
	assert.Empty(t, newCatalog(t, srv).RoleMailbox(ctx, imap.MailboxAttrSent))
}

func TestAuthError(t *testing.T) {
	err := &mailbox.AuthError{Username: "suporte@example.com", Message: "login failed"}
	wrapped := errors.Join(errors.New("cycle aborted"), err)

	assert.True(t, mailbox.IsAuthError(wrapped))
	assert.False(t, mailbox.IsAuthError(errors.New("dial tcp: timeout")))
	assert.Contains(t, err.Error(), "suporte@example.com")
}
