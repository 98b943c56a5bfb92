package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/spf13/cobra"

	"github.com/nhle/mailtriage/internal/app"
	"github.com/nhle/mailtriage/internal/mailbox"
	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/theme"
)

func newMailboxesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mailboxes",
		Short: "List server mailboxes and where triaged mail would go",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load(false)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sess, err := mailbox.Dial(ctx, app.MailboxConfig(cfg, log))
			if err != nil {
				return err
			}
			defer sess.Logout()

			catalog := mailbox.NewCatalog(sess, log)
			entries, err := catalog.List(ctx)
			if err != nil {
				return err
			}

			processed := catalog.Resolve(ctx, cfg.Folders.Processed)
			escalate := catalog.Resolve(ctx, cfg.Folders.Escalate)
			sent := catalog.RoleMailbox(ctx, imap.MailboxAttrSent, cfg.Folders.Sent)

			printMailboxes(cmd.OutOrStdout(), cfg, entries, processed, escalate, sent)
			return nil
		},
	}
}

func printMailboxes(w io.Writer, cfg *model.AppConfig, entries []mailbox.Entry, processed, escalate []string, sent string) {
	first := func(names []string) string {
		if len(names) == 0 {
			return ""
		}
		return names[0]
	}

	var b strings.Builder
	for _, e := range entries {
		role := ""
		switch {
		case !e.Selectable():
			role = "noselect"
		case e.Name == first(processed):
			role = "processed"
		case e.Name == first(escalate):
			role = "escalate"
		case e.Name == sent:
			role = "sent"
		}

		line := e.Name
		if len(e.Attrs) > 0 {
			attrs := make([]string, len(e.Attrs))
			for i, a := range e.Attrs {
				attrs[i] = string(a)
			}
			line += " " + theme.HelpStyle.Render("("+strings.Join(attrs, " ")+")")
		}
		b.WriteString(theme.MailboxStyle(role).Render(line) + "\n")
	}

	fmt.Fprintln(w, theme.HeaderStyle.Render(fmt.Sprintf("%d mailboxes", len(entries))))
	fmt.Fprintln(w, theme.PanelStyle.Render(strings.TrimRight(b.String(), "\n")))
	fmt.Fprintf(w, "%s %s\n", theme.MailboxStyle("processed").Render(cfg.Folders.Processed+" →"), strings.Join(processed, ", "))
	fmt.Fprintf(w, "%s %s\n", theme.MailboxStyle("escalate").Render(cfg.Folders.Escalate+" →"), strings.Join(escalate, ", "))
	if sent == "" {
		sent = theme.HelpStyle.Render("none, replies are not copied")
	}
	fmt.Fprintf(w, "%s %s\n", theme.MailboxStyle("sent").Render("sent →"), sent)
}
