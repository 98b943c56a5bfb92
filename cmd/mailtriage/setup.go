package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/nhle/mailtriage/internal/credential"
	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/reply"
	"github.com/nhle/mailtriage/internal/setup"
	"github.com/nhle/mailtriage/internal/theme"
)

func newSetupCmd(opts *rootOptions) *cobra.Command {
	var oauthOnly bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write the config file and store passwords in the keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !oauthOnly {
				if err := runSetupForm(out, opts.configPath, cfg); err != nil {
					return err
				}
			}

			if oauthOnly || cfg.Send.Transport == "gmail" || cfg.Send.SMTP.Auth == "xoauth2" {
				return authorize(cmd.Context(), out, cfg)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&oauthOnly, "oauth", false, "Only run the Google OAuth authorization and save the token")
	return cmd
}

func runSetupForm(out io.Writer, path string, cfg *model.AppConfig) error {
	answers := setup.FromConfig(cfg)
	if err := setup.NewForm(answers).Run(); err != nil {
		return err
	}
	if err := answers.Apply(cfg); err != nil {
		return err
	}

	creds, err := credential.Open()
	if err != nil {
		return err
	}
	if err := creds.Set(model.IMAPPasswordKey(cfg.IMAP.Username), answers.Password); err != nil {
		return err
	}
	if secret := answers.SMTPSecret(); secret != "" {
		if err := creds.Set(model.SMTPPasswordKey(cfg.Send.SMTP.Username), secret); err != nil {
			return err
		}
	}

	if err := model.SaveConfig(path, cfg); err != nil {
		return err
	}
	fmt.Fprintln(out, theme.OKStyle.Render("saved "+path))
	return nil
}

// authorize runs the installed-app OAuth flow: the user opens the consent
// URL and pastes the returned code.
func authorize(ctx context.Context, out io.Writer, cfg *model.AppConfig) error {
	oauthCfg, err := reply.LoadOAuthConfig(cfg.Send.OAuth.ClientSecretFile)
	if err != nil {
		return err
	}

	authURL := oauthCfg.AuthCodeURL("mailtriage", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintln(out, theme.HeaderStyle.Render("Google authorization"))
	fmt.Fprintln(out, "Open this link, grant access and paste the code below:")
	fmt.Fprintln(out, authURL)

	var code string
	err = huh.NewInput().
		Title("Authorization code").
		Value(&code).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("code is required")
			}
			return nil
		}).
		Run()
	if err != nil {
		return err
	}

	tok, err := oauthCfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	if err := reply.SaveToken(cfg.Send.OAuth.TokenFile, tok); err != nil {
		return err
	}
	fmt.Fprintln(out, theme.OKStyle.Render("token saved to "+cfg.Send.OAuth.TokenFile))
	return nil
}
