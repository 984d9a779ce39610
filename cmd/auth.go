package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/bulkmail/internal/google"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Gmail authorization",
		Long: `Authorize bulkmail to send mail as the configured Gmail account and
inspect or refresh the stored credential.

The browser flow of "bulkmail serve" (/auth/login) stores the same
credential; these commands are for headless setups.`,
	}

	cmd.AddCommand(newAuthURLCmd())
	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthRefreshCmd())
	return cmd
}

func newAuthURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the Google consent URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), a.auth.ConsentURL(""))
			return nil
		},
	}
}

func newAuthLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [code]",
		Short: "Exchange an authorization code for a credential",
		Long: `Exchange an authorization code for a credential and store it.

Without an argument the consent URL is printed and the code is read from
standard input. After granting access Google redirects to the configured
redirect URL; copy the "code" query parameter from the address bar.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var code string
			if len(args) == 1 {
				code = args[0]
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Visit this URL to authorize %s:\n\n%s\n\n", displayAccount(a.cfg.Google.Account), a.auth.ConsentURL(""))
				fmt.Fprint(out, "Enter the authorization code: ")
				code, err = readCode(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			ts, err := a.auth.Exchange(cmd.Context(), code)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authorized. Credential expires %s.\n", formatExpiry(ts.Expiry))
			return nil
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a credential is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			printStatus(cmd.OutOrStdout(), displayAccount(a.cfg.Google.Account), a.auth.Status(cmd.Context()))
			return nil
		},
	}
}

func newAuthRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Obtain a new access token now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ts, err := a.auth.Refresh(cmd.Context())
			if err != nil {
				var re *google.RefreshError
				if errors.As(err, &re) && re.Revoked() {
					return fmt.Errorf("%w (run \"bulkmail auth login\" again)", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Refreshed. Credential expires %s.\n", formatExpiry(ts.Expiry))
			return nil
		},
	}
}

// openApp loads the configuration and wires the collaborators for a CLI
// command. Instrumentation is left disabled.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return newApp(cfg, logger, nil)
}

func readCode(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read authorization code: %w", err)
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return "", errors.New("no authorization code given")
	}
	return code, nil
}

func printStatus(w io.Writer, account string, st google.Status) {
	fmt.Fprintf(w, "Account:       %s\n", account)
	fmt.Fprintf(w, "Authenticated: %t\n", st.Authenticated)
	if !st.Authenticated {
		return
	}
	fmt.Fprintf(w, "Can refresh:   %t\n", st.CanRefresh)
	fmt.Fprintf(w, "Expires:       %s\n", formatExpiry(st.Expiry))
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}

func displayAccount(account string) string {
	if account == "" {
		return "Unknown"
	}
	return account
}
