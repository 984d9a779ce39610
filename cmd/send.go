package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/bulkmail/internal/dispatch"
	"github.com/teemow/bulkmail/internal/mime"
	"github.com/teemow/bulkmail/internal/recipients"
)

type sendOptions struct {
	csvPath     string
	to          string
	subject     string
	body        string
	bodyFile    string
	contentType string
	imagePath   string
}

func newSendCmd() *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message to every recipient of a list",
		Long: `Send one message per recipient, in list order.

Recipients come from a CSV file with name and email columns (--csv) and/or
a comma separated list of addresses (--to). Each message is addressed to
the recipient's name when the CSV carries one.

HTML bodies may reference the inline image given with --image as
{{image}}, for example <img src="{{image}}">.

Every attempt is appended to the delivery log. Sending stops early when the
stored credential is missing or revoked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := readRecipients(opts)
			if err != nil {
				return err
			}
			tmpl, err := buildTemplate(opts)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			outcomes := a.dispatcher.SendBatch(cmd.Context(), tmpl, list)
			return reportOutcomes(cmd.OutOrStdout(), outcomes, len(list))
		},
	}

	cmd.Flags().StringVar(&opts.csvPath, "csv", "", "CSV file with name and email columns")
	cmd.Flags().StringVar(&opts.to, "to", "", "Comma separated recipient addresses")
	cmd.Flags().StringVar(&opts.subject, "subject", "", "Message subject")
	cmd.Flags().StringVar(&opts.body, "body", "", "Message body")
	cmd.Flags().StringVar(&opts.bodyFile, "body-file", "", "Read the message body from a file")
	cmd.Flags().StringVar(&opts.contentType, "content-type", "text", "Body format: text or html")
	cmd.Flags().StringVar(&opts.imagePath, "image", "", "Image embedded as {{image}} in HTML bodies")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")

	return cmd
}

func readRecipients(opts sendOptions) ([]recipients.Recipient, error) {
	var list []recipients.Recipient

	if opts.csvPath != "" {
		f, err := os.Open(opts.csvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open recipient list: %w", err)
		}
		defer f.Close()

		parsed, err := recipients.Parse(f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", opts.csvPath, err)
		}
		list = append(list, parsed...)
	}

	for _, addr := range parseCommaSeparatedList(opts.to) {
		list = append(list, recipients.Recipient{Email: addr})
	}

	if len(list) == 0 {
		return nil, errors.New("no recipients, use --csv or --to")
	}
	return list, nil
}

func buildTemplate(opts sendOptions) (mime.OutgoingMessage, error) {
	contentType, err := mime.ParseContentType(opts.contentType)
	if err != nil {
		return mime.OutgoingMessage{}, err
	}

	body := opts.body
	if opts.bodyFile != "" {
		data, err := os.ReadFile(opts.bodyFile)
		if err != nil {
			return mime.OutgoingMessage{}, fmt.Errorf("failed to read body: %w", err)
		}
		body = string(data)
	}

	var image []byte
	if opts.imagePath != "" {
		if contentType != mime.ContentHTML {
			return mime.OutgoingMessage{}, errors.New("--image requires --content-type html")
		}
		image, err = os.ReadFile(opts.imagePath)
		if err != nil {
			return mime.OutgoingMessage{}, fmt.Errorf("failed to read image: %w", err)
		}
	}

	return mime.OutgoingMessage{
		Subject:     opts.subject,
		Body:        body,
		ContentType: contentType,
		InlineImage: image,
	}, nil
}

// reportOutcomes prints one line per attempt and a summary. It fails when
// any attempt failed or the batch stopped before reaching every recipient.
func reportOutcomes(w io.Writer, outcomes []dispatch.Outcome, total int) error {
	failed := 0
	for _, out := range outcomes {
		if out.OK() {
			fmt.Fprintf(w, "sent    %s (%s)\n", out.Recipient, out.MessageID)
			continue
		}
		failed++
		fmt.Fprintf(w, "failed  %s: %v\n", out.Recipient, out.Err)
	}

	sent := len(outcomes) - failed
	skipped := total - len(outcomes)
	fmt.Fprintf(w, "\n%d sent, %d failed, %d not attempted\n", sent, failed, skipped)

	if failed > 0 || skipped > 0 {
		return fmt.Errorf("%d of %d messages were not sent", failed+skipped, total)
	}
	return nil
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
