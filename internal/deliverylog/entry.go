package deliverylog

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// TimeLayout is the timestamp format used in rendered lines.
const TimeLayout = "2006-01-02 15:04:05"

// MaxRecipientLen caps the recipient as rendered. RFC 5321 limits a path to
// 256 octets, so anything longer is not an address.
const MaxRecipientLen = 256

// Entry is one send attempt.
type Entry struct {
	Timestamp time.Time
	Recipient string
	Success   bool
	// Reason is the failure text; empty on success.
	Reason string
	// MessageID is the provider id of a delivered message.
	MessageID string
}

// Sent builds a success entry.
func Sent(at time.Time, recipient, messageID string) Entry {
	return Entry{Timestamp: at, Recipient: recipient, Success: true, MessageID: messageID}
}

// Failed builds a failure entry.
func Failed(at time.Time, recipient string, err error) Entry {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return Entry{Timestamp: at, Recipient: recipient, Reason: reason}
}

// Format renders e as a single line in loc.
func (e Entry) Format(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	ts := e.Timestamp.In(loc).Format(TimeLayout)
	to := recipientField(e.Recipient)
	if e.Success {
		return fmt.Sprintf("%s - %s - sent", ts, to)
	}
	return fmt.Sprintf("%s - %s - failed: %s", ts, to, singleLine(e.Reason))
}

// Sink stores entries.
type Sink interface {
	// Append adds e to the log.
	Append(ctx context.Context, e Entry) error

	// Lines returns every entry rendered with Entry.Format, oldest first.
	// An absent log yields an empty slice.
	Lines(ctx context.Context) ([]string, error)
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// recipientField keeps a caller-supplied recipient on one bounded line.
func recipientField(s string) string {
	s = singleLine(s)
	if len(s) <= MaxRecipientLen {
		return s
	}
	cut := MaxRecipientLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
