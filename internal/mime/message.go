package mime

import (
	"errors"
	"fmt"
	"strings"
)

// ContentType selects the body format.
type ContentType string

const (
	ContentText ContentType = "text"
	ContentHTML ContentType = "html"
)

// ParseContentType accepts "text" and "html" (case-insensitive), plus the
// full media types text/plain and text/html.
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "text/plain", "plain":
		return ContentText, nil
	case "html", "text/html":
		return ContentHTML, nil
	default:
		return "", &ComposeError{Field: "contentType", Reason: fmt.Sprintf("unsupported content type %q", s)}
	}
}

// OutgoingMessage is one message to one recipient.
type OutgoingMessage struct {
	To          string
	DisplayName string
	Subject     string
	Body        string
	ContentType ContentType

	// InlineImage is embedded as cid:image1 when ContentType is html.
	// It is ignored for text bodies.
	InlineImage []byte
}

// HasInlineImage reports whether the message will be composed as multipart/related.
func (m OutgoingMessage) HasInlineImage() bool {
	return m.ContentType == ContentHTML && len(m.InlineImage) > 0
}

// ComposeError reports input that cannot be turned into a valid message.
type ComposeError struct {
	Field  string
	Reason string
}

func (e *ComposeError) Error() string {
	return fmt.Sprintf("cannot compose message: %s: %s", e.Field, e.Reason)
}

// IsComposeError reports whether err is or wraps a *ComposeError.
func IsComposeError(err error) bool {
	var ce *ComposeError
	return errors.As(err, &ce)
}
