package mime

import (
	"encoding/base64"
	"fmt"
	stdmime "mime"
	"net/mail"
	"strings"
)

const (
	// Boundary separates the parts of a multipart/related message.
	Boundary = "foo_bar_baz"

	// ImagePlaceholder in an HTML body is replaced by ImageCID.
	ImagePlaceholder = "{{image}}"

	// ImageCID is the reference to the inline image part.
	ImageCID = "cid:image1"

	imageContentID = "<image1>"
	lineLength     = 76
	crlf           = "\r\n"
)

// Composed is a serialized message ready for transport encoding.
type Composed string

// Compose serializes msg.
func Compose(msg OutgoingMessage) (Composed, error) {
	if err := validate(msg); err != nil {
		return "", err
	}

	lines := []string{
		"To: " + formatAddress(msg.DisplayName, msg.To),
		"Subject: " + EncodeHeader(msg.Subject),
		"MIME-Version: 1.0",
	}

	if msg.HasInlineImage() {
		lines = append(lines,
			fmt.Sprintf(`Content-Type: multipart/related; boundary="%s"`, Boundary),
			"",
			"--"+Boundary,
			"Content-Type: text/html; charset=utf-8",
			"",
			normalizeNewlines(strings.ReplaceAll(msg.Body, ImagePlaceholder, ImageCID)),
			"",
			"--"+Boundary,
			"Content-Type: image/jpeg",
			"Content-ID: "+imageContentID,
			"Content-Transfer-Encoding: base64",
			"",
		)
		lines = append(lines, wrapBase64(msg.InlineImage)...)
		lines = append(lines, "--"+Boundary+"--")
	} else {
		lines = append(lines,
			"Content-Type: "+mediaType(msg.ContentType)+"; charset=utf-8",
			"",
			normalizeNewlines(msg.Body),
		)
	}

	return Composed(strings.TrimSpace(strings.Join(lines, crlf))), nil
}

// EncodeRaw applies the base64url transport encoding Gmail expects in
// Message.Raw. Padding is kept.
func EncodeRaw(c Composed) string {
	return base64.URLEncoding.EncodeToString([]byte(c))
}

// EncodeHeader RFC 2047 B-encodes s as UTF-8 when it contains non-ASCII
// characters and returns it unchanged otherwise.
func EncodeHeader(s string) string {
	if isASCII(s) {
		return s
	}
	// the standard library writes a lowercase "b"; both are valid
	return strings.ReplaceAll(stdmime.BEncoding.Encode("UTF-8", s), "=?UTF-8?b?", "=?UTF-8?B?")
}

func validate(msg OutgoingMessage) error {
	switch msg.ContentType {
	case ContentText, ContentHTML:
	default:
		return &ComposeError{Field: "contentType", Reason: fmt.Sprintf("unsupported content type %q", msg.ContentType)}
	}

	if strings.TrimSpace(msg.To) == "" {
		return &ComposeError{Field: "to", Reason: "recipient is required"}
	}
	for field, v := range map[string]string{"to": msg.To, "displayName": msg.DisplayName, "subject": msg.Subject} {
		if strings.ContainsAny(v, "\r\n") {
			return &ComposeError{Field: field, Reason: "line breaks are not allowed in header values"}
		}
	}
	addr, err := mail.ParseAddress(msg.To)
	if err != nil || addr.Name != "" || addr.Address != msg.To {
		return &ComposeError{Field: "to", Reason: fmt.Sprintf("invalid address %q", msg.To)}
	}

	if msg.HasInlineImage() && strings.Contains(msg.Body, "--"+Boundary) {
		return &ComposeError{Field: "body", Reason: "body contains the multipart boundary"}
	}
	return nil
}

func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	if !isASCII(name) {
		return EncodeHeader(name) + " <" + addr + ">"
	}
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name)
	return `"` + escaped + `" <` + addr + ">"
}

func mediaType(ct ContentType) string {
	if ct == ContentHTML {
		return "text/html"
	}
	return "text/plain"
}

// wrapBase64 returns the standard base64 of data split into lines of at
// most 76 characters.
func wrapBase64(data []byte) []string {
	enc := base64.StdEncoding.EncodeToString(data)
	lines := make([]string, 0, len(enc)/lineLength+1)
	for len(enc) > lineLength {
		lines = append(lines, enc[:lineLength])
		enc = enc[lineLength:]
	}
	if enc != "" {
		lines = append(lines, enc)
	}
	return lines
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", crlf)
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}
