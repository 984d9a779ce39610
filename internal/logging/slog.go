package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// Attribute keys shared by every bulkmail component.
const (
	KeyOperation     = "operation"
	KeyService       = "service"
	KeyAccount       = "account"
	KeyUserHash      = "user_hash"
	KeyRecipientHash = "recipient_hash"
	KeyDuration      = "duration"
	KeyStatus        = "status"
	KeyError         = "error"
	KeyPath          = "path"
	KeyRouteClass    = "route_class"
)

// WithService scopes logger to one subsystem (gmail, oauth, server).
func WithService(logger *slog.Logger, service string) *slog.Logger {
	return logger.With(slog.String(KeyService, service))
}

func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

func Path(path string) slog.Attr { return slog.String(KeyPath, path) }

func RouteClass(class string) slog.Attr { return slog.String(KeyRouteClass, class) }

// Err returns the error attribute. A nil err yields an empty group, which
// slog drops, so callers can pass err unconditionally.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail hashes an address so log lines can be correlated without
// carrying it. Case does not affect the result.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.ToLower(email)))
	return "user:" + hex.EncodeToString(sum[:8])
}

// Account is the sending account, hashed.
func Account(account string) slog.Attr {
	return slog.String(KeyAccount, AnonymizeEmail(account))
}

// UserHash is the signed-in user, hashed.
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}

// Recipient is the recipient, hashed. Full addresses belong in the delivery log.
func Recipient(email string) slog.Attr {
	return slog.String(KeyRecipientHash, AnonymizeEmail(email))
}

// SanitizeToken reduces a token to its length.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
