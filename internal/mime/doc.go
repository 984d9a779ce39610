// Package mime builds the RFC 5322 messages bulkmail submits to Gmail.
//
// Compose is a pure function from an OutgoingMessage to the serialized
// message text. It applies one fixed policy:
//   - non-ASCII display names and subjects are RFC 2047 B-encoded as UTF-8
//   - text and HTML bodies without an image are single-part
//   - an HTML body with an image becomes multipart/related, the image
//     referenced as cid:image1 and base64 encoded in 76-column lines
//   - every line ends in CRLF
//
// EncodeRaw is the separate transport step Gmail's messages.send requires:
// base64url of the composed text.
package mime
