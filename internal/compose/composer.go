// Package compose builds the raw Gmail message payload for a single
// certificate email: a multipart/mixed MIME message with an HTML body and
// a binary attachment, encoded the way the Gmail send endpoint expects.
package compose

import (
	"encoding/base64"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// NameToken is the placeholder replaced with the recipient's name in the
// body template. Substitution is a literal, case-sensitive global replace.
const NameToken = "{{name}}"

// Personalize substitutes the recipient's name into the body template.
func Personalize(bodyTemplate, name string) string {
	return strings.ReplaceAll(bodyTemplate, NameToken, name)
}

// Message builds a complete MIME message and returns it in the URL-safe
// base64 encoding (no padding) the Gmail API requires for the raw field.
// The attachment filename is not sanitized against the boundary token.
func Message(to, subject, bodyHTML string, attachment []byte, filename string) string {
	boundary := newBoundary()

	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"" + boundary + "\"\r\n")
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 7bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(bodyHTML)
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: application/octet-stream; name=\"" + filename + "\"\r\n")
	b.WriteString("Content-Disposition: attachment; filename=\"" + filename + "\"\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	b.WriteString("\r\n")
	b.WriteString(base64.StdEncoding.EncodeToString(attachment))
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "--\r\n")

	return base64.RawURLEncoding.EncodeToString([]byte(b.String()))
}

// newBoundary returns a boundary token unlikely to collide with message
// content, derived from the current time plus random bits.
func newBoundary() string {
	return fmt.Sprintf("certmailer_%d_%06d", time.Now().UnixNano(), rand.Intn(1000000))
}
