package ezlist

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/google/uuid"
)

// Message is a single mail message: a full header and a decoded body.
// Inbound messages are transient; they live for one processing pass and
// are never persisted.
type Message struct {
	Header message.Header
	Body   []byte
}

// ReadMessage parses a raw RFC 822 message. Unknown charsets are tolerated:
// the body is still passed through verbatim.
func ReadMessage(r io.Reader) (*Message, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("read message: %w", err)
	}

	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Message{Header: entity.Header, Body: body}, nil
}

// WriteTo serializes the message.
func (m *Message) WriteTo(w io.Writer) error {
	entity, err := message.New(m.Header, bytes.NewReader(m.Body))
	if err != nil {
		return fmt.Errorf("build entity: %w", err)
	}
	if err := entity.WriteTo(w); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Bytes returns the serialized message.
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Subject returns the trimmed subject line, or "" when the header is
// missing.
func (m *Message) Subject() string {
	return strings.TrimSpace(m.Header.Get("Subject"))
}

// describe renders a message in a sufficiently recognizable yet redacted
// manner for logs: sender and subject only, never the body.
func describe(msg *Message) string {
	return fmt.Sprintf("<%s, subject %q>", senderAddress(msg), msg.Header.Get("Subject"))
}

// forwardedHeaders is the allow-list applied before broadcasting. It keeps
// threading metadata intact and drops everything else, including custom
// headers that could carry sensitive or spoofable data.
var forwardedHeaders = []string{
	"From",
	"To",
	"Subject",
	"Date",
	"Reply-To",
	"Content-Type",
	"Content-Transfer-Encoding",
	"In-Reply-To",
	"References",
	"Message-ID",
}

// stripHeaders deletes every header not on the forwarding allow-list.
func stripHeaders(msg *Message) {
	allowed := make(map[string]struct{}, len(forwardedHeaders))
	for _, k := range forwardedHeaders {
		allowed[strings.ToLower(k)] = struct{}{}
	}

	fields := msg.Header.Fields()
	for fields.Next() {
		if _, ok := allowed[strings.ToLower(fields.Key())]; !ok {
			fields.Del()
		}
	}
}

// composeNotification builds a single-recipient administrative mail. The
// subject is prefixed with the list tag and the message carries a List-Post
// header like every other outbound mail.
func (m *Manager) composeNotification(to, subject, body string) *Message {
	var h message.Header
	h.Set("From", m.listAddr)
	h.Set("To", to)
	h.Set("Subject", m.opts.subjectPrefix+" "+subject)
	h.Set("Date", time.Now().Format(time.RFC1123Z))
	h.Set("Message-ID", newMessageID(m.listAddr))
	h.Set("List-Post", "<mailto:"+m.listAddr+">")
	h.Set("MIME-Version", "1.0")
	h.Set("Content-Type", "text/plain; charset=utf-8")

	return &Message{Header: h, Body: []byte(body)}
}

// newMessageID builds a unique Message-ID under the list's domain.
func newMessageID(listAddr string) string {
	domain := listAddr
	if i := strings.LastIndex(listAddr, "@"); i >= 0 {
		domain = listAddr[i+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
