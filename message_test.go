package ezlist

import (
	"strings"
	"testing"

	"github.com/emersion/go-message"
)

const rawTestMessage = "From: sender@example.com\r\n" +
	"To: list@example.com\r\n" +
	"Subject: hello list\r\n" +
	"X-Spam-Score: 5.0\r\n" +
	"Received: from relay.example.com\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"hi everyone\r\n"

func TestReadMessage(t *testing.T) {
	msg, err := ReadMessage(strings.NewReader(rawTestMessage))
	if err != nil {
		t.Fatalf("ReadMessage() failed: %v", err)
	}

	if got := msg.Header.Get("From"); got != "sender@example.com" {
		t.Errorf("From = %q", got)
	}
	if got := msg.Subject(); got != "hello list" {
		t.Errorf("Subject() = %q, want %q", got, "hello list")
	}
	if got := strings.TrimSpace(string(msg.Body)); got != "hi everyone" {
		t.Errorf("Body = %q", got)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg, err := ReadMessage(strings.NewReader(rawTestMessage))
	if err != nil {
		t.Fatalf("ReadMessage() failed: %v", err)
	}

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() failed: %v", err)
	}

	again, err := ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if again.Header.Get("Subject") != msg.Header.Get("Subject") {
		t.Errorf("subject changed across round trip: %q != %q",
			again.Header.Get("Subject"), msg.Header.Get("Subject"))
	}
	if string(again.Body) != string(msg.Body) {
		t.Errorf("body changed across round trip")
	}
}

func TestStripHeaders(t *testing.T) {
	msg, err := ReadMessage(strings.NewReader(rawTestMessage))
	if err != nil {
		t.Fatalf("ReadMessage() failed: %v", err)
	}

	stripHeaders(msg)

	for _, kept := range []string{"From", "To", "Subject", "Content-Type"} {
		if !msg.Header.Has(kept) {
			t.Errorf("expected header %s to survive stripping", kept)
		}
	}
	for _, dropped := range []string{"X-Spam-Score", "Received"} {
		if msg.Header.Has(dropped) {
			t.Errorf("expected header %s to be stripped", dropped)
		}
	}
}

func TestComposeNotification(t *testing.T) {
	m := newTestManager(t)

	msg := m.composeNotification("user@example.com", "verify <abc>", "body text")

	if got := msg.Header.Get("From"); got != testListAddr {
		t.Errorf("From = %q, want %q", got, testListAddr)
	}
	if got := msg.Header.Get("To"); got != "user@example.com" {
		t.Errorf("To = %q", got)
	}
	if got := msg.Header.Get("Subject"); got != "[List] verify <abc>" {
		t.Errorf("Subject = %q", got)
	}
	if got := msg.Header.Get("List-Post"); got != "<mailto:"+testListAddr+">" {
		t.Errorf("List-Post = %q", got)
	}
	if !msg.Header.Has("Date") || !msg.Header.Has("Message-ID") {
		t.Error("expected Date and Message-ID headers to be set")
	}
	if string(msg.Body) != "body text" {
		t.Errorf("Body = %q", msg.Body)
	}
}

func TestDescribeRedactsBody(t *testing.T) {
	var h message.Header
	h.Set("From", "sender@example.com")
	h.Set("Subject", "secret plans")
	msg := &Message{Header: h, Body: []byte("the body must never appear in logs")}

	got := describe(msg)
	if !strings.Contains(got, "sender@example.com") || !strings.Contains(got, "secret plans") {
		t.Errorf("describe() = %q, want sender and subject", got)
	}
	if strings.Contains(got, "body") {
		t.Errorf("describe() leaked the body: %q", got)
	}
}
