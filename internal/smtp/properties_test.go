package smtp

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// TestDotStuffingRoundTripProperty checks that any body line, once
// dot-stuffed by a client (a single "." prefix added to any line that
// starts with one) and passed through a full session, comes back out
// exactly as it went in.
func TestDotStuffingRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(t, "lineCount")
		var original []string
		for i := 0; i < n; i++ {
			original = append(original, rapid.StringMatching(`[A-Za-z0-9 .]{0,20}`).Draw(t, "line"))
		}

		var clientBody strings.Builder
		for _, line := range original {
			if strings.HasPrefix(line, ".") {
				clientBody.WriteByte('.')
			}
			clientBody.WriteString(line)
			clientBody.WriteString("\r\n")
		}

		var delivered Envelope
		handler := func(_ context.Context, env Envelope) HandlerOutcome {
			delivered = env
			return HandlerAccepted
		}

		input := "EHLO client.example\r\n" +
			"MAIL FROM:<a@x>\r\n" +
			"RCPT TO:<b@y>\r\n" +
			"DATA\r\n" +
			clientBody.String() +
			".\r\n" +
			"QUIT\r\n"

		runSession(input, handler)

		var want strings.Builder
		for _, line := range original {
			want.WriteString(line)
			want.WriteString("\r\n")
		}
		if !bytes.Equal(delivered.Data, []byte(want.String())) {
			t.Fatalf("round-trip mismatch: got %q, want %q", delivered.Data, want.String())
		}
	})
}

// TestDeliveredEnvelopeAlwaysValid checks that whenever the handler is
// invoked, the envelope it receives has a non-nil reverse-path, at least
// one recipient, and a body within the configured size ceiling — the
// three preconditions handleData/runDataPhase are supposed to enforce
// before a transaction ever reaches delivery.
func TestDeliveredEnvelopeAlwaysValid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		recipientCount := rapid.IntRange(1, 4).Draw(t, "recipients")
		body := rapid.StringMatching(`[A-Za-z0-9 ]{0,64}`).Draw(t, "body")

		var b strings.Builder
		b.WriteString("EHLO client.example\r\n")
		b.WriteString("MAIL FROM:<sender@x>\r\n")
		for i := 0; i < recipientCount; i++ {
			b.WriteString("RCPT TO:<rcpt" + rapid.StringMatching(`[a-z0-9]{1,6}`).Draw(t, "rcptTag") + "@y>\r\n")
		}
		b.WriteString("DATA\r\n")
		b.WriteString(body)
		b.WriteString("\r\npayload\r\n")
		b.WriteString(".\r\n")
		b.WriteString("QUIT\r\n")

		var delivered *Envelope
		handler := func(_ context.Context, env Envelope) HandlerOutcome {
			delivered = &env
			return HandlerAccepted
		}

		runSession(b.String(), handler)

		if delivered == nil {
			t.Fatal("handler was never invoked")
		}
		if delivered.From == nil {
			t.Fatal("delivered envelope has a nil reverse-path")
		}
		if len(delivered.Recipients) < 1 {
			t.Fatalf("delivered envelope has no recipients: %+v", delivered)
		}
		if int64(len(delivered.Data)) > sessionTestConfig().MaxMessageSize {
			t.Fatalf("delivered body exceeds the configured ceiling: %d bytes", len(delivered.Data))
		}
	})
}
