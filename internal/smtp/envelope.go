package smtp

// EmailAddress is an opaque wrapper around the UTF-8 text found between
// "<" and ">" on a MAIL FROM / RCPT TO line. The empty string is valid and
// denotes the null reverse-path. No structural validation is required
// beyond what the parser already performs.
type EmailAddress string

// Envelope holds the sender, recipients, and assembled body of one SMTP
// transaction. Its zero value is an empty, unstarted transaction.
type Envelope struct {
	From       *EmailAddress
	Recipients []EmailAddress
	Data       []byte
}

// reset clears the envelope back to its zero value. Called on RSET, on a
// HELO/EHLO issued mid-transaction, and after every completed or abandoned
// DATA phase.
func (e *Envelope) reset() {
	e.From = nil
	e.Recipients = nil
	e.Data = nil
}

// addRecipient appends a recipient, preserving insertion order and
// permitting duplicates per RFC 5321 §3.3.
func (e *Envelope) addRecipient(addr EmailAddress) {
	e.Recipients = append(e.Recipients, addr)
}
