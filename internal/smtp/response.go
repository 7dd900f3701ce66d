package smtp

import "strconv"

// Response is a formatted SMTP reply: a three-digit code and one or more
// text lines. Rendered, all but the last line use the "NNN-text" form; the
// last line uses "NNN text".
type Response struct {
	Code  int
	Lines []string
}

// NewResponse builds a single-line response.
func NewResponse(code int, line string) Response {
	return Response{Code: code, Lines: []string{line}}
}

// NewMultilineResponse builds a response spanning several lines, all
// sharing one status code.
func NewMultilineResponse(code int, lines ...string) Response {
	return Response{Code: code, Lines: lines}
}

// Bytes renders the response into wire bytes: "NNN[ -]text\r\n" per line,
// never a bare CR or LF.
func (r Response) Bytes() []byte {
	if len(r.Lines) == 0 {
		r.Lines = []string{""}
	}
	code := strconv.Itoa(r.Code)
	out := make([]byte, 0, len(r.Lines)*(len(code)+4))
	for i, line := range r.Lines {
		out = append(out, code...)
		if i == len(r.Lines)-1 {
			out = append(out, ' ')
		} else {
			out = append(out, '-')
		}
		out = append(out, line...)
		out = append(out, '\r', '\n')
	}
	return out
}

// ehloResponse builds the multi-line EHLO banner: a greeting line, then
// SIZE, then 8BITMIME.
func ehloResponse(domain string, maxMessageSize int64) Response {
	return NewMultilineResponse(CodeOK,
		domain+" greets you",
		"SIZE "+strconv.FormatInt(maxMessageSize, 10),
		"8BITMIME",
	)
}
