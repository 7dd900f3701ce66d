package smtp

import (
	"strconv"
	"strings"
)

// CommandKind tags the variant a parsed Command carries. A single struct
// with a Kind discriminator plays the role of a tagged union here, per the
// "tagged variant, not a class hierarchy" design note: the state machine
// switches on Kind and reads only the fields that variant populates.
type CommandKind int

const (
	CmdHELO CommandKind = iota
	CmdEHLO
	CmdMailFrom
	CmdRcptTo
	CmdData
	CmdRset
	CmdNoop
	CmdQuit
	CmdVrfy
	CmdUnknown
	CmdSyntaxError
)

// MailParams carries the parameters recognised after a MAIL FROM or
// RCPT TO address. Only MAIL FROM parameters are interpreted (SIZE, BODY);
// RCPT TO parameters are collected as Unknown, since no RCPT TO
// parameter is recognised here.
type MailParams struct {
	// Size is the SIZE=<decimal> value, or nil if absent.
	Size *int64
	// Body is "7BIT" or "8BITMIME" when BODY= was recognised.
	Body string
	// BodyUnsupported is true when BODY= was present with an unrecognised
	// value — distinct from a generic syntax error.
	BodyUnsupported bool
	// Unknown lists parameter keys the parser did not recognise. The
	// state machine decides whether an unknown key is fatal.
	Unknown []string
}

// Command is the parser's single output type: a Kind discriminator plus
// the fields relevant to that Kind.
type Command struct {
	Kind CommandKind

	Domain  string       // HELO, EHLO
	Address EmailAddress // MailFrom, RcptTo
	Params  MailParams   // MailFrom, RcptTo

	Text string // Vrfy argument
	Verb string // Unknown: the verb as received
	Reason string // SyntaxError: a short human-readable reason
}

func syntaxError(reason string) Command {
	return Command{Kind: CmdSyntaxError, Reason: reason}
}

// commandVerbLabel names a Command's kind for metrics labelling.
func commandVerbLabel(cmd Command) string {
	switch cmd.Kind {
	case CmdHELO:
		return "HELO"
	case CmdEHLO:
		return "EHLO"
	case CmdMailFrom:
		return "MAIL"
	case CmdRcptTo:
		return "RCPT"
	case CmdData:
		return "DATA"
	case CmdRset:
		return "RSET"
	case CmdNoop:
		return "NOOP"
	case CmdQuit:
		return "QUIT"
	case CmdVrfy:
		return "VRFY"
	case CmdSyntaxError:
		return "SYNTAX_ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCommand tokenizes one already-extracted, CRLF-stripped line into a
// Command. It performs syntactic validation only; legality for the current
// session state is the state machine's job.
func ParseCommand(line string) Command {
	verb, tail := splitVerb(line)
	if verb == "" {
		return Command{Kind: CmdUnknown, Verb: strings.TrimSpace(line)}
	}

	switch strings.ToUpper(verb) {
	case "HELO":
		return parseGreeting(CmdHELO, tail)
	case "EHLO":
		return parseGreeting(CmdEHLO, tail)
	case "MAIL":
		return parseMailOrRcpt(CmdMailFrom, "FROM", tail)
	case "RCPT":
		return parseMailOrRcpt(CmdRcptTo, "TO", tail)
	case "DATA":
		return parseNoArg(CmdData, tail)
	case "RSET":
		return parseNoArg(CmdRset, tail)
	case "NOOP":
		return parseNoArg(CmdNoop, tail)
	case "QUIT":
		return parseNoArg(CmdQuit, tail)
	case "VRFY":
		return Command{Kind: CmdVrfy, Text: strings.TrimSpace(tail)}
	default:
		return Command{Kind: CmdUnknown, Verb: verb}
	}
}

// splitVerb returns the longest ASCII-letter prefix of line as the verb,
// and everything after it (unmodified) as tail.
func splitVerb(line string) (verb, tail string) {
	i := 0
	for i < len(line) && isASCIILetter(line[i]) {
		i++
	}
	return line[:i], line[i:]
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// parseNoArg handles DATA/RSET/NOOP/QUIT: any non-whitespace tail is a
// syntax error.
func parseNoArg(kind CommandKind, tail string) Command {
	if strings.TrimSpace(tail) != "" {
		return syntaxError("unexpected arguments")
	}
	return Command{Kind: kind}
}

// parseGreeting handles HELO/EHLO: exactly one domain token.
func parseGreeting(kind CommandKind, tail string) Command {
	domain := strings.TrimSpace(tail)
	if domain == "" || strings.ContainsAny(domain, " \t") {
		return syntaxError("missing or malformed domain")
	}
	return Command{Kind: kind, Domain: domain}
}

// parseMailOrRcpt handles "MAIL FROM:<addr> params" and "RCPT TO:<addr>
// params".
func parseMailOrRcpt(kind CommandKind, keyword string, tail string) Command {
	rest := strings.TrimLeft(tail, " \t")
	if len(rest) < len(keyword) || !strings.EqualFold(rest[:len(keyword)], keyword) {
		return syntaxError("expected " + keyword + ":")
	}
	rest = rest[len(keyword):]
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" || rest[0] != ':' {
		return syntaxError("expected ':' after " + keyword)
	}
	rest = rest[1:]
	rest = strings.TrimLeft(rest, " \t")

	if rest == "" || rest[0] != '<' {
		return syntaxError("expected '<' before address")
	}
	rest = rest[1:]

	closeIdx := strings.IndexByte(rest, '>')
	if closeIdx == -1 {
		return syntaxError("unterminated address")
	}
	addr := rest[:closeIdx]
	if strings.ContainsRune(addr, '<') {
		return syntaxError("nested angle brackets in address")
	}
	rest = rest[closeIdx+1:]

	if addr == "" && kind == CmdRcptTo {
		return syntaxError("empty forward-path")
	}

	params, err := parseParams(kind, rest)
	if err != "" {
		return syntaxError(err)
	}

	return Command{Kind: kind, Address: EmailAddress(addr), Params: params}
}

// parseParams tokenises the text following an address into KEY or
// KEY=VALUE tokens separated by whitespace.
func parseParams(kind CommandKind, rest string) (MailParams, string) {
	var params MailParams
	for _, tok := range strings.Fields(rest) {
		key, value, hasValue := tok, "", false
		if idx := strings.IndexByte(tok, '='); idx != -1 {
			key, value, hasValue = tok[:idx], tok[idx+1:], true
		}
		upperKey := strings.ToUpper(key)

		switch {
		case kind == CmdMailFrom && upperKey == "SIZE":
			if !hasValue {
				return params, "SIZE requires a value"
			}
			size, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return params, "invalid SIZE value"
			}
			params.Size = &size
		case kind == CmdMailFrom && upperKey == "BODY":
			switch strings.ToUpper(value) {
			case "7BIT", "8BITMIME":
				params.Body = strings.ToUpper(value)
			default:
				params.BodyUnsupported = true
			}
		default:
			params.Unknown = append(params.Unknown, key)
		}
	}
	return params, ""
}
