package smtp

import "testing"

func TestParseCommandGreeting(t *testing.T) {
	cases := []struct {
		line     string
		wantKind CommandKind
		wantDom  string
	}{
		{"EHLO client.example", CmdEHLO, "client.example"},
		{"helo client.example", CmdHELO, "client.example"},
		{"EHLO", CmdSyntaxError, ""},
		{"EHLO a b", CmdSyntaxError, ""},
	}
	for _, c := range cases {
		got := ParseCommand(c.line)
		if got.Kind != c.wantKind {
			t.Errorf("ParseCommand(%q).Kind = %v, want %v", c.line, got.Kind, c.wantKind)
		}
		if got.Kind != CmdSyntaxError && got.Domain != c.wantDom {
			t.Errorf("ParseCommand(%q).Domain = %q, want %q", c.line, got.Domain, c.wantDom)
		}
	}
}

func TestParseMailFrom(t *testing.T) {
	cmd := ParseCommand("MAIL FROM:<a@x>")
	if cmd.Kind != CmdMailFrom || cmd.Address != "a@x" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseMailFromNullReversePath(t *testing.T) {
	cmd := ParseCommand("MAIL FROM:<>")
	if cmd.Kind != CmdMailFrom || cmd.Address != "" {
		t.Fatalf("null reverse-path should be accepted, got %+v", cmd)
	}
}

func TestParseRcptToEmptyForwardPathRejected(t *testing.T) {
	cmd := ParseCommand("RCPT TO:<>")
	if cmd.Kind != CmdSyntaxError {
		t.Fatalf("empty forward-path must be a syntax error, got %+v", cmd)
	}
}

func TestParseMailFromSize(t *testing.T) {
	cmd := ParseCommand("MAIL FROM:<a@x> SIZE=2000000")
	if cmd.Kind != CmdMailFrom || cmd.Params.Size == nil || *cmd.Params.Size != 2000000 {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseMailFromBadSize(t *testing.T) {
	cmd := ParseCommand("MAIL FROM:<a@x> SIZE=notanumber")
	if cmd.Kind != CmdSyntaxError {
		t.Fatalf("non-decimal SIZE must be a syntax error, got %+v", cmd)
	}
}

func TestParseMailFromBody(t *testing.T) {
	cmd := ParseCommand("MAIL FROM:<a@x> BODY=8BITMIME")
	if cmd.Kind != CmdMailFrom || cmd.Params.Body != "8BITMIME" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseMailFromBodyUnsupported(t *testing.T) {
	cmd := ParseCommand("MAIL FROM:<a@x> BODY=BINARYMIME")
	if cmd.Kind != CmdMailFrom || !cmd.Params.BodyUnsupported {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseNestedAngleBrackets(t *testing.T) {
	cmd := ParseCommand("MAIL FROM:<a<b>@x>")
	if cmd.Kind != CmdSyntaxError {
		t.Fatalf("nested angle brackets must fail, got %+v", cmd)
	}
}

func TestParseNoArgCommands(t *testing.T) {
	for _, verb := range []string{"DATA", "RSET", "NOOP", "QUIT"} {
		if cmd := ParseCommand(verb); cmd.Kind == CmdSyntaxError || cmd.Kind == CmdUnknown {
			t.Errorf("%s should parse cleanly, got %+v", verb, cmd)
		}
		if cmd := ParseCommand(verb + " extra"); cmd.Kind != CmdSyntaxError {
			t.Errorf("%s with trailing arguments should be a syntax error, got %+v", verb, cmd)
		}
	}
}

func TestParseUnknownVerb(t *testing.T) {
	cmd := ParseCommand("BANANA foo")
	if cmd.Kind != CmdUnknown {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseVrfy(t *testing.T) {
	cmd := ParseCommand("VRFY someone")
	if cmd.Kind != CmdVrfy || cmd.Text != "someone" {
		t.Fatalf("got %+v", cmd)
	}
}
