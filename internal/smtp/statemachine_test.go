package smtp

import (
	"testing"

	"pgregory.net/rapid"
)

func testConfig() *Config {
	cfg := DefaultConfig("localhost")
	cfg.MaxMessageSize = 1048576
	cfg.MaxRecipientsPerMessage = 2
	return cfg
}

func TestStateMachineHappyPath(t *testing.T) {
	m := NewMachine()
	cfg := testConfig()
	var env Envelope

	resp, _ := m.Handle(ParseCommand("EHLO client.example"), &env, cfg)
	if resp.Code != CodeOK || m.State != StateGreeted || !m.Extended {
		t.Fatalf("EHLO: got state %v code %d", m.State, resp.Code)
	}

	resp, _ = m.Handle(ParseCommand("MAIL FROM:<a@x>"), &env, cfg)
	if resp.Code != CodeOK || m.State != StateMailReceived {
		t.Fatalf("MAIL FROM: got state %v code %d", m.State, resp.Code)
	}

	resp, _ = m.Handle(ParseCommand("RCPT TO:<b@y>"), &env, cfg)
	if resp.Code != CodeOK || m.State != StateRcptReceived {
		t.Fatalf("RCPT TO: got state %v code %d", m.State, resp.Code)
	}

	resp, effect := m.Handle(ParseCommand("DATA"), &env, cfg)
	if resp.Code != CodeStartMailInput || effect != EffectEnterData || m.State != StateData {
		t.Fatalf("DATA: got state %v code %d effect %v", m.State, resp.Code, effect)
	}
}

func TestStateMachineBadSequence(t *testing.T) {
	m := NewMachine()
	cfg := testConfig()
	var env Envelope

	m.Handle(ParseCommand("EHLO client.example"), &env, cfg)
	resp, _ := m.Handle(ParseCommand("DATA"), &env, cfg)
	if resp.Code != CodeBadSequence {
		t.Fatalf("got %d, want 503", resp.Code)
	}
}

func TestStateMachineSizeRejection(t *testing.T) {
	m := NewMachine()
	cfg := testConfig()
	var env Envelope

	m.Handle(ParseCommand("EHLO client.example"), &env, cfg)
	resp, _ := m.Handle(ParseCommand("MAIL FROM:<a@x> SIZE=2000000"), &env, cfg)
	if resp.Code != CodeSizeExceeded {
		t.Fatalf("got %d, want 552", resp.Code)
	}
	if m.State != StateGreeted {
		t.Fatalf("state must remain Greeted after size rejection, got %v", m.State)
	}
}

func TestStateMachineRecipientCap(t *testing.T) {
	m := NewMachine()
	cfg := testConfig() // MaxRecipientsPerMessage = 2
	var env Envelope

	m.Handle(ParseCommand("EHLO client.example"), &env, cfg)
	m.Handle(ParseCommand("MAIL FROM:<a@x>"), &env, cfg)
	m.Handle(ParseCommand("RCPT TO:<b1@y>"), &env, cfg)
	m.Handle(ParseCommand("RCPT TO:<b2@y>"), &env, cfg)
	resp, _ := m.Handle(ParseCommand("RCPT TO:<b3@y>"), &env, cfg)
	if resp.Code != CodeInsufficientStorage {
		t.Fatalf("got %d, want 452 once cap reached", resp.Code)
	}
}

func TestStateMachineRsetMidTransaction(t *testing.T) {
	m := NewMachine()
	cfg := testConfig()
	var env Envelope

	m.Handle(ParseCommand("EHLO client.example"), &env, cfg)
	m.Handle(ParseCommand("MAIL FROM:<a@x>"), &env, cfg)
	m.Handle(ParseCommand("RCPT TO:<b@y>"), &env, cfg)
	resp, _ := m.Handle(ParseCommand("RSET"), &env, cfg)
	if resp.Code != CodeOK || m.State != StateGreeted {
		t.Fatalf("RSET: got state %v code %d", m.State, resp.Code)
	}
	if env.From != nil || len(env.Recipients) != 0 {
		t.Fatalf("RSET must clear the envelope, got %+v", env)
	}
	resp, _ = m.Handle(ParseCommand("DATA"), &env, cfg)
	if resp.Code != CodeBadSequence {
		t.Fatalf("DATA after RSET must be 503, got %d", resp.Code)
	}
}

func TestStateMachineEmptyReversePathAccepted(t *testing.T) {
	m := NewMachine()
	cfg := testConfig()
	var env Envelope

	m.Handle(ParseCommand("EHLO client.example"), &env, cfg)
	resp, _ := m.Handle(ParseCommand("MAIL FROM:<>"), &env, cfg)
	if resp.Code != CodeOK {
		t.Fatalf("null reverse-path must be accepted, got %d", resp.Code)
	}
}

// TestRsetIdempotentFromAnyState is a property test of the RSET
// idempotence invariant: from any reachable state, RSET yields Greeted
// with an empty envelope, and applying it again changes nothing further.
func TestRsetIdempotentFromAnyState(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewMachine()
		cfg := testConfig()
		var env Envelope

		steps := rapid.SliceOfN(rapid.SampledFrom([]string{
			"EHLO client.example",
			"MAIL FROM:<a@x>",
			"RCPT TO:<b@y>",
		}), 0, 5).Draw(t, "steps")
		for _, line := range steps {
			m.Handle(ParseCommand(line), &env, cfg)
		}

		m.Handle(ParseCommand("RSET"), &env, cfg)
		if m.State != StateGreeted {
			t.Fatalf("after RSET state = %v, want Greeted", m.State)
		}
		if env.From != nil || len(env.Recipients) != 0 || env.Data != nil {
			t.Fatalf("after RSET envelope not cleared: %+v", env)
		}

		resp, _ := m.Handle(ParseCommand("RSET"), &env, cfg)
		if resp.Code != CodeOK || m.State != StateGreeted {
			t.Fatalf("second RSET not idempotent: state %v code %d", m.State, resp.Code)
		}
		if env.From != nil || len(env.Recipients) != 0 || env.Data != nil {
			t.Fatalf("second RSET mutated an already-empty envelope: %+v", env)
		}
	})
}
