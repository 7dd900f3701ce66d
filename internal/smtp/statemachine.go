package smtp

// State is one of the six states an SMTP session moves through. Data is
// handled outside Machine.Handle — see session.go's DATA-phase reader —
// because while in Data, bytes are not parsed as commands at all.
type State int

const (
	StateInitial State = iota
	StateGreeted
	StateMailReceived
	StateRcptReceived
	StateData
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateGreeted:
		return "Greeted"
	case StateMailReceived:
		return "MailReceived"
	case StateRcptReceived:
		return "RcptReceived"
	case StateData:
		return "Data"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Effect tells the session engine about a side effect beyond "write this
// response": entering the DATA phase, or closing the connection.
type Effect int

const (
	EffectNone Effect = iota
	EffectEnterData
	EffectClose
)

// Machine is the session state machine: a pure function of (state,
// command) to (next state, response, effect), plus the "extended" flag
// carried alongside the state itself. Side effects are limited to
// envelope mutation, performed directly on the Envelope passed to
// Handle.
type Machine struct {
	State    State
	Extended bool
}

// NewMachine returns a Machine in its initial state.
func NewMachine() *Machine {
	return &Machine{State: StateInitial}
}

// Handle advances the machine by one parsed command. env is mutated in
// place; cfg supplies the size and recipient limits. Handle must not be
// called while State is StateData — the session engine routes DATA-phase
// bytes to a dedicated reader instead.
func (m *Machine) Handle(cmd Command, env *Envelope, cfg *Config) (Response, Effect) {
	switch cmd.Kind {
	case CmdHELO:
		return m.handleGreeting(cmd, env, cfg, false)
	case CmdEHLO:
		return m.handleGreeting(cmd, env, cfg, true)
	case CmdMailFrom:
		return m.handleMailFrom(cmd, env, cfg)
	case CmdRcptTo:
		return m.handleRcptTo(cmd, env, cfg)
	case CmdData:
		return m.handleData(env)
	case CmdRset:
		return m.handleRset(env)
	case CmdNoop:
		return NewResponse(CodeOK, "OK"), EffectNone
	case CmdQuit:
		m.State = StateClosed
		return NewResponse(CodeClosing, "Bye"), EffectClose
	case CmdVrfy:
		return NewResponse(CodeNotImplemented, "VRFY not supported"), EffectNone
	case CmdSyntaxError:
		return NewResponse(CodeSyntaxErrorParams, cmd.Reason), EffectNone
	default: // CmdUnknown
		return NewResponse(CodeSyntaxError, "Command unrecognized"), EffectNone
	}
}

// handleGreeting implements the HELO/EHLO row. It is legal from every
// non-Data, non-Closed state and always (re)enters Greeted, clearing any
// in-progress transaction per RFC 5321 §4.1.4.
func (m *Machine) handleGreeting(cmd Command, env *Envelope, cfg *Config, extended bool) (Response, Effect) {
	env.reset()
	m.State = StateGreeted
	m.Extended = extended
	if extended {
		return ehloResponse(cfg.Domain, cfg.MaxMessageSize), EffectNone
	}
	return NewResponse(CodeOK, cfg.Domain+" greets you"), EffectNone
}

func (m *Machine) handleMailFrom(cmd Command, env *Envelope, cfg *Config) (Response, Effect) {
	if m.State != StateGreeted {
		return NewResponse(CodeBadSequence, "Bad sequence of commands"), EffectNone
	}

	hasParams := cmd.Params.Size != nil || cmd.Params.Body != "" || cmd.Params.BodyUnsupported
	if hasParams && !m.Extended {
		return NewResponse(CodeParamNotImplemented, "ESMTP parameters require EHLO"), EffectNone
	}
	if cmd.Params.BodyUnsupported {
		return NewResponse(CodeParamNotImplemented, "Unrecognized BODY value"), EffectNone
	}
	if cmd.Params.Size != nil && *cmd.Params.Size > cfg.MaxMessageSize {
		return NewResponse(CodeSizeExceeded, "Message size exceeds limit"), EffectNone
	}

	addr := cmd.Address
	env.From = &addr
	m.State = StateMailReceived
	return NewResponse(CodeOK, "OK"), EffectNone
}

func (m *Machine) handleRcptTo(cmd Command, env *Envelope, cfg *Config) (Response, Effect) {
	if m.State != StateMailReceived && m.State != StateRcptReceived {
		return NewResponse(CodeBadSequence, "Bad sequence of commands"), EffectNone
	}

	if len(env.Recipients) >= cfg.MaxRecipientsPerMessage {
		return NewResponse(CodeInsufficientStorage, "Too many recipients"), EffectNone
	}

	env.addRecipient(cmd.Address)
	m.State = StateRcptReceived
	return NewResponse(CodeOK, "OK"), EffectNone
}

func (m *Machine) handleData(env *Envelope) (Response, Effect) {
	if m.State != StateRcptReceived {
		return NewResponse(CodeBadSequence, "Bad sequence of commands"), EffectNone
	}
	m.State = StateData
	return NewResponse(CodeStartMailInput, "Start mail input; end with <CRLF>.<CRLF>"), EffectEnterData
}

// handleRset implements RSET: from any state it yields Greeted with an
// empty envelope, and is idempotent at the envelope level.
func (m *Machine) handleRset(env *Envelope) (Response, Effect) {
	env.reset()
	m.State = StateGreeted
	return NewResponse(CodeOK, "OK"), EffectNone
}
