// Package push contains the public domain model for outbound push
// messages: the message value itself, its gateway wire encoding, and the
// placeholder expansion applied before the first delivery attempt.
package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// AgentTokenSeparator joins the device agent and the raw gateway token in a
// recipient address, e.g. "ANDROID+dGhlLXRva2Vu".
const AgentTokenSeparator = "+"

// placeholderUnknown is substituted for an expansion instruction that does
// not carry a value.
const placeholderUnknown = "Unknown"

// Agent identifies the platform of the receiving device. The agent decides
// where the payload is placed in the wire body.
type Agent string

const (
	AgentAndroid Agent = "ANDROID"
	AgentIOS     Agent = "IOS"
	AgentWeb     Agent = "WEB"
	AgentUnknown Agent = "UNKNOWN"
)

// ParseAgent matches a raw agent string against the known platforms. The
// match is case-insensitive and accepts embellished values such as
// "android-13" the way real user agents arrive.
func ParseAgent(raw string) Agent {
	lowered := strings.ToLower(raw)
	for _, agent := range []Agent{AgentAndroid, AgentIOS, AgentWeb} {
		if strings.Contains(lowered, strings.ToLower(string(agent))) {
			return agent
		}
	}
	return AgentUnknown
}

// Kind is the gateway message type.
type Kind string

const (
	KindNotification Kind = "notification"
	KindData         Kind = "data"
	KindUnknown      Kind = "unknown"
)

// ParseKind maps a raw message type onto a Kind.
func ParseKind(raw string) Kind {
	switch Kind(raw) {
	case KindNotification:
		return KindNotification
	case KindData:
		return KindData
	default:
		return KindUnknown
	}
}

// Priority is the gateway delivery priority.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Instruction is one positional template substitution directive: every
// occurrence of "${i}" in the serialized payload is replaced with the value
// of the i-th instruction.
type Instruction struct {
	Value string `json:"value,omitempty"`
}

// Build errors. All of them are terminal for the message: a body that
// cannot be rendered is never retried.
var (
	ErrBadRecipient = errors.New("push: recipient is not an agent+token pair")
	ErrUnknownAgent = errors.New("push: unknown device agent")
	ErrUnknownKind  = errors.New("push: unknown message kind")
	ErrBadPlacement = errors.New("push: no payload placement for agent and kind")
)

// Message is one outbound notification or data push. It is fully
// constructed before submission and must not be mutated afterwards; the
// dispatcher treats it as immutable apart from the one-time payload
// expansion.
type Message struct {
	// CustomerID is the logical owner of the notification, used for
	// token-store operations and logging.
	CustomerID string

	// To is the primary recipient address: "<AGENT>+<token>".
	To string

	// Kind selects the payload placement in the wire body.
	Kind Kind

	// RegistrationIDs optionally fans the message out to several device
	// tokens. When empty the message has the single implicit recipient To.
	RegistrationIDs []string

	// Payload is the document delivered to the device.
	Payload map[string]any

	// Delivery hints. Each is included in the wire body only when set to a
	// non-default value, except Priority which the gateway always receives.
	CollapseKey           string
	Priority              Priority
	ContentAvailable      bool
	DelayWhileIdle        bool
	TimeToLive            int64
	RestrictedPackageName string
	DryRun                bool

	// Instructions are applied to the payload at most once, immediately
	// before the first send attempt.
	Instructions []Instruction

	stop     bool
	expanded bool
}

// NewMessage constructs a message for a single recipient address. The kind
// is parsed leniently; Build rejects an unknown kind later so the failure
// surfaces where it is logged with the offending request.
func NewMessage(customerID, kind, recipient string) *Message {
	return &Message{
		CustomerID: customerID,
		To:         recipient,
		Kind:       ParseKind(kind),
		Priority:   PriorityNormal,
		Payload:    map[string]any{},
	}
}

// NewStopMessage returns the sentinel that terminates the dispatch worker.
// It is never delivered to the gateway.
func NewStopMessage() *Message {
	m := NewMessage("stop", string(KindUnknown), "stop")
	m.stop = true
	return m
}

// IsStop reports whether this message is the worker stop sentinel.
func (m *Message) IsStop() bool {
	return m.stop
}

// Recipients returns the explicit fan-out list if set, else a single-element
// list holding the implicit primary target.
func (m *Message) Recipients() []string {
	if len(m.RegistrationIDs) == 0 {
		return []string{m.To}
	}
	return m.RegistrationIDs
}

// Agent returns the device agent encoded in the primary recipient address.
func (m *Message) Agent() Agent {
	agent, _, err := splitRecipient(m.To)
	if err != nil {
		return AgentUnknown
	}
	return agent
}

// Expand applies the positional template instructions to the payload:
// the payload is serialized, each literal "${i}" is replaced with the value
// of instruction i (or "Unknown" when the instruction has none), and the
// result is parsed back. Expansion happens at most once per logical
// message; retries reuse the already-expanded payload.
func (m *Message) Expand() error {
	if m.expanded || len(m.Instructions) == 0 {
		return nil
	}

	serialized, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Errorf("push: serialize payload for expansion: %w", err)
	}

	text := string(serialized)
	for i, instruction := range m.Instructions {
		value := instruction.Value
		if value == "" {
			value = placeholderUnknown
		}
		text = strings.ReplaceAll(text, fmt.Sprintf("${%d}", i), value)
	}

	var expanded map[string]any
	if err := json.Unmarshal([]byte(text), &expanded); err != nil {
		return fmt.Errorf("push: parse expanded payload: %w", err)
	}

	m.Payload = expanded
	m.expanded = true
	return nil
}

// wireBody is the gateway request document. Optional fields carry omitempty
// so defaults stay off the wire; priority is always sent.
type wireBody struct {
	To                    string         `json:"to"`
	RegistrationIDs       []string       `json:"registration_ids,omitempty"`
	Notification          map[string]any `json:"notification,omitempty"`
	Data                  map[string]any `json:"data,omitempty"`
	CollapseKey           string         `json:"collapse_key,omitempty"`
	Priority              Priority       `json:"priority"`
	ContentAvailable      bool           `json:"content_available,omitempty"`
	DelayWhileIdle        bool           `json:"delay_while_idle,omitempty"`
	TimeToLive            int64          `json:"time_to_live,omitempty"`
	RestrictedPackageName string         `json:"restricted_package_name,omitempty"`
	DryRun                bool           `json:"dry_run,omitempty"`
}

// Build renders the gateway JSON body from the current field values.
//
// The recipient address is decomposed into agent and raw token, and the
// payload is placed according to the agent: a notification for Android goes
// under "data" (the app renders it itself), a notification for iOS under
// "notification", and a data message always under "data". An address that
// does not split, an unknown agent or kind, and an unsupported combination
// are terminal errors.
func (m *Message) Build() ([]byte, error) {
	agent, token, err := splitRecipient(m.To)
	if err != nil {
		return nil, err
	}
	if agent == AgentUnknown {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, m.To)
	}

	body := wireBody{
		To:       token,
		Priority: m.Priority,
	}

	switch {
	case m.Kind == KindNotification && agent == AgentAndroid:
		body.Data = m.Payload
	case m.Kind == KindNotification && agent == AgentIOS:
		body.Notification = m.Payload
	case m.Kind == KindData:
		body.Data = m.Payload
	case m.Kind == KindUnknown:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	default:
		return nil, fmt.Errorf("%w: agent=%s kind=%s", ErrBadPlacement, agent, m.Kind)
	}

	if len(m.RegistrationIDs) > 0 {
		body.RegistrationIDs = m.RegistrationIDs
	}
	body.CollapseKey = m.CollapseKey
	body.ContentAvailable = m.ContentAvailable
	body.DelayWhileIdle = m.DelayWhileIdle
	if m.TimeToLive > 0 {
		body.TimeToLive = m.TimeToLive
	}
	body.RestrictedPackageName = m.RestrictedPackageName
	body.DryRun = m.DryRun

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("push: encode wire body: %w", err)
	}
	return encoded, nil
}

func splitRecipient(recipient string) (Agent, string, error) {
	parts := strings.Split(recipient, AgentTokenSeparator)
	if len(parts) != 2 {
		return AgentUnknown, "", fmt.Errorf("%w: %q", ErrBadRecipient, recipient)
	}
	return ParseAgent(parts[0]), parts[1], nil
}
