// Package ipc decodes the text messages page script sends to the host.
//
// Two shapes share the channel, both ';'-separated:
//
//	envelope: <unused>;<seq>;<name>;<args>
//	binding:  <name>;<args>
//
// The argument payload is always the unsplit remainder after the fixed
// fields, so payloads may themselves contain the separator.
package ipc

import (
	"fmt"
	"regexp"
	"strings"
)

// Separator delimits message fields.
const Separator = ";"

// PlaceholderSeq is the sequence id carried by binding-form calls, which
// have no response path.
const PlaceholderSeq = "0"

const (
	envelopeFields = 4
	bindingFields  = 2
)

var bindingName = regexp.MustCompile(`^\w+$`)

// Message is the result of decoding: one of Envelope, Binding or Malformed.
type Message interface {
	isMessage()
}

// Envelope is a full request carrying a sequence id.
type Envelope struct {
	Seq  string
	Name string
	Args string
}

// Binding is a name-prefixed fire-and-forget call.
type Binding struct {
	Name string
	Args string
}

// Malformed is a message that could not be decoded. It is logged and dropped.
type Malformed struct {
	Raw    string
	Reason string
}

func (Envelope) isMessage()  {}
func (Binding) isMessage()   {}
func (Malformed) isMessage() {}

func (m Malformed) Error() string {
	return fmt.Sprintf("malformed ipc message (%s): %q", m.Reason, truncate(m.Raw, 64))
}

// Call returns the handler invocation a decoded message asks for. ok is
// false for Malformed.
func Call(m Message) (seq, name, args string, ok bool) {
	switch v := m.(type) {
	case Envelope:
		return v.Seq, v.Name, v.Args, true
	case Binding:
		return PlaceholderSeq, v.Name, v.Args, true
	default:
		return "", "", "", false
	}
}

// Decode picks the form by grammar: an envelope needs four fields with a
// decimal sequence id in the second and a name in the third; anything else
// whose first field is a word followed by a separator is a binding call.
func Decode(raw string) Message {
	parts := strings.SplitN(raw, Separator, envelopeFields)
	if len(parts) == envelopeFields && isSeq(parts[1]) && parts[2] != "" {
		return Envelope{Seq: parts[1], Name: parts[2], Args: parts[3]}
	}
	if m, ok := DecodeBinding(raw).(Binding); ok {
		return m
	}
	return Malformed{Raw: raw, Reason: "matches neither envelope nor binding form"}
}

// DecodeEnvelope decodes raw strictly as <unused>;<seq>;<name>;<args>.
func DecodeEnvelope(raw string) Message {
	parts := strings.SplitN(raw, Separator, envelopeFields)
	if len(parts) < envelopeFields {
		return Malformed{Raw: raw, Reason: fmt.Sprintf("envelope needs %d fields, got %d", envelopeFields, len(parts))}
	}
	if parts[2] == "" {
		return Malformed{Raw: raw, Reason: "empty handler name"}
	}
	return Envelope{Seq: parts[1], Name: parts[2], Args: parts[3]}
}

// DecodeBinding decodes raw strictly as <name>;<args>.
func DecodeBinding(raw string) Message {
	name, args, found := strings.Cut(raw, Separator)
	if !found {
		return Malformed{Raw: raw, Reason: fmt.Sprintf("binding needs %d fields, got 1", bindingFields)}
	}
	if !bindingName.MatchString(name) {
		return Malformed{Raw: raw, Reason: "binding name is not a word"}
	}
	return Binding{Name: name, Args: args}
}

func isSeq(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
