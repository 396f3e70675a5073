// Package envelope defines the messages exchanged between the chat view and its host.
//
// Envelopes travel as JSON objects tagged by kind. The kind is serialized under the
// "type" key so the embedded view script can switch on message.type.
package envelope

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

type Kind string

const (
	// KindSendMessage is posted by the view when the user submits text.
	KindSendMessage Kind = "sendMessage"
	// KindReceiveMessage is posted by the host to append a message to the view.
	KindReceiveMessage Kind = "receiveMessage"
)

// ReservedPrefix marks frames owned by the hosting platform rather than the view provider.
const ReservedPrefix = "host."

const (
	// KindHostVisibility is sent by the page whenever it becomes visible or hidden.
	KindHostVisibility Kind = ReservedPrefix + "visibility"
	// KindHostReveal asks the page to bring itself to the front.
	KindHostReveal Kind = ReservedPrefix + "reveal"
)

var ErrEmptyFrame = errors.New("empty envelope frame")

// Envelope is the decoded form of any frame on the channel. Fields that do not apply
// to a kind stay at their zero value.
type Envelope struct {
	Kind  Kind   `json:"type"`
	Text  string `json:"text,omitempty"`
	IsBot bool   `json:"isBot,omitempty"`

	// Visible is only meaningful for host.visibility frames.
	Visible *bool `json:"visible,omitempty"`
}

// Outbound is sent from the view to the host.
type Outbound struct {
	Kind Kind   `json:"type"`
	Text string `json:"text"`
}

// Inbound is sent from the host to the view.
type Inbound struct {
	Kind  Kind   `json:"type"`
	Text  string `json:"text"`
	IsBot bool   `json:"isBot"`
}

func NewSendMessage(text string) Outbound {
	return Outbound{Kind: KindSendMessage, Text: text}
}

func NewReceiveMessage(text string, isBot bool) Inbound {
	return Inbound{Kind: KindReceiveMessage, Text: text, IsBot: isBot}
}

func NewReveal() Envelope {
	return Envelope{Kind: KindHostReveal}
}

func NewVisibility(visible bool) Envelope {
	return Envelope{Kind: KindHostVisibility, Visible: &visible}
}

// IsReserved reports whether the envelope belongs to the hosting platform.
func (e Envelope) IsReserved() bool {
	return strings.HasPrefix(string(e.Kind), ReservedPrefix)
}

// Outbound narrows a decoded envelope to a sendMessage envelope.
func (e Envelope) Outbound() (Outbound, bool) {
	if e.Kind != KindSendMessage {
		return Outbound{}, false
	}
	return Outbound{Kind: e.Kind, Text: e.Text}, true
}

// Inbound narrows a decoded envelope to a receiveMessage envelope.
func (e Envelope) Inbound() (Inbound, bool) {
	if e.Kind != KindReceiveMessage {
		return Inbound{}, false
	}
	return Inbound{Kind: e.Kind, Text: e.Text, IsBot: e.IsBot}, true
}

// Decode parses one frame. Unknown kinds decode fine; callers ignore what they do not handle.
func Decode(data []byte) (Envelope, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, errors.Wrap(err, "decode envelope")
	}
	return e, nil
}

// Encode serializes any envelope value (Outbound, Inbound, Envelope or a host frame).
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode envelope")
	}
	return b, nil
}
