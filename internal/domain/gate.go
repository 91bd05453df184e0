package domain

import "time"

// Channel is an outbound communication channel.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelVoice Channel = "voice"
	ChannelEmail Channel = "email"
)

// Valid reports whether ch is a supported channel.
func (ch Channel) Valid() bool {
	return ch == ChannelSMS || ch == ChannelVoice || ch == ChannelEmail
}

// DenyReason explains why the Gate refused contact. The empty value means
// the contact is allowed.
type DenyReason string

const (
	DenyNone         DenyReason = ""
	DenyNotFound     DenyReason = "not_found"
	DenySuppressed   DenyReason = "suppressed"
	DenyOptedOut     DenyReason = "opted_out"
	DenyDoNotContact DenyReason = "do_not_contact"
	DenyWrongNumber  DenyReason = "wrong_number"
	DenyNoPhone      DenyReason = "no_phone"
	DenyNoEmail      DenyReason = "no_email"
)

// Description is the human-readable text shown to compliance reviewers.
func (r DenyReason) Description() string {
	switch r {
	case DenyNone:
		return "allowed"
	case DenyNotFound:
		return "contact not found"
	case DenySuppressed:
		return "contact is suppressed"
	case DenyOptedOut:
		return "contact opted out"
	case DenyDoNotContact:
		return "contact requested no contact"
	case DenyWrongNumber:
		return "contact reported wrong number"
	case DenyNoPhone:
		return "contact has no phone number"
	case DenyNoEmail:
		return "contact has no email address"
	}
	return string(r)
}

// DenyReasonForSignal maps a suppressing signal type to its deny reason.
// Every SignalType constant must have an explicit case here; unknown values
// fall back to DenyDoNotContact.
func DenyReasonForSignal(t SignalType) DenyReason {
	switch t {
	case SignalOptedOut:
		return DenyOptedOut
	case SignalDoNotContact:
		return DenyDoNotContact
	case SignalWrongNumber:
		return DenyWrongNumber
	default:
		return DenyDoNotContact
	}
}

// GateDecision is the transient result of one Gate evaluation. It is never
// cached: suppression state can change between calls.
type GateDecision struct {
	ContactID string         `json:"contact_id"`
	Channel   Channel        `json:"channel"`
	Allowed   bool           `json:"allowed"`
	Reason    DenyReason     `json:"reason,omitempty"`
	State     LifecycleState `json:"state,omitempty"`

	SignalType *SignalType `json:"signal_type,omitempty"`
	SignalAt   *time.Time  `json:"signal_at,omitempty"`

	// Contact is the snapshot the decision was made against. Nil when the
	// contact does not exist.
	Contact *Contact `json:"-"`
}
