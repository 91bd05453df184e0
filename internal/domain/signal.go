package domain

import "time"

// SignalType is the closed set of compliance-relevant events recorded
// against a contact.
type SignalType string

const (
	SignalOptedOut     SignalType = "opted_out"
	SignalDoNotContact SignalType = "do_not_contact"
	SignalWrongNumber  SignalType = "wrong_number"
)

// SuppressingSignals is the set of signal types the Gate consults.
var SuppressingSignals = []SignalType{SignalOptedOut, SignalDoNotContact, SignalWrongNumber}

// Valid reports whether t is a member of the closed signal set.
func (t SignalType) Valid() bool {
	switch t {
	case SignalOptedOut, SignalDoNotContact, SignalWrongNumber:
		return true
	}
	return false
}

// SignalSource records where a signal originated.
type SignalSource string

const (
	SourceInboundReply SignalSource = "inbound_reply"
	SourceManual       SignalSource = "manual"
	SourceCarrier      SignalSource = "carrier_report"
	SourceImport       SignalSource = "import"
)

// Signal is an immutable, append-only fact about a contact. The most recent
// suppressing signal for a contact is authoritative.
type Signal struct {
	ID        string       `json:"id" db:"id"`
	ContactID string       `json:"contact_id" db:"contact_id"`
	Type      SignalType   `json:"type" db:"signal_type"`
	Source    SignalSource `json:"source" db:"source"`
	Note      string       `json:"note,omitempty" db:"note"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
