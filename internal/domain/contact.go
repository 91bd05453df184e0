package domain

import (
	"strings"
	"time"
)

// LifecycleState is the compliance-relevant state of a contact.
type LifecycleState string

const (
	ContactNew        LifecycleState = "new"
	ContactContacted  LifecycleState = "contacted"
	ContactResponded  LifecycleState = "responded"
	ContactSuppressed LifecycleState = "suppressed"
)

// Contact is a person or business the platform may reach out to. Contacts
// are never deleted, only state-transitioned.
type Contact struct {
	ID        string         `json:"id" db:"id"`
	TenantID  string         `json:"tenant_id" db:"tenant_id"`
	Phone     string         `json:"phone" db:"phone"`
	Email     string         `json:"email" db:"email"`
	FirstName string         `json:"first_name" db:"first_name"`
	LastName  string         `json:"last_name" db:"last_name"`
	Company   string         `json:"company" db:"company"`
	State     LifecycleState `json:"state" db:"state"`

	// Stage is the sales lifecycle stage used for persona routing
	// (e.g. "hot_lead", "ghost"). Its meaning is opaque to this module.
	Stage string   `json:"stage" db:"stage"`
	Tags  []string `json:"tags" db:"tags"`

	Attributes map[string]string `json:"attributes,omitempty" db:"attributes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasPhone reports whether the contact carries a non-blank phone number.
func (c *Contact) HasPhone() bool { return strings.TrimSpace(c.Phone) != "" }

// HasEmail reports whether the contact carries a non-blank email address.
func (c *Contact) HasEmail() bool { return strings.TrimSpace(c.Email) != "" }

// HasTag reports whether tag is in the contact's tag set (case-insensitive).
func (c *Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// AddressFor returns the address used to reach the contact on ch.
func (c *Contact) AddressFor(ch Channel) string {
	if ch == ChannelEmail {
		return c.Email
	}
	return c.Phone
}

// Variables returns the placeholder bindings used when rendering messages
// for this contact. Custom attributes never override the built-in keys.
func (c *Contact) Variables() map[string]string {
	vars := make(map[string]string, len(c.Attributes)+6)
	for k, v := range c.Attributes {
		vars[k] = v
	}
	vars["first_name"] = c.FirstName
	vars["last_name"] = c.LastName
	vars["full_name"] = strings.TrimSpace(c.FirstName + " " + c.LastName)
	vars["company_name"] = c.Company
	vars["phone"] = c.Phone
	vars["email"] = c.Email
	return vars
}

// NormalizePhone reduces a phone number to its digits, dropping the North
// American country code so "+1 (555) 010-0001" and "5550100001" compare
// equal.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, c := range phone {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// NormalizeAddress canonicalizes a phone number or email address for
// identity comparison. Emails compare case-insensitively.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.Contains(addr, "@") {
		return strings.ToLower(addr)
	}
	if d := NormalizePhone(addr); d != "" {
		return d
	}
	return strings.ToLower(addr)
}
