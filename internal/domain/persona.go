package domain

// PersonaRole is the responsibility of an automated sender identity.
type PersonaRole string

const (
	RoleOpener PersonaRole = "opener"
	RoleNudger PersonaRole = "nudger"
	RoleCloser PersonaRole = "closer"
)

// Valid reports whether r is one of the fixed roles.
func (r PersonaRole) Valid() bool {
	return r == RoleOpener || r == RoleNudger || r == RoleCloser
}

// TemplateKey names a message slot on a persona.
type TemplateKey string

const (
	TemplateInitial       TemplateKey = "initial"
	TemplateEmailCaptured TemplateKey = "email_captured"
	TemplateFollowUp      TemplateKey = "follow_up"
	TemplateObjection     TemplateKey = "objection"
	TemplateBooking       TemplateKey = "booking"
)

// Persona is a static, configuration-time sender identity. Personas are
// immutable at runtime.
type Persona struct {
	ID              string                 `json:"id" yaml:"id"`
	Name            string                 `json:"name" yaml:"name"`
	Role            PersonaRole            `json:"role" yaml:"role"`
	ChannelIdentity string                 `json:"channel_identity" yaml:"channel_identity"`
	EmailIdentity   string                 `json:"email_identity,omitempty" yaml:"email_identity"`
	Templates       map[TemplateKey]string `json:"templates" yaml:"templates"`
}

// FromIdentity returns the outbound address the persona sends from on ch.
func (p *Persona) FromIdentity(ch Channel) string {
	if ch == ChannelEmail && p.EmailIdentity != "" {
		return p.EmailIdentity
	}
	return p.ChannelIdentity
}

// QueueEntry is the transient hand-off produced by the router. Lower
// Priority values are served first.
type QueueEntry struct {
	ContactID string  `json:"contact_id"`
	WorkerID  string  `json:"worker_id"`
	Queue     Channel `json:"queue"`
	Priority  int     `json:"priority"`
}
