package persona

import (
	"fmt"
	"strings"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// Stages and tags that drive selection.
const (
	StageHotLead    = "hot_lead"
	StageScheduled  = "scheduled"
	StageGhost      = "ghost"
	StageNoResponse = "no_response"

	TagGoldLabel  = "gold_label"
	TagWantsCall  = "wants_call"
	TagGhost      = "ghost"
	TagNeedsNudge = "needs_nudge"
)

// Queue priorities; lower is served first.
const (
	PriorityCloser = 1
	PriorityNudger = 2
	PriorityOpener = 3
)

// Renderer is the pure template render contract.
type Renderer interface {
	Render(key, tpl string, vars map[string]string) (string, error)
}

// Router selects personas and renders their templates.
type Router struct {
	registry *Registry
	renderer Renderer
	log      *logger.Logger
}

// NewRouter creates a router over an immutable registry.
func NewRouter(registry *Registry, renderer Renderer) *Router {
	return &Router{registry: registry, renderer: renderer, log: logger.New("persona")}
}

// Registry returns the underlying registry.
func (r *Router) Registry() *Registry { return r.registry }

// RoleFor is the selection rule: closer beats nudger beats opener.
func RoleFor(stage string, tags []string) domain.PersonaRole {
	stage = strings.ToLower(strings.TrimSpace(stage))
	switch {
	case stage == StageHotLead || stage == StageScheduled ||
		hasTag(tags, TagGoldLabel) || hasTag(tags, TagWantsCall):
		return domain.RoleCloser
	case stage == StageGhost || stage == StageNoResponse ||
		hasTag(tags, TagGhost) || hasTag(tags, TagNeedsNudge):
		return domain.RoleNudger
	default:
		return domain.RoleOpener
	}
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(strings.TrimSpace(t), want) {
			return true
		}
	}
	return false
}

// SelectForStage returns the persona that should own a contact in stage with
// tags. Total: every input yields a persona.
func (r *Router) SelectForStage(stage string, tags []string) *domain.Persona {
	return r.registry.ForRole(RoleFor(stage, tags))
}

// SelectByChannelIdentity returns the persona that sends from identity,
// falling back to the opener when no persona matches. Phone identities are
// compared by digits, email identities case-insensitively.
func (r *Router) SelectByChannelIdentity(identity string) *domain.Persona {
	want := domain.NormalizeAddress(identity)
	if want != "" {
		for _, p := range r.registry.All() {
			if domain.NormalizeAddress(p.ChannelIdentity) == want || domain.NormalizeAddress(p.EmailIdentity) == want {
				return p
			}
		}
	}
	return r.registry.ForRole(domain.RoleOpener)
}

// RenderTemplate renders persona's template for key with vars. Unresolved
// placeholders render empty.
func (r *Router) RenderTemplate(p *domain.Persona, key domain.TemplateKey, vars map[string]string) (string, error) {
	tpl, ok := p.Templates[key]
	if !ok || tpl == "" {
		return "", fmt.Errorf("%w: %s/%s", ErrTemplateNotFound, p.ID, key)
	}
	return r.renderer.Render(p.ID+"/"+string(key), tpl, vars)
}

// Route produces the queue hand-off for a contact on channel.
func (r *Router) Route(c *domain.Contact, channel domain.Channel) domain.QueueEntry {
	p := r.SelectForStage(c.Stage, c.Tags)
	entry := domain.QueueEntry{
		ContactID: c.ID,
		WorkerID:  p.ID,
		Queue:     channel,
		Priority:  priorityFor(p.Role),
	}
	r.log.Debug("routed contact", "contact_id", c.ID, "persona", p.ID, "stage", c.Stage, "priority", entry.Priority)
	return entry
}

func priorityFor(role domain.PersonaRole) int {
	switch role {
	case domain.RoleCloser:
		return PriorityCloser
	case domain.RoleNudger:
		return PriorityNudger
	default:
		return PriorityOpener
	}
}
