package persona

import (
	"fmt"
	"strings"

	"github.com/ignite/outreach-core/internal/domain"
)

// Registry holds exactly one persona per role.
type Registry struct {
	byRole map[domain.PersonaRole]*domain.Persona
	byID   map[string]*domain.Persona
}

// NewRegistry validates personas and builds an immutable registry. Each role
// must be filled exactly once and ids must be unique.
func NewRegistry(personas []domain.Persona) (*Registry, error) {
	r := &Registry{
		byRole: make(map[domain.PersonaRole]*domain.Persona, 3),
		byID:   make(map[string]*domain.Persona, len(personas)),
	}
	for i := range personas {
		p := personas[i]
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("%w: persona %d has no id", ErrInvalidRegistry, i)
		}
		if !p.Role.Valid() {
			return nil, fmt.Errorf("%w: persona %s has invalid role %q", ErrInvalidRegistry, p.ID, p.Role)
		}
		if _, dup := r.byRole[p.Role]; dup {
			return nil, fmt.Errorf("%w: duplicate %s persona %s", ErrInvalidRegistry, p.Role, p.ID)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate persona id %s", ErrInvalidRegistry, p.ID)
		}

		templates := make(map[domain.TemplateKey]string, len(p.Templates))
		for k, v := range p.Templates {
			templates[k] = v
		}
		p.Templates = templates

		r.byRole[p.Role] = &p
		r.byID[p.ID] = &p
	}
	for _, role := range []domain.PersonaRole{domain.RoleOpener, domain.RoleNudger, domain.RoleCloser} {
		if _, ok := r.byRole[role]; !ok {
			return nil, fmt.Errorf("%w: missing %s persona", ErrInvalidRegistry, role)
		}
	}
	return r, nil
}

// ForRole returns the persona filling role.
func (r *Registry) ForRole(role domain.PersonaRole) *domain.Persona {
	return r.byRole[role]
}

// Get returns the persona with the given id.
func (r *Registry) Get(id string) (*domain.Persona, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPersona, id)
	}
	return p, nil
}

// All returns personas in opener, nudger, closer order.
func (r *Registry) All() []*domain.Persona {
	return []*domain.Persona{r.byRole[domain.RoleOpener], r.byRole[domain.RoleNudger], r.byRole[domain.RoleCloser]}
}
