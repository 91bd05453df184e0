package escalation

import (
	"fmt"
	"sort"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
)

// Defaults applied when a setting is left at its zero value.
const (
	DefaultMaxSteps       = 10
	DefaultInterStepDelay = 24 * time.Hour
	DefaultSendPacing     = 250 * time.Millisecond
	DefaultSendTimeout    = 15 * time.Second
	DefaultBatchSize      = 100
)

// Settings tune a campaign's escalation. Zero values take the package
// defaults; PauseAfterStep defaults to MaxSteps.
type Settings struct {
	MaxSteps       int
	InterStepDelay time.Duration
	PauseAfterStep int
	SendPacing     time.Duration
	SendTimeout    time.Duration
	BatchSize      int
}

// DefaultSettings returns the stock configuration.
func DefaultSettings() Settings {
	return Settings{}.WithDefaults()
}

// WithDefaults fills zero fields.
func (s Settings) WithDefaults() Settings {
	if s.MaxSteps == 0 {
		s.MaxSteps = DefaultMaxSteps
	}
	if s.InterStepDelay == 0 {
		s.InterStepDelay = DefaultInterStepDelay
	}
	if s.PauseAfterStep == 0 {
		s.PauseAfterStep = s.MaxSteps
	}
	if s.SendTimeout == 0 {
		s.SendTimeout = DefaultSendTimeout
	}
	if s.BatchSize == 0 {
		s.BatchSize = DefaultBatchSize
	}
	return s
}

// Validate checks settings after defaults are applied.
func (s Settings) Validate() error {
	switch {
	case s.MaxSteps < 1:
		return fmt.Errorf("%w: max_steps must be >= 1, got %d", ErrInvalidSettings, s.MaxSteps)
	case s.InterStepDelay < 0:
		return fmt.Errorf("%w: inter_step_delay must not be negative", ErrInvalidSettings)
	case s.PauseAfterStep < 1 || s.PauseAfterStep > s.MaxSteps:
		return fmt.Errorf("%w: pause_after_step must be in [1, %d], got %d", ErrInvalidSettings, s.MaxSteps, s.PauseAfterStep)
	case s.SendPacing < 0:
		return fmt.Errorf("%w: send_pacing must not be negative", ErrInvalidSettings)
	case s.SendTimeout <= 0:
		return fmt.Errorf("%w: send_timeout must be positive", ErrInvalidSettings)
	case s.BatchSize < 1:
		return fmt.Errorf("%w: batch_size must be >= 1", ErrInvalidSettings)
	}
	return nil
}

// IsTimeToSend reports whether the inter-step delay has elapsed since
// lastSentAt. A contact that was never sent to is always due.
func (s Settings) IsTimeToSend(lastSentAt *time.Time, now time.Time) bool {
	if lastSentAt == nil {
		return true
	}
	return now.Sub(*lastSentAt) >= s.InterStepDelay
}

// NextSendTime returns lastSentAt + InterStepDelay, or nil if never sent.
func (s Settings) NextSendTime(lastSentAt *time.Time) *time.Time {
	if lastSentAt == nil {
		return nil
	}
	t := lastSentAt.Add(s.InterStepDelay)
	return &t
}

// Campaign pairs a sequence with its resolved settings.
type Campaign struct {
	Sequence domain.Sequence
	Settings Settings

	location *time.Location
}

// InWindow reports whether t falls inside the campaign's send window.
// Campaigns without a window always return true.
func (c *Campaign) InWindow(t time.Time) bool {
	w := c.Sequence.Window
	if !w.Enabled() {
		return true
	}
	local := t
	if c.location != nil {
		local = t.In(c.location)
	}
	if w.ExcludeWeekends {
		if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	h := local.Hour()
	if w.StartHour < w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	// Window wraps midnight, e.g. 20 -> 2.
	return h >= w.StartHour || h < w.EndHour
}

// Catalog is the immutable set of campaigns the Sequencer can drive.
type Catalog struct {
	campaigns map[string]*Campaign
}

// NewCatalog validates campaigns and resolves their settings against
// defaults. A campaign's zero-valued settings inherit from defaults.
func NewCatalog(defaults Settings, campaigns []Campaign) (*Catalog, error) {
	pauseSet := defaults.PauseAfterStep != 0
	defaults = defaults.WithDefaults()
	if err := defaults.Validate(); err != nil {
		return nil, err
	}

	cat := &Catalog{campaigns: make(map[string]*Campaign, len(campaigns))}
	for i := range campaigns {
		c := campaigns[i]
		id := c.Sequence.CampaignID
		if id == "" {
			return nil, fmt.Errorf("%w: campaign %d has no id", ErrInvalidSettings, i)
		}
		if _, dup := cat.campaigns[id]; dup {
			return nil, fmt.Errorf("%w: duplicate campaign %s", ErrInvalidSettings, id)
		}
		if c.Sequence.Channel == "" {
			c.Sequence.Channel = domain.ChannelSMS
		}
		if !c.Sequence.Channel.Valid() {
			return nil, fmt.Errorf("%w: campaign %s has invalid channel %q", ErrInvalidSettings, id, c.Sequence.Channel)
		}

		c.Settings = inherit(c.Settings, defaults, pauseSet)
		if err := c.Settings.Validate(); err != nil {
			return nil, fmt.Errorf("campaign %s: %w", id, err)
		}

		if w := c.Sequence.Window; w.Enabled() {
			if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
				return nil, fmt.Errorf("%w: campaign %s send window hours out of range", ErrInvalidSettings, id)
			}
			loc := time.UTC
			if w.Timezone != "" {
				l, err := time.LoadLocation(w.Timezone)
				if err != nil {
					return nil, fmt.Errorf("%w: campaign %s timezone: %v", ErrInvalidSettings, id, err)
				}
				loc = l
			}
			c.location = loc
		}

		steps := append([]domain.SequenceStep(nil), c.Sequence.Steps...)
		sort.Slice(steps, func(a, b int) bool { return steps[a].Number < steps[b].Number })
		c.Sequence.Steps = steps

		cat.campaigns[id] = &c
	}
	return cat, nil
}

// inherit fills zero fields of s from d. An inherited pause_after_step is
// capped at the campaign's max_steps; when d's pause was itself defaulted the
// campaign pauses at its own max_steps.
func inherit(s, d Settings, pauseSet bool) Settings {
	if s.MaxSteps == 0 {
		s.MaxSteps = d.MaxSteps
	}
	if s.InterStepDelay == 0 {
		s.InterStepDelay = d.InterStepDelay
	}
	if s.PauseAfterStep == 0 {
		s.PauseAfterStep = s.MaxSteps
		if pauseSet && d.PauseAfterStep < s.MaxSteps {
			s.PauseAfterStep = d.PauseAfterStep
		}
	}
	if s.SendPacing == 0 {
		s.SendPacing = d.SendPacing
	}
	if s.SendTimeout == 0 {
		s.SendTimeout = d.SendTimeout
	}
	if s.BatchSize == 0 {
		s.BatchSize = d.BatchSize
	}
	return s
}

// Get returns the campaign with id.
func (c *Catalog) Get(id string) (*Campaign, error) {
	camp, ok := c.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCampaign, id)
	}
	return camp, nil
}

// IDs returns campaign ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.campaigns))
	for id := range c.campaigns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
