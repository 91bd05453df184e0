package escalation

import "errors"

// Sentinel errors for the escalation service layer.
var (
	ErrNotFound        = errors.New("escalation state not found")
	ErrStaleState      = errors.New("escalation state changed concurrently")
	ErrTemplateMissing = errors.New("step template missing")
	ErrTransport       = errors.New("delivery transport failed")
	ErrUnknownCampaign = errors.New("unknown campaign")
	ErrInvalidSettings = errors.New("invalid escalation settings")
)
