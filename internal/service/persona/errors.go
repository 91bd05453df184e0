package persona

import "errors"

var (
	ErrTemplateNotFound = errors.New("persona template not found")
	ErrInvalidRegistry  = errors.New("invalid persona registry")
	ErrUnknownPersona   = errors.New("unknown persona")
)
