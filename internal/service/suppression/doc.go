// Package suppression owns the append-only signal log that the contact gate
// reads.
//
// Signals flow in from inbound replies (STOP, wrong number, spam reports),
// carrier reports, imports and manual operator actions. Signals are never
// updated or deleted; the most recent suppressing signal for a contact is
// authoritative.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
