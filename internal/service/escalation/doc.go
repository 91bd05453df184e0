// Package escalation drives each (contact, campaign) pair through a fixed,
// ordered sequence of timed message steps.
//
// The Sequencer re-evaluates the contact gate on every attempt, picks a
// sending persona, renders the step and hands it to a Transport. State is
// advanced only after the transport confirms delivery, and the advance is a
// compare-and-swap on the previous step so two concurrent runners can never
// move the same contact twice.
//
// Outcomes that mean "not now" (paused, complete, not time yet, outside the
// send window, gate denial) are reported as SendResult values with a nil
// error. A non-nil error is reserved for configuration defects and transient
// system failures that a scheduler should surface or retry.
package escalation
