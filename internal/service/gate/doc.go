// Package gate implements the Contact Gate: the single choke point that
// decides whether a contact may be reached on a channel right now.
//
// Every outbound path (sequencer, manual send, bulk enrollment) calls the
// gate before touching a contact. Decisions are computed fresh on each call
// from the Repository; nothing is cached, so a signal recorded between two
// calls is always honored by the second.
//
// Checks run in a fixed order and the first match wins:
//
//	1. contact exists            -> not_found
//	2. lifecycle state           -> suppressed
//	3. latest suppressing signal -> opted_out | do_not_contact | wrong_number
//	4. channel reachability      -> no_phone | no_email
//
// A repository failure is returned as an error, never mapped to a deny
// reason: "could not determine" is not "denied".
package gate
