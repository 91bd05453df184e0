// Package domain defines the core business types for the outreach core:
// contacts, suppression signals, gate decisions, personas and escalation
// state.
//
// Types in this package are pure value objects with no database
// dependencies and no HTTP concerns. They are the shared language between
// the gate, router, sequencer, repositories and transports.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Validation methods and exhaustive enum mappings are allowed
package domain
