// Package persona routes contacts to one of three automated sender
// personas (opener, nudger, closer) and renders persona message templates.
//
// Selection is a pure function of a contact's stage and tags. The registry
// is immutable once built.
package persona
