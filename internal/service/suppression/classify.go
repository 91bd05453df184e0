package suppression

import (
	"regexp"
	"strings"

	"github.com/ignite/outreach-core/internal/domain"
)

// Carrier opt-out keywords honored when they are the whole message.
var optOutKeywords = map[string]bool{
	"stop": true, "stopall": true, "unsubscribe": true, "cancel": true,
	"end": true, "quit": true, "optout": true, "opt out": true, "revoke": true,
}

var (
	optOutPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*stop\b`),
		regexp.MustCompile(`(?i)\bunsubscribe\b`),
		regexp.MustCompile(`(?i)\bremove\s+me\b`),
		regexp.MustCompile(`(?i)\bopt[\s-]?out\b`),
		regexp.MustCompile(`(?i)\btake\s+me\s+off\b`),
	}
	doNotContactPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bspam\b`),
		regexp.MustCompile(`(?i)\b(?:do\s+not|don'?t|never)\s+(?:text|call|contact|message|email)\b`),
		regexp.MustCompile(`(?i)\bleave\s+me\s+alone\b`),
		regexp.MustCompile(`(?i)\bharass`),
		regexp.MustCompile(`(?i)\breport(?:ing)?\s+(?:you|this)\b`),
	}
	wrongNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bwrong\s+(?:number|person)\b`),
		regexp.MustCompile(`(?i)^\s*not\s+(?:me|him|her|them)\b`),
		regexp.MustCompile(`(?i)\bdon'?t\s+know\s+(?:who|what)\b`),
		regexp.MustCompile(`(?i)\bno\s+one\s+(?:here\s+)?by\s+that\s+name\b`),
	}
)

// ClassifyReply maps an inbound reply to the suppressing signal it implies.
// Opt-outs take priority over spam complaints, which take priority over
// wrong-number reports. ok is false for ordinary replies.
func ClassifyReply(body string) (t domain.SignalType, ok bool) {
	norm := strings.ToLower(strings.TrimSpace(body))
	norm = strings.Trim(norm, ".!? ")
	if norm == "" {
		return "", false
	}
	if optOutKeywords[norm] || matchAny(optOutPatterns, norm) {
		return domain.SignalOptedOut, true
	}
	if matchAny(doNotContactPatterns, norm) {
		return domain.SignalDoNotContact, true
	}
	if matchAny(wrongNumberPatterns, norm) {
		return domain.SignalWrongNumber, true
	}
	return "", false
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
