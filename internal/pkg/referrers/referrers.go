// Package referrers classifies referrer URLs into traffic-source labels.
package referrers

import "strings"

// SourceDirect is the label for empty or explicitly direct referrers.
const SourceDirect = "Direct"

// SourceOther is the fallback label for unrecognized referrers.
const SourceOther = "Other"

type rule struct {
	pattern string
	label   string
}

// Ordered substring rules. First match wins, so x.com is checked alongside
// twitter under one label. Matching is case-sensitive substring containment,
// which is the heuristic the tracking snippet has always used; changing it
// would reshuffle historical source reports.
var rules = []rule{
	{"google", "Google"},
	{"facebook", "Facebook"},
	{"twitter", "Twitter/X"},
	{"x.com", "Twitter/X"},
	{"linkedin", "LinkedIn"},
	{"github", "GitHub"},
}

// Classify maps a raw referrer string to its traffic-source label.
func Classify(referrer string) string {
	if referrer == "" || referrer == "direct" {
		return SourceDirect
	}
	for _, r := range rules {
		if strings.Contains(referrer, r.pattern) {
			return r.label
		}
	}
	return SourceOther
}
