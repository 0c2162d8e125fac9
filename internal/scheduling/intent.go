package scheduling

import (
	"regexp"
	"strings"
)

var schedulingKeywords = []string{
	"appointment", "schedule", "book", "booking", "meeting", "consultation",
	"reserve", "reservation", "visit", "session", "call", "meet",
}

var timeIndicators = []string{
	"today", "tomorrow", "next week", "monday", "tuesday", "wednesday", "thursday",
	"friday", "saturday", "sunday", "am", "pm", "morning", "afternoon", "evening",
	"at", "on", "o'clock", ":", "time",
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{1,2}[/-]\d{1,2}`),
	regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`),
	regexp.MustCompile(`\b\d{1,2}(st|nd|rd|th)\b`),
}

// DetectIntent reports whether a message looks like a booking request: either
// an explicit scheduling keyword, or a time indicator combined with a date
// pattern.
func DetectIntent(message string) bool {
	lower := strings.ToLower(message)

	keyword := false
	for _, k := range schedulingKeywords {
		if strings.Contains(lower, k) {
			keyword = true
			break
		}
	}
	if keyword {
		return true
	}

	indicator := false
	for _, ind := range timeIndicators {
		if strings.Contains(lower, ind) {
			indicator = true
			break
		}
	}
	if !indicator {
		return false
	}
	for _, p := range datePatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}
