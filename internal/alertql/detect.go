package alertql

import (
	"regexp"
	"strings"
)

// ExpressionKind classifies text before parsing.
type ExpressionKind string

const (
	KindAlert  ExpressionKind = "alert"
	KindFilter ExpressionKind = "filter"
)

var alertPattern = regexp.MustCompile(`(?i)^[\s(]*(avg|count|sum|min|max|first|last)\s*\(\s*[a-zA-Z_][a-zA-Z0-9_-]*\s*\.`)

// DetectKind reports whether text looks like an alert rule or a bare filter.
func DetectKind(text string) ExpressionKind {
	text = strings.TrimSpace(text)
	if alertPattern.MatchString(text) {
		return KindAlert
	}
	return KindFilter
}
