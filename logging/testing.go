package logging

import (
	"strings"

	"go.uber.org/zap/zaptest/observer"
)

// FilterMessages returns the observed entries at or above level whose message contains substr,
// ignoring case.
func FilterMessages(logs *observer.ObservedLogs, level Level, substr string) []observer.LoggedEntry {
	substr = strings.ToLower(substr)
	return logs.Filter(func(entry observer.LoggedEntry) bool {
		return entry.Level >= level.AsZap() && strings.Contains(strings.ToLower(entry.Message), substr)
	}).All()
}
