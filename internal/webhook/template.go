// ABOUTME: Variable substitution for webhook text fields
// ABOUTME: Replaces $(discord:<name>) with the current variable value
package webhook

import (
	"regexp"
)

var placeholder = regexp.MustCompile(`\$\(discord:([A-Za-z0-9_]+)\)`)

// Expand replaces every $(discord:<name>) in s with vars[name]. Unknown
// names expand to the empty string.
func Expand(s string, vars map[string]string) string {
	if s == "" {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		return vars[name]
	})
}
