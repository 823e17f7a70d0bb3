package utils

import (
	"regexp"
)

var memberRefPattern = regexp.MustCompile(`^(?:<@!?(\d+)>|(\d{15,21}))$`)

// ParseMemberRef extracts a user ID from a mention ("<@123>", "<@!123>") or a
// raw snowflake. It returns false for anything else.
func ParseMemberRef(arg string) (string, bool) {
	match := memberRefPattern.FindStringSubmatch(arg)
	if match == nil {
		return "", false
	}
	if match[1] != "" {
		return match[1], true
	}
	return match[2], true
}
