package commands

import (
	"strings"
	"unicode"

	"github.com/mattn/go-shellwords"
)

// Invocation is a prefix command found in a message.
type Invocation struct {
	Name string
	// Args are the arguments split with shell-style quoting.
	Args []string
	// Rest is the raw text after the command name.
	Rest string
}

// Parse extracts a command from content. It reports false when content does
// not start with prefix followed by a command name.
func Parse(content, prefix string) (Invocation, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Invocation{}, false
	}
	body := content[len(prefix):]
	if body == "" || unicode.IsSpace(rune(body[0])) {
		return Invocation{}, false
	}

	name, rest := body, ""
	if i := strings.IndexFunc(body, unicode.IsSpace); i >= 0 {
		name, rest = body[:i], strings.TrimSpace(body[i:])
	}

	inv := Invocation{Name: strings.ToLower(name), Rest: rest}
	parser := shellwords.NewParser()
	args, err := parser.Parse(escapeOperators(rest))
	if err != nil || parser.Position != -1 {
		args = strings.Fields(rest)
	}
	inv.Args = args
	return inv, true
}

// shellOperators end or alter a word for the shell parser. Mentions such as
// <@123> contain them, so outside quotes they are taken literally.
const shellOperators = ";&|<>()`"

func escapeOperators(s string) string {
	var b strings.Builder
	var single, double, escaped bool
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && !single:
			escaped = true
		case r == '\'' && !double:
			single = !single
		case r == '"' && !single:
			double = !double
		case !single && !double && strings.ContainsRune(shellOperators, r):
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
