package commands

import (
	"regexp"
	"strconv"
)

var placeholderRe = regexp.MustCompile(`<(\w+)(?:\(([^)]*)\))?>`)

// resolver returns the value of a placeholder, or false to leave the
// placeholder text as written.
type resolver func(name, arg string) (string, bool)

// render substitutes <name> and <name(arg)> placeholders in content.
func render(content string, resolve resolver) string {
	return placeholderRe.ReplaceAllStringFunc(content, func(match string) string {
		sub := placeholderRe.FindStringSubmatch(match)
		value, ok := resolve(sub[1], sub[2])
		if !ok {
			return match
		}
		return value
	})
}

// argAt returns the 1-based positional argument named by arg.
func argAt(args []string, arg string) (string, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return "", false
	}
	if n > len(args) {
		return "", true
	}
	return args[n-1], true
}
