package commands

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
)

// parsed is a tokenized invocation line. Rest keeps the raw text after the
// command name so content with repeated spaces survives.
type parsed struct {
	Name string
	Args []string
	Rest string
}

func tokenize(line string) parsed {
	line = strings.TrimSpace(line)
	if line == "" {
		return parsed{}
	}
	idx := strings.IndexFunc(line, unicode.IsSpace)
	if idx < 0 {
		return parsed{Name: NormalizeName(line)}
	}
	rest := strings.TrimLeftFunc(line[idx:], unicode.IsSpace)
	return parsed{
		Name: NormalizeName(line[:idx]),
		Args: strings.Fields(rest),
		Rest: rest,
	}
}

// definitionFlags holds the --level, --cooldown and --cost options accepted
// by addcom and editcom.
type definitionFlags struct {
	patch   Patch
	content string
}

// parseDefinitionArgs reads leading --flag value pairs and returns the
// remaining words joined as content.
func parseDefinitionArgs(args []string) (definitionFlags, error) {
	var out definitionFlags
	i := 0
	for i < len(args) && strings.HasPrefix(args[i], "--") {
		flag := strings.ToLower(strings.TrimPrefix(args[i], "--"))
		if i+1 >= len(args) {
			return out, fmt.Errorf("%w: flag --%s needs a value", cerrors.ErrInvalidArgument, flag)
		}
		value := args[i+1]
		switch flag {
		case "level", "userlevel":
			lvl, err := ParseLevel(value)
			if err != nil {
				return out, err
			}
			out.patch.Level = &lvl
		case "cooldown", "cd":
			secs, err := strconv.Atoi(value)
			if err != nil || secs < 0 {
				return out, fmt.Errorf("%w: cooldown %q must be a non-negative number of seconds", cerrors.ErrInvalidArgument, value)
			}
			out.patch.CooldownSeconds = &secs
		case "cost":
			cost, err := strconv.ParseInt(value, 10, 64)
			if err != nil || cost < 0 {
				return out, fmt.Errorf("%w: cost %q must be a non-negative integer", cerrors.ErrInvalidArgument, value)
			}
			out.patch.PointCost = &cost
		default:
			return out, fmt.Errorf("%w: unknown flag --%s", cerrors.ErrInvalidArgument, flag)
		}
		i += 2
	}
	out.content = strings.Join(args[i:], " ")
	return out, nil
}
