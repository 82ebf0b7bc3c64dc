package tui

import "strings"

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

var aliases = map[string]string{
	"h":      "help",
	"q":      "quit",
	"a":      "attach",
	"sum":    "summarize",
	"logout": "signout",
}

// ParseCommand parses a command string. A leading ':' is optional and short
// aliases are expanded.
func ParseCommand(input string) Command {
	input = strings.TrimPrefix(strings.TrimSpace(input), ":")
	name, args, _ := strings.Cut(input, " ")
	cmd := Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}
	if full, ok := aliases[cmd.Name]; ok {
		cmd.Name = full
	}
	return cmd
}
