package tui

import "strings"

// Command is a parsed prompt input.
type Command struct {
	Name string
	Args string
}

// ParseCommand splits prompt input (without the leading ':') into a
// command name and its argument rest.
func ParseCommand(input string) Command {
	name, args, _ := strings.Cut(strings.TrimSpace(input), " ")
	return Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}
}
