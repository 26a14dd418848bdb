package pause

import (
	"strings"
)

// resumeCommands are the literal commands an SDR can send to hand the
// conversation back to the agent. Matching is case-insensitive, either exact
// or as a prefix followed by a space so trailing free text is tolerated.
var resumeCommands = []string{
	"/retomar",
	"retomar",
	"!retomar",
	"/continuar",
	"continuar",
}

// IsResumeCommand reports whether the message is a resume command. Detection
// is independent of the conversation's pause state.
func IsResumeCommand(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return false
	}

	for _, cmd := range resumeCommands {
		if normalized == cmd || strings.HasPrefix(normalized, cmd+" ") {
			return true
		}
	}
	return false
}
