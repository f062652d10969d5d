package dispatch

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/keshon/kupumalam/internal/command"
)

// Outcome names the stage that finished a dispatch.
type Outcome int

const (
	Executed Outcome = iota
	NotFound
	ChannelDenied
	EmbedDenied
	GuildRequired
	MissingPermissions
	MissingAnyPermission
	OnCooldown
	DeveloperOnly
	Failed
)

var outcomeNames = [...]string{
	Executed:             "executed",
	NotFound:             "not_found",
	ChannelDenied:        "channel_denied",
	EmbedDenied:          "embed_denied",
	GuildRequired:        "guild_required",
	MissingPermissions:   "missing_permissions",
	MissingAnyPermission: "missing_any_permission",
	OnCooldown:           "on_cooldown",
	DeveloperOnly:        "developer_only",
	Failed:               "failed",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// CapabilityError reports that the bot lacks channel capabilities. Err is
// set when the capabilities could not be looked up at all.
type CapabilityError struct {
	ChannelID string
	Missing   int64
	Err       error
}

func (e *CapabilityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("channel capabilities 0x%x in %s: %v", e.Missing, e.ChannelID, e.Err)
	}
	return fmt.Sprintf("missing channel capabilities 0x%x in %s", e.Missing, e.ChannelID)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// PermissionError reports that the invoker does not satisfy a permission
// requirement. Any is set when one of Required would have sufficed.
type PermissionError struct {
	Required []int64
	Any      bool
}

func (e *PermissionError) Error() string {
	if e.Any {
		return "needs one of " + command.FormatPermissions(e.Required)
	}
	return "needs " + command.FormatPermissions(e.Required)
}

// ExecutionError wraps a failure raised inside a command body.
type ExecutionError struct {
	Key string
	Err error
}

func (e *ExecutionError) Error() string { return e.Key + ": " + e.Err.Error() }
func (e *ExecutionError) Unwrap() error { return e.Err }

const (
	maxErrorExcerpt = 500
	maxErrorMessage = 1000
	fence           = "```"
)

// errorExcerpt renders the user-facing text of an execution failure. The
// result is at most maxErrorMessage bytes and always closes its code block.
func errorExcerpt(name string, err error) string {
	if name == "" {
		name = "???"
	}
	head := fmt.Sprintf("**Something went wrong while executing `%s`:**%s\n", name, fence)
	tail := "\n" + fence

	msg := strings.ReplaceAll(err.Error(), fence, "`\u200b`\u200b`")
	budget := maxErrorMessage - len(head) - len(tail)
	if budget < 0 {
		budget = 0
	}
	msg = truncate(msg, maxErrorExcerpt, budget)
	return head + msg + tail
}

// truncate cuts s to at most maxRunes runes and maxBytes bytes without
// splitting a rune.
func truncate(s string, maxRunes, maxBytes int) string {
	runes := 0
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		if runes == maxRunes || i+size > maxBytes {
			return s[:i]
		}
		i += size
		runes++
	}
	return s
}
