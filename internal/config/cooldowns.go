package config

import (
	"time"

	"github.com/keshon/kupumalam/internal/cooldown"
)

// Category and command-level guild cooldown overrides. A command is matched by
// its category or its name; the high set is checked first.
var (
	HighCooldownCategories = []string{"developers"}
	HighCooldownCommands   = []string{}
	HighCooldownDefault    = 60 * time.Second

	GeneralCooldownCategories = []string{}
	GeneralCooldownCommands   = []string{}
	GeneralCooldownDefault    = 400 * time.Millisecond
)

// CooldownPolicy builds the limiter policy from the override sets and the
// burst settings.
func (c *Config) CooldownPolicy() cooldown.Policy {
	return cooldown.Policy{
		High: cooldown.Override{
			Categories: HighCooldownCategories,
			Commands:   HighCooldownCommands,
			Default:    HighCooldownDefault,
		},
		General: cooldown.Override{
			Categories: GeneralCooldownCategories,
			Commands:   GeneralCooldownCommands,
			Default:    GeneralCooldownDefault,
		},
		BurstMax:    c.BurstMax,
		BurstWindow: c.BurstWindow,
	}
}
