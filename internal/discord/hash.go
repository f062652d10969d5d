package discord

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bwmarrin/discordgo"
)

// HashCommands returns a digest of the publishable parts of a command tree.
// Order of commands and options does not affect it; IDs and versions are
// ignored.
func HashCommands(cmds []*discordgo.ApplicationCommand) string {
	normalized := make([]map[string]any, 0, len(cmds))
	for _, c := range cmds {
		normalized = append(normalized, normalizeCommand(c))
	}
	sort.Slice(normalized, func(i, j int) bool {
		return sortKey(normalized[i]) < sortKey(normalized[j])
	})
	data, _ := json.Marshal(normalized)
	return fmt.Sprintf("%x", sha1.Sum(data))
}

func sortKey(m map[string]any) string {
	return fmt.Sprintf("%v/%v", m["type"], m["name"])
}

func normalizeCommand(cmd *discordgo.ApplicationCommand) map[string]any {
	obj := map[string]any{
		"name":        cmd.Name,
		"description": cmd.Description,
		"type":        cmd.Type,
	}
	if len(cmd.Options) > 0 {
		obj["options"] = normalizeOptions(cmd.Options)
	}
	return obj
}

func normalizeOptions(opts []*discordgo.ApplicationCommandOption) []map[string]any {
	normalized := make([]map[string]any, len(opts))
	for i, o := range opts {
		entry := map[string]any{
			"name":        o.Name,
			"description": o.Description,
			"type":        o.Type,
			"required":    o.Required,
		}
		if o.MinValue != nil {
			entry["min_value"] = *o.MinValue
		}
		if o.MaxValue != 0 {
			entry["max_value"] = o.MaxValue
		}
		if o.MinLength != nil {
			entry["min_length"] = *o.MinLength
		}
		if o.MaxLength != 0 {
			entry["max_length"] = o.MaxLength
		}
		if len(o.ChannelTypes) > 0 {
			entry["channel_types"] = o.ChannelTypes
		}
		if len(o.Choices) > 0 {
			choices := make([]map[string]any, len(o.Choices))
			for j, c := range o.Choices {
				choices[j] = map[string]any{"name": c.Name, "value": c.Value}
			}
			entry["choices"] = choices
		}
		if len(o.Options) > 0 {
			entry["options"] = normalizeOptions(o.Options)
		}
		normalized[i] = entry
	}
	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i]["name"].(string) < normalized[j]["name"].(string)
	})
	return normalized
}
