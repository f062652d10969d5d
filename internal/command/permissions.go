package command

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// PermissionNames maps single permission bits to their display names.
var PermissionNames = map[int64]string{
	discordgo.PermissionCreateInstantInvite:    "Create Instant Invite",
	discordgo.PermissionKickMembers:            "Kick Members",
	discordgo.PermissionBanMembers:             "Ban Members",
	discordgo.PermissionAdministrator:          "Administrator",
	discordgo.PermissionManageChannels:         "Manage Channels",
	discordgo.PermissionManageGuild:            "Manage Server",
	discordgo.PermissionAddReactions:           "Add Reactions",
	discordgo.PermissionViewAuditLogs:          "View Audit Logs",
	discordgo.PermissionViewChannel:            "View Channel",
	discordgo.PermissionSendMessages:           "Send Messages",
	discordgo.PermissionSendTTSMessages:        "Send TTS Messages",
	discordgo.PermissionManageMessages:         "Manage Messages",
	discordgo.PermissionEmbedLinks:             "Embed Links",
	discordgo.PermissionAttachFiles:            "Attach Files",
	discordgo.PermissionReadMessageHistory:     "Read Message History",
	discordgo.PermissionMentionEveryone:        "Mention Everyone",
	discordgo.PermissionUseExternalEmojis:      "Use External Emojis",
	discordgo.PermissionUseApplicationCommands: "Use Application Commands",
	discordgo.PermissionManageThreads:          "Manage Threads",
	discordgo.PermissionCreatePublicThreads:    "Create Public Threads",
	discordgo.PermissionCreatePrivateThreads:   "Create Private Threads",
	discordgo.PermissionSendMessagesInThreads:  "Send Messages in Threads",
	discordgo.PermissionVoiceConnect:           "Connect to Voice Channel",
	discordgo.PermissionVoiceSpeak:             "Speak",
	discordgo.PermissionVoiceMuteMembers:       "Mute Members",
	discordgo.PermissionVoiceDeafenMembers:     "Deafen Members",
	discordgo.PermissionVoiceMoveMembers:       "Move Members",
	discordgo.PermissionChangeNickname:         "Change Nickname",
	discordgo.PermissionManageNicknames:        "Manage Nicknames",
	discordgo.PermissionManageRoles:            "Manage Roles",
	discordgo.PermissionManageWebhooks:         "Manage Webhooks",
	discordgo.PermissionManageEvents:           "Manage Events",
	discordgo.PermissionModerateMembers:        "Moderate Members",
}

var permissionsByKey = func() map[string]int64 {
	out := make(map[string]int64, len(PermissionNames))
	for bit, name := range PermissionNames {
		out[permissionKey(name)] = bit
	}
	// aliases used by the platform's own flag names
	out["manageguild"] = discordgo.PermissionManageGuild
	out["connect"] = discordgo.PermissionVoiceConnect
	return out
}()

func permissionKey(s string) string {
	return strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s))
}

// ParsePermission accepts either the display name ("Manage Messages") or the
// flag-style name ("ManageMessages", "MANAGE_MESSAGES").
func ParsePermission(name string) (int64, error) {
	bit, ok := permissionsByKey[permissionKey(name)]
	if !ok {
		return 0, fmt.Errorf("unknown permission %q", name)
	}
	return bit, nil
}

// PermissionName returns the display name of a single permission bit.
func PermissionName(bit int64) string {
	if name, ok := PermissionNames[bit]; ok {
		return name
	}
	return fmt.Sprintf("0x%x", bit)
}

// FormatPermissions renders bits as a comma-separated list of quoted names.
func FormatPermissions(bits []int64) string {
	names := make([]string, 0, len(bits))
	for _, b := range bits {
		names = append(names, fmt.Sprintf("`%s`", PermissionName(b)))
	}
	return strings.Join(names, ", ")
}
