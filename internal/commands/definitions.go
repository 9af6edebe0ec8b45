package commands

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

func GetCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:         "pie",
			Description:  "Declare a new pie and open a thread for slices",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "value",
					Description: "Declared value of the pie",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "id",
					Description: "Pie ID (generated when omitted)",
					Required:    false,
				},
			},
		},
		{
			Name:         "slicepie",
			Description:  "Claim a slice of a pie by its ID",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "id",
					Description: "Pie ID",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "value",
					Description: "Slice value",
					Required:    true,
				},
			},
		},
		{
			Name:         "eatpie",
			Description:  "Settle every open pie and show the averages",
			DMPermission: boolPtr(false),
		},
		{
			Name:         "piereport",
			Description:  "Show the averages without settling",
			DMPermission: boolPtr(false),
		},
		{
			Name:                     "clearpies",
			Description:              "Delete every pie, slice and average",
			DMPermission:             boolPtr(false),
			DefaultMemberPermissions: int64Ptr(discordgo.PermissionAdministrator),
		},
	}
}

// ArgsFromOptions flattens slash command options into the positional text
// the dispatcher parses: the id first when present, then the value.
func ArgsFromOptions(options []*discordgo.ApplicationCommandInteractionDataOption) string {
	var id, value string
	for _, opt := range options {
		switch opt.Name {
		case "id":
			id = strings.TrimSpace(opt.StringValue())
		case "value":
			value = strings.TrimSpace(opt.StringValue())
		}
	}
	return strings.TrimSpace(id + " " + value)
}

func boolPtr(b bool) *bool {
	return &b
}

func int64Ptr(v int64) *int64 {
	return &v
}
