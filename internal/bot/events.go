package bot

import (
	"context"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/piebot/internal/commands"
	"github.com/susu3304/piebot/internal/pie"
)

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Printf("%s is connected!", event.User.Username)

	for _, guild := range event.Guilds {
		if err := b.registerGuildCommands(guild.ID); err != nil {
			log.Printf("Failed to register commands for guild %s: %v", guild.ID, err)
		}
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	log.Printf("Guild available/joined: %s (id=%s), ensuring commands", event.Name, event.ID)
	if err := b.registerGuildCommands(event.ID); err != nil {
		log.Printf("Failed to register commands for guild %s: %v", event.ID, err)
	}
}

func (b *Bot) registerGuildCommands(guildID string) error {
	// Delete existing commands and register new ones
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, guildID, commands.GetCommands())
	if err != nil {
		return err
	}

	log.Printf("Registered application commands for guild %s", guildID)
	return nil
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	ev := eventFromMessage(m.Message, b.inThread(s, m.ChannelID))
	if err := b.inbox.Submit(b.ctx, ev); err != nil {
		log.Printf("bot: failed to queue message %s: %v", m.ID, err)
	}
}

// inThread reports whether channelID is a thread. Uncached channels count as
// threads and the ledger lookup decides.
func (b *Bot) inThread(s *discordgo.Session, channelID string) bool {
	if s.State == nil {
		return true
	}
	ch, err := s.State.Channel(channelID)
	if err != nil {
		return true
	}
	return ch.IsThread()
}

func eventFromMessage(m *discordgo.Message, inThread bool) commands.Event {
	ev := commands.Event{
		Type:    commands.EventMessage,
		Text:    m.Content,
		Channel: m.ChannelID,
	}
	if m.Author != nil {
		ev.User = m.Author.Username
		ev.IsFromBot = m.Author.Bot
	}
	if inThread {
		ev.ThreadToken = pie.Token(m.ChannelID)
	}
	return ev
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	handleInteraction(context.Background(), s, b.dispatcher, i.Interaction)
}

type dispatcher interface {
	Dispatch(ctx context.Context, cmd commands.Command) commands.Response
}

// Minimal session interface for answering interactions.
type interactionSession interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// handleInteraction defers the reply first since settlement can outlast
// Discord's three second acknowledgement window.
func handleInteraction(ctx context.Context, s interactionSession, d dispatcher, i *discordgo.Interaction) {
	err := s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		log.Printf("bot: failed to acknowledge interaction %s: %v", i.ID, err)
		return
	}

	resp := d.Dispatch(ctx, commandFromInteraction(i))
	if resp.Err != nil {
		log.Printf("bot: command %s failed: %v", i.ApplicationCommandData().Name, resp.Err)
	}
	for _, chunk := range splitMessage(resp.Text) {
		if _, err := s.FollowupMessageCreate(i, true, &discordgo.WebhookParams{Content: chunk}); err != nil {
			log.Printf("bot: failed to send followup for interaction %s: %v", i.ID, err)
			return
		}
	}
}

func commandFromInteraction(i *discordgo.Interaction) commands.Command {
	data := i.ApplicationCommandData()
	cmd := commands.Command{
		Name:    data.Name,
		Args:    commands.ArgsFromOptions(data.Options),
		Channel: i.ChannelID,
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		cmd.User = i.Member.User.Username
	case i.User != nil:
		cmd.User = i.User.Username
	}
	return cmd
}
