package bot

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/piebot/internal/pie"
)

const (
	messageLimit    = 2000
	threadNameLimit = 100
	// one day, in minutes
	threadArchive = 1440
)

// Minimal session interface for posting messages and opening threads.
type gatewaySession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageThreadStart(channelID, messageID string, name string, archiveDuration int, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Gateway posts pie messages to Discord. A pie's correlation token is the
// ID of the thread started from its announcement.
type Gateway struct {
	session gatewaySession
}

var _ pie.Gateway = (*Gateway)(nil)

func NewGateway(session gatewaySession) *Gateway {
	return &Gateway{session: session}
}

func (g *Gateway) PostMessage(ctx context.Context, channel, text string, thread pie.Token) (pie.Token, error) {
	if thread != "" {
		if err := g.send(ctx, string(thread), text); err != nil {
			return "", err
		}
		return thread, nil
	}

	chunks := splitMessage(text)
	msg, err := g.session.ChannelMessageSend(channel, chunks[0], discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send to channel %s: %w", channel, err)
	}
	ch, err := g.session.MessageThreadStart(channel, msg.ID, threadName(text), threadArchive, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("start thread on message %s: %w", msg.ID, err)
	}
	for _, c := range chunks[1:] {
		if _, err := g.session.ChannelMessageSend(ch.ID, c, discordgo.WithContext(ctx)); err != nil {
			return "", fmt.Errorf("send to thread %s: %w", ch.ID, err)
		}
	}
	return pie.Token(ch.ID), nil
}

// Send posts text to a channel without opening a thread.
func (g *Gateway) Send(ctx context.Context, channel, text string) error {
	return g.send(ctx, channel, text)
}

func (g *Gateway) send(ctx context.Context, channel, text string) error {
	for _, c := range splitMessage(text) {
		if _, err := g.session.ChannelMessageSend(channel, c, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send to channel %s: %w", channel, err)
		}
	}
	return nil
}

// splitMessage breaks text into chunks within Discord's message limit,
// preferring line boundaries.
func splitMessage(text string) []string {
	if len(text) <= messageLimit {
		return []string{text}
	}

	var (
		chunks []string
		buffer strings.Builder
	)
	flush := func() {
		if buffer.Len() > 0 {
			chunks = append(chunks, buffer.String())
			buffer.Reset()
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > messageLimit {
			flush()
			cut := messageLimit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if buffer.Len()+len(line) > messageLimit {
			flush()
		}
		buffer.WriteString(line)
	}
	flush()
	return chunks
}

func threadName(text string) string {
	name, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if utf8.RuneCountInString(name) <= threadNameLimit {
		return name
	}
	r := []rune(name)
	return string(r[:threadNameLimit])
}
