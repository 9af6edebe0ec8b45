package bot

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/piebot/internal/commands"
	"github.com/susu3304/piebot/internal/pie"
)

type Options struct {
	InboxShards int
	// SettleInterval enables the scheduled settlement worker when positive.
	SettleInterval time.Duration
	ReportChannel  string
}

type Bot struct {
	session    *discordgo.Session
	gateway    *Gateway
	dispatcher *commands.Dispatcher
	inbox      *commands.Inbox
	settler    *settleWorker

	// ctx is cancelled by Stop; handlers queue work under it.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates the Discord session used by both the gateway and the bot.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent
	return session, nil
}

func New(session *discordgo.Session, gateway *Gateway, dispatcher *commands.Dispatcher, engine *pie.Engine, opts Options) *Bot {
	b := &Bot{
		session:    session,
		gateway:    gateway,
		dispatcher: dispatcher,
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.inbox = commands.NewInbox(dispatcher, b.replyInThread, opts.InboxShards)
	if opts.SettleInterval > 0 && opts.ReportChannel != "" {
		b.settler = newSettleWorker(engine, gateway, opts.ReportChannel, opts.SettleInterval)
	}

	session.AddHandler(b.onReady)
	session.AddHandler(b.onGuildCreate)
	session.AddHandler(b.onMessageCreate)
	session.AddHandler(b.onInteractionCreate)
	return b
}

func (b *Bot) Start() error {
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		if err := b.inbox.Run(b.ctx); err != nil {
			log.Printf("bot: inbox stopped: %v", err)
		}
	}()

	if err := b.session.Open(); err != nil {
		b.stopInbox()
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	b.settler.start()
	log.Println("Discord bot is running")
	return nil
}

func (b *Bot) Stop() error {
	b.settler.stop()
	b.stopInbox()
	return b.session.Close()
}

func (b *Bot) stopInbox() {
	b.cancel()
	if b.done != nil {
		<-b.done
	}
}

func (b *Bot) replyInThread(ctx context.Context, ev commands.Event, resp commands.Response) {
	if _, err := b.gateway.PostMessage(ctx, ev.Channel, resp.Text, ev.ThreadToken); err != nil {
		log.Printf("bot: failed to reply in thread %s: %v", ev.ThreadToken, err)
	}
}
