package main

import (
	"context"
	"log"

	"go.jetify.com/typeid/v2"

	"github.com/susu3304/piebot/internal/pie"
)

// localGateway stands in for Discord when the bot is not connected:
// messages go to the log and each announcement gets a locally generated
// thread token.
type localGateway struct{}

func newLocalGateway() *localGateway {
	return &localGateway{}
}

func (g *localGateway) PostMessage(_ context.Context, channel, text string, thread pie.Token) (pie.Token, error) {
	if thread == "" {
		tid, err := typeid.Generate("thread")
		if err != nil {
			return "", err
		}
		thread = pie.Token(tid.String())
	}
	log.Printf("local: [%s/%s] %s", channel, thread, text)
	return thread, nil
}
