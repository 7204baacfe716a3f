package gamemanager

import (
	"context"

	"github.com/sipeed/gamemanager/pkg/access"
	"github.com/sipeed/gamemanager/pkg/logger"
)

// Handler runs one subcommand. Replies go through the invocation; the returned
// error is reported to the caller of Router.Handle.
type Handler func(ctx context.Context, inv *Invocation) error

// Definition describes a subcommand of the command group.
type Definition struct {
	Name        string
	Description string
	Usage       string
	Aliases     []string
	Policy      access.Policy
	Handler     Handler
}

func (d Definition) matches(name string) bool {
	if d.Name == name {
		return true
	}
	for _, a := range d.Aliases {
		if a == name {
			return true
		}
	}
	return false
}

// Invocation is a parsed request on its way to a handler.
type Invocation struct {
	Request
	RequestID string
	Command   string
	Args      []string
	Log       *logger.Logger
}

func (inv *Invocation) reply(text string) error {
	if inv.Reply == nil {
		return nil
	}
	return inv.Reply(text)
}

func (inv *Invocation) react(emoji string) error {
	if inv.React == nil {
		return nil
	}
	return inv.React(emoji)
}

func (inv *Invocation) fields(extra map[string]any) map[string]any {
	f := map[string]any{
		"request_id": inv.RequestID,
		"author":     inv.AuthorName,
		"author_id":  inv.AuthorID,
		"channel_id": inv.ChannelID,
	}
	if inv.Command != "" {
		f["command"] = inv.Command
	}
	for k, v := range extra {
		f[k] = v
	}
	return f
}
