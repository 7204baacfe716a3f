// Package gamemanager routes "!gamemanager" chat commands to the process
// supervisor: role checks first, then status, restart and help.
package gamemanager

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/sipeed/gamemanager/pkg/access"
	"github.com/sipeed/gamemanager/pkg/logger"
	"github.com/sipeed/gamemanager/pkg/supervisor"
)

const (
	DefaultPrefix      = "!"
	DefaultGroup       = "gamemanager"
	DefaultStatusRole  = "Bot Manager - Status Permission"
	DefaultRestartRole = "Bot Manager - Restart Permission"
)

// Reactions added to a message that names an unsupported subcommand.
var unsupportedReactions = []string{"❓", "❌", "🚫"}

// ProcessMonitor is the part of supervisor.Monitor the router uses.
type ProcessMonitor interface {
	ListProcesses(ctx context.Context) ([]supervisor.ProcessInfo, error)
	Restart(ctx context.Context, name string) error
}

type Options struct {
	Prefix      string
	Group       string
	StatusRole  string
	RestartRole string
}

func DefaultOptions() Options {
	return Options{
		Prefix:      DefaultPrefix,
		Group:       DefaultGroup,
		StatusRole:  DefaultStatusRole,
		RestartRole: DefaultRestartRole,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Prefix == "" {
		o.Prefix = d.Prefix
	}
	if o.Group == "" {
		o.Group = d.Group
	}
	if o.StatusRole == "" {
		o.StatusRole = d.StatusRole
	}
	if o.RestartRole == "" {
		o.RestartRole = d.RestartRole
	}
	return o
}

// Request is one chat message as seen by the router. Reply and React may be
// nil, in which case the router stays silent.
type Request struct {
	GuildID    string
	ChannelID  string
	MessageID  string
	AuthorID   string
	AuthorName string
	Roles      []string
	Text       string
	Reply      func(text string) error
	React      func(emoji string) error
}

type Result struct {
	// Matched is false when the message is not addressed to the command group.
	Matched bool
	Command string
	Denied  bool
	Unknown bool
	Err     error
}

type Router struct {
	opts    Options
	monitor ProcessMonitor
	group   access.Policy
	reg     *Registry
	log     *logger.Logger
	newID   func() string
}

func NewRouter(monitor ProcessMonitor, opts Options, log *logger.Logger) *Router {
	opts = opts.withDefaults()
	r := &Router{
		opts:    opts,
		monitor: monitor,
		group:   access.RequireAny(opts.StatusRole, opts.RestartRole),
		log:     log.Component("gamemanager"),
		newID:   uuid.NewString,
	}
	r.reg = NewRegistry(r.definitions())
	return r
}

// Trigger is the token that addresses the command group, e.g. "!gamemanager".
func (r *Router) Trigger() string {
	return r.opts.Prefix + r.opts.Group
}

func (r *Router) Registry() *Registry {
	return r.reg
}

// Matches reports whether text is addressed to the command group.
func (r *Router) Matches(text string) bool {
	_, _, ok := r.parse(text)
	return ok
}

func (r *Router) parse(text string) (sub string, args []string, ok bool) {
	parts := strings.Fields(strings.TrimSpace(text))
	if len(parts) == 0 || parts[0] != r.Trigger() {
		return "", nil, false
	}
	if len(parts) == 1 {
		return "", nil, true
	}
	return parts[1], parts[2:], true
}

// Handle parses, authorizes and runs one request. Authorization happens before
// any handler runs; denials are replied to and reported in Result.Denied.
func (r *Router) Handle(ctx context.Context, req Request) Result {
	sub, args, ok := r.parse(req.Text)
	if !ok {
		return Result{Matched: false}
	}

	inv := &Invocation{
		Request:   req,
		RequestID: r.newID(),
		Command:   sub,
		Args:      args,
		Log:       r.log,
	}
	r.log.InfoF("Command received", inv.fields(map[string]any{"args": len(args)}))

	if req.GuildID == "" {
		return r.deny(inv, access.NotInGuild())
	}
	if d := r.group.Check(req.Roles); !d.Allowed {
		return r.deny(inv, d)
	}

	if sub == "" {
		sub = "help"
	}
	def, found := r.reg.Lookup(sub)
	if !found {
		return r.unsupported(inv)
	}
	inv.Command = def.Name

	if d := def.Policy.Check(req.Roles); !d.Allowed {
		return r.deny(inv, d)
	}

	err := def.Handler(ctx, inv)
	if err != nil {
		r.log.ErrorF("Command failed", inv.fields(map[string]any{"error": err.Error()}))
	}
	return Result{Matched: true, Command: def.Name, Err: err}
}

func (r *Router) deny(inv *Invocation, d access.Decision) Result {
	r.log.WarnF("Command denied", inv.fields(map[string]any{
		"reason":   string(d.Reason),
		"required": strings.Join(d.Required, ", "),
	}))
	err := inv.reply(d.Message())
	return Result{Matched: true, Command: inv.Command, Denied: true, Err: err}
}

func (r *Router) unsupported(inv *Invocation) Result {
	r.log.WarnF("Unsupported subcommand", inv.fields(nil))

	var firstErr error
	for _, emoji := range unsupportedReactions {
		if err := inv.react(emoji); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := inv.reply("Nice try. This command isn't supported: " + inv.Command); err != nil && firstErr == nil {
		firstErr = err
	}
	return Result{Matched: true, Command: inv.Command, Unknown: true, Err: firstErr}
}
