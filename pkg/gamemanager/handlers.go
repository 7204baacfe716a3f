package gamemanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/sipeed/gamemanager/pkg/access"
	"github.com/sipeed/gamemanager/pkg/supervisor"
)

func (r *Router) definitions() []Definition {
	return []Definition{
		{
			Name:        "status",
			Aliases:     []string{"view"},
			Description: "list all processes managed by the supervisor, including the game server itself",
			Usage:       "status",
			Policy:      access.RequireRole(r.opts.StatusRole),
			Handler:     r.handleStatus,
		},
		{
			Name:        "restart",
			Description: "restart a process by name (see the status command for names)",
			Usage:       "restart <process name>",
			Policy:      access.RequireRole(r.opts.RestartRole),
			Handler:     r.handleRestart,
		},
		{
			Name:        "help",
			Description: "show this message",
			Usage:       "help",
			Policy:      r.group,
			Handler:     r.handleHelp,
		},
	}
}

func (r *Router) handleStatus(ctx context.Context, inv *Invocation) error {
	procs, err := r.monitor.ListProcesses(ctx)
	if err != nil {
		return errors.Join(err, inv.reply(failureMessage("The process list could not be retrieved", err)))
	}

	inv.Log.InfoF("Reporting process status", inv.fields(map[string]any{"count": len(procs)}))
	return inv.reply(FormatStatus(procs))
}

func (r *Router) handleRestart(ctx context.Context, inv *Invocation) error {
	if len(inv.Args) == 0 {
		return inv.reply(fmt.Sprintf(
			"You must provide the name of the process to restart, such as ```%s restart valheim-server```",
			r.Trigger()))
	}
	name := inv.Args[0]

	if err := inv.reply(fmt.Sprintf("Process %s will be restarted.", name)); err != nil {
		return err
	}

	inv.Log.InfoF("Restarting process", inv.fields(map[string]any{"process": name}))
	if err := r.monitor.Restart(ctx, name); err != nil {
		msg := failureMessage(fmt.Sprintf("The process %s could not be restarted", name), err)
		return errors.Join(err, inv.reply(msg))
	}

	return inv.reply(fmt.Sprintf("The process %s has been restarted successfully.", name))
}

func (r *Router) handleHelp(_ context.Context, inv *Invocation) error {
	return inv.reply(FormatHelp(r.Trigger(), r.reg.Definitions(), r.group))
}

// failureMessage turns a monitor error into text safe to show in chat. It
// never includes the endpoint, the transport error or the supervisor fault;
// those are logged by the monitor.
func failureMessage(prefix string, err error) string {
	switch {
	case errors.Is(err, supervisor.ErrUnauthorized):
		return prefix + ": the bot is not authorized to talk to the process supervisor. Please tell an administrator."
	case errors.Is(err, supervisor.ErrInvalidArgument):
		return prefix + ": the request was invalid."
	case errors.Is(err, context.DeadlineExceeded):
		return prefix + ": the process supervisor did not answer in time."
	}
	return prefix + ". Check the logs or try again later."
}
