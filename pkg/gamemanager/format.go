package gamemanager

import (
	"fmt"
	"strings"

	"github.com/sipeed/gamemanager/pkg/access"
	"github.com/sipeed/gamemanager/pkg/supervisor"
)

// FormatStatus renders the process list as a fixed-width code block.
func FormatStatus(procs []supervisor.ProcessInfo) string {
	if len(procs) == 0 {
		return "No processes are managed by the supervisor."
	}

	nameWidth, stateWidth := len("PROCESS"), len("STATE")
	for _, p := range procs {
		nameWidth = max(nameWidth, len(p.FullName()))
		stateWidth = max(stateWidth, len(p.StateName()))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Status of %d process(es):\n```\n", len(procs))
	fmt.Fprintf(&sb, "%-*s  %-*s  %s\n", nameWidth, "PROCESS", stateWidth, "STATE", "DETAILS")
	for _, p := range procs {
		details := p.Description()
		if details == "" && p.PID() > 0 {
			details = fmt.Sprintf("pid %d", p.PID())
		}
		line := fmt.Sprintf("%-*s  %-*s  %s", nameWidth, p.FullName(), stateWidth, p.StateName(), details)
		sb.WriteString(strings.TrimRight(line, " "))
		sb.WriteByte('\n')
	}
	sb.WriteString("```")
	return sb.String()
}

// FormatHelp renders usage and the role requirements of every subcommand.
func FormatHelp(trigger string, defs []Definition, group access.Policy) string {
	var sb strings.Builder
	sb.WriteString("The game manager bot helps you view the status of the game server processes and restart them if necessary.\n")
	sb.WriteString("Usage:\n")
	for _, d := range defs {
		usage := d.Usage
		if usage == "" {
			usage = d.Name
		}
		line := fmt.Sprintf("    %s %s", trigger, usage)
		if len(d.Aliases) > 0 {
			line += " (or " + strings.Join(d.Aliases, ", ") + ")"
		}
		if d.Description != "" {
			line += " - " + d.Description
		}
		sb.WriteString(line + "\n")
	}

	sb.WriteString("\nRequired Permissions:\n")
	fmt.Fprintf(&sb, "    %s - %s\n", trigger, requirement(group))
	for _, d := range defs {
		if len(d.Policy.AnyOf) == 0 || samePolicy(d.Policy, group) {
			continue
		}
		fmt.Fprintf(&sb, "    %s %s - %s\n", trigger, d.Name, requirement(d.Policy))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func requirement(p access.Policy) string {
	switch len(p.AnyOf) {
	case 0:
		return "No role is required."
	case 1:
		return fmt.Sprintf("You must have the '%s' server role.", p.AnyOf[0])
	}
	return "You must have at least one of the following server roles: " + strings.Join(p.AnyOf, ", ")
}

func samePolicy(a, b access.Policy) bool {
	if len(a.AnyOf) != len(b.AnyOf) {
		return false
	}
	for i := range a.AnyOf {
		if a.AnyOf[i] != b.AnyOf[i] {
			return false
		}
	}
	return true
}
