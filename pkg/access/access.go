// Package access decides whether a chat member may run a command, based on the
// names of the roles they hold. Decisions are plain values; nothing panics or
// errors on a denial.
package access

import (
	"fmt"
	"strings"
)

// DenialReason explains why a Decision is not allowed.
type DenialReason string

const (
	// ReasonNone is set on allowed decisions
	ReasonNone DenialReason = ""
	// ReasonMissingRole means the single required role is absent
	ReasonMissingRole DenialReason = "missing_role"
	// ReasonMissingAnyRole means none of several accepted roles is present
	ReasonMissingAnyRole DenialReason = "missing_any_role"
	// ReasonNotInGuild means the request did not come from a guild, so there are no roles to check
	ReasonNotInGuild DenialReason = "not_in_guild"
)

// Policy accepts a member holding at least one of AnyOf. An empty policy
// accepts everyone.
type Policy struct {
	AnyOf []string
}

// RequireRole is a policy with a single required role.
func RequireRole(role string) Policy {
	return Policy{AnyOf: []string{role}}
}

// RequireAny accepts any of roles.
func RequireAny(roles ...string) Policy {
	return Policy{AnyOf: append([]string(nil), roles...)}
}

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed  bool
	Reason   DenialReason
	Required []string
}

// Allow is the decision for an unrestricted request.
func Allow() Decision {
	return Decision{Allowed: true}
}

// NotInGuild is the decision for requests that carry no guild membership.
func NotInGuild() Decision {
	return Decision{Reason: ReasonNotInGuild}
}

// Check evaluates the member's role names against the policy. Role names are
// compared exactly, as the chat platform displays them.
func (p Policy) Check(roles []string) Decision {
	if len(p.AnyOf) == 0 {
		return Allow()
	}

	held := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		held[r] = struct{}{}
	}
	for _, want := range p.AnyOf {
		if _, ok := held[want]; ok {
			return Allow()
		}
	}

	reason := ReasonMissingAnyRole
	if len(p.AnyOf) == 1 {
		reason = ReasonMissingRole
	}
	return Decision{
		Reason:   reason,
		Required: append([]string(nil), p.AnyOf...),
	}
}

// Message renders the denial for the member. Allowed decisions render empty.
func (d Decision) Message() string {
	switch d.Reason {
	case ReasonNone:
		return ""
	case ReasonMissingRole:
		return fmt.Sprintf("Role '%s' is required to run this command.", strings.Join(d.Required, ", "))
	case ReasonMissingAnyRole:
		return "You are missing at least one of the required roles: " + joinRoles(d.Required)
	case ReasonNotInGuild:
		return "This command cannot be used in private messages."
	}
	return "You are not allowed to run this command."
}

func joinRoles(roles []string) string {
	quoted := make([]string, len(roles))
	for i, r := range roles {
		quoted[i] = "'" + r + "'"
	}
	if len(quoted) > 2 {
		return strings.Join(quoted[:len(quoted)-1], ", ") + ", or " + quoted[len(quoted)-1]
	}
	return strings.Join(quoted, " or ")
}
