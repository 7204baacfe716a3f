package supervisor

import (
	"fmt"
	"strconv"
)

// Process states reported by supervisord in the "state" field.
const (
	StateStopped  = 0
	StateStarting = 10
	StateRunning  = 20
	StateBackoff  = 30
	StateStopping = 40
	StateExited   = 100
	StateFatal    = 200
	StateUnknown  = 1000
)

// ProcessInfo is one entry of supervisor.getAllProcessInfo, exactly as the
// daemon sent it. The accessors only read; they never normalise the map.
type ProcessInfo map[string]any

func (p ProcessInfo) Name() string {
	return p.str("name")
}

func (p ProcessInfo) Group() string {
	return p.str("group")
}

// FullName is the "group:name" form supervisord accepts for grouped programs.
func (p ProcessInfo) FullName() string {
	group, name := p.Group(), p.Name()
	if group == "" || group == name {
		return name
	}
	return group + ":" + name
}

func (p ProcessInfo) StateName() string {
	if s := p.str("statename"); s != "" {
		return s
	}
	return "UNKNOWN"
}

func (p ProcessInfo) State() int {
	v, ok := p.int("state")
	if !ok {
		return StateUnknown
	}
	return v
}

func (p ProcessInfo) PID() int {
	v, _ := p.int("pid")
	return v
}

func (p ProcessInfo) Description() string {
	return p.str("description")
}

func (p ProcessInfo) Running() bool {
	return p.State() == StateRunning
}

func (p ProcessInfo) str(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (p ProcessInfo) int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}
