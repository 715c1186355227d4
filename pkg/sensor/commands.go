package sensor

import (
	"fmt"
	"strings"
)

// Action is a command the instrument knows how to execute.
type Action uint8

const (
	ActionConnect Action = iota + 1
	ActionStart
	ActionStop
	ActionReset
	ActionTest
	ActionHelp
	ActionLED
)

var actionNames = map[Action]string{
	ActionConnect: "connect",
	ActionStart:   "start",
	ActionStop:    "stop",
	ActionReset:   "reset",
	ActionTest:    "test",
	ActionHelp:    "help",
	ActionLED:     "led",
}

var actionHelp = map[Action]string{
	ActionConnect: "send connection string",
	ActionStart:   "start measurement",
	ActionStop:    "stop measurement",
	ActionReset:   "send reset info",
	ActionTest:    "send test union data buffer",
	ActionHelp:    "list commands",
	ActionLED:     "toggle the user LED",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Description is the help text fragment for a.
func (a Action) Description() string {
	return actionHelp[a]
}

// ParseAction maps a configuration name to an Action.
func ParseAction(name string) (Action, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for a, n := range actionNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown command action %q", name)
}

// Command binds a trigger byte to an action.
type Command struct {
	Trigger byte
	Action  Action
}

// Table is an ordered, immutable command table. Lookup returns the first
// entry with a matching trigger.
type Table struct {
	entries []Command
}

// NewTable builds a table from cmds in order.
func NewTable(cmds ...Command) *Table {
	entries := make([]Command, len(cmds))
	copy(entries, cmds)
	return &Table{entries: entries}
}

// Command variants selectable from configuration.
const (
	VariantGUI    = "gui"
	VariantThesis = "thesis"
)

// GUITable is the command set used with the host application.
func GUITable() *Table {
	return NewTable(
		Command{'c', ActionConnect},
		Command{'m', ActionStart},
		Command{'s', ActionStop},
		Command{'r', ActionReset},
		Command{'u', ActionTest},
		Command{'h', ActionHelp},
	)
}

// ThesisTable is the bench command set with the LED toggle.
func ThesisTable() *Table {
	return NewTable(
		Command{'v', ActionConnect},
		Command{'r', ActionStart},
		Command{'s', ActionStop},
		Command{'l', ActionLED},
	)
}

// VariantTable returns the preset table for a variant name.
func VariantTable(variant string) (*Table, error) {
	switch variant {
	case "", VariantGUI:
		return GUITable(), nil
	case VariantThesis:
		return ThesisTable(), nil
	default:
		return nil, fmt.Errorf("unknown command variant %q", variant)
	}
}

// Lookup returns the first command triggered by b.
func (t *Table) Lookup(b byte) (Command, bool) {
	for _, c := range t.entries {
		if c.Trigger == b {
			return c, true
		}
	}
	return Command{}, false
}

// Entries returns a copy of the table in order.
func (t *Table) Entries() []Command {
	out := make([]Command, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of commands.
func (t *Table) Len() int {
	return len(t.entries)
}

// Trigger returns the first trigger bound to a, if any.
func (t *Table) Trigger(a Action) (byte, bool) {
	for _, c := range t.entries {
		if c.Action == a {
			return c.Trigger, true
		}
	}
	return 0, false
}
