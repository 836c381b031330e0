// Package nut defines the Network UPS Tools instant commands exposed as
// device actions and the translation between wire command names and action
// types.
package nut

import (
	"fmt"
	"strings"
)

// Parameter is the optional typed argument of an instant command.
type Parameter struct {
	Name string
	Type ParamType
}

// Command is one NUT instant command, e.g. "test.battery.start".
type Command struct {
	Name      string
	Parameter *Parameter
}

// Instant command names supported by the integration.
const (
	CommandBeeperDisable          = "beeper.disable"
	CommandBeeperEnable           = "beeper.enable"
	CommandBeeperMute             = "beeper.mute"
	CommandBeeperToggle           = "beeper.toggle"
	CommandBypassStart            = "bypass.start"
	CommandBypassStop             = "bypass.stop"
	CommandCalibrateStart         = "calibrate.start"
	CommandCalibrateStop          = "calibrate.stop"
	CommandLoadOff                = "load.off"
	CommandLoadOn                 = "load.on"
	CommandResetInputMinmax       = "reset.input.minmax"
	CommandResetWatchdog          = "reset.watchdog"
	CommandShutdownReboot         = "shutdown.reboot"
	CommandShutdownRebootGraceful = "shutdown.reboot.graceful"
	CommandShutdownReturn         = "shutdown.return"
	CommandShutdownStayoff        = "shutdown.stayoff"
	CommandShutdownStop           = "shutdown.stop"
	CommandTestBatteryStart       = "test.battery.start"
	CommandTestBatteryStartDeep   = "test.battery.start.deep"
	CommandTestBatteryStartQuick  = "test.battery.start.quick"
	CommandTestBatteryStop        = "test.battery.stop"
	CommandTestFailureStart       = "test.failure.start"
	CommandTestFailureStop        = "test.failure.stop"
	CommandTestPanelStart         = "test.panel.start"
	CommandTestPanelStop          = "test.panel.stop"
	CommandTestSystemStart        = "test.system.start"
)

// maxDelaySeconds bounds the delay accepted by load.off and load.on.
const maxDelaySeconds = 86400

// ActionName converts a wire command name into its action type.
func ActionName(command string) string {
	return strings.ReplaceAll(command, ".", "_")
}

// CommandName converts an action type back into the wire command name.
func CommandName(action string) string {
	return strings.ReplaceAll(action, "_", ".")
}

// Catalog is an immutable, ordered set of commands indexed by name.
type Catalog struct {
	commands []Command
	byName   map[string]int
}

// NewCatalog builds a Catalog. It panics on duplicate names and on names that
// would not survive the action type round trip.
func NewCatalog(commands ...Command) *Catalog {
	c := &Catalog{
		commands: make([]Command, len(commands)),
		byName:   make(map[string]int, len(commands)),
	}
	for i, cmd := range commands {
		if cmd.Name == "" || strings.Contains(cmd.Name, "_") {
			panic(fmt.Sprintf("nut: invalid command name %q", cmd.Name))
		}
		if _, dup := c.byName[cmd.Name]; dup {
			panic(fmt.Sprintf("nut: duplicate command %q", cmd.Name))
		}
		c.commands[i] = cmd
		c.byName[cmd.Name] = i
	}
	return c
}

// Commands returns the commands in declaration order.
func (c *Catalog) Commands() []Command {
	out := make([]Command, len(c.commands))
	copy(out, c.commands)
	return out
}

// Lookup returns the command with the given wire name.
func (c *Catalog) Lookup(name string) (Command, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Command{}, false
	}
	return c.commands[i], true
}

// Contains reports whether name is in the catalog.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Index returns the declaration position of name, or -1.
func (c *Catalog) Index(name string) int {
	if i, ok := c.byName[name]; ok {
		return i
	}
	return -1
}

// ActionTypes returns the action type of every command in declaration order.
func (c *Catalog) ActionTypes() []string {
	out := make([]string, len(c.commands))
	for i, cmd := range c.commands {
		out[i] = ActionName(cmd.Name)
	}
	return out
}

// ParameterFor returns the parameter of the command behind an action type.
func (c *Catalog) ParameterFor(actionType string) (*Parameter, bool) {
	cmd, ok := c.Lookup(CommandName(actionType))
	if !ok || cmd.Parameter == nil {
		return nil, false
	}
	return cmd.Parameter, true
}

var defaultCatalog = NewCatalog(
	Command{Name: CommandBeeperDisable},
	Command{Name: CommandBeeperEnable},
	Command{Name: CommandBeeperMute},
	Command{Name: CommandBeeperToggle},
	Command{Name: CommandBypassStart},
	Command{Name: CommandBypassStop},
	Command{Name: CommandCalibrateStart},
	Command{Name: CommandCalibrateStop},
	Command{Name: CommandLoadOff, Parameter: &Parameter{
		Name: "delay",
		Type: Constrained(Integer(), Range(0, maxDelaySeconds)),
	}},
	Command{Name: CommandLoadOn, Parameter: &Parameter{
		Name: "delay",
		Type: Constrained(Integer(), Range(0, maxDelaySeconds)),
	}},
	Command{Name: CommandResetInputMinmax},
	Command{Name: CommandResetWatchdog},
	Command{Name: CommandShutdownReboot},
	Command{Name: CommandShutdownRebootGraceful},
	Command{Name: CommandShutdownReturn},
	Command{Name: CommandShutdownStayoff},
	Command{Name: CommandShutdownStop},
	Command{Name: CommandTestBatteryStart, Parameter: &Parameter{
		Name: "battery_test_type",
		Type: String(),
	}},
	Command{Name: CommandTestBatteryStartDeep},
	Command{Name: CommandTestBatteryStartQuick},
	Command{Name: CommandTestBatteryStop},
	Command{Name: CommandTestFailureStart},
	Command{Name: CommandTestFailureStop},
	Command{Name: CommandTestPanelStart},
	Command{Name: CommandTestPanelStop},
	Command{Name: CommandTestSystemStart},
)

// DefaultCatalog returns the commands supported by the integration.
func DefaultCatalog() *Catalog { return defaultCatalog }
