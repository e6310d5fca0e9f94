package kernel

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"subroll/pkg/subroll"
)

// commandTable holds every registered command keyed by normalized name.
// Names are global across modules. It also serves as the command catalog.
type commandTable struct {
	mu     sync.RWMutex
	byName map[string]subroll.RegisteredCommand
}

func newCommandTable() *commandTable {
	return &commandTable{byName: make(map[string]subroll.RegisteredCommand)}
}

// add registers all of a module's commands or none of them.
func (t *commandTable) add(moduleName string, commands []subroll.CommandSpec) error {
	pending := make(map[string]subroll.CommandSpec, len(commands))
	for index, command := range commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("register command[%d] for module %s: %w", index, moduleName, err)
		}
		command.Name = subroll.NormalizeCommandName(command.Name)
		if _, exists := pending[command.Name]; exists {
			return fmt.Errorf("register command %s for module %s: duplicate declaration", command.Name, moduleName)
		}
		pending[command.Name] = command
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for name := range pending {
		if owner, exists := t.byName[name]; exists {
			return fmt.Errorf(
				"register command %s for module %s: %w by module %s",
				name, moduleName, subroll.ErrCommandAlreadyRegistered, owner.ModuleName,
			)
		}
	}
	for name, command := range pending {
		t.byName[name] = subroll.RegisteredCommand{ModuleName: moduleName, Command: command}
	}

	return nil
}

func (t *commandTable) removeModule(moduleName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name, registered := range t.byName {
		if registered.ModuleName == moduleName {
			delete(t.byName, name)
		}
	}
}

func (t *commandTable) lookup(name string) (subroll.CommandSpec, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	registered, exists := t.byName[subroll.NormalizeCommandName(name)]
	return registered.Command, exists
}

// ListCommands returns the registered commands ordered by name.
func (t *commandTable) ListCommands(ctx context.Context) ([]subroll.RegisteredCommand, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}

	t.mu.RLock()
	commands := make([]subroll.RegisteredCommand, 0, len(t.byName))
	for _, registered := range t.byName {
		commands = append(commands, registered)
	}
	t.mu.RUnlock()

	slices.SortFunc(commands, func(a, b subroll.RegisteredCommand) int {
		return cmp.Compare(a.Command.Name, b.Command.Name)
	})

	return commands, nil
}

var _ subroll.CommandCatalog = (*commandTable)(nil)
