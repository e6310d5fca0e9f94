package help

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"subroll/pkg/subroll"
)

const helpCommandName = "help"

// Module answers the help command with the commands registered across all
// modules, rendered with the live command prefix.
type Module struct {
	sink     subroll.SinkDispatcher
	catalog  subroll.CommandCatalog
	prefixes subroll.CommandPrefixStore
}

func New() *Module {
	return &Module{}
}

// Name implements subroll.Module.
func (m *Module) Name() string {
	return "help"
}

// Spec implements subroll.Module.
func (m *Module) Spec() subroll.ModuleSpec {
	return subroll.ModuleSpec{
		Handlers: []subroll.ModuleHandler{{
			Capability: subroll.Capability{
				Name:        "help-command-handler",
				Description: "renders registered command help",
				Interest: subroll.InterestSet{
					Kinds:          []subroll.EventKind{subroll.EventKindCommandReceived},
					RequireCommand: true,
					CommandNames:   []string{helpCommandName},
					RequireMessage: true,
				},
				RequiredServices: []string{
					subroll.ServiceSinkDispatcher,
					subroll.ServiceCommandCatalog,
					subroll.ServiceCommandPrefix,
				},
			},
			Subscription: subroll.NewDefaultSubscriptionSpec("help-commands"),
			Handler:      m.handleCommand,
		}},
		Commands: []subroll.CommandSpec{{
			Name:        helpCommandName,
			Usage:       "[command]",
			Description: "show all available commands",
		}},
	}
}

// OnRegister implements subroll.ModuleRegistrar.
func (m *Module) OnRegister(_ context.Context, runtime subroll.ModuleRuntime) error {
	services := runtime.Services()

	sink, err := subroll.ResolveAs[subroll.SinkDispatcher](services, subroll.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("help resolve sink dispatcher: %w", err)
	}
	catalog, err := subroll.ResolveAs[subroll.CommandCatalog](services, subroll.ServiceCommandCatalog)
	if err != nil {
		return fmt.Errorf("help resolve command catalog: %w", err)
	}
	prefixes, err := subroll.ResolveAs[subroll.CommandPrefixStore](services, subroll.ServiceCommandPrefix)
	if err != nil {
		return fmt.Errorf("help resolve command prefix: %w", err)
	}

	m.sink, m.catalog, m.prefixes = sink, catalog, prefixes

	return nil
}

func (m *Module) OnStart(context.Context) error {
	return nil
}

func (m *Module) OnShutdown(context.Context) error {
	return nil
}

func (m *Module) handleCommand(ctx context.Context, event *subroll.Event) error {
	if event == nil || event.Message == nil || event.Command == nil || event.Command.Name != helpCommandName {
		return nil
	}
	if m.sink == nil || m.catalog == nil {
		return fmt.Errorf("help handle command: module not registered")
	}

	commands, err := m.catalog.ListCommands(ctx)
	if err != nil {
		return fmt.Errorf("help list commands: %w", err)
	}
	prefix := subroll.DefaultCommandPrefix
	if m.prefixes != nil {
		prefix = m.prefixes.Prefix()
	}

	text := renderHelp(prefix, commands)
	if len(event.Command.Args) > 0 {
		text = renderCommandHelp(prefix, event.Command.Args[0], commands)
	}

	target, err := subroll.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("help derive outbound target: %w", err)
	}
	if _, err := m.sink.SendMessage(ctx, subroll.SendMessageRequest{
		Target:             target,
		Text:               text,
		ReplyToMessageID:   event.Message.ID,
		DisableLinkPreview: true,
	}); err != nil {
		return fmt.Errorf("help send help message: %w", err)
	}

	return nil
}

func renderHelp(prefix string, commands []subroll.RegisteredCommand) string {
	if len(commands) == 0 {
		return "Available commands:\n(none)"
	}

	sorted := slices.Clone(commands)
	slices.SortFunc(sorted, func(a, b subroll.RegisteredCommand) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.Command.Name), strings.ToLower(b.Command.Name)),
			cmp.Compare(a.ModuleName, b.ModuleName),
		)
	})

	blocks := make([]string, 0, len(sorted))
	for _, command := range sorted {
		blocks = append(blocks, commandBlock(prefix, command))
	}

	return "Available commands:\n\n" + strings.Join(blocks, "\n\n")
}

// renderCommandHelp describes the commands matching name, ignoring case and a
// leading prefix.
func renderCommandHelp(prefix, name string, commands []subroll.RegisteredCommand) string {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), prefix))

	var blocks []string
	for _, command := range commands {
		if strings.EqualFold(strings.TrimSpace(command.Command.Name), name) {
			blocks = append(blocks, commandBlock(prefix, command))
		}
	}
	if len(blocks) == 0 {
		return fmt.Sprintf("No command named %s.", name)
	}

	return strings.Join(blocks, "\n\n")
}

// commandBlock renders the label line, the description when set, and the
// owning module.
func commandBlock(prefix string, command subroll.RegisteredCommand) string {
	lines := []string{prefix + strings.ToLower(strings.TrimSpace(command.Command.Name))}
	if usage := strings.TrimSpace(command.Command.Usage); usage != "" {
		lines[0] += " " + usage
	}
	if description := strings.TrimSpace(command.Command.Description); description != "" {
		lines = append(lines, description)
	}
	lines = append(lines, "("+cmp.Or(strings.TrimSpace(command.ModuleName), "unknown")+")")

	return strings.Join(lines, "\n")
}

var (
	_ subroll.Module          = (*Module)(nil)
	_ subroll.ModuleRegistrar = (*Module)(nil)
)
