package subroll

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultCommandPrefix is used until an operator changes it.
	DefaultCommandPrefix = "?"

	// ServiceCommandCatalog is the service key of the CommandCatalog.
	ServiceCommandCatalog = "subroll.command_catalog"
	// ServiceCommandPrefix is the service key of the CommandPrefixStore.
	ServiceCommandPrefix = "subroll.command_prefix"

	maxCommandPrefixRunes = 8
)

// CommandSpec declares one command a module answers. Usage is an optional
// argument synopsis shown by help, such as "<sub...>".
type CommandSpec struct {
	Name        string
	Usage       string
	Description string
}

// Validate requires a single-word name.
func (s CommandSpec) Validate() error {
	name := NormalizeCommandName(s.Name)
	switch {
	case name == "":
		return fmt.Errorf("validate command spec: missing name")
	case strings.ContainsFunc(name, unicode.IsSpace):
		return fmt.Errorf("validate command spec: name %q contains whitespace", s.Name)
	}

	return nil
}

// RegisteredCommand is a CommandSpec together with the module that owns it.
type RegisteredCommand struct {
	ModuleName string
	Command    CommandSpec
}

// CommandCatalog lists registered commands. It is safe for concurrent use.
type CommandCatalog interface {
	ListCommands(ctx context.Context) ([]RegisteredCommand, error)
}

// CommandPrefixStore holds the process-wide command prefix. SetPrefix
// validates with ValidateCommandPrefix.
type CommandPrefixStore interface {
	Prefix() string
	SetPrefix(value string) error
}

// ValidateCommandPrefix accepts up to eight non-space characters.
func ValidateCommandPrefix(value string) error {
	switch {
	case value == "":
		return fmt.Errorf("%w: empty prefix", ErrInvalidCommandPrefix)
	case utf8.RuneCountInString(value) > maxCommandPrefixRunes:
		return fmt.Errorf("%w: prefix %q longer than %d characters", ErrInvalidCommandPrefix, value, maxCommandPrefixRunes)
	case strings.ContainsFunc(value, unicode.IsSpace):
		return fmt.Errorf("%w: prefix %q contains whitespace", ErrInvalidCommandPrefix, value)
	}

	return nil
}

// CommandCandidate is message text that starts with the prefix, before it is
// matched against a registered CommandSpec. Mention holds the bot name from a
// "<name>@<bot>" header.
type CommandCandidate struct {
	Prefix   string
	Name     string
	Mention  string
	RawInput string
	Tokens   []string
}

// CommandInvocation is the payload of a command event. Value is Args joined
// by single spaces.
type CommandInvocation struct {
	Name            string
	Mention         string
	Args            []string
	Value           string
	SourceEventID   string
	SourceEventKind EventKind
	RawInput        string
}

// Validate checks the invocation names a command and its source event.
func (c *CommandInvocation) Validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("validate command invocation: nil invocation")
	case NormalizeCommandName(c.Name) == "":
		return fmt.Errorf("validate command invocation: missing name")
	case c.SourceEventID == "":
		return fmt.Errorf("validate command invocation: missing source_event_id")
	case c.SourceEventKind == "":
		return fmt.Errorf("validate command invocation: missing source_event_kind")
	}

	return nil
}

// ParseCommandCandidate splits text into a command header and argument tokens.
// matched reports whether text starts with prefix at all; a matched text with
// no command name after the prefix also returns an error.
func ParseCommandCandidate(text string, prefix string) (candidate CommandCandidate, matched bool, err error) {
	candidate.RawInput = text

	fields := strings.Fields(text)
	if prefix == "" || len(fields) == 0 {
		return candidate, false, nil
	}
	header, ok := strings.CutPrefix(fields[0], prefix)
	if !ok {
		return candidate, false, nil
	}

	name, mention, _ := strings.Cut(header, "@")
	candidate.Prefix = prefix
	candidate.Name = NormalizeCommandName(name)
	candidate.Mention = strings.TrimSpace(mention)
	if candidate.Name == "" {
		return candidate, true, fmt.Errorf("parse command candidate: missing command name")
	}
	if len(fields) > 1 {
		candidate.Tokens = slices.Clone(fields[1:])
	}

	return candidate, true, nil
}

// BindCommand turns a candidate into the invocation of spec. sourceEvent is
// the message event the candidate was parsed from.
func BindCommand(candidate CommandCandidate, spec CommandSpec, sourceEvent *Event) (CommandInvocation, error) {
	if sourceEvent == nil {
		return CommandInvocation{}, fmt.Errorf("bind command: nil source event")
	}
	if err := spec.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", spec.Name, err)
	}
	name := NormalizeCommandName(spec.Name)
	if NormalizeCommandName(candidate.Name) != name {
		return CommandInvocation{}, fmt.Errorf("bind command %s: name mismatch, got %q", spec.Name, candidate.Name)
	}

	invocation := CommandInvocation{
		Name:            name,
		Mention:         candidate.Mention,
		Args:            slices.Clone(candidate.Tokens),
		Value:           strings.Join(candidate.Tokens, " "),
		SourceEventID:   sourceEvent.ID,
		SourceEventKind: sourceEvent.Kind,
		RawInput:        candidate.RawInput,
	}
	if err := invocation.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", spec.Name, err)
	}

	return invocation, nil
}

// NormalizeCommandName is the lookup form of a command name.
func NormalizeCommandName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
