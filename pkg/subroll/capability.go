package subroll

import (
	"slices"

	"github.com/samber/lo"
)

// Capability describes what a module can process and what resources it requires.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
}

// InterestSet describes event selection criteria for capability negotiation.
type InterestSet struct {
	// Kinds restricts delivery to listed event kinds.
	Kinds []EventKind
	// Sources restricts delivery to listed driver instances.
	Sources []EventSource
	// RequireMessage requires the Message payload branch.
	RequireMessage bool
	// RequireReaction requires the Reaction payload branch.
	RequireReaction bool
	// RequireCommand requires the Command payload branch.
	RequireCommand bool
	// CommandNames restricts command events to listed normalized names.
	CommandNames []string
}

// Matches reports whether an event satisfies the declared interest set.
func (i InterestSet) Matches(event *Event) bool {
	if event == nil {
		return false
	}
	if len(i.Kinds) > 0 && !slices.Contains(i.Kinds, event.Kind) {
		return false
	}
	if len(i.Sources) > 0 && !sourceIncluded(i.Sources, event.Source) {
		return false
	}
	if i.RequireMessage && event.Message == nil {
		return false
	}
	if i.RequireReaction && event.Reaction == nil {
		return false
	}
	if i.RequireCommand && event.Command == nil {
		return false
	}
	if len(i.CommandNames) > 0 {
		if event.Command == nil {
			return false
		}
		if !slices.Contains(normalizeCommandNames(i.CommandNames), NormalizeCommandName(event.Command.Name)) {
			return false
		}
	}

	return true
}

// Allows reports whether this interest set can safely satisfy another filter.
func (i InterestSet) Allows(filter InterestSet) bool {
	if len(i.Kinds) > 0 && !lo.Every(i.Kinds, filter.Kinds) {
		return false
	}
	if len(i.Sources) > 0 && !lo.Every(i.Sources, filter.Sources) {
		return false
	}
	if i.RequireMessage && !filter.RequireMessage {
		return false
	}
	if i.RequireReaction && !filter.RequireReaction {
		return false
	}
	if i.RequireCommand && !filter.RequireCommand {
		return false
	}
	if len(i.CommandNames) > 0 {
		if len(filter.CommandNames) == 0 {
			return false
		}
		if !lo.Every(normalizeCommandNames(i.CommandNames), normalizeCommandNames(filter.CommandNames)) {
			return false
		}
	}

	return true
}

// sourceIncluded matches each allowed source on whichever of ID and platform
// it sets.
func sourceIncluded(allowed []EventSource, source EventSource) bool {
	for _, candidate := range allowed {
		if candidate.ID != "" && candidate.ID != source.ID {
			continue
		}
		if candidate.Platform != "" && candidate.Platform != source.Platform {
			continue
		}
		return true
	}

	return false
}

func normalizeCommandNames(names []string) []string {
	return lo.Map(names, func(name string, _ int) string { return NormalizeCommandName(name) })
}
