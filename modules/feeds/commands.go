package feeds

import (
	"context"
	"errors"
	"fmt"

	"subroll/pkg/subroll"
)

const (
	prefixCommandName    = "prefix"
	addSubCommandName    = "addsub"
	addSubsCommandName   = "addsubs"
	listSubsCommandName  = "listsubs"
	removeSubCommandName = "removesub"
	startCommandName     = "start"
	debugCommandName     = "debug"
	statsCommandName     = "stats"
)

func commandSpecs() []subroll.CommandSpec {
	return []subroll.CommandSpec{
		{Name: prefixCommandName, Usage: "<value>", Description: "set the command prefix"},
		{Name: addSubCommandName, Usage: "<sub...>", Description: "subscribe this channel to subreddits"},
		{Name: addSubsCommandName, Usage: "<sub...>", Description: "subscribe this channel to subreddits"},
		{Name: listSubsCommandName, Description: "list this channel's subreddits"},
		{Name: removeSubCommandName, Usage: "<sub>", Description: "unsubscribe this channel from a subreddit"},
		{Name: startCommandName, Description: "post a random cached item"},
		{Name: debugCommandName, Description: "clear all reaction locks"},
		{Name: statsCommandName, Description: "count cached items for this channel"},
	}
}

func commandNames() []string {
	specs := commandSpecs()
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}

	return names
}

// commandContext carries the resolved routing of one command event.
type commandContext struct {
	event  *subroll.Event
	key    ChannelKey
	target subroll.OutboundTarget
}

func (m *Module) handleCommand(ctx context.Context, event *subroll.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}
	if event.Kind != subroll.EventKindCommandReceived {
		return nil
	}

	if !m.allowed(ctx, event) {
		m.log().DebugContext(ctx, "feeds command denied",
			"command", event.Command.Name,
			"actor", event.Actor.ID,
			"conversation", event.Conversation.ID,
		)
		return nil
	}

	key, err := ChannelKeyFromEvent(event)
	if err != nil {
		return fmt.Errorf("feeds command %s: %w", event.Command.Name, err)
	}
	target, err := subroll.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("feeds command %s: %w", event.Command.Name, err)
	}
	command := commandContext{event: event, key: key, target: target}

	switch event.Command.Name {
	case prefixCommandName:
		err = m.runPrefix(ctx, command)
	case addSubCommandName, addSubsCommandName:
		err = m.runAddSubs(ctx, command)
	case listSubsCommandName:
		err = m.runListSubs(ctx, command)
	case removeSubCommandName:
		err = m.runRemoveSub(ctx, command)
	case startCommandName:
		err = m.postItem(ctx, key, target)
	case debugCommandName:
		m.gate.Reset()
		_, err = m.reply(ctx, command, "Interaction locks cleared.")
	case statsCommandName:
		err = m.runStats(ctx, command)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("feeds command %s: %w", event.Command.Name, err)
	}

	return nil
}

// allowed reports whether the actor of event may run feed commands.
func (m *Module) allowed(ctx context.Context, event *subroll.Event) bool {
	if _, ok := m.admins[event.Actor.ID]; ok && event.Actor.ID != "" {
		return true
	}
	if event.Actor.IsSelf || event.Conversation.Type == subroll.ConversationTypePrivate {
		return true
	}
	if m.moderators == nil {
		return false
	}

	query, err := subroll.ModeratorQueryFromEvent(event)
	if err != nil {
		return false
	}
	allowed, err := m.moderators.IsModerator(ctx, query)
	if err != nil {
		m.log().WarnContext(ctx, "feeds moderator check failed",
			"actor", event.Actor.ID,
			"conversation", event.Conversation.ID,
			"error", err,
		)
		return false
	}

	return allowed
}

func (m *Module) runPrefix(ctx context.Context, command commandContext) error {
	args := command.event.Command.Args
	if len(args) == 0 {
		_, err := m.reply(ctx, command, fmt.Sprintf("Usage: `%sprefix <value>`", m.currentPrefix()))
		return err
	}

	value := args[0]
	if err := m.prefix.SetPrefix(value); err != nil {
		if errors.Is(err, subroll.ErrInvalidCommandPrefix) {
			_, replyErr := m.reply(ctx, command, fmt.Sprintf("That prefix can't be used: `%s`", value))
			return replyErr
		}
		return fmt.Errorf("set prefix: %w", err)
	}
	m.log().InfoContext(ctx, "command prefix changed",
		"prefix", value,
		"actor", command.event.Actor.ID,
	)

	_, err := m.reply(ctx, command, fmt.Sprintf("The new prefix is: `%s`", value))
	return err
}

func (m *Module) runAddSubs(ctx context.Context, command commandContext) error {
	names := NormalizeFeedNames(command.event.Command.Args)
	if len(names) == 0 {
		_, err := m.reply(ctx, command, fmt.Sprintf("Usage: `%saddsubs sub1 sub2 sub3`", m.currentPrefix()))
		return err
	}

	pending, err := m.reply(ctx, command, fmt.Sprintf(
		"Attempting to fetch images from the following subreddit(s): `%s`.",
		joinNames(names),
	))
	if err != nil {
		return err
	}

	result := m.registry.AddFeeds(ctx, command.key, names)
	m.log().InfoContext(ctx, "feeds added",
		"tenant", command.key.Tenant,
		"conversation", command.key.Channel,
		"accepted", result.Accepted,
		"rejected", result.Rejected,
	)

	if err := m.editReply(ctx, command, pending.ID, addResultText(result)); err != nil {
		return err
	}

	return m.postItem(ctx, command.key, command.target)
}

func addResultText(result AddResult) string {
	if len(result.Rejected) == 0 {
		return fmt.Sprintf(
			"Successfully fetched images from the following subreddit(s): `%s`.",
			joinNames(result.Accepted),
		)
	}

	text := fmt.Sprintf("The following subs do not exist, or are empty: `%s`.", joinNames(result.Rejected))
	if len(result.Accepted) > 0 {
		text += fmt.Sprintf(" The remaining have been added: `%s`", joinNames(result.Accepted))
	}

	return text
}

func (m *Module) runListSubs(ctx context.Context, command commandContext) error {
	if !m.registry.HasChannel(command.key) {
		_, err := m.reply(ctx, command, fmt.Sprintf(
			"This channel currently has no media sources. Use `%saddsubs sub1 sub2 sub3` to get started.",
			m.currentPrefix(),
		))
		return err
	}

	_, err := m.reply(ctx, command, currentFeedsText(m.registry.ListFeeds(command.key)))
	return err
}

func (m *Module) runRemoveSub(ctx context.Context, command commandContext) error {
	if !m.registry.HasChannel(command.key) {
		_, err := m.reply(ctx, command, "This channel doesn't have any subreddits.")
		return err
	}

	names := NormalizeFeedNames(command.event.Command.Args)
	if len(names) == 0 || !m.registry.RemoveFeed(command.key, names[0]) {
		_, err := m.reply(ctx, command, "That isn't listed as one of this channels subreddits.")
		return err
	}

	_, err := m.reply(ctx, command, currentFeedsText(m.registry.ListFeeds(command.key)))
	return err
}

func currentFeedsText(feeds []string) string {
	return fmt.Sprintf("Current subreddits: `%s`.", joinNames(feeds))
}

func (m *Module) runStats(ctx context.Context, command commandContext) error {
	if !m.registry.HasChannel(command.key) {
		_, err := m.reply(ctx, command, "There are no cached images in this channel")
		return err
	}

	_, err := m.reply(ctx, command, fmt.Sprintf(
		"There are a total of %d cached images to choose from in this channel.",
		m.registry.StatsCount(command.key),
	))
	return err
}

func (m *Module) currentPrefix() string {
	if m.prefix == nil {
		return subroll.DefaultCommandPrefix
	}

	return m.prefix.Prefix()
}

// reply sends template as a reply to the command message, rendering `spans` as code.
func (m *Module) reply(ctx context.Context, command commandContext, template string) (*subroll.OutboundMessage, error) {
	rendered := renderInlineCode(template)
	sent, err := m.sink.SendMessage(ctx, subroll.SendMessageRequest{
		Target:             command.target,
		Text:               rendered.Text,
		Entities:           rendered.Entities,
		ReplyToMessageID:   command.event.Message.ID,
		DisableLinkPreview: true,
	})
	if err != nil {
		return nil, fmt.Errorf("send reply: %w", err)
	}
	if sent == nil {
		return nil, fmt.Errorf("send reply: sink returned no message")
	}

	return sent, nil
}

func (m *Module) editReply(ctx context.Context, command commandContext, messageID string, template string) error {
	rendered := renderInlineCode(template)
	err := m.sink.EditMessage(ctx, subroll.EditMessageRequest{
		Target:             command.target,
		MessageID:          messageID,
		Text:               rendered.Text,
		Entities:           rendered.Entities,
		DisableLinkPreview: true,
	})
	if err != nil {
		return fmt.Errorf("edit reply %s: %w", messageID, err)
	}

	return nil
}
