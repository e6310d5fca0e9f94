package subroll

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseCommandCandidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		text          string
		prefix        string
		wantMatched   bool
		wantErrSubstr string
		wantName      string
		wantMention   string
		wantTokens    []string
	}{
		{
			name:        "default prefix with value tokens",
			text:        " ?AddSubs aww EarthPorn ",
			prefix:      "?",
			wantMatched: true,
			wantName:    "addsubs",
			wantTokens:  []string{"aww", "EarthPorn"},
		},
		{
			name:        "command with mention suffix",
			text:        "/ping@SubrollBot",
			prefix:      "/",
			wantMatched: true,
			wantName:    "ping",
			wantMention: "SubrollBot",
		},
		{
			name:        "multi character prefix",
			text:        "!!stats",
			prefix:      "!!",
			wantMatched: true,
			wantName:    "stats",
		},
		{
			name:        "other prefix is ignored",
			text:        "/ping",
			prefix:      "?",
			wantMatched: false,
		},
		{
			name:        "plain text is ignored",
			text:        "hello",
			prefix:      "?",
			wantMatched: false,
		},
		{
			name:        "empty prefix never matches",
			text:        "ping",
			prefix:      "",
			wantMatched: false,
		},
		{
			name:          "missing command name",
			text:          "? ping",
			prefix:        "?",
			wantMatched:   true,
			wantErrSubstr: "missing command name",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			candidate, matched, err := ParseCommandCandidate(testCase.text, testCase.prefix)
			if matched != testCase.wantMatched {
				t.Fatalf("matched = %v, want %v", matched, testCase.wantMatched)
			}
			if testCase.wantErrSubstr == "" && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if testCase.wantErrSubstr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", testCase.wantErrSubstr)
				}
				if !strings.Contains(err.Error(), testCase.wantErrSubstr) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstr)
				}
				return
			}
			if !matched {
				return
			}

			if candidate.Prefix != testCase.prefix {
				t.Fatalf("prefix = %q, want %q", candidate.Prefix, testCase.prefix)
			}
			if candidate.Name != testCase.wantName {
				t.Fatalf("name = %q, want %q", candidate.Name, testCase.wantName)
			}
			if candidate.Mention != testCase.wantMention {
				t.Fatalf("mention = %q, want %q", candidate.Mention, testCase.wantMention)
			}
			if strings.Join(candidate.Tokens, ",") != strings.Join(testCase.wantTokens, ",") {
				t.Fatalf("tokens = %v, want %v", candidate.Tokens, testCase.wantTokens)
			}
		})
	}
}

func TestBindCommand(t *testing.T) {
	t.Parallel()

	sourceEvent := &Event{
		ID:         "evt-source",
		Kind:       EventKindMessageCreated,
		OccurredAt: time.Unix(10, 0).UTC(),
		Conversation: Conversation{
			ID:   "chat-1",
			Type: ConversationTypeGroup,
		},
		Message: &Message{ID: "msg-1", Text: "?addsubs aww pics"},
	}

	candidate, matched, err := ParseCommandCandidate(sourceEvent.Message.Text, "?")
	if err != nil || !matched {
		t.Fatalf("parse candidate: matched=%v err=%v", matched, err)
	}

	invocation, err := BindCommand(candidate, CommandSpec{Name: "AddSubs"}, sourceEvent)
	if err != nil {
		t.Fatalf("BindCommand failed: %v", err)
	}
	if invocation.Name != "addsubs" {
		t.Fatalf("name = %q, want addsubs", invocation.Name)
	}
	if strings.Join(invocation.Args, ",") != "aww,pics" {
		t.Fatalf("args = %v, want [aww pics]", invocation.Args)
	}
	if invocation.Value != "aww pics" {
		t.Fatalf("value = %q, want %q", invocation.Value, "aww pics")
	}
	if invocation.SourceEventID != "evt-source" || invocation.SourceEventKind != EventKindMessageCreated {
		t.Fatalf("source = %s/%s, want evt-source/%s", invocation.SourceEventID, invocation.SourceEventKind, EventKindMessageCreated)
	}

	if _, err := BindCommand(candidate, CommandSpec{Name: "stats"}, sourceEvent); err == nil {
		t.Fatal("expected name mismatch error")
	}
	if _, err := BindCommand(candidate, CommandSpec{Name: "addsubs"}, nil); err == nil {
		t.Fatal("expected nil source event error")
	}
}

func TestValidateCommandPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "default", value: DefaultCommandPrefix},
		{name: "multi character", value: "sr!"},
		{name: "empty", value: "", wantErr: true},
		{name: "whitespace", value: "a b", wantErr: true},
		{name: "too long", value: "123456789", wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateCommandPrefix(testCase.value)
			if testCase.wantErr {
				if !errors.Is(err, ErrInvalidCommandPrefix) {
					t.Fatalf("error = %v, want ErrInvalidCommandPrefix", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
