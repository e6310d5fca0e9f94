package feeds

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"subroll/pkg/subroll"
)

// renderedMessage is an outbound body with its formatting.
type renderedMessage struct {
	Text       string
	Entities   []subroll.TextEntity
	PreviewURL string
}

// renderItem formats one feed item for posting.
//
// Video items are sent as permalink and video url lines. Other items show a
// bold title and a feed label linking to the permalink, with the link preview
// pinned to the item url.
func renderItem(item FeedItem) renderedMessage {
	if item.VideoURL != "" {
		return renderedMessage{
			Text:       item.Permalink + "\n" + item.VideoURL,
			PreviewURL: previewURL(item.VideoURL),
		}
	}

	title := strings.TrimSpace(item.Title)
	label := item.FeedLabel
	if label == "" {
		label = item.Permalink
	}

	var builder strings.Builder
	entities := make([]subroll.TextEntity, 0, 2)
	offset := 0
	if title != "" {
		builder.WriteString(title)
		builder.WriteString("\n")
		titleLength := utf8.RuneCountInString(title)
		entities = append(entities, subroll.TextEntity{
			Type:   subroll.TextEntityTypeBold,
			Offset: 0,
			Length: titleLength,
		})
		offset = titleLength + 1
	}
	builder.WriteString(label)
	if item.Permalink != "" {
		entities = append(entities, subroll.TextEntity{
			Type:   subroll.TextEntityTypeTextURL,
			Offset: offset,
			Length: utf8.RuneCountInString(label),
			URL:    item.Permalink,
		})
	}

	return renderedMessage{
		Text:       builder.String(),
		Entities:   entities,
		PreviewURL: previewURL(item.URL),
	}
}

// renderInlineCode turns `quoted` spans into code entities and drops the backticks.
//
// An unmatched backtick is kept as text. Empty spans produce no entity.
func renderInlineCode(template string) renderedMessage {
	var builder strings.Builder
	entities := make([]subroll.TextEntity, 0)
	offset := 0

	rest := template
	for {
		start := strings.IndexByte(rest, '`')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start+1:], '`')
		if end < 0 {
			break
		}
		end += start + 1

		before := rest[:start]
		builder.WriteString(before)
		offset += utf8.RuneCountInString(before)

		code := rest[start+1 : end]
		if code != "" {
			length := utf8.RuneCountInString(code)
			builder.WriteString(code)
			entities = append(entities, subroll.TextEntity{
				Type:   subroll.TextEntityTypeCode,
				Offset: offset,
				Length: length,
			})
			offset += length
		}
		rest = rest[end+1:]
	}
	builder.WriteString(rest)

	return renderedMessage{Text: builder.String(), Entities: entities}
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}

// previewURL returns raw when it can be pinned as a link preview.
func previewURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return ""
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return ""
	}

	return raw
}
