package subroll

import (
	"fmt"
	"unicode/utf8"
)

// TextEntityType identifies one rich text formatting class.
type TextEntityType string

const (
	// TextEntityTypeMention marks an @username mention.
	TextEntityTypeMention TextEntityType = "mention"
	// TextEntityTypeHashtag marks a #hashtag.
	TextEntityTypeHashtag TextEntityType = "hashtag"
	// TextEntityTypeBotCommand marks a /command token.
	TextEntityTypeBotCommand TextEntityType = "bot_command"
	// TextEntityTypeURL marks a bare URL.
	TextEntityTypeURL TextEntityType = "url"
	// TextEntityTypeBold marks bold text.
	TextEntityTypeBold TextEntityType = "bold"
	// TextEntityTypeItalic marks italic text.
	TextEntityTypeItalic TextEntityType = "italic"
	// TextEntityTypeUnderline marks underlined text.
	TextEntityTypeUnderline TextEntityType = "underline"
	// TextEntityTypeStrike marks strikethrough text.
	TextEntityTypeStrike TextEntityType = "strike"
	// TextEntityTypeSpoiler marks hidden spoiler text.
	TextEntityTypeSpoiler TextEntityType = "spoiler"
	// TextEntityTypeCode marks inline monospace text.
	TextEntityTypeCode TextEntityType = "code"
	// TextEntityTypePre marks a preformatted block with optional language.
	TextEntityTypePre TextEntityType = "pre"
	// TextEntityTypeTextURL marks text linking to URL.
	TextEntityTypeTextURL TextEntityType = "text_url"
)

// TextEntity marks a rich text fragment.
//
// Offset and Length count Unicode code points of the owning text.
type TextEntity struct {
	// Type identifies the entity class.
	Type TextEntityType
	// Offset is the zero-based code point offset in the text.
	Offset int
	// Length is the code point span of the entity.
	Length int
	// URL is the link target for text_url entities.
	URL string
	// Language is the optional language hint for pre entities.
	Language string
}

// ValidateTextEntities checks entity ranges and type-specific fields against text.
func ValidateTextEntities(text string, entities []TextEntity) error {
	if len(entities) == 0 {
		return nil
	}

	runes := utf8.RuneCountInString(text)
	for index, entity := range entities {
		if entity.Type == "" {
			return fmt.Errorf("entity[%d]: missing type", index)
		}
		if entity.Offset < 0 {
			return fmt.Errorf("entity[%d]: negative offset %d", index, entity.Offset)
		}
		if entity.Length <= 0 {
			return fmt.Errorf("entity[%d]: non-positive length %d", index, entity.Length)
		}
		if entity.Offset+entity.Length > runes {
			return fmt.Errorf(
				"entity[%d]: range [%d,%d) exceeds text length %d",
				index,
				entity.Offset,
				entity.Offset+entity.Length,
				runes,
			)
		}
		if entity.Type == TextEntityTypeTextURL && entity.URL == "" {
			return fmt.Errorf("entity[%d]: text_url requires url", index)
		}
	}

	return nil
}
