package telegram

import (
	"fmt"
	"slices"
	"unicode/utf16"

	"subroll/pkg/subroll"

	"github.com/gotd/td/tg"
)

// Telegram counts entity offsets in UTF-16 code units while subroll counts
// code points. utf16Boundaries bridges the two: element i is the UTF-16
// offset of code point i, and the final element is the UTF-16 length.
func utf16Boundaries(text string) []int {
	bounds := make([]int, 1, len(text)+1)
	for _, r := range text {
		bounds = append(bounds, bounds[len(bounds)-1]+utf16.RuneLen(r))
	}

	return bounds
}

// mapTextEntities converts inbound entities into code point ranges. Entities
// that split a surrogate pair or have no local type are dropped.
func mapTextEntities(text string, entities []tg.MessageEntityClass) []subroll.TextEntity {
	if len(entities) == 0 {
		return nil
	}

	bounds := utf16Boundaries(text)
	var out []subroll.TextEntity
	for _, entity := range entities {
		mapped, ok := inboundEntity(entity)
		if !ok {
			continue
		}
		start, startOK := slices.BinarySearch(bounds, entity.GetOffset())
		end, endOK := slices.BinarySearch(bounds, entity.GetOffset()+entity.GetLength())
		if !startOK || !endOK || end <= start {
			continue
		}
		mapped.Offset, mapped.Length = start, end-start
		out = append(out, mapped)
	}

	return out
}

func inboundEntity(entity tg.MessageEntityClass) (subroll.TextEntity, bool) {
	var kind subroll.TextEntityType
	mapped := subroll.TextEntity{}
	switch typed := entity.(type) {
	case *tg.MessageEntityMention:
		kind = subroll.TextEntityTypeMention
	case *tg.MessageEntityHashtag:
		kind = subroll.TextEntityTypeHashtag
	case *tg.MessageEntityBotCommand:
		kind = subroll.TextEntityTypeBotCommand
	case *tg.MessageEntityURL:
		kind = subroll.TextEntityTypeURL
	case *tg.MessageEntityBold:
		kind = subroll.TextEntityTypeBold
	case *tg.MessageEntityItalic:
		kind = subroll.TextEntityTypeItalic
	case *tg.MessageEntityUnderline:
		kind = subroll.TextEntityTypeUnderline
	case *tg.MessageEntityStrike:
		kind = subroll.TextEntityTypeStrike
	case *tg.MessageEntitySpoiler:
		kind = subroll.TextEntityTypeSpoiler
	case *tg.MessageEntityCode:
		kind = subroll.TextEntityTypeCode
	case *tg.MessageEntityPre:
		kind, mapped.Language = subroll.TextEntityTypePre, typed.Language
	case *tg.MessageEntityTextURL:
		if typed.URL == "" {
			return subroll.TextEntity{}, false
		}
		kind, mapped.URL = subroll.TextEntityTypeTextURL, typed.URL
	default:
		return subroll.TextEntity{}, false
	}
	mapped.Type = kind

	return mapped, true
}

type outboundEntityBuilder func(entity subroll.TextEntity, offset, length int) tg.MessageEntityClass

var outboundEntityBuilders = map[subroll.TextEntityType]outboundEntityBuilder{
	subroll.TextEntityTypeMention: func(_ subroll.TextEntity, offset, length int) tg.MessageEntityClass {
		return &tg.MessageEntityMention{Offset: offset, Length: length}
	},
	subroll.TextEntityTypeHashtag: func(_ subroll.TextEntity, offset, length int) tg.MessageEntityClass {
		return &tg.MessageEntityHashtag{Offset: offset, Length: length}
	},
	subroll.TextEntityTypeBotCommand: func(_ subroll.TextEntity, offset, length int) tg.MessageEntityClass {
		return &tg.MessageEntityBotCommand{Offset: offset, Length: length}
	},
	subroll.TextEntityTypeURL: func(_ subroll.TextEntity, offset, length int) tg.MessageEntityClass {
		return &tg.MessageEntityURL{Offset: offset, Length: length}
	},
	subroll.TextEntityTypeBold: func(_ subroll.TextEntity, offset, length int) tg.MessageEntityClass {
		return &tg.MessageEntityBold{Offset: offset, Length: length}
	},
	subroll.TextEntityTypeItalic: func(_ subroll.TextEntity, offset, length int) tg.MessageEntityClass {
		return &tg.MessageEntityItalic{Offset: offset, Length: length}
	},
	subroll.TextEntityTypeUnderline: func(_ subroll.TextEntity, offset, length int) tg.MessageEntityClass {
		return &tg.MessageEntityUnderline{Offset: offset, Length: length}
	},
	subroll.TextEntityTypeStrike: func(_ subroll.TextEntity, offset, length int) tg.MessageEntityClass {
		return &tg.MessageEntityStrike{Offset: offset, Length: length}
	},
	subroll.TextEntityTypeSpoiler: func(_ subroll.TextEntity, offset, length int) tg.MessageEntityClass {
		return &tg.MessageEntitySpoiler{Offset: offset, Length: length}
	},
	subroll.TextEntityTypeCode: func(_ subroll.TextEntity, offset, length int) tg.MessageEntityClass {
		return &tg.MessageEntityCode{Offset: offset, Length: length}
	},
	subroll.TextEntityTypePre: func(entity subroll.TextEntity, offset, length int) tg.MessageEntityClass {
		return &tg.MessageEntityPre{Offset: offset, Length: length, Language: entity.Language}
	},
	subroll.TextEntityTypeTextURL: func(entity subroll.TextEntity, offset, length int) tg.MessageEntityClass {
		return &tg.MessageEntityTextURL{Offset: offset, Length: length, URL: entity.URL}
	},
}

// mapOutboundTextEntities converts code point ranges back into UTF-16 ranges.
func mapOutboundTextEntities(text string, entities []subroll.TextEntity) ([]tg.MessageEntityClass, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	bounds := utf16Boundaries(text)
	runes := len(bounds) - 1
	converted := make([]tg.MessageEntityClass, 0, len(entities))
	for index, entity := range entities {
		start, end := entity.Offset, entity.Offset+entity.Length
		if start < 0 || end < start || end > runes {
			return nil, fmt.Errorf("entity[%d] invalid range [%d,%d) for text runes %d", index, start, end, runes)
		}
		build, ok := outboundEntityBuilders[entity.Type]
		if !ok {
			return nil, fmt.Errorf(
				"entity[%d]: %w: unsupported text entity type %q",
				index,
				subroll.ErrOutboundUnsupported,
				entity.Type,
			)
		}
		converted = append(converted, build(entity, bounds[start], bounds[end]-bounds[start]))
	}

	return converted, nil
}
