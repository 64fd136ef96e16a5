// Package markup renders Telegram entity spans into well-nested HTML.
package markup

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/mymmrac/telego"
)

// EntitiesToHTML converts offset/length entity spans into HTML. Spans
// may overlap or nest arbitrarily; the output is always balanced
// markup, at the cost of closing and re-emitting tags around improper
// overlaps. Entity offsets are UTF-16 code units per the Bot API, so
// the text is sliced in UTF-16 space. Literal text is HTML-escaped.
func EntitiesToHTML(text string, entities []telego.MessageEntity) string {
	if text == "" {
		return ""
	}
	units := utf16.Encode([]rune(text))
	spans := validSpans(entities, len(units))
	if len(spans) == 0 {
		return html.EscapeString(text)
	}

	type event struct {
		pos    int
		open   bool
		spanID int
	}
	events := make([]event, 0, 2*len(spans))
	for i, entity := range spans {
		events = append(events, event{pos: entity.Offset, open: true, spanID: i})
		events = append(events, event{pos: entity.Offset + entity.Length, open: false, spanID: i})
	}
	// Position ascending; closes before opens at equal positions so an
	// adjacent span never nests inside the one ending where it starts.
	// Among closes at the same position the later-opened (innermost)
	// span closes first, so spans sharing an end offset stay properly
	// nested instead of taking the close-and-reopen path.
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].pos != events[j].pos {
			return events[i].pos < events[j].pos
		}
		if events[i].open != events[j].open {
			return !events[i].open
		}
		if !events[i].open {
			oi, oj := spans[events[i].spanID].Offset, spans[events[j].spanID].Offset
			if oi != oj {
				return oi > oj
			}
			return events[i].spanID > events[j].spanID
		}
		return false
	})

	var out strings.Builder
	var stack []int
	lastPos := 0
	for _, ev := range events {
		if ev.pos > lastPos {
			out.WriteString(html.EscapeString(string(utf16.Decode(units[lastPos:ev.pos]))))
		}
		lastPos = ev.pos
		if ev.open {
			out.WriteString(openingTag(spans[ev.spanID]))
			stack = append(stack, ev.spanID)
			continue
		}
		// Close the target span. Anything opened after it is closed
		// first and reopened afterwards so the output stays nested.
		idx := -1
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i] == ev.spanID {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		for i := len(stack) - 1; i > idx; i-- {
			out.WriteString(closingTag(spans[stack[i]]))
		}
		out.WriteString(closingTag(spans[ev.spanID]))
		reopen := append([]int(nil), stack[idx+1:]...)
		stack = append(stack[:idx], reopen...)
		for _, id := range reopen {
			out.WriteString(openingTag(spans[id]))
		}
	}
	if lastPos < len(units) {
		out.WriteString(html.EscapeString(string(utf16.Decode(units[lastPos:]))))
	}
	return out.String()
}

// validSpans drops spans that are empty or run past the end of text.
func validSpans(entities []telego.MessageEntity, textLen int) []telego.MessageEntity {
	var spans []telego.MessageEntity
	for _, entity := range entities {
		if entity.Length <= 0 || entity.Offset < 0 || entity.Offset+entity.Length > textLen {
			continue
		}
		spans = append(spans, entity)
	}
	return spans
}

func openingTag(entity telego.MessageEntity) string {
	switch entity.Type {
	case telego.EntityTypeBold:
		return "<b>"
	case telego.EntityTypeItalic:
		return "<i>"
	case telego.EntityTypeUnderline:
		return "<u>"
	case telego.EntityTypeStrikethrough:
		return "<s>"
	case telego.EntityTypeSpoiler:
		return "<span class=\"tg-spoiler\">"
	case telego.EntityTypeCode:
		return "<code>"
	case telego.EntityTypePre:
		if entity.Language == "" {
			return "<pre><code>"
		}
		return fmt.Sprintf("<pre><code class=\"language-%s\">", entity.Language)
	case telego.EntityTypeTextLink:
		return fmt.Sprintf("<a href=\"%s\">", html.EscapeString(entity.URL))
	case telego.EntityTypeTextMention:
		var userID int64
		if entity.User != nil {
			userID = entity.User.ID
		}
		return fmt.Sprintf("<a href=\"tg://user?id=%d\">", userID)
	case telego.EntityTypeBlockquote:
		return "<blockquote>"
	default:
		return ""
	}
}

func closingTag(entity telego.MessageEntity) string {
	switch entity.Type {
	case telego.EntityTypeBold:
		return "</b>"
	case telego.EntityTypeItalic:
		return "</i>"
	case telego.EntityTypeUnderline:
		return "</u>"
	case telego.EntityTypeStrikethrough:
		return "</s>"
	case telego.EntityTypeSpoiler:
		return "</span>"
	case telego.EntityTypeCode:
		return "</code>"
	case telego.EntityTypePre:
		return "</code></pre>"
	case telego.EntityTypeTextLink, telego.EntityTypeTextMention:
		return "</a>"
	case telego.EntityTypeBlockquote:
		return "</blockquote>"
	default:
		return ""
	}
}

// ValidEntities keeps only spans that fit within text, measured in
// UTF-16 units. Used when forwarding entities through unchanged.
func ValidEntities(text string, entities []telego.MessageEntity) []telego.MessageEntity {
	if len(entities) == 0 {
		return nil
	}
	units := len(utf16.Encode([]rune(text)))
	spans := validSpans(entities, units)
	if len(spans) == 0 {
		return nil
	}
	return spans
}
