package markup

import (
	"testing"

	"github.com/mymmrac/telego"
)

func entity(entityType string, offset, length int) telego.MessageEntity {
	return telego.MessageEntity{Type: entityType, Offset: offset, Length: length}
}

func TestEntitiesToHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		entities []telego.MessageEntity
		want     string
	}{
		{
			name: "no entities escapes text",
			text: "a <b> & c",
			want: "a &lt;b&gt; &amp; c",
		},
		{
			name:     "single bold",
			text:     "hello world",
			entities: []telego.MessageEntity{entity(telego.EntityTypeBold, 0, 5)},
			want:     "<b>hello</b> world",
		},
		{
			name: "nested italic inside bold",
			text: "hello world",
			entities: []telego.MessageEntity{
				entity(telego.EntityTypeBold, 0, 11),
				entity(telego.EntityTypeItalic, 6, 5),
			},
			want: "<b>hello <i>world</i></b>",
		},
		{
			name: "identical ranges close in reverse open order",
			text: "same",
			entities: []telego.MessageEntity{
				entity(telego.EntityTypeBold, 0, 4),
				entity(telego.EntityTypeItalic, 0, 4),
			},
			want: "<b><i>same</i></b>",
		},
		{
			name: "improper overlap closes and reopens",
			text: "abcd",
			entities: []telego.MessageEntity{
				entity(telego.EntityTypeBold, 0, 3),
				entity(telego.EntityTypeItalic, 1, 3),
			},
			want: "<b>a<i>bc</i></b><i>d</i>",
		},
		{
			name: "adjacent spans do not nest",
			text: "abcd",
			entities: []telego.MessageEntity{
				entity(telego.EntityTypeBold, 0, 2),
				entity(telego.EntityTypeItalic, 2, 2),
			},
			want: "<b>ab</b><i>cd</i>",
		},
		{
			name: "utf16 offsets with surrogate pairs",
			text: "🎉 party",
			entities: []telego.MessageEntity{
				// The emoji occupies two UTF-16 units.
				entity(telego.EntityTypeBold, 3, 5),
			},
			want: "🎉 <b>party</b>",
		},
		{
			name: "escaping inside spans",
			text: "a<b>c",
			entities: []telego.MessageEntity{
				entity(telego.EntityTypeCode, 1, 3),
			},
			want: "a<code>&lt;b&gt;</code>c",
		},
		{
			name: "text link",
			text: "click here",
			entities: []telego.MessageEntity{
				{Type: telego.EntityTypeTextLink, Offset: 6, Length: 4, URL: "https://example.com?a=1&b=2"},
			},
			want: "click <a href=\"https://example.com?a=1&amp;b=2\">here</a>",
		},
		{
			name: "pre with language",
			text: "x := 1",
			entities: []telego.MessageEntity{
				{Type: telego.EntityTypePre, Offset: 0, Length: 6, Language: "go"},
			},
			want: "<pre><code class=\"language-go\">x := 1</code></pre>",
		},
		{
			name: "spoiler and blockquote",
			text: "secret quote",
			entities: []telego.MessageEntity{
				entity(telego.EntityTypeSpoiler, 0, 6),
				entity(telego.EntityTypeBlockquote, 7, 5),
			},
			want: "<span class=\"tg-spoiler\">secret</span> <blockquote>quote</blockquote>",
		},
		{
			name: "out of range entity dropped",
			text: "short",
			entities: []telego.MessageEntity{
				entity(telego.EntityTypeBold, 3, 10),
			},
			want: "short",
		},
		{
			name: "zero length entity dropped",
			text: "text",
			entities: []telego.MessageEntity{
				entity(telego.EntityTypeBold, 0, 0),
			},
			want: "text",
		},
		{
			name: "unknown entity type passes text through",
			text: "@mention",
			entities: []telego.MessageEntity{
				entity(telego.EntityTypeMention, 0, 8),
			},
			want: "@mention",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := EntitiesToHTML(tt.text, tt.entities)
			if got != tt.want {
				t.Errorf("EntitiesToHTML(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestEntitiesToHTMLEmptyText(t *testing.T) {
	t.Parallel()
	if got := EntitiesToHTML("", nil); got != "" {
		t.Errorf("EntitiesToHTML(\"\") = %q, want empty", got)
	}
}

func TestValidEntities(t *testing.T) {
	t.Parallel()

	entities := []telego.MessageEntity{
		entity(telego.EntityTypeBold, 0, 4),
		entity(telego.EntityTypeItalic, 2, 10),
		entity(telego.EntityTypeCode, 0, 0),
	}
	got := ValidEntities("text", entities)
	if len(got) != 1 || got[0].Type != telego.EntityTypeBold {
		t.Errorf("ValidEntities kept %v, want only the bold span", got)
	}

	if got := ValidEntities("text", nil); got != nil {
		t.Errorf("ValidEntities with no entities = %v, want nil", got)
	}
}
