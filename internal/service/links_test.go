package service

import "testing"

func TestParseMessageLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		link string
		want *MessageLink
		ok   bool
	}{
		{
			name: "private channel link",
			link: "https://t.me/c/1234567890/42",
			want: &MessageLink{ChatID: -1001234567890, MessageID: 42},
			ok:   true,
		},
		{
			name: "private link without scheme variant",
			link: "http://t.me/c/99/7",
			want: &MessageLink{ChatID: -1000000000099, MessageID: 7},
			ok:   true,
		},
		{
			name: "public alias link",
			link: "https://t.me/somechannel/123",
			want: &MessageLink{Username: "somechannel", MessageID: 123},
			ok:   true,
		},
		{
			name: "not a message link",
			link: "https://example.com/c/123/4",
			ok:   false,
		},
		{
			name: "bare alias without message id",
			link: "https://t.me/somechannel",
			ok:   false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseMessageLink(tt.link)
			if ok != tt.ok {
				t.Fatalf("ParseMessageLink(%q) ok = %v, want %v", tt.link, ok, tt.ok)
			}
			if !ok {
				return
			}
			if *got != *tt.want {
				t.Errorf("ParseMessageLink(%q) = %+v, want %+v", tt.link, got, tt.want)
			}
		})
	}
}

func TestExtractMessageLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "link embedded in text",
			text: "see https://t.me/c/123/45 for context",
			want: "https://t.me/c/123/45",
		},
		{
			name: "public link",
			text: "reply to https://t.me/mychannel/9",
			want: "https://t.me/mychannel/9",
		},
		{
			name: "no link",
			text: "just some text",
			want: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractMessageLink(tt.text); got != tt.want {
				t.Errorf("ExtractMessageLink(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestBuildMessageLink(t *testing.T) {
	t.Parallel()

	if got := BuildMessageLink(-1001234567890, 42); got != "https://t.me/c/1234567890/42" {
		t.Errorf("BuildMessageLink = %q", got)
	}
	if got := BuildMessageLink(-987, 1); got != "https://t.me/c/987/1" {
		t.Errorf("BuildMessageLink fallback = %q", got)
	}
}

func TestLinkRoundTrip(t *testing.T) {
	t.Parallel()

	link := BuildMessageLink(-1004455667788, 17)
	parsed, ok := ParseMessageLink(link)
	if !ok {
		t.Fatalf("round trip failed to parse %q", link)
	}
	if parsed.ChatID != -1004455667788 || parsed.MessageID != 17 {
		t.Errorf("round trip = %+v", parsed)
	}
}

func TestStripMessageLink(t *testing.T) {
	t.Parallel()

	got := StripMessageLink("see https://t.me/c/123/45 for context", "https://t.me/c/123/45")
	if got != "see for context" {
		t.Errorf("StripMessageLink = %q", got)
	}

	got = StripMessageLink("https://t.me/c/123/45", "https://t.me/c/123/45")
	if got != "" {
		t.Errorf("StripMessageLink link-only = %q, want empty", got)
	}
}
