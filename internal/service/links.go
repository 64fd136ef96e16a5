package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Telegram deep links come in two shapes: private-channel links
// (t.me/c/<internal id>/<message>) that encode the chat id directly,
// and public-alias links (t.me/<username>/<message>) that need the
// alias resolved via the platform.
var (
	privateLinkPattern = regexp.MustCompile(`https?://t\.me/c/(\d+)/(\d+)`)
	publicLinkPattern  = regexp.MustCompile(`https?://t\.me/([a-zA-Z0-9_]+)/(\d+)`)
)

// channelIDOffset is the fixed offset Telegram applies between a
// channel's internal id (as it appears in t.me/c/ links) and its
// API chat id.
const channelIDOffset = -1000000000000

// MessageLink is a parsed t.me deep link pointing at one message.
// Either ChatID is set (private link) or Username (public alias link).
type MessageLink struct {
	ChatID    int64
	Username  string
	MessageID int
}

// ExtractMessageLink finds the first t.me message link in text, or ""
// when none is present.
func ExtractMessageLink(text string) string {
	if match := privateLinkPattern.FindString(text); match != "" {
		return match
	}
	return publicLinkPattern.FindString(text)
}

// ParseMessageLink parses a t.me message link.
func ParseMessageLink(link string) (*MessageLink, bool) {
	if m := privateLinkPattern.FindStringSubmatch(link); m != nil {
		internalID, err1 := strconv.ParseInt(m[1], 10, 64)
		messageID, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			return nil, false
		}
		return &MessageLink{
			ChatID:    channelIDOffset - internalID,
			MessageID: messageID,
		}, true
	}
	if m := publicLinkPattern.FindStringSubmatch(link); m != nil {
		messageID, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, false
		}
		return &MessageLink{Username: m[1], MessageID: messageID}, true
	}
	return nil, false
}

// StripMessageLink removes the first t.me message link from text and
// collapses the whitespace it leaves behind. Used when the link was
// consumed as reply addressing and should not appear in the post.
func StripMessageLink(text, link string) string {
	stripped := strings.Replace(text, link, "", 1)
	stripped = strings.ReplaceAll(stripped, "  ", " ")
	return strings.TrimSpace(stripped)
}

// BuildMessageLink renders the t.me link for a channel message.
func BuildMessageLink(chatID int64, messageID int) string {
	s := strconv.FormatInt(chatID, 10)
	if strings.HasPrefix(s, "-100") {
		return fmt.Sprintf("https://t.me/c/%s/%d", s[4:], messageID)
	}
	if chatID < 0 {
		chatID = -chatID
	}
	return fmt.Sprintf("https://t.me/c/%d/%d", chatID, messageID)
}
