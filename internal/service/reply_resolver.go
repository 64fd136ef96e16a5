package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mymmrac/telego"

	"tg-relay/internal/logger"
	"tg-relay/internal/models"
	"tg-relay/internal/storage"
)

// MappingLookup is the slice of the mapping repository the resolver
// needs.
type MappingLookup interface {
	GetByUserMessageOrLastEdit(userChatID int64, userMessageID int) (*models.MessageMapping, error)
}

// ReplyResolver turns the reply/quote/link context of an inbound
// submission into reply parameters targeting the broadcast channel.
// Strategies are evaluated in fixed priority order; each either
// resolves or passes. No strategy failing is not an error: the
// submission simply carries no reply context.
type ReplyResolver struct {
	api        BotAPI
	mappings   MappingLookup
	channelID  int64
	strategies []resolveStrategy
}

type resolveStrategy interface {
	name() string
	resolve(ctx context.Context, message *telego.Message) (*telego.ReplyParameters, bool)
}

// NewReplyResolver builds the resolver with its strategy cascade:
// external reference, direct reference, textual deep link.
func NewReplyResolver(api BotAPI, mappings MappingLookup, channelID int64) *ReplyResolver {
	r := &ReplyResolver{api: api, mappings: mappings, channelID: channelID}
	r.strategies = []resolveStrategy{
		&externalReplyStrategy{channelID: channelID},
		&directReplyStrategy{mappings: mappings},
		&linkStrategy{api: api},
	}
	return r
}

// Resolve returns reply parameters for the submission, or nil when no
// strategy applies.
func (r *ReplyResolver) Resolve(ctx context.Context, message *telego.Message) *telego.ReplyParameters {
	for _, strategy := range r.strategies {
		if params, ok := strategy.resolve(ctx, message); ok {
			logger.Infof("[RESOLVE] %s strategy resolved message %d -> chat=%d message=%d",
				strategy.name(), message.MessageID, params.ChatID.ID, params.MessageID)
			return params
		}
	}
	logger.Debugf("[RESOLVE] no reply context for message %d", message.MessageID)
	return nil
}

// buildReplyParameters attaches quote text when present.
func buildReplyParameters(chatID int64, messageID int, quoteText string) *telego.ReplyParameters {
	params := &telego.ReplyParameters{
		MessageID: messageID,
		ChatID:    telego.ChatID{ID: chatID},
	}
	if quoteText != "" {
		params.Quote = quoteText
		params.QuoteParseMode = telego.ModeHTML
	}
	return params
}

func quoteText(message *telego.Message) string {
	if message.Quote != nil {
		return message.Quote.Text
	}
	return ""
}

// externalReplyStrategy handles replies whose origin lies outside the
// sender's own conversation. Only references back into the broadcast
// channel are honored; anything else degrades silently to no context.
type externalReplyStrategy struct {
	channelID int64
}

func (s *externalReplyStrategy) name() string { return "external" }

func (s *externalReplyStrategy) resolve(_ context.Context, message *telego.Message) (*telego.ReplyParameters, bool) {
	external := message.ExternalReply
	if external == nil {
		return nil, false
	}
	var chatID int64
	if external.Chat != nil {
		chatID = external.Chat.ID
	} else if origin, ok := external.Origin.(*telego.MessageOriginChannel); ok {
		chatID = origin.Chat.ID
	}
	if chatID == 0 {
		logger.Debugf("[EXTERNAL] no origin chat for message %d, skipping reply context", message.MessageID)
		return nil, false
	}
	if chatID != s.channelID {
		logger.Debugf("[EXTERNAL] reply to foreign chat %d, skipping", chatID)
		return nil, false
	}
	return buildReplyParameters(chatID, external.MessageID, quoteText(message)), true
}

// directReplyStrategy handles replies within the sender's own chat by
// looking up the mapping, including matches through the last-edit id.
// When no mapping exists, forward-origin metadata on the replied-to
// message is used as a direct pointer into the channel.
type directReplyStrategy struct {
	mappings MappingLookup
}

func (s *directReplyStrategy) name() string { return "direct" }

func (s *directReplyStrategy) resolve(_ context.Context, message *telego.Message) (*telego.ReplyParameters, bool) {
	replyTo := message.ReplyToMessage
	if replyTo == nil {
		return nil, false
	}
	mapping, err := s.mappings.GetByUserMessageOrLastEdit(replyTo.Chat.ID, replyTo.MessageID)
	if err == nil {
		return buildReplyParameters(mapping.ChannelChatID, mapping.ChannelMessageID, quoteText(message)), true
	}
	if !errors.Is(err, storage.ErrNotFound) {
		logger.Warningf("[DIRECT] mapping lookup failed for message %d: %v", replyTo.MessageID, err)
		return nil, false
	}
	if origin, ok := replyTo.ForwardOrigin.(*telego.MessageOriginChannel); ok {
		return buildReplyParameters(origin.Chat.ID, origin.MessageID, ""), true
	}
	logger.Debugf("[DIRECT] no mapping and no forward origin for message %d", replyTo.MessageID)
	return nil, false
}

// linkStrategy handles submissions with no structural reply whose text
// carries a t.me deep link. Public-alias links resolve the alias to a
// numeric chat id through the platform.
type linkStrategy struct {
	api BotAPI
}

func (s *linkStrategy) name() string { return "link" }

func (s *linkStrategy) resolve(ctx context.Context, message *telego.Message) (*telego.ReplyParameters, bool) {
	if message.ReplyToMessage != nil || message.ExternalReply != nil {
		return nil, false
	}
	text := message.Text
	if text == "" {
		text = message.Caption
	}
	if text == "" {
		return nil, false
	}
	link := ExtractMessageLink(text)
	if link == "" {
		return nil, false
	}
	parsed, ok := ParseMessageLink(link)
	if !ok {
		return nil, false
	}
	chatID := parsed.ChatID
	if parsed.Username != "" {
		chat, err := s.api.GetChat(ctx, &telego.GetChatParams{
			ChatID: telego.ChatID{Username: fmt.Sprintf("@%s", parsed.Username)},
		})
		if err != nil {
			logger.Warningf("[LINK] failed to resolve alias %q: %v", parsed.Username, err)
			return nil, false
		}
		chatID = chat.ID
	}
	return buildReplyParameters(chatID, parsed.MessageID, ""), true
}
