package handler

import (
	"errors"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-relay/internal/logger"
	"tg-relay/internal/service"
)

// handleIncomingMessage processes new messages in chats
func (h *Handlers) handleIncomingMessage(ctx *th.Context, message telego.Message) error {
	// Skip if no sender information or sender is a bot
	if message.From == nil || message.From.IsBot {
		return nil
	}

	// Everything except private chats is out of scope; the bot posts
	// to the channel itself, it does not read it.
	if message.Chat.Type != telego.ChatTypePrivate {
		return nil
	}

	// An armed edit session consumes the sender's next message.
	handled, err := h.editor.ProcessEdit(ctx.Context(), &message)
	if err != nil {
		logger.Warningf("Edit session for sender %d: %v", message.From.ID, err)
	}
	if handled {
		return nil
	}

	err = h.forwarder.Forward(ctx.Context(), &message)
	if err == nil {
		return nil
	}

	h.notifySubmitError(ctx, message, err)
	return nil
}

// notifySubmitError maps pipeline errors onto sender-facing notices.
// Errors are terminal for the submission; nothing is retried here.
func (h *Handlers) notifySubmitError(ctx *th.Context, message telego.Message, err error) {
	var notice string

	var rateErr *service.RateLimitExceededError
	var validationErr *service.ValidationError
	var postErr *service.PostError
	switch {
	case errors.As(err, &rateErr):
		notice = rateErr.UserMessage()
	case errors.Is(err, service.ErrSenderBanned):
		notice = "🚫 You are not allowed to post to this channel."
	case errors.As(err, &validationErr):
		notice = "Unsupported content. You can send text, photos, videos, GIFs, documents, polls and stickers."
	case errors.As(err, &postErr):
		logger.Errorf("Posting message %d failed: %v", message.MessageID, err)
		notice = "❌ Could not post your message. Please try again later."
	default:
		logger.Errorf("Submission from %d failed: %v", message.From.ID, err)
		notice = "❌ Something went wrong. Please try again later."
	}

	_, sendErr := h.bot.SendMessage(ctx.Context(), &telego.SendMessageParams{
		ChatID:          telego.ChatID{ID: message.Chat.ID},
		Text:            notice,
		ReplyParameters: &telego.ReplyParameters{MessageID: message.MessageID},
	})
	if sendErr != nil {
		logger.Warningf("Notifying chat %d: %v", message.Chat.ID, sendErr)
	}
}
