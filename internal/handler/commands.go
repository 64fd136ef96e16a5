package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-relay/internal/logger"
	"tg-relay/internal/storage"
)

const welcomeText = `👋 Send me anything and I will post it to the channel anonymously.

Supported: text, photos, videos, GIFs, documents, polls, stickers and albums.

• Reply to a channel message here (or paste its t.me link) to post a threaded reply.
• After posting you get buttons to edit or delete your post.
• Your identity is never attached to the post.`

// handleCommand processes bot commands in private chats. Returns true
// when the message was a command, whether or not it succeeded.
func (h *Handlers) handleCommand(ctx *th.Context, message telego.Message) (bool, error) {
	if message.From == nil || message.Chat.Type != telego.ChatTypePrivate {
		return false, nil
	}
	if !strings.HasPrefix(message.Text, "/") {
		return false, nil
	}

	fields := strings.Fields(message.Text)
	command := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(command, "@"); at != -1 {
		command = command[:at]
	}

	switch command {
	case "start", "help":
		return true, h.replyText(ctx, message, welcomeText)
	case "ban":
		return true, h.handleBanCommand(ctx, message, fields[1:], true)
	case "unban":
		return true, h.handleBanCommand(ctx, message, fields[1:], false)
	default:
		return true, h.replyText(ctx, message, "Unknown command. Send /help for usage.")
	}
}

// handleBanCommand bans or unbans a sender by Telegram id. Admin only.
func (h *Handlers) handleBanCommand(ctx *th.Context, message telego.Message, args []string, ban bool) error {
	caller, err := h.senders.GetByTelegramID(message.From.ID)
	if err != nil || !caller.IsAdmin {
		return h.replyText(ctx, message, "You don't have permission to do that.")
	}

	if len(args) != 1 {
		return h.replyText(ctx, message, fmt.Sprintf("Usage: /%s <telegram user id>", commandName(ban)))
	}
	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return h.replyText(ctx, message, "That doesn't look like a Telegram user id.")
	}

	if err := h.senders.SetBanned(targetID, ban); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return h.replyText(ctx, message, "No such sender.")
		}
		logger.Errorf("Updating ban state for %d: %v", targetID, err)
		return h.replyText(ctx, message, "❌ Could not update the sender.")
	}

	logger.Infof("Admin %d set banned=%v for sender %d", message.From.ID, ban, targetID)
	if ban {
		return h.replyText(ctx, message, fmt.Sprintf("🚫 Sender %d banned.", targetID))
	}
	return h.replyText(ctx, message, fmt.Sprintf("✅ Sender %d unbanned.", targetID))
}

func commandName(ban bool) string {
	if ban {
		return "ban"
	}
	return "unban"
}

func (h *Handlers) replyText(ctx *th.Context, message telego.Message, text string) error {
	_, err := h.bot.SendMessage(ctx.Context(), &telego.SendMessageParams{
		ChatID:          telego.ChatID{ID: message.Chat.ID},
		Text:            text,
		ReplyParameters: &telego.ReplyParameters{MessageID: message.MessageID},
	})
	return err
}
