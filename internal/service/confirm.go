package service

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"

	"tg-relay/internal/logger"
)

// sendConfirmation notifies the sender that their submission was
// posted. It tries, in order: a cross-chat reply quoting the channel
// post, a reply to the sender's original message, and finally a plain
// message. Failures degrade silently to the next form because the
// channel post already succeeded.
func sendConfirmation(ctx context.Context, api BotAPI, userChatID int64, userMessageID int, channelID int64, channelMessageID int, keyboard *telego.InlineKeyboardMarkup) {
	link := BuildMessageLink(channelID, channelMessageID)
	text := fmt.Sprintf("✅ <a href=\"%s\">Posted to the channel</a>", link)

	_, err := api.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: userChatID},
		Text:      text,
		ParseMode: telego.ModeHTML,
		ReplyParameters: &telego.ReplyParameters{
			MessageID: channelMessageID,
			ChatID:    telego.ChatID{ID: channelID},
		},
		ReplyMarkup:        keyboard,
		LinkPreviewOptions: &telego.LinkPreviewOptions{IsDisabled: true},
	})
	if err == nil {
		return
	}
	logger.Debugf("[CONFIRM] cross-chat reply failed for chat %d: %v", userChatID, err)

	_, err = api.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: userChatID},
		Text:      text,
		ParseMode: telego.ModeHTML,
		ReplyParameters: &telego.ReplyParameters{
			MessageID: userMessageID,
		},
		ReplyMarkup:        keyboard,
		LinkPreviewOptions: &telego.LinkPreviewOptions{IsDisabled: true},
	})
	if err == nil {
		return
	}
	logger.Debugf("[CONFIRM] reply to original failed for chat %d: %v", userChatID, err)

	_, err = api.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:             telego.ChatID{ID: userChatID},
		Text:               text,
		ParseMode:          telego.ModeHTML,
		ReplyMarkup:        keyboard,
		LinkPreviewOptions: &telego.LinkPreviewOptions{IsDisabled: true},
	})
	if err != nil {
		logger.Warningf("[CONFIRM] could not confirm to chat %d: %v", userChatID, err)
	}
}
