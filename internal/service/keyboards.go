package service

import (
	"fmt"

	"github.com/mymmrac/telego"
)

// MessageActionsKeyboard builds the inline keyboard attached to the
// confirmation message, with buttons for whichever post-send actions
// are enabled. The edit callback encodes whether the target carries
// text or a caption. Returns nil when no action applies.
func MessageActionsKeyboard(channelMessageID int, canEdit, isCaption, enableEdit, enableDelete bool) *telego.InlineKeyboardMarkup {
	var row []telego.InlineKeyboardButton
	if enableEdit && canEdit {
		target := "t"
		if isCaption {
			target = "c"
		}
		row = append(row, telego.InlineKeyboardButton{
			Text:         "✏️ Edit",
			CallbackData: fmt.Sprintf("edit:%d:%s", channelMessageID, target),
		})
	}
	if enableDelete {
		row = append(row, telego.InlineKeyboardButton{
			Text:         "🗑 Delete",
			CallbackData: fmt.Sprintf("delete:%d", channelMessageID),
		})
	}
	if len(row) == 0 {
		return nil
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: [][]telego.InlineKeyboardButton{row}}
}

// SensitivePromptKeyboard asks the sender to self-classify visual media
// before it is posted. The message id is the first (or only) part of
// the pending submission.
func SensitivePromptKeyboard(firstMessageID int) *telego.InlineKeyboardMarkup {
	return &telego.InlineKeyboardMarkup{InlineKeyboard: [][]telego.InlineKeyboardButton{
		{
			telego.InlineKeyboardButton{Text: "✅ Safe", CallbackData: fmt.Sprintf("nsfw_safe:%d", firstMessageID)},
			telego.InlineKeyboardButton{Text: "🔞 Sensitive", CallbackData: fmt.Sprintf("nsfw_mark:%d", firstMessageID)},
		},
		{
			telego.InlineKeyboardButton{Text: "❌ Cancel", CallbackData: fmt.Sprintf("nsfw_cancel:%d", firstMessageID)},
		},
	}}
}

// EditCancelKeyboard is attached to the edit-mode prompt.
func EditCancelKeyboard() *telego.InlineKeyboardMarkup {
	return &telego.InlineKeyboardMarkup{InlineKeyboard: [][]telego.InlineKeyboardButton{
		{telego.InlineKeyboardButton{Text: "❌ Cancel", CallbackData: "cancel_edit"}},
	}}
}
