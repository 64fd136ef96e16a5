package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-relay/internal/logger"
	"tg-relay/internal/markup"
	"tg-relay/internal/models"
	"tg-relay/internal/service"
	"tg-relay/internal/storage"
)

// handleCallbackQuery processes callback queries from inline keyboards
func (h *Handlers) handleCallbackQuery(ctx *th.Context, query telego.CallbackQuery) error {
	if query.Data == "" {
		return nil
	}

	logger.Debugf("Received callback query: %s", query.Data)

	switch {
	case strings.HasPrefix(query.Data, "edit:"):
		return h.handleEditCallback(ctx, query)
	case strings.HasPrefix(query.Data, "delete:"):
		return h.handleDeleteCallback(ctx, query)
	case query.Data == "cancel_edit":
		return h.handleCancelEditCallback(ctx, query)
	case strings.HasPrefix(query.Data, "nsfw_safe:"):
		return h.handleDecisionCallback(ctx, query, "safe")
	case strings.HasPrefix(query.Data, "nsfw_mark:"):
		return h.handleDecisionCallback(ctx, query, "mark")
	case strings.HasPrefix(query.Data, "nsfw_cancel:"):
		return h.handleDecisionCallback(ctx, query, "cancel")
	}

	return nil
}

// handleEditCallback arms an edit session for one of the sender's
// posts. Callback data: edit:<channel message id>:<t|c>.
func (h *Handlers) handleEditCallback(ctx *th.Context, query telego.CallbackQuery) error {
	parts := strings.Split(query.Data, ":")
	if len(parts) != 3 {
		return h.answer(ctx, query.ID, "", false)
	}
	channelMessageID, err := strconv.Atoi(parts[1])
	if err != nil {
		return h.answer(ctx, query.ID, "", false)
	}

	if _, ok := h.authorizeOwner(ctx, query, channelMessageID); !ok {
		return nil
	}

	isCaption := parts[2] == "c"
	if err := h.editor.Activate(ctx.Context(), query.From.ID, channelMessageID, isCaption); err != nil {
		logger.Errorf("Arming edit session for %d: %v", query.From.ID, err)
		return h.answer(ctx, query.ID, "❌ Could not start editing. Try again.", true)
	}

	prompt := "✏️ Send the new text for your post."
	parseMode := ""
	if current := h.currentContentHTML(ctx, query.From.ID, channelMessageID); current != "" {
		prompt = "✏️ Current content:\n<blockquote>" + current + "</blockquote>\nSend the new text for your post."
		parseMode = telego.ModeHTML
	}
	_, err = h.bot.SendMessage(ctx.Context(), &telego.SendMessageParams{
		ChatID:      telego.ChatID{ID: query.From.ID},
		Text:        prompt,
		ParseMode:   parseMode,
		ReplyMarkup: service.EditCancelKeyboard(),
	})
	if err != nil {
		logger.Warningf("Sending edit prompt to %d: %v", query.From.ID, err)
	}
	return h.answer(ctx, query.ID, "", false)
}

// currentContentHTML fetches the channel message's current text or
// caption by forwarding it to the sender's chat and deleting the
// forward. Returns "" when the content cannot be fetched; the edit
// prompt then degrades to a bare instruction.
func (h *Handlers) currentContentHTML(ctx *th.Context, senderChatID int64, channelMessageID int) string {
	probe, err := h.bot.ForwardMessage(ctx.Context(), &telego.ForwardMessageParams{
		ChatID:     telego.ChatID{ID: senderChatID},
		FromChatID: telego.ChatID{ID: h.cfg.Channel.ID},
		MessageID:  channelMessageID,
	})
	if err != nil {
		logger.Debugf("Probing channel message %d for edit prompt: %v", channelMessageID, err)
		return ""
	}
	defer func() {
		if err := h.bot.DeleteMessage(ctx.Context(), &telego.DeleteMessageParams{
			ChatID:    telego.ChatID{ID: senderChatID},
			MessageID: probe.MessageID,
		}); err != nil {
			logger.Debugf("Deleting edit probe %d: %v", probe.MessageID, err)
		}
	}()

	if probe.Text != "" {
		return markup.EntitiesToHTML(probe.Text, probe.Entities)
	}
	return markup.EntitiesToHTML(probe.Caption, probe.CaptionEntities)
}

// handleDeleteCallback removes the sender's post from the channel,
// including all album siblings. Callback data: delete:<channel message id>.
func (h *Handlers) handleDeleteCallback(ctx *th.Context, query telego.CallbackQuery) error {
	channelMessageID, err := strconv.Atoi(strings.TrimPrefix(query.Data, "delete:"))
	if err != nil {
		return h.answer(ctx, query.ID, "", false)
	}

	if _, ok := h.authorizeOwner(ctx, query, channelMessageID); !ok {
		return nil
	}

	targets := []int{channelMessageID}
	if siblings, found, err := h.coordinator.Siblings(ctx.Context(), channelMessageID); err != nil {
		logger.Warningf("Loading siblings of %d: %v", channelMessageID, err)
	} else if found {
		targets = siblings
	}

	for _, id := range targets {
		if err := h.bot.DeleteMessage(ctx.Context(), &telego.DeleteMessageParams{
			ChatID:    telego.ChatID{ID: h.cfg.Channel.ID},
			MessageID: id,
		}); err != nil {
			logger.Warningf("Deleting channel message %d: %v", id, err)
		}
		if err := h.mappings.MarkDeleted(h.cfg.Channel.ID, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Warningf("Marking mapping %d deleted: %v", id, err)
		}
	}
	if err := h.coordinator.ClearSiblings(ctx.Context(), channelMessageID); err != nil {
		logger.Warningf("Clearing siblings of %d: %v", channelMessageID, err)
	}

	h.rewriteCallbackMessage(ctx, query, "🗑 Deleted from the channel.")
	logger.Infof("Sender %d deleted channel message %d (%d parts)", query.From.ID, channelMessageID, len(targets))
	return h.answer(ctx, query.ID, "Deleted", false)
}

func (h *Handlers) handleCancelEditCallback(ctx *th.Context, query telego.CallbackQuery) error {
	if err := h.editor.Deactivate(ctx.Context(), query.From.ID); err != nil {
		logger.Warningf("Disarming edit session for %d: %v", query.From.ID, err)
	}
	h.rewriteCallbackMessage(ctx, query, "Edit cancelled.")
	return h.answer(ctx, query.ID, "", false)
}

// handleDecisionCallback resumes a submission suspended behind the
// sensitive-content prompt. Callback data: nsfw_<action>:<first message id>.
func (h *Handlers) handleDecisionCallback(ctx *th.Context, query telego.CallbackQuery, action string) error {
	idText := query.Data[strings.Index(query.Data, ":")+1:]
	firstMessageID, err := strconv.Atoi(idText)
	if err != nil {
		return h.answer(ctx, query.ID, "", false)
	}

	decision, err := h.gate.GetPending(ctx.Context(), firstMessageID)
	if err != nil {
		if errors.Is(err, service.ErrGateExpired) {
			h.rewriteCallbackMessage(ctx, query, "This prompt has expired. Please send your content again.")
			return h.answer(ctx, query.ID, "Expired", true)
		}
		logger.Errorf("Loading pending decision %d: %v", firstMessageID, err)
		return h.answer(ctx, query.ID, "❌ Something went wrong.", true)
	}

	sender, err := h.senders.GetByID(decision.SenderID)
	if err != nil || sender.TelegramID != query.From.ID {
		return h.answer(ctx, query.ID, "This isn't your submission.", true)
	}

	switch action {
	case "cancel":
		h.rewriteCallbackMessage(ctx, query, "Submission cancelled.")
	case "safe", "mark":
		if err := h.forwarder.PostPending(ctx.Context(), decision, action == "mark"); err != nil {
			logger.Errorf("Posting pending submission %d: %v", firstMessageID, err)
			h.rewriteCallbackMessage(ctx, query, "❌ Could not post your content. Please send it again.")
			return h.answer(ctx, query.ID, "", false)
		}
		h.rewriteCallbackMessage(ctx, query, "✅ Posted to the channel.")
	}

	if err := h.gate.ClearPending(ctx.Context(), firstMessageID); err != nil {
		logger.Warningf("Clearing pending decision %d: %v", firstMessageID, err)
	}
	return h.answer(ctx, query.ID, "", false)
}

// authorizeOwner resolves the mapping for a channel message and checks
// that the callback comes from the sender who posted it. On failure it
// answers the query itself and returns ok=false.
func (h *Handlers) authorizeOwner(ctx *th.Context, query telego.CallbackQuery, channelMessageID int) (*models.MessageMapping, bool) {
	mapping, err := h.mappings.GetByChannelMessage(h.cfg.Channel.ID, channelMessageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = h.answer(ctx, query.ID, "This post no longer exists.", true)
			return nil, false
		}
		logger.Errorf("Looking up mapping for %d: %v", channelMessageID, err)
		_ = h.answer(ctx, query.ID, "❌ Something went wrong.", true)
		return nil, false
	}

	sender, err := h.senders.GetByID(mapping.SenderID)
	if err != nil || sender.TelegramID != query.From.ID {
		_ = h.answer(ctx, query.ID, "This isn't your post.", true)
		return nil, false
	}
	return mapping, true
}

// rewriteCallbackMessage replaces the text of the message carrying the
// pressed keyboard, which also drops the keyboard.
func (h *Handlers) rewriteCallbackMessage(ctx *th.Context, query telego.CallbackQuery, text string) {
	message, ok := query.Message.(*telego.Message)
	if !ok || message == nil {
		return
	}
	_, err := h.bot.EditMessageText(ctx.Context(), &telego.EditMessageTextParams{
		ChatID:    telego.ChatID{ID: message.Chat.ID},
		MessageID: message.MessageID,
		Text:      text,
	})
	if err != nil {
		logger.Debugf("Rewriting callback message %d: %v", message.MessageID, err)
	}
}

func (h *Handlers) answer(ctx *th.Context, queryID, text string, alert bool) error {
	return h.bot.AnswerCallbackQuery(ctx.Context(), &telego.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       alert,
	})
}
