package service

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/mymmrac/telego"

	"tg-relay/internal/logger"
	"tg-relay/internal/markup"
	"tg-relay/internal/models"
	"tg-relay/internal/storage"
)

// Forwarder runs the per-submission pipeline: sender bookkeeping, ban
// and rate checks, album routing, the sensitive-content gate, reply
// resolution, dispatch, mapping bookkeeping and confirmation. One
// Forward call handles exactly one incoming private message.
type Forwarder struct {
	api         BotAPI
	senders     SenderStore
	mappings    MappingStore
	limiter     *RateLimiter
	resolver    *ReplyResolver
	dispatcher  *Dispatcher
	coordinator *MediaGroupCoordinator
	gate        *NSFWGate

	channelID    int64
	enableEdit   bool
	enableDelete bool
}

func NewForwarder(api BotAPI, senders SenderStore, mappings MappingStore, limiter *RateLimiter, resolver *ReplyResolver, dispatcher *Dispatcher, coordinator *MediaGroupCoordinator, gate *NSFWGate, channelID int64, enableEdit, enableDelete bool) *Forwarder {
	return &Forwarder{
		api:          api,
		senders:      senders,
		mappings:     mappings,
		limiter:      limiter,
		resolver:     resolver,
		dispatcher:   dispatcher,
		coordinator:  coordinator,
		gate:         gate,
		channelID:    channelID,
		enableEdit:   enableEdit,
		enableDelete: enableDelete,
	}
}

// Forward relays one private message to the channel. Typed errors tell
// the handler what to show the sender: RateLimitExceededError carries
// its own notice, ErrSenderBanned and ValidationError map to fixed
// notices, PostError means the channel post itself failed.
func (f *Forwarder) Forward(ctx context.Context, message *telego.Message) error {
	from := message.From
	if from == nil {
		return &ValidationError{Reason: "message without sender"}
	}

	sender, err := f.senders.GetOrCreate(from.ID, from.Username, from.FirstName, from.LastName)
	if err != nil {
		return fmt.Errorf("registering sender %d: %w", from.ID, err)
	}
	if sender.IsBanned {
		return ErrSenderBanned
	}

	if message.MediaGroupID != "" {
		// The album counts as one submission, charged to its first
		// part; later parts of a collecting group skip the rate check
		// so that submission cannot reject its own siblings.
		collecting, err := f.coordinator.Collecting(ctx, message.MediaGroupID)
		if err != nil {
			return err
		}
		if !collecting {
			if err := f.limiter.CheckLimit(ctx, from.ID); err != nil {
				return err
			}
		}
		first, err := f.coordinator.AddPart(ctx, message, sender.ID)
		if err != nil {
			return err
		}
		if first {
			if err := f.limiter.RecordSubmission(ctx, from.ID); err != nil {
				logger.Warningf("[FORWARD] recording submission for %d: %v", from.ID, err)
			}
		}
		return nil
	}

	if err := f.limiter.CheckLimit(ctx, from.ID); err != nil {
		return err
	}

	kind := KindOf(message)
	if kind == KindUnsupported {
		return &ValidationError{Reason: "unsupported content kind"}
	}

	if f.gate.Enabled() && HasVisualMedia(message) && !f.gate.Authoritative() {
		return f.suspend(ctx, message, sender)
	}

	var spoiler, addWarning bool
	if f.gate.Enabled() && HasVisualMedia(message) && f.gate.Authoritative() {
		var reason string
		spoiler, reason = f.gate.Classify(ctx, message)
		addWarning = spoiler
		if spoiler {
			logger.Infof("[FORWARD] classifier flagged message %d from sender %d: %s", message.MessageID, from.ID, reason)
		}
	}

	replyParams := f.resolver.Resolve(ctx, message)
	override := buildOverride(message, kind, replyParams, addWarning)

	result, err := f.dispatcher.Send(ctx, message, replyParams, spoiler, override)
	if err != nil {
		return err
	}

	if err := f.limiter.RecordSubmission(ctx, from.ID); err != nil {
		logger.Warningf("[FORWARD] recording submission for %d: %v", from.ID, err)
	}
	f.recordMapping(sender.ID, message.Chat.ID, message.MessageID, result.MessageID)

	keyboard := MessageActionsKeyboard(result.MessageID, result.CanEdit, kind != KindText, f.enableEdit, f.enableDelete)
	sendConfirmation(ctx, f.api, message.Chat.ID, message.MessageID, f.channelID, result.MessageID, keyboard)
	logger.Infof("[FORWARD] posted %s message %d from sender %d as channel message %d", kind, message.MessageID, from.ID, result.MessageID)
	return nil
}

// suspend parks a visual-media submission behind the sender's own
// sensitive-or-not decision.
func (f *Forwarder) suspend(ctx context.Context, message *telego.Message, sender *models.Sender) error {
	decision := &PendingDecision{
		SenderID:   sender.ID,
		ChatID:     message.Chat.ID,
		MessageIDs: []int{message.MessageID},
	}
	if params := f.resolver.Resolve(ctx, message); params != nil {
		decision.ReplyToMessageID = params.MessageID
		decision.ReplyToChatID = params.ChatID.ID
		decision.QuoteText = params.Quote
	}
	if err := f.gate.StorePending(ctx, decision); err != nil {
		return err
	}
	_, err := f.api.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:          telego.ChatID{ID: message.Chat.ID},
		Text:            "Does this contain sensitive content?",
		ReplyParameters: &telego.ReplyParameters{MessageID: message.MessageID},
		ReplyMarkup:     SensitivePromptKeyboard(message.MessageID),
	})
	if err != nil {
		logger.Errorf("[FORWARD] sending decision prompt to chat %d: %v", message.Chat.ID, err)
	}
	return nil
}

// PostPending posts a previously suspended submission after the
// sender's decision. markSensitive applies the spoiler and warning.
func (f *Forwarder) PostPending(ctx context.Context, decision *PendingDecision, markSensitive bool) error {
	sender, err := f.senders.GetByID(decision.SenderID)
	if err != nil {
		return fmt.Errorf("loading sender %d: %w", decision.SenderID, err)
	}

	if decision.IsGroup {
		parts := make([]BatchPart, 0, len(decision.MessageIDs))
		for _, id := range decision.MessageIDs {
			parts = append(parts, BatchPart{MessageID: id, ChatID: decision.ChatID})
		}
		submission := &GroupSubmission{
			SenderID:         decision.SenderID,
			ChatID:           decision.ChatID,
			Parts:            parts,
			ReplyToMessageID: decision.ReplyToMessageID,
			ReplyToChatID:    decision.ReplyToChatID,
			QuoteText:        decision.QuoteText,
		}
		if err := f.coordinator.SendToChannel(ctx, submission, markSensitive, markSensitive, false); err != nil {
			return err
		}
		return f.limiter.RecordSubmission(ctx, sender.TelegramID)
	}

	// Re-materialize the original message to get its file identifiers.
	probe, err := f.api.ForwardMessage(ctx, &telego.ForwardMessageParams{
		ChatID:              telego.ChatID{ID: decision.ChatID},
		FromChatID:          telego.ChatID{ID: decision.ChatID},
		MessageID:           decision.MessageIDs[0],
		DisableNotification: true,
	})
	if err != nil {
		return &PostError{Kind: "pending", Err: fmt.Errorf("materializing message %d: %w", decision.MessageIDs[0], err)}
	}
	defer func() {
		if deleteErr := f.api.DeleteMessage(ctx, &telego.DeleteMessageParams{
			ChatID:    telego.ChatID{ID: decision.ChatID},
			MessageID: probe.MessageID,
		}); deleteErr != nil {
			logger.Warningf("[FORWARD] deleting probe %d: %v", probe.MessageID, deleteErr)
		}
	}()

	var replyParams *telego.ReplyParameters
	if decision.ReplyToMessageID != 0 {
		replyParams = buildReplyParameters(decision.ReplyToChatID, decision.ReplyToMessageID, decision.QuoteText)
	}
	override := buildOverride(probe, KindOf(probe), replyParams, markSensitive)

	result, err := f.dispatcher.Send(ctx, probe, replyParams, markSensitive, override)
	if err != nil {
		return err
	}

	if err := f.limiter.RecordSubmission(ctx, sender.TelegramID); err != nil {
		logger.Warningf("[FORWARD] recording submission for %d: %v", sender.TelegramID, err)
	}
	f.recordMapping(decision.SenderID, decision.ChatID, decision.MessageIDs[0], result.MessageID)

	keyboard := MessageActionsKeyboard(result.MessageID, result.CanEdit, KindOf(probe) != KindText, f.enableEdit, f.enableDelete)
	sendConfirmation(ctx, f.api, decision.ChatID, decision.MessageIDs[0], f.channelID, result.MessageID, keyboard)
	return nil
}

func (f *Forwarder) recordMapping(senderID, userChatID int64, userMessageID, channelMessageID int) {
	mapping := &models.MessageMapping{
		SenderID:         senderID,
		UserChatID:       userChatID,
		UserMessageID:    userMessageID,
		ChannelChatID:    f.channelID,
		ChannelMessageID: channelMessageID,
	}
	if err := f.mappings.Create(mapping); err != nil {
		if errors.Is(err, storage.ErrMappingExists) {
			logger.Debugf("[FORWARD] mapping for message %d already recorded", userMessageID)
			return
		}
		logger.Errorf("[FORWARD] recording mapping for message %d: %v", userMessageID, err)
	}
}

// buildOverride decides whether the outgoing text or caption must
// differ from the original: a t.me link consumed as reply addressing
// is stripped, and flagged content gets the warning blockquote. Nil
// means the dispatcher forwards the original text and entities as-is.
func buildOverride(message *telego.Message, kind ContentKind, replyParams *telego.ReplyParameters, addWarning bool) *string {
	var override *string

	if kind == KindText && replyParams != nil && message.ReplyToMessage == nil && message.ExternalReply == nil {
		if link := ExtractMessageLink(message.Text); link != "" {
			rendered := renderTextHTML(message.Text, message.Entities)
			if stripped := StripMessageLink(rendered, link); stripped != "" {
				override = &stripped
			}
		}
	}

	if addWarning {
		var body string
		if override != nil {
			body = *override
		} else if message.Caption != "" {
			body = renderTextHTML(message.Caption, message.CaptionEntities)
		}
		warned := sensitiveWarningHTML
		if body != "" {
			warned += "\n" + body
		}
		override = &warned
	}
	return override
}

func renderTextHTML(text string, entities []telego.MessageEntity) string {
	if len(entities) > 0 {
		return markup.EntitiesToHTML(text, entities)
	}
	return html.EscapeString(text)
}
