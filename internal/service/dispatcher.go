package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"

	"tg-relay/internal/logger"
	"tg-relay/internal/markup"
)

// SendResult describes the unit as posted on the broadcast channel.
type SendResult struct {
	ChatID    int64
	MessageID int
	// CanEdit reports whether the posted kind supports later text or
	// caption edits.
	CanEdit bool
}

// Dispatcher routes a single content unit to the matching platform
// send primitive, applying resolved reply context, formatting and the
// spoiler flag. If the platform rejects the reply target it retries
// exactly once with the reply folded into a text prefix; any other
// platform failure surfaces as a PostError without retry.
type Dispatcher struct {
	api       BotAPI
	channelID int64
}

// NewDispatcher creates a dispatcher posting to the given channel.
func NewDispatcher(api BotAPI, channelID int64) *Dispatcher {
	return &Dispatcher{api: api, channelID: channelID}
}

// Send posts the message to the channel. overrideCaption, when
// non-nil, replaces the original text/caption and is parsed as HTML
// (used for stripped links and injected warnings).
func (d *Dispatcher) Send(ctx context.Context, message *telego.Message, replyParams *telego.ReplyParameters, hasSpoiler bool, overrideCaption *string) (*SendResult, error) {
	kind := KindOf(message)
	logger.Debugf("[DISPATCHER] routing %s message %d", kind, message.MessageID)

	result, err := d.sendByKind(ctx, kind, message, replyParams, hasSpoiler, overrideCaption)
	if err == nil {
		return result, nil
	}
	if replyParams == nil || !isInvalidReplyTarget(err) {
		return nil, &PostError{Kind: kind.String(), Err: err}
	}

	// The reply target was rejected; fold the reply context into a
	// link prefix and retry once without the structural attachment.
	logger.Warningf("[DISPATCHER] invalid reply target (chat=%d message=%d), retrying with prefix: %v",
		replyParams.ChatID.ID, replyParams.MessageID, err)
	prefixed := foldReplyIntoText(message, replyParams, overrideCaption)
	result, err = d.sendByKind(ctx, kind, message, nil, hasSpoiler, &prefixed)
	if err != nil {
		return nil, &PostError{Kind: kind.String(), Err: err}
	}
	return result, nil
}

func (d *Dispatcher) sendByKind(ctx context.Context, kind ContentKind, message *telego.Message, replyParams *telego.ReplyParameters, hasSpoiler bool, overrideCaption *string) (*SendResult, error) {
	switch kind {
	case KindText:
		return d.sendText(ctx, message, replyParams, overrideCaption)
	case KindPhoto:
		caption, entities, parseMode := d.caption(message, overrideCaption)
		photo := message.Photo[len(message.Photo)-1]
		sent, err := d.api.SendPhoto(ctx, &telego.SendPhotoParams{
			ChatID:          telego.ChatID{ID: d.channelID},
			Photo:           telego.InputFile{FileID: photo.FileID},
			Caption:         caption,
			CaptionEntities: entities,
			ParseMode:       parseMode,
			HasSpoiler:      hasSpoiler,
			ReplyParameters: replyParams,
		})
		if err != nil {
			return nil, err
		}
		return &SendResult{ChatID: d.channelID, MessageID: sent.MessageID, CanEdit: true}, nil
	case KindVideo:
		caption, entities, parseMode := d.caption(message, overrideCaption)
		sent, err := d.api.SendVideo(ctx, &telego.SendVideoParams{
			ChatID:          telego.ChatID{ID: d.channelID},
			Video:           telego.InputFile{FileID: message.Video.FileID},
			Caption:         caption,
			CaptionEntities: entities,
			ParseMode:       parseMode,
			HasSpoiler:      hasSpoiler,
			ReplyParameters: replyParams,
		})
		if err != nil {
			return nil, err
		}
		return &SendResult{ChatID: d.channelID, MessageID: sent.MessageID, CanEdit: true}, nil
	case KindAnimation:
		caption, entities, parseMode := d.caption(message, overrideCaption)
		sent, err := d.api.SendAnimation(ctx, &telego.SendAnimationParams{
			ChatID:          telego.ChatID{ID: d.channelID},
			Animation:       telego.InputFile{FileID: message.Animation.FileID},
			Caption:         caption,
			CaptionEntities: entities,
			ParseMode:       parseMode,
			HasSpoiler:      hasSpoiler,
			ReplyParameters: replyParams,
		})
		if err != nil {
			return nil, err
		}
		return &SendResult{ChatID: d.channelID, MessageID: sent.MessageID, CanEdit: true}, nil
	case KindDocument:
		// Documents have no spoiler flag on the platform.
		caption, entities, parseMode := d.caption(message, overrideCaption)
		sent, err := d.api.SendDocument(ctx, &telego.SendDocumentParams{
			ChatID:          telego.ChatID{ID: d.channelID},
			Document:        telego.InputFile{FileID: message.Document.FileID},
			Caption:         caption,
			CaptionEntities: entities,
			ParseMode:       parseMode,
			ReplyParameters: replyParams,
		})
		if err != nil {
			return nil, err
		}
		return &SendResult{ChatID: d.channelID, MessageID: sent.MessageID, CanEdit: true}, nil
	case KindPoll:
		return d.sendPoll(ctx, message, replyParams)
	case KindSticker:
		copied, err := d.api.CopyMessage(ctx, &telego.CopyMessageParams{
			ChatID:          telego.ChatID{ID: d.channelID},
			FromChatID:      telego.ChatID{ID: message.Chat.ID},
			MessageID:       message.MessageID,
			ReplyParameters: replyParams,
		})
		if err != nil {
			return nil, err
		}
		return &SendResult{ChatID: d.channelID, MessageID: copied.MessageID, CanEdit: false}, nil
	case KindUnsupported:
		return nil, fmt.Errorf("unsupported content kind")
	default:
		return nil, fmt.Errorf("unsupported content kind %d", kind)
	}
}

// sendText copies the original message (preserving formatting
// server-side) unless an override text requires a fresh send.
func (d *Dispatcher) sendText(ctx context.Context, message *telego.Message, replyParams *telego.ReplyParameters, overrideText *string) (*SendResult, error) {
	if overrideText != nil {
		sent, err := d.api.SendMessage(ctx, &telego.SendMessageParams{
			ChatID:          telego.ChatID{ID: d.channelID},
			Text:            *overrideText,
			ParseMode:       telego.ModeHTML,
			ReplyParameters: replyParams,
		})
		if err != nil {
			return nil, err
		}
		return &SendResult{ChatID: d.channelID, MessageID: sent.MessageID, CanEdit: true}, nil
	}
	copied, err := d.api.CopyMessage(ctx, &telego.CopyMessageParams{
		ChatID:          telego.ChatID{ID: d.channelID},
		FromChatID:      telego.ChatID{ID: message.Chat.ID},
		MessageID:       message.MessageID,
		ReplyParameters: replyParams,
	})
	if err != nil {
		return nil, err
	}
	return &SendResult{ChatID: d.channelID, MessageID: copied.MessageID, CanEdit: true}, nil
}

// sendPoll re-creates the poll instead of copying so votes start
// fresh; polls cannot be edited afterwards.
func (d *Dispatcher) sendPoll(ctx context.Context, message *telego.Message, replyParams *telego.ReplyParameters) (*SendResult, error) {
	poll := message.Poll
	options := make([]telego.InputPollOption, 0, len(poll.Options))
	for _, option := range poll.Options {
		options = append(options, telego.InputPollOption{Text: option.Text})
	}
	isAnonymous := poll.IsAnonymous
	sent, err := d.api.SendPoll(ctx, &telego.SendPollParams{
		ChatID:                telego.ChatID{ID: d.channelID},
		Question:              poll.Question,
		Options:               options,
		IsAnonymous:           &isAnonymous,
		AllowsMultipleAnswers: poll.AllowsMultipleAnswers,
		ReplyParameters:       replyParams,
	})
	if err != nil {
		return nil, err
	}
	return &SendResult{ChatID: d.channelID, MessageID: sent.MessageID, CanEdit: false}, nil
}

// caption selects the outgoing caption: the override (HTML) or the
// original caption with its surviving entities.
func (d *Dispatcher) caption(message *telego.Message, overrideCaption *string) (string, []telego.MessageEntity, string) {
	if overrideCaption != nil {
		return *overrideCaption, nil, telego.ModeHTML
	}
	entities := markup.ValidEntities(message.Caption, message.CaptionEntities)
	return message.Caption, entities, ""
}

// foldReplyIntoText renders the message text with a "replying to" link
// prefix for the reply-strip retry.
func foldReplyIntoText(message *telego.Message, replyParams *telego.ReplyParameters, overrideCaption *string) string {
	link := BuildMessageLink(replyParams.ChatID.ID, replyParams.MessageID)
	prefix := fmt.Sprintf("<b>↩️ <a href=\"%s\">Replying to message</a></b>", link)

	var body string
	switch {
	case overrideCaption != nil:
		body = *overrideCaption
	case message.Text != "":
		body = markup.EntitiesToHTML(message.Text, message.Entities)
	case message.Caption != "":
		body = markup.EntitiesToHTML(message.Caption, message.CaptionEntities)
	}
	if body == "" {
		return prefix
	}
	return prefix + "\n\n" + body
}

// isInvalidReplyTarget matches the platform's rejection of a reply
// attachment, as opposed to any other send failure.
func isInvalidReplyTarget(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "message to be replied not found") ||
		strings.Contains(msg, "reply message not found") ||
		strings.Contains(msg, "message to reply not found")
}
