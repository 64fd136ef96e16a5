package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"tg-relay/internal/logger"
	"tg-relay/internal/markup"
	"tg-relay/internal/storage"
)

// editSessionTTL is how long an armed edit session waits for the
// replacement text before expiring on its own.
const editSessionTTL = 600 * time.Second

func editKey(senderTelegramID int64) string {
	return fmt.Sprintf("editing:%d", senderTelegramID)
}

// EditState is the armed edit session stored per sender. Only one
// session per sender exists at a time; arming a new one replaces it.
type EditState struct {
	ChannelMessageID int  `json:"channelMessageId"`
	IsCaption        bool `json:"isCaption"`
}

// EditSession lets a sender replace the text or caption of a message
// they posted earlier. The session is armed by the edit button, lives
// in the ephemeral store and intercepts the sender's next text message.
type EditSession struct {
	api       BotAPI
	store     storage.EphemeralStore
	mappings  MappingStore
	channelID int64
}

func NewEditSession(api BotAPI, store storage.EphemeralStore, mappings MappingStore, channelID int64) *EditSession {
	return &EditSession{api: api, store: store, mappings: mappings, channelID: channelID}
}

// Activate arms an edit session for the sender targeting the given
// channel message.
func (s *EditSession) Activate(ctx context.Context, senderTelegramID int64, channelMessageID int, isCaption bool) error {
	data, err := json.Marshal(&EditState{ChannelMessageID: channelMessageID, IsCaption: isCaption})
	if err != nil {
		return fmt.Errorf("encoding edit state: %w", err)
	}
	if err := s.store.SetEx(ctx, editKey(senderTelegramID), string(data), editSessionTTL); err != nil {
		return fmt.Errorf("arming edit session: %w", err)
	}
	logger.Infof("[EDIT] session armed for sender %d targeting message %d", senderTelegramID, channelMessageID)
	return nil
}

// Active returns the armed session for the sender, if any.
func (s *EditSession) Active(ctx context.Context, senderTelegramID int64) (*EditState, bool, error) {
	raw, ok, err := s.store.Get(ctx, editKey(senderTelegramID))
	if err != nil {
		return nil, false, fmt.Errorf("loading edit state: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	var state EditState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, false, fmt.Errorf("decoding edit state: %w", err)
	}
	return &state, true, nil
}

// Deactivate disarms the sender's session.
func (s *EditSession) Deactivate(ctx context.Context, senderTelegramID int64) error {
	return s.store.Delete(ctx, editKey(senderTelegramID))
}

// ProcessEdit intercepts a private message when the sender has an
// armed session. It returns true when the message was consumed by the
// session, whether or not the edit succeeded; false means the message
// should flow through the normal relay pipeline.
func (s *EditSession) ProcessEdit(ctx context.Context, message *telego.Message) (bool, error) {
	if message.From == nil {
		return false, nil
	}
	senderID := message.From.ID

	state, active, err := s.Active(ctx, senderID)
	if err != nil {
		return false, err
	}
	if !active {
		return false, nil
	}

	if message.Text == "" {
		// Media cannot replace text on an existing post. Keep the
		// session armed so the sender can try again.
		s.reply(ctx, message, "✏️ Send the replacement as plain text, or press Cancel.", EditCancelKeyboard())
		return true, nil
	}

	entities := markup.ValidEntities(message.Text, message.Entities)
	if state.IsCaption {
		_, err = s.api.EditMessageCaption(ctx, &telego.EditMessageCaptionParams{
			ChatID:          telego.ChatID{ID: s.channelID},
			MessageID:       state.ChannelMessageID,
			Caption:         message.Text,
			CaptionEntities: entities,
		})
	} else {
		_, err = s.api.EditMessageText(ctx, &telego.EditMessageTextParams{
			ChatID:    telego.ChatID{ID: s.channelID},
			MessageID: state.ChannelMessageID,
			Text:      message.Text,
			Entities:  entities,
		})
	}
	if err != nil {
		if isNotModified(err) {
			s.reply(ctx, message, "The message already says that.", EditCancelKeyboard())
			return true, nil
		}
		logger.Errorf("[EDIT] updating channel message %d: %v", state.ChannelMessageID, err)
		s.reply(ctx, message, "❌ Could not update the message. Try again or press Cancel.", EditCancelKeyboard())
		return true, err
	}

	if err := s.Deactivate(ctx, senderID); err != nil {
		logger.Warningf("[EDIT] disarming session for sender %d: %v", senderID, err)
	}
	s.recordEditSource(state.ChannelMessageID, message)
	s.reply(ctx, message, "✅ Message updated.", nil)
	logger.Infof("[EDIT] sender %d updated channel message %d", senderID, state.ChannelMessageID)
	return true, nil
}

// recordEditSource remembers which of the sender's messages carried
// the replacement text, so replying to it later still resolves to the
// channel post.
func (s *EditSession) recordEditSource(channelMessageID int, edit *telego.Message) {
	mapping, err := s.mappings.GetByChannelMessage(s.channelID, channelMessageID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warningf("[EDIT] looking up mapping for message %d: %v", channelMessageID, err)
		}
		return
	}
	if err := s.mappings.SetLastEditMessageID(mapping.UserChatID, mapping.UserMessageID, edit.MessageID); err != nil {
		logger.Warningf("[EDIT] recording edit source for message %d: %v", channelMessageID, err)
	}
}

func (s *EditSession) reply(ctx context.Context, to *telego.Message, text string, keyboard *telego.InlineKeyboardMarkup) {
	_, err := s.api.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:          telego.ChatID{ID: to.Chat.ID},
		Text:            text,
		ReplyParameters: &telego.ReplyParameters{MessageID: to.MessageID},
		ReplyMarkup:     keyboard,
	})
	if err != nil {
		logger.Warningf("[EDIT] notifying chat %d: %v", to.Chat.ID, err)
	}
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
