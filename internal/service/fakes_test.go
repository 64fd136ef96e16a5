package service

import (
	"context"
	"sync"

	"github.com/mymmrac/telego"

	"tg-relay/internal/models"
	"tg-relay/internal/storage"
)

// fakeAPI records every call and hands out increasing message ids.
// Per-method error queues let tests fail the first call and succeed on
// the retry.
type fakeAPI struct {
	mu     sync.Mutex
	nextID int

	sendMessageCalls []*telego.SendMessageParams
	copyCalls        []*telego.CopyMessageParams
	forwardCalls     []*telego.ForwardMessageParams
	deleteCalls      []*telego.DeleteMessageParams
	photoCalls       []*telego.SendPhotoParams
	videoCalls       []*telego.SendVideoParams
	animationCalls   []*telego.SendAnimationParams
	documentCalls    []*telego.SendDocumentParams
	pollCalls        []*telego.SendPollParams
	mediaGroupCalls  []*telego.SendMediaGroupParams
	editTextCalls    []*telego.EditMessageTextParams
	editCaptionCalls []*telego.EditMessageCaptionParams

	sendMessageErrs []error
	copyErrs        []error
	forwardErrs     []error
	photoErrs       []error
	mediaGroupErrs  []error
	editTextErrs    []error

	getChatResult *telego.ChatFullInfo
	getChatErr    error

	// forwardResult, when set, is returned from ForwardMessage with a
	// fresh message id.
	forwardResult *telego.Message
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{nextID: 100}
}

func (f *fakeAPI) id() int {
	f.nextID++
	return f.nextID
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeAPI) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendMessageCalls = append(f.sendMessageCalls, params)
	if err := popErr(&f.sendMessageErrs); err != nil {
		return nil, err
	}
	return &telego.Message{MessageID: f.id(), Chat: telego.Chat{ID: params.ChatID.ID}}, nil
}

func (f *fakeAPI) CopyMessage(_ context.Context, params *telego.CopyMessageParams) (*telego.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copyCalls = append(f.copyCalls, params)
	if err := popErr(&f.copyErrs); err != nil {
		return nil, err
	}
	return &telego.MessageID{MessageID: f.id()}, nil
}

func (f *fakeAPI) ForwardMessage(_ context.Context, params *telego.ForwardMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwardCalls = append(f.forwardCalls, params)
	if err := popErr(&f.forwardErrs); err != nil {
		return nil, err
	}
	if f.forwardResult != nil {
		result := *f.forwardResult
		result.MessageID = f.id()
		result.Chat = telego.Chat{ID: params.ChatID.ID}
		return &result, nil
	}
	return &telego.Message{
		MessageID: f.id(),
		Chat:      telego.Chat{ID: params.ChatID.ID},
		Photo:     []telego.PhotoSize{{FileID: "probe-photo"}},
	}, nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, params *telego.DeleteMessageParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, params)
	return nil
}

func (f *fakeAPI) SendPhoto(_ context.Context, params *telego.SendPhotoParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photoCalls = append(f.photoCalls, params)
	if err := popErr(&f.photoErrs); err != nil {
		return nil, err
	}
	return &telego.Message{MessageID: f.id(), Chat: telego.Chat{ID: params.ChatID.ID}}, nil
}

func (f *fakeAPI) SendVideo(_ context.Context, params *telego.SendVideoParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoCalls = append(f.videoCalls, params)
	return &telego.Message{MessageID: f.id(), Chat: telego.Chat{ID: params.ChatID.ID}}, nil
}

func (f *fakeAPI) SendAnimation(_ context.Context, params *telego.SendAnimationParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.animationCalls = append(f.animationCalls, params)
	return &telego.Message{MessageID: f.id(), Chat: telego.Chat{ID: params.ChatID.ID}}, nil
}

func (f *fakeAPI) SendDocument(_ context.Context, params *telego.SendDocumentParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documentCalls = append(f.documentCalls, params)
	return &telego.Message{MessageID: f.id(), Chat: telego.Chat{ID: params.ChatID.ID}}, nil
}

func (f *fakeAPI) SendPoll(_ context.Context, params *telego.SendPollParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls = append(f.pollCalls, params)
	return &telego.Message{MessageID: f.id(), Chat: telego.Chat{ID: params.ChatID.ID}}, nil
}

func (f *fakeAPI) SendMediaGroup(_ context.Context, params *telego.SendMediaGroupParams) ([]telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mediaGroupCalls = append(f.mediaGroupCalls, params)
	if err := popErr(&f.mediaGroupErrs); err != nil {
		return nil, err
	}
	sent := make([]telego.Message, 0, len(params.Media))
	for range params.Media {
		sent = append(sent, telego.Message{MessageID: f.id(), Chat: telego.Chat{ID: params.ChatID.ID}})
	}
	return sent, nil
}

func (f *fakeAPI) EditMessageText(_ context.Context, params *telego.EditMessageTextParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editTextCalls = append(f.editTextCalls, params)
	if err := popErr(&f.editTextErrs); err != nil {
		return nil, err
	}
	return &telego.Message{MessageID: params.MessageID, Chat: telego.Chat{ID: params.ChatID.ID}}, nil
}

func (f *fakeAPI) EditMessageCaption(_ context.Context, params *telego.EditMessageCaptionParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editCaptionCalls = append(f.editCaptionCalls, params)
	return &telego.Message{MessageID: params.MessageID, Chat: telego.Chat{ID: params.ChatID.ID}}, nil
}

func (f *fakeAPI) GetChat(_ context.Context, _ *telego.GetChatParams) (*telego.ChatFullInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getChatResult, f.getChatErr
}

// fakeSenders is an in-memory SenderStore.
type fakeSenders struct {
	mu     sync.Mutex
	byTG   map[int64]*models.Sender
	nextID int64
}

func newFakeSenders() *fakeSenders {
	return &fakeSenders{byTG: make(map[int64]*models.Sender)}
}

func (f *fakeSenders) GetOrCreate(telegramID int64, username, firstName, lastName string) (*models.Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sender, ok := f.byTG[telegramID]; ok {
		return sender, nil
	}
	f.nextID++
	sender := &models.Sender{
		ID:         f.nextID,
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
	}
	f.byTG[telegramID] = sender
	return sender, nil
}

func (f *fakeSenders) GetByID(id int64) (*models.Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sender := range f.byTG {
		if sender.ID == id {
			return sender, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeSenders) GetByTelegramID(telegramID int64) (*models.Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sender, ok := f.byTG[telegramID]; ok {
		return sender, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeSenders) SetBanned(telegramID int64, banned bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sender, ok := f.byTG[telegramID]
	if !ok {
		return storage.ErrNotFound
	}
	sender.IsBanned = banned
	return nil
}

// fakeMappings is an in-memory MappingStore.
type fakeMappings struct {
	mu   sync.Mutex
	rows []*models.MessageMapping
}

func newFakeMappings() *fakeMappings {
	return &fakeMappings{}
}

func (f *fakeMappings) Create(mapping *models.MessageMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.IsDeleted {
			continue
		}
		if row.UserChatID == mapping.UserChatID && row.UserMessageID == mapping.UserMessageID {
			return storage.ErrMappingExists
		}
	}
	mapping.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, mapping)
	return nil
}

func (f *fakeMappings) GetByUserMessage(userChatID int64, userMessageID int) (*models.MessageMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if !row.IsDeleted && row.UserChatID == userChatID && row.UserMessageID == userMessageID {
			return row, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeMappings) GetByUserMessageOrLastEdit(userChatID int64, userMessageID int) (*models.MessageMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.IsDeleted || row.UserChatID != userChatID {
			continue
		}
		if row.UserMessageID == userMessageID {
			return row, nil
		}
		if row.UserLastEditMessageID != nil && *row.UserLastEditMessageID == userMessageID {
			return row, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeMappings) GetByChannelMessage(channelChatID int64, channelMessageID int) (*models.MessageMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if !row.IsDeleted && row.ChannelChatID == channelChatID && row.ChannelMessageID == channelMessageID {
			return row, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeMappings) MarkDeleted(channelChatID int64, channelMessageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ChannelChatID == channelChatID && row.ChannelMessageID == channelMessageID {
			row.IsDeleted = true
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeMappings) SetLastEditMessageID(userChatID int64, userMessageID int, lastEditMessageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.UserChatID == userChatID && row.UserMessageID == userMessageID {
			id := lastEditMessageID
			row.UserLastEditMessageID = &id
			return nil
		}
	}
	return storage.ErrNotFound
}
