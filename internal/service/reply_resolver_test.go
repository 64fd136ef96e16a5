package service

import (
	"context"
	"testing"

	"github.com/mymmrac/telego"

	"tg-relay/internal/models"
)

const testChannelID = int64(-1001234567890)

func TestResolveExternalReply(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	resolver := NewReplyResolver(api, newFakeMappings(), testChannelID)

	message := &telego.Message{
		MessageID: 10,
		Chat:      telego.Chat{ID: 500},
		Text:      "a reply",
		ExternalReply: &telego.ExternalReplyInfo{
			Chat:      &telego.Chat{ID: testChannelID},
			MessageID: 77,
		},
		Quote: &telego.TextQuote{Text: "quoted bit"},
	}

	params := resolver.Resolve(context.Background(), message)
	if params == nil {
		t.Fatal("expected reply parameters")
	}
	if params.ChatID.ID != testChannelID || params.MessageID != 77 {
		t.Errorf("resolved to chat=%d message=%d", params.ChatID.ID, params.MessageID)
	}
	if params.Quote != "quoted bit" {
		t.Errorf("Quote = %q, want %q", params.Quote, "quoted bit")
	}
}

func TestResolveExternalReplyForeignChannelSkipped(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	resolver := NewReplyResolver(api, newFakeMappings(), testChannelID)

	message := &telego.Message{
		MessageID: 10,
		Chat:      telego.Chat{ID: 500},
		Text:      "a reply",
		ExternalReply: &telego.ExternalReplyInfo{
			Chat:      &telego.Chat{ID: -1009999999999},
			MessageID: 77,
		},
	}

	// The reference points at some other channel: no context, no error.
	if params := resolver.Resolve(context.Background(), message); params != nil {
		t.Errorf("expected nil params, got %+v", params)
	}
}

func TestResolveDirectReplyViaMapping(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	mappings := newFakeMappings()
	if err := mappings.Create(&models.MessageMapping{
		SenderID:         1,
		UserChatID:       500,
		UserMessageID:    30,
		ChannelChatID:    testChannelID,
		ChannelMessageID: 88,
	}); err != nil {
		t.Fatalf("seeding mapping: %v", err)
	}
	resolver := NewReplyResolver(api, mappings, testChannelID)

	message := &telego.Message{
		MessageID:      31,
		Chat:           telego.Chat{ID: 500},
		Text:           "follow-up",
		ReplyToMessage: &telego.Message{MessageID: 30, Chat: telego.Chat{ID: 500}},
	}

	params := resolver.Resolve(context.Background(), message)
	if params == nil {
		t.Fatal("expected reply parameters")
	}
	if params.ChatID.ID != testChannelID || params.MessageID != 88 {
		t.Errorf("resolved to chat=%d message=%d, want chat=%d message=88", params.ChatID.ID, params.MessageID, testChannelID)
	}
}

func TestResolveDirectReplyViaLastEdit(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	mappings := newFakeMappings()
	if err := mappings.Create(&models.MessageMapping{
		SenderID:         1,
		UserChatID:       500,
		UserMessageID:    30,
		ChannelChatID:    testChannelID,
		ChannelMessageID: 88,
	}); err != nil {
		t.Fatalf("seeding mapping: %v", err)
	}
	if err := mappings.SetLastEditMessageID(500, 30, 45); err != nil {
		t.Fatalf("seeding last edit: %v", err)
	}
	resolver := NewReplyResolver(api, mappings, testChannelID)

	// Replying to the edit message resolves to the original mapping.
	message := &telego.Message{
		MessageID:      46,
		Chat:           telego.Chat{ID: 500},
		Text:           "follow-up",
		ReplyToMessage: &telego.Message{MessageID: 45, Chat: telego.Chat{ID: 500}},
	}

	params := resolver.Resolve(context.Background(), message)
	if params == nil || params.MessageID != 88 {
		t.Fatalf("resolved %+v, want channel message 88", params)
	}
}

func TestResolveDirectReplyForwardOriginFallback(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	resolver := NewReplyResolver(api, newFakeMappings(), testChannelID)

	message := &telego.Message{
		MessageID: 31,
		Chat:      telego.Chat{ID: 500},
		Text:      "follow-up",
		ReplyToMessage: &telego.Message{
			MessageID: 30,
			Chat:      telego.Chat{ID: 500},
			ForwardOrigin: &telego.MessageOriginChannel{
				Type:      telego.OriginTypeChannel,
				Chat:      telego.Chat{ID: testChannelID},
				MessageID: 99,
			},
		},
	}

	params := resolver.Resolve(context.Background(), message)
	if params == nil || params.ChatID.ID != testChannelID || params.MessageID != 99 {
		t.Fatalf("resolved %+v, want chat=%d message=99", params, testChannelID)
	}
}

func TestResolvePrivateDeepLink(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	resolver := NewReplyResolver(api, newFakeMappings(), testChannelID)

	message := &telego.Message{
		MessageID: 12,
		Chat:      telego.Chat{ID: 500},
		Text:      "re https://t.me/c/1234567890/55 agreed",
	}

	params := resolver.Resolve(context.Background(), message)
	if params == nil || params.ChatID.ID != testChannelID || params.MessageID != 55 {
		t.Fatalf("resolved %+v, want chat=%d message=55", params, testChannelID)
	}
}

func TestResolvePublicDeepLinkViaAlias(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	api.getChatResult = &telego.ChatFullInfo{ID: testChannelID}
	resolver := NewReplyResolver(api, newFakeMappings(), testChannelID)

	message := &telego.Message{
		MessageID: 12,
		Chat:      telego.Chat{ID: 500},
		Text:      "see https://t.me/mychannel/55",
	}

	params := resolver.Resolve(context.Background(), message)
	if params == nil || params.ChatID.ID != testChannelID || params.MessageID != 55 {
		t.Fatalf("resolved %+v, want chat=%d message=55", params, testChannelID)
	}
}

func TestResolveLinkIgnoredWhenStructuralReplyPresent(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	resolver := NewReplyResolver(api, newFakeMappings(), testChannelID)

	// A structural reply that resolves nowhere must not fall through to
	// the link in the text.
	message := &telego.Message{
		MessageID:      12,
		Chat:           telego.Chat{ID: 500},
		Text:           "see https://t.me/c/1234567890/55",
		ReplyToMessage: &telego.Message{MessageID: 3, Chat: telego.Chat{ID: 500}},
	}

	if params := resolver.Resolve(context.Background(), message); params != nil {
		t.Errorf("expected nil params, got %+v", params)
	}
}

func TestResolveNoContext(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	resolver := NewReplyResolver(api, newFakeMappings(), testChannelID)

	message := &telego.Message{
		MessageID: 12,
		Chat:      telego.Chat{ID: 500},
		Text:      "plain submission",
	}

	if params := resolver.Resolve(context.Background(), message); params != nil {
		t.Errorf("expected nil params, got %+v", params)
	}
}
