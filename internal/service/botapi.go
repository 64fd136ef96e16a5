package service

import (
	"context"

	"github.com/mymmrac/telego"
)

// BotAPI is the slice of the Telegram client the relay pipeline uses.
// *telego.Bot satisfies it; tests substitute fakes. Injected explicitly
// everywhere; nothing resolves the client from global state.
type BotAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	CopyMessage(ctx context.Context, params *telego.CopyMessageParams) (*telego.MessageID, error)
	ForwardMessage(ctx context.Context, params *telego.ForwardMessageParams) (*telego.Message, error)
	DeleteMessage(ctx context.Context, params *telego.DeleteMessageParams) error
	SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error)
	SendVideo(ctx context.Context, params *telego.SendVideoParams) (*telego.Message, error)
	SendAnimation(ctx context.Context, params *telego.SendAnimationParams) (*telego.Message, error)
	SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error)
	SendPoll(ctx context.Context, params *telego.SendPollParams) (*telego.Message, error)
	SendMediaGroup(ctx context.Context, params *telego.SendMediaGroupParams) ([]telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	EditMessageCaption(ctx context.Context, params *telego.EditMessageCaptionParams) (*telego.Message, error)
	GetChat(ctx context.Context, params *telego.GetChatParams) (*telego.ChatFullInfo, error)
}

// ContentKind is the closed set of relayable content kinds. The
// dispatcher switches exhaustively over it so a new kind cannot be
// silently unhandled.
type ContentKind int

const (
	KindUnsupported ContentKind = iota
	KindText
	KindPhoto
	KindVideo
	KindAnimation
	KindDocument
	KindPoll
	KindSticker
)

func (k ContentKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	case KindAnimation:
		return "animation"
	case KindDocument:
		return "document"
	case KindPoll:
		return "poll"
	case KindSticker:
		return "sticker"
	default:
		return "unsupported"
	}
}

// KindOf classifies a message into its content kind.
func KindOf(message *telego.Message) ContentKind {
	switch {
	case message.Text != "":
		return KindText
	case len(message.Photo) > 0:
		return KindPhoto
	case message.Video != nil:
		return KindVideo
	case message.Animation != nil:
		return KindAnimation
	case message.Document != nil:
		return KindDocument
	case message.Poll != nil:
		return KindPoll
	case message.Sticker != nil:
		return KindSticker
	default:
		return KindUnsupported
	}
}

// HasVisualMedia reports whether the message carries spoiler-capable
// media (photo, video or animation).
func HasVisualMedia(message *telego.Message) bool {
	return len(message.Photo) > 0 || message.Video != nil || message.Animation != nil
}
