package handler

import (
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-relay/internal/config"
	"tg-relay/internal/service"
)

// Handlers routes incoming updates to the relay services. All
// dependencies are injected; nothing is resolved from global state.
type Handlers struct {
	bot         *telego.Bot
	cfg         *config.Config
	senders     service.SenderStore
	mappings    service.MappingStore
	forwarder   *service.Forwarder
	coordinator *service.MediaGroupCoordinator
	gate        *service.NSFWGate
	editor      *service.EditSession
}

func New(bot *telego.Bot, cfg *config.Config, senders service.SenderStore, mappings service.MappingStore, forwarder *service.Forwarder, coordinator *service.MediaGroupCoordinator, gate *service.NSFWGate, editor *service.EditSession) *Handlers {
	return &Handlers{
		bot:         bot,
		cfg:         cfg,
		senders:     senders,
		mappings:    mappings,
		forwarder:   forwarder,
		coordinator: coordinator,
		gate:        gate,
		editor:      editor,
	}
}

// Setup registers all message and callback handlers
func (h *Handlers) Setup(bh *th.BotHandler) {
	bh.HandleMessage(func(ctx *th.Context, message telego.Message) error {
		ok, err := h.handleCommand(ctx, message)
		if ok {
			return err
		}
		return h.handleIncomingMessage(ctx, message)
	})

	bh.HandleCallbackQuery(func(ctx *th.Context, query telego.CallbackQuery) error {
		return h.handleCallbackQuery(ctx, query)
	})
}
