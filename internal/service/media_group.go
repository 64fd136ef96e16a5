package service

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"tg-relay/internal/crash"
	"tg-relay/internal/logger"
	"tg-relay/internal/markup"
	"tg-relay/internal/models"
	"tg-relay/internal/storage"
)

const (
	// batchBufferTTL bounds how long a partially collected group can
	// live. Telegram delivers album parts within a couple of seconds;
	// anything older is abandoned.
	batchBufferTTL = 10 * time.Second

	// batchSettleDelay is how long after the first part the group is
	// considered complete.
	batchSettleDelay = 2 * time.Second

	// siblingTTL keeps album sibling lists around long enough for the
	// sender to come back and delete the whole post.
	siblingTTL = 7 * 24 * time.Hour

	sensitiveWarningHTML = "<blockquote>⚠️ The sender marked this content as sensitive.</blockquote>"
)

func batchKey(groupID string) string     { return "media_group:" + groupID }
func counterKey(groupID string) string   { return "media_group_counter:" + groupID }
func processedKey(groupID string) string { return "media_group_processed:" + groupID }

func siblingsKey(firstChannelMessageID int) string {
	return fmt.Sprintf("media_group_siblings:%d", firstChannelMessageID)
}

// BatchPart identifies one collected album part in the sender's chat.
type BatchPart struct {
	MessageID int   `json:"messageId"`
	ChatID    int64 `json:"chatId"`
}

// GroupSubmission is the accumulated state of one album, buffered in
// the ephemeral store between the first part arriving and the settle
// timer firing. Reply context is captured from the first part only.
type GroupSubmission struct {
	SenderID         int64       `json:"senderId"`
	ChatID           int64       `json:"chatId"`
	Parts            []BatchPart `json:"parts"`
	ReplyToMessageID int         `json:"replyToMessageId,omitempty"`
	ReplyToChatID    int64       `json:"replyToChatId,omitempty"`
	QuoteText        string      `json:"quoteText,omitempty"`
}

// MediaGroupCoordinator collects album parts, which Telegram delivers
// as independent updates, into one submission. The first part arms a
// settle timer; every part appends to a shared buffer; when the timer
// fires the whole buffer is posted as one media group. A processed
// flag written before posting makes stragglers no-ops, so the album is
// posted at most once even with concurrent webhook deliveries.
type MediaGroupCoordinator struct {
	api      BotAPI
	store    storage.EphemeralStore
	mappings MappingStore
	resolver *ReplyResolver
	gate     *NSFWGate

	channelID    int64
	enableEdit   bool
	enableDelete bool

	settleDelay time.Duration
	bufferTTL   time.Duration

	mu     sync.Mutex
	tasks  map[string]context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	// bufMu serializes the buffer read-modify-write so concurrent
	// webhook deliveries of the same album cannot lose parts.
	bufMu sync.Mutex
}

func NewMediaGroupCoordinator(api BotAPI, store storage.EphemeralStore, mappings MappingStore, resolver *ReplyResolver, gate *NSFWGate, channelID int64, enableEdit, enableDelete bool) *MediaGroupCoordinator {
	return &MediaGroupCoordinator{
		api:          api,
		store:        store,
		mappings:     mappings,
		resolver:     resolver,
		gate:         gate,
		channelID:    channelID,
		enableEdit:   enableEdit,
		enableDelete: enableDelete,
		settleDelay:  batchSettleDelay,
		bufferTTL:    batchBufferTTL,
		tasks:        make(map[string]context.CancelFunc),
	}
}

// AddPart registers one album part. The counter increment decides who
// owns the settle timer: only the part that moves it 0->1 spawns one.
// Parts arriving after the group was posted are dropped. The returned
// flag reports whether this part opened the group.
func (c *MediaGroupCoordinator) AddPart(ctx context.Context, message *telego.Message, senderID int64) (bool, error) {
	groupID := message.MediaGroupID
	if groupID == "" {
		return false, &ValidationError{Reason: "message is not part of a media group"}
	}

	if _, done, err := c.store.Get(ctx, processedKey(groupID)); err != nil {
		return false, fmt.Errorf("checking processed flag: %w", err)
	} else if done {
		logger.Debugf("[BATCH] group %s already posted, dropping late part %d", groupID, message.MessageID)
		return false, nil
	}

	count, err := c.store.Incr(ctx, counterKey(groupID))
	if err != nil {
		return false, fmt.Errorf("counting group part: %w", err)
	}
	if err := c.store.Expire(ctx, counterKey(groupID), c.bufferTTL); err != nil {
		return false, fmt.Errorf("expiring group counter: %w", err)
	}

	c.bufMu.Lock()
	defer c.bufMu.Unlock()

	submission, err := c.loadSubmission(ctx, groupID)
	if err != nil {
		return false, err
	}
	if submission == nil {
		submission = &GroupSubmission{SenderID: senderID, ChatID: message.Chat.ID}
	}
	if count == 1 {
		if params := c.resolver.Resolve(ctx, message); params != nil {
			submission.ReplyToMessageID = params.MessageID
			submission.ReplyToChatID = params.ChatID.ID
			submission.QuoteText = params.Quote
		}
	}
	submission.Parts = append(submission.Parts, BatchPart{MessageID: message.MessageID, ChatID: message.Chat.ID})

	if err := c.storeSubmission(ctx, groupID, submission); err != nil {
		return false, err
	}
	logger.Debugf("[BATCH] group %s part %d collected (count=%d)", groupID, message.MessageID, count)

	if count == 1 {
		c.spawnSettle(groupID)
	}
	return count == 1, nil
}

// Collecting reports whether parts of the group are already being
// gathered. Later parts of a collecting group bypass the rate check:
// the whole album spends one submission, recorded by its first part.
func (c *MediaGroupCoordinator) Collecting(ctx context.Context, groupID string) (bool, error) {
	_, ok, err := c.store.Get(ctx, counterKey(groupID))
	if err != nil {
		return false, fmt.Errorf("checking group counter: %w", err)
	}
	return ok, nil
}

func (c *MediaGroupCoordinator) loadSubmission(ctx context.Context, groupID string) (*GroupSubmission, error) {
	raw, ok, err := c.store.Get(ctx, batchKey(groupID))
	if err != nil {
		return nil, fmt.Errorf("loading group buffer: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var submission GroupSubmission
	if err := json.Unmarshal([]byte(raw), &submission); err != nil {
		return nil, fmt.Errorf("decoding group buffer: %w", err)
	}
	return &submission, nil
}

func (c *MediaGroupCoordinator) storeSubmission(ctx context.Context, groupID string, submission *GroupSubmission) error {
	data, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("encoding group buffer: %w", err)
	}
	if err := c.store.SetEx(ctx, batchKey(groupID), string(data), c.bufferTTL); err != nil {
		return fmt.Errorf("storing group buffer: %w", err)
	}
	return nil
}

func (c *MediaGroupCoordinator) spawnSettle(groupID string) {
	taskCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return
	}
	c.tasks[groupID] = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	crash.SafeGoroutine("media-group-settle", func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.tasks, groupID)
			c.mu.Unlock()
			cancel()
		}()

		timer := time.NewTimer(c.settleDelay)
		defer timer.Stop()
		select {
		case <-taskCtx.Done():
			logger.Infof("[BATCH] settle for group %s cancelled", groupID)
			return
		case <-timer.C:
		}

		// Posting uses its own deadline so shutdown cancellation only
		// stops timers that have not fired yet, never a send in flight.
		sendCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		c.settle(sendCtx, groupID)
	})
}

func (c *MediaGroupCoordinator) settle(ctx context.Context, groupID string) {
	// Mark processed before posting so parts that race with the settle
	// are dropped rather than double-counted.
	if err := c.store.SetEx(ctx, processedKey(groupID), "1", c.bufferTTL); err != nil {
		logger.Errorf("[BATCH] marking group %s processed: %v", groupID, err)
		return
	}

	submission, err := c.loadSubmission(ctx, groupID)
	if err != nil {
		logger.Errorf("[BATCH] group %s: %v", groupID, err)
		return
	}
	if submission == nil || len(submission.Parts) == 0 {
		logger.Warningf("[BATCH] group %s settled with no buffered parts", groupID)
		return
	}

	if c.gate.Enabled() && !c.gate.Authoritative() {
		c.promptDecision(ctx, submission)
	} else {
		classify := c.gate.Enabled() && c.gate.Authoritative()
		if err := c.SendToChannel(ctx, submission, false, false, classify); err != nil {
			logger.Errorf("[BATCH] posting group %s: %v", groupID, err)
			c.notifyFailure(ctx, submission)
		}
	}

	if err := c.store.Delete(ctx, batchKey(groupID), counterKey(groupID)); err != nil {
		logger.Warningf("[BATCH] cleaning up group %s: %v", groupID, err)
	}
}

func (c *MediaGroupCoordinator) promptDecision(ctx context.Context, submission *GroupSubmission) {
	messageIDs := make([]int, 0, len(submission.Parts))
	for _, part := range submission.Parts {
		messageIDs = append(messageIDs, part.MessageID)
	}
	decision := &PendingDecision{
		SenderID:         submission.SenderID,
		ChatID:           submission.ChatID,
		MessageIDs:       messageIDs,
		IsGroup:          true,
		ReplyToMessageID: submission.ReplyToMessageID,
		ReplyToChatID:    submission.ReplyToChatID,
		QuoteText:        submission.QuoteText,
	}
	if err := c.gate.StorePending(ctx, decision); err != nil {
		logger.Errorf("[BATCH] suspending group for decision: %v", err)
		c.notifyFailure(ctx, submission)
		return
	}
	_, err := c.api.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: submission.ChatID},
		Text:   "Does this album contain sensitive content?",
		ReplyParameters: &telego.ReplyParameters{
			MessageID: messageIDs[0],
		},
		ReplyMarkup: SensitivePromptKeyboard(messageIDs[0]),
	})
	if err != nil {
		logger.Errorf("[BATCH] sending decision prompt to chat %d: %v", submission.ChatID, err)
	}
}

func (c *MediaGroupCoordinator) notifyFailure(ctx context.Context, submission *GroupSubmission) {
	_, err := c.api.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: submission.ChatID},
		Text:   "❌ Could not post your album. Please try again.",
	})
	if err != nil {
		logger.Warningf("[BATCH] notifying chat %d about failure: %v", submission.ChatID, err)
	}
}

// SendToChannel posts a collected album to the channel as one media
// group, records a mapping row per part, stores the sibling list and
// confirms to the sender. Each part is briefly forwarded back to the
// sender's chat to obtain a materialized message with file identifiers,
// then the probe is deleted. When classifyFirst is set the automatic
// classifier runs on the first probe and decides spoiler and warning.
func (c *MediaGroupCoordinator) SendToChannel(ctx context.Context, submission *GroupSubmission, hasSpoiler, addWarning, classifyFirst bool) error {
	media := make([]telego.InputMedia, 0, len(submission.Parts))
	captions := make([]renderedText, 0, len(submission.Parts))
	userMessageIDs := make([]int, 0, len(submission.Parts))

	for i, part := range submission.Parts {
		probe, err := c.api.ForwardMessage(ctx, &telego.ForwardMessageParams{
			ChatID:              telego.ChatID{ID: submission.ChatID},
			FromChatID:          telego.ChatID{ID: part.ChatID},
			MessageID:           part.MessageID,
			DisableNotification: true,
		})
		if err != nil {
			return &PostError{Kind: "media_group", Err: fmt.Errorf("materializing part %d: %w", part.MessageID, err)}
		}
		if i == 0 && classifyFirst {
			if spoiler, reason := c.gate.Classify(ctx, probe); spoiler {
				hasSpoiler = true
				addWarning = true
				logger.Infof("[BATCH] classifier flagged group from sender %d: %s", submission.SenderID, reason)
			}
		}
		item, caption := inputMediaFor(probe, hasSpoiler)
		if deleteErr := c.api.DeleteMessage(ctx, &telego.DeleteMessageParams{
			ChatID:    telego.ChatID{ID: submission.ChatID},
			MessageID: probe.MessageID,
		}); deleteErr != nil {
			logger.Warningf("[BATCH] deleting probe %d: %v", probe.MessageID, deleteErr)
		}
		if item == nil {
			logger.Warningf("[BATCH] skipping unsupported album part %d", part.MessageID)
			continue
		}
		media = append(media, item)
		captions = append(captions, caption)
		userMessageIDs = append(userMessageIDs, part.MessageID)
	}
	if len(media) == 0 {
		return &ValidationError{Reason: "album has no relayable parts"}
	}

	var replyParams *telego.ReplyParameters
	if submission.ReplyToMessageID != 0 {
		replyParams = buildReplyParameters(submission.ReplyToChatID, submission.ReplyToMessageID, submission.QuoteText)
	}

	applyAlbumCaptions(media, captions, addWarning, nil)

	sent, err := c.api.SendMediaGroup(ctx, &telego.SendMediaGroupParams{
		ChatID:          telego.ChatID{ID: c.channelID},
		Media:           media,
		ReplyParameters: replyParams,
	})
	if err != nil && isInvalidReplyTarget(err) && replyParams != nil {
		// Reply target is gone: keep the reference as a link in the
		// first caption instead.
		applyAlbumCaptions(media, captions, addWarning, replyParams)
		sent, err = c.api.SendMediaGroup(ctx, &telego.SendMediaGroupParams{
			ChatID: telego.ChatID{ID: c.channelID},
			Media:  media,
		})
	}
	if err != nil {
		return &PostError{Kind: "media_group", Err: err}
	}

	channelIDs := make([]int, 0, len(sent))
	for i, message := range sent {
		channelIDs = append(channelIDs, message.MessageID)
		if i >= len(userMessageIDs) {
			continue
		}
		mapping := &models.MessageMapping{
			SenderID:         submission.SenderID,
			UserChatID:       submission.ChatID,
			UserMessageID:    userMessageIDs[i],
			ChannelChatID:    c.channelID,
			ChannelMessageID: message.MessageID,
		}
		if err := c.mappings.Create(mapping); err != nil {
			logger.Errorf("[BATCH] recording mapping for part %d: %v", userMessageIDs[i], err)
		}
	}
	if len(channelIDs) > 0 {
		if err := c.storeSiblings(ctx, channelIDs); err != nil {
			logger.Warningf("[BATCH] storing sibling list: %v", err)
		}
		keyboard := MessageActionsKeyboard(channelIDs[0], true, true, c.enableEdit, c.enableDelete)
		sendConfirmation(ctx, c.api, submission.ChatID, userMessageIDs[0], c.channelID, channelIDs[0], keyboard)
	}
	logger.Infof("[BATCH] posted album of %d parts from sender %d", len(channelIDs), submission.SenderID)
	return nil
}

func (c *MediaGroupCoordinator) storeSiblings(ctx context.Context, channelMessageIDs []int) error {
	data, err := json.Marshal(channelMessageIDs)
	if err != nil {
		return err
	}
	return c.store.SetEx(ctx, siblingsKey(channelMessageIDs[0]), string(data), siblingTTL)
}

// Siblings returns the channel message ids of an album posted earlier,
// keyed by its first channel message id. ok is false when the list was
// never stored or has expired.
func (c *MediaGroupCoordinator) Siblings(ctx context.Context, firstChannelMessageID int) ([]int, bool, error) {
	raw, ok, err := c.store.Get(ctx, siblingsKey(firstChannelMessageID))
	if err != nil || !ok {
		return nil, false, err
	}
	var ids []int
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, false, fmt.Errorf("decoding sibling list: %w", err)
	}
	return ids, true, nil
}

// ClearSiblings drops the sibling list after the album was deleted.
func (c *MediaGroupCoordinator) ClearSiblings(ctx context.Context, firstChannelMessageID int) error {
	return c.store.Delete(ctx, siblingsKey(firstChannelMessageID))
}

// Shutdown cancels settle timers that have not fired and waits, up to
// the context deadline, for in-flight posts to finish. Buffers stay in
// the ephemeral store and expire on their own.
func (c *MediaGroupCoordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	c.closed = true
	for groupID, cancel := range c.tasks {
		logger.Infof("[BATCH] cancelling settle task for group %s", groupID)
		cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warningf("[BATCH] shutdown deadline reached with settle tasks still running")
	}
}

// renderedText is a caption already converted to HTML, or empty.
type renderedText struct {
	HTML string
}

// inputMediaFor converts a materialized message into an album item.
// Returns nil for kinds Telegram does not accept in media groups.
// The caption is returned separately so reply and warning prefixes can
// be applied afterwards.
func inputMediaFor(message *telego.Message, hasSpoiler bool) (telego.InputMedia, renderedText) {
	caption := renderCaptionHTML(message)
	switch {
	case len(message.Photo) > 0:
		photo := message.Photo[len(message.Photo)-1]
		return &telego.InputMediaPhoto{
			Type:       telego.MediaTypePhoto,
			Media:      telego.InputFile{FileID: photo.FileID},
			HasSpoiler: hasSpoiler,
		}, caption
	case message.Video != nil:
		return &telego.InputMediaVideo{
			Type:       telego.MediaTypeVideo,
			Media:      telego.InputFile{FileID: message.Video.FileID},
			HasSpoiler: hasSpoiler,
		}, caption
	case message.Document != nil:
		return &telego.InputMediaDocument{
			Type:  telego.MediaTypeDocument,
			Media: telego.InputFile{FileID: message.Document.FileID},
		}, caption
	default:
		return nil, renderedText{}
	}
}

// renderCaptionHTML converts a message caption to HTML, preserving
// formatting entities when present and escaping plain text otherwise.
func renderCaptionHTML(message *telego.Message) renderedText {
	if message.Caption == "" {
		return renderedText{}
	}
	if len(message.CaptionEntities) > 0 {
		return renderedText{HTML: markup.EntitiesToHTML(message.Caption, message.CaptionEntities)}
	}
	return renderedText{HTML: html.EscapeString(message.Caption)}
}

// applyAlbumCaptions writes captions onto the album items. The first
// item additionally carries the warning blockquote and, when the reply
// could not be attached structurally, a link to the referenced
// message.
func applyAlbumCaptions(media []telego.InputMedia, captions []renderedText, addWarning bool, foldedReply *telego.ReplyParameters) {
	for i, item := range media {
		var parts []string
		if i == 0 {
			if foldedReply != nil {
				link := BuildMessageLink(foldedReply.ChatID.ID, foldedReply.MessageID)
				parts = append(parts, fmt.Sprintf("<b>↩️ <a href=\"%s\">Replying to message</a></b>", link))
			}
			if addWarning {
				parts = append(parts, sensitiveWarningHTML)
			}
		}
		if captions[i].HTML != "" {
			parts = append(parts, captions[i].HTML)
		}
		caption := strings.Join(parts, "\n")
		parseMode := ""
		if caption != "" {
			parseMode = telego.ModeHTML
		}
		switch typed := item.(type) {
		case *telego.InputMediaPhoto:
			typed.Caption = caption
			typed.ParseMode = parseMode
		case *telego.InputMediaVideo:
			typed.Caption = caption
			typed.ParseMode = parseMode
		case *telego.InputMediaDocument:
			typed.Caption = caption
			typed.ParseMode = parseMode
		}
	}
}
