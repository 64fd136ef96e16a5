package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mymmrac/telego"

	"tg-relay/internal/logger"
	"tg-relay/internal/storage"
)

// pendingDecisionTTL must outlive plausible human response time.
const pendingDecisionTTL = 300 * time.Second

// Classifier is the pluggable boolean NSFW check. Implementing actual
// detection is out of scope; deployments plug in their own.
type Classifier interface {
	Check(ctx context.Context, message *telego.Message) (safe bool, reason string, err error)
}

/// AlwaysSafeClassifier is the default classifier: everything passes.
type AlwaysSafeClassifier struct{}

func (AlwaysSafeClassifier) Check(context.Context, *telego.Message) (bool, string, error) {
	return true, "", nil
}

// PendingDecision is the suspended submission context stored while a
// human decision is outstanding, keyed by the first content identifier.
type PendingDecision struct {
	SenderID         int64  `json:"senderId"`
	ChatID           int64  `json:"chatId"`
	MessageIDs       []int  `json:"messageIds"`
	IsGroup          bool   `json:"isGroup"`
	ReplyToMessageID int    `json:"replyToMessageId,omitempty"`
	ReplyToChatID    int64  `json:"replyToChatId,omitempty"`
	QuoteText        string `json:"quoteText,omitempty"`
}

// NSFWGate decides whether a unit is dispatched immediately (with or
// without a spoiler) or suspended behind a human decision step.
type NSFWGate struct {
	store      storage.EphemeralStore
	classifier Classifier
	enabled    bool
	enforced   bool
}

// NewNSFWGate builds the gate. When enforced, the classifier is
// authoritative and no human step happens.
func NewNSFWGate(store storage.EphemeralStore, classifier Classifier, enabled, enforced bool) *NSFWGate {
	if classifier == nil {
		classifier = AlwaysSafeClassifier{}
	}
	return &NSFWGate{store: store, classifier: classifier, enabled: enabled, enforced: enforced}
}

// Enabled reports whether the gate applies at all.
func (g *NSFWGate) Enabled() bool { return g.enabled }

// Authoritative reports whether the classifier decides without a
// human step.
func (g *NSFWGate) Authoritative() bool { return g.enforced }

// Classify runs the automatic classifier. A positive (sensitive)
// result means the unit proceeds with a spoiler and warning
// annotation. Classifier errors fail open: content is treated as safe
// rather than lost.
func (g *NSFWGate) Classify(ctx context.Context, message *telego.Message) (spoiler bool, reason string) {
	safe, reason, err := g.classifier.Check(ctx, message)
	if err != nil {
		logger.Errorf("[NSFW] classifier error for message %d: %v", message.MessageID, err)
		return false, ""
	}
	return !safe, reason
}

func pendingKey(firstMessageID int) string {
	return fmt.Sprintf("nsfw_pending:%d", firstMessageID)
}

// StorePending suspends a submission behind the decision prompt.
func (g *NSFWGate) StorePending(ctx context.Context, decision *PendingDecision) error {
	if len(decision.MessageIDs) == 0 {
		return &ValidationError{Reason: "pending decision without message ids"}
	}
	data, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("encoding pending decision: %w", err)
	}
	key := pendingKey(decision.MessageIDs[0])
	if err := g.store.SetEx(ctx, key, string(data), pendingDecisionTTL); err != nil {
		return fmt.Errorf("storing pending decision: %w", err)
	}
	logger.Infof("[NSFW] stored pending decision for message %d (%d parts)", decision.MessageIDs[0], len(decision.MessageIDs))
	return nil
}

// GetPending retrieves a suspended submission. ErrGateExpired means
// the entry's time-to-live has passed (or the token never existed).
func (g *NSFWGate) GetPending(ctx context.Context, firstMessageID int) (*PendingDecision, error) {
	raw, ok, err := g.store.Get(ctx, pendingKey(firstMessageID))
	if err != nil {
		return nil, fmt.Errorf("loading pending decision: %w", err)
	}
	if !ok {
		return nil, ErrGateExpired
	}
	var decision PendingDecision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return nil, fmt.Errorf("decoding pending decision: %w", err)
	}
	return &decision, nil
}

// ClearPending removes the entry once the decision was acted on.
func (g *NSFWGate) ClearPending(ctx context.Context, firstMessageID int) error {
	return g.store.Delete(ctx, pendingKey(firstMessageID))
}
