// Package kafkahook streams ledger events to a Kafka topic as JSON. Each
// message is keyed by child id so one child's events stay ordered within
// a partition.
package kafkahook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xraph/starledger/balance"
	"github.com/xraph/starledger/credit"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/guard"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/plugin"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/settlement"
	"github.com/xraph/starledger/transaction"
)

var (
	_ plugin.Plugin                    = (*Extension)(nil)
	_ plugin.OnShutdown                = (*Extension)(nil)
	_ plugin.OnFamilyCreated           = (*Extension)(nil)
	_ plugin.OnMemberAdded             = (*Extension)(nil)
	_ plugin.OnStarTransactionCreated  = (*Extension)(nil)
	_ plugin.OnStarTransactionReviewed = (*Extension)(nil)
	_ plugin.OnGuardRejected           = (*Extension)(nil)
	_ plugin.OnRedemptionCreated       = (*Extension)(nil)
	_ plugin.OnRedemptionReviewed      = (*Extension)(nil)
	_ plugin.OnRedemptionFulfilled     = (*Extension)(nil)
	_ plugin.OnCreditTransaction       = (*Extension)(nil)
	_ plugin.OnSettlementCompleted     = (*Extension)(nil)
	_ plugin.OnBalanceDrift            = (*Extension)(nil)
)

// Event types written to the topic.
const (
	EventFamilyCreated         = "family.created"
	EventMemberAdded           = "member.added"
	EventStarTransactionCreate = "star_transaction.created"
	EventStarTransactionReview = "star_transaction.reviewed"
	EventGuardRejected         = "guard.rejected"
	EventRedemptionCreated     = "redemption.created"
	EventRedemptionReviewed    = "redemption.reviewed"
	EventRedemptionFulfilled   = "redemption.fulfilled"
	EventCreditTransaction     = "credit.transaction"
	EventSettlementCompleted   = "settlement.completed"
	EventBalanceDrift          = "balance.drift"
)

// Writer is the subset of *kafka.Writer the extension needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the JSON body of every message.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	FamilyID   string    `json:"family_id,omitempty"`
	ChildID    string    `json:"child_id,omitempty"`
	Data       any       `json:"data"`
}

// Extension publishes ledger events through a Writer.
type Extension struct {
	writer Writer
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for publish failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// NewWriter builds a kafka-go writer for the given brokers and topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// New creates an Extension writing through w.
func New(w Writer, opts ...Option) *Extension {
	e := &Extension{writer: w, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "kafka-hook" }

// OnShutdown closes the writer, flushing buffered messages.
func (e *Extension) OnShutdown(_ context.Context) error {
	return e.writer.Close()
}

func (e *Extension) OnFamilyCreated(ctx context.Context, f *family.Family) error {
	return e.publish(ctx, EventFamilyCreated, f.ID, id.Nil, f)
}

func (e *Extension) OnMemberAdded(ctx context.Context, m *family.Member) error {
	return e.publish(ctx, EventMemberAdded, m.FamilyID, m.ID, m)
}

func (e *Extension) OnStarTransactionCreated(ctx context.Context, t *transaction.StarTransaction) error {
	return e.publish(ctx, EventStarTransactionCreate, t.FamilyID, t.ChildID, t)
}

func (e *Extension) OnStarTransactionReviewed(ctx context.Context, t *transaction.StarTransaction) error {
	return e.publish(ctx, EventStarTransactionReview, t.FamilyID, t.ChildID, t)
}

func (e *Extension) OnGuardRejected(ctx context.Context, childID id.MemberID, questID id.QuestID, gerr *guard.Error) error {
	return e.publish(ctx, EventGuardRejected, id.Nil, childID, map[string]any{
		"quest_id":            questID.String(),
		"rule":                string(gerr.Rule),
		"retry_after_seconds": gerr.RetryAfter.Seconds(),
	})
}

func (e *Extension) OnRedemptionCreated(ctx context.Context, r *redemption.Redemption) error {
	return e.publish(ctx, EventRedemptionCreated, r.FamilyID, r.ChildID, r)
}

func (e *Extension) OnRedemptionReviewed(ctx context.Context, r *redemption.Redemption) error {
	return e.publish(ctx, EventRedemptionReviewed, r.FamilyID, r.ChildID, r)
}

func (e *Extension) OnRedemptionFulfilled(ctx context.Context, r *redemption.Redemption) error {
	return e.publish(ctx, EventRedemptionFulfilled, r.FamilyID, r.ChildID, r)
}

func (e *Extension) OnCreditTransaction(ctx context.Context, t *credit.Transaction) error {
	return e.publish(ctx, EventCreditTransaction, t.FamilyID, t.ChildID, t)
}

func (e *Extension) OnSettlementCompleted(ctx context.Context, s *settlement.Settlement) error {
	return e.publish(ctx, EventSettlementCompleted, s.FamilyID, s.ChildID, s)
}

func (e *Extension) OnBalanceDrift(ctx context.Context, cached, actual *balance.Balance) error {
	return e.publish(ctx, EventBalanceDrift, id.Nil, actual.ChildID, map[string]any{
		"cached": cached,
		"actual": actual,
	})
}

// publish writes one event. The hook error is returned so the registry
// logs it; the ledger write has already committed.
func (e *Extension) publish(ctx context.Context, typ string, familyID, childID id.ID, data any) error {
	env := Envelope{
		Type:       typ,
		OccurredAt: e.now().UTC(),
		FamilyID:   familyID.String(),
		ChildID:    childID.String(),
		Data:       data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kafka_hook: encode %s: %w", typ, err)
	}

	key := childID.String()
	if key == "" {
		key = familyID.String()
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(typ)},
		},
	}
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		e.logger.Warn("kafka_hook: publish failed", "type", typ, "key", key, "error", err)
		return fmt.Errorf("kafka_hook: publish %s: %w", typ, err)
	}
	return nil
}
