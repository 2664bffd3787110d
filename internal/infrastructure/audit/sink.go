package audit

import (
	"context"

	"go.uber.org/zap"

	appinventory "github.com/stockledger/backend/internal/application/inventory"
)

// ZapAuditSink writes the audit trail to the structured log. The desktop
// deployment has no separate audit store, so the log is the trail.
type ZapAuditSink struct {
	logger *zap.Logger
	users  appinventory.UserLookup
}

// NewZapAuditSink creates an audit sink backed by the given logger
func NewZapAuditSink(logger *zap.Logger) *ZapAuditSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAuditSink{logger: logger.Named("audit")}
}

// WithUserLookup wires a resolver for actor display names
func (s *ZapAuditSink) WithUserLookup(users appinventory.UserLookup) *ZapAuditSink {
	s.users = users
	return s
}

// Record writes one audit entry. It never fails the calling operation.
func (s *ZapAuditSink) Record(ctx context.Context, entry appinventory.AuditEntry) {
	if entry.Actor.Name == "" && s.users != nil {
		if name, err := s.users.DisplayName(ctx, entry.Actor.UserID); err == nil {
			entry.Actor.Name = name
		}
	}
	s.logger.Info("audit",
		zap.String("actor_id", entry.Actor.UserID.String()),
		zap.String("actor_name", entry.Actor.Name),
		zap.String("action", entry.Action),
		zap.String("entity_type", entry.EntityType),
		zap.String("entity_id", entry.EntityID.String()),
		zap.String("detail", entry.Detail),
		zap.Any("before", entry.Before),
		zap.Any("after", entry.After),
		zap.Time("occurred_at", entry.OccurredAt),
	)
}

var _ appinventory.AuditSink = (*ZapAuditSink)(nil)
