package audit

import (
	"context"
	"errors"

	"github.com/peerloop/peerloop/model"
	"gorm.io/gorm"
)

var ErrVersionTaken = errors.New("event version already appended")

// Repository gives append and query-latest access to the event log. The log
// is append-only: there is deliberately no update or delete operation.
type Repository interface {
	Append(ctx context.Context, event *model.AuditEvent) error
	// AppendVersioned appends an event carrying a version number. A
	// concurrent append of the same (user, action, version) hits the
	// composite unique index and returns ErrVersionTaken, which makes the
	// append a compare-and-swap against the latest version.
	AppendVersioned(ctx context.Context, event *model.AuditEvent, version uint) error
	LatestByAction(ctx context.Context, userID uint, action Action) (*model.AuditEvent, error)
	FindByUser(ctx context.Context, userID uint, limit int) ([]*model.AuditEvent, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, event *model.AuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *auditRepository) AppendVersioned(ctx context.Context, event *model.AuditEvent, version uint) error {
	event.Version = &version
	err := r.db.WithContext(ctx).Create(event).Error
	if err != nil && isDuplicateKeyError(err) {
		return ErrVersionTaken
	}
	return err
}

func (r *auditRepository) LatestByAction(ctx context.Context, userID uint, action Action) (*model.AuditEvent, error) {
	var event model.AuditEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND action = ?", userID, string(action)).
		Order("id DESC").
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *auditRepository) FindByUser(ctx context.Context, userID uint, limit int) ([]*model.AuditEvent, error) {
	var events []*model.AuditEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
