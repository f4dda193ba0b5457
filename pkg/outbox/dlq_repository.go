package outbox

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/pagination"
)

const maxDLQErrorLen = 1024

// ErrNotInDLQ is returned when a requeue names an event that was never parked.
var ErrNotInDLQ = errors.New("event not in dlq")

// DLQRepository stores events the publisher gave up on and lets operators
// push them back onto the outbox.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx parks an entry. Only the latest failure per event is kept.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	if err := tx.Where("event_id = ?", entry.EventID).Delete(&models.OutboxDLQ{}).Error; err != nil {
		return err
	}
	return tx.Create(&entry).Error
}

func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var dlq models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&dlq).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dlq, nil
}

// List pages parked events newest first. A zero reason lists every reason.
func (r *DLQRepository) List(ctx context.Context, reason enums.OutboxDLQErrorReason, params pagination.Params) ([]models.OutboxDLQ, string, error) {
	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	query := r.db.WithContext(ctx)
	if reason != "" {
		query = query.Where("error_reason = ?", reason)
	}
	var rows []models.OutboxDLQ
	if err := pagination.Keyset(query, "failed_at", after, params.Limit).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Trim(rows, params.Limit, func(d models.OutboxDLQ) pagination.Cursor {
		return pagination.Cursor{At: d.FailedAt, ID: d.ID}
	})
	if next == nil {
		return page, "", nil
	}
	return page, pagination.EncodeCursor(*next), nil
}

// CountByReason reports how many events are parked per failure reason.
func (r *DLQRepository) CountByReason(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error) {
	var rows []struct {
		ErrorReason enums.OutboxDLQErrorReason
		Total       int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.OutboxDLQ{}).
		Select("error_reason, COUNT(*) AS total").
		Group("error_reason").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[enums.OutboxDLQErrorReason]int64, len(rows))
	for _, row := range rows {
		counts[row.ErrorReason] = row.Total
	}
	return counts, nil
}

// RequeueTx resets the parked outbox row so the publisher picks it up again,
// recreating it from the DLQ payload when the row was already pruned, then
// removes the DLQ entry. Rows published in the meantime are left untouched.
func (r *DLQRepository) RequeueTx(tx *gorm.DB, eventID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	var entry models.OutboxDLQ
	if err := tx.Where("event_id = ?", eventID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotInDLQ
		}
		return err
	}

	var existing models.OutboxEvent
	err := tx.Where("id = ?", eventID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		event := entry.Restore()
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
	case err != nil:
		return err
	case !existing.IsPublished():
		if err := tx.Model(&models.OutboxEvent{}).
			Where("id = ?", eventID).
			Updates(map[string]any{
				"attempt_count": 0,
				"last_error":    nil,
			}).Error; err != nil {
			return err
		}
	}
	return tx.Delete(&entry).Error
}

func truncateDLQError(message string) string {
	if len(message) <= maxDLQErrorLen {
		return message
	}
	cut := message[:maxDLQErrorLen]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
