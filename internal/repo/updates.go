package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/hr-intake-bot/internal/domain"
)

var (
	// ErrDuplicate indicates that the update id was already handled and its
	// record has not expired yet.
	ErrDuplicate = errors.New("duplicate")

	// ErrNotFound aliases gorm.ErrRecordNotFound.
	ErrNotFound = gorm.ErrRecordNotFound
)

// MarkUpdate records updateID as handled until now+ttl. It returns
// ErrDuplicate when an unexpired record already exists. An expired record is
// taken over, so a very late re-delivery is processed again.
func MarkUpdate(ctx context.Context, db *gorm.DB, updateID int64, kind string, ttl time.Duration, now time.Time) error {
	now = now.UTC()
	rec := &domain.ProcessedUpdate{
		UpdateID:  updateID,
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := db.WithContext(ctx).Create(rec).Error
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return err
	}

	res := db.WithContext(ctx).
		Model(&domain.ProcessedUpdate{}).
		Where("update_id = ? AND expires_at <= ?", updateID, now).
		Updates(map[string]any{"kind": kind, "created_at": now, "expires_at": rec.ExpiresAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// GetUpdate returns the record of updateID or ErrNotFound.
func GetUpdate(ctx context.Context, db *gorm.DB, updateID int64) (*domain.ProcessedUpdate, error) {
	var rec domain.ProcessedUpdate
	err := db.WithContext(ctx).Where("update_id = ?", updateID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PurgeExpired deletes records whose ExpiresAt is not after now and returns
// how many were removed.
func PurgeExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.ProcessedUpdate{})
	return res.RowsAffected, res.Error
}

// KindCount is one row of UpdateCounts.
type KindCount struct {
	Kind  string `json:"kind"`
	Count int64  `json:"count"`
}

// UpdateCounts returns the number of live records per update kind, ordered
// by kind.
func UpdateCounts(ctx context.Context, db *gorm.DB, now time.Time) ([]KindCount, error) {
	var rows []KindCount
	err := db.WithContext(ctx).
		Model(&domain.ProcessedUpdate{}).
		Select("kind, COUNT(*) AS count").
		Where("expires_at > ?", now.UTC()).
		Group("kind").
		Order("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "primary key")
}
