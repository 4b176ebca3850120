package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"inkblog/database"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps sessions in the sessions table.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) Load(ctx context.Context, token string) (*Data, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	var row database.Session
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	data := &Data{CSRFToken: row.CSRFToken, ExpiresAt: row.ExpiresAt}
	if row.UserID != nil {
		data.UserID = *row.UserID
	}
	if len(row.Flashes) > 0 {
		if err := json.Unmarshal(row.Flashes, &data.Flashes); err != nil {
			return nil, fmt.Errorf("decode session flashes: %w", err)
		}
	}

	if data.Expired(s.now()) {
		if err := s.Delete(ctx, token); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *GormStore) Save(ctx context.Context, token string, data *Data) error {
	flashes, err := json.Marshal(data.Flashes)
	if err != nil {
		return fmt.Errorf("encode session flashes: %w", err)
	}

	row := database.Session{
		Token:     token,
		CSRFToken: data.CSRFToken,
		Flashes:   datatypes.JSON(flashes),
		ExpiresAt: data.ExpiresAt,
	}
	if data.UserID != 0 {
		userID := data.UserID
		row.UserID = &userID
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "csrf_token", "flashes", "expires_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	err := s.db.WithContext(ctx).Where("token = ?", token).Delete(&database.Session{}).Error
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes every session past its expiry and reports how many were removed.
func (s *GormStore) DeleteExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&database.Session{})
	return result.RowsAffected, result.Error
}
