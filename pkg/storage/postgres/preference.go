package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PreferenceStore keeps the preferences document in preference_record.
type PreferenceStore struct {
	client *PostgresClient
	key    string
}

func NewPreferenceStore(client *PostgresClient, key string) *PreferenceStore {
	return &PreferenceStore{client: client, key: key}
}

func (s *PreferenceStore) Load(ctx context.Context) ([]byte, bool, error) {
	var rec PreferenceRecord
	err := s.client.DB.WithContext(ctx).
		Where("key = ?", s.key).
		First(&rec).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load preferences %q: %w", s.key, err)
	}
	return []byte(rec.Payload), true, nil
}

func (s *PreferenceStore) Save(ctx context.Context, data []byte) error {
	rec := PreferenceRecord{Key: s.key, Payload: string(data)}

	tx := s.client.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&rec)

	if tx.Error != nil {
		return fmt.Errorf("save preferences %q: %w", s.key, tx.Error)
	}
	return nil
}

func (s *PreferenceStore) Delete(ctx context.Context) error {
	return s.client.DB.WithContext(ctx).
		Where("key = ?", s.key).
		Delete(&PreferenceRecord{}).Error
}
