package postgres

import "time"

// PreferenceRecord stores one serialized preferences document per key.
type PreferenceRecord struct {
	ID uint `gorm:"primaryKey"`

	Key     string `gorm:"type:text;not null;uniqueIndex:idx_preference_key"`
	Payload string `gorm:"type:text;not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the default table name for GORM.
func (PreferenceRecord) TableName() string {
	return "preference_record"
}
