package history

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Recorder persists the outcome of a finished match. Lobby state itself is
// never persisted; this is write-only reporting.
type Recorder interface {
	RecordMatch(ctx context.Context, result MatchResult) error
}

type MatchResult struct {
	LobbyCode  string
	Difficulty string
	Duration   int // seconds
	EndedAt    time.Time
	Scores     []PlayerScore
}

type PlayerScore struct {
	PlayerID string
	Name     string
	Score    int
}

// Nop is the recorder used when no database is configured.
type Nop struct{}

func (Nop) RecordMatch(context.Context, MatchResult) error { return nil }

type matchRow struct {
	ID         uint   `gorm:"primaryKey"`
	LobbyCode  string `gorm:"size:4;index"`
	Difficulty string
	Duration   int
	EndedAt    time.Time
	Scores     []scoreRow `gorm:"foreignKey:MatchID"`
}

func (matchRow) TableName() string { return "matches" }

type scoreRow struct {
	ID       uint `gorm:"primaryKey"`
	MatchID  uint `gorm:"index"`
	PlayerID string
	Name     string
	Score    int
}

func (scoreRow) TableName() string { return "match_scores" }

// GormRecorder writes match results to Postgres.
type GormRecorder struct {
	db *gorm.DB
}

func NewGormRecorder(dsn string) (*GormRecorder, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&matchRow{}, &scoreRow{}); err != nil {
		return nil, err
	}
	return &GormRecorder{db: db}, nil
}

func (r *GormRecorder) RecordMatch(ctx context.Context, result MatchResult) error {
	row := matchRow{
		LobbyCode:  result.LobbyCode,
		Difficulty: result.Difficulty,
		Duration:   result.Duration,
		EndedAt:    result.EndedAt,
	}
	for _, s := range result.Scores {
		row.Scores = append(row.Scores, scoreRow{PlayerID: s.PlayerID, Name: s.Name, Score: s.Score})
	}
	return r.db.WithContext(ctx).Create(&row).Error
}
