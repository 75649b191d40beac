package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/WatchParty/internal/config"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RoomModel is the relational row of a room. Movie and participants are
// JSON columns.
type RoomModel struct {
	Code             string               `gorm:"primaryKey;size:6"`
	HostID           string               `gorm:"size:64;not null;index"`
	Movie            *domain.Movie        `gorm:"serializer:json"`
	IsPrivate        bool                 `gorm:"not null;default:false"`
	SubtitlesEnabled bool                 `gorm:"not null;default:false"`
	IsPlaying        bool                 `gorm:"not null;default:false"`
	CurrentTime      float64              `gorm:"not null;default:0"`
	Participants     []domain.Participant `gorm:"serializer:json"`
	CreatedAt        time.Time
	LastActivity     time.Time `gorm:"index"`
}

func (RoomModel) TableName() string { return "rooms" }

func roomToModel(r *domain.Room) *RoomModel {
	return &RoomModel{
		Code:             string(r.Code),
		HostID:           string(r.HostID),
		Movie:            r.Movie.Clone(),
		IsPrivate:        r.IsPrivate,
		SubtitlesEnabled: r.SubtitlesEnabled,
		IsPlaying:        r.IsPlaying,
		CurrentTime:      r.CurrentTime,
		Participants:     append([]domain.Participant(nil), r.Participants...),
		CreatedAt:        r.CreatedAt,
		LastActivity:     r.LastActivity,
	}
}

func (m *RoomModel) toDomain() *domain.Room {
	r := &domain.Room{
		Code:             domain.RoomCode(m.Code),
		HostID:           domain.UserID(m.HostID),
		Movie:            m.Movie.Clone(),
		IsPrivate:        m.IsPrivate,
		SubtitlesEnabled: m.SubtitlesEnabled,
		IsPlaying:        m.IsPlaying,
		CurrentTime:      m.CurrentTime,
		Participants:     append([]domain.Participant{}, m.Participants...),
		CreatedAt:        m.CreatedAt.UTC(),
		LastActivity:     m.LastActivity.UTC(),
	}
	r.Normalize()
	return r
}

// OpenDatabase connects gorm for the sqlite, postgres or mysql driver.
func OpenDatabase(driver string, cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		)
		dialector = postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
	case "mysql":
		dsn := fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
		)
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.FilePath)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	log.Info().Str("module", "store.gorm").Str("driver", driver).Msg("database connected")
	return db, nil
}

type GormRoomStore struct {
	db *gorm.DB
}

// NewGormRoomStore migrates the rooms table and returns the store.
func NewGormRoomStore(db *gorm.DB) (*GormRoomStore, error) {
	if err := db.AutoMigrate(&RoomModel{}); err != nil {
		return nil, fmt.Errorf("migrate rooms: %w", err)
	}
	return &GormRoomStore{db: db}, nil
}

func (s *GormRoomStore) Create(ctx context.Context, room *domain.Room) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&RoomModel{}).Where("code = ?", string(room.Code)).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateCode
		}
		if err := tx.Create(roomToModel(room)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateCode
			}
			log.Error().Err(err).Str("module", "store.gorm").Str("room", string(room.Code)).Msg("failed to create room")
			return err
		}
		return nil
	})
}

func (s *GormRoomStore) Get(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	var m RoomModel
	if err := s.db.WithContext(ctx).First(&m, "code = ?", string(code)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Str("module", "store.gorm").Str("room", string(code)).Msg("failed to get room")
		return nil, err
	}
	return m.toDomain(), nil
}

func (s *GormRoomStore) Save(ctx context.Context, room *domain.Room) error {
	m := roomToModel(room)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&RoomModel{}).Where("code = ?", m.Code).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		err := tx.Model(&RoomModel{}).
			Where("code = ?", m.Code).
			Select("*").Omit("code", "host_id", "created_at").
			Updates(m).Error
		if err != nil {
			log.Error().Err(err).Str("module", "store.gorm").Str("room", m.Code).Msg("failed to save room")
		}
		return err
	})
}

func (s *GormRoomStore) Delete(ctx context.Context, code domain.RoomCode) error {
	return s.db.WithContext(ctx).Where("code = ?", string(code)).Delete(&RoomModel{}).Error
}

func (s *GormRoomStore) ListIdle(ctx context.Context, before time.Time) ([]domain.RoomCode, error) {
	var codes []string
	if err := s.db.WithContext(ctx).Model(&RoomModel{}).
		Where("last_activity < ?", before.UTC()).
		Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	out := make([]domain.RoomCode, len(codes))
	for i, c := range codes {
		out[i] = domain.RoomCode(c)
	}
	return out, nil
}

func (s *GormRoomStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
