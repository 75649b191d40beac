package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/WatchParty/internal/config"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const roomsCollection = "rooms"

type roomDoc struct {
	Code             string               `bson:"code"`
	HostID           string               `bson:"hostId"`
	Movie            *domain.Movie        `bson:"movie,omitempty"`
	IsPrivate        bool                 `bson:"isPrivate"`
	SubtitlesEnabled bool                 `bson:"subtitlesEnabled"`
	IsPlaying        bool                 `bson:"isPlaying"`
	CurrentTime      float64              `bson:"currentTime"`
	Participants     []domain.Participant `bson:"participants"`
	CreatedAt        time.Time            `bson:"createdAt"`
	LastActivity     time.Time            `bson:"lastActivity"`
}

func roomToDoc(r *domain.Room) *roomDoc {
	parts := r.Participants
	if parts == nil {
		parts = []domain.Participant{}
	}
	return &roomDoc{
		Code:             string(r.Code),
		HostID:           string(r.HostID),
		Movie:            r.Movie,
		IsPrivate:        r.IsPrivate,
		SubtitlesEnabled: r.SubtitlesEnabled,
		IsPlaying:        r.IsPlaying,
		CurrentTime:      r.CurrentTime,
		Participants:     parts,
		CreatedAt:        r.CreatedAt,
		LastActivity:     r.LastActivity,
	}
}

func (d *roomDoc) toDomain() *domain.Room {
	r := &domain.Room{
		Code:             domain.RoomCode(d.Code),
		HostID:           domain.UserID(d.HostID),
		Movie:            d.Movie,
		IsPrivate:        d.IsPrivate,
		SubtitlesEnabled: d.SubtitlesEnabled,
		IsPlaying:        d.IsPlaying,
		CurrentTime:      d.CurrentTime,
		Participants:     d.Participants,
		CreatedAt:        d.CreatedAt.UTC(),
		LastActivity:     d.LastActivity.UTC(),
	}
	r.Normalize()
	return r
}

// MongoRoomStore keeps each room as one document keyed by a unique code.
type MongoRoomStore struct {
	client  *mongo.Client
	rooms   *mongo.Collection
	timeout time.Duration
}

func NewMongoRoomStore(ctx context.Context, cfg config.MongoConfig) (*MongoRoomStore, error) {
	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	rooms := client.Database(cfg.Database).Collection(roomsCollection)
	_, err = rooms.Indexes().CreateMany(cctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "lastActivity", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create room indexes: %w", err)
	}
	log.Info().Str("module", "store.mongo").Str("db", cfg.Database).Msg("mongo connected")
	return &MongoRoomStore{client: client, rooms: rooms, timeout: cfg.Timeout}, nil
}

func (s *MongoRoomStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.timeout)
}

func (s *MongoRoomStore) Create(ctx context.Context, room *domain.Room) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	if _, err := s.rooms.InsertOne(ctx, roomToDoc(room)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (s *MongoRoomStore) Get(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var d roomDoc
	err := s.rooms.FindOne(ctx, bson.M{"code": string(code)}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find room: %w", err)
	}
	return d.toDomain(), nil
}

func (s *MongoRoomStore) Save(ctx context.Context, room *domain.Room) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	d := roomToDoc(room)
	res, err := s.rooms.UpdateOne(ctx, bson.M{"code": d.Code}, bson.M{"$set": bson.M{
		"movie":            d.Movie,
		"isPrivate":        d.IsPrivate,
		"subtitlesEnabled": d.SubtitlesEnabled,
		"isPlaying":        d.IsPlaying,
		"currentTime":      d.CurrentTime,
		"participants":     d.Participants,
		"lastActivity":     d.LastActivity,
	}})
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoRoomStore) Delete(ctx context.Context, code domain.RoomCode) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	_, err := s.rooms.DeleteOne(ctx, bson.M{"code": string(code)})
	return err
}

func (s *MongoRoomStore) ListIdle(ctx context.Context, before time.Time) ([]domain.RoomCode, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	cur, err := s.rooms.Find(ctx,
		bson.M{"lastActivity": bson.M{"$lt": before.UTC()}},
		options.Find().SetProjection(bson.M{"code": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []struct {
		Code string `bson:"code"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.RoomCode, len(docs))
	for i, d := range docs {
		out[i] = domain.RoomCode(d.Code)
	}
	return out, nil
}

func (s *MongoRoomStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
