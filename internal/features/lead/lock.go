package lead

import (
	"context"
	"sync"
	"time"

	"lead-routing/internal/common/routingerr"
	"lead-routing/internal/config"
	"lead-routing/internal/database"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Locker grants exclusive access to one lead. TryLock never waits; a held lock is a Conflict.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), err error)
}

// MongoLocker keeps leases in lead_locks. An expired lease can be taken over
// so a crashed holder never blocks a lead for longer than the TTL.
type MongoLocker struct {
	collection *mongo.Collection
	ttl        time.Duration
	logger     *zap.Logger
}

func NewMongoLocker(db *database.MongodbDB, cfg *config.Config, logger *zap.Logger) *MongoLocker {
	return &MongoLocker{
		collection: db.DB.Collection("lead_locks"),
		ttl:        cfg.Routing.LockTTL,
		logger:     logger,
	}
}

func (l *MongoLocker) EnsureIndexes(ctx context.Context) error {
	_, err := l.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}

func (l *MongoLocker) TryLock(ctx context.Context, key string) (func(), error) {
	now := time.Now()
	token := uuid.NewString()

	// Matches only a missing or expired lease; a live one makes the upsert collide on _id.
	_, err := l.collection.UpdateOne(ctx,
		bson.M{"_id": key, "expires_at": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{"owner": token, "expires_at": now.Add(l.ttl)}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, routingerr.Conflict("lock lead", "lead %s is being routed by another request", key)
		}
		return nil, err
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := l.collection.DeleteOne(ctx, bson.M{"_id": key, "owner": token}); err != nil {
			l.logger.Warn("failed to release lead lock", zap.String("lead_id", key), zap.Error(err))
		}
	}, nil
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) TryLock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, routingerr.Conflict("lock lead", "lead %s is being routed by another request", key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
