package assignment

import (
	"context"
	"time"

	"lead-routing/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AssignmentRepository interface {
	Create(ctx context.Context, a *Assignment) error
	FindOpen(ctx context.Context, refType, refID string) ([]Assignment, error)
	// CancelOpen marks every open assignment on the reference cancelled and returns how many changed.
	CancelOpen(ctx context.Context, refType, refID string) (int64, error)
	CountOpenByUser(ctx context.Context, refType string, users []string) (map[string]int, error)
	OpenReferenceIDs(ctx context.Context, refType, user string) ([]string, error)
	HasOpen(ctx context.Context, refType, refID, user string) (bool, error)
}

type ShareRepository interface {
	Upsert(ctx context.Context, share *Share) error
	FindByReference(ctx context.Context, refType, refID string) ([]Share, error)
}

type AssignmentRepositoryImpl struct {
	collection *mongo.Collection
}

func NewAssignmentRepository(db *database.MongodbDB) AssignmentRepository {
	return &AssignmentRepositoryImpl{
		collection: db.DB.Collection("assignments"),
	}
}

func (r *AssignmentRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "reference_type", Value: 1}, {Key: "allocated_to", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "reference_type", Value: 1}, {Key: "reference_id", Value: 1}, {Key: "status", Value: 1}}},
	})
	return err
}

func (r *AssignmentRepositoryImpl) Create(ctx context.Context, a *Assignment) error {
	a.CreatedAt = time.Now()
	a.UpdatedAt = time.Now()
	if a.Status == "" {
		a.Status = StatusOpen
	}

	result, err := r.collection.InsertOne(ctx, a)
	if err != nil {
		return err
	}

	a.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *AssignmentRepositoryImpl) FindOpen(ctx context.Context, refType, refID string) ([]Assignment, error) {
	filter := bson.M{"reference_type": refType, "reference_id": refID, "status": StatusOpen}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Assignment
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AssignmentRepositoryImpl) CancelOpen(ctx context.Context, refType, refID string) (int64, error) {
	filter := bson.M{"reference_type": refType, "reference_id": refID, "status": StatusOpen}
	update := bson.M{"$set": bson.M{"status": StatusCancelled, "updated_at": time.Now()}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// CountOpenByUser groups open assignments by allocated_to. Users with none are absent from the map.
func (r *AssignmentRepositoryImpl) CountOpenByUser(ctx context.Context, refType string, users []string) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"reference_type": refType,
			"status":         StatusOpen,
			"allocated_to":   bson.M{"$in": users},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$allocated_to",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		User  string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.User] = row.Count
	}
	return counts, nil
}

func (r *AssignmentRepositoryImpl) OpenReferenceIDs(ctx context.Context, refType, user string) ([]string, error) {
	filter := bson.M{"reference_type": refType, "allocated_to": user, "status": StatusOpen}
	values, err := r.collection.Distinct(ctx, "reference_id", filter)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

func (r *AssignmentRepositoryImpl) HasOpen(ctx context.Context, refType, refID, user string) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{
		"reference_type": refType,
		"reference_id":   refID,
		"allocated_to":   user,
		"status":         StatusOpen,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type ShareRepositoryImpl struct {
	collection *mongo.Collection
}

func NewShareRepository(db *database.MongodbDB) ShareRepository {
	return &ShareRepositoryImpl{
		collection: db.DB.Collection("record_shares"),
	}
}

func (r *ShareRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "reference_type", Value: 1}, {Key: "reference_id", Value: 1}, {Key: "user", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Upsert writes the grant for (reference, user), replacing any previous flags.
func (r *ShareRepositoryImpl) Upsert(ctx context.Context, share *Share) error {
	share.UpdatedAt = time.Now()

	filter := bson.M{
		"reference_type": share.ReferenceType,
		"reference_id":   share.ReferenceID,
		"user":           share.User,
	}
	update := bson.M{
		"$set": bson.M{
			"read":       share.Read,
			"write":      share.Write,
			"share":      share.Share,
			"updated_at": share.UpdatedAt,
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *ShareRepositoryImpl) FindByReference(ctx context.Context, refType, refID string) ([]Share, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"reference_type": refType, "reference_id": refID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Share
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
