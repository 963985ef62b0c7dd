package shift

import (
	"context"
	"errors"
	"time"

	"lead-routing/internal/common/routingerr"
	"lead-routing/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ShiftRepository interface {
	Create(ctx context.Context, shift *Shift) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Shift, error)
	FindAll(ctx context.Context) ([]Shift, error)
	FindEnabled(ctx context.Context) ([]Shift, error)
	Update(ctx context.Context, shift *Shift) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type ShiftRepositoryImpl struct {
	collection *mongo.Collection
}

func NewShiftRepository(db *database.MongodbDB) ShiftRepository {
	return &ShiftRepositoryImpl{
		collection: db.DB.Collection("routing_shifts"),
	}
}

func (r *ShiftRepositoryImpl) Create(ctx context.Context, shift *Shift) error {
	shift.CreatedAt = time.Now()
	shift.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, shift)
	if err != nil {
		return err
	}

	shift.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *ShiftRepositoryImpl) FindByID(ctx context.Context, id primitive.ObjectID) (*Shift, error) {
	var shift Shift
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&shift)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, routingerr.NotFound("find shift", "shift %s not found", id.Hex())
		}
		return nil, err
	}
	return &shift, nil
}

func (r *ShiftRepositoryImpl) FindAll(ctx context.Context) ([]Shift, error) {
	return r.find(ctx, bson.M{})
}

// FindEnabled returns enabled shifts ordered by start time. Times are stored
// zero-padded so the string order is the clock order.
func (r *ShiftRepositoryImpl) FindEnabled(ctx context.Context) ([]Shift, error) {
	return r.find(ctx, bson.M{"enabled": true})
}

func (r *ShiftRepositoryImpl) find(ctx context.Context, filter bson.M) ([]Shift, error) {
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var shifts []Shift
	if err := cursor.All(ctx, &shifts); err != nil {
		return nil, err
	}
	return shifts, nil
}

func (r *ShiftRepositoryImpl) Update(ctx context.Context, shift *Shift) error {
	shift.UpdatedAt = time.Now()

	update := bson.M{
		"$set": bson.M{
			"name":       shift.Name,
			"start_time": shift.StartTime,
			"end_time":   shift.EndTime,
			"enabled":    shift.Enabled,
			"updated_at": shift.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": shift.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return routingerr.NotFound("update shift", "shift %s not found", shift.ID.Hex())
	}
	return nil
}

func (r *ShiftRepositoryImpl) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
