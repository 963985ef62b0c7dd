package lead

import (
	"context"
	"errors"
	"time"

	"lead-routing/internal/common/routingerr"
	"lead-routing/internal/database"
	"lead-routing/internal/features/pipeline"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type LeadRepository interface {
	Insert(ctx context.Context, lead *Lead) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Lead, error)
	// Save replaces the stored lead if its version still matches, then bumps the version.
	Save(ctx context.Context, lead *Lead) error
	List(ctx context.Context, filter bson.M, page, limit int64) ([]Lead, int64, error)
	FindHandledBy(ctx context.Context, user string) ([]Lead, error)
	FindByStatuses(ctx context.Context, statuses []DepartmentStatus) ([]Lead, error)
	FindNeedingRouting(ctx context.Context, limit int64) ([]Lead, error)
	CountInStage(ctx context.Context, stageID primitive.ObjectID) (int64, error)
}

var _ pipeline.StageOccupancy = (*LeadRepositoryImpl)(nil)

type LeadRepositoryImpl struct {
	collection *mongo.Collection
}

func NewLeadRepository(db *database.MongodbDB) LeadRepository {
	return &LeadRepositoryImpl{
		collection: db.DB.Collection("leads"),
	}
}

func (r *LeadRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "current_department", Value: 1}, {Key: "department_status", Value: 1}}},
		{Keys: bson.D{{Key: "department_history.assigned_user", Value: 1}}},
		{Keys: bson.D{{Key: "owner", Value: 1}}},
		{Keys: bson.D{{Key: "created_by", Value: 1}}},
	})
	return err
}

func (r *LeadRepositoryImpl) Insert(ctx context.Context, lead *Lead) error {
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now()
	}
	lead.UpdatedAt = lead.CreatedAt
	lead.Version = 1
	if lead.DepartmentHistory == nil {
		lead.DepartmentHistory = []LogEntry{}
	}

	result, err := r.collection.InsertOne(ctx, lead)
	if err != nil {
		return err
	}

	lead.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *LeadRepositoryImpl) FindByID(ctx context.Context, id primitive.ObjectID) (*Lead, error) {
	var lead Lead
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&lead)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, routingerr.NotFound("find lead", "lead %s not found", id.Hex())
		}
		return nil, err
	}
	return &lead, nil
}

func (r *LeadRepositoryImpl) Save(ctx context.Context, lead *Lead) error {
	expected := lead.Version
	lead.Version = expected + 1
	lead.UpdatedAt = time.Now()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": lead.ID, "version": expected}, lead)
	if err != nil {
		lead.Version = expected
		return err
	}
	if result.MatchedCount == 0 {
		lead.Version = expected
		return routingerr.Conflict("save lead", "lead %s was modified concurrently", lead.ID.Hex())
	}
	return nil
}

func (r *LeadRepositoryImpl) List(ctx context.Context, filter bson.M, page, limit int64) ([]Lead, int64, error) {
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	leads, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

// FindHandledBy returns leads with a closed history entry assigned to user.
func (r *LeadRepositoryImpl) FindHandledBy(ctx context.Context, user string) ([]Lead, error) {
	filter := bson.M{
		"department_history": bson.M{"$elemMatch": bson.M{
			"assigned_user": user,
			"exited_at":     bson.M{"$ne": nil},
		}},
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
}

func (r *LeadRepositoryImpl) FindByStatuses(ctx context.Context, statuses []DepartmentStatus) ([]Lead, error) {
	filter := bson.M{"department_status": bson.M{"$in": statuses}}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
}

// FindNeedingRouting returns leads never routed, and active leads left without an owner.
func (r *LeadRepositoryImpl) FindNeedingRouting(ctx context.Context, limit int64) ([]Lead, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"current_department": nil},
		bson.M{
			"department_status": bson.M{"$in": bson.A{StatusWorking, StatusRejected}},
			"owner":             bson.M{"$in": bson.A{"", nil}},
		},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return r.find(ctx, filter, opts)
}

// CountInStage counts leads whose current department is stageID, completed ones included.
func (r *LeadRepositoryImpl) CountInStage(ctx context.Context, stageID primitive.ObjectID) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"current_department": stageID})
}

func (r *LeadRepositoryImpl) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Lead, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var leads []Lead
	if err := cursor.All(ctx, &leads); err != nil {
		return nil, err
	}
	return leads, nil
}
