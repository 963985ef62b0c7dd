package pipeline

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

type StageRepository interface {
	Create(ctx context.Context, stage *Stage) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Stage, error)
	FindAll(ctx context.Context) ([]Stage, error)
	FindEnabled(ctx context.Context) ([]Stage, error)
	Update(ctx context.Context, stage *Stage) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type RuleRepository interface {
	Create(ctx context.Context, rule *TransitionRule) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*TransitionRule, error)
	FindAll(ctx context.Context) ([]TransitionRule, error)
	FindEnabled(ctx context.Context) ([]TransitionRule, error)
	FindByPair(ctx context.Context, from, to primitive.ObjectID) ([]TransitionRule, error)
	CountByStage(ctx context.Context, stageID primitive.ObjectID) (int64, error)
	Update(ctx context.Context, rule *TransitionRule) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type StageRepositoryImpl struct {
	collection *mongo.Collection
}

func NewStageRepository(db *database.MongodbDB) StageRepository {
	return &StageRepositoryImpl{
		collection: db.DB.Collection("pipeline_stages"),
	}
}

func (r *StageRepositoryImpl) Create(ctx context.Context, stage *Stage) error {
	stage.CreatedAt = time.Now()
	stage.UpdatedAt = time.Now()

	if stage.TeamMembers == nil {
		stage.TeamMembers = []TeamMember{}
	}

	result, err := r.collection.InsertOne(ctx, stage)
	if err != nil {
		return err
	}

	stage.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *StageRepositoryImpl) FindByID(ctx context.Context, id primitive.ObjectID) (*Stage, error) {
	var stage Stage
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&stage)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, routingerr.NotFound("find stage", "stage %s not found", id.Hex())
		}
		return nil, err
	}
	return &stage, nil
}

func (r *StageRepositoryImpl) FindAll(ctx context.Context) ([]Stage, error) {
	return r.find(ctx, bson.M{})
}

func (r *StageRepositoryImpl) FindEnabled(ctx context.Context) ([]Stage, error) {
	return r.find(ctx, bson.M{"enabled": true})
}

func (r *StageRepositoryImpl) find(ctx context.Context, filter bson.M) ([]Stage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "name", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stages []Stage
	if err := cursor.All(ctx, &stages); err != nil {
		return nil, err
	}
	return stages, nil
}

func (r *StageRepositoryImpl) Update(ctx context.Context, stage *Stage) error {
	stage.UpdatedAt = time.Now()

	update := bson.M{
		"$set": bson.M{
			"name":              stage.Name,
			"order":             stage.Order,
			"is_terminal":       stage.IsTerminal,
			"department_role":   stage.DepartmentRole,
			"manager_role":      stage.ManagerRole,
			"enabled":           stage.Enabled,
			"internal_statuses": stage.InternalStatuses,
			"team_members":      stage.TeamMembers,
			"updated_at":        stage.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": stage.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return routingerr.NotFound("update stage", "stage %s not found", stage.ID.Hex())
	}
	return nil
}

func (r *StageRepositoryImpl) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

type RuleRepositoryImpl struct {
	collection *mongo.Collection
}

func NewRuleRepository(db *database.MongodbDB) RuleRepository {
	return &RuleRepositoryImpl{
		collection: db.DB.Collection("transition_rules"),
	}
}

// EnsureIndexes creates the lookup index on (from_stage, to_stage). Uniqueness
// is enforced by the service so stored duplicates stay visible to operators.
func (r *RuleRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "from_stage", Value: 1}, {Key: "to_stage", Value: 1}},
	})
	return err
}

func (r *RuleRepositoryImpl) Create(ctx context.Context, rule *TransitionRule) error {
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, rule)
	if err != nil {
		return err
	}

	rule.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *RuleRepositoryImpl) FindByID(ctx context.Context, id primitive.ObjectID) (*TransitionRule, error) {
	var rule TransitionRule
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rule)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, routingerr.NotFound("find rule", "transition rule %s not found", id.Hex())
		}
		return nil, err
	}
	return &rule, nil
}

func (r *RuleRepositoryImpl) FindAll(ctx context.Context) ([]TransitionRule, error) {
	return r.find(ctx, bson.M{})
}

func (r *RuleRepositoryImpl) FindEnabled(ctx context.Context) ([]TransitionRule, error) {
	return r.find(ctx, bson.M{"enabled": true})
}

func (r *RuleRepositoryImpl) FindByPair(ctx context.Context, from, to primitive.ObjectID) ([]TransitionRule, error) {
	return r.find(ctx, bson.M{"from_stage": from, "to_stage": to})
}

func (r *RuleRepositoryImpl) CountByStage(ctx context.Context, stageID primitive.ObjectID) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{
		"$or": []bson.M{
			{"from_stage": stageID},
			{"to_stage": stageID},
		},
	})
}

func (r *RuleRepositoryImpl) find(ctx context.Context, filter bson.M) ([]TransitionRule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rules []TransitionRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *RuleRepositoryImpl) Update(ctx context.Context, rule *TransitionRule) error {
	rule.UpdatedAt = time.Now()

	update := bson.M{
		"$set": bson.M{
			"from_stage":      rule.From,
			"to_stage":        rule.To,
			"transition_type": rule.Type,
			"enabled":         rule.Enabled,
			"updated_at":      rule.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": rule.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return routingerr.NotFound("update rule", "transition rule %s not found", rule.ID.Hex())
	}
	return nil
}

func (r *RuleRepositoryImpl) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
