package access

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Capability is a kind of permission a role confers.
type Capability string

const (
	StandardRole          Capability = "standard_role"
	DepartmentRole        Capability = "department_role"
	DepartmentManagerRole Capability = "department_manager_role"
)

// Grant is one capability held by a caller. StageID is zero for StandardRole.
type Grant struct {
	Capability Capability         `json:"capability"`
	Role       string             `json:"role"`
	StageID    primitive.ObjectID `json:"stage_id,omitempty"`
}

type Operation string

const (
	OpRead  Operation = "read"
	OpWrite Operation = "write"
)

// Document is the routed record as the access checks see it.
type Document struct {
	ID                  primitive.ObjectID
	CurrentDepartment   *primitive.ObjectID
	Owner               string
	CreatedBy           string
	HistoricalAssignees []string
}

// VisibilityPredicate describes which leads a caller may list.
type VisibilityPredicate struct {
	Unrestricted    bool                 `json:"unrestricted"`
	UseDefault      bool                 `json:"use_default"`
	UserID          string               `json:"user_id,omitempty"`
	DepartmentIDs   []primitive.ObjectID `json:"department_ids,omitempty"`
	AssignedLeadIDs []primitive.ObjectID `json:"assigned_lead_ids,omitempty"`
}

// Filter renders the predicate as a lead collection query.
func (p *VisibilityPredicate) Filter() bson.M {
	switch {
	case p.Unrestricted:
		return bson.M{}
	case p.UseDefault:
		return bson.M{"$or": bson.A{
			bson.M{"owner": p.UserID},
			bson.M{"created_by": p.UserID},
		}}
	}

	var clauses bson.A
	if len(p.DepartmentIDs) > 0 {
		clauses = append(clauses, bson.M{"current_department": bson.M{"$in": p.DepartmentIDs}})
	}
	if len(p.AssignedLeadIDs) > 0 {
		clauses = append(clauses, bson.M{"_id": bson.M{"$in": p.AssignedLeadIDs}})
	}

	switch len(clauses) {
	case 0:
		// matches nothing
		return bson.M{"_id": bson.M{"$in": bson.A{}}}
	case 1:
		return clauses[0].(bson.M)
	default:
		return bson.M{"$or": clauses}
	}
}
