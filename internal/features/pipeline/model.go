package pipeline

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TransitionType string

const (
	Forward  TransitionType = "Forward"
	Backward TransitionType = "Backward"
	Reject   TransitionType = "Reject"
	// ManagerOverride is never stored as a rule. It marks targets reachable only by role.
	ManagerOverride TransitionType = "ManagerOverride"
)

// Storable reports whether t may appear on a TransitionRule.
func (t TransitionType) Storable() bool {
	switch t {
	case Forward, Backward, Reject:
		return true
	}
	return false
}

type TeamMember struct {
	User   string              `json:"user" bson:"user"`
	Active bool                `json:"active" bson:"active"`
	Shift  *primitive.ObjectID `json:"shift,omitempty" bson:"shift,omitempty"` // nil = no affinity
}

// Stage is one department in the pipeline.
type Stage struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name             string             `json:"name" bson:"name"`
	Order            int                `json:"order" bson:"order"`
	IsTerminal       bool               `json:"is_terminal" bson:"is_terminal"`
	DepartmentRole   string             `json:"department_role" bson:"department_role"`
	ManagerRole      string             `json:"manager_role" bson:"manager_role"`
	Enabled          bool               `json:"enabled" bson:"enabled"`
	InternalStatuses []string           `json:"internal_statuses,omitempty" bson:"internal_statuses,omitempty"`
	TeamMembers      []TeamMember       `json:"team_members" bson:"team_members"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" bson:"updated_at"`
}

// ActiveMembers returns the active team members in listed order.
func (s *Stage) ActiveMembers() []TeamMember {
	var out []TeamMember
	for _, m := range s.TeamMembers {
		if m.Active && m.User != "" {
			out = append(out, m)
		}
	}
	return out
}

type TransitionRule struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	From      primitive.ObjectID `json:"from_stage" bson:"from_stage"`
	To        primitive.ObjectID `json:"to_stage" bson:"to_stage"`
	Type      TransitionType     `json:"transition_type" bson:"transition_type"`
	Enabled   bool               `json:"enabled" bson:"enabled"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// TransferTarget is a stage a lead may move to, and by which kind of transition.
type TransferTarget struct {
	Stage          Stage          `json:"stage"`
	TransitionType TransitionType `json:"transition_type"`
}
