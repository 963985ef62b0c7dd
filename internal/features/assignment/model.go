package assignment

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Status string

const (
	StatusOpen      Status = "Open"
	StatusClosed    Status = "Closed"
	StatusCancelled Status = "Cancelled"
)

// Assignment is a work item addressed to one user. Open assignments are the balancer's load metric.
type Assignment struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ReferenceType string             `json:"reference_type" bson:"reference_type"`
	ReferenceID   string             `json:"reference_id" bson:"reference_id"`
	AllocatedTo   string             `json:"allocated_to" bson:"allocated_to"`
	Status        Status             `json:"status" bson:"status"`
	Description   string             `json:"description" bson:"description"`
	AssignedBy    string             `json:"assigned_by" bson:"assigned_by"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}

// Share is a per-record, per-user access grant.
type Share struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ReferenceType string             `json:"reference_type" bson:"reference_type"`
	ReferenceID   string             `json:"reference_id" bson:"reference_id"`
	User          string             `json:"user" bson:"user"`
	Read          bool               `json:"read" bson:"read"`
	Write         bool               `json:"write" bson:"write"`
	Share         bool               `json:"share" bson:"share"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}
