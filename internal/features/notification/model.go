package notification

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeAlert   NotificationType = "alert"
	NotificationTypeWarning NotificationType = "warning"
)

type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	FromUser  string             `bson:"from_user,omitempty" json:"from_user,omitempty"`
	Title     string             `bson:"title" json:"title"`
	Message   string             `bson:"message" json:"message"`
	Type      NotificationType   `bson:"type" json:"type"`
	Link      string             `bson:"link,omitempty" json:"link,omitempty"`
	IsRead    bool               `bson:"is_read" json:"is_read"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	ReadAt    *time.Time         `bson:"read_at,omitempty" json:"read_at,omitempty"`
}

// TimelineComment is an entry on a lead's activity timeline.
type TimelineComment struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	LeadID    string             `bson:"lead_id" json:"lead_id"`
	Action    string             `bson:"action" json:"action"`
	Content   string             `bson:"content" json:"content"`
	CreatedBy string             `bson:"created_by" json:"created_by"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// Event is the realtime payload pushed to a user's sockets.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const EventLeadRoutingUpdate = "lead_routing_update"

// RoutingEvent describes a routing change that interested users should hear about.
type RoutingEvent struct {
	LeadID        string
	LeadName      string
	StageName     string
	ManagerRole   string
	Action        string
	Actor         string
	AssignedUsers []string
}
