package notification

import (
	"context"
	"fmt"

	"lead-routing/internal/features/user"

	"go.uber.org/zap"
)

// RoleDirectory resolves role holders for notification fan-out.
type RoleDirectory interface {
	UsersWithRole(ctx context.Context, role string) ([]user.User, error)
}

type Dispatcher interface {
	// Notify fans ev out to the stage managers and the assigned users. Failures are logged per recipient.
	Notify(ctx context.Context, ev RoutingEvent)
	AddComment(ctx context.Context, comment *TimelineComment) error
	Timeline(ctx context.Context, leadID string) ([]TimelineComment, error)
}

type DispatcherImpl struct {
	Users         RoleDirectory
	Hub           Publisher
	Notifications NotificationService
	Comments      CommentRepository
	Logger        *zap.Logger
}

func NewDispatcher(users RoleDirectory, hub *Hub, notifications NotificationService, comments CommentRepository, logger *zap.Logger) Dispatcher {
	return &DispatcherImpl{
		Users:         users,
		Hub:           hub,
		Notifications: notifications,
		Comments:      comments,
		Logger:        logger,
	}
}

func (d *DispatcherImpl) AddComment(ctx context.Context, comment *TimelineComment) error {
	return d.Comments.Create(ctx, comment)
}

func (d *DispatcherImpl) Timeline(ctx context.Context, leadID string) ([]TimelineComment, error) {
	return d.Comments.FindByLeadID(ctx, leadID)
}

func (d *DispatcherImpl) Notify(ctx context.Context, ev RoutingEvent) {
	logger := d.Logger.With(
		zap.String("lead_id", ev.LeadID),
		zap.String("stage", ev.StageName),
		zap.String("action", ev.Action),
	)

	recipients := d.recipients(ctx, ev, logger)
	if len(recipients) == 0 {
		return
	}

	payload := Event{
		Type: EventLeadRoutingUpdate,
		Data: map[string]string{
			"lead":       ev.LeadID,
			"lead_name":  ev.LeadName,
			"department": ev.StageName,
			"action":     ev.Action,
		},
	}
	message := Message(ev)

	for _, r := range recipients {
		d.publish(r, payload, logger)

		n := &Notification{
			UserID:   r,
			FromUser: ev.Actor,
			Title:    "Lead Routing",
			Message:  message,
			Type:     NotificationTypeAlert,
			Link:     "/leads/" + ev.LeadID,
		}
		if err := d.Notifications.CreateNotification(ctx, n); err != nil {
			logger.Warn("failed to store notification", zap.String("user", r), zap.Error(err))
		}
	}
}

func (d *DispatcherImpl) publish(recipient string, payload Event, logger *zap.Logger) {
	defer func() {
		if p := recover(); p != nil {
			logger.Warn("realtime publish panicked", zap.String("user", recipient), zap.Any("panic", p))
		}
	}()
	d.Hub.Publish(recipient, payload)
}

// recipients are the enabled manager-role holders followed by the assigned users, deduped in that order.
func (d *DispatcherImpl) recipients(ctx context.Context, ev RoutingEvent, logger *zap.Logger) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}

	if ev.ManagerRole != "" {
		managers, err := d.Users.UsersWithRole(ctx, ev.ManagerRole)
		if err != nil {
			logger.Warn("failed to resolve stage managers", zap.String("role", ev.ManagerRole), zap.Error(err))
		}
		for _, m := range managers {
			if m.Enabled {
				add(m.ID)
			}
		}
	}
	for _, u := range ev.AssignedUsers {
		add(u)
	}
	return out
}

// Message is the notification subject for ev.
func Message(ev RoutingEvent) string {
	switch ev.Action {
	case "Forward":
		return fmt.Sprintf("Lead %s has been forwarded to %s", ev.LeadName, ev.StageName)
	case "Backward":
		return fmt.Sprintf("Lead %s has been sent back to %s", ev.LeadName, ev.StageName)
	case "Reject":
		return fmt.Sprintf("Lead %s has been rejected back to %s", ev.LeadName, ev.StageName)
	case "Manager Override":
		return fmt.Sprintf("Lead %s was manually transferred to %s", ev.LeadName, ev.StageName)
	case "Initial Assignment":
		return fmt.Sprintf("New lead %s assigned to %s", ev.LeadName, ev.StageName)
	case "Completed":
		return fmt.Sprintf("Lead %s lifecycle completed at %s", ev.LeadName, ev.StageName)
	default:
		return fmt.Sprintf("Lead %s routed to %s", ev.LeadName, ev.StageName)
	}
}
