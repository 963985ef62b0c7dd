package notification

import (
	"context"
	"errors"
	"testing"

	"lead-routing/internal/features/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type MockDirectory struct {
	Users map[string][]user.User
	Err   error
}

func (m *MockDirectory) UsersWithRole(ctx context.Context, role string) ([]user.User, error) {
	return m.Users[role], m.Err
}

type MockPublisher struct {
	Sent  map[string][]Event
	Panic bool
}

func (m *MockPublisher) Publish(u string, ev Event) {
	if m.Panic {
		panic("socket gone")
	}
	if m.Sent == nil {
		m.Sent = make(map[string][]Event)
	}
	m.Sent[u] = append(m.Sent[u], ev)
}

type MockNotificationService struct {
	NotificationService
	Stored  []Notification
	FailFor string
}

func (m *MockNotificationService) CreateNotification(ctx context.Context, n *Notification) error {
	if n.UserID == m.FailFor {
		return errors.New("insert failed")
	}
	n.ID = primitive.NewObjectID()
	m.Stored = append(m.Stored, *n)
	return nil
}

type MockCommentRepo struct {
	Comments []TimelineComment
}

func (m *MockCommentRepo) Create(ctx context.Context, c *TimelineComment) error {
	m.Comments = append(m.Comments, *c)
	return nil
}

func (m *MockCommentRepo) FindByLeadID(ctx context.Context, leadID string) ([]TimelineComment, error) {
	var out []TimelineComment
	for _, c := range m.Comments {
		if c.LeadID == leadID {
			out = append(out, c)
		}
	}
	return out, nil
}

func newDispatcher(dir RoleDirectory, pub Publisher, svc NotificationService) *DispatcherImpl {
	return &DispatcherImpl{
		Users:         dir,
		Hub:           pub,
		Notifications: svc,
		Comments:      &MockCommentRepo{},
		Logger:        zap.NewNop(),
	}
}

func sampleEvent() RoutingEvent {
	return RoutingEvent{
		LeadID:        "L1",
		LeadName:      "Acme",
		StageName:     "Product Listing",
		ManagerRole:   "Product Listing Manager",
		Action:        "Forward",
		Actor:         "u-actor",
		AssignedUsers: []string{"u-assignee", "u-mgr"},
	}
}

func TestNotifyFansOutToManagersAndAssignees(t *testing.T) {
	dir := &MockDirectory{Users: map[string][]user.User{
		"Product Listing Manager": {
			{ID: "u-mgr", Enabled: true},
			{ID: "u-disabled", Enabled: false},
		},
	}}
	pub := &MockPublisher{}
	svc := &MockNotificationService{}

	newDispatcher(dir, pub, svc).Notify(context.Background(), sampleEvent())

	require.Len(t, svc.Stored, 2)
	assert.Equal(t, "u-mgr", svc.Stored[0].UserID)
	assert.Equal(t, "u-assignee", svc.Stored[1].UserID)
	assert.Equal(t, "Lead Acme has been forwarded to Product Listing", svc.Stored[0].Message)
	assert.Equal(t, "/leads/L1", svc.Stored[0].Link)

	assert.Len(t, pub.Sent["u-mgr"], 1)
	assert.Len(t, pub.Sent["u-assignee"], 1)
	assert.Empty(t, pub.Sent["u-disabled"])
	assert.Equal(t, EventLeadRoutingUpdate, pub.Sent["u-mgr"][0].Type)
}

func TestNotifyFailuresAreIsolated(t *testing.T) {
	dir := &MockDirectory{Err: errors.New("directory down")}
	pub := &MockPublisher{Panic: true}
	svc := &MockNotificationService{FailFor: "u-mgr"}

	assert.NotPanics(t, func() {
		newDispatcher(dir, pub, svc).Notify(context.Background(), sampleEvent())
	})

	// directory failure still reaches the assignees; one failing insert does not stop the next
	require.Len(t, svc.Stored, 1)
	assert.Equal(t, "u-assignee", svc.Stored[0].UserID)
}

func TestNotifyWithoutRecipients(t *testing.T) {
	pub := &MockPublisher{}
	svc := &MockNotificationService{}
	ev := RoutingEvent{LeadID: "L1", Action: "Forward"}

	newDispatcher(&MockDirectory{}, pub, svc).Notify(context.Background(), ev)

	assert.Empty(t, svc.Stored)
	assert.Empty(t, pub.Sent)
}

func TestMessage(t *testing.T) {
	tests := []struct {
		action string
		want   string
	}{
		{"Backward", "Lead Acme has been sent back to Product Listing"},
		{"Reject", "Lead Acme has been rejected back to Product Listing"},
		{"Manager Override", "Lead Acme was manually transferred to Product Listing"},
		{"Initial Assignment", "New lead Acme assigned to Product Listing"},
		{"Completed", "Lead Acme lifecycle completed at Product Listing"},
		{"Other", "Lead Acme routed to Product Listing"},
	}
	for _, tt := range tests {
		ev := RoutingEvent{LeadName: "Acme", StageName: "Product Listing", Action: tt.action}
		assert.Equal(t, tt.want, Message(ev), tt.action)
	}
}

func TestTimeline(t *testing.T) {
	d := newDispatcher(&MockDirectory{}, &MockPublisher{}, &MockNotificationService{})
	ctx := context.Background()

	require.NoError(t, d.AddComment(ctx, &TimelineComment{LeadID: "L1", Content: "first"}))
	require.NoError(t, d.AddComment(ctx, &TimelineComment{LeadID: "L2", Content: "other"}))

	got, err := d.Timeline(ctx, "L1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Content)
}
