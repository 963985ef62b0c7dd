package lead

import (
	"time"

	"lead-routing/internal/features/access"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DepartmentStatus string

const (
	StatusWorking  DepartmentStatus = "Working"
	StatusDone     DepartmentStatus = "Done"
	StatusRejected DepartmentStatus = "Rejected"
)

// Action is recorded on every history entry.
type Action string

const (
	ActionInitial         Action = "Initial"
	ActionForward         Action = "Forward"
	ActionBackward        Action = "Backward"
	ActionReject          Action = "Reject"
	ActionManagerOverride Action = "Manager Override"
)

// Timeline and notification actions that never appear on history entries.
const (
	EventInitialAssignment = "Initial Assignment"
	EventCompleted         = "Completed"
)

// LogEntry is one stay of a lead in a department. Entries are appended and closed, never removed.
type LogEntry struct {
	Department   primitive.ObjectID  `json:"department" bson:"department"`
	Shift        *primitive.ObjectID `json:"shift,omitempty" bson:"shift,omitempty"`
	EnteredAt    time.Time           `json:"entered_at" bson:"entered_at"`
	ExitedAt     *time.Time          `json:"exited_at,omitempty" bson:"exited_at,omitempty"`
	Action       Action              `json:"action" bson:"action"`
	AssignedUser string              `json:"assigned_user,omitempty" bson:"assigned_user,omitempty"`
	Notes        string              `json:"notes,omitempty" bson:"notes,omitempty"`
}

func (e *LogEntry) Open() bool {
	return e.ExitedAt == nil
}

type Lead struct {
	ID                primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	Name              string              `json:"lead_name" bson:"lead_name"`
	Email             string              `json:"email,omitempty" bson:"email,omitempty"`
	Mobile            string              `json:"mobile_no,omitempty" bson:"mobile_no,omitempty"`
	CurrentDepartment *primitive.ObjectID `json:"current_department,omitempty" bson:"current_department,omitempty"`
	CurrentShift      *primitive.ObjectID `json:"current_shift,omitempty" bson:"current_shift,omitempty"`
	DepartmentStatus  DepartmentStatus    `json:"department_status,omitempty" bson:"department_status,omitempty"`
	Owner             string              `json:"lead_owner" bson:"owner"`
	DepartmentHistory []LogEntry          `json:"department_history" bson:"department_history"`
	Version           int64               `json:"version" bson:"version"`
	CreatedBy         string              `json:"created_by" bson:"created_by"`
	CreatedAt         time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" bson:"updated_at"`
}

// Routed reports whether initial routing has bound the lead to a department.
func (l *Lead) Routed() bool {
	return l.CurrentDepartment != nil
}

// Label is the display name used in comments and notifications.
func (l *Lead) Label() string {
	if l.Name != "" {
		return l.Name
	}
	return l.ID.Hex()
}

// OpenEntry returns the most recent entry without an exit time.
func (l *Lead) OpenEntry() *LogEntry {
	for i := len(l.DepartmentHistory) - 1; i >= 0; i-- {
		if l.DepartmentHistory[i].Open() {
			return &l.DepartmentHistory[i]
		}
	}
	return nil
}

// closeOpenEntry stamps the open entry. An empty assigned user is filled from fallback.
func (l *Lead) closeOpenEntry(at time.Time, fallback string) {
	entry := l.OpenEntry()
	if entry == nil {
		return
	}
	t := at
	entry.ExitedAt = &t
	if entry.AssignedUser == "" {
		entry.AssignedUser = fallback
	}
}

func (l *Lead) enter(department primitive.ObjectID, at time.Time, action Action, assigned, notes string) {
	dept := department
	l.CurrentDepartment = &dept
	l.DepartmentHistory = append(l.DepartmentHistory, LogEntry{
		Department:   department,
		Shift:        l.CurrentShift,
		EnteredAt:    at,
		Action:       action,
		AssignedUser: assigned,
		Notes:        notes,
	})
}

// HistoricalAssignees lists every user named on a history entry, in first-seen order.
func (l *Lead) HistoricalAssignees() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range l.DepartmentHistory {
		if e.AssignedUser != "" && !seen[e.AssignedUser] {
			seen[e.AssignedUser] = true
			out = append(out, e.AssignedUser)
		}
	}
	return out
}

// Document is the view the access checks need.
func (l *Lead) Document() access.Document {
	return access.Document{
		ID:                  l.ID,
		CurrentDepartment:   l.CurrentDepartment,
		Owner:               l.Owner,
		CreatedBy:           l.CreatedBy,
		HistoricalAssignees: l.HistoricalAssignees(),
	}
}

// TransferRequest carries a transition request. ExpectedDepartment, when set,
// must match the lead's current department or the request is rejected as stale.
type TransferRequest struct {
	LeadID             string `json:"-"`
	ExpectedDepartment string `json:"expected_department,omitempty"`
	TargetStage        string `json:"target_stage,omitempty"`
	Notes              string `json:"notes,omitempty"`
}

type TransferStatus string

const (
	Transferred         TransferStatus = "transferred"
	Completed           TransferStatus = "completed"
	SentBack            TransferStatus = "sent_back"
	Rejected            TransferStatus = "rejected"
	OverrideTransferred TransferStatus = "override_transferred"
	Routed              TransferStatus = "routed"
)

type TransferResult struct {
	Status            TransferStatus     `json:"status"`
	LeadID            string             `json:"lead_id"`
	From              string             `json:"from,omitempty"`
	To                string             `json:"to"`
	FromID            primitive.ObjectID `json:"from_id,omitempty"`
	ToID              primitive.ObjectID `json:"to_id"`
	AssignedUser      string             `json:"assigned_user,omitempty"`
	AssignmentSkipped bool               `json:"assignment_skipped,omitempty"`
}

// HistoryEntry is a LogEntry with display names resolved.
type HistoryEntry struct {
	LogEntry         `bson:",inline"`
	DepartmentName   string `json:"department_name"`
	AssignedUserName string `json:"assigned_user_name,omitempty"`
}

// CreateResult reports the insert and the initial routing outcome. The lead
// exists even when routing failed; the sweep retries it.
type CreateResult struct {
	Lead         *Lead           `json:"lead"`
	Routing      *TransferResult `json:"routing,omitempty"`
	RoutingError string          `json:"routing_error,omitempty"`
}
