package lead

import (
	"context"
	"reflect"

	"lead-routing/internal/common/routingerr"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LeadPatch is a generic field update. nil fields are left alone.
type LeadPatch struct {
	Name              *string             `json:"lead_name,omitempty"`
	Email             *string             `json:"email,omitempty"`
	Mobile            *string             `json:"mobile_no,omitempty"`
	Owner             *string             `json:"lead_owner,omitempty"`
	CurrentDepartment *primitive.ObjectID `json:"current_department,omitempty"`
	CurrentShift      *primitive.ObjectID `json:"current_shift,omitempty"`
	DepartmentStatus  *DepartmentStatus   `json:"department_status,omitempty"`
	DepartmentHistory *[]LogEntry         `json:"department_history,omitempty"`
}

// Apply returns a copy of l with the patch applied.
func (p LeadPatch) Apply(l *Lead) *Lead {
	next := *l
	next.DepartmentHistory = append([]LogEntry(nil), l.DepartmentHistory...)

	if p.Name != nil {
		next.Name = *p.Name
	}
	if p.Email != nil {
		next.Email = *p.Email
	}
	if p.Mobile != nil {
		next.Mobile = *p.Mobile
	}
	if p.Owner != nil {
		next.Owner = *p.Owner
	}
	if p.CurrentDepartment != nil {
		dept := *p.CurrentDepartment
		next.CurrentDepartment = &dept
	}
	if p.CurrentShift != nil {
		s := *p.CurrentShift
		next.CurrentShift = &s
	}
	if p.DepartmentStatus != nil {
		next.DepartmentStatus = *p.DepartmentStatus
	}
	if p.DepartmentHistory != nil {
		next.DepartmentHistory = append([]LogEntry(nil), (*p.DepartmentHistory)...)
	}
	return &next
}

// PreWriteHook inspects a generic write before it is saved. Returning an error aborts the write.
type PreWriteHook func(ctx context.Context, before, after *Lead) error

// RoutingGuard rejects edits to routing fields once a lead has a department.
// Those fields only change through the transfer engine.
func RoutingGuard(ctx context.Context, before, after *Lead) error {
	if !before.Routed() {
		return nil
	}

	var field string
	switch {
	case !sameID(before.CurrentDepartment, after.CurrentDepartment):
		field = "current_department"
	case !sameID(before.CurrentShift, after.CurrentShift):
		field = "current_shift"
	case before.DepartmentStatus != after.DepartmentStatus:
		field = "department_status"
	case !reflect.DeepEqual(before.DepartmentHistory, after.DepartmentHistory):
		field = "department_history"
	default:
		return nil
	}

	return routingerr.Validation("update lead",
		"%s changes must be made through the routing actions, direct edits are not allowed", field)
}

func sameID(a, b *primitive.ObjectID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
