package lead

import (
	"context"
	"fmt"
	"time"

	"lead-routing/internal/common/models"
	"lead-routing/internal/common/routingerr"
	"lead-routing/internal/features/access"
	"lead-routing/internal/features/pipeline"
	"lead-routing/internal/features/user"
	"lead-routing/pkg/utils"

	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	ViewPersonal = "personal"
	ViewGlobal   = "global"
)

// HistoryLead is a lead row in a history view. Personal views fill the
// User* fields, global views the LastHandled* fields.
type HistoryLead struct {
	ID                primitive.ObjectID  `json:"id"`
	Name              string              `json:"lead_name"`
	Email             string              `json:"email,omitempty"`
	Mobile            string              `json:"mobile_no,omitempty"`
	CurrentDepartment *primitive.ObjectID `json:"current_department,omitempty"`
	DepartmentStatus  DepartmentStatus    `json:"department_status,omitempty"`
	UpdatedAt         time.Time           `json:"modified"`

	UserAction       Action              `json:"user_action,omitempty"`
	ActionDepartment *primitive.ObjectID `json:"action_department,omitempty"`
	ActionAt         *time.Time          `json:"action_at,omitempty"`

	LastHandledBy     string `json:"last_handled_by,omitempty"`
	LastHandledByName string `json:"last_handled_by_name,omitempty"`
	LastAction        Action `json:"last_action,omitempty"`
}

type HistoryView struct {
	ViewType      string        `json:"view_type"`
	User          string        `json:"user,omitempty"`
	FullName      string        `json:"full_name,omitempty"`
	Leads         []HistoryLead `json:"leads"`
	DoneCount     int           `json:"done_count"`
	RejectedCount int           `json:"rejected_count"`
}

type HistoryService interface {
	// GetMyLeadHistory returns the caller's handled leads. Admins get the global
	// view, or the personal view of user when it is set.
	GetMyLeadHistory(ctx context.Context, caller models.Caller, user string) (*HistoryView, error)
	ExportGlobalHistory(ctx context.Context, caller models.Caller) ([]byte, string, error)
}

type HistoryServiceImpl struct {
	Leads    LeadRepository
	Access   Authorizer
	Pipeline pipeline.RegistryProvider
	Users    NameDirectory
	Logger   *zap.Logger
}

func NewHistoryService(leads LeadRepository, accessService access.AccessService, provider pipeline.RegistryProvider, users user.UserService, logger *zap.Logger) HistoryService {
	return &HistoryServiceImpl{
		Leads:    leads,
		Access:   accessService,
		Pipeline: provider,
		Users:    users,
		Logger:   logger,
	}
}

func (s *HistoryServiceImpl) GetMyLeadHistory(ctx context.Context, caller models.Caller, user string) (*HistoryView, error) {
	admin := s.Access.IsAdmin(caller)
	if user != "" && user != caller.UserID && !admin {
		return nil, routingerr.Authorization("lead history", "you do not have permission to view other users' lead history")
	}

	switch {
	case admin && user != "":
		return s.personal(ctx, user)
	case admin:
		return s.global(ctx)
	default:
		return s.personal(ctx, caller.UserID)
	}
}

func (s *HistoryServiceImpl) personal(ctx context.Context, user string) (*HistoryView, error) {
	leads, err := s.Leads.FindHandledBy(ctx, user)
	if err != nil {
		return nil, err
	}

	view := &HistoryView{
		ViewType: ViewPersonal,
		User:     user,
		FullName: s.Users.FullNames(ctx, []string{user})[user],
		Leads:    make([]HistoryLead, 0, len(leads)),
	}
	for i := range leads {
		entry := lastHandledBy(&leads[i], user)
		if entry == nil {
			continue
		}
		row := historyRow(&leads[i])
		row.UserAction = entry.Action
		dept := entry.Department
		row.ActionDepartment = &dept
		row.ActionAt = entry.ExitedAt
		view.Leads = append(view.Leads, row)
	}
	return view, nil
}

// lastHandledBy returns the most recently closed entry assigned to user.
func lastHandledBy(l *Lead, user string) *LogEntry {
	var last *LogEntry
	for i := range l.DepartmentHistory {
		e := &l.DepartmentHistory[i]
		if e.AssignedUser != user || e.ExitedAt == nil {
			continue
		}
		if last == nil || e.ExitedAt.After(*last.ExitedAt) {
			last = e
		}
	}
	return last
}

func (s *HistoryServiceImpl) global(ctx context.Context) (*HistoryView, error) {
	leads, err := s.Leads.FindByStatuses(ctx, []DepartmentStatus{StatusDone, StatusRejected})
	if err != nil {
		return nil, err
	}

	view := &HistoryView{ViewType: ViewGlobal, Leads: make([]HistoryLead, 0, len(leads))}

	var handlers []string
	last := make([]*LogEntry, len(leads))
	for i := range leads {
		last[i] = lastHandled(&leads[i])
		if last[i] != nil {
			handlers = append(handlers, last[i].AssignedUser)
		}
	}
	names := s.Users.FullNames(ctx, handlers)

	for i := range leads {
		row := historyRow(&leads[i])
		if e := last[i]; e != nil {
			row.LastHandledBy = e.AssignedUser
			row.LastHandledByName = names[e.AssignedUser]
			row.LastAction = e.Action
		}
		switch leads[i].DepartmentStatus {
		case StatusDone:
			view.DoneCount++
		case StatusRejected:
			view.RejectedCount++
		}
		view.Leads = append(view.Leads, row)
	}
	return view, nil
}

// lastHandled returns the assigned entry with the latest exit. Open entries sort after closed ones.
func lastHandled(l *Lead) *LogEntry {
	var last *LogEntry
	for i := range l.DepartmentHistory {
		e := &l.DepartmentHistory[i]
		if e.AssignedUser == "" {
			continue
		}
		switch {
		case last == nil:
			last = e
		case e.ExitedAt != nil && (last.ExitedAt == nil || e.ExitedAt.After(*last.ExitedAt)):
			last = e
		}
	}
	return last
}

func historyRow(l *Lead) HistoryLead {
	return HistoryLead{
		ID:                l.ID,
		Name:              l.Name,
		Email:             l.Email,
		Mobile:            l.Mobile,
		CurrentDepartment: l.CurrentDepartment,
		DepartmentStatus:  l.DepartmentStatus,
		UpdatedAt:         l.UpdatedAt,
	}
}

var exportColumns = []string{"Lead", "Name", "Email", "Mobile", "Department", "Status", "Last Handled By", "Last Action", "Modified"}

func (s *HistoryServiceImpl) ExportGlobalHistory(ctx context.Context, caller models.Caller) ([]byte, string, error) {
	if !s.Access.IsAdmin(caller) {
		return nil, "", routingerr.Authorization("export lead history", "only administrators may export the global history")
	}

	view, err := s.global(ctx)
	if err != nil {
		return nil, "", err
	}

	stageNames := make(map[primitive.ObjectID]string)
	if reg, err := s.Pipeline.Registry(ctx); err != nil {
		s.Logger.Warn("failed to load pipeline for export", zap.Error(err))
	} else {
		for _, st := range reg.StoredStages() {
			stageNames[st.ID] = st.Name
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "History"
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, "", err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	for i, col := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, col)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, l := range view.Leads {
		dept := ""
		if l.CurrentDepartment != nil {
			dept = stageNames[*l.CurrentDepartment]
			if dept == "" {
				dept = l.CurrentDepartment.Hex()
			}
		}
		values := []interface{}{
			l.ID.Hex(), l.Name, l.Email, l.Mobile, dept, string(l.DepartmentStatus),
			l.LastHandledByName, string(l.LastAction), l.UpdatedAt.Format("2006-01-02 15:04:05"),
		}
		for colIdx, v := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	for i := range exportColumns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, col, col, 18)
	}

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	filename := utils.Slugify(fmt.Sprintf("lead history %s", caller.Now().Format("2006-01-02"))) + ".xlsx"
	return buffer.Bytes(), filename, nil
}
