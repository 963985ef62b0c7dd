package lead

import (
	"context"
	"sort"
	"sync"
	"time"

	"lead-routing/internal/common/models"
	"lead-routing/internal/common/routingerr"
	"lead-routing/internal/features/access"
	"lead-routing/internal/features/assignment"
	"lead-routing/internal/features/notification"
	"lead-routing/internal/features/pipeline"
	"lead-routing/internal/features/shift"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type MockLeadRepo struct {
	mu      sync.Mutex
	leads   map[primitive.ObjectID]Lead
	saves   int
	SaveErr error
}

func NewMockLeadRepo() *MockLeadRepo {
	return &MockLeadRepo{leads: make(map[primitive.ObjectID]Lead)}
}

func clone(l Lead) Lead {
	l.DepartmentHistory = append([]LogEntry(nil), l.DepartmentHistory...)
	return l
}

func (m *MockLeadRepo) Insert(ctx context.Context, lead *Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lead.ID.IsZero() {
		lead.ID = primitive.NewObjectID()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now()
	}
	lead.Version = 1
	m.leads[lead.ID] = clone(*lead)
	return nil
}

func (m *MockLeadRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, routingerr.NotFound("find lead", "lead %s not found", id.Hex())
	}
	c := clone(l)
	return &c, nil
}

func (m *MockLeadRepo) Save(ctx context.Context, lead *Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	stored, ok := m.leads[lead.ID]
	if !ok {
		return routingerr.NotFound("save lead", "lead %s not found", lead.ID.Hex())
	}
	if stored.Version != lead.Version {
		return routingerr.Conflict("save lead", "lead %s was modified concurrently", lead.ID.Hex())
	}
	lead.Version++
	m.leads[lead.ID] = clone(*lead)
	return nil
}

func (m *MockLeadRepo) all() []Lead {
	var out []Lead
	for _, l := range m.leads {
		out = append(out, clone(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out
}

func (m *MockLeadRepo) List(ctx context.Context, filter bson.M, page, limit int64) ([]Lead, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.all()
	return all, int64(len(all)), nil
}

func (m *MockLeadRepo) FindHandledBy(ctx context.Context, user string) ([]Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Lead
	for _, l := range m.all() {
		if lastHandledBy(&l, user) != nil {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *MockLeadRepo) FindByStatuses(ctx context.Context, statuses []DepartmentStatus) ([]Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Lead
	for _, l := range m.all() {
		for _, s := range statuses {
			if l.DepartmentStatus == s {
				out = append(out, l)
				break
			}
		}
	}
	return out, nil
}

func (m *MockLeadRepo) FindNeedingRouting(ctx context.Context, limit int64) ([]Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Lead
	for _, l := range m.all() {
		if !l.Routed() || (l.Owner == "" && l.DepartmentStatus != StatusDone) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *MockLeadRepo) CountInStage(ctx context.Context, stageID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, l := range m.all() {
		if l.CurrentDepartment != nil && *l.CurrentDepartment == stageID {
			n++
		}
	}
	return n, nil
}

func (m *MockLeadRepo) get(id primitive.ObjectID) Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.leads[id])
}

type MockProvider struct {
	Stages []pipeline.Stage
	Rules  []pipeline.TransitionRule
}

func (m *MockProvider) Registry(ctx context.Context) (*pipeline.Registry, error) {
	return pipeline.NewRegistry(m.Stages, m.Rules), nil
}

type MockShifts struct {
	Shifts []shift.Shift
	Calls  int
}

func (m *MockShifts) ResolveAt(ctx context.Context, ts time.Time) (*shift.Shift, error) {
	m.Calls++
	return shift.Resolve(ts, m.Shifts), nil
}

// MockBalancer does least-loaded selection over an in-memory open set.
type MockBalancer struct {
	mu        sync.Mutex
	Open      map[string]string // lead -> user
	Load      map[string]int    // extra load per user
	AssignErr error
}

func NewMockBalancer() *MockBalancer {
	return &MockBalancer{Open: make(map[string]string), Load: make(map[string]int)}
}

func (m *MockBalancer) Assign(ctx context.Context, subj assignment.Subject, stage *pipeline.Stage, assignedBy string) (string, error) {
	if m.AssignErr != nil {
		return "", m.AssignErr
	}
	pool := assignment.EligiblePool(stage, subj.Shift)
	if len(pool) == 0 {
		return "", routingerr.NoEligibleMembers("assign", "no active team members in %s", stage.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for u, n := range m.Load {
		counts[u] = n
	}
	for _, u := range m.Open {
		counts[u]++
	}
	selected := assignment.LeastLoaded(pool, counts)
	m.Open[subj.ID] = selected
	return selected, nil
}

func (m *MockBalancer) SelfAssign(ctx context.Context, subj assignment.Subject, user string, stage *pipeline.Stage, assignedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Open[subj.ID] = user
	return nil
}

func (m *MockBalancer) AssignedUsers(ctx context.Context, refID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.Open[refID]; ok {
		return []string{u}, nil
	}
	return nil, nil
}

func (m *MockBalancer) ClearAssignments(ctx context.Context, refID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Open, refID)
	return nil
}

type MockAuthorizer struct {
	AdminRoles []string
	Deny       bool
}

func (m *MockAuthorizer) IsAdmin(caller models.Caller) bool {
	return caller.HasAnyRole(m.AdminRoles)
}

func (m *MockAuthorizer) AuthorizeOverride(ctx context.Context, caller models.Caller, current *pipeline.Stage) error {
	if m.IsAdmin(caller) || caller.HasRole(current.ManagerRole) {
		return nil
	}
	return routingerr.Authorization("manager override", "only the manager of %s may override", current.Name)
}

func (m *MockAuthorizer) CanAccess(ctx context.Context, caller models.Caller, doc access.Document, op access.Operation) (bool, error) {
	return !m.Deny, nil
}

func (m *MockAuthorizer) VisibilityFor(ctx context.Context, caller models.Caller) (*access.VisibilityPredicate, error) {
	return &access.VisibilityPredicate{Unrestricted: true}, nil
}

type MockNotifier struct {
	mu         sync.Mutex
	Comments   []notification.TimelineComment
	Events     []notification.RoutingEvent
	CommentErr error
}

func (m *MockNotifier) Notify(ctx context.Context, ev notification.RoutingEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
}

func (m *MockNotifier) AddComment(ctx context.Context, c *notification.TimelineComment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommentErr != nil {
		return m.CommentErr
	}
	m.Comments = append(m.Comments, *c)
	return nil
}

func (m *MockNotifier) Timeline(ctx context.Context, leadID string) ([]notification.TimelineComment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.TimelineComment
	for _, c := range m.Comments {
		if c.LeadID == leadID {
			out = append(out, c)
		}
	}
	return out, nil
}

type MockNames struct{}

func (MockNames) FullNames(ctx context.Context, ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		out[id] = "Name of " + id
	}
	return out
}

// fixture is the default five-stage pipeline with Day and Night shifts.
type fixture struct {
	onboarding, listing, ads, account, completion pipeline.Stage
	day, night                                    shift.Shift

	repo     *MockLeadRepo
	balancer *MockBalancer
	notifier *MockNotifier
	auth     *MockAuthorizer
	shifts   *MockShifts
	provider *MockProvider
	engine   *TransferEngineImpl
}

func stage(name string, order int, members ...pipeline.TeamMember) pipeline.Stage {
	return pipeline.Stage{
		ID:             primitive.NewObjectID(),
		Name:           name,
		Order:          order,
		Enabled:        true,
		DepartmentRole: name + " User",
		ManagerRole:    name + " Manager",
		TeamMembers:    members,
	}
}

func member(user string) pipeline.TeamMember {
	return pipeline.TeamMember{User: user, Active: true}
}

func rule(from, to pipeline.Stage, t pipeline.TransitionType) pipeline.TransitionRule {
	return pipeline.TransitionRule{ID: primitive.NewObjectID(), From: from.ID, To: to.ID, Type: t, Enabled: true}
}

func newFixture() *fixture {
	f := &fixture{
		onboarding: stage("Seller Onboarding", 1, member("so-1"), member("so-2")),
		listing:    stage("Product Listing", 2, member("pl-1")),
		ads:        stage("Google Ads", 3, member("ga-1")),
		account:    stage("Account Manager", 4, member("am-1")),
		completion: stage("Completion", 5, member("co-1")),
		day:        shift.Shift{ID: primitive.NewObjectID(), Name: "Morning", StartTime: "06:00:00", EndTime: "18:00:00", Enabled: true},
		night:      shift.Shift{ID: primitive.NewObjectID(), Name: "Night", StartTime: "18:00:00", EndTime: "06:00:00", Enabled: true},
	}
	f.completion.IsTerminal = true

	f.provider = &MockProvider{
		Stages: []pipeline.Stage{f.onboarding, f.listing, f.ads, f.account, f.completion},
		Rules: []pipeline.TransitionRule{
			rule(f.onboarding, f.listing, pipeline.Forward),
			rule(f.listing, f.ads, pipeline.Forward),
			rule(f.ads, f.account, pipeline.Forward),
			rule(f.account, f.completion, pipeline.Forward),
			rule(f.ads, f.listing, pipeline.Backward),
			rule(f.account, f.listing, pipeline.Backward),
			rule(f.listing, f.onboarding, pipeline.Reject),
			rule(f.ads, f.onboarding, pipeline.Reject),
			rule(f.account, f.onboarding, pipeline.Reject),
			rule(f.completion, f.onboarding, pipeline.Reject),
		},
	}
	f.repo = NewMockLeadRepo()
	f.balancer = NewMockBalancer()
	f.notifier = &MockNotifier{}
	f.auth = &MockAuthorizer{AdminRoles: []string{"Administrator"}}
	f.shifts = &MockShifts{Shifts: []shift.Shift{f.day, f.night}}

	f.engine = &TransferEngineImpl{
		Leads:       f.repo,
		Locker:      NewMemoryLocker(),
		Pipeline:    f.provider,
		Shifts:      f.shifts,
		Assignments: f.balancer,
		Access:      f.auth,
		Notifier:    f.notifier,
		Users:       MockNames{},
		Logger:      zap.NewNop(),
	}
	return f
}

var (
	base  = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	admin = models.Caller{UserID: "admin", Roles: []string{"Administrator"}, At: base}
)

func at(c models.Caller, d time.Duration) models.Caller {
	c.At = base.Add(d)
	return c
}

// newLead inserts and routes a lead created at createdAt by admin.
func (f *fixture) newLead(createdAt time.Time) *Lead {
	l := &Lead{Name: "Acme", CreatedBy: admin.UserID, CreatedAt: createdAt}
	if err := f.repo.Insert(context.Background(), l); err != nil {
		panic(err)
	}
	if _, err := f.engine.RouteNewLead(context.Background(), admin, l.ID.Hex()); err != nil {
		panic(err)
	}
	stored := f.repo.get(l.ID)
	return &stored
}

func (f *fixture) req(l *Lead) TransferRequest {
	return TransferRequest{LeadID: l.ID.Hex()}
}

func openEntries(l Lead) []LogEntry {
	var out []LogEntry
	for _, e := range l.DepartmentHistory {
		if e.Open() {
			out = append(out, e)
		}
	}
	return out
}
