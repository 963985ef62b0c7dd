package lead

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lead-routing/internal/common/models"
	"lead-routing/internal/common/routingerr"
	"lead-routing/internal/features/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func requireKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, kind), "got %v", err)
}

// checkRouted asserts the history invariants of a lead that is still being worked.
func checkRouted(t *testing.T, l Lead) {
	t.Helper()
	require.True(t, l.Routed())
	open := openEntries(l)
	require.Len(t, open, 1)
	assert.Equal(t, *l.CurrentDepartment, open[0].Department)

	for i := 1; i < len(l.DepartmentHistory); i++ {
		prev, cur := l.DepartmentHistory[i-1], l.DepartmentHistory[i]
		require.NotNil(t, prev.ExitedAt)
		assert.False(t, cur.EnteredAt.Before(prev.EnteredAt))
		assert.Equal(t, *prev.ExitedAt, cur.EnteredAt)
		assert.Equal(t, prev.Shift, cur.Shift)
	}
}

func TestRouteNewLeadToFirstStage(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)

	checkRouted(t, *l)
	assert.Equal(t, f.onboarding.ID, *l.CurrentDepartment)
	assert.Equal(t, StatusWorking, l.DepartmentStatus)
	require.NotNil(t, l.CurrentShift)
	assert.Equal(t, f.day.ID, *l.CurrentShift)
	assert.Equal(t, "so-1", l.Owner)

	entry := l.DepartmentHistory[0]
	assert.Equal(t, ActionInitial, entry.Action)
	assert.Equal(t, "so-1", entry.AssignedUser)
	assert.Equal(t, base, entry.EnteredAt)

	require.Len(t, f.notifier.Comments, 1)
	assert.Equal(t, "Lead assigned to Seller Onboarding (Morning)", f.notifier.Comments[0].Content)
	require.Len(t, f.notifier.Events, 1)
	assert.Equal(t, EventInitialAssignment, f.notifier.Events[0].Action)
	assert.Equal(t, []string{"so-1"}, f.notifier.Events[0].AssignedUsers)
}

func TestRouteNewLeadNightShift(t *testing.T) {
	f := newFixture()
	l := f.newLead(time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC))
	require.NotNil(t, l.CurrentShift)
	assert.Equal(t, f.night.ID, *l.CurrentShift)
}

func TestRouteNewLeadSelfAssign(t *testing.T) {
	f := newFixture()
	creator := models.Caller{UserID: "pl-7", Roles: []string{"Product Listing User"}, At: base}

	l := &Lead{Name: "Own", CreatedBy: creator.UserID, CreatedAt: base}
	require.NoError(t, f.repo.Insert(context.Background(), l))

	res, err := f.engine.RouteNewLead(context.Background(), creator, l.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, Routed, res.Status)
	assert.Equal(t, "pl-7", res.AssignedUser)

	stored := f.repo.get(l.ID)
	assert.Equal(t, f.listing.ID, *stored.CurrentDepartment)
	assert.Equal(t, "pl-7", stored.Owner)
	assert.Equal(t, "pl-7", stored.DepartmentHistory[0].AssignedUser)
	assert.Equal(t, "pl-7", f.balancer.Open[l.ID.Hex()])
	assert.Equal(t, "Lead created and self-assigned by pl-7 in Product Listing", f.notifier.Comments[0].Content)
}

func TestRouteNewLeadTwice(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)
	_, err := f.engine.RouteNewLead(context.Background(), admin, l.ID.Hex())
	requireKind(t, err, routingerr.ErrInvalidTransition)
}

func TestForwardChainToCompletion(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)
	ctx := context.Background()

	want := []pipeline.Stage{f.listing, f.ads, f.account, f.completion}
	for i, next := range want {
		res, err := f.engine.MarkDone(ctx, at(admin, time.Duration(i+1)*time.Hour), f.req(l))
		require.NoError(t, err)
		assert.Equal(t, Transferred, res.Status)
		assert.Equal(t, next.Name, res.To)

		stored := f.repo.get(l.ID)
		checkRouted(t, stored)
		assert.Equal(t, next.ID, *stored.CurrentDepartment)
		assert.Len(t, stored.DepartmentHistory, i+2)
		assert.Equal(t, ActionForward, stored.OpenEntry().Action)
	}

	// the first stay was closed by its assignee
	stored := f.repo.get(l.ID)
	assert.Equal(t, "so-1", stored.DepartmentHistory[0].AssignedUser)
	assert.Equal(t, "co-1", stored.Owner)

	res, err := f.engine.MarkDone(ctx, at(admin, 5*time.Hour), f.req(l))
	require.NoError(t, err)
	assert.Equal(t, Completed, res.Status)

	done := f.repo.get(l.ID)
	assert.Equal(t, StatusDone, done.DepartmentStatus)
	assert.Equal(t, f.completion.ID, *done.CurrentDepartment)
	assert.Len(t, done.DepartmentHistory, 5)
	assert.Empty(t, openEntries(done))
	assert.Equal(t, "co-1", done.Owner)
	assert.Empty(t, f.balancer.Open)
	assert.Equal(t, "Lead lifecycle completed at Completion", f.notifier.Comments[len(f.notifier.Comments)-1].Content)

	_, err = f.engine.MarkDone(ctx, at(admin, 6*time.Hour), f.req(l))
	requireKind(t, err, routingerr.ErrInvalidTransition)
	assert.Equal(t, done, f.repo.get(l.ID))
}

func TestMarkDoneNeedsForwardRule(t *testing.T) {
	f := newFixture()
	f.provider.Rules = f.provider.Rules[1:]
	l := f.newLead(base)

	_, err := f.engine.MarkDone(context.Background(), at(admin, time.Hour), f.req(l))
	requireKind(t, err, routingerr.ErrInvalidTransition)
	assert.Equal(t, *l, f.repo.get(l.ID))
}

func TestEdgeTransitionsLeaveLeadUntouched(t *testing.T) {
	tests := []struct {
		name string
		run  func(f *fixture, req TransferRequest) error
	}{
		{"Reject At First Stage", func(f *fixture, req TransferRequest) error {
			_, err := f.engine.Reject(context.Background(), at(admin, time.Hour), req)
			return err
		}},
		{"Send Back At First Stage", func(f *fixture, req TransferRequest) error {
			_, err := f.engine.SendBack(context.Background(), at(admin, time.Hour), req)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			l := f.newLead(base)
			comments := len(f.notifier.Comments)

			requireKind(t, tt.run(f, f.req(l)), routingerr.ErrInvalidTransition)
			assert.Equal(t, *l, f.repo.get(l.ID))
			assert.Len(t, f.notifier.Comments, comments)
		})
	}
}

func TestRejectReturnsToFirstStage(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)
	ctx := context.Background()

	_, err := f.engine.MarkDone(ctx, at(admin, time.Hour), f.req(l))
	require.NoError(t, err)

	req := f.req(l)
	req.Notes = "missing documents"
	res, err := f.engine.Reject(ctx, at(admin, 2*time.Hour), req)
	require.NoError(t, err)
	assert.Equal(t, Rejected, res.Status)
	assert.Equal(t, "Product Listing", res.From)
	assert.Equal(t, "Seller Onboarding", res.To)

	stored := f.repo.get(l.ID)
	checkRouted(t, stored)
	assert.Equal(t, StatusRejected, stored.DepartmentStatus)
	assert.Equal(t, f.onboarding.ID, *stored.CurrentDepartment)
	assert.Equal(t, ActionReject, stored.OpenEntry().Action)
	assert.Equal(t, "missing documents", stored.OpenEntry().Notes)
	assert.Equal(t, "Lead rejected back to Seller Onboarding — missing documents", f.notifier.Comments[len(f.notifier.Comments)-1].Content)

	// the rejected lead moves forward again as Working
	_, err = f.engine.MarkDone(ctx, at(admin, 3*time.Hour), f.req(l))
	require.NoError(t, err)
	assert.Equal(t, StatusWorking, f.repo.get(l.ID).DepartmentStatus)
}

func TestSendBackToPreviousStage(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		_, err := f.engine.MarkDone(ctx, at(admin, time.Duration(i)*time.Hour), f.req(l))
		require.NoError(t, err)
	}

	res, err := f.engine.SendBack(ctx, at(admin, 3*time.Hour), f.req(l))
	require.NoError(t, err)
	assert.Equal(t, SentBack, res.Status)
	assert.Equal(t, f.listing.ID, res.ToID)

	stored := f.repo.get(l.ID)
	checkRouted(t, stored)
	assert.Equal(t, ActionBackward, stored.OpenEntry().Action)
	assert.Equal(t, StatusWorking, stored.DepartmentStatus)
}

func TestExpectedDepartmentMismatch(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)

	req := f.req(l)
	req.ExpectedDepartment = f.ads.ID.Hex()
	_, err := f.engine.MarkDone(context.Background(), at(admin, time.Hour), req)
	requireKind(t, err, routingerr.ErrConflict)
	assert.Equal(t, *l, f.repo.get(l.ID))
}

func TestConcurrentMarkDone(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)

	req := f.req(l)
	req.ExpectedDepartment = f.onboarding.ID.Hex()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.MarkDone(context.Background(), at(admin, time.Hour), req)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, routingerr.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	stored := f.repo.get(l.ID)
	checkRouted(t, stored)
	assert.Len(t, stored.DepartmentHistory, 2)
	assert.Equal(t, f.listing.ID, *stored.CurrentDepartment)
}

func TestHeldLockRejectsTransition(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)

	unlock, err := f.engine.Locker.TryLock(context.Background(), l.ID.Hex())
	require.NoError(t, err)
	defer unlock()

	_, err = f.engine.MarkDone(context.Background(), at(admin, time.Hour), f.req(l))
	requireKind(t, err, routingerr.ErrConflict)
}

func TestTransferWithNoEligibleMembers(t *testing.T) {
	f := newFixture()
	f.provider.Stages[1].TeamMembers = []pipeline.TeamMember{{User: "pl-1", Active: false}}
	l := f.newLead(base)

	res, err := f.engine.MarkDone(context.Background(), at(admin, time.Hour), f.req(l))
	require.NoError(t, err)
	assert.True(t, res.AssignmentSkipped)
	assert.Empty(t, res.AssignedUser)

	stored := f.repo.get(l.ID)
	checkRouted(t, stored)
	assert.Equal(t, f.listing.ID, *stored.CurrentDepartment)
	assert.Empty(t, stored.Owner)
	assert.Empty(t, stored.OpenEntry().AssignedUser)
	assert.Nil(t, f.notifier.Events[len(f.notifier.Events)-1].AssignedUsers)
}

func TestAssignmentFailureDoesNotFailTransfer(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)
	f.balancer.AssignErr = errors.New("assignments store down")

	res, err := f.engine.MarkDone(context.Background(), at(admin, time.Hour), f.req(l))
	require.NoError(t, err)
	assert.True(t, res.AssignmentSkipped)
	assert.Equal(t, f.listing.ID, *f.repo.get(l.ID).CurrentDepartment)
}

func TestNotifierFailureDoesNotFailTransfer(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)
	f.notifier.CommentErr = errors.New("comments store down")

	_, err := f.engine.MarkDone(context.Background(), at(admin, time.Hour), f.req(l))
	require.NoError(t, err)
	assert.Equal(t, f.listing.ID, *f.repo.get(l.ID).CurrentDepartment)
}

func TestSaveFailureAbortsTransfer(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)
	events := len(f.notifier.Events)
	f.repo.SaveErr = errors.New("write failed")

	_, err := f.engine.MarkDone(context.Background(), at(admin, time.Hour), f.req(l))
	require.Error(t, err)
	assert.Len(t, f.notifier.Events, events)
	assert.Equal(t, "so-1", f.balancer.Open[l.ID.Hex()])
}

func TestTransitionRequiresAccess(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)
	f.auth.Deny = true

	_, err := f.engine.MarkDone(context.Background(), at(admin, time.Hour), f.req(l))
	requireKind(t, err, routingerr.ErrAuthorization)
	assert.Equal(t, *l, f.repo.get(l.ID))
}

func TestTransitionOnUnroutedLead(t *testing.T) {
	f := newFixture()
	l := &Lead{Name: "Raw", CreatedBy: "admin", CreatedAt: base}
	require.NoError(t, f.repo.Insert(context.Background(), l))

	_, err := f.engine.MarkDone(context.Background(), admin, f.req(l))
	requireKind(t, err, routingerr.ErrInvalidTransition)
}

func TestTransitionBadLeadID(t *testing.T) {
	f := newFixture()
	_, err := f.engine.MarkDone(context.Background(), admin, TransferRequest{LeadID: "nope"})
	requireKind(t, err, routingerr.ErrValidation)

	_, err = f.engine.MarkDone(context.Background(), admin, TransferRequest{LeadID: primitive.NewObjectID().Hex()})
	requireKind(t, err, routingerr.ErrNotFound)
}

func TestCurrentStageMissing(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)
	f.provider.Stages = f.provider.Stages[1:]

	_, err := f.engine.MarkDone(context.Background(), at(admin, time.Hour), f.req(l))
	requireKind(t, err, routingerr.ErrConfiguration)
}

// leadInDisabledListing moves a lead into Product Listing and then disables that stage.
func leadInDisabledListing(t *testing.T) (*fixture, *Lead) {
	t.Helper()
	f := newFixture()
	l := f.newLead(base)
	_, err := f.engine.MarkDone(context.Background(), at(admin, time.Hour), f.req(l))
	require.NoError(t, err)
	f.provider.Stages[1].Enabled = false

	stored := f.repo.get(l.ID)
	return f, &stored
}

func TestRoutesOutOfDisabledStage(t *testing.T) {
	listingManager := models.Caller{UserID: "plm", Roles: []string{"Product Listing Manager"}}

	tests := []struct {
		name   string
		run    func(f *fixture, req TransferRequest) (*TransferResult, error)
		target func(f *fixture) primitive.ObjectID
	}{
		{"Admin Override", func(f *fixture, req TransferRequest) (*TransferResult, error) {
			req.TargetStage = f.ads.ID.Hex()
			return f.engine.ManagerOverride(context.Background(), at(admin, 2*time.Hour), req)
		}, func(f *fixture) primitive.ObjectID { return f.ads.ID }},
		{"Stage Manager Override", func(f *fixture, req TransferRequest) (*TransferResult, error) {
			req.TargetStage = f.account.ID.Hex()
			return f.engine.ManagerOverride(context.Background(), at(listingManager, 2*time.Hour), req)
		}, func(f *fixture) primitive.ObjectID { return f.account.ID }},
		{"Send Back", func(f *fixture, req TransferRequest) (*TransferResult, error) {
			return f.engine.SendBack(context.Background(), at(admin, 2*time.Hour), req)
		}, func(f *fixture) primitive.ObjectID { return f.onboarding.ID }},
		{"Mark Done", func(f *fixture, req TransferRequest) (*TransferResult, error) {
			return f.engine.MarkDone(context.Background(), at(admin, 2*time.Hour), req)
		}, func(f *fixture) primitive.ObjectID { return f.ads.ID }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, l := leadInDisabledListing(t)

			res, err := tt.run(f, f.req(l))
			require.NoError(t, err)
			assert.Equal(t, "Product Listing", res.From)

			stored := f.repo.get(l.ID)
			checkRouted(t, stored)
			assert.Equal(t, tt.target(f), *stored.CurrentDepartment)
		})
	}
}

func TestOverrideIntoDisabledStage(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)
	f.provider.Stages[2].Enabled = false

	req := f.req(l)
	req.TargetStage = f.ads.ID.Hex()
	_, err := f.engine.ManagerOverride(context.Background(), at(admin, time.Hour), req)
	requireKind(t, err, routingerr.ErrNotFound)
	assert.Equal(t, *l, f.repo.get(l.ID))
}

func TestManagerOverride(t *testing.T) {
	manager := models.Caller{UserID: "som", Roles: []string{"Seller Onboarding Manager"}}
	outsider := models.Caller{UserID: "gam", Roles: []string{"Google Ads Manager"}}

	tests := []struct {
		name    string
		caller  models.Caller
		target  func(f *fixture) string
		wantErr error
	}{
		{"Current Manager", manager, func(f *fixture) string { return f.ads.ID.Hex() }, nil},
		{"Admin", admin, func(f *fixture) string { return f.completion.ID.Hex() }, nil},
		{"Other Manager", outsider, func(f *fixture) string { return f.ads.ID.Hex() }, routingerr.ErrAuthorization},
		{"Same Stage", manager, func(f *fixture) string { return f.onboarding.ID.Hex() }, routingerr.ErrInvalidTransition},
		{"Unknown Stage", manager, func(f *fixture) string { return primitive.NewObjectID().Hex() }, routingerr.ErrNotFound},
		{"Bad Stage ID", manager, func(f *fixture) string { return "ads" }, routingerr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			l := f.newLead(base)

			req := f.req(l)
			req.TargetStage = tt.target(f)
			req.Notes = "escalated"
			res, err := f.engine.ManagerOverride(context.Background(), at(tt.caller, time.Hour), req)
			if tt.wantErr != nil {
				requireKind(t, err, tt.wantErr)
				assert.Equal(t, *l, f.repo.get(l.ID))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, OverrideTransferred, res.Status)
			stored := f.repo.get(l.ID)
			checkRouted(t, stored)
			assert.Equal(t, req.TargetStage, stored.CurrentDepartment.Hex())
			assert.Equal(t, ActionManagerOverride, stored.OpenEntry().Action)
			assert.Equal(t, StatusWorking, stored.DepartmentStatus)
		})
	}
}

func TestManagerOverrideReopensCompletedLead(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)

	req := f.req(l)
	req.TargetStage = f.completion.ID.Hex()
	_, err := f.engine.ManagerOverride(context.Background(), at(admin, time.Hour), req)
	require.NoError(t, err)
	_, err = f.engine.MarkDone(context.Background(), at(admin, 2*time.Hour), f.req(l))
	require.NoError(t, err)
	require.Equal(t, StatusDone, f.repo.get(l.ID).DepartmentStatus)

	req.TargetStage = f.account.ID.Hex()
	_, err = f.engine.ManagerOverride(context.Background(), at(admin, 3*time.Hour), req)
	require.NoError(t, err)

	stored := f.repo.get(l.ID)
	assert.Equal(t, StatusWorking, stored.DepartmentStatus)
	assert.Equal(t, f.account.ID, *stored.CurrentDepartment)
	assert.Len(t, openEntries(stored), 1)
}

func TestReassign(t *testing.T) {
	f := newFixture()
	f.provider.Stages[0].TeamMembers = nil
	l := f.newLead(base)
	require.Empty(t, l.Owner)

	ctx := context.Background()
	_, err := f.engine.Reassign(ctx, admin, l.ID.Hex())
	requireKind(t, err, routingerr.ErrNoEligibleMembers)

	f.provider.Stages[0].TeamMembers = []pipeline.TeamMember{member("so-9")}
	res, err := f.engine.Reassign(ctx, admin, l.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "so-9", res.AssignedUser)

	stored := f.repo.get(l.ID)
	assert.Equal(t, "so-9", stored.Owner)
	assert.Equal(t, "so-9", stored.OpenEntry().AssignedUser)
	assert.Len(t, stored.DepartmentHistory, 1)

	_, err = f.engine.Reassign(ctx, admin, l.ID.Hex())
	requireKind(t, err, routingerr.ErrConflict)
}

func TestReassignRoutesUnroutedLead(t *testing.T) {
	f := newFixture()
	l := &Lead{Name: "Raw", CreatedBy: "importer", CreatedAt: base}
	require.NoError(t, f.repo.Insert(context.Background(), l))

	res, err := f.engine.Reassign(context.Background(), models.SystemCaller, l.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, Routed, res.Status)
	assert.Equal(t, f.onboarding.ID, *f.repo.get(l.ID).CurrentDepartment)
}

func TestBalancerSpreadsLoad(t *testing.T) {
	f := newFixture()
	first := f.newLead(base)
	second := f.newLead(base.Add(time.Minute))
	third := f.newLead(base.Add(2 * time.Minute))

	assert.Equal(t, "so-1", first.Owner)
	assert.Equal(t, "so-2", second.Owner)
	assert.Equal(t, "so-1", third.Owner)
}

func TestGetDepartmentHistory(t *testing.T) {
	f := newFixture()
	l := f.newLead(base)
	_, err := f.engine.MarkDone(context.Background(), at(admin, time.Hour), f.req(l))
	require.NoError(t, err)

	entries, err := f.engine.GetDepartmentHistory(context.Background(), admin, l.ID.Hex())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Seller Onboarding", entries[0].DepartmentName)
	assert.Equal(t, "Name of so-1", entries[0].AssignedUserName)
	assert.Equal(t, "Product Listing", entries[1].DepartmentName)
	assert.Equal(t, "Name of pl-1", entries[1].AssignedUserName)

	f.auth.Deny = true
	_, err = f.engine.GetDepartmentHistory(context.Background(), admin, l.ID.Hex())
	requireKind(t, err, routingerr.ErrAuthorization)
}

func TestTransferComment(t *testing.T) {
	assert.Equal(t, "Lead moved forward to Google Ads", transferComment(ActionForward, "Google Ads", ""))
	assert.Equal(t, "Lead manually transferred to Completion — vip", transferComment(ActionManagerOverride, "Completion", "vip"))
	assert.Equal(t, "Lead transferred to X", transferComment(Action("Other"), "X", ""))
}
