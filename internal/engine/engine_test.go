package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/migrate"
	"caseline/internal/repo"
	"caseline/internal/router"
)

var (
	admin   = domain.Actor{ID: "u-admin", Role: domain.RoleAdmin}
	officer = domain.Actor{ID: "u-officer", Role: domain.RoleFieldOfficer}
	worker  = domain.Actor{ID: "u-worker", Role: domain.RoleCaseWorker}
	viewer  = domain.Actor{ID: "u-viewer", Role: domain.RoleViewer}
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	clock  *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(conn, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := engine.New(conn, dialect, nil)
	eng.Now = func() time.Time { return clock }
	return testEnv{Engine: eng, Ctx: context.Background(), clock: &clock}
}

func (env testEnv) advanceClock(d time.Duration) {
	*env.clock = env.clock.Add(d)
}

func (env testEnv) org(t *testing.T, name string, active bool) (domain.Organization, domain.Actor) {
	t.Helper()
	o, err := env.Engine.CreateOrganization(env.Ctx, admin, engine.OrganizationCreateOptions{
		Name: name, SectorsProvided: []string{"Food"}, LocationsCovered: []string{"Kano"}, Active: active,
	})
	if err != nil {
		t.Fatalf("create org %s: %v", name, err)
	}
	return o, domain.Actor{ID: "u-" + name, Role: domain.RoleOrganization, OrganizationID: o.ID}
}

func (env testEnv) referral(t *testing.T) domain.Referral {
	t.Helper()
	r, err := env.Engine.CreateReferral(env.Ctx, officer, engine.ReferralCreateOptions{ClientName: "Amina", Reason: "needs food"})
	if err != nil {
		t.Fatalf("create referral: %v", err)
	}
	return r
}

func (env testEnv) approvedCase(t *testing.T) domain.Case {
	t.Helper()
	c, err := env.Engine.CreateCase(env.Ctx, officer, engine.CaseCreateOptions{Title: "Flooded home"})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	c, err = env.Engine.ApproveCase(env.Ctx, admin, c.ID, 0)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return c
}

func expectKind(t *testing.T, err error, want domain.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want)
	}
	if got := domain.KindOf(err); got != want {
		t.Fatalf("expected %s, got %v", want, err)
	}
}

func TestCreateCaseDefaults(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateCase(env.Ctx, officer, engine.CaseCreateOptions{Title: "  Lost documents "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Status != domain.StatusOpen || c.ApprovalStatus != domain.StatusPending || c.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.Title != "Lost documents" || c.Version != 1 || c.CreatedBy != officer.ID {
		t.Fatalf("unexpected case %+v", c)
	}
	if len(c.CaseNumber) < 6 || c.CaseNumber[:5] != "CASE-" {
		t.Fatalf("case number %q", c.CaseNumber)
	}
	_, err = env.Engine.CreateCase(env.Ctx, officer, engine.CaseCreateOptions{Title: " "})
	expectKind(t, err, domain.KindValidationFailed)
	_, err = env.Engine.CreateCase(env.Ctx, officer, engine.CaseCreateOptions{Title: "x", Priority: "critical"})
	expectKind(t, err, domain.KindValidationFailed)
	_, err = env.Engine.CreateCase(env.Ctx, viewer, engine.CaseCreateOptions{Title: "x"})
	expectKind(t, err, domain.KindNotAuthorized)
}

func TestApproveIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	c, _ := env.Engine.CreateCase(env.Ctx, officer, engine.CaseCreateOptions{Title: "t"})
	first, err := env.Engine.ApproveCase(env.Ctx, admin, c.ID, 0)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if first.Status != domain.StatusApproved || first.ApprovalStatus != domain.StatusApproved {
		t.Fatalf("unexpected state %s/%s", first.Status, first.ApprovalStatus)
	}
	if first.ApprovedBy == nil || *first.ApprovedBy != admin.ID || first.ApprovedAt == nil {
		t.Fatalf("approval not stamped: %+v", first)
	}

	env.advanceClock(time.Hour)
	second, err := env.Engine.ApproveCase(env.Ctx, domain.Actor{ID: "u-other-admin", Role: domain.RoleStateAdmin}, c.ID, 0)
	if err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if *second.ApprovedAt != *first.ApprovedAt || *second.ApprovedBy != admin.ID || second.Version != first.Version {
		t.Fatalf("re-approve re-stamped: first=%+v second=%+v", first, second)
	}
	evts, _ := env.Engine.Repo.ListEvents(env.Ctx, repo.EventFilters{EntityID: c.ID, Type: "case.approve"})
	if len(evts) != 1 {
		t.Fatalf("expected one approve event, got %d", len(evts))
	}
}

func TestRejectRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	c, _ := env.Engine.CreateCase(env.Ctx, officer, engine.CaseCreateOptions{Title: "t"})
	for _, reason := range []string{"", "   ", "\t"} {
		_, err := env.Engine.RejectCase(env.Ctx, admin, c.ID, reason, 0)
		expectKind(t, err, domain.KindValidationFailed)
	}
	got, _ := env.Engine.Repo.GetCase(env.Ctx, nil, c.ID)
	if got.Version != c.Version || got.ApprovalStatus != domain.StatusPending || got.RejectionReason != nil {
		t.Fatalf("record changed after failed reject: %+v", got)
	}

	rejected, err := env.Engine.RejectCase(env.Ctx, admin, c.ID, "duplicate", 0)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.StatusClosed || rejected.ApprovalStatus != domain.StatusRejected || *rejected.RejectionReason != "duplicate" {
		t.Fatalf("unexpected rejected case %+v", rejected)
	}
	_, err = env.Engine.RejectCase(env.Ctx, admin, c.ID, "again", 0)
	expectKind(t, err, domain.KindInvalidStateTransition)
	_, err = env.Engine.ApproveCase(env.Ctx, admin, c.ID, 0)
	expectKind(t, err, domain.KindInvalidStateTransition)
}

func TestRejectAfterApproveFails(t *testing.T) {
	env := newTestEnv(t)
	c := env.approvedCase(t)
	_, err := env.Engine.RejectCase(env.Ctx, admin, c.ID, "late", 0)
	expectKind(t, err, domain.KindInvalidStateTransition)
}

func TestAdvanceAndTerminalClosure(t *testing.T) {
	env := newTestEnv(t)
	pending, _ := env.Engine.CreateCase(env.Ctx, officer, engine.CaseCreateOptions{Title: "t"})
	_, err := env.Engine.AdvanceCase(env.Ctx, admin, pending.ID, domain.StatusInProgress, 0)
	expectKind(t, err, domain.KindInvalidStateTransition)

	c := env.approvedCase(t)
	_, err = env.Engine.AdvanceCase(env.Ctx, admin, c.ID, domain.StatusApproved, 0)
	expectKind(t, err, domain.KindInvalidStateTransition)

	c, err = env.Engine.AdvanceCase(env.Ctx, officer, c.ID, domain.StatusInProgress, 0)
	if err != nil || c.Status != domain.StatusInProgress || c.ApprovalStatus != domain.StatusApproved {
		t.Fatalf("to in_progress: %v %+v", err, c)
	}
	c, err = env.Engine.AdvanceCase(env.Ctx, worker, c.ID, domain.StatusClosed, 0)
	if err != nil || c.Status != domain.StatusClosed {
		t.Fatalf("to closed: %v %+v", err, c)
	}
	for _, target := range []string{domain.StatusOpen, domain.StatusPending, domain.StatusApproved, domain.StatusInProgress, domain.StatusClosed, "bogus"} {
		_, err := env.Engine.AdvanceCase(env.Ctx, admin, c.ID, target, 0)
		expectKind(t, err, domain.KindInvalidStateTransition)
		var de *domain.Error
		if !errors.As(err, &de) || de.Reason != domain.ReasonEntityClosed {
			t.Fatalf("expected entity_closed reason, got %v", err)
		}
	}
	_, err = env.Engine.AssignCase(env.Ctx, admin, c.ID, domain.Assignee{Type: domain.AssigneeUser, ID: "u-x"}, 0)
	expectKind(t, err, domain.KindInvalidStateTransition)
}

func TestAssignCase(t *testing.T) {
	env := newTestEnv(t)
	active, orgActor := env.org(t, "active", true)
	inactive, _ := env.org(t, "inactive", false)
	c, _ := env.Engine.CreateCase(env.Ctx, officer, engine.CaseCreateOptions{Title: "t"})

	_, err := env.Engine.AssignCase(env.Ctx, admin, c.ID, domain.Assignee{Type: domain.AssigneeOrganization, ID: inactive.ID}, 0)
	expectKind(t, err, domain.KindOrganizationInactive)
	_, err = env.Engine.AssignCase(env.Ctx, admin, c.ID, domain.Assignee{Type: domain.AssigneeOrganization, ID: "missing"}, 0)
	expectKind(t, err, domain.KindNotFound)
	_, err = env.Engine.AssignCase(env.Ctx, orgActor, c.ID, domain.Assignee{Type: domain.AssigneeUser, ID: "u-x"}, 0)
	expectKind(t, err, domain.KindWrongOrganization)

	c, err = env.Engine.AssignCase(env.Ctx, admin, c.ID, domain.Assignee{Type: domain.AssigneeOrganization, ID: active.ID}, 0)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if c.Status != domain.StatusOpen || c.ApprovalStatus != domain.StatusPending {
		t.Fatalf("assign altered status: %+v", c)
	}
	if a, ok := c.Assignee(); !ok || a.Type != domain.AssigneeOrganization || a.ID != active.ID {
		t.Fatalf("assignee %+v", a)
	}
	// Now within the organization's scope.
	c, err = env.Engine.ApproveCase(env.Ctx, orgActor, c.ID, 0)
	if err != nil || c.ApprovalStatus != domain.StatusApproved {
		t.Fatalf("org approve: %v", err)
	}
	c, err = env.Engine.AssignCase(env.Ctx, orgActor, c.ID, domain.Assignee{Type: domain.AssigneeUser, ID: "u-field"}, 0)
	if err != nil || *c.AssignedToType != domain.AssigneeUser {
		t.Fatalf("org reassign to user: %v", err)
	}
}

func TestAssignReferralInactiveOrganization(t *testing.T) {
	env := newTestEnv(t)
	inactive, _ := env.org(t, "dormant", false)
	r := env.referral(t)
	_, err := env.Engine.AssignReferral(env.Ctx, admin, r.ID, inactive.ID, 0)
	expectKind(t, err, domain.KindOrganizationInactive)
	got, _ := env.Engine.Repo.GetReferral(env.Ctx, nil, r.ID)
	if got.AssignedOrganizationID != nil || got.Version != r.Version {
		t.Fatalf("referral changed: %+v", got)
	}
}

func TestDeactivationAfterCandidateSnapshot(t *testing.T) {
	env := newTestEnv(t)
	o, _ := env.org(t, "relief", true)
	r := env.referral(t)
	cands, err := env.Engine.FindCandidates(env.Ctx, admin, router.Filters{Sector: "foo"})
	if err != nil || len(cands) != 1 {
		t.Fatalf("candidates: %v %v", cands, err)
	}
	if _, err := env.Engine.SetOrganizationActive(env.Ctx, admin, o.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err = env.Engine.AssignReferral(env.Ctx, admin, r.ID, cands[0].ID, 0)
	expectKind(t, err, domain.KindOrganizationInactive)
}

func TestDeclineEnablesReassignment(t *testing.T) {
	env := newTestEnv(t)
	orgA, actorA := env.org(t, "a", true)
	orgB, _ := env.org(t, "b", true)
	r := env.referral(t)
	if _, err := env.Engine.AssignReferral(env.Ctx, admin, r.ID, orgA.ID, 0); err != nil {
		t.Fatalf("assign a: %v", err)
	}
	_, err := env.Engine.DeclineReferral(env.Ctx, actorA, r.ID, "", 0)
	expectKind(t, err, domain.KindValidationFailed)

	declined, err := env.Engine.DeclineReferral(env.Ctx, actorA, r.ID, "x", 0)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if !declined.CanBeReassigned || declined.Status != domain.StatusRejected {
		t.Fatalf("unexpected declined referral %+v", declined)
	}
	_, err = env.Engine.DeclineReferral(env.Ctx, actorA, r.ID, "again", 0)
	expectKind(t, err, domain.KindInvalidStateTransition)
	got, _ := env.Engine.Repo.GetReferral(env.Ctx, nil, r.ID)
	if *got.DeclineReason != "x" {
		t.Fatalf("second decline overwrote reason: %q", *got.DeclineReason)
	}

	reassigned, err := env.Engine.AssignReferral(env.Ctx, admin, r.ID, orgB.ID, 0)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if reassigned.Status != domain.StatusPending || reassigned.CanBeReassigned || *reassigned.AssignedOrganizationID != orgB.ID {
		t.Fatalf("unexpected reassigned referral %+v", reassigned)
	}
	if reassigned.ReferredTo != orgB.Name {
		t.Fatalf("referred_to = %q", reassigned.ReferredTo)
	}
}

func TestReassignToDecliningOrganizationAllowed(t *testing.T) {
	env := newTestEnv(t)
	orgA, actorA := env.org(t, "a", true)
	r := env.referral(t)
	env.Engine.AssignReferral(env.Ctx, admin, r.ID, orgA.ID, 0)
	env.Engine.DeclineReferral(env.Ctx, actorA, r.ID, "full", 0)
	r, err := env.Engine.AssignReferral(env.Ctx, admin, r.ID, orgA.ID, 0)
	if err != nil || r.Status != domain.StatusPending {
		t.Fatalf("same-org reassign: %v %+v", err, r)
	}
}

func TestWrongOrganizationRegardlessOfStatus(t *testing.T) {
	env := newTestEnv(t)
	orgA, actorA := env.org(t, "a", true)
	_, actorB := env.org(t, "b", true)
	r := env.referral(t)

	check := func(stage string) {
		t.Helper()
		_, err := env.Engine.AcceptReferral(env.Ctx, actorB, r.ID, 0)
		if domain.KindOf(err) != domain.KindWrongOrganization {
			t.Fatalf("%s accept: %v", stage, err)
		}
		_, err = env.Engine.DeclineReferral(env.Ctx, actorB, r.ID, "nope", 0)
		if domain.KindOf(err) != domain.KindWrongOrganization {
			t.Fatalf("%s decline: %v", stage, err)
		}
	}
	check("unassigned")
	env.Engine.AssignReferral(env.Ctx, admin, r.ID, orgA.ID, 0)
	check("pending")
	env.Engine.AcceptReferral(env.Ctx, actorA, r.ID, 0)
	check("accepted")
	env.Engine.CompleteReferral(env.Ctx, actorA, r.ID, 0)
	check("completed")

	_, err := env.Engine.AcceptReferral(env.Ctx, admin, r.ID, 0)
	expectKind(t, err, domain.KindNotAuthorized)
	_, err = env.Engine.AssignReferral(env.Ctx, actorA, r.ID, orgA.ID, 0)
	expectKind(t, err, domain.KindNotAuthorized)
}

func TestReferralScenario(t *testing.T) {
	env := newTestEnv(t)
	orgA, actorA := env.org(t, "a", true)
	orgB, _ := env.org(t, "b", true)
	actorB := domain.Actor{ID: "u-b-manager", Role: domain.RoleManager, OrganizationID: orgB.ID}

	r := env.referral(t)
	if r.Status != domain.StatusPending || r.AssignedOrganizationID != nil || r.CanBeReassigned || r.ReferredFrom != "Internal" {
		t.Fatalf("unexpected new referral %+v", r)
	}
	r, err := env.Engine.AssignReferral(env.Ctx, admin, r.ID, orgA.ID, 0)
	if err != nil || r.Status != domain.StatusPending || *r.AssignedOrganizationID != orgA.ID || *r.AssignedBy != admin.ID {
		t.Fatalf("assign a: %v %+v", err, r)
	}
	r, err = env.Engine.DeclineReferral(env.Ctx, actorA, r.ID, "no capacity", 0)
	if err != nil || r.Status != domain.StatusRejected || !r.CanBeReassigned || *r.DeclineReason != "no capacity" || *r.RejectionReason != "no capacity" {
		t.Fatalf("decline: %v %+v", err, r)
	}
	page, err := env.Engine.ListReassignableReferrals(env.Ctx, admin, 0, 0)
	if err != nil || page.Total != 1 {
		t.Fatalf("reassignable: %v %+v", err, page)
	}
	r, err = env.Engine.AssignReferral(env.Ctx, admin, r.ID, orgB.ID, 0)
	if err != nil || r.Status != domain.StatusPending || *r.AssignedOrganizationID != orgB.ID || r.CanBeReassigned {
		t.Fatalf("assign b: %v %+v", err, r)
	}
	r, err = env.Engine.AcceptReferral(env.Ctx, actorB, r.ID, 0)
	if err != nil || r.Status != domain.StatusAccepted || r.ApprovalStatus != domain.StatusAccepted || *r.ApprovedBy != actorB.ID {
		t.Fatalf("accept: %v %+v", err, r)
	}
	again, err := env.Engine.AcceptReferral(env.Ctx, actorB, r.ID, 0)
	if err != nil || again.Version != r.Version {
		t.Fatalf("accept replay: %v %+v", err, again)
	}
	_, err = env.Engine.DeclineReferral(env.Ctx, actorB, r.ID, "changed mind", 0)
	expectKind(t, err, domain.KindInvalidStateTransition)
	_, err = env.Engine.AssignReferral(env.Ctx, admin, r.ID, orgA.ID, 0)
	expectKind(t, err, domain.KindInvalidStateTransition)

	r, err = env.Engine.CompleteReferral(env.Ctx, actorB, r.ID, 0)
	if err != nil || r.Status != domain.StatusCompleted {
		t.Fatalf("complete: %v", err)
	}
	var de *domain.Error
	_, err = env.Engine.AssignReferral(env.Ctx, admin, r.ID, orgA.ID, 0)
	if !errors.As(err, &de) || de.Reason != domain.ReasonEntityClosed {
		t.Fatalf("assign completed: %v", err)
	}
	evts, _ := env.Engine.ListEvents(env.Ctx, admin, repo.EventFilters{EntityID: r.ID})
	want := []string{"referral.complete", "referral.accept", "referral.assign", "referral.decline", "referral.assign", "referral.create"}
	if len(evts) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(evts))
	}
	for i, e := range evts {
		if e.Type != want[i] {
			t.Fatalf("event %d = %s, want %s", i, e.Type, want[i])
		}
	}
}

func TestExpectedVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	c, _ := env.Engine.CreateCase(env.Ctx, officer, engine.CaseCreateOptions{Title: "t"})
	title := "renamed"
	if _, err := env.Engine.EditCase(env.Ctx, officer, c.ID, engine.CaseEdit{Title: &title}, c.Version); err != nil {
		t.Fatalf("edit: %v", err)
	}
	_, err := env.Engine.ApproveCase(env.Ctx, admin, c.ID, c.Version)
	expectKind(t, err, domain.KindConflict)
	got, _ := env.Engine.Repo.GetCase(env.Ctx, nil, c.ID)
	if got.ApprovalStatus != domain.StatusPending || got.Version != 2 {
		t.Fatalf("stale approve leaked: %+v", got)
	}
	err = env.Engine.DeleteCase(env.Ctx, officer, c.ID, 1)
	expectKind(t, err, domain.KindConflict)
}

func TestDeniedActorNeverSeesConflict(t *testing.T) {
	env := newTestEnv(t)
	c, _ := env.Engine.CreateCase(env.Ctx, officer, engine.CaseCreateOptions{Title: "t"})
	title := "renamed"
	if _, err := env.Engine.EditCase(env.Ctx, officer, c.ID, engine.CaseEdit{Title: &title}, 0); err != nil {
		t.Fatalf("edit: %v", err)
	}
	// c.Version is now stale.
	_, err := env.Engine.ApproveCase(env.Ctx, viewer, c.ID, c.Version)
	expectKind(t, err, domain.KindNotAuthorized)
	_, err = env.Engine.EditCase(env.Ctx, viewer, c.ID, engine.CaseEdit{Title: &title}, c.Version)
	expectKind(t, err, domain.KindNotOwner)
	expectKind(t, env.Engine.DeleteCase(env.Ctx, viewer, c.ID, c.Version), domain.KindNotOwner)

	_, err = env.Engine.ApproveCase(env.Ctx, admin, c.ID, c.Version)
	expectKind(t, err, domain.KindConflict)
}

func TestConcurrentApprove(t *testing.T) {
	env := newTestEnv(t)
	c, _ := env.Engine.CreateCase(env.Ctx, officer, engine.CaseCreateOptions{Title: "t"})
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Engine.ApproveCase(env.Ctx, admin, c.ID, 0)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent approve: %v", err)
		}
	}
	got, _ := env.Engine.Repo.GetCase(env.Ctx, nil, c.ID)
	if got.Version != 2 {
		t.Fatalf("expected a single write, version=%d", got.Version)
	}
}

func TestRegistrationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	active, orgActor := env.org(t, "a", true)
	inactive, _ := env.org(t, "b", false)
	_, err := env.Engine.CreateRegistration(env.Ctx, officer, engine.RegistrationCreateOptions{FullName: "Musa"})
	expectKind(t, err, domain.KindValidationFailed)

	size := 4
	g, err := env.Engine.CreateRegistration(env.Ctx, officer, engine.RegistrationCreateOptions{FullName: "Musa", Phone: "0800", HouseholdSize: &size})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.Status != domain.StatusPending || g.ApprovalStatus != domain.StatusPending || g.RegistrationNumber[:4] != "REG-" {
		t.Fatalf("unexpected registration %+v", g)
	}
	_, err = env.Engine.AdvanceRegistration(env.Ctx, admin, g.ID, domain.StatusInProgress, 0)
	expectKind(t, err, domain.KindInvalidStateTransition)
	_, err = env.Engine.AdvanceRegistration(env.Ctx, viewer, g.ID, domain.StatusClosed, 0)
	expectKind(t, err, domain.KindNotAuthorized)
	_, err = env.Engine.AdvanceRegistration(env.Ctx, admin, "missing", domain.StatusClosed, 0)
	expectKind(t, err, domain.KindNotFound)

	_, err = env.Engine.AssignRegistration(env.Ctx, admin, g.ID, inactive.ID, 0)
	expectKind(t, err, domain.KindOrganizationInactive)
	g, err = env.Engine.AssignRegistration(env.Ctx, admin, g.ID, active.ID, 0)
	if err != nil || *g.AssignedOrganizationID != active.ID || g.AssignmentDate == nil {
		t.Fatalf("assign: %v %+v", err, g)
	}
	g, err = env.Engine.ApproveRegistration(env.Ctx, orgActor, g.ID, 0)
	if err != nil || g.Status != domain.StatusApproved {
		t.Fatalf("approve: %v", err)
	}

	other, _ := env.Engine.CreateRegistration(env.Ctx, officer, engine.RegistrationCreateOptions{FullName: "Ada", Phone: "0801"})
	_, err = env.Engine.RejectRegistration(env.Ctx, admin, other.ID, " ", 0)
	expectKind(t, err, domain.KindValidationFailed)
	other, err = env.Engine.RejectRegistration(env.Ctx, admin, other.ID, "duplicate", 0)
	if err != nil || other.Status != domain.StatusRejected || other.ApprovalStatus != domain.StatusRejected {
		t.Fatalf("reject: %v %+v", err, other)
	}
	_, err = env.Engine.AssignRegistration(env.Ctx, admin, other.ID, active.ID, 0)
	expectKind(t, err, domain.KindInvalidStateTransition)
}

func TestEditDeleteOwnership(t *testing.T) {
	env := newTestEnv(t)
	_, orgActor := env.org(t, "a", true)
	r := env.referral(t)
	notes := "call after 5pm"
	_, err := env.Engine.EditReferral(env.Ctx, orgActor, r.ID, engine.ReferralEdit{Notes: &notes}, 0)
	expectKind(t, err, domain.KindNotOwner)
	r, err = env.Engine.EditReferral(env.Ctx, officer, r.ID, engine.ReferralEdit{Notes: &notes}, 0)
	if err != nil || r.Notes != notes || r.Version != 2 {
		t.Fatalf("edit: %v %+v", err, r)
	}
	expectKind(t, env.Engine.DeleteReferral(env.Ctx, viewer, r.ID, 0), domain.KindNotOwner)
	if err := env.Engine.DeleteReferral(env.Ctx, worker, r.ID, 0); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = env.Engine.GetReferral(env.Ctx, admin, r.ID)
	expectKind(t, err, domain.KindNotFound)
}

func TestOrganizationSignupAndActivation(t *testing.T) {
	env := newTestEnv(t)
	signup := domain.Actor{ID: "u-new", Role: domain.RoleOrganization}
	o, err := env.Engine.CreateOrganization(env.Ctx, signup, engine.OrganizationCreateOptions{Name: "New NGO", Active: true})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if o.IsActive {
		t.Fatal("self sign-up must start inactive")
	}
	_, err = env.Engine.SetOrganizationActive(env.Ctx, signup, o.ID, true)
	expectKind(t, err, domain.KindNotAuthorized)
	o, err = env.Engine.SetOrganizationActive(env.Ctx, admin, o.ID, true)
	if err != nil || !o.IsActive {
		t.Fatalf("activate: %v", err)
	}
}

func TestDeactivationDoesNotCascade(t *testing.T) {
	env := newTestEnv(t)
	o, actor := env.org(t, "a", true)
	r := env.referral(t)
	env.Engine.AssignReferral(env.Ctx, admin, r.ID, o.ID, 0)
	if _, err := env.Engine.SetOrganizationActive(env.Ctx, admin, o.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, _ := env.Engine.Repo.GetReferral(env.Ctx, nil, r.ID)
	if got.AssignedOrganizationID == nil || *got.AssignedOrganizationID != o.ID {
		t.Fatalf("assignment dropped: %+v", got)
	}
	if _, err := env.Engine.AcceptReferral(env.Ctx, actor, r.ID, 0); err != nil {
		t.Fatalf("accept after deactivation: %v", err)
	}
}

func TestVisibilityForOrganizationActors(t *testing.T) {
	env := newTestEnv(t)
	orgA, actorA := env.org(t, "a", true)
	_, actorB := env.org(t, "b", true)
	mine := env.referral(t)
	env.referral(t)
	env.Engine.AssignReferral(env.Ctx, admin, mine.ID, orgA.ID, 0)

	page, err := env.Engine.ListReferrals(env.Ctx, actorA, repo.ReferralFilters{})
	if err != nil || page.Total != 1 || page.Items[0].ID != mine.ID {
		t.Fatalf("org list: %v %+v", err, page)
	}
	all, _ := env.Engine.ListReferrals(env.Ctx, admin, repo.ReferralFilters{})
	if all.Total != 2 {
		t.Fatalf("admin list total %d", all.Total)
	}
	_, err = env.Engine.GetReferral(env.Ctx, actorB, mine.ID)
	expectKind(t, err, domain.KindWrongOrganization)
	_, err = env.Engine.ListEvents(env.Ctx, actorA, repo.EventFilters{})
	expectKind(t, err, domain.KindNotAuthorized)
}

func TestDashboardCounts(t *testing.T) {
	env := newTestEnv(t)
	orgA, actorA := env.org(t, "a", true)

	open, _ := env.Engine.CreateCase(env.Ctx, officer, engine.CaseCreateOptions{Title: "open", Priority: "urgent"})
	approved := env.approvedCase(t)
	progressing := env.approvedCase(t)
	env.Engine.AdvanceCase(env.Ctx, admin, progressing.ID, domain.StatusInProgress, 0)
	done := env.approvedCase(t)
	env.Engine.AdvanceCase(env.Ctx, admin, done.ID, domain.StatusClosed, 0)
	_ = open
	_ = approved

	pending := env.referral(t)
	declined := env.referral(t)
	env.Engine.AssignReferral(env.Ctx, admin, declined.ID, orgA.ID, 0)
	env.Engine.DeclineReferral(env.Ctx, actorA, declined.ID, "full", 0)
	_ = pending

	d, err := env.Engine.Dashboard(env.Ctx, admin, repo.Scope{})
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.Cases.Total != 4 || d.ActiveCases != 3 || d.Cases.Urgent != 1 {
		t.Fatalf("case counts %+v active=%d", d.Cases, d.ActiveCases)
	}
	if d.Cases.ByApprovalStatus[domain.StatusApproved] != 3 || d.Cases.ByApprovalStatus[domain.StatusPending] != 1 {
		t.Fatalf("approval counts %+v", d.Cases.ByApprovalStatus)
	}
	if d.Referrals.Total != 2 || d.PendingReferrals != 1 || d.ReassignableReferrals != 1 {
		t.Fatalf("referral counts %+v pending=%d reassignable=%d", d.Referrals, d.PendingReferrals, d.ReassignableReferrals)
	}

	mine, err := env.Engine.Dashboard(env.Ctx, officer, repo.Scope{CreatedBy: officer.ID})
	if err != nil || mine.Cases.Total != 4 {
		t.Fatalf("creator scope: %v %+v", err, mine.Cases)
	}
	own, err := env.Engine.CreateCase(env.Ctx, actorA, engine.CaseCreateOptions{Title: "raised by org"})
	if err != nil {
		t.Fatalf("org create: %v", err)
	}
	scoped, err := env.Engine.Dashboard(env.Ctx, actorA, repo.Scope{})
	if err != nil || scoped.Referrals.Total != 1 || scoped.Cases.Total != 1 {
		t.Fatalf("org scope: %v %+v", err, scoped)
	}
	listed, err := env.Engine.ListCases(env.Ctx, actorA, repo.CaseFilters{})
	if err != nil || listed.Total != scoped.Cases.Total || listed.Items[0].ID != own.ID {
		t.Fatalf("dashboard and list disagree: %v %+v", err, listed)
	}
}
