package repo

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/migrate"
)

const ts = "2025-01-01T00:00:00Z"

func newSQLite(t *testing.T) Repo {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(conn, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn, Dialect: dialect}
}

func sampleCase(id, createdBy, status, approval string) domain.Case {
	return domain.Case{
		ID: id, CaseNumber: "CASE-" + id, Title: "Case " + id, Priority: domain.PriorityMedium,
		Status: status, ApprovalStatus: approval, CreatedBy: createdBy, Version: 1, CreatedAt: ts, UpdatedAt: ts,
	}
}

func TestUpdateCaseVersionCheckPostgres(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()
	r := Repo{DB: conn, Dialect: db.Postgres}
	c := sampleCase("c1", "u1", domain.StatusApproved, domain.StatusApproved)
	c.Version = 3

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE cases SET title=$1,`) + `.*` + regexp.QuoteMeta(`WHERE id=$14 AND version=$15`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM cases WHERE id=$1`)).WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	if err := r.UpdateCase(context.Background(), nil, c, 2); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	mock.ExpectExec(`UPDATE cases SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1 FROM cases`).WithArgs("c1").WillReturnRows(sqlmock.NewRows([]string{"one"}))
	if err := r.UpdateCase(context.Background(), nil, c, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectExec(`UPDATE cases SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := r.UpdateCase(context.Background(), nil, c, 2); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCaseRoundTripAndStaleWrite(t *testing.T) {
	r := newSQLite(t)
	ctx := context.Background()
	c := sampleCase("c1", "u1", domain.StatusOpen, domain.StatusPending)
	typ := domain.AssigneeOrganization
	org := "org-a"
	c.AssignedTo, c.AssignedToType = &org, &typ
	if err := r.InsertCase(ctx, nil, c); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetCase(ctx, nil, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a, ok := got.Assignee(); !ok || a.Type != domain.AssigneeOrganization || a.ID != "org-a" {
		t.Fatalf("assignee = %+v %v", a, ok)
	}
	if got.ApprovedBy != nil || got.RejectionReason != nil {
		t.Fatalf("expected null approval fields: %+v", got)
	}

	got.Version = 2
	got.Title = "renamed"
	if err := r.UpdateCase(ctx, nil, got, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	got.Version = 2
	got.Title = "stale"
	if err := r.UpdateCase(ctx, nil, got, 1); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	again, _ := r.GetCase(ctx, nil, "c1")
	if again.Title != "renamed" || again.Version != 2 {
		t.Fatalf("stale write leaked: %+v", again)
	}
	if _, err := r.GetCase(ctx, nil, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListCasesAndCounts(t *testing.T) {
	r := newSQLite(t)
	ctx := context.Background()
	rows := []domain.Case{
		sampleCase("a", "u1", domain.StatusOpen, domain.StatusPending),
		sampleCase("b", "u1", domain.StatusApproved, domain.StatusApproved),
		sampleCase("c", "u2", domain.StatusInProgress, domain.StatusApproved),
		sampleCase("d", "u2", domain.StatusClosed, domain.StatusRejected),
	}
	rows[2].Priority = domain.PriorityUrgent
	for _, c := range rows {
		if err := r.InsertCase(ctx, nil, c); err != nil {
			t.Fatalf("insert %s: %v", c.ID, err)
		}
	}

	active, total, err := r.ListCases(ctx, CaseFilters{Status: domain.CaseActiveStatuses, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(active) != 2 {
		t.Fatalf("active total=%d page=%d", total, len(active))
	}

	byStatus, err := r.CountBy(ctx, nil, domain.EntityCase, "status", Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if byStatus[domain.StatusOpen] != 1 || byStatus[domain.StatusClosed] != 1 {
		t.Fatalf("by status %v", byStatus)
	}
	mine, err := r.CountBy(ctx, nil, domain.EntityCase, "approval_status", Scope{CreatedBy: "u2"})
	if err != nil {
		t.Fatal(err)
	}
	if mine[domain.StatusApproved] != 1 || mine[domain.StatusRejected] != 1 || mine[domain.StatusPending] != 0 {
		t.Fatalf("scoped approval counts %v", mine)
	}
	if _, err := r.CountBy(ctx, nil, domain.EntityCase, "title; DROP TABLE cases", Scope{}); err == nil {
		t.Fatal("expected column whitelist error")
	}

	vis := &Visibility{OrganizationID: "o9", ActorID: "u2"}
	_, listed, err := r.ListCases(ctx, CaseFilters{Visibility: vis})
	if err != nil {
		t.Fatal(err)
	}
	visible, err := r.CountBy(ctx, nil, domain.EntityCase, "status", Scope{Visibility: vis})
	if err != nil {
		t.Fatal(err)
	}
	if n := visible[domain.StatusInProgress] + visible[domain.StatusClosed]; n != listed || listed != 2 || len(visible) != 2 {
		t.Fatalf("visible counts %v, listed %d", visible, listed)
	}
}

func TestReferralReassignableAndOrganizations(t *testing.T) {
	r := newSQLite(t)
	ctx := context.Background()
	org := domain.Organization{ID: "o1", Name: "Relief", SectorsProvided: []string{"Food"}, IsActive: true, CreatedAt: ts, UpdatedAt: ts}
	if err := r.InsertOrganization(ctx, nil, org); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetOrganization(ctx, nil, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsActive || len(got.SectorsProvided) != 1 || got.LocationsCovered == nil {
		t.Fatalf("organization = %+v", got)
	}

	oid := "o1"
	declined := domain.Referral{ID: "r1", ReferralNumber: "REF-1", ReferredFrom: "Internal", Priority: domain.PriorityMedium,
		Reason: "needs food", AssignedOrganizationID: &oid, CreatedBy: "u1", Version: 1, CreatedAt: ts, UpdatedAt: ts}
	declined.SetState(domain.ReferralDeclined)
	pending := declined
	pending.ID, pending.ReferralNumber = "r2", "REF-2"
	pending.SetState(domain.ReferralOpen)
	for _, f := range []domain.Referral{declined, pending} {
		if err := r.InsertReferral(ctx, nil, f); err != nil {
			t.Fatalf("insert %s: %v", f.ID, err)
		}
	}
	list, total, err := r.ListReferrals(ctx, ReferralFilters{Reassignable: true})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || list[0].ID != "r1" || !list[0].CanBeReassigned {
		t.Fatalf("reassignable = %+v", list)
	}
	n, err := r.CountReassignable(ctx, nil, Scope{OrganizationID: "o1"})
	if err != nil || n != 1 {
		t.Fatalf("count reassignable = %d, %v", n, err)
	}
}

func TestAPIKeys(t *testing.T) {
	r := newSQLite(t)
	ctx := context.Background()
	key := domain.APIKey{ID: "k1", ActorID: "svc", Role: domain.RoleOrganization, OrganizationID: "o1", KeyHash: HashAPIKey("secret")}
	if err := r.InsertAPIKey(ctx, nil, key); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetAPIKeyByHash(ctx, HashAPIKey(" secret "))
	if err != nil {
		t.Fatal(err)
	}
	if got.Role != domain.RoleOrganization || got.OrganizationID != "o1" {
		t.Fatalf("key = %+v", got)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
