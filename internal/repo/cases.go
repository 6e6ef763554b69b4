package repo

import (
	"context"
	"database/sql"
	"errors"

	"caseline/internal/domain"
)

const caseColumns = `id,case_number,title,COALESCE(description,''),COALESCE(category,''),priority,status,approval_status,assigned_to,assigned_to_type,created_by,approved_by,approved_at,rejection_reason,version,created_at,updated_at`

func scanCase(s scanner) (domain.Case, error) {
	var c domain.Case
	err := s.Scan(&c.ID, &c.CaseNumber, &c.Title, &c.Description, &c.Category, &c.Priority, &c.Status, &c.ApprovalStatus,
		&c.AssignedTo, &c.AssignedToType, &c.CreatedBy, &c.ApprovedBy, &c.ApprovedAt, &c.RejectionReason,
		&c.Version, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

func assigneeType(t *domain.AssigneeType) any {
	if t == nil {
		return nil
	}
	return string(*t)
}

func (r Repo) InsertCase(ctx context.Context, tx *sql.Tx, c domain.Case) error {
	_, err := r.exec(ctx, tx, `INSERT INTO cases(id,case_number,title,description,category,priority,status,approval_status,assigned_to,assigned_to_type,created_by,approved_by,approved_at,rejection_reason,version,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.CaseNumber, c.Title, nullable(c.Description), nullable(c.Category), c.Priority, c.Status, c.ApprovalStatus,
		nullableStringPtr(c.AssignedTo), assigneeType(c.AssignedToType), c.CreatedBy, nullableStringPtr(c.ApprovedBy),
		nullableStringPtr(c.ApprovedAt), nullableStringPtr(c.RejectionReason), c.Version, c.CreatedAt, c.UpdatedAt)
	return err
}

// GetCase reads a case; tx may be nil.
func (r Repo) GetCase(ctx context.Context, tx *sql.Tx, id string) (domain.Case, error) {
	return scanCase(r.queryRow(ctx, tx, `SELECT `+caseColumns+` FROM cases WHERE id=?`, id))
}

// UpdateCase writes every mutable column of c if the stored version still
// equals expectedVersion. c.Version is stored as the new version.
func (r Repo) UpdateCase(ctx context.Context, tx *sql.Tx, c domain.Case, expectedVersion int) error {
	res, err := r.exec(ctx, tx, `UPDATE cases SET title=?, description=?, category=?, priority=?, status=?, approval_status=?, assigned_to=?, assigned_to_type=?, approved_by=?, approved_at=?, rejection_reason=?, version=?, updated_at=? WHERE id=? AND version=?`,
		c.Title, nullable(c.Description), nullable(c.Category), c.Priority, c.Status, c.ApprovalStatus,
		nullableStringPtr(c.AssignedTo), assigneeType(c.AssignedToType), nullableStringPtr(c.ApprovedBy),
		nullableStringPtr(c.ApprovedAt), nullableStringPtr(c.RejectionReason), c.Version, c.UpdatedAt, c.ID, expectedVersion)
	if err != nil {
		return err
	}
	return r.versioned(ctx, tx, res, "cases", c.ID)
}

func (r Repo) DeleteCase(ctx context.Context, tx *sql.Tx, id string, expectedVersion int) error {
	res, err := r.exec(ctx, tx, `DELETE FROM cases WHERE id=? AND version=?`, id, expectedVersion)
	if err != nil {
		return err
	}
	return r.versioned(ctx, tx, res, "cases", id)
}

type CaseFilters struct {
	Status         []string
	ApprovalStatus string
	Priority       string
	Category       string
	CreatedBy      string
	AssignedTo     string
	AssignedToType string
	Query          string
	Visibility     *Visibility
	Limit          int
	Offset         int
}

func (f CaseFilters) clauses() ([]string, []any) {
	var clauses []string
	var args []any
	if f.Visibility != nil {
		clauses = append(clauses, "((assigned_to_type=? AND assigned_to=?) OR created_by=?)")
		args = append(args, string(domain.AssigneeOrganization), f.Visibility.OrganizationID, f.Visibility.ActorID)
	}
	if len(f.Status) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.Status))+")")
		for _, s := range f.Status {
			args = append(args, s)
		}
	}
	if f.ApprovalStatus != "" {
		clauses = append(clauses, "approval_status=?")
		args = append(args, f.ApprovalStatus)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by=?")
		args = append(args, f.CreatedBy)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.AssignedToType != "" {
		clauses = append(clauses, "assigned_to_type=?")
		args = append(args, f.AssignedToType)
	}
	if f.Query != "" {
		clauses = append(clauses, "(LOWER(title) LIKE ? OR LOWER(case_number) LIKE ?)")
		args = append(args, likeArg(f.Query), likeArg(f.Query))
	}
	return clauses, args
}

// ListCases returns a page of cases, newest first, and the total match count.
func (r Repo) ListCases(ctx context.Context, f CaseFilters) ([]domain.Case, int, error) {
	clauses, args := f.clauses()
	total, err := r.count(ctx, nil, "cases", clauses, args)
	if err != nil {
		return nil, 0, err
	}
	query, args := page(`SELECT `+caseColumns+` FROM cases`+where(clauses)+` ORDER BY created_at DESC, id DESC`, args, f.Limit, f.Offset)
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, c)
	}
	return res, total, rows.Err()
}

func placeholders(n int) string {
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
