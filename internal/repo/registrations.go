package repo

import (
	"context"
	"database/sql"
	"errors"

	"caseline/internal/domain"
)

const registrationColumns = `id,registration_number,full_name,phone,COALESCE(email,''),COALESCE(address,''),COALESCE(category,''),COALESCE(description,''),household_size,status,approval_status,assigned_organization_id,assignment_date,created_by,approved_by,approved_at,rejection_reason,version,created_at,updated_at`

func scanRegistration(s scanner) (domain.Registration, error) {
	var g domain.Registration
	err := s.Scan(&g.ID, &g.RegistrationNumber, &g.FullName, &g.Phone, &g.Email, &g.Address, &g.Category, &g.Description,
		&g.HouseholdSize, &g.Status, &g.ApprovalStatus, &g.AssignedOrganizationID, &g.AssignmentDate, &g.CreatedBy,
		&g.ApprovedBy, &g.ApprovedAt, &g.RejectionReason, &g.Version, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return g, ErrNotFound
	}
	return g, err
}

func (r Repo) InsertRegistration(ctx context.Context, tx *sql.Tx, g domain.Registration) error {
	_, err := r.exec(ctx, tx, `INSERT INTO registrations(id,registration_number,full_name,phone,email,address,category,description,household_size,status,approval_status,assigned_organization_id,assignment_date,created_by,approved_by,approved_at,rejection_reason,version,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		g.ID, g.RegistrationNumber, g.FullName, g.Phone, nullable(g.Email), nullable(g.Address), nullable(g.Category),
		nullable(g.Description), nullableIntPtr(g.HouseholdSize), g.Status, g.ApprovalStatus,
		nullableStringPtr(g.AssignedOrganizationID), nullableStringPtr(g.AssignmentDate), g.CreatedBy,
		nullableStringPtr(g.ApprovedBy), nullableStringPtr(g.ApprovedAt), nullableStringPtr(g.RejectionReason),
		g.Version, g.CreatedAt, g.UpdatedAt)
	return err
}

func (r Repo) GetRegistration(ctx context.Context, tx *sql.Tx, id string) (domain.Registration, error) {
	return scanRegistration(r.queryRow(ctx, tx, `SELECT `+registrationColumns+` FROM registrations WHERE id=?`, id))
}

func (r Repo) UpdateRegistration(ctx context.Context, tx *sql.Tx, g domain.Registration, expectedVersion int) error {
	res, err := r.exec(ctx, tx, `UPDATE registrations SET full_name=?, phone=?, email=?, address=?, category=?, description=?, household_size=?, status=?, approval_status=?, assigned_organization_id=?, assignment_date=?, approved_by=?, approved_at=?, rejection_reason=?, version=?, updated_at=? WHERE id=? AND version=?`,
		g.FullName, g.Phone, nullable(g.Email), nullable(g.Address), nullable(g.Category), nullable(g.Description),
		nullableIntPtr(g.HouseholdSize), g.Status, g.ApprovalStatus, nullableStringPtr(g.AssignedOrganizationID),
		nullableStringPtr(g.AssignmentDate), nullableStringPtr(g.ApprovedBy), nullableStringPtr(g.ApprovedAt),
		nullableStringPtr(g.RejectionReason), g.Version, g.UpdatedAt, g.ID, expectedVersion)
	if err != nil {
		return err
	}
	return r.versioned(ctx, tx, res, "registrations", g.ID)
}

func (r Repo) DeleteRegistration(ctx context.Context, tx *sql.Tx, id string, expectedVersion int) error {
	res, err := r.exec(ctx, tx, `DELETE FROM registrations WHERE id=? AND version=?`, id, expectedVersion)
	if err != nil {
		return err
	}
	return r.versioned(ctx, tx, res, "registrations", id)
}

type RegistrationFilters struct {
	Status                 string
	ApprovalStatus         string
	Category               string
	CreatedBy              string
	AssignedOrganizationID string
	Query                  string
	Visibility             *Visibility
	Limit                  int
	Offset                 int
}

func (f RegistrationFilters) clauses() ([]string, []any) {
	var clauses []string
	var args []any
	if f.Visibility != nil {
		clauses = append(clauses, "(assigned_organization_id=? OR created_by=?)")
		args = append(args, f.Visibility.OrganizationID, f.Visibility.ActorID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.ApprovalStatus != "" {
		clauses = append(clauses, "approval_status=?")
		args = append(args, f.ApprovalStatus)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by=?")
		args = append(args, f.CreatedBy)
	}
	if f.AssignedOrganizationID != "" {
		clauses = append(clauses, "assigned_organization_id=?")
		args = append(args, f.AssignedOrganizationID)
	}
	if f.Query != "" {
		clauses = append(clauses, "(LOWER(full_name) LIKE ? OR phone LIKE ? OR LOWER(registration_number) LIKE ?)")
		args = append(args, likeArg(f.Query), likeArg(f.Query), likeArg(f.Query))
	}
	return clauses, args
}

func (r Repo) ListRegistrations(ctx context.Context, f RegistrationFilters) ([]domain.Registration, int, error) {
	clauses, args := f.clauses()
	total, err := r.count(ctx, nil, "registrations", clauses, args)
	if err != nil {
		return nil, 0, err
	}
	query, args := page(`SELECT `+registrationColumns+` FROM registrations`+where(clauses)+` ORDER BY created_at DESC, id DESC`, args, f.Limit, f.Offset)
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.Registration
	for rows.Next() {
		g, err := scanRegistration(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, g)
	}
	return res, total, rows.Err()
}
