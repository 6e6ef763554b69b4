package repo

import (
	"context"
	"database/sql"
	"errors"

	"caseline/internal/domain"
)

const referralColumns = `id,referral_number,case_id,referred_from,COALESCE(referred_to,''),COALESCE(client_name,''),COALESCE(client_phone,''),COALESCE(category,''),priority,reason,COALESCE(notes,''),status,approval_status,assigned_organization_id,assigned_by,can_be_reassigned,decline_reason,rejection_reason,approved_by,approved_at,created_by,version,created_at,updated_at`

func scanReferral(s scanner) (domain.Referral, error) {
	var f domain.Referral
	err := s.Scan(&f.ID, &f.ReferralNumber, &f.CaseID, &f.ReferredFrom, &f.ReferredTo, &f.ClientName, &f.ClientPhone,
		&f.Category, &f.Priority, &f.Reason, &f.Notes, &f.Status, &f.ApprovalStatus, &f.AssignedOrganizationID,
		&f.AssignedBy, &f.CanBeReassigned, &f.DeclineReason, &f.RejectionReason, &f.ApprovedBy, &f.ApprovedAt,
		&f.CreatedBy, &f.Version, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return f, ErrNotFound
	}
	return f, err
}

func (r Repo) InsertReferral(ctx context.Context, tx *sql.Tx, f domain.Referral) error {
	_, err := r.exec(ctx, tx, `INSERT INTO referrals(id,referral_number,case_id,referred_from,referred_to,client_name,client_phone,category,priority,reason,notes,status,approval_status,assigned_organization_id,assigned_by,can_be_reassigned,decline_reason,rejection_reason,approved_by,approved_at,created_by,version,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		f.ID, f.ReferralNumber, nullableStringPtr(f.CaseID), f.ReferredFrom, nullable(f.ReferredTo), nullable(f.ClientName),
		nullable(f.ClientPhone), nullable(f.Category), f.Priority, f.Reason, nullable(f.Notes), f.Status, f.ApprovalStatus,
		nullableStringPtr(f.AssignedOrganizationID), nullableStringPtr(f.AssignedBy), f.CanBeReassigned,
		nullableStringPtr(f.DeclineReason), nullableStringPtr(f.RejectionReason), nullableStringPtr(f.ApprovedBy),
		nullableStringPtr(f.ApprovedAt), f.CreatedBy, f.Version, f.CreatedAt, f.UpdatedAt)
	return err
}

func (r Repo) GetReferral(ctx context.Context, tx *sql.Tx, id string) (domain.Referral, error) {
	return scanReferral(r.queryRow(ctx, tx, `SELECT `+referralColumns+` FROM referrals WHERE id=?`, id))
}

func (r Repo) UpdateReferral(ctx context.Context, tx *sql.Tx, f domain.Referral, expectedVersion int) error {
	res, err := r.exec(ctx, tx, `UPDATE referrals SET case_id=?, referred_from=?, referred_to=?, client_name=?, client_phone=?, category=?, priority=?, reason=?, notes=?, status=?, approval_status=?, assigned_organization_id=?, assigned_by=?, can_be_reassigned=?, decline_reason=?, rejection_reason=?, approved_by=?, approved_at=?, version=?, updated_at=? WHERE id=? AND version=?`,
		nullableStringPtr(f.CaseID), f.ReferredFrom, nullable(f.ReferredTo), nullable(f.ClientName), nullable(f.ClientPhone),
		nullable(f.Category), f.Priority, f.Reason, nullable(f.Notes), f.Status, f.ApprovalStatus,
		nullableStringPtr(f.AssignedOrganizationID), nullableStringPtr(f.AssignedBy), f.CanBeReassigned,
		nullableStringPtr(f.DeclineReason), nullableStringPtr(f.RejectionReason), nullableStringPtr(f.ApprovedBy),
		nullableStringPtr(f.ApprovedAt), f.Version, f.UpdatedAt, f.ID, expectedVersion)
	if err != nil {
		return err
	}
	return r.versioned(ctx, tx, res, "referrals", f.ID)
}

func (r Repo) DeleteReferral(ctx context.Context, tx *sql.Tx, id string, expectedVersion int) error {
	res, err := r.exec(ctx, tx, `DELETE FROM referrals WHERE id=? AND version=?`, id, expectedVersion)
	if err != nil {
		return err
	}
	return r.versioned(ctx, tx, res, "referrals", id)
}

type ReferralFilters struct {
	Status                 string
	Priority               string
	Category               string
	CaseID                 string
	CreatedBy              string
	AssignedOrganizationID string
	Reassignable           bool
	Query                  string
	Visibility             *Visibility
	Limit                  int
	Offset                 int
}

func (f ReferralFilters) clauses() ([]string, []any) {
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
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.CaseID != "" {
		clauses = append(clauses, "case_id=?")
		args = append(args, f.CaseID)
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by=?")
		args = append(args, f.CreatedBy)
	}
	if f.AssignedOrganizationID != "" {
		clauses = append(clauses, "assigned_organization_id=?")
		args = append(args, f.AssignedOrganizationID)
	}
	if f.Reassignable {
		clauses = append(clauses, "can_be_reassigned=?", "status=?")
		args = append(args, true, domain.StatusRejected)
	}
	if f.Query != "" {
		clauses = append(clauses, "(LOWER(client_name) LIKE ? OR LOWER(referral_number) LIKE ? OR LOWER(reason) LIKE ?)")
		args = append(args, likeArg(f.Query), likeArg(f.Query), likeArg(f.Query))
	}
	return clauses, args
}

func (r Repo) ListReferrals(ctx context.Context, f ReferralFilters) ([]domain.Referral, int, error) {
	clauses, args := f.clauses()
	total, err := r.count(ctx, nil, "referrals", clauses, args)
	if err != nil {
		return nil, 0, err
	}
	query, args := page(`SELECT `+referralColumns+` FROM referrals`+where(clauses)+` ORDER BY created_at DESC, id DESC`, args, f.Limit, f.Offset)
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.Referral
	for rows.Next() {
		f, err := scanReferral(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, f)
	}
	return res, total, rows.Err()
}
