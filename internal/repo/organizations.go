package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"caseline/internal/domain"
)

const organizationColumns = `id,name,COALESCE(type,''),COALESCE(email,''),COALESCE(phone,''),COALESCE(address,''),COALESCE(description,''),sectors_provided,locations_covered,is_active,COALESCE(created_by,''),created_at,updated_at`

func scanOrganization(s scanner) (domain.Organization, error) {
	var o domain.Organization
	var sectors, locations string
	err := s.Scan(&o.ID, &o.Name, &o.Type, &o.Email, &o.Phone, &o.Address, &o.Description, &sectors, &locations,
		&o.IsActive, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if o.SectorsProvided, err = unmarshalTags(sectors); err != nil {
		return o, fmt.Errorf("organization %s sectors: %w", o.ID, err)
	}
	if o.LocationsCovered, err = unmarshalTags(locations); err != nil {
		return o, fmt.Errorf("organization %s locations: %w", o.ID, err)
	}
	return o, nil
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

func unmarshalTags(s string) ([]string, error) {
	tags := []string{}
	if s == "" {
		return tags, nil
	}
	err := json.Unmarshal([]byte(s), &tags)
	return tags, err
}

func (r Repo) InsertOrganization(ctx context.Context, tx *sql.Tx, o domain.Organization) error {
	sectors, err := marshalTags(o.SectorsProvided)
	if err != nil {
		return err
	}
	locations, err := marshalTags(o.LocationsCovered)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, tx, `INSERT INTO organizations(id,name,type,email,phone,address,description,sectors_provided,locations_covered,is_active,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.Name, nullable(o.Type), nullable(o.Email), nullable(o.Phone), nullable(o.Address), nullable(o.Description),
		sectors, locations, o.IsActive, nullable(o.CreatedBy), o.CreatedAt, o.UpdatedAt)
	return err
}

func (r Repo) GetOrganization(ctx context.Context, tx *sql.Tx, id string) (domain.Organization, error) {
	return scanOrganization(r.queryRow(ctx, tx, `SELECT `+organizationColumns+` FROM organizations WHERE id=?`, id))
}

// SetOrganizationActive toggles is_active. Records already assigned to the
// organization are left untouched.
func (r Repo) SetOrganizationActive(ctx context.Context, tx *sql.Tx, id string, active bool, updatedAt string) error {
	res, err := r.exec(ctx, tx, `UPDATE organizations SET is_active=?, updated_at=? WHERE id=?`, active, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type OrganizationFilters struct {
	Active *bool
	Type   string
	Limit  int
	Offset int
}

func (r Repo) ListOrganizations(ctx context.Context, f OrganizationFilters) ([]domain.Organization, int, error) {
	var clauses []string
	var args []any
	if f.Active != nil {
		clauses = append(clauses, "is_active=?")
		args = append(args, *f.Active)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	total, err := r.count(ctx, nil, "organizations", clauses, args)
	if err != nil {
		return nil, 0, err
	}
	query, args := page(`SELECT `+organizationColumns+` FROM organizations`+where(clauses)+` ORDER BY name ASC, id ASC`, args, f.Limit, f.Offset)
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, o)
	}
	return res, total, rows.Err()
}
