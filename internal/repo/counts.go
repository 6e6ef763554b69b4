package repo

import (
	"context"
	"database/sql"
	"fmt"

	"caseline/internal/domain"
)

// Scope narrows aggregate counts to a creator or to the records assigned to
// an organization. Visibility applies the same rule as the list filters.
// The zero Scope counts everything.
type Scope struct {
	CreatedBy      string
	OrganizationID string
	Visibility     *Visibility
}

var countTables = map[domain.EntityKind]string{
	domain.EntityCase:         "cases",
	domain.EntityRegistration: "registrations",
	domain.EntityReferral:     "referrals",
}

var groupColumns = map[string]bool{"status": true, "approval_status": true, "priority": true}

func scopeClauses(kind domain.EntityKind, s Scope) ([]string, []any) {
	var clauses []string
	var args []any
	if s.CreatedBy != "" {
		clauses = append(clauses, "created_by=?")
		args = append(args, s.CreatedBy)
	}
	if v := s.Visibility; v != nil {
		if kind == domain.EntityCase {
			clauses = append(clauses, "((assigned_to_type=? AND assigned_to=?) OR created_by=?)")
			args = append(args, string(domain.AssigneeOrganization), v.OrganizationID, v.ActorID)
		} else {
			clauses = append(clauses, "(assigned_organization_id=? OR created_by=?)")
			args = append(args, v.OrganizationID, v.ActorID)
		}
	}
	if s.OrganizationID != "" {
		if kind == domain.EntityCase {
			clauses = append(clauses, "assigned_to_type=?", "assigned_to=?")
			args = append(args, string(domain.AssigneeOrganization), s.OrganizationID)
		} else {
			clauses = append(clauses, "assigned_organization_id=?")
			args = append(args, s.OrganizationID)
		}
	}
	return clauses, args
}

// CountBy groups current rows of kind by column.
func (r Repo) CountBy(ctx context.Context, tx *sql.Tx, kind domain.EntityKind, column string, s Scope) (map[string]int, error) {
	table, ok := countTables[kind]
	if !ok {
		return nil, fmt.Errorf("no counts for %s", kind)
	}
	if !groupColumns[column] {
		return nil, fmt.Errorf("cannot group by %s", column)
	}
	clauses, args := scopeClauses(kind, s)
	rows, err := r.query(ctx, tx, `SELECT `+column+`, COUNT(*) FROM `+table+where(clauses)+` GROUP BY `+column, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		res[key] = n
	}
	return res, rows.Err()
}

// CountReassignable counts declined referrals open for a new assignment.
func (r Repo) CountReassignable(ctx context.Context, tx *sql.Tx, s Scope) (int, error) {
	clauses, args := scopeClauses(domain.EntityReferral, s)
	clauses = append(clauses, "can_be_reassigned=?", "status=?")
	args = append(args, true, domain.StatusRejected)
	return r.count(ctx, tx, "referrals", clauses, args)
}
