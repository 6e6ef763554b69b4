package engine

import (
	"context"
	"database/sql"

	"caseline/internal/domain"
	"caseline/internal/engine/auth"
	"caseline/internal/repo"
)

type EntityCounts struct {
	Total            int            `json:"total"`
	ByStatus         map[string]int `json:"by_status"`
	ByApprovalStatus map[string]int `json:"by_approval_status"`
	Urgent           int            `json:"urgent"`
}

type Dashboard struct {
	Cases                 EntityCounts `json:"cases"`
	Registrations         EntityCounts `json:"registrations"`
	Referrals             EntityCounts `json:"referrals"`
	ActiveCases           int          `json:"active_cases"`
	PendingReferrals      int          `json:"pending_referrals"`
	ReassignableReferrals int          `json:"reassignable_referrals"`
}

// Dashboard counts current rows in one read-only transaction, so every
// figure comes from the same snapshot. Nothing is cached. Organization-bound
// actors count what their lists show them: records assigned to their
// organization or created by them.
func (e Engine) Dashboard(ctx context.Context, actor domain.Actor, scope repo.Scope) (Dashboard, error) {
	if !auth.Authenticated(actor) {
		return Dashboard{}, domain.NewError(domain.KindNotAuthorized, "")
	}
	scope.Visibility = visibility(actor)
	tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Dashboard{}, err
	}
	defer tx.Rollback()

	var d Dashboard
	if d.Cases, err = e.counts(ctx, tx, domain.EntityCase, scope); err != nil {
		return Dashboard{}, err
	}
	if d.Registrations, err = e.counts(ctx, tx, domain.EntityRegistration, scope); err != nil {
		return Dashboard{}, err
	}
	if d.Referrals, err = e.counts(ctx, tx, domain.EntityReferral, scope); err != nil {
		return Dashboard{}, err
	}
	for _, s := range domain.CaseActiveStatuses {
		d.ActiveCases += d.Cases.ByStatus[s]
	}
	d.PendingReferrals = d.Referrals.ByStatus[domain.StatusPending]
	if d.ReassignableReferrals, err = e.Repo.CountReassignable(ctx, tx, scope); err != nil {
		return Dashboard{}, err
	}
	return d, tx.Commit()
}

func (e Engine) counts(ctx context.Context, tx *sql.Tx, kind domain.EntityKind, scope repo.Scope) (EntityCounts, error) {
	var c EntityCounts
	var err error
	if c.ByStatus, err = e.Repo.CountBy(ctx, tx, kind, "status", scope); err != nil {
		return c, err
	}
	if c.ByApprovalStatus, err = e.Repo.CountBy(ctx, tx, kind, "approval_status", scope); err != nil {
		return c, err
	}
	for _, n := range c.ByStatus {
		c.Total += n
	}
	if kind != domain.EntityRegistration {
		byPriority, err := e.Repo.CountBy(ctx, tx, kind, "priority", scope)
		if err != nil {
			return c, err
		}
		c.Urgent = byPriority[domain.PriorityUrgent]
	}
	return c, nil
}
