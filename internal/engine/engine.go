package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/engine/auth"
	"caseline/internal/events"
	"caseline/internal/obs"
	"caseline/internal/repo"
	"caseline/internal/router"
)

// Engine applies workflow transitions. Every transition is a single
// transaction: read, gate, state check, version-checked write, activity log.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Router router.Router
	Log    *zap.Logger
	Now    func() time.Time
}

func New(conn *sql.DB, dialect db.Dialect, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := repo.Repo{DB: conn, Dialect: dialect}
	e := Engine{
		DB:     conn,
		Repo:   r,
		Router: router.Router{Repo: r},
		Log:    log,
		Now:    time.Now,
	}
	e.Events = events.Writer{Dialect: dialect}
	return e
}

// events returns the activity-log writer stamped with the engine clock.
func (e Engine) events() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

// observe records metrics and a log line for one operation attempt.
func (e Engine) observe(kind domain.EntityKind, tr domain.Transition, id string, actor domain.Actor, start time.Time, err error) {
	outcome := "ok"
	fields := []zap.Field{
		zap.String("entity", string(kind)),
		zap.String("entity_id", id),
		zap.String("transition", string(tr)),
		zap.String("actor_id", actor.ID),
	}
	switch k := domain.KindOf(err); {
	case err == nil:
		e.logger().Info("transition committed", fields...)
	case k != "":
		outcome = string(k)
		e.logger().Debug("transition refused", append(fields, zap.String("kind", outcome), zap.Error(err))...)
	default:
		outcome = "error"
		e.logger().Error("transition failed", append(fields, zap.Error(err))...)
	}
	obs.ObserveTransition(string(kind), string(tr), outcome, time.Since(start))
}

func invalid(kind domain.EntityKind, tr domain.Transition, id, reason string) error {
	return &domain.Error{Kind: domain.KindInvalidStateTransition, Op: string(tr), Entity: string(kind), ID: id, Reason: reason}
}

func closed(kind domain.EntityKind, tr domain.Transition, id string) error {
	return invalid(kind, tr, id, domain.ReasonEntityClosed)
}

func validation(kind domain.EntityKind, tr domain.Transition, reason string) error {
	return &domain.Error{Kind: domain.KindValidationFailed, Op: string(tr), Entity: string(kind), Reason: reason}
}

func notFound(kind domain.EntityKind, tr domain.Transition, id string) error {
	return &domain.Error{Kind: domain.KindNotFound, Op: string(tr), Entity: string(kind), ID: id}
}

// storeErr maps repo sentinels to typed errors and wraps everything else.
func storeErr(kind domain.EntityKind, tr domain.Transition, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return notFound(kind, tr, id)
	case errors.Is(err, repo.ErrConflict):
		return &domain.Error{Kind: domain.KindConflict, Op: string(tr), Entity: string(kind), ID: id}
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return fmt.Errorf("%s %s %s: %w", tr, kind, id, err)
}

func requireReason(kind domain.EntityKind, tr domain.Transition, reason string) (string, error) {
	r := strings.TrimSpace(reason)
	if r == "" {
		return "", validation(kind, tr, "reason is required")
	}
	return r, nil
}

// store binds the repo calls of one entity type for the shared transition
// path.
type store[T any] struct {
	kind   domain.EntityKind
	get    func(context.Context, *sql.Tx, string) (T, error)
	update func(context.Context, *sql.Tx, T, int) error
	remove func(context.Context, *sql.Tx, string, int) error
	target func(T) auth.Target
	// meta exposes the version and updated_at fields of a record.
	meta func(*T) (*int, *string)
}

// mutation applies a transition to rec. It returns false when the record is
// already in the requested state and nothing should be written.
type mutation[T any] func(tx *sql.Tx, rec *T) (changed bool, payload events.EventPayload, err error)

// transition runs one atomic read-modify-write. The gate runs before the
// caller-side version check, so a denied actor never learns the version.
// expectedVersion 0 skips that check; the store write is version-checked
// regardless.
func transition[T any](ctx context.Context, e Engine, s store[T], actor domain.Actor, id string, tr domain.Transition, expectedVersion int, apply mutation[T]) (out T, err error) {
	start := time.Now()
	defer func() { e.observe(s.kind, tr, id, actor, start, err) }()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer tx.Rollback()

	cur, err := s.get(ctx, tx, id)
	if err != nil {
		return out, storeErr(s.kind, tr, id, err)
	}
	if err := auth.CanTransition(actor, s.target(cur), tr); err != nil {
		return out, err
	}
	version, _ := s.meta(&cur)
	prev := *version
	if expectedVersion != 0 && expectedVersion != prev {
		return out, &domain.Error{Kind: domain.KindConflict, Op: string(tr), Entity: string(s.kind), ID: id,
			Reason: fmt.Sprintf("expected version %d, found %d", expectedVersion, prev)}
	}

	next := cur
	changed, payload, err := apply(tx, &next)
	if err != nil {
		return out, err
	}
	if !changed {
		return cur, nil
	}
	v, updatedAt := s.meta(&next)
	*v = prev + 1
	*updatedAt = e.stamp()
	if err := s.update(ctx, tx, next, prev); err != nil {
		return out, storeErr(s.kind, tr, id, err)
	}
	if payload == nil {
		payload = events.EventPayload{}
	}
	payload["version"] = *v
	if err := e.events().Append(ctx, tx, events.Type(s.kind, tr), s.kind, id, actor.ID, payload); err != nil {
		return out, err
	}
	if err := tx.Commit(); err != nil {
		return out, err
	}
	return next, nil
}

// remove deletes a record after the delete gate passes.
func remove[T any](ctx context.Context, e Engine, s store[T], actor domain.Actor, id string, expectedVersion int) (err error) {
	start := time.Now()
	defer func() { e.observe(s.kind, domain.TransitionDelete, id, actor, start, err) }()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	cur, err := s.get(ctx, tx, id)
	if err != nil {
		return storeErr(s.kind, domain.TransitionDelete, id, err)
	}
	if err := auth.CanTransition(actor, s.target(cur), domain.TransitionDelete); err != nil {
		return err
	}
	version, _ := s.meta(&cur)
	if expectedVersion != 0 && expectedVersion != *version {
		return &domain.Error{Kind: domain.KindConflict, Op: string(domain.TransitionDelete), Entity: string(s.kind), ID: id}
	}
	if err := s.remove(ctx, tx, id, *version); err != nil {
		return storeErr(s.kind, domain.TransitionDelete, id, err)
	}
	if err := e.events().Append(ctx, tx, events.Type(s.kind, domain.TransitionDelete), s.kind, id, actor.ID, events.EventPayload{"version": *version}); err != nil {
		return err
	}
	return tx.Commit()
}

// create inserts a new record with its create event.
func (e Engine) create(ctx context.Context, actor domain.Actor, kind domain.EntityKind, id string, insert func(*sql.Tx) error, payload events.EventPayload) (err error) {
	start := time.Now()
	defer func() { e.observe(kind, domain.TransitionCreate, id, actor, start, err) }()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insert(tx); err != nil {
		return storeErr(kind, domain.TransitionCreate, id, err)
	}
	if err := e.events().Append(ctx, tx, events.Type(kind, domain.TransitionCreate), kind, id, actor.ID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strPtr(s string) *string { return &s }

// visibility returns the list restriction for organization-bound actors.
func visibility(actor domain.Actor) *repo.Visibility {
	if !auth.OrganizationBound(actor) {
		return nil
	}
	return &repo.Visibility{OrganizationID: actor.OrganizationID, ActorID: actor.ID}
}

func normalizePriority(kind domain.EntityKind, tr domain.Transition, p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return domain.PriorityMedium, nil
	}
	if !domain.ValidPriority(p) {
		return "", validation(kind, tr, fmt.Sprintf("unknown priority %q", p))
	}
	return p, nil
}
