package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/migrate"
	"caseline/internal/repo"
)

func TestAppendCommitsWithTransaction(t *testing.T) {
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := migrate.Migrate(conn, dialect); err != nil {
		t.Fatal(err)
	}
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	w := Writer{Dialect: dialect, Now: func() time.Time { return fixed }}
	ctx := context.Background()

	tx, _ := conn.BeginTx(ctx, nil)
	if err := w.Append(ctx, tx, Type(domain.EntityReferral, domain.TransitionDecline), domain.EntityReferral, "r1", "u1", EventPayload{"reason": "no capacity"}); err != nil {
		t.Fatal(err)
	}
	_ = tx.Rollback()

	tx, _ = conn.BeginTx(ctx, nil)
	if err := w.Append(ctx, tx, Type(domain.EntityReferral, domain.TransitionAccept), domain.EntityReferral, "r1", "u2", nil); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	evts, err := repo.Repo{DB: conn, Dialect: dialect}.ListEvents(ctx, repo.EventFilters{EntityID: "r1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected only the committed event, got %d", len(evts))
	}
	e := evts[0]
	if e.Type != "referral.accept" || e.TS != "2025-03-04T05:06:07Z" || e.ActorID != "u2" {
		t.Fatalf("unexpected event %+v", e)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
}
