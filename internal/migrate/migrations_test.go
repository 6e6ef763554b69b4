package migrate

import (
	"testing"

	"caseline/internal/db"
)

func TestMigrateSQLiteIsRepeatable(t *testing.T) {
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	v, err := Migrate(conn, dialect)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if v < 1 {
		t.Fatalf("version = %d", v)
	}
	again, err := Migrate(conn, dialect)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if again != v {
		t.Fatalf("version moved from %d to %d", v, again)
	}
	for _, table := range []string{"cases", "registrations", "referrals", "organizations", "events", "api_keys"} {
		var n int
		if err := conn.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("table %s: %v", table, err)
		}
	}
}

func TestDialectsShipSameVersions(t *testing.T) {
	lite, err := loadMigrations(db.SQLite)
	if err != nil {
		t.Fatal(err)
	}
	pg, err := loadMigrations(db.Postgres)
	if err != nil {
		t.Fatal(err)
	}
	if len(lite) != len(pg) {
		t.Fatalf("sqlite has %d migrations, postgres %d", len(lite), len(pg))
	}
	for i := range lite {
		if lite[i].Version != pg[i].Version {
			t.Fatalf("migration %d: %d vs %d", i, lite[i].Version, pg[i].Version)
		}
	}
}
