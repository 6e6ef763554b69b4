package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/migrate"
	"caseline/internal/repo"
)

func setup(t *testing.T) Router {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(conn, dialect)
	require.NoError(t, err)
	r := repo.Repo{DB: conn, Dialect: dialect}
	orgs := []domain.Organization{
		{ID: "o1", Name: "Food Bank North", SectorsProvided: []string{"Food Security", "Nutrition"}, LocationsCovered: []string{"Kano", "Kaduna"}, IsActive: true},
		{ID: "o2", Name: "Shelter Now", Description: "emergency housing", SectorsProvided: []string{"Shelter"}, LocationsCovered: []string{"Maiduguri"}, IsActive: true},
		{ID: "o3", Name: "Dormant Health", SectorsProvided: []string{"Health", "Nutrition"}, LocationsCovered: []string{"Kano"}, IsActive: false},
	}
	for _, o := range orgs {
		o.CreatedAt, o.UpdatedAt = "2025-01-01T00:00:00Z", "2025-01-01T00:00:00Z"
		require.NoError(t, r.InsertOrganization(context.Background(), nil, o))
	}
	return Router{Repo: r}
}

func ids(orgs []domain.Organization) []string {
	var res []string
	for _, o := range orgs {
		res = append(res, o.ID)
	}
	return res
}

func TestFindCandidatesOnlyActive(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	all, err := r.FindCandidates(ctx, Filters{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"o1", "o2"}, ids(all))

	nutrition, err := r.FindCandidates(ctx, Filters{Sector: "nutri"})
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, ids(nutrition))

	kano, err := r.FindCandidates(ctx, Filters{Location: "KANO"})
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, ids(kano))

	both, err := r.FindCandidates(ctx, Filters{Sector: "shelter", Location: "kano"})
	require.NoError(t, err)
	assert.Empty(t, both)

	housing, err := r.FindCandidates(ctx, Filters{Query: "housing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"o2"}, ids(housing))
}

func TestValidateTarget(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	o, err := r.ValidateTarget(ctx, nil, "o1")
	require.NoError(t, err)
	assert.Equal(t, "Food Bank North", o.Name)

	_, err = r.ValidateTarget(ctx, nil, "o3")
	assert.Equal(t, domain.KindOrganizationInactive, domain.KindOf(err))

	_, err = r.ValidateTarget(ctx, nil, "missing")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	_, err = r.ValidateTarget(ctx, nil, " ")
	assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))
}

func TestValidateTargetSeesDeactivation(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	cands, err := r.FindCandidates(ctx, Filters{Sector: "shelter"})
	require.NoError(t, err)
	require.Len(t, cands, 1)

	require.NoError(t, r.Repo.SetOrganizationActive(ctx, nil, "o2", false, "2025-01-02T00:00:00Z"))
	_, err = r.ValidateTarget(ctx, nil, cands[0].ID)
	assert.Equal(t, domain.KindOrganizationInactive, domain.KindOf(err))
}
