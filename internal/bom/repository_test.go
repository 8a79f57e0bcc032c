package bom

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepositorySaveAssignsRevisions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	b := draftPolo(t)

	saved, err := repo.Save(ctx, b)
	require.NoError(t, err)
	assert.EqualValues(t, 1, saved.Revision)

	_, err = repo.Save(ctx, b)
	assert.ErrorIs(t, err, ErrDuplicate, "second insert with revision 0")

	saved.Notes = "updated"
	updated, err := repo.Save(ctx, saved)
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated.Revision)

	_, err = repo.Save(ctx, saved)
	assert.ErrorIs(t, err, ErrConflict, "stale revision")

	ghost := draftPolo(t)
	ghost.ID = "ghost"
	ghost.Version = "v9.0"
	ghost.Revision = 4
	_, err = repo.Save(ctx, ghost)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepositoryRejectsInconsistentRollup(t *testing.T) {
	repo := NewMemoryRepository()
	b := draftPolo(t)
	b.CPP.TotalMaterialCost = 1

	_, err := repo.Save(context.Background(), b)
	assert.ErrorIs(t, err, ErrInconsistent)
	_, err = repo.Get(context.Background(), b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepositoryVersionUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	first := draftPolo(t)
	_, err := repo.Save(ctx, first)
	require.NoError(t, err)

	clash := draftPolo(t)
	clash.ID = "b-2"
	clash.Size = "m"
	_, err = repo.Save(ctx, clash)
	assert.ErrorIs(t, err, ErrDuplicate, "size compares case-insensitively")

	otherSize := draftPolo(t)
	otherSize.ID = "b-3"
	otherSize.Size = "L"
	_, err = repo.Save(ctx, otherSize)
	require.NoError(t, err)

	otherOrg := draftPolo(t)
	otherOrg.ID = "b-4"
	otherOrg.OrganizationID = "org-2"
	_, err = repo.Save(ctx, otherOrg)
	require.NoError(t, err)
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	saved, err := repo.Save(ctx, draftPolo(t))
	require.NoError(t, err)

	saved.Items[0].UnitCost = 1000
	loaded, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.InDelta(t, 45.50, loaded.Items[0].UnitCost, tolerance)

	loaded.Items[0].UnitCost = 1000
	again, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.InDelta(t, 45.50, again.Items[0].UnitCost, tolerance)
}

func TestMemoryRepositoryFetchFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		b := draftPolo(t)
		b.ID = fmt.Sprintf("polo-%d", i)
		b.Version = fmt.Sprintf("v1.%d", i)
		b.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		_, err := repo.Save(ctx, b)
		require.NoError(t, err)
	}
	tee := draftPolo(t)
	tee.ID = "tee"
	tee.StyleID = "TEE"
	tee.StyleName = "Crew Neck Tee"
	tee.Status = StatusApproved
	tee.CreatedAt = base
	_, err := repo.Save(ctx, tee)
	require.NoError(t, err)

	all, total, err := repo.Fetch(ctx, Criteria{OrganizationID: "org"})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Equal(t, "polo-4", all[0].ID, "newest first")

	page, total, err := repo.Fetch(ctx, Criteria{StyleID: "POLO", Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "polo-2", page[0].ID)
	assert.Equal(t, "polo-1", page[1].ID)

	past, total, err := repo.Fetch(ctx, Criteria{StyleID: "POLO", Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, past)

	found, _, err := repo.Fetch(ctx, Criteria{Search: "crew"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "tee", found[0].ID)

	approved, _, err := repo.Fetch(ctx, Criteria{Status: StatusApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)
}

func TestMemoryRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	saved, err := repo.Save(ctx, draftPolo(t))
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Delete(ctx, saved.ID, saved.Revision-1), ErrConflict)
	require.NoError(t, repo.Delete(ctx, saved.ID, saved.Revision))
	assert.ErrorIs(t, repo.Delete(ctx, saved.ID, saved.Revision), ErrNotFound)
	_, err = repo.Get(ctx, saved.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepositoryDeleteKeepsDecidedRecords(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	saved, err := repo.Save(ctx, draftPolo(t))
	require.NoError(t, err)

	read := saved
	require.NoError(t, saved.approve("qa", saved.UpdatedAt))
	approved, err := repo.Save(ctx, saved)
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Delete(ctx, read.ID, read.Revision), ErrConflict, "approved after it was read")
	assert.ErrorIs(t, repo.Delete(ctx, approved.ID, approved.Revision), ErrInvalidStatus)
	stored, err := repo.Get(ctx, read.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)
}

func TestMemoryRepositoryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := NewMemoryRepository()
	_, err := repo.Save(ctx, draftPolo(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCriteriaNormalize(t *testing.T) {
	c := Criteria{Page: -1, Limit: 5000, Search: "  polo "}.Normalize()
	assert.Equal(t, 1, c.Page)
	assert.Equal(t, maxLimit, c.Limit)
	assert.Equal(t, "polo", c.Search)
	assert.Equal(t, 0, c.Offset())

	c = Criteria{Page: 3}.Normalize()
	assert.Equal(t, defaultLimit, c.Limit)
	assert.Equal(t, 40, c.Offset())
}

func TestBuildFilter(t *testing.T) {
	where, args := buildFilter(Criteria{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = buildFilter(Criteria{OrganizationID: "org", Size: "M", Status: StatusDraft, Search: "polo"})
	assert.Equal(t, " WHERE organization_id = $1 AND LOWER(size) = LOWER($2) AND status = $3 AND (style_name ILIKE $4 OR style_id ILIKE $4)", where)
	assert.Equal(t, []any{"org", "M", "draft", "%polo%"}, args)
}
