package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
	"github.com/tendant/mlr-content/pkg/mlrcontent/repo/memory"
)

func newItem(createdAt time.Time) (*mlrcontent.ContentItem, *mlrcontent.ContentVersion) {
	item := &mlrcontent.ContentItem{
		ID:          uuid.New(),
		ContentType: mlrcontent.ContentTypeEmail,
		Audience:    mlrcontent.AudienceHCP,
		CurrentHTML: "<p>A</p>",
		Status:      mlrcontent.ContentStatusDraft,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	version := &mlrcontent.ContentVersion{
		ID:           uuid.New(),
		ContentID:    item.ID,
		Sequence:     1,
		HTML:         item.CurrentHTML,
		ChangeSource: mlrcontent.ChangeSourceUser,
		CreatedAt:    createdAt,
	}
	return item, version
}

func TestMemoryRepository_ContentOperations(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		item, first := newItem(time.Now())
		require.NoError(t, repo.CreateContent(ctx, item, first))

		got, err := repo.GetContent(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, item.ID, got.ID)
		assert.Equal(t, "<p>A</p>", got.CurrentHTML)

		// Returned values are copies
		got.CurrentHTML = "mutated"
		again, err := repo.GetContent(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, "<p>A</p>", again.CurrentHTML)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.GetContent(ctx, uuid.New())
		assert.ErrorIs(t, err, mlrcontent.ErrContentNotFound)
	})

	t.Run("AppendVersion", func(t *testing.T) {
		item, first := newItem(time.Now())
		require.NoError(t, repo.CreateContent(ctx, item, first))

		v := &mlrcontent.ContentVersion{ID: uuid.New(), HTML: "<p>B</p>", ChangeSource: mlrcontent.ChangeSourceUser, CreatedAt: time.Now()}
		updated, err := repo.AppendVersion(ctx, item.ID, v, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, v.Sequence)
		assert.Equal(t, "<p>B</p>", updated.CurrentHTML)

		versions, err := repo.GetContentVersions(ctx, item.ID)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, 1, versions[0].Sequence)
		assert.Equal(t, 2, versions[1].Sequence)
	})

	t.Run("AppendVersionMutateErrorAborts", func(t *testing.T) {
		item, first := newItem(time.Now())
		require.NoError(t, repo.CreateContent(ctx, item, first))

		v := &mlrcontent.ContentVersion{ID: uuid.New(), HTML: "<p>B</p>", CreatedAt: time.Now()}
		_, err := repo.AppendVersion(ctx, item.ID, v, func(*mlrcontent.ContentItem) error {
			return fmt.Errorf("nope")
		})
		require.Error(t, err)

		versions, err := repo.GetContentVersions(ctx, item.ID)
		require.NoError(t, err)
		assert.Len(t, versions, 1)
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		item, first := newItem(time.Now())
		require.NoError(t, repo.CreateContent(ctx, item, first))
		require.NoError(t, repo.DeleteContent(ctx, item.ID))

		_, err := repo.GetContentVersions(ctx, item.ID)
		assert.ErrorIs(t, err, mlrcontent.ErrContentNotFound)
		assert.ErrorIs(t, repo.DeleteContent(ctx, item.ID), mlrcontent.ErrContentNotFound)
	})
}

func TestMemoryRepository_ConcurrentAppendVersion(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	item, first := newItem(time.Now())
	require.NoError(t, repo.CreateContent(ctx, item, first))

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := &mlrcontent.ContentVersion{ID: uuid.New(), HTML: fmt.Sprintf("<p>%d</p>", i), CreatedAt: time.Now()}
			_, err := repo.AppendVersion(ctx, item.ID, v, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	versions, err := repo.GetContentVersions(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, versions, writers+1)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Sequence)
	}

	got, err := repo.GetContent(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, versions[len(versions)-1].HTML, got.CurrentHTML)
}

func TestMemoryRepository_ListContent(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	base := time.Now()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		item, first := newItem(base.Add(time.Duration(i) * time.Minute))
		if i%2 == 0 {
			item.Audience = mlrcontent.AudiencePatient
		}
		require.NoError(t, repo.CreateContent(ctx, item, first))
		ids = append(ids, item.ID)
	}

	all, err := repo.ListContent(ctx, mlrcontent.ListContentFilters{Limit: 50})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, ids[4], all[0].ID, "newest first")

	page, err := repo.ListContent(ctx, mlrcontent.ListContentFilters{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)

	patients, err := repo.ListContent(ctx, mlrcontent.ListContentFilters{Audience: mlrcontent.AudiencePatient, Limit: 50})
	require.NoError(t, err)
	assert.Len(t, patients, 3)

	empty, err := repo.ListContent(ctx, mlrcontent.ListContentFilters{Limit: 10, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryRepository_FeedbackOperations(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	update := mlrcontent.FeedbackUpdate{
		ProofID:  "p-123",
		Status:   "reviewed",
		Event:    "proof.decision",
		Decision: mlrcontent.DecisionChangesRequested,
		Timestamp: ts,
	}

	first, err := repo.UpsertFeedback(ctx, update)
	require.NoError(t, err)
	second, err := repo.UpsertFeedback(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, mlrcontent.DecisionChangesRequested, second.Decision)

	all, err := repo.ListFeedback(ctx, mlrcontent.ListFeedbackFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	comments := []mlrcontent.ReviewComment{
		{ExternalCommentID: "c-1", Content: "Shorten headline", CommentCreatedAt: ts},
		{ExternalCommentID: "c-2", Content: "Fix color", CommentCreatedAt: ts.Add(time.Second)},
	}
	n, err := repo.AddComments(ctx, first.ID, comments)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.AddComments(ctx, first.ID, comments)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored, err := repo.ListComments(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "c-1", stored[0].ExternalCommentID)

	require.NoError(t, repo.DeleteFeedback(ctx, "p-123"))
	_, err = repo.GetFeedbackByProofID(ctx, "p-123")
	assert.ErrorIs(t, err, mlrcontent.ErrFeedbackNotFound)
	stored, err = repo.ListComments(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}
