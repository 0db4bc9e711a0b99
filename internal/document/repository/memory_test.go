package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/promptgist/promptgist/internal/document"
)

var (
	_ Repository = (*MemoryRepo)(nil)
	_ Repository = (*MongoRepo)(nil)
)

func tickingRepo() *MemoryRepo {
	r := NewMemoryRepo()
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time {
		t = t.Add(time.Second)
		return t
	})
	return r
}

func TestMemoryRepoDocumentCRUD(t *testing.T) {
	ctx := context.Background()
	r := tickingRepo()
	d := &document.Document{ID: "d1", OwnerID: "u1", Title: "t", Content: "<p>hello</p>"}
	require.NoError(t, r.CreateDocument(ctx, d))
	require.Equal(t, int64(1), d.Seq)
	require.ErrorIs(t, r.CreateDocument(ctx, &document.Document{ID: "d1", OwnerID: "u2"}), document.ErrConflict)

	got, err := r.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "<p>hello</p>", got.Content)

	got.Content = "mutated"
	again, _ := r.GetDocument(ctx, "d1")
	require.Equal(t, "<p>hello</p>", again.Content)

	content := "<p>new</p>"
	up, err := r.UpdateDocument(ctx, "d1", document.Patch{Content: &content}, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), up.Seq)
	require.True(t, up.UpdatedAt.After(up.CreatedAt))

	require.NoError(t, r.DeleteDocument(ctx, "d1"))
	_, err = r.GetDocument(ctx, "d1")
	require.ErrorIs(t, err, document.ErrNotFound)
	require.ErrorIs(t, r.DeleteDocument(ctx, "d1"), document.ErrNotFound)
}

func TestMemoryRepoStaleWrite(t *testing.T) {
	ctx := context.Background()
	r := tickingRepo()
	require.NoError(t, r.CreateDocument(ctx, &document.Document{ID: "d1", OwnerID: "u1"}))

	a, b := "A", "B"
	_, err := r.UpdateDocument(ctx, "d1", document.Patch{Content: &a}, 1)
	require.NoError(t, err)

	_, err = r.UpdateDocument(ctx, "d1", document.Patch{Content: &b}, 1)
	var swe *document.StaleWriteError
	require.True(t, errors.As(err, &swe))
	require.Equal(t, int64(2), swe.Current.Seq)
	require.Equal(t, "A", swe.Current.Content)

	up, err := r.UpdateDocument(ctx, "d1", document.Patch{Content: &b}, 0)
	require.NoError(t, err)
	require.Equal(t, "B", up.Content)
	require.Equal(t, int64(3), up.Seq)
}

func TestMemoryRepoListByOwnerOrder(t *testing.T) {
	ctx := context.Background()
	r := tickingRepo()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.CreateDocument(ctx, &document.Document{ID: id, OwnerID: "u1"}))
	}
	require.NoError(t, r.CreateDocument(ctx, &document.Document{ID: "x", OwnerID: "u2"}))
	title := "touched"
	_, err := r.UpdateDocument(ctx, "a", document.Patch{Title: &title}, 0)
	require.NoError(t, err)

	list, err := r.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	ids := []string{}
	for _, d := range list {
		ids = append(ids, d.ID)
	}
	require.Equal(t, []string{"a", "c", "b"}, ids)

	all, err := r.ListDocumentIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "x"}, all)
}

func TestMemoryRepoChildrenAndCascade(t *testing.T) {
	ctx := context.Background()
	r := tickingRepo()
	require.NoError(t, r.CreateDocument(ctx, &document.Document{ID: "d1", OwnerID: "u1"}))

	require.NoError(t, r.CreateVersion(ctx, &document.Version{ID: "v1", DocumentID: "d1", Name: "one"}))
	require.NoError(t, r.CreateVersion(ctx, &document.Version{ID: "v2", DocumentID: "d1", Name: "two"}))
	vs, err := r.ListVersions(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "v2", vs[0].ID)
	require.Equal(t, "v1", vs[1].ID)

	require.NoError(t, r.CreateComment(ctx, &document.Comment{ID: "c1", DocumentID: "d1", Content: "hi"}))
	c, err := r.ToggleCommentResolved(ctx, "d1", "c1")
	require.NoError(t, err)
	require.True(t, c.Resolved)
	c, err = r.ToggleCommentResolved(ctx, "d1", "c1")
	require.NoError(t, err)
	require.False(t, c.Resolved)

	th := &document.Thread{ID: "t1", DocumentID: "d1", Messages: []document.Message{{ID: "m1", Text: "first"}}}
	require.NoError(t, r.CreateThread(ctx, th))
	require.ErrorIs(t, r.CreateThread(ctx, th), document.ErrConflict)
	got, err := r.AppendMessage(ctx, "d1", "t1", document.Message{ID: "m2", Text: "second"})
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "m2", got.Messages[1].ID)

	require.NoError(t, r.DeleteDocument(ctx, "d1"))
	vs, _ = r.ListVersions(ctx, "d1")
	require.Empty(t, vs)
	cs, _ := r.ListComments(ctx, "d1")
	require.Empty(t, cs)
	ts, _ := r.ListThreads(ctx, "d1")
	require.Empty(t, ts)
}

func TestMemoryRepoChildOfMissingDocument(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	require.ErrorIs(t, r.CreateVersion(ctx, &document.Version{ID: "v", DocumentID: "nope"}), document.ErrNotFound)
	require.ErrorIs(t, r.CreateThread(ctx, &document.Thread{ID: "t", DocumentID: "nope"}), document.ErrNotFound)
	_, err := r.AppendMessage(ctx, "nope", "t", document.Message{Text: "x"})
	require.ErrorIs(t, err, document.ErrNotFound)
}
