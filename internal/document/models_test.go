package document

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocumentNormalizeAndValidate(t *testing.T) {
	d := &Document{ID: "doc_1", OwnerID: "u1"}
	d.Normalize()
	require.Equal(t, DefaultTitle, d.Title)
	require.Equal(t, DefaultContent, d.Content)
	require.NoError(t, d.Validate())

	bad := &Document{ID: "../etc", OwnerID: "u1", Title: "x"}
	require.ErrorIs(t, bad.Validate(), ErrValidation)

	long := &Document{ID: "d", OwnerID: "u1", Title: strings.Repeat("a", MaxTitleLength+1)}
	require.ErrorIs(t, long.Validate(), ErrValidation)

	noOwner := &Document{ID: "d", Title: "x"}
	require.ErrorIs(t, noOwner.Validate(), ErrValidation)
}

func TestVersionName(t *testing.T) {
	require.Equal(t, "Untitled Version", VersionName(""))
	require.Equal(t, "Untitled Version", VersionName("   "))
	require.Equal(t, "draft 2", VersionName("draft 2"))
}

func TestCommentValidateDefaultsAuthor(t *testing.T) {
	c := &Comment{Content: "looks good"}
	require.NoError(t, c.Validate())
	require.Equal(t, DefaultAuthorName, c.AuthorName)

	empty := &Comment{Content: "  "}
	require.ErrorIs(t, empty.Validate(), ErrValidation)
}

func TestThreadValidate(t *testing.T) {
	th := &Thread{ID: "t1"}
	require.ErrorIs(t, th.Validate(), ErrValidation)

	th.Messages = []Message{{ID: "m1", Text: "hi"}}
	require.NoError(t, th.Validate())
	require.Equal(t, DefaultAuthorName, th.Messages[0].AuthorName)
}

func TestPatchApply(t *testing.T) {
	title := "T"
	pub := true
	d := &Document{Title: "old", Content: "c"}
	p := Patch{Title: &title, IsPublic: &pub}
	require.False(t, p.Empty())
	p.Apply(d)
	require.Equal(t, "T", d.Title)
	require.Equal(t, "c", d.Content)
	require.True(t, d.IsPublic)
	require.True(t, Patch{}.Empty())
}

func TestStaleWriteError(t *testing.T) {
	err := error(&StaleWriteError{BaseSeq: 2, Current: &Document{Seq: 5}})
	require.True(t, errors.Is(err, ErrStaleWrite))
	require.Contains(t, err.Error(), "current seq 5")

	var swe *StaleWriteError
	require.True(t, errors.As(err, &swe))
	require.Equal(t, int64(5), swe.Current.Seq)
}
