package richtext

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("gen%d", n)
	}
}

func TestAnchors(t *testing.T) {
	content := `<p>Say <span data-thread-id="t1">hello</span> to <span data-thread-id="t2">the</span> <span data-thread-id="t1"> world</span></p>`
	anchors, err := Anchors(content)
	require.NoError(t, err)
	require.Equal(t, []Anchor{{ThreadID: "t1", Quote: "hello world"}, {ThreadID: "t2", Quote: "the"}}, anchors)

	none, err := Anchors("<p>plain</p>")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestRemoveAnchor(t *testing.T) {
	out, changed, err := RemoveAnchor(`<p>a <span data-thread-id="t1">b</span> c</p>`, "t1")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, `<p>a b c</p>`, out)

	kept, changed, err := RemoveAnchor(`<p><span class="x" data-thread-id="t1">b</span></p>`, "t1")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, `<p><span class="x">b</span></p>`, kept)

	same := `<p>untouched</p>`
	out, changed, err = RemoveAnchor(same, "t9")
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, same, out)
}

func TestNormalizeListForm(t *testing.T) {
	content := `<p>x <span data-comments='[{"id":"m1","text":"first","authorName":"Ann","timestamp":1700000000000},{"text":"second","timestamp":"2024-01-02T03:04:05Z"}]'>quoted</span></p>`
	out, threads, err := Normalize(content, seqIDs())
	require.NoError(t, err)
	require.Len(t, threads, 1)

	th := threads[0]
	assert.Equal(t, "gen2", th.ThreadID)
	assert.Equal(t, "quoted", th.Quote)
	require.Len(t, th.Messages, 2)
	assert.Equal(t, "m1", th.Messages[0].ID)
	assert.Equal(t, "Ann", th.Messages[0].AuthorName)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), th.Messages[0].Timestamp)
	assert.Equal(t, "gen1", th.Messages[1].ID)
	assert.Equal(t, "Anonymous", th.Messages[1].AuthorName)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), th.Messages[1].Timestamp)

	assert.Equal(t, `<p>x <span data-thread-id="gen2">quoted</span></p>`, out)
	assert.False(t, HasLegacy(out))
}

func TestNormalizeSingleForm(t *testing.T) {
	content := `<p><span data-comment="check this" data-timestamp="1700000000000" data-comment-id="c7">text</span></p>`
	out, threads, err := Normalize(content, seqIDs())
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "c7", threads[0].ThreadID)
	assert.Equal(t, "check this", threads[0].Messages[0].Text)
	assert.Equal(t, `<p><span data-thread-id="c7">text</span></p>`, out)
}

func TestNormalizeDropsEmptyAnnotations(t *testing.T) {
	out, threads, err := Normalize(`<p><span data-comments="[]">bare</span></p>`, seqIDs())
	require.NoError(t, err)
	require.Empty(t, threads)
	assert.Equal(t, `<p>bare</p>`, out)
}

func TestNormalizeLeavesCleanContent(t *testing.T) {
	content := `<p>clean   <b>markup</b></p>`
	out, threads, err := Normalize(content, seqIDs())
	require.NoError(t, err)
	require.Nil(t, threads)
	require.Equal(t, content, out)
}

func TestPlainText(t *testing.T) {
	text, err := PlainText(`<h1>Title</h1><p>one <b>two</b></p><ul><li>a</li><li>b</li></ul>`)
	require.NoError(t, err)
	require.Equal(t, "Title\none two\na\nb", text)
}

func TestDiff(t *testing.T) {
	segs, err := Diff(`<p>the quick fox</p>`, `<p>the slow fox</p>`)
	require.NoError(t, err)

	var from, to strings.Builder
	for _, s := range segs {
		if s.Op != OpInsert {
			from.WriteString(s.Text)
		}
		if s.Op != OpDelete {
			to.WriteString(s.Text)
		}
	}
	require.Equal(t, "the quick fox", from.String())
	require.Equal(t, "the slow fox", to.String())
}
