package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/promptgist/promptgist/internal/document"
)

// MemoryRepo keeps everything in maps behind a single lock. It backs the
// service when MongoDB is not configured and in unit tests.
type MemoryRepo struct {
	mu       sync.RWMutex
	docs     map[string]*document.Document
	versions map[string][]*document.Version
	comments map[string][]*document.Comment
	threads  map[string]map[string]*document.Thread
	now      func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		docs:     make(map[string]*document.Document),
		versions: make(map[string][]*document.Version),
		comments: make(map[string][]*document.Comment),
		threads:  make(map[string]map[string]*document.Thread),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Tests use it to get distinct stamps.
func (m *MemoryRepo) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func copyDoc(d *document.Document) *document.Document {
	c := *d
	return &c
}

func copyThread(t *document.Thread) *document.Thread {
	c := *t
	c.Messages = append([]document.Message(nil), t.Messages...)
	return &c
}

func (m *MemoryRepo) CreateDocument(_ context.Context, d *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[d.ID]; ok {
		return fmt.Errorf("document %q: %w", d.ID, document.ErrConflict)
	}
	now := m.now()
	d.Seq = 1
	d.CreatedAt = now
	d.UpdatedAt = now
	m.docs[d.ID] = copyDoc(d)
	return nil
}

func (m *MemoryRepo) GetDocument(_ context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.docs[id]; ok {
		return copyDoc(d), nil
	}
	return nil, document.NotFound("document", id)
}

func (m *MemoryRepo) ListByOwner(_ context.Context, ownerID string) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*document.Document{}
	for _, d := range m.docs {
		if d.OwnerID == ownerID {
			out = append(out, copyDoc(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryRepo) ListDocumentIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.docs))
	for id := range m.docs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryRepo) UpdateDocument(_ context.Context, id string, p document.Patch, baseSeq int64) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, document.NotFound("document", id)
	}
	if baseSeq != 0 && baseSeq != d.Seq {
		return nil, &document.StaleWriteError{BaseSeq: baseSeq, Current: copyDoc(d)}
	}
	p.Apply(d)
	d.Seq++
	d.UpdatedAt = m.now()
	return copyDoc(d), nil
}

func (m *MemoryRepo) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return document.NotFound("document", id)
	}
	delete(m.docs, id)
	delete(m.versions, id)
	delete(m.comments, id)
	delete(m.threads, id)
	return nil
}

func (m *MemoryRepo) CreateVersion(_ context.Context, v *document.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[v.DocumentID]; !ok {
		return document.NotFound("document", v.DocumentID)
	}
	v.CreatedAt = m.now()
	c := *v
	m.versions[v.DocumentID] = append(m.versions[v.DocumentID], &c)
	return nil
}

func (m *MemoryRepo) GetVersion(_ context.Context, docID, versionID string) (*document.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.versions[docID] {
		if v.ID == versionID {
			c := *v
			return &c, nil
		}
	}
	return nil, document.NotFound("version", versionID)
}

func (m *MemoryRepo) ListVersions(_ context.Context, docID string) ([]*document.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.versions[docID]
	out := make([]*document.Version, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		c := *list[i]
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryRepo) CreateComment(_ context.Context, c *document.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[c.DocumentID]; !ok {
		return document.NotFound("document", c.DocumentID)
	}
	c.CreatedAt = m.now()
	cc := *c
	m.comments[c.DocumentID] = append(m.comments[c.DocumentID], &cc)
	return nil
}

func (m *MemoryRepo) ListComments(_ context.Context, docID string) ([]*document.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.comments[docID]
	out := make([]*document.Comment, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		c := *list[i]
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryRepo) ToggleCommentResolved(_ context.Context, docID, commentID string) (*document.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.comments[docID] {
		if c.ID == commentID {
			c.Resolved = !c.Resolved
			cc := *c
			return &cc, nil
		}
	}
	return nil, document.NotFound("comment", commentID)
}

func (m *MemoryRepo) CreateThread(_ context.Context, t *document.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[t.DocumentID]; !ok {
		return document.NotFound("document", t.DocumentID)
	}
	byID := m.threads[t.DocumentID]
	if byID == nil {
		byID = make(map[string]*document.Thread)
		m.threads[t.DocumentID] = byID
	}
	if _, ok := byID[t.ID]; ok {
		return fmt.Errorf("thread %q: %w", t.ID, document.ErrConflict)
	}
	now := m.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	byID[t.ID] = copyThread(t)
	return nil
}

func (m *MemoryRepo) GetThread(_ context.Context, docID, threadID string) (*document.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.threads[docID][threadID]; ok {
		return copyThread(t), nil
	}
	return nil, document.NotFound("thread", threadID)
}

func (m *MemoryRepo) ListThreads(_ context.Context, docID string) ([]*document.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Thread, 0, len(m.threads[docID]))
	for _, t := range m.threads[docID] {
		out = append(out, copyThread(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryRepo) AppendMessage(_ context.Context, docID, threadID string, msg document.Message) (*document.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[docID][threadID]
	if !ok {
		return nil, document.NotFound("thread", threadID)
	}
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = m.now()
	return copyThread(t), nil
}

func (m *MemoryRepo) DeleteThread(_ context.Context, docID, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.threads[docID][threadID]; !ok {
		return document.NotFound("thread", threadID)
	}
	delete(m.threads[docID], threadID)
	return nil
}
