package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/promptgist/promptgist/internal/document"
	"github.com/promptgist/promptgist/internal/document/repository"
	"github.com/promptgist/promptgist/internal/identity"
	"github.com/promptgist/promptgist/internal/realtime"
	"github.com/promptgist/promptgist/internal/richtext"
	"github.com/promptgist/promptgist/pkg/logger"
	"github.com/promptgist/promptgist/pkg/metrics"
)

// Service defines the document business operations used by the handler layer.
// The acting user is read from the context with identity.FromContext.
type Service interface {
	ListOwned(ctx context.Context) ([]*document.Document, error)
	Create(ctx context.Context, in CreateInput) (*document.Document, error)
	Get(ctx context.Context, id string) (*document.Document, error)
	Delete(ctx context.Context, id string) error

	UpdateTitle(ctx context.Context, id, title string) (*document.Document, error)
	SetPublic(ctx context.Context, id string, public bool) (*document.Document, error)
	Share(ctx context.Context, id string) (ShareInfo, error)
	UpdateContent(ctx context.Context, id, content string, baseSeq int64) (*document.Document, error)

	SaveCheckpoint(ctx context.Context, id, name string) (*document.Version, error)
	ListVersions(ctx context.Context, id string) ([]*document.Version, error)
	RestoreVersion(ctx context.Context, id, versionID string) (*document.Document, error)
	DiffVersion(ctx context.Context, id, versionID string) ([]richtext.Segment, error)
	VersionDownload(ctx context.Context, id, versionID string) (Download, error)

	ListComments(ctx context.Context, id string) ([]*document.Comment, error)
	AddComment(ctx context.Context, id, content, selectedText string) (*document.Comment, error)
	ToggleResolved(ctx context.Context, id, commentID string) (*document.Comment, error)

	ListThreads(ctx context.Context, id string) ([]*document.Thread, error)
	GetThread(ctx context.Context, id, threadID string) (*document.Thread, error)
	CreateThread(ctx context.Context, id string, in ThreadInput) (*document.Thread, error)
	ReplyThread(ctx context.Context, id, threadID, text string) (*document.Thread, error)
	DeleteThread(ctx context.Context, id, threadID string) error

	Snapshot(ctx context.Context, id string) (*Snapshot, error)
}

// CreateInput carries an optional client-chosen id so the caller can
// navigate to the document before the write completes.
type CreateInput struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type ThreadInput struct {
	ID    string `json:"id"`
	Quote string `json:"quote"`
	Text  string `json:"text"`
}

type ShareInfo struct {
	IsPublic bool   `json:"isPublic"`
	URL      string `json:"url,omitempty"`
}

// Download is either a link to an archived copy or the content itself.
type Download struct {
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename"`
	Content  string `json:"content,omitempty"`
}

// Archiver stores version snapshots outside the database.
type Archiver interface {
	PutVersion(ctx context.Context, v *document.Version) error
	VersionURL(ctx context.Context, v *document.Version) (string, error)
}

// Options configures a DocumentService. Only Repo is required.
type Options struct {
	Repo         repository.Repository
	Publisher    realtime.Publisher
	Archiver     Archiver
	PublicOrigin string
	CacheSize    int
}

// DocumentService implements Service on top of a Repository with a read
// cache in front of document lookups.
type DocumentService struct {
	repo         repository.Repository
	pub          realtime.Publisher
	archive      Archiver
	publicOrigin string
	newID        func() string

	// cacheGen changes whenever an entry is invalidated or evicted. A read
	// or write result is cached only if the generation it started under is
	// still current.
	cacheMu  sync.Mutex
	cacheGen uint64
	cache    *lru.Cache[string, document.Document]
}

func New(opts Options) (*DocumentService, error) {
	if opts.Repo == nil {
		return nil, errors.New("document service: repository is required")
	}
	size := opts.CacheSize
	if size <= 0 {
		size = 1024
	}
	s := &DocumentService{
		repo:         opts.Repo,
		pub:          opts.Publisher,
		archive:      opts.Archiver,
		publicOrigin: opts.PublicOrigin,
		newID:        func() string { return xid.New().String() },
	}
	// the callback runs inside Add and Remove, which only happen under cacheMu
	cache, err := lru.NewWithEvict[string, document.Document](size, func(string, document.Document) { s.cacheGen++ })
	if err != nil {
		return nil, fmt.Errorf("document cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// NewMemoryService returns a Service backed by the in-memory repository and
// a process-local event hub.
func NewMemoryService() *DocumentService {
	s, _ := New(Options{Repo: repository.NewMemoryRepo(), Publisher: realtime.NewLocalBus(realtime.NewHub(0))})
	return s
}

// NewMongoService returns a Service backed by a MongoDB database.
// Caller is responsible for creating the client and passing the database in.
func NewMongoService(db *mongo.Database, opts Options) (*DocumentService, error) {
	opts.Repo = repository.NewMongoRepo(db)
	return New(opts)
}

// Invalidate drops id from the read cache. Wired to events from other
// instances.
func (s *DocumentService) Invalidate(id string) {
	s.cacheMu.Lock()
	s.cache.Remove(id)
	s.cacheGen++
	s.cacheMu.Unlock()
}

func currentUser(ctx context.Context) (identity.User, error) {
	u, ok := identity.FromContext(ctx)
	if !ok || u.ID == "" {
		return identity.User{}, fmt.Errorf("%w: sign-in required", document.ErrForbidden)
	}
	return u, nil
}

func (s *DocumentService) lookup(ctx context.Context, id string) (*document.Document, error) {
	if d, ok := s.cache.Get(id); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return &d, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()
	gen := s.generation()
	d, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	s.remember(gen, d)
	return d, nil
}

// generation is taken before a store call whose result goes to remember.
func (s *DocumentService) generation() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cacheGen
}

// remember caches d unless the cache was invalidated since gen or already
// holds the same or a newer seq.
func (s *DocumentService) remember(gen uint64, d *document.Document) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if gen != s.cacheGen {
		return
	}
	if cur, ok := s.cache.Peek(d.ID); ok && cur.Seq >= d.Seq {
		return
	}
	s.cache.Add(d.ID, *d)
}

// readable loads id for the current user: the owner always, anyone signed
// in when the document is public.
func (s *DocumentService) readable(ctx context.Context, id string) (*document.Document, identity.User, error) {
	u, err := currentUser(ctx)
	if err != nil {
		return nil, u, err
	}
	d, err := s.lookup(ctx, id)
	if err != nil {
		return nil, u, err
	}
	if d.OwnerID != u.ID && !d.IsPublic {
		return nil, u, fmt.Errorf("document %q: %w", id, document.ErrForbidden)
	}
	return d, u, nil
}

func (s *DocumentService) owned(ctx context.Context, id string) (*document.Document, identity.User, error) {
	d, u, err := s.readable(ctx, id)
	if err != nil {
		return nil, u, err
	}
	if d.OwnerID != u.ID {
		return nil, u, fmt.Errorf("document %q is not owned by caller: %w", id, document.ErrForbidden)
	}
	return d, u, nil
}

func (s *DocumentService) publish(ctx context.Context, t realtime.EventType, docID string, seq int64, data interface{}) {
	if s.pub == nil {
		return
	}
	ev, err := realtime.NewEvent(t, docID, seq, data)
	if err == nil {
		err = s.pub.Publish(ctx, ev)
	}
	if err != nil {
		logger.Warnf("publish %s for %s: %v", t, docID, err)
	}
}

func (s *DocumentService) ListOwned(ctx context.Context) ([]*document.Document, error) {
	u, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByOwner(ctx, u.ID)
}

func (s *DocumentService) Create(ctx context.Context, in CreateInput) (*document.Document, error) {
	u, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	d := &document.Document{ID: in.ID, Title: in.Title, Content: in.Content, OwnerID: u.ID}
	if d.ID == "" {
		d.ID = s.newID()
	}
	d.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	content, legacy, err := richtext.Normalize(d.Content, s.newID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrValidation, err)
	}
	d.Content = content

	gen := s.generation()
	if err := s.repo.CreateDocument(ctx, d); err != nil {
		if !errors.Is(err, document.ErrConflict) {
			return nil, err
		}
		existing, gerr := s.repo.GetDocument(ctx, d.ID)
		if gerr != nil {
			return nil, gerr
		}
		if existing.OwnerID != u.ID {
			return nil, err
		}
		return existing, nil
	}
	if _, err := storeLegacyThreads(ctx, s.repo, d.ID, legacy); err != nil {
		// the rewritten content would have lost those comments
		if derr := s.repo.DeleteDocument(ctx, d.ID); derr != nil {
			logger.Errorf("roll back create of %s: %v", d.ID, derr)
		}
		return nil, err
	}
	metrics.DocumentWrites.WithLabelValues("create").Inc()
	s.remember(gen, d)
	s.publish(ctx, realtime.DocumentUpdated, d.ID, d.Seq, d)
	return d, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*document.Document, error) {
	d, _, err := s.readable(ctx, id)
	return d, err
}

func (s *DocumentService) Delete(ctx context.Context, id string) error {
	if _, _, err := s.owned(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteDocument(ctx, id); err != nil {
		return err
	}
	s.Invalidate(id)
	metrics.DocumentWrites.WithLabelValues("delete").Inc()
	s.publish(ctx, realtime.DocumentDeleted, id, 0, nil)
	return nil
}

// update writes p to an owned document and publishes the result.
func (s *DocumentService) update(ctx context.Context, op, id string, p document.Patch, baseSeq int64) (*document.Document, error) {
	gen := s.generation()
	d, err := s.repo.UpdateDocument(ctx, id, p, baseSeq)
	if err != nil {
		var stale *document.StaleWriteError
		if errors.As(err, &stale) {
			metrics.StaleWrites.Inc()
			if stale.Current != nil {
				s.remember(gen, stale.Current)
			}
		}
		return nil, err
	}
	metrics.DocumentWrites.WithLabelValues(op).Inc()
	s.remember(gen, d)
	s.publish(ctx, realtime.DocumentUpdated, d.ID, d.Seq, d)
	return d, nil
}

func (s *DocumentService) UpdateTitle(ctx context.Context, id, title string) (*document.Document, error) {
	if _, _, err := s.owned(ctx, id); err != nil {
		return nil, err
	}
	if err := document.ValidateTitle(title); err != nil {
		return nil, err
	}
	return s.update(ctx, "title", id, document.Patch{Title: &title}, 0)
}

func (s *DocumentService) SetPublic(ctx context.Context, id string, public bool) (*document.Document, error) {
	if _, _, err := s.owned(ctx, id); err != nil {
		return nil, err
	}
	return s.update(ctx, "share", id, document.Patch{IsPublic: &public}, 0)
}

func (s *DocumentService) Share(ctx context.Context, id string) (ShareInfo, error) {
	d, _, err := s.readable(ctx, id)
	if err != nil {
		return ShareInfo{}, err
	}
	info := ShareInfo{IsPublic: d.IsPublic}
	if d.IsPublic {
		info.URL = ShareURL(s.publicOrigin, d.ID)
	}
	return info, nil
}

// ShareURL is the link handed out for a public document.
func ShareURL(origin, id string) string {
	return origin + "/?docId=" + id
}

// UpdateContent stores content when baseSeq matches the stored sequence, or
// unconditionally when baseSeq is zero. Legacy inline comment payloads in
// content are moved into thread records before the content is written, and
// threads whose anchor the new content no longer has are deleted.
func (s *DocumentService) UpdateContent(ctx context.Context, id, content string, baseSeq int64) (*document.Document, error) {
	if _, _, err := s.owned(ctx, id); err != nil {
		return nil, err
	}
	if err := document.ValidateContent(content); err != nil {
		return nil, err
	}
	normalized, legacy, err := richtext.Normalize(content, s.newID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrValidation, err)
	}
	created, err := storeLegacyThreads(ctx, s.repo, id, legacy)
	if err != nil {
		return nil, err
	}
	d, err := s.update(ctx, "content", id, document.Patch{Content: &normalized}, baseSeq)
	if err != nil {
		dropThreads(ctx, s.repo, id, created)
		return nil, err
	}
	if len(legacy) > 0 {
		s.publish(ctx, realtime.ThreadUpdated, id, 0, nil)
	}
	s.pruneThreads(ctx, id)
	return d, nil
}
