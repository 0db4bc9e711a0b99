package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/promptgist/promptgist/internal/document"
	"github.com/promptgist/promptgist/internal/realtime"
)

// maxRebases bounds how often one write is retried against a moving seq.
const maxRebases = 5

// EditorSession syncs one open document. Local edits are written with the
// last applied seq as base; at most one write is in flight and edits made
// meanwhile collapse into a single follow-up write. Remote content is
// applied only when it is newer than what the session has seen, and only
// while there are no local edits waiting to be written.
type EditorSession struct {
	client   Client
	id       string
	onRemote func(content string, seq int64)

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	idle     *sync.Cond
	content  string
	seq      int64
	inflight bool
	queued   *string
	deferred *document.Document
	dirty    bool

	errs chan error
}

// OpenEditor loads id and starts a session. onRemote is called, outside
// any lock, whenever remote content replaces the local content; it may be
// nil.
func OpenEditor(ctx context.Context, c Client, id string, onRemote func(content string, seq int64)) (*EditorSession, error) {
	d, err := c.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &EditorSession{
		client:   c,
		id:       id,
		onRemote: onRemote,
		ctx:      sctx,
		cancel:   cancel,
		content:  d.Content,
		seq:      d.Seq,
		errs:     make(chan error, 8),
	}
	s.idle = sync.NewCond(&s.mu)
	return s, nil
}

func (s *EditorSession) ID() string { return s.id }

// Content is the local content, including unsaved edits.
func (s *EditorSession) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

// Seq is the last document seq the session applied or wrote.
func (s *EditorSession) Seq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Pending reports whether local edits have not reached the service yet.
func (s *EditorSession) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight || s.queued != nil || s.dirty
}

// Errors delivers write failures that were not resolved by a rebase.
func (s *EditorSession) Errors() <-chan error { return s.errs }

// Edit records new local content and schedules a write.
func (s *EditorSession) Edit(content string) {
	s.mu.Lock()
	s.content = content
	if s.inflight {
		s.queued = &content
		s.mu.Unlock()
		return
	}
	s.inflight = true
	s.dirty = false
	base := s.seq
	s.mu.Unlock()

	go s.write(content, base)
}

func (s *EditorSession) write(content string, base int64) {
	rebases := 0
	for {
		d, err := s.client.UpdateContent(s.ctx, s.id, content, base)

		s.mu.Lock()
		var stale *document.StaleWriteError
		switch {
		case errors.As(err, &stale) && stale.Current != nil && rebases < maxRebases:
			// Someone else wrote first. Keep the local edit and retry it
			// on top of their seq.
			rebases++
			if stale.Current.Seq > s.seq {
				s.seq = stale.Current.Seq
			}
			if s.queued != nil {
				content, s.queued = *s.queued, nil
			}
			base = s.seq
			s.mu.Unlock()
			continue

		case err != nil:
			s.inflight = false
			s.dirty = true
			s.queued = nil
			s.idle.Broadcast()
			s.mu.Unlock()
			select {
			case s.errs <- err:
			default:
				log.Warnf("editor %s: %v", s.id, err)
			}
			return
		}

		rebases = 0
		if d.Seq > s.seq {
			s.seq = d.Seq
		}
		if s.queued != nil {
			content, s.queued = *s.queued, nil
			base = s.seq
			s.mu.Unlock()
			continue
		}
		if remote := s.takeDeferred(); remote != nil && s.onRemote != nil {
			s.mu.Unlock()
			s.onRemote(remote.Content, remote.Seq)
			s.mu.Lock()
			if s.queued != nil {
				content, s.queued = *s.queued, nil
				base = s.seq
				s.mu.Unlock()
				continue
			}
		}
		s.inflight = false
		s.idle.Broadcast()
		s.mu.Unlock()
		return
	}
}

// takeDeferred applies a remote document held back while writing, if it
// is still newer. Callers hold mu.
func (s *EditorSession) takeDeferred() *document.Document {
	d := s.deferred
	s.deferred = nil
	if d == nil || d.Seq <= s.seq {
		return nil
	}
	s.content = d.Content
	s.seq = d.Seq
	return d
}

// ApplyRemote offers a document pushed by the service. It reports whether
// the content was applied now; older pushes are ignored and newer ones are
// held while local edits are pending.
func (s *EditorSession) ApplyRemote(d *document.Document) bool {
	s.mu.Lock()
	if d.ID != s.id || d.Seq <= s.seq {
		s.mu.Unlock()
		return false
	}
	if s.inflight || s.queued != nil || s.dirty {
		if s.deferred == nil || d.Seq > s.deferred.Seq {
			cp := *d
			s.deferred = &cp
		}
		s.mu.Unlock()
		return false
	}
	s.content = d.Content
	s.seq = d.Seq
	s.mu.Unlock()
	if s.onRemote != nil {
		s.onRemote(d.Content, d.Seq)
	}
	return true
}

// HandleEvent feeds a live event into the session. Only document updates
// carry content.
func (s *EditorSession) HandleEvent(ev realtime.Event) bool {
	if ev.Type != realtime.DocumentUpdated || ev.DocumentID != s.id || len(ev.Data) == 0 {
		return false
	}
	var d document.Document
	if err := json.Unmarshal(ev.Data, &d); err != nil {
		log.Warnf("editor %s: bad event payload: %v", s.id, err)
		return false
	}
	return s.ApplyRemote(&d)
}

// Follow applies events until the channel closes or the session is
// closed.
func (s *EditorSession) Follow(events <-chan realtime.Event) {
	go func() {
		for {
			select {
			case <-s.ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.HandleEvent(ev)
			}
		}
	}()
}

// Flush retries a failed write, if any, and waits until nothing is in
// flight.
func (s *EditorSession) Flush() {
	s.mu.Lock()
	if s.dirty && !s.inflight {
		s.inflight = true
		s.dirty = false
		content, base := s.content, s.seq
		s.mu.Unlock()
		go s.write(content, base)
		s.mu.Lock()
	}
	for s.inflight {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Close stops following events and abandons any write in flight.
func (s *EditorSession) Close() { s.cancel() }
