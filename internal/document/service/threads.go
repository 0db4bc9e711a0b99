package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/promptgist/promptgist/internal/document"
	"github.com/promptgist/promptgist/internal/document/repository"
	"github.com/promptgist/promptgist/internal/realtime"
	"github.com/promptgist/promptgist/internal/richtext"
	"github.com/promptgist/promptgist/pkg/logger"
	"github.com/promptgist/promptgist/pkg/metrics"
)

// anchorRetries bounds how often DeleteThread re-reads the document when a
// concurrent content write wins.
const anchorRetries = 3

func (s *DocumentService) ListThreads(ctx context.Context, id string) ([]*document.Thread, error) {
	if _, _, err := s.readable(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListThreads(ctx, id)
}

func (s *DocumentService) GetThread(ctx context.Context, id, threadID string) (*document.Thread, error) {
	if _, _, err := s.readable(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetThread(ctx, id, threadID)
}

// CreateThread starts a thread with its first message. The caller writes
// the anchor into the content first; in.ID must name it.
func (s *DocumentService) CreateThread(ctx context.Context, id string, in ThreadInput) (*document.Thread, error) {
	d, u, err := s.readable(ctx, id)
	if err != nil {
		return nil, err
	}
	t := &document.Thread{
		ID:         in.ID,
		DocumentID: id,
		Quote:      in.Quote,
		Messages: []document.Message{{
			ID:         s.newID(),
			Text:       in.Text,
			AuthorID:   u.ID,
			AuthorName: u.DisplayName(),
			Timestamp:  time.Now().UTC(),
		}},
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if !hasAnchor(d.Content, t.ID) {
		return nil, fmt.Errorf("%w: no anchor for thread %q in the content", document.ErrValidation, t.ID)
	}
	if err := s.repo.CreateThread(ctx, t); err != nil {
		return nil, err
	}
	// A content write may have dropped the anchor in the meantime.
	if cur, err := s.repo.GetDocument(ctx, id); err == nil && !hasAnchor(cur.Content, t.ID) {
		if err := s.repo.DeleteThread(ctx, id, t.ID); err != nil {
			logger.Warnf("drop thread %s of %s: %v", t.ID, id, err)
		}
		return nil, fmt.Errorf("anchor %q left document %q: %w", t.ID, id, document.ErrConflict)
	}
	metrics.DocumentWrites.WithLabelValues("thread").Inc()
	s.publish(ctx, realtime.ThreadUpdated, id, 0, t)
	return t, nil
}

func (s *DocumentService) ReplyThread(ctx context.Context, id, threadID, text string) (*document.Thread, error) {
	_, u, err := s.readable(ctx, id)
	if err != nil {
		return nil, err
	}
	m := document.Message{
		ID:         s.newID(),
		Text:       text,
		AuthorID:   u.ID,
		AuthorName: u.DisplayName(),
		Timestamp:  time.Now().UTC(),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	t, err := s.repo.AppendMessage(ctx, id, threadID, m)
	if err != nil {
		return nil, err
	}
	metrics.DocumentWrites.WithLabelValues("reply").Inc()
	s.publish(ctx, realtime.ThreadUpdated, id, 0, t)
	return t, nil
}

// DeleteThread unwraps the thread's anchor from the content and then drops
// the thread record.
func (s *DocumentService) DeleteThread(ctx context.Context, id, threadID string) error {
	if _, _, err := s.owned(ctx, id); err != nil {
		return err
	}
	if _, err := s.repo.GetThread(ctx, id, threadID); err != nil {
		return err
	}
	if err := s.removeAnchor(ctx, id, threadID); err != nil {
		return err
	}
	if err := s.repo.DeleteThread(ctx, id, threadID); err != nil {
		return err
	}
	metrics.DocumentWrites.WithLabelValues("thread_delete").Inc()
	s.publish(ctx, realtime.ThreadDeleted, id, 0, map[string]string{"threadId": threadID})
	return nil
}

func (s *DocumentService) removeAnchor(ctx context.Context, id, threadID string) error {
	for attempt := 0; ; attempt++ {
		d, err := s.repo.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		content, changed, err := richtext.RemoveAnchor(d.Content, threadID)
		if err != nil {
			return fmt.Errorf("%w: %v", document.ErrValidation, err)
		}
		if !changed {
			return nil
		}
		_, err = s.update(ctx, "content", id, document.Patch{Content: &content}, d.Seq)
		if err == nil || !errors.Is(err, document.ErrStaleWrite) || attempt >= anchorRetries {
			return err
		}
	}
}

func hasAnchor(content, threadID string) bool {
	anchors, err := richtext.Anchors(content)
	if err != nil {
		return false
	}
	for _, a := range anchors {
		if a.ThreadID == threadID {
			return true
		}
	}
	return false
}

// pruneThreads drops the threads of id whose anchor is gone from the stored
// content, e.g. because the annotated text was deleted.
func (s *DocumentService) pruneThreads(ctx context.Context, id string) {
	d, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		logger.Warnf("prune threads of %s: %v", id, err)
		return
	}
	anchors, err := richtext.Anchors(d.Content)
	if err != nil {
		logger.Warnf("prune threads of %s: %v", id, err)
		return
	}
	keep := make(map[string]bool, len(anchors))
	for _, a := range anchors {
		keep[a.ThreadID] = true
	}
	threads, err := s.repo.ListThreads(ctx, id)
	if err != nil {
		logger.Warnf("prune threads of %s: %v", id, err)
		return
	}
	for _, t := range threads {
		if keep[t.ID] {
			continue
		}
		if err := s.repo.DeleteThread(ctx, id, t.ID); err != nil {
			if !errors.Is(err, document.ErrNotFound) {
				logger.Warnf("prune thread %s of %s: %v", t.ID, id, err)
			}
			continue
		}
		metrics.DocumentWrites.WithLabelValues("thread_delete").Inc()
		s.publish(ctx, realtime.ThreadDeleted, id, 0, map[string]string{"threadId": t.ID})
	}
}

// storeLegacyThreads persists threads recovered from legacy markup. It runs
// before the rewritten content is written, so a failure leaves the legacy
// payload in place. A thread id that already exists receives the messages
// it does not have yet. The ids of newly created threads are returned so a
// failed content write can drop them again.
func storeLegacyThreads(ctx context.Context, repo repository.Repository, docID string, threads []richtext.LegacyThread) ([]string, error) {
	var created []string
	for _, lt := range threads {
		t := &document.Thread{ID: lt.ThreadID, DocumentID: docID, Quote: lt.Quote, Messages: lt.Messages}
		if err := t.Validate(); err != nil {
			logger.Warnf("legacy thread %s in %s: %v", lt.ThreadID, docID, err)
			continue
		}
		err := repo.CreateThread(ctx, t)
		switch {
		case err == nil:
			created = append(created, t.ID)
		case errors.Is(err, document.ErrConflict):
			err = mergeLegacyMessages(ctx, repo, docID, lt)
		}
		if err != nil {
			dropThreads(ctx, repo, docID, created)
			return nil, fmt.Errorf("store legacy thread %s in %s: %w", lt.ThreadID, docID, err)
		}
	}
	return created, nil
}

func mergeLegacyMessages(ctx context.Context, repo repository.Repository, docID string, lt richtext.LegacyThread) error {
	existing, err := repo.GetThread(ctx, docID, lt.ThreadID)
	if err != nil {
		return err
	}
	seen := func(m document.Message) bool {
		for _, e := range existing.Messages {
			if e.ID == m.ID || (e.Text == m.Text && e.Timestamp.Equal(m.Timestamp)) {
				return true
			}
		}
		return false
	}
	for _, m := range lt.Messages {
		if seen(m) {
			continue
		}
		if existing, err = repo.AppendMessage(ctx, docID, lt.ThreadID, m); err != nil {
			return err
		}
	}
	return nil
}

// dropThreads undoes storeLegacyThreads after the content write failed.
func dropThreads(ctx context.Context, repo repository.Repository, docID string, ids []string) {
	for _, tid := range ids {
		if err := repo.DeleteThread(ctx, docID, tid); err != nil && !errors.Is(err, document.ErrNotFound) {
			logger.Warnf("drop legacy thread %s in %s: %v", tid, docID, err)
		}
	}
}
