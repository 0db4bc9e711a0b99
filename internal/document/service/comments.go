package service

import (
	"context"
	"fmt"

	"github.com/promptgist/promptgist/internal/document"
	"github.com/promptgist/promptgist/internal/realtime"
	"github.com/promptgist/promptgist/pkg/metrics"
)

func (s *DocumentService) ListComments(ctx context.Context, id string) ([]*document.Comment, error) {
	if _, _, err := s.readable(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListComments(ctx, id)
}

func (s *DocumentService) AddComment(ctx context.Context, id, content, selectedText string) (*document.Comment, error) {
	_, u, err := s.readable(ctx, id)
	if err != nil {
		return nil, err
	}
	c := &document.Comment{
		ID:           s.newID(),
		DocumentID:   id,
		Content:      content,
		SelectedText: selectedText,
		AuthorID:     u.ID,
		AuthorName:   u.DisplayName(),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateComment(ctx, c); err != nil {
		return nil, err
	}
	metrics.DocumentWrites.WithLabelValues("comment").Inc()
	s.publish(ctx, realtime.CommentAdded, id, 0, c)
	return c, nil
}

// ToggleResolved flips the resolved flag. The document owner and the
// comment's author may do so.
func (s *DocumentService) ToggleResolved(ctx context.Context, id, commentID string) (*document.Comment, error) {
	d, u, err := s.readable(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.OwnerID != u.ID {
		comments, err := s.repo.ListComments(ctx, id)
		if err != nil {
			return nil, err
		}
		var author string
		found := false
		for _, c := range comments {
			if c.ID == commentID {
				author, found = c.AuthorID, true
				break
			}
		}
		if !found {
			return nil, document.NotFound("comment", commentID)
		}
		if author != u.ID {
			return nil, fmt.Errorf("comment %q: %w", commentID, document.ErrForbidden)
		}
	}
	c, err := s.repo.ToggleCommentResolved(ctx, id, commentID)
	if err != nil {
		return nil, err
	}
	metrics.DocumentWrites.WithLabelValues("resolve").Inc()
	s.publish(ctx, realtime.CommentUpdated, id, 0, c)
	return c, nil
}
