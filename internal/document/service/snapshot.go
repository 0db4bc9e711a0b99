package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/promptgist/promptgist/internal/document"
)

// Snapshot is everything a client needs to open a document in one response.
type Snapshot struct {
	Document *document.Document  `json:"document"`
	Versions []*document.Version `json:"versions"`
	Comments []*document.Comment `json:"comments"`
	Threads  []*document.Thread  `json:"threads"`
}

func (s *DocumentService) Snapshot(ctx context.Context, id string) (*Snapshot, error) {
	d, _, err := s.readable(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &Snapshot{Document: d}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		out.Versions, err = s.repo.ListVersions(ctx, id)
		return err
	})
	eg.Go(func() error {
		var err error
		out.Comments, err = s.repo.ListComments(ctx, id)
		return err
	})
	eg.Go(func() error {
		var err error
		out.Threads, err = s.repo.ListThreads(ctx, id)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
