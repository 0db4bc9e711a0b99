package service

import (
	"context"

	"github.com/promptgist/promptgist/internal/document"
	"github.com/promptgist/promptgist/internal/realtime"
	"github.com/promptgist/promptgist/internal/richtext"
	"github.com/promptgist/promptgist/pkg/logger"
	"github.com/promptgist/promptgist/pkg/metrics"
)

// SaveCheckpoint freezes the persisted content, not whatever the caller
// has locally.
func (s *DocumentService) SaveCheckpoint(ctx context.Context, id, name string) (*document.Version, error) {
	_, u, err := s.owned(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	v := &document.Version{
		ID:          s.newID(),
		DocumentID:  id,
		Name:        document.VersionName(name),
		Content:     d.Content,
		CreatedBy:   u.ID,
		DocumentSeq: d.Seq,
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateVersion(ctx, v); err != nil {
		return nil, err
	}
	metrics.DocumentWrites.WithLabelValues("checkpoint").Inc()
	if s.archive != nil {
		if err := s.archive.PutVersion(ctx, v); err != nil {
			logger.Warnf("archive version %s of %s: %v", v.ID, id, err)
		}
	}
	s.publish(ctx, realtime.VersionCreated, id, 0, v)
	return v, nil
}

func (s *DocumentService) ListVersions(ctx context.Context, id string) ([]*document.Version, error) {
	if _, _, err := s.readable(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, id)
}

// RestoreVersion replaces the live content with the version's content. The
// version list is left as it was; threads not anchored in the restored
// content are deleted.
func (s *DocumentService) RestoreVersion(ctx context.Context, id, versionID string) (*document.Document, error) {
	if _, _, err := s.owned(ctx, id); err != nil {
		return nil, err
	}
	v, err := s.repo.GetVersion(ctx, id, versionID)
	if err != nil {
		return nil, err
	}
	content := v.Content
	d, err := s.update(ctx, "restore", id, document.Patch{Content: &content}, 0)
	if err != nil {
		return nil, err
	}
	s.pruneThreads(ctx, id)
	return d, nil
}

// DiffVersion compares the version's text against the live document.
func (s *DocumentService) DiffVersion(ctx context.Context, id, versionID string) ([]richtext.Segment, error) {
	d, _, err := s.readable(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := s.repo.GetVersion(ctx, id, versionID)
	if err != nil {
		return nil, err
	}
	return richtext.Diff(v.Content, d.Content)
}

func (s *DocumentService) VersionDownload(ctx context.Context, id, versionID string) (Download, error) {
	if _, _, err := s.readable(ctx, id); err != nil {
		return Download{}, err
	}
	v, err := s.repo.GetVersion(ctx, id, versionID)
	if err != nil {
		return Download{}, err
	}
	out := Download{Filename: id + "-" + v.ID + ".html"}
	if s.archive != nil {
		url, err := s.archive.VersionURL(ctx, v)
		if err == nil {
			out.URL = url
			return out, nil
		}
		logger.Warnf("presign version %s of %s: %v", v.ID, id, err)
	}
	out.Content = v.Content
	return out, nil
}
