package service

import (
	"context"
	"errors"

	"github.com/rs/xid"

	"github.com/promptgist/promptgist/internal/document"
	"github.com/promptgist/promptgist/internal/document/repository"
	"github.com/promptgist/promptgist/internal/richtext"
)

// MigrationResult counts what MigrateLegacy changed across a run.
type MigrationResult struct {
	Scanned   int
	Rewritten int
	Threads   int
	Failed    int
}

// migrateRetries bounds how often MigrateDocument starts over when the
// document changes under it.
const migrateRetries = 3

// MigrateDocument moves legacy inline comment payloads of one document into
// thread records. It runs without an acting user and reports whether the
// content was rewritten and how many threads were created. Threads are
// stored before the content is rewritten.
func MigrateDocument(ctx context.Context, repo repository.Repository, id string) (bool, int, error) {
	newID := func() string { return xid.New().String() }
	for attempt := 0; ; attempt++ {
		d, err := repo.GetDocument(ctx, id)
		if err != nil {
			return false, 0, err
		}
		if !richtext.HasLegacy(d.Content) {
			return false, 0, nil
		}
		content, legacy, err := richtext.Normalize(d.Content, newID)
		if err != nil {
			return false, 0, err
		}
		if content == d.Content {
			return false, 0, nil
		}
		created, err := storeLegacyThreads(ctx, repo, id, legacy)
		if err != nil {
			return false, 0, err
		}
		_, err = repo.UpdateDocument(ctx, id, document.Patch{Content: &content}, d.Seq)
		if err == nil {
			return true, len(created), nil
		}
		dropThreads(ctx, repo, id, created)
		if !errors.Is(err, document.ErrStaleWrite) || attempt >= migrateRetries {
			return false, 0, err
		}
	}
}

// MigrateLegacy runs MigrateDocument over every document in the store.
// Per-document failures are counted and reported through onError.
func MigrateLegacy(ctx context.Context, repo repository.Repository, onError func(id string, err error)) (MigrationResult, error) {
	var res MigrationResult
	ids, err := repo.ListDocumentIDs(ctx)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++
		rewritten, n, err := MigrateDocument(ctx, repo, id)
		if err != nil {
			res.Failed++
			if onError != nil {
				onError(id, err)
			}
			continue
		}
		if rewritten {
			res.Rewritten++
		}
		res.Threads += n
	}
	return res, nil
}
