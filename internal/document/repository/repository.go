package repository

import (
	"context"

	"github.com/promptgist/promptgist/internal/document"
)

// Repository persists documents and the records hanging off them. Callers
// own the returned values; implementations never hand out shared state.
type Repository interface {
	// CreateDocument stores d with Seq 1. An existing id yields ErrConflict.
	CreateDocument(ctx context.Context, d *document.Document) error
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	// ListByOwner returns the owner's documents, most recently updated first.
	ListByOwner(ctx context.Context, ownerID string) ([]*document.Document, error)
	ListDocumentIDs(ctx context.Context) ([]string, error)
	// UpdateDocument applies p and bumps Seq. When baseSeq is non-zero it
	// must equal the stored Seq, otherwise a *document.StaleWriteError is
	// returned.
	UpdateDocument(ctx context.Context, id string, p document.Patch, baseSeq int64) (*document.Document, error)
	// DeleteDocument removes the document with its versions, comments and
	// threads.
	DeleteDocument(ctx context.Context, id string) error

	CreateVersion(ctx context.Context, v *document.Version) error
	GetVersion(ctx context.Context, docID, versionID string) (*document.Version, error)
	// ListVersions returns newest first.
	ListVersions(ctx context.Context, docID string) ([]*document.Version, error)

	CreateComment(ctx context.Context, c *document.Comment) error
	// ListComments returns newest first.
	ListComments(ctx context.Context, docID string) ([]*document.Comment, error)
	ToggleCommentResolved(ctx context.Context, docID, commentID string) (*document.Comment, error)

	// CreateThread stores t; an existing thread id in the same document
	// yields ErrConflict.
	CreateThread(ctx context.Context, t *document.Thread) error
	GetThread(ctx context.Context, docID, threadID string) (*document.Thread, error)
	// ListThreads returns threads oldest first.
	ListThreads(ctx context.Context, docID string) ([]*document.Thread, error)
	AppendMessage(ctx context.Context, docID, threadID string, m document.Message) (*document.Thread, error)
	DeleteThread(ctx context.Context, docID, threadID string) error
}
