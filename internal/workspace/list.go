package workspace

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/xid"

	"github.com/promptgist/promptgist/internal/document"
	"github.com/promptgist/promptgist/internal/document/service"
	"github.com/promptgist/promptgist/pkg/logger"
)

var log = logger.Component("workspace")

// Entry is one row of the document list. Pending is set while an
// optimistic create is in flight; Err is set when it failed.
type Entry struct {
	Document document.Document
	Pending  bool
	Err      error

	// deleted marks a pending entry the user removed before its create
	// landed.
	deleted bool
}

// CreateError reports a create that failed after the user was already
// navigated to the new document.
type CreateError struct {
	ID  string
	Err error
}

func (e *CreateError) Error() string { return fmt.Sprintf("create %s: %v", e.ID, e.Err) }
func (e *CreateError) Unwrap() error { return e.Err }

// DocumentList is the user's list of owned documents plus the id of the
// open one. The empty id is the document-less view.
type DocumentList struct {
	client Client
	newID  func() string

	mu      sync.Mutex
	entries []*Entry
	current string

	errs chan error
	wg   sync.WaitGroup
}

func NewDocumentList(c Client) *DocumentList {
	return &DocumentList{
		client: c,
		newID:  func() string { return xid.New().String() },
		errs:   make(chan error, 16),
	}
}

// Errors delivers background failures. Nothing blocks on it: when the
// buffer is full the error is only logged.
func (l *DocumentList) Errors() <-chan error { return l.errs }

func (l *DocumentList) report(err error) {
	select {
	case l.errs <- err:
	default:
		log.Warnf("error channel full, dropping: %v", err)
	}
}

// Refresh replaces the list with the service's copy. Local entries the
// service does not know yet (pending or failed creates) stay at the head.
func (l *DocumentList) Refresh(ctx context.Context) error {
	docs, err := l.client.ListDocuments(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(docs))
	for _, d := range docs {
		known[d.ID] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	var next []*Entry
	for _, e := range l.entries {
		if (e.Pending || e.Err != nil) && !known[e.Document.ID] {
			next = append(next, e)
		}
	}
	for _, d := range docs {
		next = append(next, &Entry{Document: *d})
	}
	l.entries = next
	return nil
}

// Entries returns a copy of the list, newest first.
func (l *DocumentList) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
	}
	return out
}

func (l *DocumentList) Current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Open navigates to id.
func (l *DocumentList) Open(id string) {
	l.mu.Lock()
	l.current = id
	l.mu.Unlock()
}

// Create inserts a placeholder at the head of the list, opens it and
// persists it in the background. It returns the new id immediately.
func (l *DocumentList) Create(ctx context.Context) string {
	id := l.newID()
	e := &Entry{
		Document: document.Document{ID: id, Title: document.DefaultTitle, Content: document.DefaultContent},
		Pending:  true,
	}
	l.mu.Lock()
	l.entries = append([]*Entry{e}, l.entries...)
	l.current = id
	l.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		d, err := l.client.CreateDocument(ctx, service.CreateInput{ID: id})

		l.mu.Lock()
		e.Pending = false
		deleted := e.deleted
		if err != nil {
			e.Err = err
		} else {
			e.Document = *d
		}
		l.mu.Unlock()

		if deleted {
			if err == nil {
				if err := l.client.DeleteDocument(ctx, id); err != nil {
					log.Warnf("delete %s after create failed: %v", id, err)
					l.report(err)
				}
			}
			return
		}
		if err != nil {
			log.Warnf("create %s failed: %v", id, err)
			l.report(&CreateError{ID: id, Err: err})
		}
	}()
	return id
}

// Wait blocks until background creates have finished.
func (l *DocumentList) Wait() { l.wg.Wait() }

// Delete removes id from the list and the service. Deleting the open
// document returns to the document-less view. A pending create is removed
// from the service when it completes. If the service refuses, the
// entry is put back and the error returned.
func (l *DocumentList) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	pos := -1
	var removed *Entry
	for i, e := range l.entries {
		if e.Document.ID == id {
			pos, removed = i, e
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			break
		}
	}
	wasCurrent := l.current == id
	if wasCurrent {
		l.current = ""
	}
	// A create still in flight is deleted once it lands.
	pending := removed != nil && removed.Pending
	if pending {
		removed.deleted = true
	}
	l.mu.Unlock()

	// A create that never reached the service has nothing to delete.
	if pending || (removed != nil && removed.Err != nil) {
		return nil
	}
	err := l.client.DeleteDocument(ctx, id)
	if err == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if removed != nil {
		if pos > len(l.entries) {
			pos = len(l.entries)
		}
		l.entries = append(l.entries[:pos:pos], append([]*Entry{removed}, l.entries[pos:]...)...)
	}
	if wasCurrent && l.current == "" {
		l.current = id
	}
	return err
}
