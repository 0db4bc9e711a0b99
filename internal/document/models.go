package document

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultTitle        = "New Prompt"
	DefaultContent      = "<p></p>"
	DefaultVersionName  = "Untitled Version"
	DefaultAuthorName   = "Anonymous"
	MaxTitleLength      = 200
	MaxContentBytes     = 1 << 20
	MaxCommentLength    = 10000
	MaxVersionNameRunes = 200
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidID reports whether id is usable as a document, version, comment or
// thread identifier. Client-generated ids must pass this check.
func ValidID(id string) bool { return idPattern.MatchString(id) }

// Document is the persistent document record. Seq increases by one on
// every accepted write and is what clients send back as their base when
// writing content.
type Document struct {
	ID        string    `json:"id" bson:"_id"`
	Title     string    `json:"title" bson:"title"`
	Content   string    `json:"content" bson:"content"`
	OwnerID   string    `json:"ownerId" bson:"ownerId"`
	IsPublic  bool      `json:"isPublic" bson:"isPublic"`
	Seq       int64     `json:"seq" bson:"seq"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Normalize fills defaults for a document about to be created.
func (d *Document) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		d.Title = DefaultTitle
	}
	if strings.TrimSpace(d.Content) == "" {
		d.Content = DefaultContent
	}
}

// Validate checks the shape of a document before it reaches the store.
func (d *Document) Validate() error {
	if !ValidID(d.ID) {
		return fmt.Errorf("%w: invalid document id %q", ErrValidation, d.ID)
	}
	if d.OwnerID == "" {
		return fmt.Errorf("%w: ownerId is required", ErrValidation)
	}
	if err := ValidateTitle(d.Title); err != nil {
		return err
	}
	return ValidateContent(d.Content)
}

func ValidateTitle(title string) error {
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("%w: title longer than %d characters", ErrValidation, MaxTitleLength)
	}
	return nil
}

func ValidateContent(content string) error {
	if len(content) > MaxContentBytes {
		return fmt.Errorf("%w: content larger than %d bytes", ErrValidation, MaxContentBytes)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: content is not valid UTF-8", ErrValidation)
	}
	return nil
}

// Version is an immutable checkpoint of a document's content.
type Version struct {
	ID          string    `json:"id" bson:"_id"`
	DocumentID  string    `json:"documentId" bson:"documentId"`
	Name        string    `json:"name" bson:"name"`
	Content     string    `json:"content" bson:"content"`
	CreatedBy   string    `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	DocumentSeq int64     `json:"documentSeq" bson:"documentSeq"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// VersionName returns the label stored for a checkpoint request.
func VersionName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultVersionName
	}
	return name
}

func (v *Version) Validate() error {
	if utf8.RuneCountInString(v.Name) > MaxVersionNameRunes {
		return fmt.Errorf("%w: version name longer than %d characters", ErrValidation, MaxVersionNameRunes)
	}
	return ValidateContent(v.Content)
}

// Comment is a side-panel comment. Only Resolved changes after creation.
type Comment struct {
	ID           string    `json:"id" bson:"_id"`
	DocumentID   string    `json:"documentId" bson:"documentId"`
	Content      string    `json:"content" bson:"content"`
	SelectedText string    `json:"selectedText,omitempty" bson:"selectedText,omitempty"`
	AuthorID     string    `json:"authorId" bson:"authorId"`
	AuthorName   string    `json:"authorName" bson:"authorName"`
	Resolved     bool      `json:"resolved" bson:"resolved"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

func (c *Comment) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("%w: comment content is required", ErrValidation)
	}
	if utf8.RuneCountInString(c.Content) > MaxCommentLength {
		return fmt.Errorf("%w: comment longer than %d characters", ErrValidation, MaxCommentLength)
	}
	if c.AuthorName == "" {
		c.AuthorName = DefaultAuthorName
	}
	return nil
}

// Message is one entry of an inline comment thread.
type Message struct {
	ID         string    `json:"id" bson:"id"`
	Text       string    `json:"text" bson:"text"`
	AuthorID   string    `json:"authorId" bson:"authorId"`
	AuthorName string    `json:"authorName" bson:"authorName"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

func (m *Message) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: message text is required", ErrValidation)
	}
	if utf8.RuneCountInString(m.Text) > MaxCommentLength {
		return fmt.Errorf("%w: message longer than %d characters", ErrValidation, MaxCommentLength)
	}
	if m.AuthorName == "" {
		m.AuthorName = DefaultAuthorName
	}
	return nil
}

// Thread is an inline comment thread. Its ID is the anchor id written into
// the document content as data-thread-id and is unique within a document
// only; Messages is never empty.
type Thread struct {
	ID         string    `json:"id" bson:"threadId"`
	DocumentID string    `json:"documentId" bson:"documentId"`
	Quote      string    `json:"quote,omitempty" bson:"quote,omitempty"`
	Messages   []Message `json:"messages" bson:"messages"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (t *Thread) Validate() error {
	if !ValidID(t.ID) {
		return fmt.Errorf("%w: invalid thread id %q", ErrValidation, t.ID)
	}
	if len(t.Messages) == 0 {
		return fmt.Errorf("%w: thread needs at least one message", ErrValidation)
	}
	for i := range t.Messages {
		if err := t.Messages[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Patch describes a partial document update. Nil fields are left as is.
type Patch struct {
	Title    *string
	Content  *string
	IsPublic *bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.IsPublic == nil
}

// Apply writes the patch onto d. Seq and UpdatedAt are stamped by the store.
func (p Patch) Apply(d *Document) {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Content != nil {
		d.Content = *p.Content
	}
	if p.IsPublic != nil {
		d.IsPublic = *p.IsPublic
	}
}
