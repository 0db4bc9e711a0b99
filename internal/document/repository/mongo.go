package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/promptgist/promptgist/internal/document"
	"github.com/promptgist/promptgist/pkg/logger"
)

// MongoRepo stores each entity kind in its own collection. Threads keep the
// anchor id in "threadId" since anchor ids are only unique per document.
type MongoRepo struct {
	docs     *mongo.Collection
	versions *mongo.Collection
	comments *mongo.Collection
	threads  *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	r := &MongoRepo{
		docs:     db.Collection("documents"),
		versions: db.Collection("versions"),
		comments: db.Collection("comments"),
		threads:  db.Collection("threads"),
	}
	r.ensureIndexes(context.Background())
	return r
}

func (m *MongoRepo) ensureIndexes(ctx context.Context) {
	idx := []struct {
		col   *mongo.Collection
		model mongo.IndexModel
	}{
		{m.docs, mongo.IndexModel{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "updatedAt", Value: -1}}}},
		{m.versions, mongo.IndexModel{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "createdAt", Value: -1}}}},
		{m.comments, mongo.IndexModel{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "createdAt", Value: -1}}}},
		{m.threads, mongo.IndexModel{
			Keys:    bson.D{{Key: "documentId", Value: 1}, {Key: "threadId", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
	}
	for _, i := range idx {
		if _, err := i.col.Indexes().CreateOne(ctx, i.model); err != nil {
			logger.Warnf("mongo: create index on %s: %v", i.col.Name(), err)
		}
	}
}

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func (m *MongoRepo) CreateDocument(ctx context.Context, d *document.Document) error {
	t := now()
	d.Seq = 1
	d.CreatedAt = t
	d.UpdatedAt = t
	if _, err := m.docs.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("document %q: %w", d.ID, document.ErrConflict)
		}
		return err
	}
	return nil
}

func (m *MongoRepo) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	err := m.docs.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.NotFound("document", id)
		}
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) ListByOwner(ctx context.Context, ownerID string) ([]*document.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := m.docs.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	out := []*document.Document{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoRepo) ListDocumentIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.M{"_id": 1})
	cur, err := m.docs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []string
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row.ID)
	}
	return out, cur.Err()
}

// UpdateDocument matches on seq so the check and the write are one atomic
// operation on the server.
func (m *MongoRepo) UpdateDocument(ctx context.Context, id string, p document.Patch, baseSeq int64) (*document.Document, error) {
	filter := bson.M{"_id": id}
	if baseSeq != 0 {
		filter["seq"] = baseSeq
	}
	set := bson.M{"updatedAt": now()}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Content != nil {
		set["content"] = *p.Content
	}
	if p.IsPublic != nil {
		set["isPublic"] = *p.IsPublic
	}
	update := bson.M{"$set": set, "$inc": bson.M{"seq": 1}}

	var d document.Document
	err := m.docs.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&d)
	if err == nil {
		return &d, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	cur, gerr := m.GetDocument(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	return nil, &document.StaleWriteError{BaseSeq: baseSeq, Current: cur}
}

func (m *MongoRepo) DeleteDocument(ctx context.Context, id string) error {
	res, err := m.docs.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return document.NotFound("document", id)
	}
	for _, col := range []*mongo.Collection{m.versions, m.comments, m.threads} {
		if _, err := col.DeleteMany(ctx, bson.M{"documentId": id}); err != nil {
			return fmt.Errorf("delete %s of %q: %w", col.Name(), id, err)
		}
	}
	return nil
}

func (m *MongoRepo) CreateVersion(ctx context.Context, v *document.Version) error {
	v.CreatedAt = now()
	_, err := m.versions.InsertOne(ctx, v)
	return err
}

func (m *MongoRepo) GetVersion(ctx context.Context, docID, versionID string) (*document.Version, error) {
	var v document.Version
	err := m.versions.FindOne(ctx, bson.M{"_id": versionID, "documentId": docID}).Decode(&v)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.NotFound("version", versionID)
		}
		return nil, err
	}
	return &v, nil
}

func (m *MongoRepo) ListVersions(ctx context.Context, docID string) ([]*document.Version, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := m.versions.Find(ctx, bson.M{"documentId": docID}, opts)
	if err != nil {
		return nil, err
	}
	out := []*document.Version{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoRepo) CreateComment(ctx context.Context, c *document.Comment) error {
	c.CreatedAt = now()
	_, err := m.comments.InsertOne(ctx, c)
	return err
}

func (m *MongoRepo) ListComments(ctx context.Context, docID string) ([]*document.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := m.comments.Find(ctx, bson.M{"documentId": docID}, opts)
	if err != nil {
		return nil, err
	}
	out := []*document.Comment{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoRepo) ToggleCommentResolved(ctx context.Context, docID, commentID string) (*document.Comment, error) {
	flip := mongo.Pipeline{{{Key: "$set", Value: bson.D{{Key: "resolved", Value: bson.D{{Key: "$not", Value: bson.A{"$resolved"}}}}}}}}
	var c document.Comment
	err := m.comments.FindOneAndUpdate(ctx, bson.M{"_id": commentID, "documentId": docID}, flip,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.NotFound("comment", commentID)
		}
		return nil, err
	}
	return &c, nil
}

func (m *MongoRepo) CreateThread(ctx context.Context, t *document.Thread) error {
	n := now()
	t.CreatedAt = n
	t.UpdatedAt = n
	if _, err := m.threads.InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("thread %q: %w", t.ID, document.ErrConflict)
		}
		return err
	}
	return nil
}

func (m *MongoRepo) GetThread(ctx context.Context, docID, threadID string) (*document.Thread, error) {
	var t document.Thread
	err := m.threads.FindOne(ctx, bson.M{"documentId": docID, "threadId": threadID}).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.NotFound("thread", threadID)
		}
		return nil, err
	}
	return &t, nil
}

func (m *MongoRepo) ListThreads(ctx context.Context, docID string) ([]*document.Thread, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "threadId", Value: 1}})
	cur, err := m.threads.Find(ctx, bson.M{"documentId": docID}, opts)
	if err != nil {
		return nil, err
	}
	out := []*document.Thread{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoRepo) AppendMessage(ctx context.Context, docID, threadID string, msg document.Message) (*document.Thread, error) {
	update := bson.M{
		"$push": bson.M{"messages": msg},
		"$set":  bson.M{"updatedAt": now()},
	}
	var t document.Thread
	err := m.threads.FindOneAndUpdate(ctx, bson.M{"documentId": docID, "threadId": threadID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.NotFound("thread", threadID)
		}
		return nil, err
	}
	return &t, nil
}

func (m *MongoRepo) DeleteThread(ctx context.Context, docID, threadID string) error {
	res, err := m.threads.DeleteOne(ctx, bson.M{"documentId": docID, "threadId": threadID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return document.NotFound("thread", threadID)
	}
	return nil
}
