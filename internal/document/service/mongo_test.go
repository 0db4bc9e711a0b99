package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/promptgist/promptgist/internal/document"
	"github.com/promptgist/promptgist/internal/document/repository"
)

func TestNewMongoServiceUsesDatabase(t *testing.T) {
	// nothing listens here; the driver connects lazily
	client, err := mongo.Connect(context.Background(), options.Client().
		ApplyURI("mongodb://127.0.0.1:1").
		SetServerSelectionTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(context.Background()) }()

	svc, err := NewMongoService(client.Database("promptgist_test"), Options{CacheSize: 8})
	require.NoError(t, err)
	require.IsType(t, &repository.MongoRepo{}, svc.repo)

	_, err = svc.Get(as("alice", ""), "d1")
	require.Error(t, err)
	require.NotErrorIs(t, err, document.ErrNotFound)
}
