package analyses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements Repo on a MongoDB collection keyed by the analysis id.
type MongoRepo struct {
	Collection *mongo.Collection
}

// NewMongoRepo constructs a MongoRepo for coll.
func NewMongoRepo(coll *mongo.Collection) *MongoRepo {
	return &MongoRepo{Collection: coll}
}

// EnsureIndexes creates the listing index.
func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "subjectId", Value: 1}}},
	})
	return err
}

// Create inserts a new analysis.
func (r *MongoRepo) Create(ctx context.Context, analysis Analysis) error {
	_, err := r.Collection.InsertOne(ctx, analysis)
	return err
}

// GetByID returns an analysis by ID.
func (r *MongoRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	var a Analysis
	err := r.Collection.FindOne(ctx, bson.M{"_id": analysisID}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Analysis{}, ErrNotFound
	}
	if err != nil {
		return Analysis{}, err
	}
	normalizeDecoded(&a)
	return a, nil
}

// Update applies patch with FindOneAndUpdate; the status guard is part of the filter.
func (r *MongoRepo) Update(ctx context.Context, analysisID string, patch Patch) (Analysis, error) {
	filter, update := mongoUpdate(analysisID, patch)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var a Analysis
	err := r.Collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := r.GetByID(ctx, analysisID); getErr != nil {
			return Analysis{}, getErr
		}
		return Analysis{}, ErrStatusConflict
	}
	if err != nil {
		return Analysis{}, err
	}
	normalizeDecoded(&a)
	return a, nil
}

// ListRecent returns up to limit analyses, newest first.
func (r *MongoRepo) ListRecent(ctx context.Context, limit int) ([]Analysis, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := r.Collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find analyses: %w", err)
	}
	defer cursor.Close(ctx)

	out := []Analysis{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode analyses: %w", err)
	}
	for i := range out {
		normalizeDecoded(&out[i])
	}
	return out, nil
}

// mongoUpdate builds the filter and $set document for a patch.
func mongoUpdate(analysisID string, patch Patch) (bson.M, bson.M) {
	filter := bson.M{"_id": analysisID}
	set := bson.M{}
	if patch.Status != nil {
		filter["status"] = StatusAnalyzing
		set["status"] = *patch.Status
	}
	if patch.Result != nil {
		set["result"] = *patch.Result
	}
	if patch.Failure != nil {
		set["failure"] = *patch.Failure
	}
	if patch.Review != nil {
		set["review"] = *patch.Review
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	set["updatedAt"] = updatedAt
	return filter, bson.M{"$set": set}
}

// normalizeDecoded restores the in-memory shape after BSON decoding, which
// yields nil for empty arrays and local-zone times.
func normalizeDecoded(a *Analysis) {
	if a.Result != nil && a.Result.Redness.Areas == nil {
		a.Result.Redness.Areas = []string{}
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if a.Review.ReviewedAt != nil {
		t := a.Review.ReviewedAt.UTC()
		a.Review.ReviewedAt = &t
	}
}

var _ Repo = (*MongoRepo)(nil)
