package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/apperr"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retry"
)

// Config holds Qdrant connection settings.
type Config struct {
	Host      string
	Port      int
	APIKey    string
	UseTLS    bool
	Dimension int
	// Timeout bounds a single upsert, search, delete, count or scroll call. Zero disables it.
	Timeout time.Duration
}

// QdrantStorage wraps the Qdrant client with connection management and health checks.
type QdrantStorage struct {
	client    *qdrant.Client
	host      string
	port      int
	dimension int
	timeout   time.Duration
}

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(ctx context.Context, cfg Config) (*QdrantStorage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	storage := &QdrantStorage{
		client:    client,
		host:      cfg.Host,
		port:      cfg.Port,
		dimension: cfg.Dimension,
		timeout:   cfg.Timeout,
	}

	if err := storage.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return storage, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, five attempts.
func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	policy := retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		// All health failures are considered retryable network issues.
		Retryable: func(error) bool { return true },
	}
	return retry.Do(ctx, policy, s.Health)
}

// Health performs a single health check against Qdrant.
// Returns nil if Qdrant is healthy, error otherwise.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// Dimension returns the configured vector size.
func (s *QdrantStorage) Dimension() int { return s.dimension }

// callContext derives the per-call deadline from the configured timeout.
func (s *QdrantStorage) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// EnsureCollection ensures the collection exists with proper configuration.
// Creates collection with cosine-distance vectors and keyword payload indexes.
// Idempotent - safe to call multiple times.
func (s *QdrantStorage) EnsureCollection(ctx context.Context, collection string) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range collections {
		if name == collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			VectorName: {
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx, collection); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}

	return nil
}

// createPayloadIndexes creates indexes for all filterable fields.
// Without these indexes per-user and per-document filtering degrades to full scans.
func (s *QdrantStorage) createPayloadIndexes(ctx context.Context, collection string) error {
	for _, field := range indexedFields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Upsert writes points in one request and waits for them to be persisted.
// Callers batch and retry.
func (s *QdrantStorage) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		if len(p.Vector) != s.dimension {
			return apperr.Validation("upsert", fmt.Errorf("%w: point %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(p.Vector), s.dimension))
		}
		payload, err := toQdrantPayload(p.Payload)
		if err != nil {
			return apperr.Validation("upsert", err)
		}
		qpoints[i] = &qdrant.PointStruct{
			Id: qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				VectorName: qdrant.NewVector(p.Vector...),
			}),
			Payload: payload,
		}
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qpoints,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search performs vector similarity search.
// Returns up to Limit points scoring at least ScoreThreshold, ordered by score descending.
func (s *QdrantStorage) Search(ctx context.Context, req SearchRequest) ([]ScoredPoint, error) {
	if len(req.Vector) != s.dimension {
		return nil, apperr.Validation("search", fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(req.Vector), s.dimension))
	}

	query := &qdrant.QueryPoints{
		CollectionName: req.Collection,
		Query:          qdrant.NewQuery(req.Vector...),
		Using:          qdrant.PtrOf(VectorName),
		Filter:         keywordFilter(req.Filter),
		Limit:          qdrant.PtrOf(uint64(req.Limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	if req.ScoreThreshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(req.ScoreThreshold)
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()
	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	points := make([]ScoredPoint, 0, len(results))
	for _, result := range results {
		points = append(points, ScoredPoint{
			ID:      result.Id.GetUuid(),
			Score:   result.Score,
			Payload: fromQdrantPayload(result.Payload),
		})
	}
	return points, nil
}

// DeleteByDocument removes every point written for documentID.
func (s *QdrantStorage) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points for document %s: %w", documentID, err)
	}
	return nil
}

// CountByDocument returns the number of points stored for documentID.
func (s *QdrantStorage) CountByDocument(ctx context.Context, collection, documentID string) (uint64, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
		},
		Exact: qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return n, nil
}

// ListSources returns one summary per indexed document, optionally restricted to a user.
// Uses Scroll API to iterate through all points.
func (s *QdrantStorage) ListSources(ctx context.Context, collection, userID string) ([]SourceSummary, error) {
	var filter *qdrant.Filter
	if userID != "" {
		filter = keywordFilter(map[string]string{"user_id": userID})
	}

	byDoc := make(map[string]*SourceSummary)
	var offset *qdrant.PointId
	batchSize := uint32(256)

	for {
		pageCtx, cancel := s.callContext(ctx)
		results, err := s.client.Scroll(pageCtx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude("document_id", "source_key", "filename", "user_id"),
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}

		for i, result := range results {
			// The offset point is returned again as the first hit of the next page.
			if i == 0 && offset != nil && result.GetId().String() == offset.String() {
				continue
			}
			docID := result.Payload["document_id"].GetStringValue()
			if docID == "" {
				continue
			}
			summary, ok := byDoc[docID]
			if !ok {
				summary = &SourceSummary{
					DocumentID: docID,
					SourceKey:  result.Payload["source_key"].GetStringValue(),
					Filename:   result.Payload["filename"].GetStringValue(),
					UserID:     result.Payload["user_id"].GetStringValue(),
				}
				byDoc[docID] = summary
			}
			summary.Chunks++
		}

		// Stop if we got fewer results than batch size (no more pages)
		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	out := make([]SourceSummary, 0, len(byDoc))
	for _, summary := range byDoc {
		out = append(out, *summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceKey < out[j].SourceKey })
	return out, nil
}

// GetCollectionInfo retrieves collection statistics including total points count.
func (s *QdrantStorage) GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	return &CollectionInfo{
		PointsCount: info.GetPointsCount(),
	}, nil
}

func keywordFilter(fields map[string]string) *qdrant.Filter {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	must := make([]*qdrant.Condition, 0, len(keys))
	for _, k := range keys {
		must = append(must, qdrant.NewMatch(k, fields[k]))
	}
	return &qdrant.Filter{Must: must}
}
