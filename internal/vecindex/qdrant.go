package vecindex

import (
	"context"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"specmatch/internal/embedder"
	"specmatch/pkg/types"
)

const (
	defaultCollection = "specmatch"
	upsertChunkSize   = 256
)

// qdrantIndex is the approximate backend. The corpus vectors live in a
// Qdrant collection; point ids are corpus positions, so hits map straight
// back to the in-memory items for evidence building.
type qdrantIndex struct {
	conn       *grpc.ClientConn
	points     qdrant.PointsClient
	collection string
	items      []types.ReferenceItem
	dim        int
}

func newQdrantIndex(ctx context.Context, items []types.ReferenceItem, dim int, opts Options) (*qdrantIndex, error) {
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}

	conn, err := grpc.Dial(opts.QdrantAddr, grpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}

	idx := &qdrantIndex{
		conn:       conn,
		points:     qdrant.NewPointsClient(conn),
		collection: collection,
		items:      items,
		dim:        dim,
	}

	if err := idx.recreateCollection(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := idx.upsertAll(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return idx, nil
}

// recreateCollection drops any stale collection and creates a fresh one
// sized to this corpus. The index contract is build-once, so a leftover
// collection from a previous run must never be reused.
func (q *qdrantIndex) recreateCollection(ctx context.Context) error {
	collections := qdrant.NewCollectionsClient(q.conn)

	// Ignore the delete result: the collection usually does not exist yet.
	_, _ = collections.Delete(ctx, &qdrant.DeleteCollection{
		CollectionName: q.collection,
	})

	_, err := collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(q.dim),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}
	return nil
}

func (q *qdrantIndex) upsertAll(ctx context.Context) error {
	wait := true

	for start := 0; start < len(q.items); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(q.items) {
			end = len(q.items)
		}

		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &qdrant.PointStruct{
				Id: &qdrant.PointId{
					PointIdOptions: &qdrant.PointId_Num{Num: uint64(i)},
				},
				Vectors: &qdrant.Vectors{
					VectorsOptions: &qdrant.Vectors_Vector{
						Vector: &qdrant.Vector{Data: q.items[i].Embedding},
					},
				},
				Payload: map[string]*qdrant.Value{
					"code": {Kind: &qdrant.Value_StringValue{StringValue: q.items[i].Code}},
				},
			})
		}

		_, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Points:         points,
			Wait:           &wait,
		})
		if err != nil {
			return fmt.Errorf("upsert points %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (q *qdrantIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 || len(q.items) == 0 {
		return []Hit{}, nil
	}

	query := embedder.Normalize(copyVector(vector))

	resp, err := q.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         query,
		Limit:          uint64(k),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, point := range resp.Result {
		pos := int(point.Id.GetNum())
		if pos < 0 || pos >= len(q.items) {
			continue
		}
		hits = append(hits, Hit{
			Position:   pos,
			Item:       &q.items[pos],
			Similarity: float64(point.Score),
		})
	}
	return hits, nil
}

func (q *qdrantIndex) Len() int {
	return len(q.items)
}

func (q *qdrantIndex) Dimension() int {
	return q.dim
}

func (q *qdrantIndex) Backend() string {
	return "qdrant"
}

func (q *qdrantIndex) Close() error {
	return q.conn.Close()
}
