package adapter

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// pointNamespace seeds the deterministic UUID derived from an index entry
// ID. Qdrant point IDs must be UUIDs; the logical entry ID is kept in the
// payload under "entry_id".
var pointNamespace = uuid.MustParse("7b2f9c4e-5d1a-4c8b-9e3f-2a6d8b0c4e1f")

// QdrantIndex implements VectorIndex against a Qdrant collection over gRPC.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	timeout     time.Duration
}

// NewQdrantIndex connects to Qdrant at the given gRPC address.
func NewQdrantIndex(addr, collection string, timeout time.Duration) (*QdrantIndex, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to dial qdrant", goerr.V("addr", addr))
	}

	return &QdrantIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		timeout:     timeout,
	}, nil
}

// Close closes the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}

// EnsureCollection creates the cosine-distance collection if it is missing.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dims int) error {
	ctx, cancel := q.bound(ctx)
	defer cancel()

	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return goerr.Wrap(err, "failed to list qdrant collections")
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create qdrant collection", goerr.V("collection", q.collection))
	}
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	ctx, cancel := q.bound(ctx)
	defer cancel()

	payload := make(map[string]*pb.Value, len(metadata)+1)
	payload["entry_id"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: id}}
	for k, v := range metadata {
		payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(id)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vector},
				},
			},
			Payload: payload,
		}},
	})
	if err != nil {
		return goerr.Wrap(err, "failed to upsert index entry", goerr.V("id", id))
	}
	return nil
}

func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	ctx, cancel := q.bound(ctx)
	defer cancel()

	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{
						PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(id)},
					}},
				},
			},
		},
	})
	if err != nil {
		return goerr.Wrap(err, "failed to delete index entry", goerr.V("id", id))
	}
	return nil
}

func (q *QdrantIndex) Fetch(ctx context.Context, id string) ([]float32, error) {
	ctx, cancel := q.bound(ctx)
	defer cancel()

	resp, err := q.points.Get(ctx, &pb.GetPoints{
		CollectionName: q.collection,
		Ids: []*pb.PointId{{
			PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(id)},
		}},
		WithVectors: &pb.WithVectorsSelector{
			SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch index entry", goerr.V("id", id))
	}

	for _, r := range resp.GetResult() {
		if vec := r.GetVectors().GetVector(); vec != nil {
			return vec.GetData(), nil
		}
	}
	return nil, nil
}

func (q *QdrantIndex) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	ctx, cancel := q.bound(ctx)
	defer cancel()

	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query index")
	}

	matches := make([]Match, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		m := Match{
			Score:    float64(r.GetScore()),
			Metadata: make(map[string]string, len(r.GetPayload())),
		}
		for key, val := range r.GetPayload() {
			if key == "entry_id" {
				m.ID = val.GetStringValue()
				continue
			}
			m.Metadata[key] = val.GetStringValue()
		}
		matches = append(matches, m)
	}

	SortMatches(matches)
	return matches, nil
}

// SortMatches orders matches by descending score, ties broken by the most
// recent timestamp metadata.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Metadata["timestamp"] > matches[j].Metadata["timestamp"]
	})
}

func (q *QdrantIndex) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if q.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, q.timeout)
}

func pointID(entryID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(entryID)).String()
}
