// Package qdrant implements db.VectorSearcher on a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kailas-cloud/retrievex/internal/db"
)

// PrefixesField holds every encoded taxonomy prefix of a point as a keyword list.
const PrefixesField = "taxonomy_prefixes"

// ChunkIDField holds the chunk identifier when point IDs are UUIDs.
const ChunkIDField = "chunk_id"

var _ db.VectorSearcher = (*Store)(nil)

type pointsAPI interface {
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

type healthAPI interface {
	HealthCheck(ctx context.Context, in *pb.HealthCheckRequest, opts ...grpc.CallOption) (*pb.HealthCheckReply, error)
}

// Store queries a single Qdrant collection. The query's IndexName is ignored.
type Store struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	health      healthAPI
	collection  string
}

// New dials Qdrant at addr (host:port of the gRPC listener).
func New(addr, collection string) (*Store, error) {
	if addr == "" || collection == "" {
		return nil, errors.New("qdrant addr and collection are required")
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		health:      pb.NewQdrantClient(conn),
		collection:  collection,
	}, nil
}

// Close releases the gRPC connection.
func (s *Store) Close() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// Ping calls the Qdrant health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.health.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("qdrant health: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection with cosine distance if it is missing.
func (s *Store) EnsureCollection(ctx context.Context, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(dims), Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	return nil
}

// SearchKNN runs a cosine similarity search with an optional taxonomy prefix filter.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if len(q.Vector) == 0 {
		return nil, errors.New("vector is required")
	}
	if q.K <= 0 {
		return nil, errors.New("k must be positive")
	}

	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         q.Vector,
		Limit:          uint64(q.K),
		Filter:         buildPathFilter(q.PathFilter),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, &db.Error{Op: db.OpPoints, Err: err}
	}

	entries := make([]db.SearchEntry, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		fields := flattenPayload(p.GetPayload())
		key := fields[ChunkIDField]
		if key == "" {
			key = pointID(p.GetId())
		}
		entries = append(entries, db.SearchEntry{
			Key:    key,
			Score:  max(0, float64(p.GetScore())),
			Fields: fields,
		})
	}
	return &db.SearchResult{Total: len(entries), Entries: entries}, nil
}

// buildPathFilter matches points whose prefix list contains any literal.
// Literals travel as protobuf values, so no query text is ever assembled.
func buildPathFilter(literals []string) *pb.Filter {
	if len(literals) == 0 {
		return nil
	}
	should := make([]*pb.Condition, 0, len(literals))
	for _, lit := range literals {
		should = append(should, fieldMatch(PrefixesField, lit))
	}
	return &pb.Filter{Should: should}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func flattenPayload(payload map[string]*pb.Value) map[string]string {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *pb.Value_StringValue:
			out[k] = kind.StringValue
		case *pb.Value_IntegerValue:
			out[k] = strconv.FormatInt(kind.IntegerValue, 10)
		case *pb.Value_DoubleValue:
			out[k] = strconv.FormatFloat(kind.DoubleValue, 'g', -1, 64)
		case *pb.Value_BoolValue:
			out[k] = strconv.FormatBool(kind.BoolValue)
		}
	}
	return out
}

func pointID(id *pb.PointId) string {
	switch v := id.GetPointIdOptions().(type) {
	case *pb.PointId_Uuid:
		return v.Uuid
	case *pb.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	}
	return ""
}
