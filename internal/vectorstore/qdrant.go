// Package vectorstore is the Qdrant-backed long-term tier. Memory content is
// embedded and upserted per user; recall is a filtered nearest-neighbor
// search over the user's own points.
package vectorstore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Collection string `json:"collection"`
}

// Client wraps gRPC connections to Qdrant's collections and points services.
type Client struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// NewClient dials the Qdrant gRPC endpoint and returns a ready Client.
func NewClient(cfg QdrantConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Client{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

// EnsureCollection creates the named collection if it does not already exist.
func (c *Client) EnsureCollection(ctx context.Context, name string, dimension uint64) error {
	_, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		return nil
	}
	_, err = c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// Payload is the Qdrant point payload for one memory.
type Payload struct {
	UserID     string
	Content    string
	Category   string
	Importance float64
}

// Upsert inserts or updates a single memory point in the given collection.
func (c *Client) Upsert(ctx context.Context, collection, id string, vector []float32, p Payload) error {
	payloadMap := map[string]*pb.Value{
		"user_id":    {Kind: &pb.Value_StringValue{StringValue: p.UserID}},
		"content":    {Kind: &pb.Value_StringValue{StringValue: p.Content}},
		"importance": {Kind: &pb.Value_DoubleValue{DoubleValue: p.Importance}},
	}
	if p.Category != "" {
		payloadMap["category"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: p.Category}}
	}
	_, err := c.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
				Payload: payloadMap,
			},
		},
	})
	return err
}

// Search performs a nearest-neighbor search restricted to one user's points
// and returns the top-K results.
func (c *Client) Search(ctx context.Context, collection, userID string, vector []float32, topK uint64) ([]*SearchResult, error) {
	resp, err := c.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          topK,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter: &pb.Filter{
			Must: []*pb.Condition{
				{
					ConditionOneOf: &pb.Condition_Field{
						Field: &pb.FieldCondition{
							Key: "user_id",
							Match: &pb.Match{
								MatchValue: &pb.Match_Keyword{Keyword: userID},
							},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	results := make([]*SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		sr := &SearchResult{ID: r.Id.GetUuid(), Score: r.Score}
		for k, v := range r.Payload {
			switch k {
			case "content":
				sr.Payload.Content = v.GetStringValue()
			case "category":
				sr.Payload.Category = v.GetStringValue()
			case "user_id":
				sr.Payload.UserID = v.GetStringValue()
			case "importance":
				sr.Payload.Importance = v.GetDoubleValue()
			}
		}
		results = append(results, sr)
	}
	return results, nil
}

// SearchResult holds a single vector search hit.
type SearchResult struct {
	ID      string
	Score   float32
	Payload Payload
}

// Close tears down the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
