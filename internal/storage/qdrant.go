/**
 * Qdrant Vector Database Client for the explanation index
 *
 * Every placed annotation's explanation is embedded and stored as one point
 * so participants can search what the tutor has told them. Point ids are
 * derived from (user, question, shape) so re-annotating a target overwrites
 * its previous explanation instead of accumulating stale ones.
 */

package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultExplanationCollection is the collection used when none is configured
const DefaultExplanationCollection = "annotation_explanations"

// QdrantClient handles vector database operations
type QdrantClient struct {
	client           qdrant.PointsClient
	collectionClient qdrant.CollectionsClient
	conn             *grpc.ClientConn
	collectionName   string
	dimensions       uint64
}

// NewQdrantClient creates a new Qdrant client and ensures the collection exists
func NewQdrantClient(address string, collectionName string, dimensions int) (*QdrantClient, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}
	if collectionName == "" {
		collectionName = DefaultExplanationCollection
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", dimensions)
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	qc := &QdrantClient{
		client:           qdrant.NewPointsClient(conn),
		collectionClient: qdrant.NewCollectionsClient(conn),
		conn:             conn,
		collectionName:   collectionName,
		dimensions:       uint64(dimensions),
	}

	if err := qc.ensureCollection(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return qc, nil
}

// ensureCollection creates the collection if it doesn't exist
func (q *QdrantClient) ensureCollection(ctx context.Context) error {
	listResp, err := q.collectionClient.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == q.collectionName {
			return nil
		}
	}

	_, err = q.collectionClient.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     q.dimensions,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// ExplanationPointID returns the stable point id for an annotation shape
func ExplanationPointID(userID int64, question int, shapeID string) string {
	name := fmt.Sprintf("%d/%d/%s", userID, question, shapeID)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func explanationPayload(rec *ExplanationRecord) map[string]*qdrant.Value {
	str := func(s string) *qdrant.Value {
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
	}
	return map[string]*qdrant.Value{
		"userId":      str(strconv.FormatInt(rec.UserID, 10)),
		"question":    {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(rec.Question)}},
		"shapeId":     str(rec.ShapeID),
		"targetId":    str(rec.TargetID),
		"color":       str(rec.Color),
		"explanation": str(rec.Explanation),
	}
}

func recordFromPayload(payload map[string]*qdrant.Value) ExplanationRecord {
	var rec ExplanationRecord
	for k, v := range payload {
		switch val := v.Kind.(type) {
		case *qdrant.Value_StringValue:
			switch k {
			case "userId":
				rec.UserID, _ = strconv.ParseInt(val.StringValue, 10, 64)
			case "shapeId":
				rec.ShapeID = val.StringValue
			case "targetId":
				rec.TargetID = val.StringValue
			case "color":
				rec.Color = val.StringValue
			case "explanation":
				rec.Explanation = val.StringValue
			}
		case *qdrant.Value_IntegerValue:
			if k == "question" {
				rec.Question = int(val.IntegerValue)
			}
		}
	}
	return rec
}

func userFilter(userID int64) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: "userId",
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: strconv.FormatInt(userID, 10)},
					},
				},
			},
		}},
	}
}

// UpsertExplanation stores or replaces the vector for one annotation
func (q *QdrantClient) UpsertExplanation(ctx context.Context, rec *ExplanationRecord, vector []float32) error {
	if rec == nil {
		return fmt.Errorf("explanation record is required")
	}
	if uint64(len(vector)) != q.dimensions {
		return fmt.Errorf("invalid vector dimensions: expected %d, got %d", q.dimensions, len(vector))
	}

	point := &qdrant.PointStruct{
		Id: &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Uuid{
				Uuid: ExplanationPointID(rec.UserID, rec.Question, rec.ShapeID),
			},
		},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{Data: vector},
			},
		},
		Payload: explanationPayload(rec),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert explanation: %w", err)
	}
	return nil
}

// SearchExplanations returns the participant's explanations nearest to vector
func (q *QdrantClient) SearchExplanations(ctx context.Context, userID int64, vector []float32, limit int) ([]ExplanationMatch, error) {
	if uint64(len(vector)) != q.dimensions {
		return nil, fmt.Errorf("invalid query vector dimensions: expected %d, got %d", q.dimensions, len(vector))
	}
	if limit <= 0 {
		limit = 10
	}

	results, err := q.client.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collectionName,
		Vector:         vector,
		Filter:         userFilter(userID),
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search explanations: %w", err)
	}

	matches := make([]ExplanationMatch, 0, len(results.Result))
	for _, result := range results.Result {
		matches = append(matches, ExplanationMatch{
			ExplanationRecord: recordFromPayload(result.Payload),
			Score:             result.Score,
		})
	}
	return matches, nil
}

// DeleteUserExplanations removes every point belonging to a participant
func (q *QdrantClient) DeleteUserExplanations(ctx context.Context, userID int64) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: userFilter(userID)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete explanations for user %d: %w", userID, err)
	}
	return nil
}

// GetCollectionInfo returns collection statistics
func (q *QdrantClient) GetCollectionInfo(ctx context.Context) (map[string]interface{}, error) {
	info, err := q.collectionClient.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: q.collectionName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	return map[string]interface{}{
		"collection_name": q.collectionName,
		"vectors_count":   info.Result.GetVectorsCount(),
		"points_count":    info.Result.GetPointsCount(),
		"status":          info.Result.GetStatus().String(),
	}, nil
}

// Close closes the Qdrant client connection
func (q *QdrantClient) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
