package vectorstore

import (
	"context"
	"fmt"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"dupguard/internal/domain"
)

// GRPCBackend talks to Qdrant over its gRPC API.
type GRPCBackend struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
}

func NewGRPCBackend(host string, port int, apiKey string) (*GRPCBackend, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if apiKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(apiKey)))
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return newGRPCBackend(conn), nil
}

func newGRPCBackend(conn *grpc.ClientConn) *GRPCBackend {
	return &GRPCBackend{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}
}

func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (b *GRPCBackend) Describe(ctx context.Context, collection string) (domain.CollectionInfo, error) {
	resp, err := b.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: collection})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.CollectionInfo{Name: collection}, nil
		}
		return domain.CollectionInfo{}, classifyStatus(err)
	}

	info := domain.CollectionInfo{
		Name:        collection,
		Exists:      true,
		PointsCount: int64(resp.GetResult().GetPointsCount()),
	}
	if params := resp.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
		info.VectorSize = int(params.GetSize())
		info.Distance = fromPBDistance(params.GetDistance())
	}
	return info, nil
}

func (b *GRPCBackend) Create(ctx context.Context, collection string, vectorSize int, distance domain.Distance) error {
	_, err := b.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
			Size:     uint64(vectorSize),
			Distance: toPBDistance(distance),
		}}},
	})
	if err != nil {
		return classifyStatus(err)
	}

	wait := true
	_, err = b.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: collection,
		Wait:           &wait,
		FieldName:      "file_path",
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	return classifyStatus(err)
}

func (b *GRPCBackend) Drop(ctx context.Context, collection string) error {
	_, err := b.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: collection})
	return classifyStatus(err)
}

func (b *GRPCBackend) Upsert(ctx context.Context, collection string, points []domain.Point) error {
	pbPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		pbPoints[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: toPBPayload(p.Payload),
		}
	}

	wait := true
	_, err := b.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         pbPoints,
	})
	return classifyStatus(err)
}

func (b *GRPCBackend) DeleteByPath(ctx context.Context, collection, filePath string) error {
	filter := &pb.Filter{Must: []*pb.Condition{{
		ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
			Key:   "file_path",
			Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: filePath}},
		}},
	}}}
	return b.delete(ctx, collection, &pb.PointsSelector{
		PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter},
	})
}

func (b *GRPCBackend) DeletePoints(ctx context.Context, collection string, ids []string) error {
	pbIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pbIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}
	return b.delete(ctx, collection, &pb.PointsSelector{
		PointsSelectorOneOf: &pb.PointsSelector_Points{Points: &pb.PointsIdsList{Ids: pbIDs}},
	})
}

func (b *GRPCBackend) delete(ctx context.Context, collection string, selector *pb.PointsSelector) error {
	wait := true
	_, err := b.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         selector,
	})
	return classifyStatus(err)
}

func (b *GRPCBackend) Query(ctx context.Context, collection string, vector []float32, topK int, threshold float64) ([]domain.SimilarityResult, error) {
	scoreThreshold := float32(threshold)
	resp, err := b.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(topK),
		ScoreThreshold: &scoreThreshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, classifyStatus(err)
	}

	results := make([]domain.SimilarityResult, len(resp.Result))
	for i, pt := range resp.Result {
		id := pt.GetId().GetUuid()
		if id == "" {
			id = fmt.Sprint(pt.GetId().GetNum())
		}
		results[i] = domain.SimilarityResult{
			ID:      id,
			Score:   float64(pt.Score),
			Payload: fromPBPayload(pt.Payload),
		}
	}
	return results, nil
}

func (b *GRPCBackend) Close() error {
	return b.conn.Close()
}

func classifyStatus(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", domain.ErrCollectionNotFound, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %v", domain.ErrCollectionExists, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %w", domain.ErrTransientStore, err)
	}
	return err
}

func toPBDistance(d domain.Distance) pb.Distance {
	switch d {
	case "Euclid":
		return pb.Distance_Euclid
	case "Dot":
		return pb.Distance_Dot
	}
	return pb.Distance_Cosine
}

func fromPBDistance(d pb.Distance) domain.Distance {
	switch d {
	case pb.Distance_Cosine:
		return domain.Cosine
	case pb.Distance_Euclid:
		return "Euclid"
	case pb.Distance_Dot:
		return "Dot"
	}
	return ""
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(n int) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(n)}}
}

func toPBPayload(p domain.Payload) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"file_path":    stringValue(p.FilePath),
		"unit_kind":    stringValue(string(p.UnitKind)),
		"content_hash": stringValue(p.ContentHash),
		"language":     stringValue(p.Language),
		"indexed_at":   stringValue(p.IndexedAt.UTC().Format(time.RFC3339Nano)),
	}
	if p.WorkspaceRoot != "" {
		payload["workspace_root"] = stringValue(p.WorkspaceRoot)
	}
	if p.Name != "" {
		payload["name"] = stringValue(p.Name)
	}
	if p.StartLine > 0 {
		payload["start_line"] = intValue(p.StartLine)
		payload["end_line"] = intValue(p.EndLine)
	}
	return payload
}

func fromPBPayload(m map[string]*pb.Value) domain.Payload {
	p := domain.Payload{
		FilePath:      m["file_path"].GetStringValue(),
		UnitKind:      domain.UnitKind(m["unit_kind"].GetStringValue()),
		ContentHash:   m["content_hash"].GetStringValue(),
		Language:      m["language"].GetStringValue(),
		WorkspaceRoot: m["workspace_root"].GetStringValue(),
		Name:          m["name"].GetStringValue(),
		StartLine:     int(m["start_line"].GetIntegerValue()),
		EndLine:       int(m["end_line"].GetIntegerValue()),
	}
	if ts, err := time.Parse(time.RFC3339Nano, m["indexed_at"].GetStringValue()); err == nil {
		p.IndexedAt = ts
	}
	return p
}
