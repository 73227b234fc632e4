package semantic

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/carenav/carenav/engine/domain"
	"github.com/carenav/carenav/pkg/fn"
)

// pointIDNamespace scopes point ids derived from document ids that are not
// UUIDs themselves.
var pointIDNamespace = uuid.MustParse("6f1c9a52-2b0e-4f7e-9a53-1d8c2e0b7a41")

const upsertBatch = 128

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantStorage persists index snapshots as a Qdrant collection, one point
// per document. Each Save replaces the collection wholesale.
type QdrantStorage struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
}

// NewQdrantStorage connects to Qdrant at the given gRPC address.
func NewQdrantStorage(addr, collection string) (*QdrantStorage, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &QdrantStorage{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

func newQdrantWithClients(points pointsAPI, cols collectionsAPI, collection string) *QdrantStorage {
	return &QdrantStorage{points: points, collections: cols, collection: collection}
}

// Close closes the underlying gRPC connection.
func (q *QdrantStorage) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

func (q *QdrantStorage) exists(ctx context.Context) (bool, error) {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return true, nil
		}
	}
	return false, nil
}

// Save drops and recreates the collection, then upserts every document.
// Every point carries the snapshot size; if an upsert fails the partial
// collection is dropped so a later Load finds nothing rather than a subset.
func (q *QdrantStorage) Save(ctx context.Context, snap *Snapshot) error {
	if len(snap.Documents) == 0 || len(snap.Documents) != len(snap.Vectors) {
		return fmt.Errorf("semantic: save: inconsistent snapshot (%d docs, %d vectors)", len(snap.Documents), len(snap.Vectors))
	}
	if err := q.Delete(ctx); err != nil {
		return err
	}

	_, err := q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(len(snap.Vectors[0])),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", q.collection, err)
	}

	points := make([]*pb.PointStruct, len(snap.Documents))
	for i, d := range snap.Documents {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(d.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: snap.Vectors[i]},
				},
			},
			Payload: toPayload(documentPayload(i, len(snap.Documents), d, snap.Meta)),
		}
	}

	wait := true
	for _, batch := range fn.Chunk(points, upsertBatch) {
		_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: q.collection,
			Wait:           &wait,
			Points:         batch,
		})
		if err != nil {
			err = fmt.Errorf("semantic: upsert %d points: %w", len(batch), err)
			if derr := q.Delete(context.WithoutCancel(ctx)); derr != nil {
				return errors.Join(err, derr)
			}
			return err
		}
	}
	return nil
}

// Load scrolls every point back and restores insertion order from the
// stored position.
func (q *QdrantStorage) Load(ctx context.Context) (*Snapshot, error) {
	ok, err := q.exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSnapshot
	}

	type row struct {
		pos int64
		doc Document
		vec []float32
	}
	var (
		rows   []row
		meta   Meta
		total  int64
		offset *pb.PointId
		limit  uint32 = 256
	)
	for {
		resp, err := q.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: q.collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
			WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("semantic: scroll %s: %w", q.collection, err)
		}
		for _, p := range resp.GetResult() {
			pl := p.GetPayload()
			if len(rows) == 0 {
				meta = metaFromPayload(pl)
				total = pl["count"].GetIntegerValue()
			}
			rows = append(rows, row{
				pos: pl["position"].GetIntegerValue(),
				doc: documentFromPayload(pl),
				vec: p.GetVectors().GetVector().GetData(),
			})
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			break
		}
	}
	if len(rows) == 0 {
		return nil, ErrNoSnapshot
	}
	if int64(len(rows)) != total {
		return nil, fmt.Errorf("semantic: collection %s holds %d of %d points", q.collection, len(rows), total)
	}

	slices.SortStableFunc(rows, func(a, b row) int {
		switch {
		case a.pos < b.pos:
			return -1
		case a.pos > b.pos:
			return 1
		}
		return 0
	})
	snap := &Snapshot{Version: SnapshotVersion, Meta: meta}
	for _, r := range rows {
		snap.Documents = append(snap.Documents, r.doc)
		snap.Vectors = append(snap.Vectors, r.vec)
	}
	return snap, nil
}

// Delete drops the collection if it exists.
func (q *QdrantStorage) Delete(ctx context.Context) error {
	ok, err := q.exists(ctx)
	if err != nil || !ok {
		return err
	}
	if _, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: q.collection}); err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", q.collection, err)
	}
	return nil
}

func pointID(docID string) string {
	if id, err := uuid.Parse(docID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(pointIDNamespace, []byte(docID)).String()
}

func documentPayload(pos, count int, d Document, m Meta) map[string]any {
	return map[string]any{
		"position":    pos,
		"count":       count,
		"doc_id":      d.ID,
		"content":     d.Text,
		"name":        d.Doctor.Name,
		"specialty":   d.Doctor.Specialty,
		"phone":       d.Doctor.Phone,
		"location":    d.Doctor.Location,
		"experience":  d.Doctor.ExperienceYears,
		"fingerprint": m.Fingerprint,
		"model":       m.Model,
		"built_at":    m.BuiltAt.UTC().Format(time.RFC3339Nano),
	}
}

func documentFromPayload(pl map[string]*pb.Value) Document {
	return Document{
		ID:   pl["doc_id"].GetStringValue(),
		Text: pl["content"].GetStringValue(),
		Doctor: domain.Doctor{
			Name:            pl["name"].GetStringValue(),
			Specialty:       pl["specialty"].GetStringValue(),
			Phone:           pl["phone"].GetStringValue(),
			Location:        pl["location"].GetStringValue(),
			ExperienceYears: int(pl["experience"].GetIntegerValue()),
		},
	}
}

func metaFromPayload(pl map[string]*pb.Value) Meta {
	m := Meta{
		Fingerprint: pl["fingerprint"].GetStringValue(),
		Model:       pl["model"].GetStringValue(),
	}
	if t, err := time.Parse(time.RFC3339Nano, pl["built_at"].GetStringValue()); err == nil {
		m.BuiltAt = t
	}
	return m
}

func toPayload(in map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(in))
	for k, val := range in {
		switch tv := val.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return payload
}
