// Package qdrant provides a driven.VectorIndex backed by a Qdrant server.
//
// Chunk vectors live in the configured collection with cosine distance.
// The version indexed for each document is tracked in a companion
// "<collection>_documents" collection holding one single-dimension marker
// point per document, so a document reindexed with no chunks still reports
// its version.
//
// Writes for a document are serialised in-process. Qdrant offers no
// multi-request transactions, so a Reindex interrupted between its delete
// and its upsert leaves the document partially indexed until the next
// rebuild.
package qdrant

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"

	"github.com/custodia-labs/testctx/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
	"github.com/custodia-labs/testctx/internal/logger"
)

// Payload keys.
const (
	keyChunkID  = "chunk_id"
	keyDocKey   = "doc_key"
	keyModule   = "module"
	keyPath     = "path"
	keyVersion  = "version"
	keySequence = "sequence"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// pointNamespace scopes the deterministic point UUIDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("testctx/qdrant"))

// Index is a Qdrant-backed vector index.
type Index struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	docs        string
	dims        int
	mu          sync.Mutex
}

// New connects to Qdrant at addr and ensures both collections exist.
func New(ctx context.Context, addr, collection string, dims int) (*Index, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: qdrant index needs a positive dimension", domain.ErrInvalidInput)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	idx := newIndex(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, dims)
	idx.conn = conn
	if err := idx.ensureCollections(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return idx, nil
}

func newIndex(points pb.PointsClient, collections pb.CollectionsClient, collection string, dims int) *Index {
	return &Index{
		points:      points,
		collections: collections,
		collection:  collection,
		docs:        collection + "_documents",
		dims:        dims,
	}
}

func (i *Index) ensureCollections(ctx context.Context) error {
	if err := i.ensureCollection(ctx, i.collection, uint64(i.dims)); err != nil {
		return err
	}
	return i.ensureCollection(ctx, i.docs, 1)
}

func (i *Index) ensureCollection(ctx context.Context, name string, size uint64) error {
	if _, err := i.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name}); err == nil {
		return nil
	}

	logger.Debug("creating qdrant collection %s (size %d)", name, size)
	_, err := i.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
			Size:     size,
			Distance: pb.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

// Upsert inserts or replaces the vector for a single chunk.
func (i *Index) Upsert(ctx context.Context, entry driven.VectorEntry) error {
	if err := i.checkDims(entry.Vector); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	indexed, err := i.indexedVersion(ctx, entry.DocumentID)
	if err != nil {
		return err
	}
	if indexed != 0 && indexed != entry.Version {
		return fmt.Errorf("%w: %s indexed at version %d, chunk is version %d",
			domain.ErrStaleIndexConflict, entry.DocumentID, indexed, entry.Version)
	}
	if indexed == 0 {
		if err := i.setIndexedVersion(ctx, entry.DocumentID, entry.Version); err != nil {
			return err
		}
	}
	return i.upsertPoints(ctx, []driven.VectorEntry{entry})
}

// Reindex replaces every entry of a document.
func (i *Index) Reindex(ctx context.Context, id domain.DocumentID, version int, entries []driven.VectorEntry) error {
	for _, e := range entries {
		if err := i.checkDims(e.Vector); err != nil {
			return err
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	indexed, err := i.indexedVersion(ctx, id)
	if err != nil {
		return err
	}
	if indexed > version {
		return fmt.Errorf("%w: %s indexed at version %d, reindexing version %d",
			domain.ErrStaleIndexConflict, id, indexed, version)
	}

	if err := i.deletePoints(ctx, i.collection, documentFilter(id)); err != nil {
		return err
	}
	stamped := make([]driven.VectorEntry, len(entries))
	for n, e := range entries {
		e.DocumentID = id
		e.Version = version
		stamped[n] = e
	}
	if err := i.upsertPoints(ctx, stamped); err != nil {
		return err
	}
	return i.setIndexedVersion(ctx, id, version)
}

// Search returns up to k hits by descending cosine similarity.
func (i *Index) Search(
	ctx context.Context, query []float32, k int, filter driven.VectorFilter,
) ([]driven.VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != i.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(query), i.dims)
	}

	req := &pb.SearchPoints{
		CollectionName: i.collection,
		Vector:         query,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if filter.Document != nil {
		req.Filter = documentFilter(*filter.Document)
	}

	resp, err := i.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching qdrant: %w", err)
	}

	hits := make([]driven.VectorHit, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		payload := point.GetPayload()
		hits = append(hits, driven.VectorHit{
			ChunkID:    payload[keyChunkID].GetStringValue(),
			DocumentID: payloadDocument(payload),
			Version:    int(payload[keyVersion].GetIntegerValue()),
			Sequence:   int(payload[keySequence].GetIntegerValue()),
			Similarity: float64(point.GetScore()),
		})
	}
	// Qdrant orders by score only; apply the sequence and ID tie-breaks.
	memory.SortHits(hits)
	return hits, nil
}

// IndexedVersion returns the indexed version of a document, or 0.
func (i *Index) IndexedVersion(ctx context.Context, id domain.DocumentID) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.indexedVersion(ctx, id)
}

// DeleteDocument removes all entries of a document.
func (i *Index) DeleteDocument(ctx context.Context, id domain.DocumentID) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.deletePoints(ctx, i.collection, documentFilter(id)); err != nil {
		return err
	}
	return i.deletePoints(ctx, i.docs, documentFilter(id))
}

// Count returns the number of indexed vectors.
func (i *Index) Count(ctx context.Context) (int, error) {
	resp, err := i.points.Count(ctx, &pb.CountPoints{
		CollectionName: i.collection,
		Exact:          proto.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting qdrant points: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// Clear drops and recreates both collections.
func (i *Index) Clear(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, name := range []string{i.collection, i.docs} {
		if _, err := i.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
			return fmt.Errorf("deleting collection %s: %w", name, err)
		}
	}
	return i.ensureCollections(ctx)
}

// Close releases the gRPC connection.
func (i *Index) Close() error {
	if i.conn == nil {
		return nil
	}
	return i.conn.Close()
}

func (i *Index) checkDims(vec []float32) error {
	if len(vec) != i.dims {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vec), i.dims)
	}
	return nil
}

func (i *Index) indexedVersion(ctx context.Context, id domain.DocumentID) (int, error) {
	resp, err := i.points.Get(ctx, &pb.GetPoints{
		CollectionName: i.docs,
		Ids:            []*pb.PointId{pointID(id.Key())},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return 0, fmt.Errorf("getting indexed version: %w", err)
	}
	if result := resp.GetResult(); len(result) > 0 {
		return int(result[0].GetPayload()[keyVersion].GetIntegerValue()), nil
	}
	return 0, nil
}

func (i *Index) setIndexedVersion(ctx context.Context, id domain.DocumentID, version int) error {
	_, err := i.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: i.docs,
		Wait:           proto.Bool(true),
		Points: []*pb.PointStruct{{
			Id:      pointID(id.Key()),
			Vectors: vectors([]float32{1}),
			Payload: map[string]*pb.Value{
				keyDocKey:  stringValue(id.Key()),
				keyModule:  stringValue(id.Module),
				keyPath:    stringValue(id.Path),
				keyVersion: intValue(version),
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("saving indexed version: %w", err)
	}
	return nil
}

func (i *Index) upsertPoints(ctx context.Context, entries []driven.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, 0, len(entries))
	for _, e := range entries {
		points = append(points, &pb.PointStruct{
			Id:      pointID(e.ChunkID),
			Vectors: vectors(e.Vector),
			Payload: map[string]*pb.Value{
				keyChunkID:  stringValue(e.ChunkID),
				keyDocKey:   stringValue(e.DocumentID.Key()),
				keyModule:   stringValue(e.DocumentID.Module),
				keyPath:     stringValue(e.DocumentID.Path),
				keyVersion:  intValue(e.Version),
				keySequence: intValue(e.Sequence),
			},
		})
	}

	_, err := i.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: i.collection,
		Points:         points,
		Wait:           proto.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}
	return nil
}

func (i *Index) deletePoints(ctx context.Context, collection string, filter *pb.Filter) error {
	_, err := i.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           proto.Bool(true),
		Points:         &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter}},
	})
	if err != nil {
		return fmt.Errorf("deleting points from %s: %w", collection, err)
	}
	return nil
}

// pointID maps a chunk ID or document key to a stable Qdrant UUID.
func pointID(name string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{
		Uuid: uuid.NewSHA1(pointNamespace, []byte(name)).String(),
	}}
}

func documentFilter(id domain.DocumentID) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{{
		ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
			Key:   keyDocKey,
			Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: id.Key()}},
		}},
	}}}
}

func payloadDocument(payload map[string]*pb.Value) domain.DocumentID {
	return domain.DocumentID{
		Module: payload[keyModule].GetStringValue(),
		Path:   payload[keyPath].GetStringValue(),
	}
}

func vectors(vec []float32) *pb.Vectors {
	return &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vec}}}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(n int) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(n)}}
}
