package vector

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/ghurfati/ghurfati/store"
)

// Payload keys stored next to each point. The product row stays in the
// relational store; the payload carries only what filtering and hydration
// need.
const (
	payloadKeyID       = "id"
	payloadKeyCategory = "category"
	payloadKeyInStock  = "in_stock"
)

// QdrantConfig configures the external vector backend.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	Dimensions int
	Timeout    time.Duration
}

// QdrantIndex serves similarity queries from a qdrant collection. Upserts
// write the product row to the store first, then mirror the embedding into
// qdrant; queries search qdrant and hydrate full rows from the store.
type QdrantIndex struct {
	client     *qdrant.Client
	catalog    Catalog
	collection string
	dimensions int
	timeout    time.Duration
}

// NewQdrantIndex dials qdrant and bootstraps the collection with its
// payload field indexes when it does not exist yet.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig, catalog Catalog) (*QdrantIndex, error) {
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection name is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.Errorf("invalid qdrant dimensions %d", cfg.Dimensions)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
		GrpcOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultServiceConfig(`{"loadBalancingPolicy":"round_robin"}`),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create qdrant client")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	idx := &QdrantIndex{
		client:     client,
		catalog:    catalog,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		timeout:    timeout,
	}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *QdrantIndex) ensureCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, idx.timeout)
	defer cancel()

	collectionsClient := qdrant.NewCollectionsClient(idx.client.GetConnection())
	_, err := collectionsClient.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: idx.collection,
	})
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return errors.Wrapf(err, "get collection %s", idx.collection)
	}

	_, err = collectionsClient.Create(ctx, &qdrant.CreateCollection{
		CollectionName: idx.collection,
		VectorsConfig: &qdrant.VectorsConfig{Config: &qdrant.VectorsConfig_Params{
			Params: &qdrant.VectorParams{
				Size:     uint64(idx.dimensions),
				Distance: qdrant.Distance_Cosine,
			},
		}},
	})
	if err != nil {
		return errors.Wrapf(err, "create collection %s", idx.collection)
	}

	pointsClient := qdrant.NewPointsClient(idx.client.GetConnection())
	keywordType := qdrant.FieldType_FieldTypeKeyword
	boolType := qdrant.FieldType_FieldTypeBool
	fieldIndexes := []*qdrant.CreateFieldIndexCollection{
		{CollectionName: idx.collection, FieldName: payloadKeyCategory, FieldType: &keywordType},
		{CollectionName: idx.collection, FieldName: payloadKeyInStock, FieldType: &boolType},
	}
	for _, fieldIndex := range fieldIndexes {
		if _, err := pointsClient.CreateFieldIndex(ctx, fieldIndex); err != nil {
			return errors.Wrapf(err, "create field index %s", fieldIndex.FieldName)
		}
	}
	return nil
}

func (idx *QdrantIndex) Query(ctx context.Context, query *Query) ([]*store.ProductWithScore, error) {
	if err := query.Validate(idx.dimensions); err != nil {
		return nil, err
	}

	var filter *qdrant.Filter
	if query.InStockOnly {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   payloadKeyInStock,
						Match: &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: true}},
					},
				},
			}},
		}
	}

	queryCtx, cancel := context.WithTimeout(ctx, idx.timeout)
	defer cancel()

	limit := uint64(query.Limit)
	points, err := idx.client.Query(queryCtx, &qdrant.QueryPoints{
		CollectionName: idx.collection,
		Query: &qdrant.Query{
			Variant: &qdrant.Query_Nearest{
				Nearest: &qdrant.VectorInput{
					Variant: &qdrant.VectorInput_Dense{
						Dense: &qdrant.DenseVector{Data: query.Embedding},
					},
				},
			},
		},
		Filter:      filter,
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayloadInclude(payloadKeyID),
	})
	if err != nil {
		return nil, errors.Wrap(err, "qdrant query")
	}
	if len(points) == 0 {
		return []*store.ProductWithScore{}, nil
	}

	ids := make([]string, 0, len(points))
	scores := make(map[string]float64, len(points))
	for _, point := range points {
		id := point.GetPayload()[payloadKeyID].GetStringValue()
		if id == "" {
			continue
		}
		if _, seen := scores[id]; !seen {
			ids = append(ids, id)
		}
		scores[id] = float64(point.GetScore())
	}

	// Hydrate full rows; points whose product row is gone are dropped.
	products, err := idx.catalog.ListProducts(ctx, &store.FindProduct{IDs: ids})
	if err != nil {
		return nil, errors.Wrap(err, "hydrate products")
	}

	results := make([]*store.ProductWithScore, 0, len(products))
	for _, product := range products {
		results = append(results, &store.ProductWithScore{
			Product: product,
			Score:   scores[product.ID],
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Product.ID < results[j].Product.ID
	})
	return results, nil
}

func (idx *QdrantIndex) Upsert(ctx context.Context, product *store.Product) error {
	if err := store.ValidateDimensions(idx.dimensions, product.Embedding); err != nil {
		return err
	}

	persisted, err := idx.catalog.UpsertProduct(ctx, product)
	if err != nil {
		return err
	}

	upsertCtx, cancel := context.WithTimeout(ctx, idx.timeout)
	defer cancel()

	waitUpsert := true
	pointsClient := qdrant.NewPointsClient(idx.client.GetConnection())
	_, err = pointsClient.Upsert(upsertCtx, &qdrant.UpsertPoints{
		CollectionName: idx.collection,
		Wait:           &waitUpsert,
		Points: []*qdrant.PointStruct{{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: pointID(persisted.ID)},
			},
			Payload: map[string]*qdrant.Value{
				payloadKeyID:       {Kind: &qdrant.Value_StringValue{StringValue: persisted.ID}},
				payloadKeyCategory: {Kind: &qdrant.Value_StringValue{StringValue: persisted.Category}},
				payloadKeyInStock:  {Kind: &qdrant.Value_BoolValue{BoolValue: persisted.InStock}},
			},
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{Data: persisted.Embedding},
			}},
		}},
	})
	return errors.Wrapf(err, "qdrant upsert %s", persisted.ID)
}

func (idx *QdrantIndex) Dimensions() int {
	return idx.dimensions
}

func (idx *QdrantIndex) Close() error {
	return idx.client.Close()
}

// pointID derives the stable point UUID for a product. Article numbers are
// arbitrary strings; qdrant point ids must be numeric or UUID.
func pointID(productID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(productID)).String()
}
