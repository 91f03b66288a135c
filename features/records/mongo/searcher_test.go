package mongo

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/wayfind-labs/wayfind/runtime/router/records"
)

var (
	testMongoClient    *mongodriver.Client
	testMongoContainer testcontainers.Container
	skipMongoTests     bool
	mongoSetupDone     bool
)

func setupMongoDB() {
	mongoSetupDone = true
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
			Tmpfs:        map[string]string{"/data/db": "rw"},
		}
		testMongoContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()

	if containerErr != nil {
		fmt.Printf("Docker not available, MongoDB tests will be skipped: %v\n", containerErr)
		skipMongoTests = true
		return
	}

	host, err := testMongoContainer.Host(ctx)
	if err != nil {
		fmt.Printf("Failed to get container host: %v\n", err)
		skipMongoTests = true
		return
	}

	port, err := testMongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		fmt.Printf("Failed to get container port: %v\n", err)
		skipMongoTests = true
		return
	}

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	testMongoClient, err = mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		fmt.Printf("Failed to connect to MongoDB: %v\n", err)
		skipMongoTests = true
		return
	}

	if err := testMongoClient.Ping(ctx, nil); err != nil {
		fmt.Printf("Failed to ping MongoDB: %v\n", err)
		skipMongoTests = true
		return
	}
}

func getSearcher(t *testing.T, tables ...string) *Searcher {
	t.Helper()
	if !mongoSetupDone {
		setupMongoDB()
	}
	if skipMongoTests {
		t.Skip("Docker not available, skipping MongoDB test")
	}

	ctx := context.Background()
	db := testMongoClient.Database("records_test")
	for _, table := range tables {
		require.NoError(t, db.Collection(table).Drop(ctx))
	}

	s, err := New(Options{Client: testMongoClient, Database: "records_test", Tables: tables})
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, table string, docs ...bson.M) {
	t.Helper()
	coll := testMongoClient.Database("records_test").Collection(table)
	for _, doc := range docs {
		_, err := coll.InsertOne(context.Background(), doc)
		require.NoError(t, err)
	}
}

func TestSearchExactOutranksPartial(t *testing.T) {
	s := getSearcher(t, "users")
	seed(t, "users",
		bson.M{"id": "U-2", "name": "James Smithson", "email": "jsn@example.com"},
		bson.M{"id": "U-1", "name": "James Smith", "email": "js@example.com"},
	)

	rows, err := s.Search(context.Background(), "James Smith", []string{"users"}, []string{"name"}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "U-1", rows[0].ID())
	require.Equal(t, "U-2", rows[1].ID())
}

func TestSearchCaseInsensitive(t *testing.T) {
	s := getSearcher(t, "landlords")
	seed(t, "landlords", bson.M{"id": "L-9", "name": "Michael Brown"})

	rows, err := s.Search(context.Background(), "michael", []string{"landlords"}, []string{"name"}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "L-9", rows[0].ID())
}

func TestSearchUnknownTable(t *testing.T) {
	s := getSearcher(t, "users")

	_, err := s.Search(context.Background(), "anything", []string{"ghosts"}, []string{"name"}, 10)
	require.ErrorIs(t, err, records.ErrUnknownTable)
}

func TestSearchLimit(t *testing.T) {
	s := getSearcher(t, "tenants")
	for i := range 8 {
		seed(t, "tenants", bson.M{"id": fmt.Sprintf("T-%d", i), "name": fmt.Sprintf("Tenant %d", i)})
	}

	rows, err := s.Search(context.Background(), "Tenant", []string{"tenants"}, []string{"name"}, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestSearchExposesObjectIDAsID(t *testing.T) {
	s := getSearcher(t, "owners")
	seed(t, "owners", bson.M{"name": "Sarah Connor"})

	rows, err := s.Search(context.Background(), "Sarah", []string{"owners"}, []string{"name"}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotEmpty(t, rows[0].ID())
}

func TestSearchRegexMetacharactersAreLiteral(t *testing.T) {
	s := getSearcher(t, "users")
	seed(t, "users", bson.M{"id": "U-1", "name": "James Smith"})

	rows, err := s.Search(context.Background(), ".*", []string{"users"}, []string{"name"}, 10)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestPing(t *testing.T) {
	s := getSearcher(t, "users")
	require.Equal(t, "records-mongo", s.Name())
	require.NoError(t, s.Ping(context.Background()))
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	_, err = New(Options{Client: &mongodriver.Client{}, Database: ""})
	require.Error(t, err)
	_, err = New(Options{Client: &mongodriver.Client{}, Database: "db"})
	require.Error(t, err)
}
