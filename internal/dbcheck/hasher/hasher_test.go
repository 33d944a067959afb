package hasher

import (
	"context"
	"testing"

	"github.com/10gen/dbcheck/dbkey"
	"github.com/10gen/dbcheck/internal/dbchecktest"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type HasherSuite struct {
	suite.Suite
	db *mongo.Database
}

func TestHasherSuite(t *testing.T) {
	suite.Run(t, new(HasherSuite))
}

func (s *HasherSuite) SetupTest() {
	client := dbchecktest.RequireLiveServer(s.T())
	s.db = client.Database("dbcheck_hasher_test")
}

func (s *HasherSuite) TearDownTest() {
	s.Require().NoError(s.db.Drop(context.Background()))
}

func (s *HasherSuite) TestHashesWholeCollectionInOneBatch() {
	ctx := context.Background()
	coll := s.db.Collection("widgets")

	for i := 0; i < 10; i++ {
		_, err := coll.InsertOne(ctx, bson.D{{"_id", i}, {"v", i * i}})
		s.Require().NoError(err)
	}

	stats, err := HashBatch(ctx, s.db, Params{
		Namespace: "dbcheck_hasher_test.widgets",
		StartKey:  dbkey.Min(),
		EndKey:    dbkey.Max(),
	})
	s.Require().NoError(err)

	s.Equal(int64(10), stats.NDocs)
	s.Equal(dbkey.Max(), stats.LastKey)
	s.NotZero(stats.Digest)
}

func (s *HasherSuite) TestStopsAtMaxDocs() {
	ctx := context.Background()
	coll := s.db.Collection("widgets")

	for i := 0; i < 10; i++ {
		_, err := coll.InsertOne(ctx, bson.D{{"_id", i}})
		s.Require().NoError(err)
	}

	stats, err := HashBatch(ctx, s.db, Params{
		Namespace: "dbcheck_hasher_test.widgets",
		StartKey:  dbkey.Min(),
		EndKey:    dbkey.Max(),
		MaxDocs:   3,
	})
	s.Require().NoError(err)

	s.Equal(int64(3), stats.NDocs)
	// LastKey should be the last document actually visited (_id 2), not
	// the range's own end key, since the batch stopped short on a cap.
	s.NotEqual(dbkey.Max(), stats.LastKey)
}

// EndKey is an inclusive upper bound: a real, non-sentinel maxKey that
// lands exactly on a document must still cover that document.
func (s *HasherSuite) TestBoundedEndKeyIsInclusive() {
	ctx := context.Background()
	coll := s.db.Collection("widgets")

	for i := 0; i < 10; i++ {
		_, err := coll.InsertOne(ctx, bson.D{{"_id", i}})
		s.Require().NoError(err)
	}

	sixKey := s.rawKey(6)

	stats, err := HashBatch(ctx, s.db, Params{
		Namespace: "dbcheck_hasher_test.widgets",
		StartKey:  dbkey.Min(),
		EndKey:    sixKey,
	})
	s.Require().NoError(err)

	s.Equal(int64(7), stats.NDocs, "_id 0 through 6 inclusive is 7 documents")
	s.Equal(0, dbkey.Compare(stats.LastKey, sixKey))
}

// rawKey builds the dbkey.Key a document's own "_id" would compare equal
// to, for asserting inclusive-EndKey behavior against a real value.
func (s *HasherSuite) rawKey(id int) dbkey.Key {
	t, data, err := bson.MarshalValue(id)
	s.Require().NoError(err)
	return dbkey.FromRawValue(bson.RawValue{Type: t, Value: data})
}

// A batch's own LastKey feeds the next batch's StartKey. That boundary
// document was already counted in the first batch's stats, so the
// second batch must exclude it rather than re-matching it with an
// inclusive lower bound.
func (s *HasherSuite) TestSecondBatchExcludesFirstBatchsLastKey() {
	ctx := context.Background()
	coll := s.db.Collection("widgets")

	for i := 0; i < 10; i++ {
		_, err := coll.InsertOne(ctx, bson.D{{"_id", i}})
		s.Require().NoError(err)
	}

	first, err := HashBatch(ctx, s.db, Params{
		Namespace: "dbcheck_hasher_test.widgets",
		StartKey:  dbkey.Min(),
		EndKey:    dbkey.Max(),
		MaxDocs:   4,
	})
	s.Require().NoError(err)
	s.Equal(int64(4), first.NDocs)

	second, err := HashBatch(ctx, s.db, Params{
		Namespace: "dbcheck_hasher_test.widgets",
		StartKey:  first.LastKey,
		EndKey:    dbkey.Max(),
	})
	s.Require().NoError(err)

	s.Equal(int64(6), second.NDocs, "the boundary document from the first batch must not be recounted")
	s.Equal(int64(10), first.NDocs+second.NDocs)
}

// When a collection's size is an exact multiple of the requested
// MaxDocs, the batch that hits the cap also happens to exhaust the
// range at the same moment. That batch's LastKey must still close out
// to EndKey, the same as any other batch that reaches the end of the
// collection, rather than reporting the last real document's key as if
// more data were still waiting beyond it.
func (s *HasherSuite) TestExactCapBoundaryStillClosesOutToEndKey() {
	ctx := context.Background()
	coll := s.db.Collection("widgets")

	for i := 0; i < 4; i++ {
		_, err := coll.InsertOne(ctx, bson.D{{"_id", i}})
		s.Require().NoError(err)
	}

	stats, err := HashBatch(ctx, s.db, Params{
		Namespace: "dbcheck_hasher_test.widgets",
		StartKey:  dbkey.Min(),
		EndKey:    dbkey.Max(),
		MaxDocs:   4,
	})
	s.Require().NoError(err)

	s.Equal(int64(4), stats.NDocs)
	s.Equal(dbkey.Max(), stats.LastKey,
		"hitting MaxDocs exactly as the collection ends must still report EndKey")
}

func (s *HasherSuite) TestMissingCollectionReturnsEmptyBatch() {
	ctx := context.Background()

	stats, err := HashBatch(ctx, s.db, Params{
		Namespace: "dbcheck_hasher_test.does_not_exist",
		StartKey:  dbkey.Min(),
		EndKey:    dbkey.Max(),
	})
	s.Require().NoError(err)
	s.Zero(stats.NDocs)
}
