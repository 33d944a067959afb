package dbkey

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type dbkeySuite struct {
	suite.Suite
}

func TestDbkeySuite(t *testing.T) {
	suite.Run(t, &dbkeySuite{})
}

func rawValueOf(s *dbkeySuite, v any) bson.RawValue {
	t, data, err := bson.MarshalValue(v)
	s.Require().NoError(err)
	return bson.RawValue{Type: t, Value: data}
}

func (s *dbkeySuite) Test_MinLessThanEverything() {
	min := Min()

	for _, v := range []any{int32(1), "abc", primitive.NewObjectID(), true} {
		k := FromRawValue(rawValueOf(s, v))
		s.Assert().Equal(-1, Compare(min, k), "MinKey < %v", v)
		s.Assert().Equal(1, Compare(k, min), "%v > MinKey", v)
	}

	s.Assert().Equal(0, Compare(min, Min()))
}

func (s *dbkeySuite) Test_MaxGreaterThanEverything() {
	max := Max()

	for _, v := range []any{int32(1), "abc", primitive.NewObjectID(), true} {
		k := FromRawValue(rawValueOf(s, v))
		s.Assert().Equal(1, Compare(max, k), "MaxKey > %v", v)
		s.Assert().Equal(-1, Compare(k, max), "%v < MaxKey", v)
	}

	s.Assert().Equal(0, Compare(max, Max()))
}

func (s *dbkeySuite) Test_MinLessThanMax() {
	s.Assert().Equal(-1, Compare(Min(), Max()))
	s.Assert().Equal(1, Compare(Max(), Min()))
}

func (s *dbkeySuite) Test_NumericComparison() {
	one := FromRawValue(rawValueOf(s, int32(1)))
	oneLong := FromRawValue(rawValueOf(s, int64(1)))
	two := FromRawValue(rawValueOf(s, int32(2)))

	s.Assert().Equal(0, Compare(one, oneLong), "int32(1) == int64(1)")
	s.Assert().Equal(-1, Compare(one, two))
	s.Assert().Equal(1, Compare(two, one))
}

func (s *dbkeySuite) Test_StringComparison() {
	a := FromRawValue(rawValueOf(s, "a"))
	b := FromRawValue(rawValueOf(s, "b"))

	s.Assert().Equal(-1, Compare(a, b))
	s.Assert().Equal(0, Compare(a, a))
}

func (s *dbkeySuite) Test_ObjectIDComparison() {
	oid1 := primitive.ObjectID{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	oid2 := primitive.ObjectID{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2}

	k1 := FromRawValue(rawValueOf(s, oid1))
	k2 := FromRawValue(rawValueOf(s, oid2))

	s.Assert().Equal(-1, Compare(k1, k2))
}

func (s *dbkeySuite) Test_CrossTypeUsesTypeBracket() {
	num := FromRawValue(rawValueOf(s, int32(1)))
	str := FromRawValue(rawValueOf(s, "z"))

	// Every numeric type sorts before every string type, regardless of
	// the values involved.
	s.Assert().Equal(-1, Compare(num, str))
}

func (s *dbkeySuite) Test_RoundTripsThroughBSON() {
	for _, k := range []Key{Min(), Max(), FromRawValue(rawValueOf(s, int32(42)))} {
		doc := bson.D{{Key: "k", Value: k}}
		raw, err := bson.Marshal(doc)
		s.Require().NoError(err)

		var out struct {
			K Key `bson:"k"`
		}
		s.Require().NoError(bson.Unmarshal(raw, &out))

		s.Assert().Equal(0, Compare(k, out.K), "round trip must preserve ordering")
		s.Assert().Equal(k.IsMin(), out.K.IsMin())
		s.Assert().Equal(k.IsMax(), out.K.IsMax())
	}
}

// A field of type Key tagged "omitempty" (e.g. healthlog.Entry's MinKey/
// MaxKey) relies on IsZero to skip a never-set, uninitialized Key;
// without it, the driver would try to marshal an invalid BSON type byte
// instead of omitting the field entirely.
func (s *dbkeySuite) Test_IsZero() {
	var zero Key
	s.Assert().True(zero.IsZero())

	s.Assert().False(Min().IsZero())
	s.Assert().False(Max().IsZero())
	s.Assert().False(FromRawValue(rawValueOf(s, int32(0))).IsZero())

	type withOmitempty struct {
		MinKey Key `bson:"minKey,omitempty"`
	}

	raw, err := bson.Marshal(withOmitempty{})
	s.Require().NoError(err)

	var doc bson.D
	s.Require().NoError(bson.Unmarshal(raw, &doc))
	s.Assert().Empty(doc, "a zero-value Key field tagged omitempty must be skipped entirely")
}
