// Package dbkey represents the totally-ordered key space that dbcheck
// walks: real document key values plus the two sentinels that bound the
// whole domain.
package dbkey

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Key is a single point in a collection's key domain: either a real key
// value, or one of the MinKey/MaxKey sentinels. A Key is comparable with
// Compare and round-trips through BSON via MarshalBSONValue /
// UnmarshalBSONValue, which is what lets it sit directly in a Batch log
// record's minKey/maxKey fields.
type Key struct {
	val bson.RawValue
}

var (
	_ bson.ValueMarshaler   = Key{}
	_ bson.ValueUnmarshaler = (*Key)(nil)
	_ fmt.Stringer          = Key{}
)

var (
	minKeyRaw = mustMarshalValue(primitive.MinKey{})
	maxKeyRaw = mustMarshalValue(primitive.MaxKey{})
)

func mustMarshalValue(v any) bson.RawValue {
	t, data, err := bson.MarshalValue(v)
	if err != nil {
		panic(err)
	}
	return bson.RawValue{Type: t, Value: data}
}

// Min returns the sentinel below every real key in the domain.
func Min() Key {
	return Key{val: minKeyRaw}
}

// Max returns the sentinel above every real key in the domain.
func Max() Key {
	return Key{val: maxKeyRaw}
}

// FromRawValue wraps an arbitrary BSON value (as found in a document's
// key field) as a Key. This is the only construction path for a real
// (non-sentinel) key, per the C1 contract: explicit user value, or a
// sentinel.
func FromRawValue(v bson.RawValue) Key {
	return Key{val: v}
}

// IsMin reports whether k is the MinKey sentinel.
func (k Key) IsMin() bool {
	return k.val.Type == bsontype.MinKey
}

// IsMax reports whether k is the MaxKey sentinel.
func (k Key) IsMax() bool {
	return k.val.Type == bsontype.MaxKey
}

// RawValue exposes the underlying BSON value, e.g. for embedding a Key in
// a query filter.
func (k Key) RawValue() bson.RawValue {
	return k.val
}

// IsZero implements bsoncodec.Zeroer: the mongo driver's struct codec
// only honors a field's "omitempty" tag for a struct type if it
// implements Zeroer, so a health-log entry that never sets its
// MinKey/MaxKey needs this to skip the field, rather than marshal an
// uninitialized Key as an invalid, unrecognized BSON type. A genuine
// MinKey/MaxKey sentinel is never mistaken for this zero value, since
// both marshal to their own well-defined, non-zero BSON type byte.
func (k Key) IsZero() bool {
	return k.val.Type == bsontype.Type(0)
}

// MarshalBSONValue implements bson.ValueMarshaler. Sentinels marshal to
// their normal BSON minKey/maxKey representation, so they round-trip
// distinguishably from any real key, per the C1 encoding requirement.
func (k Key) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return k.val.Type, k.val.Value, nil
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (k *Key) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	buf := slices.Clone(data)
	k.val = bson.RawValue{Type: t, Value: buf}
	return nil
}

func (k Key) String() string {
	switch {
	case k.IsMin():
		return "MinKey"
	case k.IsMax():
		return "MaxKey"
	default:
		return k.val.String()
	}
}

// bsonTypeSortOrder is the canonical BSON comparison order, ported from
// the teacher's internal/partitions/bson.go type-bracket table, extended
// at both ends with the Min/MaxKey sentinels.
var bsonTypeSortOrder = lo.Flatten([][]bsontype.Type{
	{bsontype.MinKey},
	{bsontype.Null},
	numericTypes,
	stringTypes,
	{
		bsontype.EmbeddedDocument,
		bsontype.Array,
		bsontype.Binary,
		bsontype.ObjectID,
		bsontype.Boolean,
		bsontype.DateTime,
		bsontype.Timestamp,
		bsontype.Regex,
		bsontype.DBPointer,
		bsontype.JavaScript,
		bsontype.CodeWithScope,
	},
	{bsontype.MaxKey},
})

var numericTypes = []bsontype.Type{
	bsontype.Int32,
	bsontype.Int64,
	bsontype.Double,
	bsontype.Decimal128,
}

var stringTypes = []bsontype.Type{
	bsontype.String,
	bsontype.Symbol,
}

func typeRank(t bsontype.Type) int {
	// Every numeric type shares one bracket, as does every string type,
	// so values within a bracket reach compareSameBracket.
	switch {
	case slices.Contains(numericTypes, t):
		t = numericTypes[0]
	case slices.Contains(stringTypes, t):
		t = stringTypes[0]
	}

	idx := slices.Index(bsonTypeSortOrder, t)
	if idx < 0 {
		// Unknown/unsupported type: sort it just below MaxKey, so it never
		// silently claims to precede a real, well-known key.
		return len(bsonTypeSortOrder) - 1
	}
	return idx
}

// Compare returns -1, 0, or 1 as k is less than, equal to, or greater
// than other, using the type-bracketed BSON ordering: MinKey < every real
// key < MaxKey, and within a type bracket, the type's natural ordering.
func Compare(a, b Key) int {
	switch {
	case a.IsMin() && b.IsMin(), a.IsMax() && b.IsMax():
		return 0
	case a.IsMin():
		return -1
	case b.IsMin():
		return 1
	case a.IsMax():
		return 1
	case b.IsMax():
		return -1
	}

	rankA, rankB := typeRank(a.val.Type), typeRank(b.val.Type)
	if rankA != rankB {
		return cmpInt(rankA, rankB)
	}

	// Same type bracket: compare within it.
	return compareSameBracket(a.val, b.val)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareSameBracket(a, b bson.RawValue) int {
	if a.Type == bsontype.MinKey || a.Type == bsontype.MaxKey {
		return 0
	}

	if slices.Contains(numericTypes, a.Type) {
		af, aok := asFloat(a)
		bf, bok := asFloat(b)
		if aok && bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}

	switch a.Type {
	case bsontype.String, bsontype.Symbol:
		as, _ := stringValue(a)
		bs, _ := stringValue(b)
		return cmpString(as, bs)
	case bsontype.ObjectID:
		aoid, _ := a.ObjectIDOK()
		boid, _ := b.ObjectIDOK()
		return bytes.Compare(aoid[:], boid[:])
	case bsontype.Boolean:
		ab, _ := a.BooleanOK()
		bb, _ := b.BooleanOK()
		return cmpBool(ab, bb)
	case bsontype.DateTime:
		ad, _ := a.DateTimeOK()
		bd, _ := b.DateTimeOK()
		return cmpInt64(ad, bd)
	case bsontype.Timestamp:
		at, ai, _ := a.TimestampOK()
		bt, bi, _ := b.TimestampOK()
		if at != bt {
			return cmpInt(int(at), int(bt))
		}
		return cmpInt(int(ai), int(bi))
	default:
		// No numeric/lexical ordering defined for this type; fall back to
		// a byte comparison of the raw encoding. This at least gives a
		// stable, deterministic order (satisfying "totally ordered") even
		// though it's not necessarily the server's own collation for
		// these rarer types.
		return bytes.Compare(a.Value, b.Value)
	}
}

func asFloat(v bson.RawValue) (float64, bool) {
	switch v.Type {
	case bsontype.Int32:
		i, ok := v.Int32OK()
		return float64(i), ok
	case bsontype.Int64:
		i, ok := v.Int64OK()
		return float64(i), ok
	case bsontype.Double:
		f, ok := v.DoubleOK()
		return f, ok
	case bsontype.Decimal128:
		d, ok := v.Decimal128OK()
		if !ok {
			return 0, false
		}
		f, err := decimal128ToFloat(d)
		return f, err == nil
	default:
		return 0, false
	}
}

func decimal128ToFloat(d primitive.Decimal128) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(d.String(), "%g", &f)
	return f, errors.Wrap(err, "parsing decimal128")
}

func stringValue(v bson.RawValue) (string, bool) {
	switch v.Type {
	case bsontype.String:
		return v.StringValueOK()
	case bsontype.Symbol:
		return v.SymbolOK()
	default:
		return "", false
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b.
func Less(a, b Key) bool {
	return Compare(a, b) < 0
}

// GreaterOrEqual reports whether a sorts at or after b.
func GreaterOrEqual(a, b Key) bool {
	return Compare(a, b) >= 0
}
