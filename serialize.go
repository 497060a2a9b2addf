/*
Package dynoro – value serialization.

Normalizes user-supplied values before they are embedded in expressions or
written as items. Serialization is idempotent: applying it twice yields the
same result as applying it once.
*/
package dynoro

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a plain attribute map, the unit of storage.
type Item map[string]any

// StringSet marshals to a DynamoDB string set (SS) instead of a list.
type StringSet []string

func (s StringSet) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberSS{Value: s}, nil
}

// NumberSet marshals to a DynamoDB number set (NS).
type NumberSet []float64

func (s NumberSet) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	out := make([]string, len(s))
	for i, n := range s {
		out[i] = strconv.FormatFloat(n, 'f', -1, 64)
	}
	return &types.AttributeValueMemberNS{Value: out}, nil
}

// BinarySet marshals to a DynamoDB binary set (BS).
type BinarySet [][]byte

func (s BinarySet) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberBS{Value: s}, nil
}

// Serialize normalizes a value for embedding in an expression or item.
// Maps drop entries whose value serializes to nil at every nesting depth,
// typed nil pointers included, so a missing field is never written as a
// store NULL. Times lower to RFC 3339. Unknown shapes lower through a
// generic JSON round-trip.
func Serialize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Item:
		return serializeMap(val)
	case map[string]any:
		return serializeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = Serialize(e)
		}
		return out
	case StringSet, NumberSet, BinarySet:
		return val
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		[]byte:
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return portable(val)
	}
}

func serializeMap(m map[string]any) Item {
	out := make(Item, len(m))
	for k, v := range m {
		// the nil check runs after serialization so typed nil pointers,
		// which lower to nil, are dropped in the same pass
		s := Serialize(v)
		if s == nil {
			continue
		}
		out[k] = s
	}
	return out
}

// portable lowers an arbitrary value through a JSON round-trip so that only
// maps, slices, strings, numbers, booleans and nil remain.
func portable(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return Serialize(out)
}

// coerceSet coerces ADD / DELETE operands to their set representations the
// way the store expects: a lone string becomes a one-element string set, a
// string slice a string set, a byte slice a one-element binary set. Numeric
// operands stay scalar so ADD still means arithmetic increment.
func coerceSet(v any) any {
	switch val := v.(type) {
	case string:
		return StringSet{val}
	case []string:
		return StringSet(val)
	case []byte:
		return BinarySet{val}
	case [][]byte:
		return BinarySet(val)
	case []float64:
		return NumberSet(val)
	case []int:
		out := make(NumberSet, len(val))
		for i, n := range val {
			out[i] = float64(n)
		}
		return out
	default:
		return v
	}
}

// marshalItem converts an Item to the wire attribute-value map.
func marshalItem(item Item) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(map[string]any(item))
	if err != nil {
		return nil, NewError("item marshal failed", WithCode(ErrRuntime), WithCause(err))
	}
	return av, nil
}

// marshalValues converts an expression value map to the wire representation.
// A nil input stays nil so the value map can be omitted entirely.
func marshalValues(values map[string]any) (map[string]types.AttributeValue, error) {
	if values == nil {
		return nil, nil
	}
	av, err := attributevalue.MarshalMap(values)
	if err != nil {
		return nil, NewError("expression value marshal failed", WithCode(ErrRuntime), WithCause(err))
	}
	return av, nil
}

// unmarshalItem converts a wire attribute-value map back to an Item.
func unmarshalItem(av map[string]types.AttributeValue) (Item, error) {
	var item map[string]any
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, NewError("item unmarshal failed", WithCode(ErrRuntime), WithCause(err))
	}
	return Item(item), nil
}

func unmarshalItems(list []map[string]types.AttributeValue) ([]Item, error) {
	items := make([]Item, 0, len(list))
	for _, av := range list {
		item, err := unmarshalItem(av)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
