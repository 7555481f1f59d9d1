package batch

import (
	"fmt"
	"reflect"

	"github.com/relloyd/forklift/errs"
)

// KeyKind declares the type expected of keys supplied to BatchKeys.
type KeyKind int

const (
	KindAuto   KeyKind = iota // infer the kind from the first key
	KindInt                   // any integer type, normalized to int64
	KindString                // string or []byte, normalized to string
)

func (k KeyKind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindString:
		return "string"
	default:
		return "auto"
	}
}

// Range is an inclusive range of dynamically typed keys produced by BatchKeys.
// Min and Max hold int64 or string values.
type Range struct {
	Min interface{} `json:"idMin"`
	Max interface{} `json:"idMax"`
}

func (r Range) String() string {
	return fmt.Sprintf("(%v,%v)", r.Min, r.Max)
}

// BatchKeys batches keys fetched from a SQL result set, where the Go type is only known at runtime.
// All keys must be of the declared kind (or share the kind of the first key for KindAuto), otherwise
// errs.ErrInvalidArgument is returned. nil keys are rejected since they cannot bound a range.
func BatchKeys(ids []interface{}, kind KeyKind, batchSize int) ([]Range, error) {
	if batchSize <= 0 {
		return nil, errs.InvalidArgument("batch size must be positive, got %v", batchSize)
	}
	if len(ids) == 0 {
		return []Range{}, nil
	}
	if kind == KindAuto { // if we should infer the kind...
		k, err := kindOf(ids[0])
		if err != nil {
			return nil, err
		}
		kind = k
	}
	switch kind {
	case KindInt:
		ints := make([]int64, len(ids))
		for idx, v := range ids {
			i, err := toInt64(v)
			if err != nil {
				return nil, errs.InvalidArgument("key %v at index %v: %v", v, idx, err)
			}
			ints[idx] = i
		}
		ranges, err := Batch(ints, batchSize)
		if err != nil {
			return nil, err
		}
		return toRanges(ranges), nil
	case KindString:
		strs := make([]string, len(ids))
		for idx, v := range ids {
			s, err := toString(v)
			if err != nil {
				return nil, errs.InvalidArgument("key %v at index %v: %v", v, idx, err)
			}
			strs[idx] = s
		}
		ranges, err := Batch(strs, batchSize)
		if err != nil {
			return nil, err
		}
		return toRanges(ranges), nil
	default:
		return nil, errs.InvalidArgument("unsupported key kind %v", int(kind))
	}
}

// ChunkOrderedKeys splits keys that arrive already ordered by the system that will apply the ranges,
// e.g. the result of an ORDER BY under a database collation, into chunks of at most batchSize keys.
// The keys are not sorted again, so a collation that differs from Go's byte order cannot make the
// ranges overlap or leave gaps. Kinds are checked as in BatchKeys.
func ChunkOrderedKeys(ids []interface{}, kind KeyKind, batchSize int) ([]Range, error) {
	if batchSize <= 0 {
		return nil, errs.InvalidArgument("batch size must be positive, got %v", batchSize)
	}
	if len(ids) == 0 {
		return []Range{}, nil
	}
	if kind == KindAuto {
		k, err := kindOf(ids[0])
		if err != nil {
			return nil, err
		}
		kind = k
	}
	keys := make([]interface{}, len(ids))
	for idx, v := range ids {
		var err error
		switch kind {
		case KindInt:
			keys[idx], err = toInt64(v)
		case KindString:
			keys[idx], err = toString(v)
		default:
			return nil, errs.InvalidArgument("unsupported key kind %v", int(kind))
		}
		if err != nil {
			return nil, errs.InvalidArgument("key %v at index %v: %v", v, idx, err)
		}
	}
	retval := make([]Range, 0, (len(keys)+batchSize-1)/batchSize)
	for start := 0; start < len(keys); start += batchSize {
		end := min(start+batchSize, len(keys)) - 1
		retval = append(retval, Range{Min: keys[start], Max: keys[end]})
	}
	return retval, nil
}

func toRanges[K int64 | string](in []IdRange[K]) []Range {
	retval := make([]Range, len(in))
	for idx, r := range in {
		retval[idx] = Range{Min: r.Min, Max: r.Max}
	}
	return retval
}

func kindOf(v interface{}) (KeyKind, error) {
	if _, err := toInt64(v); err == nil {
		return KindInt, nil
	}
	if _, err := toString(v); err == nil {
		return KindString, nil
	}
	return KindAuto, errs.InvalidArgument("unsupported key type %T", v)
}

func toInt64(v interface{}) (int64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > 1<<63-1 {
			return 0, fmt.Errorf("unsigned key overflows int64")
		}
		return int64(u), nil
	default:
		return 0, fmt.Errorf("expected an integer key, got %T", v)
	}
}

func toString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", fmt.Errorf("expected a string key, got %T", v)
	}
}
