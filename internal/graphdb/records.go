package graphdb

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrNotFound is a sentinel error returned by Find operations when no record
// matching the criteria is found in the database.
var ErrNotFound = errors.New("record not found")

var timeType = reflect.TypeOf(time.Time{})

// Single returns the first record of res, or ErrNotFound when res is empty.
func Single(res *neo4j.EagerResult) (*neo4j.Record, error) {
	if res == nil || len(res.Records) == 0 {
		return nil, ErrNotFound
	}
	return res.Records[0], nil
}

// Value extracts the column key of the first record as a T.
// Numeric values are converted to T's kind, so a Cypher integer may be read
// as int, int32 or float64.
func Value[T any](res *neo4j.EagerResult, key string) (T, error) {
	var zero T
	rec, err := Single(res)
	if err != nil {
		return zero, err
	}
	return RecordValue[T](rec, key)
}

// RecordValue extracts column key of rec as a T.
func RecordValue[T any](rec *neo4j.Record, key string) (T, error) {
	var out T
	raw, ok := rec.Get(key)
	if !ok {
		return out, fmt.Errorf("could not find return value '%s' in query result", key)
	}
	if err := assign(reflect.ValueOf(&out).Elem(), Normalize(raw)); err != nil {
		return out, fmt.Errorf("value '%s': %w", key, err)
	}
	return out, nil
}

// Node returns the properties of the node (or map) in column key of the first record.
func Node(res *neo4j.EagerResult, key string) (map[string]interface{}, error) {
	rec, err := Single(res)
	if err != nil {
		return nil, err
	}
	return recordMap(rec, key)
}

// Nodes returns the properties of the node in column key for every record.
// Records whose column is null are skipped.
func Nodes(res *neo4j.EagerResult, key string) ([]map[string]interface{}, error) {
	if res == nil {
		return nil, nil
	}
	out := make([]map[string]interface{}, 0, len(res.Records))
	for _, rec := range res.Records {
		props, err := recordMap(rec, key)
		if err != nil {
			return nil, err
		}
		if props != nil {
			out = append(out, props)
		}
	}
	return out, nil
}

// Records returns every row of res as a normalized map keyed by column name.
func Records(res *neo4j.EagerResult) []map[string]interface{} {
	if res == nil {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(res.Records))
	for _, rec := range res.Records {
		row := make(map[string]interface{}, len(rec.Keys))
		for i, k := range rec.Keys {
			row[k] = Normalize(rec.Values[i])
		}
		out = append(out, row)
	}
	return out
}

// Scan decodes column key of the first record into a new T.
func Scan[T any](res *neo4j.EagerResult, key string) (*T, error) {
	props, err := Node(res, key)
	if err != nil {
		return nil, err
	}
	if props == nil {
		return nil, ErrNotFound
	}
	out := new(T)
	if err := Decode(props, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ScanAll decodes column key of every record into a slice of T.
func ScanAll[T any](res *neo4j.EagerResult, key string) ([]T, error) {
	rows, err := Nodes(res, key)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, props := range rows {
		var item T
		if err := Decode(props, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func recordMap(rec *neo4j.Record, key string) (map[string]interface{}, error) {
	raw, ok := rec.Get(key)
	if !ok {
		return nil, fmt.Errorf("could not find return value '%s' in query result", key)
	}
	if raw == nil {
		return nil, nil
	}
	props, ok := Normalize(raw).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("return value '%s' is not a node or map", key)
	}
	return props, nil
}

// Normalize converts a driver value into plain Go values: nodes and
// relationships become their property maps, graph temporal types become
// time.Time, and lists and maps are converted element by element.
func Normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case neo4j.Node:
		return normalizeMap(val.Props)
	case neo4j.Relationship:
		return normalizeMap(val.Props)
	case map[string]interface{}:
		return normalizeMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case neo4j.Date:
		return val.Time()
	case neo4j.LocalDateTime:
		return val.Time()
	case neo4j.LocalTime:
		return val.Time()
	case neo4j.Time:
		return val.Time()
	default:
		return v
	}
}

func normalizeMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = Normalize(v)
	}
	return out
}

// Decode populates the `crud`-tagged fields of the struct pointed to by dst
// from props. Missing properties leave the field untouched.
func Decode(props map[string]interface{}, dst interface{}) error {
	val := reflect.ValueOf(dst)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer")
	}
	meta, err := metadataFor(val.Type())
	if err != nil {
		return err
	}
	elem := val.Elem()

	for fieldName, propName := range meta.Mappings {
		field := elem.FieldByName(fieldName)
		if !field.IsValid() || !field.CanSet() {
			continue // Skip if the struct field cannot be set.
		}

		propValue, ok := props[propName]
		if !ok {
			continue // Skip if the property does not exist on the node.
		}

		if err := assign(field, Normalize(propValue)); err != nil {
			return fmt.Errorf("field %s (property %s): %w", fieldName, propName, err)
		}
	}
	return nil
}

// assign stores v into field, converting between the driver's value kinds and
// the field's declared type.
func assign(field reflect.Value, v interface{}) error {
	if v == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	if field.Type() == timeType {
		t, err := toTime(v)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(t))
		return nil
	}

	src := reflect.ValueOf(v)
	switch field.Kind() {
	case reflect.Ptr:
		ptr := reflect.New(field.Type().Elem())
		if err := assign(ptr.Elem(), v); err != nil {
			return err
		}
		field.Set(ptr)
		return nil

	case reflect.Interface:
		if src.Type().AssignableTo(field.Type()) {
			field.Set(src)
			return nil
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch n := v.(type) {
		case int64:
			if field.OverflowInt(n) {
				return fmt.Errorf("value %d overflows %s", n, field.Type())
			}
			field.SetInt(n)
			return nil
		case float64:
			if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 || field.OverflowInt(int64(n)) {
				return fmt.Errorf("value %v does not fit %s", n, field.Type())
			}
			field.SetInt(int64(n))
			return nil
		}

	case reflect.Float32, reflect.Float64:
		switch n := v.(type) {
		case int64:
			field.SetFloat(float64(n))
			return nil
		case float64:
			if field.OverflowFloat(n) {
				return fmt.Errorf("value %v overflows %s", n, field.Type())
			}
			field.SetFloat(n)
			return nil
		}

	case reflect.Struct:
		if m, ok := v.(map[string]interface{}); ok {
			return Decode(m, field.Addr().Interface())
		}

	case reflect.Slice:
		if items, ok := v.([]interface{}); ok {
			out := reflect.MakeSlice(field.Type(), len(items), len(items))
			for i, item := range items {
				if err := assign(out.Index(i), item); err != nil {
					return fmt.Errorf("index %d: %w", i, err)
				}
			}
			field.Set(out)
			return nil
		}
	}

	if src.Type().AssignableTo(field.Type()) {
		field.Set(src)
		return nil
	}
	if src.Type().ConvertibleTo(field.Type()) && src.Kind() == field.Kind() {
		field.Set(src.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", v, field.Type())
}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse time %q: %w", t, err)
		}
		return parsed, nil
	case int64:
		return time.UnixMilli(t).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to time.Time", v)
	}
}
