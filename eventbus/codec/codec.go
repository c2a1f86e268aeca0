// Package codec implements the polymorphic value representation used
// on the wire: a self-describing document (plain maps/slices/strings/
// numbers, the same subset encoding/json already understands) tagged
// with __type/__list markers so a receiver can reconstruct a concrete
// Go value without both sides sharing a generated schema.
package codec

import (
	"encoding/base64"
	"fmt"
	"reflect"

	"github.com/jeeves-cluster-organization/eventbus/errs"
)

// Document is anything encoding/json can already represent: nil, bool,
// string, float64/int64, []byte (carried as base64), []Document, or
// map[string]Document.
type Document = any

const (
	typeTag  = "__type"
	listTag  = "__list"
	bytesTag = "__b64"
	argsTag  = "args"
)

// Encode converts a Go value into a Document. Primitives pass through
// unchanged; registered struct types get a "__type" tag; slices of a
// registered element type get a sibling "__list" tag so the decoder
// knows what each element is without inspecting every one.
func Encode(v any) (Document, error) {
	if v == nil {
		return nil, nil
	}
	if ae, ok := v.(ArgsError); ok {
		name, registered := NameOf(ae)
		if !registered {
			return map[string]Document{typeTag: "error", argsTag: []Document{ae.Error()}}, nil
		}
		encodedArgs, err := encodeSlice(reflect.ValueOf(ae.Args()))
		if err != nil {
			return nil, err
		}
		return map[string]Document{typeTag: name, argsTag: encodedArgs}, nil
	}

	rv := reflect.ValueOf(v)
	return encodeValue(rv)
}

func encodeValue(rv reflect.Value) (Document, error) {
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Invalid:
		return nil, nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return map[string]Document{typeTag: "bytes", bytesTag: base64.StdEncoding.EncodeToString(rv.Bytes())}, nil
		}
		items, err := encodeSlice(rv)
		if err != nil {
			return nil, err
		}
		if name, ok := elemTypeName(rv.Type().Elem()); ok {
			return map[string]Document{listTag: name, "items": items}, nil
		}
		return items, nil
	case reflect.Map:
		out := make(map[string]Document, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprintf("%v", iter.Key().Interface())
			val, err := encodeValue(iter.Value())
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
		return out, nil
	case reflect.Struct:
		return encodeStruct(rv)
	default:
		return nil, errs.NewUnknownGenericError(rv.Type().String())
	}
}

func elemTypeName(t reflect.Type) (string, bool) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", false
	}
	mu.RLock()
	defer mu.RUnlock()
	name, ok := byType[t]
	return name, ok
}

func encodeSlice(rv reflect.Value) ([]Document, error) {
	out := make([]Document, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v, err := encodeValue(rv.Index(i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func encodeStruct(rv reflect.Value) (Document, error) {
	out := make(map[string]Document)
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := fieldName(f)
		if name == "-" {
			continue
		}
		val, err := encodeValue(rv.Field(i))
		if err != nil {
			return nil, err
		}
		out[name] = val
	}
	mu.RLock()
	name, ok := byType[t]
	mu.RUnlock()
	if ok {
		out[typeTag] = name
	}
	return out, nil
}

func fieldName(f reflect.StructField) string {
	if tag, ok := f.Tag.Lookup("codec"); ok && tag != "" {
		return tag
	}
	return f.Name
}

// Decode reconstructs a Go value of the given reflect.Type from a
// Document. Pass reflect.TypeOf((*T)(nil)).Elem() or use DecodeAs[T]
// for the generic, compile-time-checked form.
func Decode(doc Document, target reflect.Type) (any, error) {
	if target == reflectTypeIface {
		return nil, errs.NewUnsafeTypeDecodeError(fmt.Sprintf("%v", doc))
	}
	if doc == nil {
		if target == nil {
			return nil, nil
		}
		return reflect.Zero(target).Interface(), nil
	}
	if target == nil || target.Kind() == reflect.Interface {
		return decodeDynamic(doc)
	}
	return decodeInto(doc, target)
}

// DecodeAs is the generic, type-safe wrapper around Decode.
func DecodeAs[T any](doc Document) (T, error) {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		t = reflect.TypeOf(&zero).Elem()
	}
	v, err := decodeInto(doc, t)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, errs.NewUnknownGenericError(t.String())
	}
	return out, nil
}

var reflectTypeIface = reflect.TypeOf((*reflect.Type)(nil)).Elem()

func decodeDynamic(doc Document) (any, error) {
	switch d := doc.(type) {
	case map[string]Document:
		if listName, ok := d[listTag]; ok {
			name, _ := listName.(string)
			elemType, ok := TypeOf(name)
			if !ok {
				return nil, errs.NewUnknownGenericError(name)
			}
			items, _ := d["items"].([]Document)
			out := make([]any, 0, len(items))
			for _, item := range items {
				v, err := decodeInto(item, elemType)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
			return out, nil
		}
		if typeName, ok := d[typeTag]; ok {
			name, _ := typeName.(string)
			if name == "bytes" {
				b64, _ := d[bytesTag].(string)
				return base64.StdEncoding.DecodeString(b64)
			}
			t, ok := TypeOf(name)
			if !ok {
				return nil, errs.NewUnknownGenericError(name)
			}
			return decodeInto(d, t)
		}
		out := make(map[string]any, len(d))
		for k, v := range d {
			dv, err := decodeDynamic(v)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil
	case []Document:
		out := make([]any, len(d))
		for i, v := range d {
			dv, err := decodeDynamic(v)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	default:
		return d, nil
	}
}

func decodeInto(doc Document, target reflect.Type) (any, error) {
	if doc == nil {
		return reflect.Zero(target).Interface(), nil
	}

	switch target.Kind() {
	case reflect.Ptr:
		inner, err := decodeInto(doc, target.Elem())
		if err != nil {
			return nil, err
		}
		ptr := reflect.New(target.Elem())
		ptr.Elem().Set(reflect.ValueOf(inner))
		return ptr.Interface(), nil
	case reflect.Bool:
		b, _ := doc.(bool)
		return b, nil
	case reflect.String:
		s, _ := doc.(string)
		return s, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := asInt64(doc)
		return reflect.ValueOf(n).Convert(target).Interface(), err
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := asInt64(doc)
		return reflect.ValueOf(uint64(n)).Convert(target).Interface(), err
	case reflect.Float32, reflect.Float64:
		f, err := asFloat64(doc)
		return reflect.ValueOf(f).Convert(target).Interface(), err
	case reflect.Slice:
		if target.Elem().Kind() == reflect.Uint8 {
			if m, ok := doc.(map[string]Document); ok {
				b64, _ := m[bytesTag].(string)
				return base64.StdEncoding.DecodeString(b64)
			}
		}
		items := asDocSlice(doc)
		out := reflect.MakeSlice(target, 0, len(items))
		for _, item := range items {
			v, err := decodeInto(item, target.Elem())
			if err != nil {
				return nil, err
			}
			out = reflect.Append(out, reflect.ValueOf(v))
		}
		return out.Interface(), nil
	case reflect.Map:
		m, _ := doc.(map[string]Document)
		out := reflect.MakeMapWithSize(target, len(m))
		for k, v := range m {
			if k == typeTag {
				continue
			}
			dv, err := decodeInto(v, target.Elem())
			if err != nil {
				return nil, err
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(target.Key()), reflect.ValueOf(dv))
		}
		return out.Interface(), nil
	case reflect.Struct:
		return decodeStruct(doc, target)
	case reflect.Interface:
		return decodeDynamic(doc)
	default:
		return nil, errs.NewUnknownGenericError(target.String())
	}
}

func decodeStruct(doc Document, target reflect.Type) (any, error) {
	fields := make(map[string]Document)
	switch d := doc.(type) {
	case map[string]Document:
		fields = d
	case []Document:
		// positional assignment, declaration order, mirrors NamedTuple.
		for i := 0; i < target.NumField() && i < len(d); i++ {
			fields[fieldName(target.Field(i))] = d[i]
		}
	}

	out := reflect.New(target)
	if c, ok := out.Interface().(Constructible); ok {
		plain := make(map[string]any, len(fields))
		for k, v := range fields {
			dv, err := decodeDynamic(v)
			if err != nil {
				return nil, err
			}
			plain[k] = dv
		}
		if err := c.FromFields(plain); err != nil {
			return nil, err
		}
		return out.Elem().Interface(), nil
	}

	for i := 0; i < target.NumField(); i++ {
		f := target.Field(i)
		if !f.IsExported() {
			continue
		}
		raw, present := fields[fieldName(f)]
		if !present {
			continue
		}
		v, err := decodeInto(raw, f.Type)
		if err != nil {
			return nil, err
		}
		out.Elem().Field(i).Set(reflect.ValueOf(v))
	}
	return out.Elem().Interface(), nil
}

func asDocSlice(doc Document) []Document {
	switch d := doc.(type) {
	case []Document:
		return d
	case map[string]Document:
		if items, ok := d["items"].([]Document); ok {
			return items
		}
	}
	return nil
}

func asInt64(doc Document) (int64, error) {
	switch n := doc.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, errs.NewUnknownGenericError(fmt.Sprintf("%T", doc))
	}
}

func asFloat64(doc Document) (float64, error) {
	switch n := doc.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, errs.NewUnknownGenericError(fmt.Sprintf("%T", doc))
	}
}
