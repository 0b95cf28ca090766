package cloudsync

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"google.golang.org/api/firestore/v1"
)

// value is the REST encoding of a Firestore field value. Documents are
// assembled in this form and converted to the client library's types
// through JSON.
type value struct {
	StringValue    *string   `json:"stringValue,omitempty"`
	IntegerValue   *string   `json:"integerValue,omitempty"`
	DoubleValue    *float64  `json:"doubleValue,omitempty"`
	BooleanValue   *bool     `json:"booleanValue,omitempty"`
	TimestampValue string    `json:"timestampValue,omitempty"`
	NullValue      string    `json:"nullValue,omitempty"`
	ArrayValue     *arrayVal `json:"arrayValue,omitempty"`
	MapValue       *mapVal   `json:"mapValue,omitempty"`
}

type arrayVal struct {
	Values []value `json:"values,omitempty"`
}

type mapVal struct {
	Fields map[string]value `json:"fields,omitempty"`
}

type wireDoc struct {
	Name   string           `json:"name,omitempty"`
	Fields map[string]value `json:"fields,omitempty"`
}

func str(s string) value { return value{StringValue: &s} }

func boolean(b bool) value { return value{BooleanValue: &b} }

func integer(n int64) value {
	s := strconv.FormatInt(n, 10)
	return value{IntegerValue: &s}
}

func double(f float64) value { return value{DoubleValue: &f} }

func timestamp(t time.Time) value {
	return value{TimestampValue: t.UTC().Format(time.RFC3339Nano)}
}

func array(vs ...value) value {
	return value{ArrayValue: &arrayVal{Values: vs}}
}

func object(fields map[string]value) value {
	return value{MapValue: &mapVal{Fields: fields}}
}

func stringList(ss []string) value {
	vs := make([]value, len(ss))
	for i, s := range ss {
		vs[i] = str(s)
	}
	return array(vs...)
}

func (v value) string() string {
	if v.StringValue == nil {
		return ""
	}
	return *v.StringValue
}

func (v value) time() (time.Time, error) {
	if v.TimestampValue == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.TimestampValue)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (v value) strings() []string {
	if v.ArrayValue == nil {
		return nil
	}
	out := make([]string, 0, len(v.ArrayValue.Values))
	for _, e := range v.ArrayValue.Values {
		out = append(out, e.string())
	}
	return out
}

func (v value) fields() map[string]value {
	if v.MapValue == nil {
		return nil
	}
	return v.MapValue.Fields
}

// toDocument converts fields into the client library's document type.
func toDocument(fields map[string]value) (*firestore.Document, error) {
	data, err := json.Marshal(wireDoc{Fields: fields})
	if err != nil {
		return nil, err
	}
	var doc firestore.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("building document: %w", err)
	}
	return &doc, nil
}

// fromDocument reads a fetched document back into REST form.
func fromDocument(doc *firestore.Document) (wireDoc, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return wireDoc{}, err
	}
	var w wireDoc
	if err := json.Unmarshal(data, &w); err != nil {
		return wireDoc{}, fmt.Errorf("reading document: %w", err)
	}
	return w, nil
}

// fieldPaths lists the top-level keys of fields, used as the update mask
// so a write merges into the document instead of replacing it.
func fieldPaths(fields map[string]value) []string {
	return slices.Sorted(maps.Keys(fields))
}
