package notifier

import (
	"bytes"
	"encoding/json"
)

// Normalize canonicalizes a payload to JSON-safe primitives by round-tripping
// it through the JSON encoder: decimals and typed numbers collapse to plain
// float64, structs to maps. A nil payload stays nil.
func Normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SnapshotsEqual reports whether two snapshots are equal after normalization
// to canonical JSON. Used for before/after change detection: a mutation whose
// snapshots compare equal carries no observable change.
func SnapshotsEqual(a, b interface{}) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	ra, err := json.Marshal(na)
	if err != nil {
		return false
	}
	rb, err := json.Marshal(nb)
	if err != nil {
		return false
	}
	return bytes.Equal(ra, rb)
}

func marshalNormalized(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	n, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(n)
}
