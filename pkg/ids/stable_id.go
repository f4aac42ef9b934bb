// Package ids computes deterministic content identifiers.
//
// Every stable ID in the engine — subquery IDs, combine-group IDs,
// post-op IDs, DAG content hashes, schema fingerprints, artifact content
// hashes — goes through StableID. The payload must never include
// trace_id or wall-clock values: doing so would make the identity
// nondeterministic across runs, which every downstream invariant assumes
// does not happen.
package ids

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// StableID serializes payload as canonical JSON (keys sorted recursively,
// no insignificant whitespace) and returns the hex-encoded SHA-256 of the
// result, optionally prefixed with "<prefix>_".
func StableID(payload any, prefix string) (string, error) {
	canon, err := Canonicalize(payload)
	if err != nil {
		return "", fmt.Errorf("ids: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canon)
	hexSum := hex.EncodeToString(sum[:])
	if prefix == "" {
		return hexSum, nil
	}
	return prefix + "_" + hexSum, nil
}

// MustStableID panics on canonicalization failure. Only safe to use when
// payload is known to be JSON-marshalable (no channels, funcs, cyclic
// pointers) — i.e. the engine's own value types.
func MustStableID(payload any, prefix string) string {
	id, err := StableID(payload, prefix)
	if err != nil {
		panic(err)
	}
	return id
}

// Canonicalize renders payload as JSON with object keys sorted
// recursively at every nesting level. Numbers, strings, and arrays keep
// their encoding/json representation; array element order is
// significant and is never reordered.
func Canonicalize(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return canonicalMarshal(generic)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil
	case []any:
		buf := []byte{'['}
		for i, elem := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			eb, err := canonicalMarshal(elem)
			if err != nil {
				return nil, err
			}
			buf = append(buf, eb...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(val)
	}
}
