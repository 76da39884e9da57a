package model

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// foldString lowercases using full unicode case folding. A Caser is
// stateful, so build one per call rather than sharing across goroutines.
func foldString(s string) string {
	return cases.Fold().String(s)
}

// LeadID derives the stable business identifier for a lead. Domains
// win over names because they survive renames; both are NFC-normalized
// and case-folded so unicode variants of the same business collapse to
// one id.
func LeadID(name, domain string) string {
	key := domain
	if key == "" {
		key = name
	}
	key = norm.NFC.String(strings.TrimSpace(key))
	key = foldString(key)
	key = strings.TrimPrefix(key, "https://")
	key = strings.TrimPrefix(key, "http://")
	key = strings.TrimPrefix(key, "www.")
	return strings.ReplaceAll(strings.TrimSuffix(key, "/"), " ", "-")
}

// Fingerprint returns the sha256 hex of a capability name plus its
// canonically serialized input. The same logical input always hashes
// identically regardless of map ordering or unicode representation.
func Fingerprint(capability string, input map[string]any) (string, error) {
	canonical, err := canonicalize(input)
	if err != nil {
		return "", eris.Wrapf(err, "fingerprint: canonicalize input for %s", capability)
	}
	buf, err := json.Marshal(canonical)
	if err != nil {
		return "", eris.Wrap(err, "fingerprint: marshal canonical input")
	}
	h := sha256.New()
	h.Write([]byte(capability))
	h.Write([]byte{0})
	h.Write(buf)
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// canonicalize deep-copies a structured value into a form with stable
// serialization: map keys sorted (encoding/json sorts them), strings
// NFC-normalized and space-trimmed, numbers coerced to float64.
// Unsupported types (channels, funcs, arbitrary structs) are rejected
// so free-form blobs cannot sneak into a cache key.
func canonicalize(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return norm.NFC.String(strings.TrimSpace(val)), nil
	case bool:
		return val, nil
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, eris.Wrapf(err, "canonicalize: number %q", val.String())
		}
		return f, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			c, err := canonicalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			c, err := canonicalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = norm.NFC.String(strings.TrimSpace(s))
		}
		return out, nil
	default:
		return nil, eris.Errorf("canonicalize: unsupported type %T", v)
	}
}

// CanonicalKeys returns the sorted keys of a mapping, used by schema
// validation error messages to stay deterministic.
func CanonicalKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fold lowercases a string using full unicode case folding. Shared by
// id derivation and search filters.
func Fold(s string) string {
	return foldString(s)
}
