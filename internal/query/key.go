package query

import (
	"net/url"
	"strings"
)

// Key identifies one cache entry: a resource path plus filter parameters.
// Keys are values; With returns a new Key.
type Key struct {
	segments []string
	params   url.Values
}

// NewKey builds a key from path segments, e.g. NewKey("reports", "all").
func NewKey(segments ...string) Key {
	return Key{segments: append([]string(nil), segments...)}
}

// With returns a copy of k carrying params. Empty values are dropped so
// that "no filter" and "filter=''" share an entry.
func (k Key) With(params url.Values) Key {
	out := Key{segments: k.segments, params: url.Values{}}
	for name, vs := range k.params {
		out.params[name] = append([]string(nil), vs...)
	}
	for name, vs := range params {
		var kept []string
		for _, v := range vs {
			if v != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			out.params[name] = kept
		} else {
			delete(out.params, name)
		}
	}
	if len(out.params) == 0 {
		out.params = nil
	}
	return out
}

// Path is the slash-joined resource path without parameters.
func (k Key) Path() string {
	return strings.Join(k.segments, "/")
}

// Params returns a copy of the key's parameters.
func (k Key) Params() url.Values {
	out := url.Values{}
	for name, vs := range k.params {
		out[name] = append([]string(nil), vs...)
	}
	return out
}

// String is the canonical form: parameters sorted by name.
func (k Key) String() string {
	if len(k.params) == 0 {
		return k.Path()
	}
	return k.Path() + "?" + k.params.Encode()
}

// Equal reports whether both keys address the same entry.
func (k Key) Equal(o Key) bool {
	return k.String() == o.String()
}

// HasPrefix reports whether p addresses k or an ancestor of k. Segments
// match whole, so "reports/all" is not a prefix of "reports/allocations".
// Every parameter set on p must be present with the same value on k.
func (k Key) HasPrefix(p Key) bool {
	if len(p.segments) > len(k.segments) {
		return false
	}
	for i, s := range p.segments {
		if k.segments[i] != s {
			return false
		}
	}
	for name, vs := range p.params {
		have := k.params[name]
		if len(have) != len(vs) {
			return false
		}
		for i := range vs {
			if have[i] != vs[i] {
				return false
			}
		}
	}
	return true
}

// ParseKey is the inverse of String.
func ParseKey(s string) (Key, error) {
	path, rawQuery, _ := strings.Cut(s, "?")
	var segs []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	k := NewKey(segs...)
	if rawQuery == "" {
		return k, nil
	}
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Key{}, err
	}
	return k.With(params), nil
}
