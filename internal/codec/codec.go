// Package codec makes delivery records safe to carry over the JSON API.
//
// Some delivery fields hold raw bytes (recipient envelope data, header
// blobs). By convention those fields are named with a leading underscore;
// their values get base64-encoded on the way out and decoded on the way
// back in, so the JSON layer only ever sees clean text. The convention is
// wire-visible and must not change; callers on the other side depend on it.
package codec

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/austindbirch/harbor_mail/internal/delivery"
)

// Marker prefixes field names whose string values are raw bytes at the
// protocol boundary.
const Marker = "_"

// EncodeFields returns a copy of rec with every marked string field
// base64-encoded. Marked fields that are empty or nil are dropped
// entirely: the engine treats absent and empty identically, so the wire
// format stays sparse. All other fields pass through untouched.
func EncodeFields(rec delivery.Record) delivery.Record {
	if rec == nil {
		return nil
	}
	out := rec.Clone()
	for name, value := range out {
		if !strings.HasPrefix(name, Marker) {
			continue
		}
		switch v := value.(type) {
		case nil:
			delete(out, name)
		case string:
			if v == "" {
				delete(out, name)
				continue
			}
			out[name] = base64.StdEncoding.EncodeToString([]byte(v))
		}
	}
	return out
}

// DecodeFields reverses EncodeFields on a record posted back by a worker.
// Only marked string fields are touched. A marked field that does not
// decode is a protocol error: passing mangled bytes to the engine would
// corrupt the job, so the request fails instead.
func DecodeFields(rec delivery.Record) (delivery.Record, error) {
	if rec == nil {
		return nil, nil
	}
	out := rec.Clone()
	for name, value := range out {
		if !strings.HasPrefix(name, Marker) {
			continue
		}
		switch v := value.(type) {
		case nil:
			delete(out, name)
		case string:
			if v == "" {
				delete(out, name)
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("decode field %s: %w", name, err)
			}
			out[name] = string(raw)
		}
	}
	return out, nil
}
