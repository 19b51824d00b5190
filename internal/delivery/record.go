package delivery

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Record is one delivery job attempt as exchanged between the queue engine
// and a worker. Beyond the well-known keys below it carries an open set of
// fields the engine owns; this layer transports them without interpreting.
type Record map[string]any

// Well-known field names.
const (
	FieldID     = "id"
	FieldSeq    = "seq"
	FieldZone   = "zone"
	FieldClient = "client"
	FieldDomain = "domain"
)

func (r Record) ID() string     { return r.str(FieldID) }
func (r Record) Zone() string   { return r.str(FieldZone) }
func (r Record) Client() string { return r.str(FieldClient) }
func (r Record) Domain() string { return r.str(FieldDomain) }

// Seq returns the attempt sequence rendered as it appears on the wire.
// JSON numbers arrive as float64; integral values must print without an
// exponent or fraction so that acks stay stable across the round trip.
func (r Record) Seq() string {
	return renderScalar(r[FieldSeq])
}

// Ack is the acknowledgment token confirming exactly which attempt was
// finalized: id and seq joined by a dot.
func (r Record) Ack() string {
	return r.ID() + "." + r.Seq()
}

// Clone returns a shallow copy so handlers can encode fields without
// mutating the record the engine handed out.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (r Record) str(key string) string {
	if v, ok := r[key]; ok {
		return renderScalar(v)
	}
	return ""
}

func renderScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}
