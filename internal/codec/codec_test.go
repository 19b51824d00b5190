package codec

import (
	"encoding/base64"
	"reflect"
	"testing"

	"github.com/austindbirch/harbor_mail/internal/delivery"
)

func TestEncodeFields(t *testing.T) {
	tests := []struct {
		name string
		in   delivery.Record
		want delivery.Record
	}{
		{
			name: "marked string field is base64 encoded",
			in:   delivery.Record{"id": "m1", "seq": float64(1), "_to": "a@b.com"},
			want: delivery.Record{"id": "m1", "seq": float64(1), "_to": base64.StdEncoding.EncodeToString([]byte("a@b.com"))},
		},
		{
			name: "unmarked fields pass through",
			in:   delivery.Record{"id": "m1", "zone": "default", "interface": "api"},
			want: delivery.Record{"id": "m1", "zone": "default", "interface": "api"},
		},
		{
			name: "marked non-string values pass through",
			in:   delivery.Record{"_attempts": float64(3), "_flags": []any{"a"}},
			want: delivery.Record{"_attempts": float64(3), "_flags": []any{"a"}},
		},
		{
			name: "empty marked fields are dropped",
			in:   delivery.Record{"id": "m1", "_to": "", "_headers": nil},
			want: delivery.Record{"id": "m1"},
		},
		{
			name: "binary bytes survive as base64",
			in:   delivery.Record{"_raw": string([]byte{0x00, 0xff, 0x7f})},
			want: delivery.Record{"_raw": base64.StdEncoding.EncodeToString([]byte{0x00, 0xff, 0x7f})},
		},
		{
			name: "nil record",
			in:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeFields(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("EncodeFields() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestEncodeFieldsDoesNotMutateInput(t *testing.T) {
	in := delivery.Record{"_to": "a@b.com"}
	_ = EncodeFields(in)
	if in["_to"] != "a@b.com" {
		t.Errorf("EncodeFields mutated its input: %#v", in)
	}
}

func TestDecodeFields(t *testing.T) {
	tests := []struct {
		name    string
		in      delivery.Record
		want    delivery.Record
		wantErr bool
	}{
		{
			name: "marked string field is decoded",
			in:   delivery.Record{"id": "m1", "_to": "YUBiLmNvbQ=="},
			want: delivery.Record{"id": "m1", "_to": "a@b.com"},
		},
		{
			name: "unmarked fields pass through",
			in:   delivery.Record{"id": "m1", "seq": float64(2)},
			want: delivery.Record{"id": "m1", "seq": float64(2)},
		},
		{
			name: "empty marked fields are dropped",
			in:   delivery.Record{"id": "m1", "_to": ""},
			want: delivery.Record{"id": "m1"},
		},
		{
			name:    "invalid base64 in a marked field is an error",
			in:      delivery.Record{"_to": "not base64!!"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeFields(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeFields() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeFields() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRoundTripIdentity(t *testing.T) {
	// Encode then decode must be the identity for every marked field with a
	// non-empty string value, including non-UTF8 byte content.
	records := []delivery.Record{
		{"id": "m1", "seq": float64(1), "_to": "a@b.com"},
		{"id": "m2", "_headers": "Received: from [127.0.0.1]\r\nSubject: =?utf-8?B?4pyT?=\r\n"},
		{"id": "m3", "_raw": string([]byte{0, 1, 2, 0xfe, 0xff}), "zone": "bulk"},
	}

	for _, rec := range records {
		decoded, err := DecodeFields(EncodeFields(rec))
		if err != nil {
			t.Fatalf("round trip of %v failed: %v", rec["id"], err)
		}
		if !reflect.DeepEqual(decoded, rec) {
			t.Errorf("encode/decode not identity: got %#v, want %#v", decoded, rec)
		}
	}
}

func TestDecodeEncodeIdentity(t *testing.T) {
	// The other leg: a wire-encoded record must survive decode then encode.
	wire := delivery.Record{"id": "m1", "_to": "YUBiLmNvbQ==", "domain": "b.com"}

	decoded, err := DecodeFields(wire)
	if err != nil {
		t.Fatalf("DecodeFields() error = %v", err)
	}
	if !reflect.DeepEqual(EncodeFields(decoded), wire) {
		t.Errorf("decode/encode not identity: got %#v, want %#v", EncodeFields(decoded), wire)
	}
}
