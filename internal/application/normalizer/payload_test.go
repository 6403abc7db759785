package normalizer

import (
	"errors"
	"net/url"
	"testing"
)

func TestDecodeScanPayload(t *testing.T) {
	valid := `{"storeName":"ABC Market","total":150.5}`

	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{name: "clean json", payload: valid},
		{name: "leading and trailing control bytes", payload: "\x00\x1d" + valid + "\x1d\x00"},
		{name: "gs bytes inside strings", payload: `{"storeName":"ABC` + "\x1d" + ` Market","total":150.5}`},
		{name: "empty", payload: "", wantErr: ErrEmptyPayload},
		{name: "only control bytes", payload: "\x00\x1d\x1d", wantErr: ErrEmptyPayload},
		{name: "plain text", payload: "https://example.com/some-qr", wantErr: ErrMalformedPayload},
		{name: "truncated json", payload: `{"storeName":"ABC`, wantErr: ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := DecodeScanPayload([]byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if raw["storeName"] == "" {
				t.Errorf("storeName missing from decoded payload: %v", raw)
			}
		})
	}
}

func TestDecodeLegacyExport(t *testing.T) {
	export := `[{"storeName":"Migros","total":99},{"storeName":"A101","total":45}]`

	t.Run("raw array", func(t *testing.T) {
		records, err := DecodeLegacyExport([]byte(export))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("got %d records, want 2", len(records))
		}
	})

	t.Run("percent-encoded array", func(t *testing.T) {
		records, err := DecodeLegacyExport([]byte(url.QueryEscape(export)))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("got %d records, want 2", len(records))
		}
		if records[0]["storeName"] != "Migros" {
			t.Errorf("first record = %v", records[0])
		}
	})

	t.Run("not an array", func(t *testing.T) {
		if _, err := DecodeLegacyExport([]byte(`{"storeName":"Migros"}`)); err == nil {
			t.Fatal("expected an error for a non-array export")
		}
	})
}
