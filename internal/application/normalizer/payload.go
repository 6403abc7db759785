package normalizer

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

var (
	// ErrEmptyPayload means the scanned QR code carried no data.
	ErrEmptyPayload = errors.New("scanned payload is empty")
	// ErrMalformedPayload means the payload could not be decoded as JSON even
	// after control-character cleanup.
	ErrMalformedPayload = errors.New("scanned payload is not valid receipt JSON")
)

// DecodeScanPayload decodes the raw bytes read from a QR code into a generic
// receipt map. Hardware scanners pad payloads with ASCII control bytes, so
// decoding is attempted twice: first with control bytes trimmed from both
// ends, then with every control byte stripped from the payload.
func DecodeScanPayload(data []byte) (map[string]any, error) {
	s := strings.TrimFunc(string(data), isControl)
	if s == "" {
		return nil, ErrEmptyPayload
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err == nil {
		return raw, nil
	}

	cleaned := strings.Map(func(r rune) rune {
		if isControl(r) {
			return -1
		}
		return r
	}, s)
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, ErrMalformedPayload
	}
	return raw, nil
}

// DecodeLegacyExport decodes the JSON array the pre-migration app kept under
// a single local-storage slot. Some app builds percent-encoded the slot, so
// a percent-decoded parse is attempted first with the raw bytes as fallback.
func DecodeLegacyExport(data []byte) ([]map[string]any, error) {
	if decoded, err := url.QueryUnescape(string(data)); err == nil {
		if records, err := parseRecordArray([]byte(decoded)); err == nil {
			return records, nil
		}
	}
	return parseRecordArray(data)
}

func parseRecordArray(data []byte) ([]map[string]any, error) {
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7F
}
