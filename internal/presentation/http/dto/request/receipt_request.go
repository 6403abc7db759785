package request

// ScanRequest carries the raw QR payload exactly as the scanner read it.
// The payload is not parsed at the binding layer; producers pad it with
// control characters that a strict JSON binding would reject.
type ScanRequest struct {
	Payload string `json:"payload" binding:"required"`
}

// MigrateLocalRequest carries the records a client kept in its local store
// before accounts existed. Records are loosely typed on purpose: the local
// format predates validation. Clients that cannot decode their own storage
// slot send it verbatim in export instead.
type MigrateLocalRequest struct {
	Receipts []map[string]any `json:"receipts"`
	Export   string           `json:"export"`
}
