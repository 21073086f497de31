package domain

// EventRecord is one decoded log matched by a scan.
type EventRecord struct {
	Address     string
	Event       string
	Args        map[string]any
	BlockNumber uint64
	TxHash      string
	LogIndex    uint
}

// Invalidation signals that a write affecting Address was confirmed.
// An empty Kind invalidates every query kind for the address.
type Invalidation struct {
	Address string    `json:"address"`
	Kind    QueryKind `json:"kind,omitempty"`
	TxHash  string    `json:"tx_hash,omitempty"`
}
