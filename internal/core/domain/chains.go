package domain

import "strings"

type ChainID string
type ChainName string

const (
	// Chain IDs
	ChainIDEthereum ChainID = "1"
	ChainIDPolygon  ChainID = "137"
	ChainIDSepolia  ChainID = "11155111"

	// Chain Names (Internal Codes)
	ChainNameEthereum ChainName = "ETHEREUM_MAINNET"
	ChainNamePolygon  ChainName = "POLYGON_MAINNET"
	ChainNameSepolia  ChainName = "ETHEREUM_SEPOLIA"
)

// ChainIDToName maps ChainID to its human-readable InternalCode/Name.
var ChainIDToName = map[ChainID]ChainName{
	ChainIDEthereum: ChainNameEthereum,
	ChainIDPolygon:  ChainNamePolygon,
	ChainIDSepolia:  ChainNameSepolia,
}

// NameOf returns the internal name for a chain, falling back to the raw ID.
func NameOf(id ChainID) string {
	if name, ok := ChainIDToName[id]; ok {
		return string(name)
	}
	return string(id)
}

// NormalizeAddress lowercases a hex address so that comparisons and cache keys
// do not depend on EIP-55 checksum casing.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
