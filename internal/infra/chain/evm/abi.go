package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Multicall3Address is the canonical Multicall3 deployment, identical on
// every chain it exists on.
const Multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

const erc721JSON = `[
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"tokenId","type":"uint256","indexed":true}]},
	{"type":"function","name":"ownerOf","stateMutability":"view",
		"inputs":[{"name":"tokenId","type":"uint256"}],
		"outputs":[{"name":"owner","type":"address"}]}
]`

const marketplaceJSON = `[
	{"type":"event","name":"Listed","anonymous":false,"inputs":[
		{"name":"tokenId","type":"uint256","indexed":true},
		{"name":"seller","type":"address","indexed":true},
		{"name":"price","type":"uint256","indexed":false}]},
	{"type":"function","name":"listings","stateMutability":"view",
		"inputs":[{"name":"tokenId","type":"uint256"}],
		"outputs":[
			{"name":"seller","type":"address"},
			{"name":"price","type":"uint256"},
			{"name":"isListed","type":"bool"}]}
]`

const multicall3JSON = `[
	{"type":"function","name":"aggregate3","stateMutability":"payable",
		"inputs":[{"name":"calls","type":"tuple[]","components":[
			{"name":"target","type":"address"},
			{"name":"allowFailure","type":"bool"},
			{"name":"callData","type":"bytes"}]}],
		"outputs":[{"name":"returnData","type":"tuple[]","components":[
			{"name":"success","type":"bool"},
			{"name":"returnData","type":"bytes"}]}]}
]`

var (
	// ERC721 holds the Transfer event and ownerOf view.
	ERC721 = mustParseABI(erc721JSON)
	// Marketplace holds the Listed event and listings view.
	Marketplace = mustParseABI(marketplaceJSON)
	// Multicall3 holds aggregate3.
	Multicall3 = mustParseABI(multicall3JSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// Call3 is one aggregate3 sub-call.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result3 is one aggregate3 sub-result.
type Result3 struct {
	Success    bool
	ReturnData []byte
}

// PackAggregate3 encodes an aggregate3 call where every sub-call may fail
// without reverting the whole batch.
func PackAggregate3(calls []Call3) ([]byte, error) {
	return Multicall3.Pack("aggregate3", calls)
}

// UnpackAggregate3 decodes aggregate3 return data.
func UnpackAggregate3(data []byte) ([]Result3, error) {
	out, err := Multicall3.Unpack("aggregate3", data)
	if err != nil {
		return nil, fmt.Errorf("unpack aggregate3: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unpack aggregate3: expected 1 output, got %d", len(out))
	}
	results := *abi.ConvertType(out[0], new([]Result3)).(*[]Result3)
	return results, nil
}
