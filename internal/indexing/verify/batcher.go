package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/nftscan/internal/infra/chain"
	"github.com/vietddude/nftscan/internal/infra/chain/evm"
)

const (
	ModeMulticall = "multicall"
	ModeBatch     = "batch"
)

var errCallFailed = errors.New("call reverted")

// Multicall3Batcher packs every call into one aggregate3 eth_call with
// allowFailure set, so a reverting sub-call only fails its own item.
type Multicall3Batcher struct {
	caller  chain.ContractCaller
	address string
}

// NewMulticall3Batcher creates a batcher. An empty address selects the
// canonical Multicall3 deployment.
func NewMulticall3Batcher(caller chain.ContractCaller, address string) *Multicall3Batcher {
	if address == "" {
		address = evm.Multicall3Address
	}
	return &Multicall3Batcher{caller: caller, address: address}
}

func (b *Multicall3Batcher) Mode() string { return ModeMulticall }

func (b *Multicall3Batcher) Execute(
	ctx context.Context,
	calls []chain.ContractCall,
) ([]chain.CallResult, error) {
	if len(calls) == 0 {
		return []chain.CallResult{}, nil
	}

	sub := make([]evm.Call3, len(calls))
	for i, c := range calls {
		sub[i] = evm.Call3{
			Target:       common.HexToAddress(c.To),
			AllowFailure: true,
			CallData:     c.Data,
		}
	}

	data, err := evm.PackAggregate3(sub)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate3: %w", err)
	}

	raw, err := b.caller.CallContract(ctx, chain.ContractCall{To: b.address, Data: data})
	if err != nil {
		return nil, err
	}

	decoded, err := evm.UnpackAggregate3(raw)
	if err != nil {
		return nil, err
	}
	if len(decoded) != len(calls) {
		return nil, fmt.Errorf("aggregate3 returned %d results for %d calls", len(decoded), len(calls))
	}

	results := make([]chain.CallResult, len(decoded))
	for i, r := range decoded {
		if !r.Success {
			results[i] = chain.CallResult{Err: errCallFailed}
			continue
		}
		results[i] = chain.CallResult{Data: r.ReturnData}
	}
	return results, nil
}

// JSONRPCBatcher sends one eth_call per item inside a single JSON-RPC
// batch. The transport matches responses to calls by request id.
type JSONRPCBatcher struct {
	caller chain.ContractCaller
}

func NewJSONRPCBatcher(caller chain.ContractCaller) *JSONRPCBatcher {
	return &JSONRPCBatcher{caller: caller}
}

func (b *JSONRPCBatcher) Mode() string { return ModeBatch }

func (b *JSONRPCBatcher) Execute(
	ctx context.Context,
	calls []chain.ContractCall,
) ([]chain.CallResult, error) {
	return b.caller.BatchCallContract(ctx, calls)
}

// NewBatcher selects a backend by mode name.
func NewBatcher(mode string, caller chain.ContractCaller, multicall string) (Batcher, error) {
	switch mode {
	case ModeMulticall, "":
		return NewMulticall3Batcher(caller, multicall), nil
	case ModeBatch:
		return NewJSONRPCBatcher(caller), nil
	default:
		return nil, fmt.Errorf("unknown verify mode %q", mode)
	}
}
