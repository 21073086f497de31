package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/nftscan/internal/core/domain"
	"github.com/vietddude/nftscan/internal/indexing/metrics"
	"github.com/vietddude/nftscan/internal/infra/chain"
	"github.com/vietddude/nftscan/internal/infra/rpc"
)

// RPCClient is the subset of rpc.Client the adapter needs.
type RPCClient interface {
	Call(ctx context.Context, method string, params []any) (any, error)
	BatchCall(ctx context.Context, requests []rpc.BatchRequest) ([]rpc.BatchResponse, error)
}

// EVMAdapter implements chain.Adapter over Ethereum JSON-RPC.
type EVMAdapter struct {
	chainID domain.ChainID
	client  RPCClient
	log     *slog.Logger
}

var _ chain.Adapter = (*EVMAdapter)(nil)

func NewEVMAdapter(chainID domain.ChainID, client RPCClient) *EVMAdapter {
	return &EVMAdapter{
		chainID: chainID,
		client:  client,
		log:     slog.Default().With("chain", domain.NameOf(chainID)),
	}
}

func (a *EVMAdapter) GetChainID() domain.ChainID {
	return a.chainID
}

func (a *EVMAdapter) GetLatestBlock(ctx context.Context) (uint64, error) {
	result, err := a.client.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}

	blockHex, ok := result.(string)
	if !ok {
		return 0, fmt.Errorf("invalid block number response: %T", result)
	}
	head, err := hexutil.DecodeUint64(blockHex)
	if err != nil {
		return 0, fmt.Errorf("decode block number %q: %w", blockHex, err)
	}
	metrics.ChainLatestBlock.WithLabelValues(string(a.chainID)).Set(float64(head))
	return head, nil
}

// rpcLog mirrors the eth_getLogs result object.
type rpcLog struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        hexutil.Bytes  `json:"data"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	TxHash      common.Hash    `json:"transactionHash"`
	LogIndex    hexutil.Uint   `json:"logIndex"`
	Removed     bool           `json:"removed"`
}

func (a *EVMAdapter) GetLogs(
	ctx context.Context,
	contract string,
	event abi.Event,
	filter map[string]any,
	span domain.Span,
) ([]domain.EventRecord, error) {
	topics, err := BuildTopics(event, filter)
	if err != nil {
		return nil, err
	}

	params := map[string]any{
		"address":   common.HexToAddress(contract).Hex(),
		"fromBlock": hexutil.EncodeUint64(span.From),
		"toBlock":   hexutil.EncodeUint64(span.To),
		"topics":    topics,
	}
	result, err := a.client.Call(ctx, "eth_getLogs", []any{params})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs %s: %w", span, err)
	}

	// The transport hands back generic JSON; round-trip it into typed logs.
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("re-encode logs: %w", err)
	}
	var logs []rpcLog
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, fmt.Errorf("parse logs: %w", err)
	}

	records := make([]domain.EventRecord, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		args, err := DecodeEvent(event, l.Topics, l.Data)
		if err != nil {
			a.log.Warn("skip undecodable log",
				"event", event.Name,
				"tx", l.TxHash.Hex(),
				"index", uint(l.LogIndex),
				"error", err,
			)
			continue
		}
		records = append(records, domain.EventRecord{
			Address:     domain.NormalizeAddress(l.Address.Hex()),
			Event:       event.Name,
			Args:        args,
			BlockNumber: uint64(l.BlockNumber),
			TxHash:      l.TxHash.Hex(),
			LogIndex:    uint(l.LogIndex),
		})
	}
	return records, nil
}

// BuildTopics turns an event and a filter on its indexed inputs into an
// eth_getLogs topics array. Unfiltered positions are null and trailing
// nulls are dropped.
func BuildTopics(event abi.Event, filter map[string]any) ([]any, error) {
	var indexed abi.Arguments
	for _, in := range event.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}

	used := 0
	query := make([][]any, len(indexed))
	for i, in := range indexed {
		v, ok := filter[in.Name]
		if !ok || v == nil {
			continue
		}
		used++
		coerced, err := coerceTopicValue(in.Type, v)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", in.Name, err)
		}
		query[i] = []any{coerced}
	}
	if used != len(filter) {
		for name := range filter {
			if !hasIndexedInput(indexed, name) {
				return nil, fmt.Errorf("filter %s: not an indexed input of %s", name, event.Name)
			}
		}
	}

	hashes, err := abi.MakeTopics(query...)
	if err != nil {
		return nil, fmt.Errorf("make topics: %w", err)
	}

	topics := []any{event.ID.Hex()}
	for _, h := range hashes {
		if len(h) == 0 {
			topics = append(topics, nil)
			continue
		}
		topics = append(topics, h[0].Hex())
	}
	for len(topics) > 1 && topics[len(topics)-1] == nil {
		topics = topics[:len(topics)-1]
	}
	return topics, nil
}

func hasIndexedInput(indexed abi.Arguments, name string) bool {
	for _, in := range indexed {
		if in.Name == name {
			return true
		}
	}
	return false
}

func coerceTopicValue(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		switch x := v.(type) {
		case common.Address:
			return x, nil
		case string:
			if !common.IsHexAddress(x) {
				return nil, fmt.Errorf("invalid address %q", x)
			}
			return common.HexToAddress(x), nil
		}
	case abi.UintTy, abi.IntTy:
		switch x := v.(type) {
		case *big.Int:
			return x, nil
		case uint64:
			return new(big.Int).SetUint64(x), nil
		case int:
			return big.NewInt(int64(x)), nil
		case string:
			n, ok := new(big.Int).SetString(x, 0)
			if !ok {
				return nil, fmt.Errorf("invalid integer %q", x)
			}
			return n, nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("unsupported value %T for %s", v, t.String())
}

// DecodeEvent decodes indexed and non-indexed arguments of one log into a
// map keyed by input name.
func DecodeEvent(event abi.Event, topics []common.Hash, data []byte) (map[string]any, error) {
	if len(topics) == 0 || topics[0] != event.ID {
		return nil, fmt.Errorf("topic0 does not match %s", event.Sig)
	}

	args := make(map[string]any)
	var indexed abi.Arguments
	for _, in := range event.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(topics)-1 != len(indexed) {
		return nil, fmt.Errorf("expected %d indexed topics, got %d", len(indexed), len(topics)-1)
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, topics[1:]); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	if nonIndexed := event.Inputs.NonIndexed(); len(nonIndexed) > 0 {
		if err := nonIndexed.UnpackIntoMap(args, data); err != nil {
			return nil, fmt.Errorf("unpack data: %w", err)
		}
	}
	return args, nil
}

func (a *EVMAdapter) CallContract(ctx context.Context, call chain.ContractCall) ([]byte, error) {
	result, err := a.client.Call(ctx, "eth_call", callParams(call))
	if err != nil {
		return nil, fmt.Errorf("eth_call %s: %w", call.To, err)
	}
	return decodeCallResult(result)
}

func (a *EVMAdapter) BatchCallContract(
	ctx context.Context,
	calls []chain.ContractCall,
) ([]chain.CallResult, error) {
	if len(calls) == 0 {
		return []chain.CallResult{}, nil
	}

	requests := make([]rpc.BatchRequest, len(calls))
	for i, c := range calls {
		requests[i] = rpc.BatchRequest{Method: "eth_call", Params: callParams(c)}
	}

	responses, err := a.client.BatchCall(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("eth_call batch: %w", err)
	}
	if len(responses) != len(calls) {
		return nil, fmt.Errorf("eth_call batch: %d responses for %d calls", len(responses), len(calls))
	}

	results := make([]chain.CallResult, len(calls))
	for i, resp := range responses {
		if resp.Error != nil {
			results[i] = chain.CallResult{Err: resp.Error}
			continue
		}
		data, err := decodeCallResult(resp.Result)
		results[i] = chain.CallResult{Data: data, Err: err}
	}
	return results, nil
}

func callParams(call chain.ContractCall) []any {
	return []any{
		map[string]any{
			"to":   common.HexToAddress(call.To).Hex(),
			"data": hexutil.Encode(call.Data),
		},
		"latest",
	}
}

func decodeCallResult(result any) ([]byte, error) {
	s, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("invalid eth_call response: %T", result)
	}
	return hexutil.Decode(s)
}
