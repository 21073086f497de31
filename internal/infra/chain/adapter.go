package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/vietddude/nftscan/internal/core/domain"
)

// HeadSource resolves the current chain head.
type HeadSource interface {
	// GetLatestBlock returns the latest block number on the chain
	GetLatestBlock(ctx context.Context) (uint64, error)
}

// LogSource fetches decoded contract events.
type LogSource interface {
	// GetLogs returns every event emitted by contract within span whose
	// indexed arguments match filter. Keys of filter are indexed input names.
	GetLogs(
		ctx context.Context,
		contract string,
		event abi.Event,
		filter map[string]any,
		span domain.Span,
	) ([]domain.EventRecord, error)
}

// ContractCall is one read-only call against the latest state.
type ContractCall struct {
	To   string
	Data []byte
}

// CallResult carries the raw return data of a ContractCall or its error.
type CallResult struct {
	Data []byte
	Err  error
}

// ContractCaller performs read-only calls.
type ContractCaller interface {
	// CallContract executes one eth_call at the latest block
	CallContract(ctx context.Context, call ContractCall) ([]byte, error)

	// BatchCallContract sends all calls in a single round trip. The result
	// slice has one entry per call, in call order. err is set only when the
	// round trip as a whole failed.
	BatchCallContract(ctx context.Context, calls []ContractCall) ([]CallResult, error)
}

// Adapter is the chain boundary used by the reconciliation pipeline.
type Adapter interface {
	HeadSource
	LogSource
	ContractCaller

	// GetChainID returns the chain identifier
	GetChainID() domain.ChainID
}
