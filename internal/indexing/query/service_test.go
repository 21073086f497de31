package query

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/nftscan/internal/core/domain"
	"github.com/vietddude/nftscan/internal/indexing/querycache"
	"github.com/vietddude/nftscan/internal/indexing/scanner"
	"github.com/vietddude/nftscan/internal/indexing/verify"
	"github.com/vietddude/nftscan/internal/infra/chain"
	"github.com/vietddude/nftscan/internal/infra/chain/evm"
)

const (
	nftAddr    = "0x00000000000000000000000000000000000000aa"
	marketAddr = "0x00000000000000000000000000000000000000bb"
)

var (
	addrA = common.HexToAddress("0x000000000000000000000000000000000000000A")
	addrB = common.HexToAddress("0x000000000000000000000000000000000000000B")
	addrC = common.HexToAddress("0x000000000000000000000000000000000000000C")
	addrD = common.HexToAddress("0x000000000000000000000000000000000000000D")
)

type transfer struct {
	id    int64
	to    common.Address
	block uint64
}

type listing struct {
	seller common.Address
	price  *big.Int
	listed bool
}

// fakeChain is an in-memory contract pair answering the reads the
// pipeline makes. Tokens absent from owners or listings revert.
type fakeChain struct {
	mu        sync.Mutex
	head      uint64
	transfers []transfer
	listedIDs []int64
	owners    map[int64]common.Address
	listings  map[int64]listing
	logsErr   error

	headCalls  int
	logCalls   int
	batchCalls int
	callCalls  int
	spans      []domain.Span
}

var _ chain.HeadSource = (*fakeChain)(nil)
var _ chain.LogSource = (*fakeChain)(nil)
var _ chain.ContractCaller = (*fakeChain)(nil)

func (f *fakeChain) GetLatestBlock(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headCalls++
	return f.head, nil
}

func (f *fakeChain) GetLogs(
	ctx context.Context,
	contract string,
	event abi.Event,
	filter map[string]any,
	span domain.Span,
) ([]domain.EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.logCalls++
	f.spans = append(f.spans, span)
	if f.logsErr != nil {
		return nil, f.logsErr
	}

	var out []domain.EventRecord
	switch event.Name {
	case "Transfer":
		want, filtered := filter["to"].(common.Address)
		for _, t := range f.transfers {
			if t.block < span.From || t.block > span.To || (filtered && t.to != want) {
				continue
			}
			out = append(out, domain.EventRecord{
				Event:       "Transfer",
				BlockNumber: t.block,
				Args:        map[string]any{"from": common.Address{}, "to": t.to, "tokenId": big.NewInt(t.id)},
			})
		}
	case "Listed":
		for _, id := range f.listedIDs {
			out = append(out, domain.EventRecord{
				Event:       "Listed",
				BlockNumber: span.To,
				Args:        map[string]any{"tokenId": big.NewInt(id), "seller": addrB, "price": big.NewInt(1)},
			})
		}
	}
	return out, nil
}

func (f *fakeChain) answer(data []byte) ([]byte, bool) {
	ownerOf := evm.ERC721.Methods["ownerOf"]
	listings := evm.Marketplace.Methods["listings"]

	switch {
	case bytes.HasPrefix(data, ownerOf.ID):
		in, err := ownerOf.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, false
		}
		owner, ok := f.owners[in[0].(*big.Int).Int64()]
		if !ok {
			return nil, false
		}
		out, err := ownerOf.Outputs.Pack(owner)
		return out, err == nil
	case bytes.HasPrefix(data, listings.ID):
		in, err := listings.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, false
		}
		l, ok := f.listings[in[0].(*big.Int).Int64()]
		if !ok {
			return nil, false
		}
		out, err := listings.Outputs.Pack(l.seller, l.price, l.listed)
		return out, err == nil
	}
	return nil, false
}

func (f *fakeChain) CallContract(ctx context.Context, call chain.ContractCall) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCalls++

	method := evm.Multicall3.Methods["aggregate3"]
	in, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	sub := *abi.ConvertType(in[0], new([]evm.Call3)).(*[]evm.Call3)
	results := make([]evm.Result3, len(sub))
	for i, c := range sub {
		data, ok := f.answer(c.CallData)
		if !ok {
			data = []byte{}
		}
		results[i] = evm.Result3{Success: ok, ReturnData: data}
	}
	return method.Outputs.Pack(results)
}

func (f *fakeChain) BatchCallContract(ctx context.Context, calls []chain.ContractCall) ([]chain.CallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++

	out := make([]chain.CallResult, len(calls))
	for i, c := range calls {
		data, ok := f.answer(c.Data)
		if !ok {
			out[i] = chain.CallResult{Err: errors.New("rpc error 3: execution reverted")}
			continue
		}
		out[i] = chain.CallResult{Data: data}
	}
	return out, nil
}

func (f *fakeChain) remoteCalls() (head, logs, verifies int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headCalls, f.logCalls, f.batchCalls + f.callCalls
}

func newTestService(f *fakeChain, mode string, deployBlock uint64) *Service {
	batcher, err := verify.NewBatcher(mode, f, "")
	if err != nil {
		panic(err)
	}
	cacheCfg := querycache.DefaultConfig()
	cacheCfg.Retry.MaxAttempts = 1
	return NewService(
		Config{
			Chain:       domain.ChainIDSepolia,
			NFT:         nftAddr,
			Marketplace: marketAddr,
			DeployBlock: deployBlock,
		},
		scanner.New(f, f, nil, 50_000),
		verify.New(batcher),
		querycache.New(cacheCfg),
	)
}

func ids(entities []domain.ReconciledEntity) []int64 {
	out := make([]int64, len(entities))
	for i, e := range entities {
		out[i] = e.ID.Int64()
	}
	return out
}

func abcChain() *fakeChain {
	return &fakeChain{
		head: 100_000,
		transfers: []transfer{
			{id: 1, to: addrA, block: 60_000},
			{id: 2, to: addrB, block: 60_001},
			{id: 1, to: addrC, block: 60_002},
		},
		owners: map[int64]common.Address{1: addrC, 2: addrB},
	}
}

func TestOwnedTokens_ReconcilesTransfers(t *testing.T) {
	for _, mode := range []string{verify.ModeMulticall, verify.ModeBatch} {
		t.Run(mode, func(t *testing.T) {
			svc := newTestService(abcChain(), mode, 0)
			ctx := context.Background()

			tests := []struct {
				owner common.Address
				want  []int64
			}{
				{owner: addrC, want: []int64{1}},
				{owner: addrB, want: []int64{2}},
				{owner: addrA, want: []int64{}}, // transferred away
			}
			for _, tt := range tests {
				got, err := svc.OwnedTokens(ctx, tt.owner.Hex())
				if err != nil {
					t.Fatalf("owner %s: unexpected error: %v", tt.owner, err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("owner %s: expected %v, got %v", tt.owner, tt.want, ids(got))
				}
				for i := range tt.want {
					if got[i].ID.Int64() != tt.want[i] {
						t.Errorf("owner %s: expected %v, got %v", tt.owner, tt.want, ids(got))
					}
				}
			}
		})
	}
}

func TestListings_RevertExcluded(t *testing.T) {
	price, _ := new(big.Int).SetString("1500000000000000000", 10)
	f := &fakeChain{
		head:      100_000,
		listedIDs: []int64{7, 3, 5, 9, 3},
		listings: map[int64]listing{
			3: {seller: addrB, price: price, listed: true},
			7: {seller: addrC, price: big.NewInt(2), listed: true},
			9: {seller: addrB, price: big.NewInt(0), listed: false}, // sold or cancelled
		},
	}

	for _, mode := range []string{verify.ModeMulticall, verify.ModeBatch} {
		t.Run(mode, func(t *testing.T) {
			svc := newTestService(f, mode, 0)
			got, err := svc.Listings(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != 2 || got[0].ID.Int64() != 3 || got[1].ID.Int64() != 7 {
				t.Fatalf("expected listings [3 7], got %v", ids(got))
			}
			if got[0].Price.Cmp(price) != 0 || !got[0].Listed {
				t.Errorf("unexpected listing %+v", got[0])
			}
			if got[1].Seller != domain.NormalizeAddress(addrC.Hex()) {
				t.Errorf("unexpected seller %s", got[1].Seller)
			}
		})
	}
}

func TestOwnedTokens_ScanWindow(t *testing.T) {
	f := abcChain()

	svc := newTestService(f, verify.ModeBatch, 0)
	if _, err := svc.OwnedTokens(context.Background(), addrC.Hex()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.spans[0].From != 50_000 || f.spans[len(f.spans)-1].To != 100_000 {
		t.Errorf("expected window 50000-100000, got %v", f.spans)
	}

	f.spans = nil
	svc = newTestService(f, verify.ModeBatch, 9_797)
	if _, err := svc.OwnedTokens(context.Background(), addrC.Hex()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.spans[0].From != 9_797 {
		t.Errorf("expected scan from deploy block, got %v", f.spans)
	}
}

func TestOwnedTokens_TransportErrorThenFreshRun(t *testing.T) {
	f := abcChain()
	f.logsErr = errors.New("dial tcp: connection refused")
	svc := newTestService(f, verify.ModeBatch, 0)
	ctx := context.Background()

	got, err := svc.OwnedTokens(ctx, addrC.Hex())
	if !domain.IsScanFailure(err) {
		t.Fatalf("expected ScanFailure, got %v", err)
	}
	if got != nil {
		t.Error("a failed run must not look like an empty result")
	}
	if s := svc.State(svc.OwnedKey(addrC.Hex())); s != querycache.StateAbsent {
		t.Errorf("expected key absent after failure, got %s", s)
	}

	f.mu.Lock()
	f.logsErr = nil
	f.mu.Unlock()

	got, err = svc.OwnedTokens(ctx, addrC.Hex())
	if err != nil {
		t.Fatalf("expected fresh run to succeed, got %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected token 1, got %v", ids(got))
	}
	if _, logs, _ := f.remoteCalls(); logs != 2 {
		t.Errorf("expected a second scan, got %d", logs)
	}
}

func TestOwnedTokens_SingleFlightRemoteCalls(t *testing.T) {
	f := abcChain()
	svc := newTestService(f, verify.ModeMulticall, 0)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.OwnedTokens(context.Background(), addrC.Hex()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	head, logs, verifies := f.remoteCalls()
	if head != 1 || logs != 1 || verifies != 1 {
		t.Errorf("expected one remote call per stage, got head=%d logs=%d verify=%d", head, logs, verifies)
	}
}

func TestOwnedTokens_NoCandidatesSkipsVerify(t *testing.T) {
	f := abcChain()
	svc := newTestService(f, verify.ModeMulticall, 0)

	got, err := svc.OwnedTokens(context.Background(), addrD.Hex())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", got)
	}
	if _, _, verifies := f.remoteCalls(); verifies != 0 {
		t.Errorf("expected zero verification calls, got %d", verifies)
	}
}

func TestOwnedTokens_InvalidationForcesRerun(t *testing.T) {
	f := abcChain()
	svc := newTestService(f, verify.ModeBatch, 0)
	ctx := context.Background()

	if _, err := svc.OwnedTokens(ctx, addrC.Hex()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// C transfers token 1 to D
	f.mu.Lock()
	f.transfers = append(f.transfers, transfer{id: 1, to: addrD, block: 60_010})
	f.owners[1] = addrD
	f.mu.Unlock()

	got, _ := svc.OwnedTokens(ctx, addrC.Hex())
	if len(got) != 1 {
		t.Errorf("expected cached result before invalidation, got %v", ids(got))
	}

	if n := svc.Invalidate(domain.Invalidation{Address: addrC.Hex()}, "test"); n != 1 {
		t.Errorf("expected 1 invalidated key, got %d", n)
	}
	got, err := svc.OwnedTokens(ctx, addrC.Hex())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected token gone after invalidation, got %v", ids(got))
	}
}

func TestService_InputErrors(t *testing.T) {
	svc := newTestService(abcChain(), verify.ModeBatch, 0)
	if _, err := svc.OwnedTokens(context.Background(), "0xnope"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}

	empty := NewService(Config{}, nil, nil, querycache.New(querycache.DefaultConfig()))
	if _, err := empty.OwnedTokens(context.Background(), addrA.Hex()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := empty.Listings(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
