// Package verify checks candidate identifiers against current contract
// state in a single batched round trip.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/vietddude/nftscan/internal/core/domain"
	"github.com/vietddude/nftscan/internal/indexing/metrics"
	"github.com/vietddude/nftscan/internal/infra/chain"
)

// CallSpec describes the view call issued once per candidate.
type CallSpec struct {
	Target string
	Method abi.Method
	Args   func(id *big.Int) []any
}

// TokenIDArgs passes the candidate itself as the only argument.
func TokenIDArgs(id *big.Int) []any {
	return []any{id}
}

// Batcher executes a list of calls in one round trip. Implementations
// return exactly one result per call, in call order.
type Batcher interface {
	Execute(ctx context.Context, calls []chain.ContractCall) ([]chain.CallResult, error)
	Mode() string
}

var errEmptyReturn = errors.New("empty return data")

// Verifier evaluates a CallSpec for every member of a candidate set.
type Verifier struct {
	batcher Batcher
	log     *slog.Logger
}

// New creates a verifier on top of a batching backend.
func New(batcher Batcher) *Verifier {
	return &Verifier{
		batcher: batcher,
		log:     slog.Default().With("component", "verifier", "mode", batcher.Mode()),
	}
}

// Verify returns one Verification per candidate, in the set's order, each
// carrying its own identifier. Item failures (revert, empty or undecodable
// return data) are recorded on the outcome. Only a failure of the batch as
// a whole is returned as an error, as *domain.BatchFailure.
func (v *Verifier) Verify(
	ctx context.Context,
	set *domain.CandidateSet,
	spec CallSpec,
) ([]domain.Verification, error) {
	ids := set.IDs()
	out := make([]domain.Verification, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	argsFn := spec.Args
	if argsFn == nil {
		argsFn = TokenIDArgs
	}

	// Calls that fail to encode never leave the process; sent maps each
	// outgoing call back to its candidate index.
	calls := make([]chain.ContractCall, 0, len(ids))
	sent := make([]int, 0, len(ids))
	for i, id := range ids {
		out[i].ID = id
		packed, err := spec.Method.Inputs.Pack(argsFn(id)...)
		if err != nil {
			out[i].Outcome = failed(id, fmt.Errorf("encode %s: %w", spec.Method.Name, err))
			continue
		}
		data := append(append([]byte{}, spec.Method.ID...), packed...)
		calls = append(calls, chain.ContractCall{To: spec.Target, Data: data})
		sent = append(sent, i)
	}

	if len(calls) > 0 {
		metrics.VerifyBatchesTotal.WithLabelValues(v.batcher.Mode()).Inc()
		results, err := v.batcher.Execute(ctx, calls)
		if err != nil {
			return nil, &domain.BatchFailure{Size: len(calls), Cause: err}
		}
		if len(results) != len(calls) {
			return nil, &domain.BatchFailure{
				Size:  len(calls),
				Cause: fmt.Errorf("got %d results for %d calls", len(results), len(calls)),
			}
		}
		for j, res := range results {
			i := sent[j]
			out[i].Outcome = decode(ids[i], spec.Method, res)
		}
	}

	failures := 0
	for _, o := range out {
		if !o.Outcome.OK {
			failures++
		}
	}
	if failures > 0 {
		metrics.VerifyItemFailuresTotal.WithLabelValues(v.batcher.Mode()).Add(float64(failures))
	}
	v.log.Debug("Verified candidates",
		"method", spec.Method.Name,
		"candidates", len(ids),
		"failures", failures,
	)
	return out, nil
}

func decode(id *big.Int, method abi.Method, res chain.CallResult) domain.Outcome {
	if res.Err != nil {
		return failed(id, res.Err)
	}
	if len(res.Data) == 0 {
		return failed(id, errEmptyReturn)
	}
	fields := make(map[string]any, len(method.Outputs))
	if err := method.Outputs.UnpackIntoMap(fields, res.Data); err != nil {
		return failed(id, fmt.Errorf("decode %s: %w", method.Name, err))
	}
	return domain.Outcome{OK: true, Fields: fields}
}

func failed(id *big.Int, reason error) domain.Outcome {
	return domain.Outcome{
		Err: &domain.ItemVerificationFailure{ID: id.String(), Reason: reason.Error()},
	}
}
