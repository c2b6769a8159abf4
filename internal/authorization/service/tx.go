package service

import (
	"context"
	"sync"
	"time"

	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
	txcontext "policykernel/pkg/platform/tx"
)

// numPairShards spreads (asset, holder) pairs over independent mutexes so
// unrelated holders never contend.
const numPairShards = 128

const defaultPairTxTimeout = 5 * time.Second

// pairTx serialises transitions of one (asset, holder) pair within the
// process and runs them in the underlying store transaction. Across
// replicas the partial unique indexes keep the duplicate check race-free.
type pairTx struct {
	shards  [numPairShards]sync.Mutex
	inner   txcontext.Runner
	timeout time.Duration
	onWait  func(time.Duration)
}

func newPairTx(inner txcontext.Runner) *pairTx {
	return &pairTx{inner: inner, timeout: defaultPairTxTimeout}
}

func (t *pairTx) run(ctx context.Context, assetID id.AssetID, holder string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	shard := &t.shards[hashPair(assetID.String()+"|"+holder)%numPairShards]
	shard.Lock()
	defer shard.Unlock()
	if t.onWait != nil {
		t.onWait(time.Since(start))
	}

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return t.inner.RunInTx(ctx, fn)
}

// hashPair is FNV-1a.
func hashPair(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
