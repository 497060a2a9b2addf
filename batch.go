/*
Package dynoro – batch write coordinator.

A BatchWriter captures Save / Delete calls against its bound table and
submits them in bounded groups. The writer is installed into a derived
context so concurrent logical flows each see their own coordinator.
*/
package dynoro

import (
	"context"
	"time"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// maxBatchWriteItems is the store ceiling per physical BatchWriteItem call.
	maxBatchWriteItems = 25

	// maxBatchGetKeys is the store ceiling per physical BatchGetItem call.
	maxBatchGetKeys = 100

	// unprocessed-items retry budget
	maxUnprocessedAttempts = 5
	initialBackoff         = 50 * time.Millisecond
)

// context keys for the active coordinators
type batchWriterKey struct{ table string }
type coordinatorKindKey struct{}

const (
	kindBatch       = "batch"
	kindTransaction = "transaction"
)

// BatchWriter buffers write requests for one table.
type BatchWriter struct {
	table   *Table
	size    int
	pending []types.WriteRequest

	submitted int
}

// activeBatchWriter returns the batch writer bound to table for this context,
// or nil.
func activeBatchWriter(ctx context.Context, table string) *BatchWriter {
	bw, _ := ctx.Value(batchWriterKey{table: table}).(*BatchWriter)
	return bw
}

// WithBatchWriter runs fn with a batch writer active for this table. Saves
// and deletes against the table inside fn are buffered and flushed whenever
// the buffer reaches size (default 25). The final flush happens on exit
// whether fn succeeded or not; batch writes carry no atomicity to protect.
func (t *Table) WithBatchWriter(ctx context.Context, size int, fn func(ctx context.Context) error) error {
	if kind, _ := ctx.Value(coordinatorKindKey{}).(string); kind == kindTransaction {
		return NewError("cannot start a batch writer inside a transaction",
			WithCode(ErrValidation), WithContext(map[string]any{"table": t.Name}))
	}
	if size <= 0 {
		size = maxBatchWriteItems
	}

	bw := &BatchWriter{table: t, size: size}
	scoped := context.WithValue(ctx, batchWriterKey{table: t.Name}, bw)
	scoped = context.WithValue(scoped, coordinatorKindKey{}, kindBatch)

	err := fn(scoped)
	if ferr := bw.Flush(ctx); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

// BatchesSubmitted returns the number of physical BatchWriteItem calls made.
func (b *BatchWriter) BatchesSubmitted() int { return b.submitted }

func (b *BatchWriter) add(ctx context.Context, req types.WriteRequest) error {
	b.pending = append(b.pending, req)
	if len(b.pending) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

// Flush submits all buffered requests, chunked to the store ceiling. A flush
// of an empty buffer is a no-op.
func (b *BatchWriter) Flush(ctx context.Context) error {
	for len(b.pending) > 0 {
		n := len(b.pending)
		if n > maxBatchWriteItems {
			n = maxBatchWriteItems
		}
		chunk := b.pending[:n]
		b.pending = b.pending[n:]
		if err := b.table.submitBatch(ctx, chunk); err != nil {
			return err
		}
		b.submitted++
	}
	return nil
}

// submitBatch issues one BatchWriteItem call, retrying only the store's
// unprocessed-items remainder with doubling backoff. Arbitrary transient
// errors are not retried here; that belongs to the SDK's own retry layer.
func (t *Table) submitBatch(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{t.Name: reqs}
	backoff := initialBackoff

	for attempt := 1; ; attempt++ {
		out, err := t.client.BatchWriteItem(ctx, &ddb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return NewError("batch write failed", WithCode(ErrRuntime),
				WithContext(map[string]any{"table": t.Name}), WithCause(err))
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}
		if attempt >= maxUnprocessedAttempts {
			return NewError("unprocessed items remain after retries",
				WithCode(ErrUnprocessed),
				WithContext(map[string]any{"table": t.Name, "attempts": attempt}))
		}
		t.log.Trace("retrying unprocessed items",
			map[string]any{"table": t.Name, "attempt": attempt})
		pending = out.UnprocessedItems
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
}

// ─── Batch reads ─────────────────────────────────────────────────────────────

// Key addresses one item by its primary key values.
type Key struct {
	Hash  any
	Range any
}

// BatchGet reads many items by primary key, chunked to the store's 100-key
// ceiling, retrying unprocessed keys with the same backoff as batch writes.
// Missing items are simply absent from the result.
func (t *Table) BatchGet(ctx context.Context, keys []Key, params *Params) ([]Item, error) {
	if params == nil {
		params = &Params{}
	}
	marshaled := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		key, err := t.key(k.Hash, k.Range)
		if err != nil {
			return nil, err
		}
		mk, err := marshalItem(key)
		if err != nil {
			return nil, err
		}
		marshaled = append(marshaled, mk)
	}

	var items []Item
	for start := 0; start < len(marshaled); start += maxBatchGetKeys {
		end := start + maxBatchGetKeys
		if end > len(marshaled) {
			end = len(marshaled)
		}
		chunk, err := t.getChunk(ctx, marshaled[start:end], params.ConsistentRead)
		if err != nil {
			return nil, err
		}
		items = append(items, chunk...)
	}
	return items, nil
}

func (t *Table) getChunk(ctx context.Context, keys []map[string]types.AttributeValue, consistent bool) ([]Item, error) {
	pending := map[string]types.KeysAndAttributes{
		t.Name: {Keys: keys, ConsistentRead: &consistent},
	}
	backoff := initialBackoff
	var items []Item

	for attempt := 1; ; attempt++ {
		out, err := t.client.BatchGetItem(ctx, &ddb.BatchGetItemInput{RequestItems: pending})
		if err != nil {
			return nil, NewError("batch get failed", WithCode(ErrRuntime),
				WithContext(map[string]any{"table": t.Name}), WithCause(err))
		}
		chunk, err := unmarshalItems(out.Responses[t.Name])
		if err != nil {
			return nil, err
		}
		items = append(items, chunk...)

		if len(out.UnprocessedKeys) == 0 {
			return items, nil
		}
		if attempt >= maxUnprocessedAttempts {
			return nil, NewError("unprocessed keys remain after retries",
				WithCode(ErrUnprocessed),
				WithContext(map[string]any{"table": t.Name, "attempts": attempt}))
		}
		pending = out.UnprocessedKeys
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
}
