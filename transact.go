/*
Package dynoro – transaction coordinator.

A TransactionWriter accumulates heterogeneous put / delete / update /
condition-check operations, possibly across tables, and commits them through
the store's native all-or-nothing transaction call. With auto-commit the
buffer flushes in groups; atomicity then holds per committed group only.
*/
package dynoro

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// maxTransactItems is the store ceiling per TransactWriteItems call.
const maxTransactItems = 100

type transactionKey struct{}

// TransactionParams configures a transaction scope.
type TransactionParams struct {
	// AutoCommit flushes the buffer every CommitEvery operations, allowing
	// more than 100 operations in aggregate. Cross-group atomicity is not
	// guaranteed; each committed group is atomic on its own.
	AutoCommit bool

	// CommitEvery is the auto-commit threshold, default and maximum 100.
	CommitEvery int

	Logger Logger
}

// TransactionWriter buffers transaction operations for one region.
type TransactionWriter struct {
	pending     []types.TransactWriteItem
	autoCommit  bool
	commitEvery int

	// pinned from the first registered table
	firstTable string
	region     string
	client     DynamoClient

	submitted int
	log       Logger
}

// activeTransaction returns the transaction bound to this context, or nil.
func activeTransaction(ctx context.Context) *TransactionWriter {
	tx, _ := ctx.Value(transactionKey{}).(*TransactionWriter)
	return tx
}

// WithTransaction runs fn with a transaction active. Writes issued inside fn
// are buffered; on a nil return the remaining buffer commits, on an error
// return it is discarded. At most one coordinator may be active per flow.
func WithTransaction(ctx context.Context, params *TransactionParams, fn func(ctx context.Context) error) error {
	if kind, _ := ctx.Value(coordinatorKindKey{}).(string); kind != "" {
		return NewError("cannot start a transaction inside an active "+kind+" scope",
			WithCode(ErrValidation))
	}
	if params == nil {
		params = &TransactionParams{}
	}
	commitEvery := params.CommitEvery
	if commitEvery == 0 {
		commitEvery = maxTransactItems
	}
	if commitEvery < 0 || commitEvery > maxTransactItems {
		return NewError(fmt.Sprintf("commit threshold must be between 1 and %d", maxTransactItems),
			WithCode(ErrValidation), WithContext(map[string]any{"commitEvery": commitEvery}))
	}
	log := params.Logger
	if log == nil {
		log = NewLogger()
	}

	tx := &TransactionWriter{
		autoCommit:  params.AutoCommit,
		commitEvery: commitEvery,
		log:         log,
	}
	scoped := context.WithValue(ctx, transactionKey{}, tx)
	scoped = context.WithValue(scoped, coordinatorKindKey{}, kindTransaction)

	if err := fn(scoped); err != nil {
		tx.pending = nil
		return err
	}
	return tx.Commit(ctx)
}

// BatchesSubmitted returns the number of physical commit calls made.
func (tx *TransactionWriter) BatchesSubmitted() int { return tx.submitted }

// add registers one operation, pinning the transaction to the first table's
// region and enforcing the item ceiling before anything is sent.
func (tx *TransactionWriter) add(ctx context.Context, t *Table, item types.TransactWriteItem) error {
	if tx.firstTable == "" {
		tx.firstTable = t.Name
		tx.region = t.region
		tx.client = t.client
	} else if t.region != tx.region {
		return NewError("all operations in a transaction must target the same region",
			WithCode(ErrValidation),
			WithContext(map[string]any{
				"table": t.Name, "region": t.region,
				"transactionRegion": tx.region, "firstTable": tx.firstTable,
			}))
	}

	if !tx.autoCommit && len(tx.pending) >= maxTransactItems {
		return NewError(fmt.Sprintf("transaction cannot exceed %d operations", maxTransactItems),
			WithCode(ErrCapacity), WithContext(map[string]any{"table": t.Name}))
	}

	tx.pending = append(tx.pending, item)
	if tx.autoCommit && len(tx.pending) >= tx.commitEvery {
		return tx.Commit(ctx)
	}
	return nil
}

// Commit sends the buffered operations in one atomic call and resets the
// buffer. Committing an empty buffer is a no-op.
func (tx *TransactionWriter) Commit(ctx context.Context) error {
	if len(tx.pending) == 0 {
		return nil
	}
	items := tx.pending
	tx.pending = nil

	_, err := tx.client.TransactWriteItems(ctx, &ddb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			reasons := make([]string, 0, len(tce.CancellationReasons))
			for _, r := range tce.CancellationReasons {
				reasons = append(reasons, fmt.Sprintf("%s: %s",
					aws.ToString(r.Code), aws.ToString(r.Message)))
			}
			return NewError("transaction canceled", WithCode(ErrTransactionCanceled),
				WithContext(map[string]any{"reasons": reasons, "items": len(items)}),
				WithCause(err))
		}
		return NewError("transaction commit failed", WithCode(ErrRuntime),
			WithContext(map[string]any{"items": len(items)}), WithCause(err))
	}

	tx.submitted++
	tx.log.Trace("transaction committed", map[string]any{"items": len(items)})
	return nil
}

// TransactCondition adds a condition check on one item to the active
// transaction; the whole transaction fails unless the condition holds.
func (t *Table) TransactCondition(ctx context.Context, hashKey, rangeKey any, cond Condition) error {
	tx := activeTransaction(ctx)
	if tx == nil {
		return NewError("condition check requires an active transaction",
			WithCode(ErrValidation), WithContext(map[string]any{"table": t.Name}))
	}
	key, err := t.key(hashKey, rangeKey)
	if err != nil {
		return err
	}
	mk, err := marshalItem(key)
	if err != nil {
		return err
	}
	ce, err := TranslateCondition(cond)
	if err != nil {
		return err
	}
	mv, err := marshalValues(ce.Values)
	if err != nil {
		return err
	}
	return tx.add(ctx, t, types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
		TableName:                 &t.Name,
		Key:                       mk,
		ConditionExpression:       &ce.Expression,
		ExpressionAttributeNames:  ce.Names,
		ExpressionAttributeValues: mv,
	}})
}
