/*
Package dynoro – Table type.

A Table binds a declared hash/range key schema to a DynamoDB client and
exposes the single-item operations. Writes issued while a batch writer or
transaction is active for the calling context are captured by that
coordinator instead of being sent immediately.
*/
package dynoro

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-playground/validator/v10"

	"github.com/dynoro/dynoro/internal/uid"
)

var validate = validator.New()

// Index declares a global secondary index on a table.
type Index struct {
	Name     string `validate:"required"`
	Hash     string `validate:"required"`
	Range    string
	KeysOnly bool
}

// TableParams configures a Table.
type TableParams struct {
	Name   string       `validate:"required"`
	Client DynamoClient `validate:"required"`
	Hash   string       `validate:"required"`
	Range  string

	// Region the table lives in. Transactions pin all their operations to
	// the region of the first table registered.
	Region string

	// HashType / RangeType are the key attribute types, default S.
	HashType  types.ScalarAttributeType
	RangeType types.ScalarAttributeType

	// Attributes lists the non-key attributes a full item carries. Records
	// read from a partially-projected index are marked partial when any of
	// these are absent.
	Attributes []string

	// Generate auto-fills a missing hash key on Save.
	Generate string `validate:"omitempty,oneof=uuid ulid uid"`

	Logger  Logger
	Indexes []Index `validate:"dive"`
}

// Table represents one DynamoDB table with a declared key schema.
type Table struct {
	Name string

	hash     string
	sort     string
	hashType types.ScalarAttributeType
	sortType types.ScalarAttributeType

	region     string
	attributes []string
	generate   string
	indexes    []Index

	client DynamoClient
	log    Logger
}

// NewTable validates params and creates a Table.
func NewTable(params TableParams) (*Table, error) {
	if err := validate.Struct(params); err != nil {
		return nil, NewError("invalid table parameters", WithCode(ErrValidation), WithCause(err))
	}

	t := &Table{
		Name:       params.Name,
		hash:       params.Hash,
		sort:       params.Range,
		hashType:   params.HashType,
		sortType:   params.RangeType,
		region:     params.Region,
		attributes: params.Attributes,
		generate:   params.Generate,
		indexes:    params.Indexes,
		client:     params.Client,
		log:        params.Logger,
	}
	if t.hashType == "" {
		t.hashType = types.ScalarAttributeTypeS
	}
	if t.sortType == "" {
		t.sortType = types.ScalarAttributeTypeS
	}
	if t.log == nil {
		t.log = NewLogger()
	}
	return t, nil
}

// Params carries the optional settings of a single operation.
type Params struct {
	// Condition must hold for a write to apply. Rejected while batching.
	Condition Condition

	// RequireCondition propagates a failed condition as an error instead of
	// swallowing it.
	RequireCondition bool

	ConsistentRead bool

	// Index selects a secondary index for Query / Scan.
	Index string

	Limit int32

	// Filter is applied server-side after the key condition.
	Filter Condition

	// ScanForward orders query results; nil means forward.
	ScanForward *bool

	// Last resumes a paged read from a previous page's LastEvaluatedKey.
	Last Item
}

// ─── Keys ─────────────────────────────────────────────────────────────────────

// key builds the primary key item, validating shape against the schema.
func (t *Table) key(hashKey, rangeKey any) (Item, error) {
	if hashKey == nil {
		return nil, NewError("missing hash key", WithCode(ErrValidation),
			WithContext(map[string]any{"table": t.Name, "attribute": t.hash}))
	}
	if t.sort == "" && rangeKey != nil {
		return nil, NewError("table has no range key", WithCode(ErrValidation),
			WithContext(map[string]any{"table": t.Name}))
	}
	if t.sort != "" && rangeKey == nil {
		return nil, NewError("missing range key", WithCode(ErrValidation),
			WithContext(map[string]any{"table": t.Name, "attribute": t.sort}))
	}
	k := Item{t.hash: Serialize(hashKey)}
	if t.sort != "" {
		k[t.sort] = Serialize(rangeKey)
	}
	return k, nil
}

func (t *Table) generateKey() string {
	switch t.generate {
	case "ulid":
		return uid.New().String()
	case "uid":
		return uid.UID(10)
	default:
		return uid.UUID()
	}
}

// ─── Single-item operations ──────────────────────────────────────────────────

// Get reads one item by primary key. A missing item is a NotFound error.
func (t *Table) Get(ctx context.Context, hashKey, rangeKey any, params *Params) (Item, error) {
	if params == nil {
		params = &Params{}
	}
	key, err := t.key(hashKey, rangeKey)
	if err != nil {
		return nil, err
	}
	mk, err := marshalItem(key)
	if err != nil {
		return nil, err
	}
	out, err := t.client.GetItem(ctx, &ddb.GetItemInput{
		TableName:      &t.Name,
		Key:            mk,
		ConsistentRead: &params.ConsistentRead,
	})
	if err != nil {
		return nil, NewError("get failed", WithCode(ErrRuntime),
			WithContext(map[string]any{"table": t.Name}), WithCause(err))
	}
	if out.Item == nil {
		return nil, NewError("item not found", WithCode(ErrNotFound),
			WithContext(map[string]any{"table": t.Name, "key": key}))
	}
	return unmarshalItem(out.Item)
}

// Save writes one item. While a batch writer is active for this table the
// item is buffered; while a transaction is active it joins the transaction.
func (t *Table) Save(ctx context.Context, item Item, params *Params) error {
	if params == nil {
		params = &Params{}
	}
	ser := serializeMap(item)
	if t.generate != "" && ser[t.hash] == nil {
		ser[t.hash] = t.generateKey()
	}

	if bw := activeBatchWriter(ctx, t.Name); bw != nil {
		if params.Condition != nil {
			return NewError("batched writes do not support conditions",
				WithCode(ErrValidation), WithContext(map[string]any{"table": t.Name, "op": "save"}))
		}
		mi, err := marshalItem(ser)
		if err != nil {
			return err
		}
		return bw.add(ctx, types.WriteRequest{PutRequest: &types.PutRequest{Item: mi}})
	}

	if tx := activeTransaction(ctx); tx != nil {
		put, err := t.buildPut(ser, params.Condition)
		if err != nil {
			return err
		}
		return tx.add(ctx, t, types.TransactWriteItem{Put: put})
	}

	mi, err := marshalItem(ser)
	if err != nil {
		return err
	}
	input := &ddb.PutItemInput{TableName: &t.Name, Item: mi}
	if params.Condition != nil {
		ce, err := TranslateCondition(params.Condition)
		if err != nil {
			return err
		}
		mv, err := marshalValues(ce.Values)
		if err != nil {
			return err
		}
		input.ConditionExpression = &ce.Expression
		input.ExpressionAttributeNames = ce.Names
		input.ExpressionAttributeValues = mv
	}
	_, err = t.client.PutItem(ctx, input)
	return t.writeError(err, "save", params.RequireCondition)
}

// Delete removes one item by primary key. Routing mirrors Save.
func (t *Table) Delete(ctx context.Context, hashKey, rangeKey any, params *Params) error {
	if params == nil {
		params = &Params{}
	}
	key, err := t.key(hashKey, rangeKey)
	if err != nil {
		return err
	}
	mk, err := marshalItem(key)
	if err != nil {
		return err
	}

	if bw := activeBatchWriter(ctx, t.Name); bw != nil {
		if params.Condition != nil {
			return NewError("batched writes do not support conditions",
				WithCode(ErrValidation), WithContext(map[string]any{"table": t.Name, "op": "delete"}))
		}
		return bw.add(ctx, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: mk}})
	}

	if tx := activeTransaction(ctx); tx != nil {
		del, err := t.buildDelete(mk, params.Condition)
		if err != nil {
			return err
		}
		return tx.add(ctx, t, types.TransactWriteItem{Delete: del})
	}

	input := &ddb.DeleteItemInput{TableName: &t.Name, Key: mk}
	if params.Condition != nil {
		ce, err := TranslateCondition(params.Condition)
		if err != nil {
			return err
		}
		mv, err := marshalValues(ce.Values)
		if err != nil {
			return err
		}
		input.ConditionExpression = &ce.Expression
		input.ExpressionAttributeNames = ce.Names
		input.ExpressionAttributeValues = mv
	}
	_, err = t.client.DeleteItem(ctx, input)
	return t.writeError(err, "delete", params.RequireCondition)
}

// Update applies update actions to one item and returns the post-update item.
// Inside a transaction the operation is buffered instead and no readback
// happens; the returned item is nil and a warning is logged.
func (t *Table) Update(ctx context.Context, hashKey, rangeKey any, actions []UpdateAction, params *Params) (Item, error) {
	if params == nil {
		params = &Params{}
	}
	upd, err := TranslateUpdates(actions...)
	if err != nil {
		return nil, err
	}
	key, err := t.key(hashKey, rangeKey)
	if err != nil {
		return nil, err
	}
	mk, err := marshalItem(key)
	if err != nil {
		return nil, err
	}

	names, values := upd.Names, upd.Values
	var condExpr *string
	if params.Condition != nil {
		ce, err := TranslateCondition(params.Condition)
		if err != nil {
			return nil, err
		}
		names, values = mergeExpressionMaps(names, values, ce)
		condExpr = &ce.Expression
	}
	mv, err := marshalValues(values)
	if err != nil {
		return nil, err
	}

	if tx := activeTransaction(ctx); tx != nil {
		t.log.Warn("update readback skipped inside transaction",
			map[string]any{"table": t.Name, "expression": upd.Expression})
		return nil, tx.add(ctx, t, types.TransactWriteItem{Update: &types.Update{
			TableName:                 &t.Name,
			Key:                       mk,
			UpdateExpression:          &upd.Expression,
			ConditionExpression:       condExpr,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: mv,
		}})
	}

	input := &ddb.UpdateItemInput{
		TableName:                 &t.Name,
		Key:                       mk,
		UpdateExpression:          &upd.Expression,
		ConditionExpression:       condExpr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: mv,
		ReturnValues:              types.ReturnValueAllNew,
	}
	out, err := t.client.UpdateItem(ctx, input)
	if err != nil {
		return nil, t.writeError(err, "update", params.RequireCondition)
	}
	if out.Attributes == nil {
		return Item{}, nil
	}
	return unmarshalItem(out.Attributes)
}

// writeError maps a store write error to the package taxonomy. A failed
// condition is swallowed unless the caller required it.
func (t *Table) writeError(err error, op string, requireCondition bool) error {
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if requireCondition {
			return NewError("condition failed on "+op, WithCode(ErrCondition),
				WithContext(map[string]any{"table": t.Name, "op": op}), WithCause(err))
		}
		t.log.Trace("condition failed, ignored", map[string]any{"table": t.Name, "op": op})
		return nil
	}
	return NewError(op+" failed", WithCode(ErrRuntime),
		WithContext(map[string]any{"table": t.Name, "op": op}), WithCause(err))
}

// ─── Transaction item builders ───────────────────────────────────────────────

func (t *Table) buildPut(item Item, cond Condition) (*types.Put, error) {
	mi, err := marshalItem(item)
	if err != nil {
		return nil, err
	}
	put := &types.Put{TableName: &t.Name, Item: mi}
	if cond != nil {
		ce, err := TranslateCondition(cond)
		if err != nil {
			return nil, err
		}
		mv, err := marshalValues(ce.Values)
		if err != nil {
			return nil, err
		}
		put.ConditionExpression = &ce.Expression
		put.ExpressionAttributeNames = ce.Names
		put.ExpressionAttributeValues = mv
	}
	return put, nil
}

func (t *Table) buildDelete(key map[string]types.AttributeValue, cond Condition) (*types.Delete, error) {
	del := &types.Delete{TableName: &t.Name, Key: key}
	if cond != nil {
		ce, err := TranslateCondition(cond)
		if err != nil {
			return nil, err
		}
		mv, err := marshalValues(ce.Values)
		if err != nil {
			return nil, err
		}
		del.ConditionExpression = &ce.Expression
		del.ExpressionAttributeNames = ce.Names
		del.ExpressionAttributeValues = mv
	}
	return del, nil
}

// ─── DDL ──────────────────────────────────────────────────────────────────────

// CreateTable creates the table with its declared keys and indexes, billed
// on demand.
func (t *Table) CreateTable(ctx context.Context) error {
	attrTypes := map[string]types.ScalarAttributeType{t.hash: t.hashType}
	keySchema := []types.KeySchemaElement{{AttributeName: &t.hash, KeyType: types.KeyTypeHash}}
	if t.sort != "" {
		attrTypes[t.sort] = t.sortType
		keySchema = append(keySchema, types.KeySchemaElement{AttributeName: &t.sort, KeyType: types.KeyTypeRange})
	}

	var gsis []types.GlobalSecondaryIndex
	for _, idx := range t.indexes {
		keys := []types.KeySchemaElement{{AttributeName: aws.String(idx.Hash), KeyType: types.KeyTypeHash}}
		if _, ok := attrTypes[idx.Hash]; !ok {
			attrTypes[idx.Hash] = types.ScalarAttributeTypeS
		}
		if idx.Range != "" {
			keys = append(keys, types.KeySchemaElement{AttributeName: aws.String(idx.Range), KeyType: types.KeyTypeRange})
			if _, ok := attrTypes[idx.Range]; !ok {
				attrTypes[idx.Range] = types.ScalarAttributeTypeS
			}
		}
		projection := types.ProjectionTypeAll
		if idx.KeysOnly {
			projection = types.ProjectionTypeKeysOnly
		}
		gsis = append(gsis, types.GlobalSecondaryIndex{
			IndexName:  aws.String(idx.Name),
			KeySchema:  keys,
			Projection: &types.Projection{ProjectionType: projection},
		})
	}

	var attrDefs []types.AttributeDefinition
	for name, at := range attrTypes {
		attrDefs = append(attrDefs, types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: at,
		})
	}

	input := &ddb.CreateTableInput{
		TableName:            &t.Name,
		AttributeDefinitions: attrDefs,
		KeySchema:            keySchema,
		BillingMode:          types.BillingModePayPerRequest,
	}
	if len(gsis) > 0 {
		input.GlobalSecondaryIndexes = gsis
	}
	if _, err := t.client.CreateTable(ctx, input); err != nil {
		return NewError("create table failed", WithCode(ErrRuntime),
			WithContext(map[string]any{"table": t.Name}), WithCause(err))
	}
	return nil
}

// DescribeTable returns the raw table description.
func (t *Table) DescribeTable(ctx context.Context) (*types.TableDescription, error) {
	out, err := t.client.DescribeTable(ctx, &ddb.DescribeTableInput{TableName: &t.Name})
	if err != nil {
		return nil, NewError("describe table failed", WithCode(ErrRuntime),
			WithContext(map[string]any{"table": t.Name}), WithCause(err))
	}
	return out.Table, nil
}

// Exists reports whether the table is present in the region.
func (t *Table) Exists(ctx context.Context) (bool, error) {
	out, err := t.client.ListTables(ctx, &ddb.ListTablesInput{})
	if err != nil {
		return false, NewError("list tables failed", WithCode(ErrRuntime), WithCause(err))
	}
	for _, name := range out.TableNames {
		if name == t.Name {
			return true, nil
		}
	}
	return false, nil
}

// WaitUntilActive polls the table description until the table is active,
// giving up after 30 seconds.
func (t *Table) WaitUntilActive(ctx context.Context) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		desc, err := t.DescribeTable(ctx)
		if err == nil && desc != nil && desc.TableStatus == types.TableStatusActive {
			return nil
		}
		if time.Now().After(deadline) {
			return NewError("table did not become active", WithCode(ErrRuntime),
				WithContext(map[string]any{"table": t.Name}))
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
