/*
Package dynoro – query and scan.
*/
package dynoro

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// sanityPages caps auto-pagination so a runaway query cannot loop forever.
const sanityPages = 1000

// Record is one item read from the table or an index. Partial marks records
// loaded from a keys-only or partially-projected index that are missing
// declared attributes; use LoadFullItems to re-read them in full.
type Record struct {
	Item    Item
	Partial bool
}

// ResultPage is one page of a query or scan.
type ResultPage struct {
	Items            []Record
	LastEvaluatedKey Item
	HasMore          bool
}

// QueryPage runs one query call and returns a single page of results.
func (t *Table) QueryPage(ctx context.Context, keyCond Condition, params *Params) (*ResultPage, error) {
	if params == nil {
		params = &Params{}
	}
	kc, err := buildKeyCondition(keyCond)
	if err != nil {
		return nil, err
	}
	builder := expression.NewBuilder().WithKeyCondition(kc)
	if params.Filter != nil {
		fc, err := buildFilterCondition(params.Filter)
		if err != nil {
			return nil, err
		}
		builder = builder.WithFilter(fc)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, NewError("query expression build failed", WithCode(ErrValidation),
			WithContext(map[string]any{"table": t.Name}), WithCause(err))
	}

	input := &ddb.QueryInput{
		TableName:                 &t.Name,
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            &params.ConsistentRead,
		ScanIndexForward:          params.ScanForward,
	}
	if params.Index != "" {
		input.IndexName = &params.Index
	}
	if params.Limit > 0 {
		input.Limit = &params.Limit
	}
	if params.Last != nil {
		esk, err := marshalItem(params.Last)
		if err != nil {
			return nil, err
		}
		input.ExclusiveStartKey = esk
	}

	out, err := t.client.Query(ctx, input)
	if err != nil {
		return nil, NewError("query failed", WithCode(ErrRuntime),
			WithContext(map[string]any{"table": t.Name, "index": params.Index}), WithCause(err))
	}
	return t.resultPage(out.Items, out.LastEvaluatedKey)
}

// Query runs a query to exhaustion, following continuation tokens.
func (t *Table) Query(ctx context.Context, keyCond Condition, params *Params) ([]Record, error) {
	if params == nil {
		params = &Params{}
	}
	p := *params
	var records []Record
	for page := 0; page < sanityPages; page++ {
		result, err := t.QueryPage(ctx, keyCond, &p)
		if err != nil {
			return nil, err
		}
		records = append(records, result.Items...)
		if !result.HasMore {
			return records, nil
		}
		p.Last = result.LastEvaluatedKey
	}
	return nil, NewError("query exceeded the page sanity limit", WithCode(ErrRuntime),
		WithContext(map[string]any{"table": t.Name, "pages": sanityPages}))
}

// ScanPage runs one scan call and returns a single page of results.
func (t *Table) ScanPage(ctx context.Context, params *Params) (*ResultPage, error) {
	if params == nil {
		params = &Params{}
	}
	input := &ddb.ScanInput{
		TableName:      &t.Name,
		ConsistentRead: &params.ConsistentRead,
	}
	if params.Filter != nil {
		fc, err := buildFilterCondition(params.Filter)
		if err != nil {
			return nil, err
		}
		expr, err := expression.NewBuilder().WithFilter(fc).Build()
		if err != nil {
			return nil, NewError("scan expression build failed", WithCode(ErrValidation),
				WithContext(map[string]any{"table": t.Name}), WithCause(err))
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}
	if params.Index != "" {
		input.IndexName = &params.Index
	}
	if params.Limit > 0 {
		input.Limit = &params.Limit
	}
	if params.Last != nil {
		esk, err := marshalItem(params.Last)
		if err != nil {
			return nil, err
		}
		input.ExclusiveStartKey = esk
	}

	out, err := t.client.Scan(ctx, input)
	if err != nil {
		return nil, NewError("scan failed", WithCode(ErrRuntime),
			WithContext(map[string]any{"table": t.Name, "index": params.Index}), WithCause(err))
	}
	return t.resultPage(out.Items, out.LastEvaluatedKey)
}

// Scan runs a scan to exhaustion, following continuation tokens.
func (t *Table) Scan(ctx context.Context, params *Params) ([]Record, error) {
	if params == nil {
		params = &Params{}
	}
	p := *params
	var records []Record
	for page := 0; page < sanityPages; page++ {
		result, err := t.ScanPage(ctx, &p)
		if err != nil {
			return nil, err
		}
		records = append(records, result.Items...)
		if !result.HasMore {
			return records, nil
		}
		p.Last = result.LastEvaluatedKey
	}
	return nil, NewError("scan exceeded the page sanity limit", WithCode(ErrRuntime),
		WithContext(map[string]any{"table": t.Name, "pages": sanityPages}))
}

// LoadFullItems resolves records to full items, re-reading partial records by
// primary key.
func (t *Table) LoadFullItems(ctx context.Context, records []Record, params *Params) ([]Item, error) {
	items := make([]Item, 0, len(records))
	for _, rec := range records {
		if !rec.Partial {
			items = append(items, rec.Item)
			continue
		}
		var rangeKey any
		if t.sort != "" {
			rangeKey = rec.Item[t.sort]
		}
		full, err := t.Get(ctx, rec.Item[t.hash], rangeKey, params)
		if err != nil {
			return nil, err
		}
		items = append(items, full)
	}
	return items, nil
}

func (t *Table) resultPage(raw []map[string]types.AttributeValue, lastKey map[string]types.AttributeValue) (*ResultPage, error) {
	items, err := unmarshalItems(raw)
	if err != nil {
		return nil, err
	}
	page := &ResultPage{Items: make([]Record, len(items))}
	for i, item := range items {
		page.Items[i] = Record{Item: item, Partial: t.isPartial(item)}
	}
	if len(lastKey) > 0 {
		lek, err := unmarshalItem(lastKey)
		if err != nil {
			return nil, err
		}
		page.LastEvaluatedKey = lek
		page.HasMore = true
	}
	return page, nil
}

// isPartial reports whether a record is missing declared attributes, which
// happens when it was read through a keys-only or partial projection.
func (t *Table) isPartial(item Item) bool {
	for _, attr := range t.attributes {
		if _, ok := item[attr]; !ok {
			return true
		}
	}
	return false
}
