package dynoro

import (
	"context"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// mockClient is an in-memory DynamoClient double. Each operation records its
// inputs; outputs and errors are scripted per test.
type mockClient struct {
	getOutput *ddb.GetItemOutput
	getErr    error
	getCalls  []*ddb.GetItemInput

	putErr   error
	putCalls []*ddb.PutItemInput

	deleteErr   error
	deleteCalls []*ddb.DeleteItemInput

	updateOutput *ddb.UpdateItemOutput
	updateErr    error
	updateCalls  []*ddb.UpdateItemInput

	queryOutputs []*ddb.QueryOutput
	queryCalls   []*ddb.QueryInput

	scanOutputs []*ddb.ScanOutput
	scanCalls   []*ddb.ScanInput

	// unprocessedRounds echoes the request back as unprocessed for the
	// first N BatchWriteItem calls.
	unprocessedRounds int
	batchWriteCalls   []*ddb.BatchWriteItemInput

	batchGetOutputs []*ddb.BatchGetItemOutput
	batchGetCalls   []*ddb.BatchGetItemInput

	transactErr   error
	transactCalls []*ddb.TransactWriteItemsInput

	createCalls   []*ddb.CreateTableInput
	describeOut   *ddb.DescribeTableOutput
	describeCalls int
	tableNames    []string
}

func (m *mockClient) GetItem(ctx context.Context, in *ddb.GetItemInput, _ ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	m.getCalls = append(m.getCalls, in)
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getOutput != nil {
		return m.getOutput, nil
	}
	return &ddb.GetItemOutput{}, nil
}

func (m *mockClient) PutItem(ctx context.Context, in *ddb.PutItemInput, _ ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
	m.putCalls = append(m.putCalls, in)
	if m.putErr != nil {
		return nil, m.putErr
	}
	return &ddb.PutItemOutput{}, nil
}

func (m *mockClient) DeleteItem(ctx context.Context, in *ddb.DeleteItemInput, _ ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error) {
	m.deleteCalls = append(m.deleteCalls, in)
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	return &ddb.DeleteItemOutput{}, nil
}

func (m *mockClient) UpdateItem(ctx context.Context, in *ddb.UpdateItemInput, _ ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
	m.updateCalls = append(m.updateCalls, in)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	if m.updateOutput != nil {
		return m.updateOutput, nil
	}
	return &ddb.UpdateItemOutput{}, nil
}

func (m *mockClient) Query(ctx context.Context, in *ddb.QueryInput, _ ...func(*ddb.Options)) (*ddb.QueryOutput, error) {
	m.queryCalls = append(m.queryCalls, in)
	if n := len(m.queryCalls); n <= len(m.queryOutputs) {
		return m.queryOutputs[n-1], nil
	}
	return &ddb.QueryOutput{}, nil
}

func (m *mockClient) Scan(ctx context.Context, in *ddb.ScanInput, _ ...func(*ddb.Options)) (*ddb.ScanOutput, error) {
	m.scanCalls = append(m.scanCalls, in)
	if n := len(m.scanCalls); n <= len(m.scanOutputs) {
		return m.scanOutputs[n-1], nil
	}
	return &ddb.ScanOutput{}, nil
}

func (m *mockClient) BatchGetItem(ctx context.Context, in *ddb.BatchGetItemInput, _ ...func(*ddb.Options)) (*ddb.BatchGetItemOutput, error) {
	m.batchGetCalls = append(m.batchGetCalls, in)
	if n := len(m.batchGetCalls); n <= len(m.batchGetOutputs) {
		return m.batchGetOutputs[n-1], nil
	}
	return &ddb.BatchGetItemOutput{}, nil
}

func (m *mockClient) BatchWriteItem(ctx context.Context, in *ddb.BatchWriteItemInput, _ ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error) {
	m.batchWriteCalls = append(m.batchWriteCalls, in)
	if m.unprocessedRounds > 0 {
		m.unprocessedRounds--
		return &ddb.BatchWriteItemOutput{UnprocessedItems: in.RequestItems}, nil
	}
	return &ddb.BatchWriteItemOutput{}, nil
}

func (m *mockClient) TransactWriteItems(ctx context.Context, in *ddb.TransactWriteItemsInput, _ ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error) {
	m.transactCalls = append(m.transactCalls, in)
	if m.transactErr != nil {
		return nil, m.transactErr
	}
	return &ddb.TransactWriteItemsOutput{}, nil
}

func (m *mockClient) CreateTable(ctx context.Context, in *ddb.CreateTableInput, _ ...func(*ddb.Options)) (*ddb.CreateTableOutput, error) {
	m.createCalls = append(m.createCalls, in)
	return &ddb.CreateTableOutput{}, nil
}

func (m *mockClient) DescribeTable(ctx context.Context, in *ddb.DescribeTableInput, _ ...func(*ddb.Options)) (*ddb.DescribeTableOutput, error) {
	m.describeCalls++
	if m.describeOut != nil {
		return m.describeOut, nil
	}
	return &ddb.DescribeTableOutput{}, nil
}

func (m *mockClient) ListTables(ctx context.Context, in *ddb.ListTablesInput, _ ...func(*ddb.Options)) (*ddb.ListTablesOutput, error) {
	return &ddb.ListTablesOutput{TableNames: m.tableNames}, nil
}

// newTestTable builds a Table over a fresh mock with quiet logging.
func newTestTable(name, region string) (*Table, *mockClient) {
	mock := &mockClient{}
	table, err := NewTable(TableParams{
		Name:   name,
		Client: mock,
		Hash:   "id",
		Region: region,
		Logger: nopLogger{},
	})
	if err != nil {
		panic(err)
	}
	return table, mock
}
