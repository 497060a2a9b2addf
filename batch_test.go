package dynoro

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestBatchWriterFlushCadence(t *testing.T) {
	table, mock := newTestTable("things", "eu-central-1")
	ctx := context.Background()

	var writer *BatchWriter
	err := table.WithBatchWriter(ctx, 10, func(ctx context.Context) error {
		writer = activeBatchWriter(ctx, table.Name)
		for i := 0; i < 25; i++ {
			if err := table.Save(ctx, Item{"id": fmt.Sprintf("item-%d", i)}, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// two full flushes during the scope plus the remainder at exit
	if got := len(mock.batchWriteCalls); got != 3 {
		t.Fatalf("physical submissions = %d, want 3", got)
	}
	if writer.BatchesSubmitted() != 3 {
		t.Fatalf("BatchesSubmitted = %d", writer.BatchesSubmitted())
	}
	sizes := []int{10, 10, 5}
	for i, call := range mock.batchWriteCalls {
		if got := len(call.RequestItems[table.Name]); got != sizes[i] {
			t.Fatalf("submission %d carried %d requests, want %d", i, got, sizes[i])
		}
	}
}

func TestBatchWriterEmptyBufferNoSubmission(t *testing.T) {
	table, mock := newTestTable("things", "eu-central-1")
	err := table.WithBatchWriter(context.Background(), 0, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(mock.batchWriteCalls) != 0 {
		t.Fatalf("empty scope submitted %d batches", len(mock.batchWriteCalls))
	}
}

func TestBatchWriterRejectsConditions(t *testing.T) {
	table, mock := newTestTable("things", "eu-central-1")
	err := table.WithBatchWriter(context.Background(), 0, func(ctx context.Context) error {
		return table.Save(ctx, Item{"id": "a"}, &Params{Condition: A("id").NotExists()})
	})
	if !hasCode(err, ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	if len(mock.putCalls) != 0 || len(mock.batchWriteCalls) != 0 {
		t.Fatal("conditioned save must not reach the store from a batch scope")
	}
}

func TestBatchWriterFlushesOnErrorExit(t *testing.T) {
	table, mock := newTestTable("things", "eu-central-1")
	boom := errors.New("boom")
	err := table.WithBatchWriter(context.Background(), 0, func(ctx context.Context) error {
		if err := table.Save(ctx, Item{"id": "a"}, nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(mock.batchWriteCalls) != 1 {
		t.Fatalf("buffer must still flush on error exit, got %d submissions", len(mock.batchWriteCalls))
	}
}

func TestBatchWriterDeleteCaptured(t *testing.T) {
	table, mock := newTestTable("things", "eu-central-1")
	err := table.WithBatchWriter(context.Background(), 0, func(ctx context.Context) error {
		return table.Delete(ctx, "a", nil, nil)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(mock.deleteCalls) != 0 {
		t.Fatal("delete went direct instead of through the batch")
	}
	reqs := mock.batchWriteCalls[0].RequestItems[table.Name]
	if len(reqs) != 1 || reqs[0].DeleteRequest == nil {
		t.Fatalf("requests = %#v", reqs)
	}
}

func TestBatchWriterUnprocessedRetry(t *testing.T) {
	table, mock := newTestTable("things", "eu-central-1")
	mock.unprocessedRounds = 2
	err := table.WithBatchWriter(context.Background(), 0, func(ctx context.Context) error {
		return table.Save(ctx, Item{"id": "a"}, nil)
	})
	if err != nil {
		t.Fatal(err)
	}
	// initial call plus two retries of the echoed remainder
	if len(mock.batchWriteCalls) != 3 {
		t.Fatalf("calls = %d, want 3", len(mock.batchWriteCalls))
	}
}

func TestBatchWriterUnprocessedExhausted(t *testing.T) {
	table, mock := newTestTable("things", "eu-central-1")
	mock.unprocessedRounds = 100
	err := table.WithBatchWriter(context.Background(), 0, func(ctx context.Context) error {
		return table.Save(ctx, Item{"id": "a"}, nil)
	})
	if !hasCode(err, ErrUnprocessed) {
		t.Fatalf("want unprocessed error, got %v", err)
	}
	if len(mock.batchWriteCalls) != maxUnprocessedAttempts {
		t.Fatalf("calls = %d, want %d", len(mock.batchWriteCalls), maxUnprocessedAttempts)
	}
}

func TestBatchWriterOtherTablePassthrough(t *testing.T) {
	table, _ := newTestTable("things", "eu-central-1")
	other, otherMock := newTestTable("others", "eu-central-1")

	err := table.WithBatchWriter(context.Background(), 0, func(ctx context.Context) error {
		return other.Save(ctx, Item{"id": "x"}, nil)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(otherMock.putCalls) != 1 {
		t.Fatal("write to an unbatched table must go direct")
	}
	if len(otherMock.batchWriteCalls) != 0 {
		t.Fatal("write to an unbatched table must not be captured")
	}
}

func TestBatchWriterInsideTransactionFatal(t *testing.T) {
	table, _ := newTestTable("things", "eu-central-1")
	err := WithTransaction(context.Background(), nil, func(ctx context.Context) error {
		return table.WithBatchWriter(ctx, 0, func(ctx context.Context) error {
			return nil
		})
	})
	if !hasCode(err, ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestBatchGetChunksAndCollects(t *testing.T) {
	table, mock := newTestTable("things", "eu-central-1")
	keys := make([]Key, 150)
	for i := range keys {
		keys[i] = Key{Hash: fmt.Sprintf("k-%d", i)}
	}
	items, err := table.BatchGet(context.Background(), keys, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("mock returns no items, got %d", len(items))
	}
	if len(mock.batchGetCalls) != 2 {
		t.Fatalf("calls = %d, want 2", len(mock.batchGetCalls))
	}
	first := len(mock.batchGetCalls[0].RequestItems[table.Name].Keys)
	second := len(mock.batchGetCalls[1].RequestItems[table.Name].Keys)
	if first != 100 || second != 50 {
		t.Fatalf("chunk sizes = %d, %d", first, second)
	}
}
