package lending

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"book-circulation/core/queue"
	"book-circulation/core/utils"
	bookModels "book-circulation/feature/books/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func TestDispatcher_SimpleCheckoutScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	books := seedBooks(t, f.db, 1)
	userA, userB := seedUser(t, f.db), seedUser(t, f.db)

	p, err := f.dispatcher.Checkout(ctx, userA, books)
	require.NoError(t, err)
	assert.Equal(t, Partition{ProcessedIDs: books, NotProcessedIDs: []string{}}, p)

	p, err = f.dispatcher.Checkout(ctx, userB, books)
	require.NoError(t, err)
	assert.Equal(t, Partition{ProcessedIDs: []string{}, NotProcessedIDs: books}, p)
}

func TestDispatcher_ThresholdBoundary(t *testing.T) {
	ctx := context.Background()

	t.Run("FourRunInline", func(t *testing.T) {
		f := newFixture(t)
		books := seedBooks(t, f.db, 4)
		user := seedUser(t, f.db)

		p, err := f.dispatcher.Checkout(ctx, user, books)
		require.NoError(t, err)
		assert.ElementsMatch(t, books, p.ProcessedIDs)
		assert.Zero(t, f.executor.submitted.Load())
	})

	t.Run("FiveAreDispatched", func(t *testing.T) {
		f := newFixture(t)
		books := seedBooks(t, f.db, 5)
		user := seedUser(t, f.db)

		p, err := f.dispatcher.Checkout(ctx, user, books)
		require.NoError(t, err)
		assert.ElementsMatch(t, books, p.ProcessedIDs)
		assert.Empty(t, p.NotProcessedIDs)
		assert.Equal(t, int64(5), f.executor.submitted.Load())
	})

	t.Run("DuplicatesCountOnce", func(t *testing.T) {
		f := newFixture(t)
		books := seedBooks(t, f.db, 4)
		user := seedUser(t, f.db)

		raw := append([]string{}, books...)
		raw = append(raw, books[0], books[1])

		p, err := f.dispatcher.Checkout(ctx, user, raw)
		require.NoError(t, err)
		assert.Len(t, p.ProcessedIDs, 4)
		assert.Zero(t, f.executor.submitted.Load())
	})

	t.Run("MalformedDoNotCount", func(t *testing.T) {
		f := newFixture(t)
		books := seedBooks(t, f.db, 4)
		user := seedUser(t, f.db)

		raw := append([]string{"bogus"}, books...)

		p, err := f.dispatcher.Checkout(ctx, user, raw)
		require.NoError(t, err)
		assert.ElementsMatch(t, books, p.ProcessedIDs)
		assert.Equal(t, []string{"bogus"}, p.NotProcessedIDs)
		assert.Zero(t, f.executor.submitted.Load())
	})
}

func TestDispatcher_DispatchedMixedState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	books := seedBooks(t, f.db, 6)
	owner, user := seedUser(t, f.db), seedUser(t, f.db)
	holdBook(t, f.db, books[0], owner)
	holdBook(t, f.db, books[1], owner)

	raw := append([]string{}, books...)
	raw = append(raw, "not-a-uuid", "not-a-uuid", "00000000-0000-0000-0000-000000000000")

	p, err := f.dispatcher.Checkout(ctx, user, raw)
	require.NoError(t, err)

	assert.ElementsMatch(t, books[2:], p.ProcessedIDs)
	assert.ElementsMatch(t, []string{books[0], books[1], "not-a-uuid", "00000000-0000-0000-0000-000000000000"}, p.NotProcessedIDs)
	assert.Equal(t, int64(4), f.executor.submitted.Load(), "only candidates are dispatched")
	assert.Equal(t, owner, *holderOf(t, f.db, books[0]))
}

func TestDispatcher_CanonicalizesIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	books := seedBooks(t, f.db, 1)
	user := seedUser(t, f.db)

	upper := []string{" " + strings.ToUpper(books[0]) + " ", books[0]}

	p, err := f.dispatcher.Checkout(ctx, user, upper)
	require.NoError(t, err)
	assert.Equal(t, []string{books[0]}, p.ProcessedIDs)
	assert.Empty(t, p.NotProcessedIDs)
}

func TestDispatcher_ConcurrentRequestsAreExclusive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	books := seedBooks(t, f.db, 8)
	userA, userB := seedUser(t, f.db), seedUser(t, f.db)

	// Overlap on books[2:6].
	reqA := books[:6]
	reqB := books[2:]

	var (
		wg     sync.WaitGroup
		pA, pB Partition
		eA, eB error
	)
	wg.Add(2)
	go func() { defer wg.Done(); pA, eA = f.dispatcher.Checkout(ctx, userA, reqA) }()
	go func() { defer wg.Done(); pB, eB = f.dispatcher.Checkout(ctx, userB, reqB) }()
	wg.Wait()

	require.NoError(t, eA)
	require.NoError(t, eB)

	for _, id := range pA.ProcessedIDs {
		assert.NotContains(t, pB.ProcessedIDs, id, "%s processed twice", id)
		assert.Equal(t, userA, *holderOf(t, f.db, id))
	}
	for _, id := range pB.ProcessedIDs {
		assert.Equal(t, userB, *holderOf(t, f.db, id))
	}
	assert.Len(t, append(pA.ProcessedIDs, pB.ProcessedIDs...), len(books))
	assert.Equal(t, len(reqA), pA.Len())
	assert.Equal(t, len(reqB), pB.Len())
}

// stallingExecutor answers immediately except for items in stall, whose
// handles never resolve.
type stallingExecutor struct {
	stall map[string]bool
}

type readyHandle struct{ res queue.Result }

func (h readyHandle) Await(context.Context) (queue.Result, error) { return h.res, nil }

type stalledHandle struct{}

func (stalledHandle) Await(ctx context.Context) (queue.Result, error) {
	<-ctx.Done()
	return queue.Result{}, ctx.Err()
}

func (e *stallingExecutor) Submit(_ context.Context, task queue.Task) (queue.Handle, error) {
	if e.stall[task.ItemID] {
		return stalledHandle{}, nil
	}
	return readyHandle{res: queue.Result{ItemID: task.ItemID, Processed: true}}, nil
}

func (e *stallingExecutor) Close() error { return nil }

func TestDispatcher_TimeoutReturnsPartialResults(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	books := seedBooks(t, db, 6)
	user := seedUser(t, db)
	holdBook(t, db, books[5], user)

	exec := &stallingExecutor{stall: map[string]bool{books[3]: true, books[4]: true}}
	d := NewDispatcher(NewController(NewHoldStore(db), nil), exec, 50*time.Millisecond, zap.NewNop())

	_, err := d.Checkout(ctx, user, append(books, "junk"))

	var timeout *DispatchTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ElementsMatch(t, books[3:5], timeout.Pending)
	assert.ElementsMatch(t, books[:3], timeout.Partial.ProcessedIDs)
	assert.ElementsMatch(t, []string{books[5], "junk"}, timeout.Partial.NotProcessedIDs)
	assert.Equal(t, 50*time.Millisecond, timeout.Timeout)
}

func TestDispatcher_CallerCancellationIsNotATimeout(t *testing.T) {
	db := setupDB(t)
	books := seedBooks(t, db, 5)
	user := seedUser(t, db)

	exec := &stallingExecutor{stall: map[string]bool{books[0]: true}}
	d := NewDispatcher(NewController(NewHoldStore(db), nil), exec, time.Minute, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := d.Checkout(ctx, user, books)
	require.Error(t, err)
	var timeout *DispatchTimeoutError
	assert.False(t, errors.As(err, &timeout))
}

type failingExecutor struct {
	submitErr error
	awaitErr  error
}

type failedHandle struct{ err error }

func (h failedHandle) Await(context.Context) (queue.Result, error) { return queue.Result{}, h.err }

func (e *failingExecutor) Submit(context.Context, queue.Task) (queue.Handle, error) {
	if e.submitErr != nil {
		return nil, e.submitErr
	}
	return failedHandle{err: e.awaitErr}, nil
}

func (e *failingExecutor) Close() error { return nil }

func TestDispatcher_ExecutorFailuresAbort(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	books := seedBooks(t, db, 5)
	user := seedUser(t, db)
	controller := NewController(NewHoldStore(db), nil)

	t.Run("Submit", func(t *testing.T) {
		d := NewDispatcher(controller, &failingExecutor{submitErr: queue.ErrClosed}, time.Second, nil)
		_, err := d.Checkout(ctx, user, books)
		assert.ErrorIs(t, err, queue.ErrClosed)
	})

	t.Run("Await", func(t *testing.T) {
		remote := &queue.RemoteError{ItemID: books[0], Message: "store unavailable"}
		d := NewDispatcher(controller, &failingExecutor{awaitErr: remote}, time.Second, nil)
		_, err := d.Checkout(ctx, user, books)
		var got *queue.RemoteError
		assert.ErrorAs(t, err, &got)
	})
}

func TestDispatcher_RecordsSpan(t *testing.T) {
	f := newFixture(t)
	books := seedBooks(t, f.db, 5)
	user := seedUser(t, f.db)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	f.dispatcher.tracer = tp.Tracer("test")

	_, err := f.dispatcher.Checkout(context.Background(), user, books)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "lending.checkout", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("checkout.path", pathDispatched))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("items.processed", 5))
}

func TestNormalizeIDs(t *testing.T) {
	id := utils.NewID()
	valid, malformed := normalizeIDs([]string{id, "x", strings.ToUpper(id), "x", "", "y"})
	assert.Equal(t, []string{id}, valid)
	assert.Equal(t, []string{"x", "", "y"}, malformed)
}

func TestDispatcher_PartitionProperties(t *testing.T) {
	f := newFixture(t)
	books := seedBooks(t, f.db, 8)
	owner, user := seedUser(t, f.db), seedUser(t, f.db)
	pool := append(append([]string{}, books...), "bad-1", "bad-2", "00000000-0000-0000-0000-000000000000")

	rapid.Check(t, func(rt *rapid.T) {
		require.NoError(t, f.db.Model(&bookModels.Book{}).Where("1 = 1").Update("holder_id", nil).Error)

		held := map[string]bool{}
		for _, b := range books {
			if rapid.Bool().Draw(rt, "held") {
				holdBook(t, f.db, b, owner)
				held[b] = true
			}
		}

		req := rapid.SliceOfN(rapid.SampledFrom(pool), 0, 16).Draw(rt, "request")

		p, err := f.dispatcher.Checkout(context.Background(), user, req)
		if err != nil {
			rt.Fatalf("checkout failed: %v", err)
		}

		distinct := map[string]struct{}{}
		for _, r := range req {
			distinct[r] = struct{}{}
		}
		if p.Len() != len(distinct) {
			rt.Fatalf("partition accounts for %d ids, request has %d distinct", p.Len(), len(distinct))
		}

		seen := map[string]struct{}{}
		for _, id := range p.ProcessedIDs {
			if held[id] {
				rt.Fatalf("%s was held but reported processed", id)
			}
			seen[id] = struct{}{}
		}
		for _, id := range p.NotProcessedIDs {
			if _, dup := seen[id]; dup {
				rt.Fatalf("%s in both lists", id)
			}
			seen[id] = struct{}{}
		}
		for id := range distinct {
			if _, ok := seen[id]; !ok {
				rt.Fatalf("%s dropped", id)
			}
		}
	})
}
