package repos_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/repos"
	"storefront/internal/repos/repotest"
)

func insertOrderNumber(t *testing.T, db *sqlx.DB, number string) {
	t.Helper()
	_, err := db.Exec(db.Rebind(`
		INSERT INTO orders(id, order_number, cart_id, email, ship_name, ship_street, ship_city, ship_state,
		  ship_postal, ship_country, subtotal, total, payment_ref, created_at)
		VALUES(?, ?, 'c', 'a@b.co', 'n', 's', 'c', 's', 'p', 'US', 0, 0, ?, ?)`),
		uuid.NewString(), number, uuid.NewString(), time.Now().UTC())
	require.NoError(t, err)
}

func nextNumber(t *testing.T, store *repos.Store, seq *repos.OrderSequencer, commit bool) string {
	t.Helper()
	got, err := allocate(store, seq, commit)
	require.NoError(t, err)
	return got
}

func allocate(store *repos.Store, seq *repos.OrderSequencer, commit bool) (string, error) {
	var got string
	err := store.WithTransaction(context.Background(), func(ctx context.Context, tx *sqlx.Tx) error {
		n, err := seq.Next(ctx, tx)
		if err != nil {
			return err
		}
		got = n
		if commit {
			_, err = tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO orders(id, order_number, cart_id, email, ship_name, ship_street, ship_city, ship_state,
				  ship_postal, ship_country, subtotal, total, payment_ref, created_at)
				VALUES(?, ?, 'c', 'a@b.co', 'n', 's', 'c', 's', 'p', 'US', 0, 0, ?, ?)`),
				uuid.NewString(), n, uuid.NewString(), time.Now().UTC())
		}
		return err
	})
	return got, err
}

func TestFormatAndParseOrderNumber(t *testing.T) {
	assert.Equal(t, "ORD-000001", repos.FormatOrderNumber(1))
	assert.Equal(t, "ORD-999999", repos.FormatOrderNumber(999999))
	assert.Equal(t, "ORD-1000000", repos.FormatOrderNumber(1000000))

	n, ok := repos.ParseOrderNumber("ORD-000042")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)
	n, ok = repos.ParseOrderNumber("ORD-1000001")
	assert.True(t, ok)
	assert.Equal(t, int64(1000001), n)

	for _, bad := range []string{"", "ORD-", "ORD-abc", "INV-000001", "ORD--1"} {
		_, ok := repos.ParseOrderNumber(bad)
		assert.False(t, ok, bad)
	}
}

func TestSequencerStartsAtOneAndIncrements(t *testing.T) {
	db := repotest.Open(t)
	store := repotest.Store(db)
	seq := repos.NewOrderSequencer(10 * time.Second)

	assert.Equal(t, "ORD-000001", nextNumber(t, store, seq, true))
	assert.Equal(t, "ORD-000002", nextNumber(t, store, seq, true))
	// an allocation that is rolled back leaves no gap
	assert.Equal(t, "ORD-000003", nextNumber(t, store, seq, false))
	assert.Equal(t, "ORD-000003", nextNumber(t, store, seq, true))
}

func TestSequencerGrowsPastSixDigits(t *testing.T) {
	db := repotest.Open(t)
	store := repotest.Store(db)
	seq := repos.NewOrderSequencer(10 * time.Second)

	insertOrderNumber(t, db, "ORD-999998")
	insertOrderNumber(t, db, "ORD-999999")
	assert.Equal(t, "ORD-1000000", nextNumber(t, store, seq, true))
	// "ORD-999999" sorts after "ORD-1000000" as text; the scan must still find the larger number
	assert.Equal(t, "ORD-1000001", nextNumber(t, store, seq, true))
}

func TestSequencerRecreatesMissingLockRow(t *testing.T) {
	db := repotest.Open(t)
	_, err := db.Exec(`DELETE FROM sequence_locks`)
	require.NoError(t, err)

	got := nextNumber(t, repotest.Store(db), repos.NewOrderSequencer(time.Second), true)
	assert.Equal(t, "ORD-000001", got)
	assert.Equal(t, 1, repotest.Count(t, db, `SELECT COUNT(*) FROM sequence_locks WHERE name = 'order_number'`))
}

func TestSequencerConcurrentAllocationsAreUnique(t *testing.T) {
	db := repotest.Open(t)
	store := repotest.Store(db)
	seq := repos.NewOrderSequencer(10 * time.Second)

	const workers = 12
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := allocate(store, seq, true)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			seen[n] = true
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, seen, workers)
	for i := int64(1); i <= workers; i++ {
		assert.True(t, seen[repos.FormatOrderNumber(i)], "missing %s", repos.FormatOrderNumber(i))
	}
}

func TestSequencerTimeout(t *testing.T) {
	db := repotest.Open(t)
	store := repotest.Store(db)
	seq := repos.NewOrderSequencer(time.Nanosecond)

	err := store.WithTransaction(context.Background(), func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := seq.Next(ctx, tx)
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSequencingTimeout), "got %v", err)
	assert.True(t, domain.IsRetryable(err))
}
