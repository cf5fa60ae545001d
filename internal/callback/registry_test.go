package callback

import (
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/stablesend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequests() []models.TransferRequest {
	return []models.TransferRequest{{
		Amount:    decimal.RequireFromString("10"),
		Currency:  "USDC",
		Recipient: "@bob",
	}}
}

func TestTakeConsumesExactlyOnce(t *testing.T) {
	r := NewRegistry(0)
	token := r.Set(42, sampleRequests())

	entry, err := r.Take(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), entry.OwnerID)
	require.Len(t, entry.Requests, 1)

	_, err = r.Take(token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTakeAtMostOnceUnderContention(t *testing.T) {
	r := NewRegistry(0)
	token := r.Set(42, sampleRequests())

	const callers = 32
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Take(token)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrNotFound)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestVerifyOwnerDoesNotMutate(t *testing.T) {
	r := NewRegistry(0)
	token := r.Set(42, sampleRequests())

	assert.NoError(t, r.VerifyOwner(token, 42))
	assert.ErrorIs(t, r.VerifyOwner(token, 7), ErrNotOwner)
	assert.ErrorIs(t, r.VerifyOwner("missing", 42), ErrNotFound)

	// The entry is still there and still consumable.
	assert.Equal(t, 1, r.Len())
	_, err := r.Take(token)
	require.NoError(t, err)
}

func TestEntriesExpire(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	r := NewRegistry(15 * time.Minute).WithClock(func() time.Time { return current })

	token := r.Set(42, sampleRequests())
	assert.NoError(t, r.VerifyOwner(token, 42))

	current = current.Add(15*time.Minute + time.Second)
	assert.ErrorIs(t, r.VerifyOwner(token, 42), ErrNotFound)
	_, err := r.Take(token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetSweepsExpiredEntries(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	r := NewRegistry(time.Minute).WithClock(func() time.Time { return current })

	r.Set(1, sampleRequests())
	r.Set(2, sampleRequests())
	require.Equal(t, 2, r.Len())

	current = current.Add(2 * time.Minute)
	r.Set(3, sampleRequests())
	assert.Equal(t, 1, r.Len())
}
