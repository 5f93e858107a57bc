package syncqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
)

type memQueue struct {
	mu     sync.Mutex
	items  map[string]*models.QueueItem
	failed map[string]*models.QueueItem
}

func newMemQueue() *memQueue {
	return &memQueue{
		items:  make(map[string]*models.QueueItem),
		failed: make(map[string]*models.QueueItem),
	}
}

func (m *memQueue) Enqueue(ctx context.Context, item *models.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *item
	m.items[item.ID] = &copied
	return nil
}

func (m *memQueue) List(ctx context.Context) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.QueueItem
	for _, item := range m.items {
		copied := *item
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *memQueue) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *memQueue) Update(ctx context.Context, item *models.QueueItem) error {
	return m.Enqueue(ctx, item)
}

func (m *memQueue) AddFailed(ctx context.Context, item *models.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *item
	m.failed[item.ID] = &copied
	return nil
}

func (m *memQueue) ListFailed(ctx context.Context) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.QueueItem
	for _, item := range m.failed {
		copied := *item
		result = append(result, &copied)
	}
	return result, nil
}

func (m *memQueue) ClearFailed(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = make(map[string]*models.QueueItem)
	return nil
}

// appendRecorder fakes the sheets service; errs controls per-call failure.
type appendRecorder struct {
	mu      sync.Mutex
	appends int
	err     error
}

func (a *appendRecorder) ReadRange(ctx context.Context, id, rng string) ([][]string, error) {
	return nil, nil
}

func (a *appendRecorder) AppendRows(ctx context.Context, id, tab string, rows [][]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.appends++
	return a.err
}

func (a *appendRecorder) EnsureWeeklyTab(ctx context.Context, id string) (string, error) {
	return "03_04_26", nil
}

func (a *appendRecorder) SheetURL(ctx context.Context, id, tab string) string { return "" }

type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSvc() (*Service, *memQueue, *appendRecorder, *movableClock) {
	queue := newMemQueue()
	sheets := &appendRecorder{}
	clock := &movableClock{now: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)}
	svc := NewService(
		&common.SyncQueueConfig{
			ProcessInterval: time.Minute,
			MaxRetries:      5,
			BaseDelay:       4 * time.Second,
		},
		queue, sheets, clock, arbor.NewLogger(),
	)
	return svc, queue, sheets, clock
}

func sampleRows() []models.ProfileRow {
	return []models.ProfileRow{{Date: "03/04/2026", Name: "Jane Doe", ProfileURL: "https://linkedin.com/in/jane"}}
}

func TestAddRowsThenDeliver(t *testing.T) {
	svc, queue, sheets, _ := newTestSvc()
	ctx := context.Background()

	require.NoError(t, svc.AddRows(ctx, sampleRows(), "wb1", "03_04_26"))

	result, err := svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Pending)
	assert.Equal(t, 1, sheets.appends)
	assert.Empty(t, queue.items, "delivered item not removed from queue")
}

func TestFailureBacksOffExponentially(t *testing.T) {
	svc, queue, sheets, clock := newTestSvc()
	ctx := context.Background()

	require.NoError(t, svc.AddRows(ctx, sampleRows(), "wb1", "03_04_26"))
	sheets.err = fmt.Errorf("http 500")

	// First pass fails and schedules a retry.
	result, err := svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pending)
	assert.Equal(t, 1, sheets.appends)

	// Immediately after, the item is still in backoff (4s * 2^1 = 8s).
	result, err = svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pending, "item retried during backoff")
	assert.Equal(t, 1, sheets.appends, "item retried during backoff")

	// After the backoff elapses the retry happens; now let it succeed.
	clock.Advance(10 * time.Second)
	sheets.err = nil
	result, err = svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced, "retry not delivered")
	assert.Equal(t, 2, sheets.appends)
	assert.Empty(t, queue.items, "delivered item left in queue")
}

func TestExhaustedRetriesDeadLetter(t *testing.T) {
	svc, queue, sheets, clock := newTestSvc()
	ctx := context.Background()

	require.NoError(t, svc.AddRows(ctx, sampleRows(), "wb1", "03_04_26"))
	sheets.err = fmt.Errorf("permission denied")

	for i := 0; i < 5; i++ {
		_, err := svc.ProcessQueue(ctx)
		require.NoError(t, err)
		clock.Advance(time.Hour) // clear any backoff
	}

	assert.Empty(t, queue.items, "exhausted item must leave the active queue")
	failed, err := queue.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1, "unexpected dead-letter state")
	assert.Equal(t, 5, failed[0].RetryCount)

	// RetryFailed returns the rows to the active queue with a clean slate.
	count, err := svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	items, err := queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 0, items[0].RetryCount, "re-queued item not reset")
	assert.Empty(t, items[0].Error, "re-queued item not reset")
	failed, err = queue.ListFailed(ctx)
	require.NoError(t, err)
	assert.Empty(t, failed, "dead-letter bin not cleared after retry")
}
