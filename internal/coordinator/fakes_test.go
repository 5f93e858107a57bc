package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/scheduler"
)

// memStorage is an in-memory StorageManager shared by the coordinator
// tests. All sub-storages operate on the same locked maps.
type memStorage struct {
	mu         sync.Mutex
	getErr     error // injected GetSchedule failure
	schedules  map[string]*models.Schedule
	pending    map[string]*models.PendingSchedule
	executions map[string]*models.ExecutionRecord
	runStates  map[models.RunMode]*models.RunState
	queue      map[string]*models.QueueItem
	failed     map[string]*models.QueueItem
	kv         map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{
		schedules:  make(map[string]*models.Schedule),
		pending:    make(map[string]*models.PendingSchedule),
		executions: make(map[string]*models.ExecutionRecord),
		runStates:  make(map[models.RunMode]*models.RunState),
		queue:      make(map[string]*models.QueueItem),
		failed:     make(map[string]*models.QueueItem),
		kv:         make(map[string]string),
	}
}

func (m *memStorage) ScheduleStorage() interfaces.ScheduleStorage   { return (*memSchedules)(m) }
func (m *memStorage) PendingStorage() interfaces.PendingStorage     { return (*memPending)(m) }
func (m *memStorage) ExecutionStorage() interfaces.ExecutionStorage { return (*memExecutions)(m) }
func (m *memStorage) RunStateStorage() interfaces.RunStateStorage   { return (*memRunStates)(m) }
func (m *memStorage) SyncQueueStorage() interfaces.SyncQueueStorage { return (*memSyncQueue)(m) }
func (m *memStorage) KeyValueStorage() interfaces.KeyValueStorage   { return (*memKV)(m) }
func (m *memStorage) Close() error                                  { return nil }

type memSchedules memStorage

func (m *memSchedules) SaveSchedule(ctx context.Context, s *models.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.schedules[s.ID] = &copied
	return nil
}

func (m *memSchedules) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if s, ok := m.schedules[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (m *memSchedules) GetScheduleBySource(ctx context.Context, source string) (*models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.schedules {
		if s.SourceName == source {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memSchedules) ListSchedules(ctx context.Context) ([]*models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Schedule
	for _, s := range m.schedules {
		copied := *s
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SourceName < result[j].SourceName })
	return result, nil
}

func (m *memSchedules) DeleteSchedule(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return false, nil
	}
	delete(m.schedules, id)
	return true, nil
}

type memPending memStorage

func (m *memPending) Enqueue(ctx context.Context, entry *models.PendingSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[entry.ID]; ok {
		return nil
	}
	copied := *entry
	m.pending[entry.ID] = &copied
	return nil
}

func (m *memPending) List(ctx context.Context) ([]*models.PendingSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.PendingSchedule
	for _, e := range m.pending {
		copied := *e
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].QueuedAt.Before(result[j].QueuedAt) })
	return result, nil
}

func (m *memPending) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, id)
	return nil
}

type memExecutions memStorage

func (m *memExecutions) Append(ctx context.Context, r *models.ExecutionRecord) error {
	return m.Update(ctx, r)
}

func (m *memExecutions) Get(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.executions[id]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, nil
}

func (m *memExecutions) Update(ctx context.Context, r *models.ExecutionRecord) error {
	if r.ID == "" {
		return fmt.Errorf("execution ID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *r
	m.executions[r.ID] = &copied
	return nil
}

func (m *memExecutions) List(ctx context.Context, limit int) ([]*models.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.ExecutionRecord
	for _, r := range m.executions {
		copied := *r
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.After(result[j].StartedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type memRunStates memStorage

func (m *memRunStates) SaveRunState(ctx context.Context, s *models.RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.runStates[s.Mode] = &copied
	return nil
}

func (m *memRunStates) GetRunState(ctx context.Context, mode models.RunMode) (*models.RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.runStates[mode]; ok {
		copied := *s
		return &copied, nil
	}
	return models.NewIdleRunState(mode), nil
}

type memSyncQueue memStorage

func (m *memSyncQueue) Enqueue(ctx context.Context, item *models.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *item
	m.queue[item.ID] = &copied
	return nil
}

func (m *memSyncQueue) List(ctx context.Context) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.QueueItem
	for _, item := range m.queue {
		copied := *item
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *memSyncQueue) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queue, id)
	return nil
}

func (m *memSyncQueue) Update(ctx context.Context, item *models.QueueItem) error {
	return m.Enqueue(ctx, item)
}

func (m *memSyncQueue) AddFailed(ctx context.Context, item *models.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *item
	m.failed[item.ID] = &copied
	return nil
}

func (m *memSyncQueue) ListFailed(ctx context.Context) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.QueueItem
	for _, item := range m.failed {
		copied := *item
		result = append(result, &copied)
	}
	return result, nil
}

func (m *memSyncQueue) ClearFailed(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = make(map[string]*models.QueueItem)
	return nil
}

type memKV memStorage

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kv[key], nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

// testClock pins Now and can be advanced by tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeScraper records scraped searches. An optional onScrape hook runs
// before each search completes; block/release channels gate completion.
type fakeScraper struct {
	mu       sync.Mutex
	scraped  []models.Search
	stopped  bool
	err      error
	profiles int
	onScrape func(search models.Search)
	waitCtx  bool // block until ctx expires and return ctx.Err()
}

func (f *fakeScraper) ScrapeSearch(ctx context.Context, search models.Search, maxPages int, sink interfaces.RowSink) (*models.ScrapeResult, error) {
	f.mu.Lock()
	f.scraped = append(f.scraped, search)
	hook := f.onScrape
	f.mu.Unlock()

	if hook != nil {
		hook(search)
	}
	if f.waitCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.ScrapeResult{TotalProfiles: f.profiles, TotalPages: 1}, nil
}

func (f *fakeScraper) Noise(ctx context.Context) error { return nil }

func (f *fakeScraper) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeScraper) scrapedTitles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	titles := make([]string, len(f.scraped))
	for i, s := range f.scraped {
		titles[i] = s.Title
	}
	return titles
}

// blockingScraper holds each scrape open until released.
type blockingScraper struct {
	fakeScraper
	started chan struct{}
	release chan struct{}
}

func newBlockingScraper() *blockingScraper {
	return &blockingScraper{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (b *blockingScraper) ScrapeSearch(ctx context.Context, search models.Search, maxPages int, sink interfaces.RowSink) (*models.ScrapeResult, error) {
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.fakeScraper.ScrapeSearch(ctx, search, maxPages, sink)
}

// fakeResolver serves canned search lists per source.
type fakeResolver struct {
	searches map[string][]models.Search
	err      error
}

func (f *fakeResolver) SearchesForSources(ctx context.Context, sources []string) (map[string][]models.Search, error) {
	if f.err != nil {
		return nil, f.err
	}
	result := make(map[string][]models.Search)
	for _, source := range sources {
		if list, ok := f.searches[source]; ok {
			result[source] = list
		}
	}
	return result, nil
}

type fakeSheets struct {
	tabName string
}

func (f *fakeSheets) ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]string, error) {
	return nil, nil
}

func (f *fakeSheets) AppendRows(ctx context.Context, spreadsheetID, tabName string, rows [][]string) error {
	return nil
}

func (f *fakeSheets) EnsureWeeklyTab(ctx context.Context, spreadsheetID string) (string, error) {
	return f.tabName, nil
}

func (f *fakeSheets) SheetURL(ctx context.Context, spreadsheetID, tabName string) string {
	return "https://docs.google.com/spreadsheets/d/" + spreadsheetID
}

type fakeTokens struct {
	err error
}

func (f *fakeTokens) AccessToken(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "test-token", nil
}

// recordingNotifier captures emitted events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []models.EventType
}

func (r *recordingNotifier) Notify(ctx context.Context, event models.EventType, payload models.NotificationPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) has(event models.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

type fakeMapper struct {
	workbooks map[string]string
}

func (f *fakeMapper) WorkbookFor(ctx context.Context, sourceName string) (string, error) {
	return f.workbooks[sourceName], nil
}

type nopSink struct{}

func (nopSink) AddRows(ctx context.Context, rows []models.ProfileRow, workbookID, tabName string) error {
	return nil
}

// testEnv bundles a coordinator with its fakes.
type testEnv struct {
	coord    *Coordinator
	storage  *memStorage
	clock    *testClock
	service  *scheduler.Service
	scraper  *fakeScraper
	resolver *fakeResolver
	notifier *recordingNotifier
	tokens   *fakeTokens
	mapper   *fakeMapper
}

func newTestEnv(now time.Time) *testEnv {
	storage := newMemStorage()
	clock := &testClock{now: now}
	logger := arbor.NewLogger()
	service := scheduler.NewService(storage.ScheduleStorage(), clock, logger)
	scraper := &fakeScraper{profiles: 3}
	resolver := &fakeResolver{searches: map[string][]models.Search{}}
	notifier := &recordingNotifier{}
	tokens := &fakeTokens{}
	mapper := &fakeMapper{workbooks: map[string]string{}}

	coord := New(Deps{
		Schedules: service,
		Storage:   storage,
		Clock:     clock,
		Logger:    logger,
		Scraper:   scraper,
		Searches:  resolver,
		Sheets:    &fakeSheets{tabName: "03_04_26"},
		Tokens:    tokens,
		Notifier:  notifier,
		Mapper:    mapper,
		Sink:      nopSink{},
		Scraping: &common.ScraperConfig{
			MaxPages:      1000,
			SearchTimeout: time.Minute,
		},
	})
	coord.syncRuns = true
	coord.delayFn = func(ctx context.Context) {}
	coord.noiseFn = func(ctx context.Context) {}

	return &testEnv{
		coord:    coord,
		storage:  storage,
		clock:    clock,
		service:  service,
		scraper:  scraper,
		resolver: resolver,
		notifier: notifier,
		tokens:   tokens,
		mapper:   mapper,
	}
}

// addSource wires a source end to end: workbook mapping plus n searches.
func (e *testEnv) addSource(source string, searchCount int) {
	e.mapper.workbooks[source] = "wb-" + source
	var searches []models.Search
	for i := 0; i < searchCount; i++ {
		searches = append(searches, models.Search{
			Source: source,
			Title:  fmt.Sprintf("%s search %d", source, i+1),
			URL:    fmt.Sprintf("https://example.com/%s/%d", source, i+1),
		})
	}
	e.resolver.searches[source] = searches
}
