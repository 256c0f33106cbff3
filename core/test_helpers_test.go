package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	encoded := base64.StdEncoding.EncodeToString(plaintext)
	return []byte("enc:" + encoded), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := strings.TrimSpace(string(ciphertext))
	if value == "" || !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
	if err != nil {
		return nil, fmt.Errorf("test secret provider: decode ciphertext: %w", err)
	}
	return decoded, nil
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type metricSample struct {
	name  string
	value float64
	tags  map[string]string
}

type recordingMetrics struct {
	mu         sync.Mutex
	counters   []metricSample
	histograms []metricSample
}

func (r *recordingMetrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, metricSample{name: name, value: float64(value), tags: cloneTags(tags)})
}

func (r *recordingMetrics) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms = append(r.histograms, metricSample{name: name, value: value, tags: cloneTags(tags)})
}

func (r *recordingMetrics) countersNamed(name string) []metricSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []metricSample
	for _, sample := range r.counters {
		if sample.name == name {
			out = append(out, sample)
		}
	}
	return out
}

func (r *recordingMetrics) histogramsNamed(name string) []metricSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []metricSample
	for _, sample := range r.histograms {
		if sample.name == name {
			out = append(out, sample)
		}
	}
	return out
}

// memoryIntegrationStore mirrors the SQL store contract: Get returns
// soft-deleted rows, only List hides them, Delete reports missing rows
// through ErrIntegrationNotFound.
type memoryIntegrationStore struct {
	mu   sync.Mutex
	next int
	seq  map[string]int
	byID map[string]Integration
}

func newMemoryIntegrationStore() *memoryIntegrationStore {
	return &memoryIntegrationStore{
		seq:  map[string]int{},
		byID: map[string]Integration{},
	}
}

func (s *memoryIntegrationStore) Create(_ context.Context, in CreateIntegrationInput) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(in.WorkspaceID) == "" {
		return Integration{}, fmt.Errorf("workspace id is required")
	}
	if strings.TrimSpace(in.Type) == "" {
		return Integration{}, fmt.Errorf("integration type is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return Integration{}, fmt.Errorf("integration title is required")
	}
	s.next++
	now := time.Now().UTC()
	record := Integration{
		ID:          fmt.Sprintf("int_%d", s.next),
		WorkspaceID: strings.TrimSpace(in.WorkspaceID),
		Type:        strings.TrimSpace(in.Type),
		SubType:     strings.TrimSpace(in.SubType),
		Title:       strings.TrimSpace(in.Title),
		Config:      in.Config,
		CreatedBy:   strings.TrimSpace(in.CreatedBy),
		Meta:        copyAnyMap(in.Meta),
		DeleteState: DeleteStateActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.seq[record.ID] = s.next
	s.byID[record.ID] = record
	return record, nil
}

func (s *memoryIntegrationStore) Get(_ context.Context, id string) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	return record, nil
}

func (s *memoryIntegrationStore) Update(_ context.Context, id string, in UpdateIntegrationInput) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	if title := strings.TrimSpace(in.Title); title != "" {
		record.Title = title
	}
	if subType := strings.TrimSpace(in.SubType); subType != "" {
		record.SubType = subType
	}
	if in.Config != "" {
		record.Config = in.Config
	}
	if len(in.Meta) > 0 {
		record.Meta = copyAnyMap(in.Meta)
	}
	record.UpdatedAt = time.Now().UTC()
	s.byID[record.ID] = record
	return record, nil
}

func (s *memoryIntegrationStore) SetDeleteFlag(_ context.Context, id string) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	record.DeleteState = DeleteStateDeleted
	record.UpdatedAt = time.Now().UTC()
	s.byID[record.ID] = record
	return record, nil
}

func (s *memoryIntegrationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id = strings.TrimSpace(id)
	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	delete(s.byID, id)
	delete(s.seq, id)
	return nil
}

func (s *memoryIntegrationStore) List(_ context.Context, filter IntegrationFilter) (IntegrationPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	matched := make([]Integration, 0, len(s.byID))
	for _, record := range s.byID {
		if !record.DeleteState.Active() {
			continue
		}
		if workspaceID := strings.TrimSpace(filter.WorkspaceID); workspaceID != "" && record.WorkspaceID != workspaceID {
			continue
		}
		if integrationType := strings.TrimSpace(filter.Type); integrationType != "" && record.Type != integrationType {
			continue
		}
		if query := strings.TrimSpace(filter.Query); query != "" {
			if !strings.Contains(strings.ToLower(record.Title), strings.ToLower(query)) {
				continue
			}
		}
		matched = append(matched, record)
	}
	sort.Slice(matched, func(i, j int) bool {
		return s.seq[matched[i].ID] > s.seq[matched[j].ID]
	})

	total := len(matched)
	if offset >= len(matched) {
		matched = nil
	} else {
		matched = matched[offset:]
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return IntegrationPage{
		Items:  append([]Integration(nil), matched...),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (s *memoryIntegrationStore) snapshot() map[string]Integration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Integration, len(s.byID))
	for id, record := range s.byID {
		out[id] = record
	}
	return out
}

func (s *memoryIntegrationStore) restore(state map[string]Integration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]Integration, len(state))
	for id, record := range state {
		s.byID[id] = record
	}
}

type memorySourceStore struct {
	mu   sync.Mutex
	next int
	byID map[string]Source
}

func newMemorySourceStore() *memorySourceStore {
	return &memorySourceStore{byID: map[string]Source{}}
}

func (s *memorySourceStore) add(integrationID string, baseID string, alias string, state DeleteState) Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	now := time.Now().UTC()
	record := Source{
		ID:            fmt.Sprintf("src_%d", s.next),
		BaseID:        baseID,
		IntegrationID: integrationID,
		Alias:         alias,
		DeleteState:   state,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.byID[record.ID] = record
	return record
}

func (s *memorySourceStore) Get(_ context.Context, id string) (Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Source{}, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	return record, nil
}

func (s *memorySourceStore) ListActiveByIntegration(_ context.Context, integrationID string) ([]Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Source{}
	for _, record := range s.byID {
		if record.IntegrationID != integrationID || !record.DeleteState.Active() {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memorySourceStore) CountActiveByIntegration(_ context.Context, integrationIDs []string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int, len(integrationIDs))
	for _, id := range integrationIDs {
		counts[id] = 0
	}
	for _, record := range s.byID {
		if !record.DeleteState.Active() {
			continue
		}
		if _, ok := counts[record.IntegrationID]; ok {
			counts[record.IntegrationID]++
		}
	}
	return counts, nil
}

func (s *memorySourceStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id = strings.TrimSpace(id)
	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	delete(s.byID, id)
	return nil
}

func (s *memorySourceStore) snapshot() map[string]Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Source, len(s.byID))
	for id, record := range s.byID {
		out[id] = record
	}
	return out
}

func (s *memorySourceStore) restore(state map[string]Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]Source, len(state))
	for id, record := range state {
		s.byID[id] = record
	}
}

type memoryBaseStore struct {
	mu   sync.Mutex
	next int
	byID map[string]Base
}

func newMemoryBaseStore() *memoryBaseStore {
	return &memoryBaseStore{byID: map[string]Base{}}
}

func (s *memoryBaseStore) add(workspaceID string, title string) Base {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	now := time.Now().UTC()
	record := Base{
		ID:          fmt.Sprintf("base_%d", s.next),
		WorkspaceID: workspaceID,
		Title:       title,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.byID[record.ID] = record
	return record
}

func (s *memoryBaseStore) Get(_ context.Context, id string) (Base, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Base{}, fmt.Errorf("%w: %s", ErrBaseNotFound, id)
	}
	return record, nil
}

func (s *memoryBaseStore) TitlesByIDs(_ context.Context, ids []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	titles := make(map[string]string, len(ids))
	for _, id := range ids {
		if record, ok := s.byID[id]; ok {
			titles[id] = record.Title
		}
	}
	return titles, nil
}

type outboxRecord struct {
	event         LifecycleEvent
	status        string
	attempts      int
	nextAttemptAt time.Time
}

// memoryOutboxStore mirrors the SQL outbox contract: claims hand out
// pending events oldest first with the attempt count riding in event
// metadata, and a retry with a zero next-attempt time parks the event.
type memoryOutboxStore struct {
	mu      sync.Mutex
	records map[string]*outboxRecord
}

func newMemoryOutboxStore() *memoryOutboxStore {
	return &memoryOutboxStore{records: map[string]*outboxRecord{}}
}

func (s *memoryOutboxStore) Enqueue(_ context.Context, event LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	if _, ok := s.records[event.ID]; ok {
		return fmt.Errorf("duplicate event %s", event.ID)
	}
	s.records[event.ID] = &outboxRecord{event: event, status: "pending"}
	return nil
}

func (s *memoryOutboxStore) ClaimBatch(_ context.Context, limit int) ([]LifecycleEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 25
	}
	now := time.Now().UTC()

	claimable := make([]*outboxRecord, 0, len(s.records))
	for _, record := range s.records {
		if record.status != "pending" {
			continue
		}
		if !record.nextAttemptAt.IsZero() && record.nextAttemptAt.After(now) {
			continue
		}
		claimable = append(claimable, record)
	}
	sort.Slice(claimable, func(i, j int) bool {
		return claimable[i].event.OccurredAt.Before(claimable[j].event.OccurredAt)
	})
	if len(claimable) > limit {
		claimable = claimable[:limit]
	}

	out := make([]LifecycleEvent, 0, len(claimable))
	for _, record := range claimable {
		record.status = "claimed"
		event := record.event
		metadata := copyAnyMap(event.Metadata)
		metadata[MetadataKeyOutboxAttempts] = strconv.Itoa(record.attempts)
		event.Metadata = metadata
		out = append(out, event)
	}
	return out, nil
}

func (s *memoryOutboxStore) Ack(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[eventID]
	if !ok {
		return fmt.Errorf("unknown event %s", eventID)
	}
	record.status = "delivered"
	return nil
}

func (s *memoryOutboxStore) Retry(_ context.Context, eventID string, _ error, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[eventID]
	if !ok {
		return fmt.Errorf("unknown event %s", eventID)
	}
	record.attempts++
	if nextAttemptAt.IsZero() {
		record.status = "failed"
		return nil
	}
	record.status = "pending"
	record.nextAttemptAt = nextAttemptAt
	return nil
}

func (s *memoryOutboxStore) statusOf(eventID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[eventID]
	if !ok {
		return ""
	}
	return record.status
}

func (s *memoryOutboxStore) eventsByName(name string) []LifecycleEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []LifecycleEvent{}
	for _, record := range s.records {
		if record.event.Name == name {
			out = append(out, record.event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out
}

func (s *memoryOutboxStore) snapshot() map[string]outboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]outboxRecord, len(s.records))
	for id, record := range s.records {
		out[id] = *record
	}
	return out
}

func (s *memoryOutboxStore) restore(state map[string]outboxRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*outboxRecord, len(state))
	for id, record := range state {
		copied := record
		s.records[id] = &copied
	}
}

// memoryStoreProvider emulates transactional semantics over the memory
// stores: the outermost RunInTx snapshots state and restores it when
// the callback fails, nested calls join the outer scope.
type memoryStoreProvider struct {
	integrations *memoryIntegrationStore
	sources      *memorySourceStore
	bases        *memoryBaseStore
	outbox       *memoryOutboxStore
	depth        int
}

func newMemoryStoreProvider() *memoryStoreProvider {
	return &memoryStoreProvider{
		integrations: newMemoryIntegrationStore(),
		sources:      newMemorySourceStore(),
		bases:        newMemoryBaseStore(),
		outbox:       newMemoryOutboxStore(),
	}
}

func (p *memoryStoreProvider) Integrations() IntegrationStore { return p.integrations }

func (p *memoryStoreProvider) Sources() SourceStore { return p.sources }

func (p *memoryStoreProvider) Bases() BaseStore { return p.bases }

func (p *memoryStoreProvider) Outbox() OutboxStore { return p.outbox }

func (p *memoryStoreProvider) RunInTx(ctx context.Context, fn func(ctx context.Context, tx StoreProvider) error) error {
	if fn == nil {
		return fmt.Errorf("transaction callback is required")
	}
	if p.depth > 0 {
		return fn(ctx, p)
	}

	integrations := p.integrations.snapshot()
	sources := p.sources.snapshot()
	outbox := p.outbox.snapshot()

	p.depth++
	err := fn(ctx, p)
	p.depth--
	if err != nil {
		p.integrations.restore(integrations)
		p.sources.restore(sources)
		p.outbox.restore(outbox)
		return err
	}
	return nil
}

type cachePatch struct {
	sourceID string
	fields   map[string]any
}

type recordingConfigCache struct {
	mu      sync.Mutex
	patches []cachePatch
	drops   []string
	failFor map[string]error
}

func newRecordingConfigCache() *recordingConfigCache {
	return &recordingConfigCache{failFor: map[string]error{}}
}

func (c *recordingConfigCache) failPatch(sourceID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failFor[sourceID] = err
}

func (c *recordingConfigCache) healPatch(sourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failFor, sourceID)
}

func (c *recordingConfigCache) Patch(_ context.Context, sourceID string, fields map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failFor[sourceID]; ok {
		return err
	}
	c.patches = append(c.patches, cachePatch{sourceID: sourceID, fields: copyAnyMap(fields)})
	return nil
}

func (c *recordingConfigCache) Drop(_ context.Context, sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drops = append(c.drops, sourceID)
	return nil
}

func (c *recordingConfigCache) patchedSources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.patches))
	for _, patch := range c.patches {
		out = append(out, patch.sourceID)
	}
	return out
}

// lastPatchFields returns the most recent patch recorded for sourceID,
// or nil when no patch has landed.
func (c *recordingConfigCache) lastPatchFields(sourceID string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.patches) - 1; i >= 0; i-- {
		if c.patches[i].sourceID == sourceID {
			return copyAnyMap(c.patches[i].fields)
		}
	}
	return nil
}

type recordingReleaser struct {
	mu       sync.Mutex
	released []string
}

func (r *recordingReleaser) ReleaseLocal(_ context.Context, sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, sourceID)
}

func (r *recordingReleaser) releasedSources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.released...)
}

type recordingReleaseBus struct {
	mu         sync.Mutex
	workers    []ReleaseCommand
	primary    []ReleaseCommand
	workersErr error
	primaryErr error
}

func (b *recordingReleaseBus) BroadcastToWorkers(_ context.Context, cmd ReleaseCommand) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.workersErr != nil {
		return b.workersErr
	}
	b.workers = append(b.workers, cmd)
	return nil
}

func (b *recordingReleaseBus) SendToPrimary(_ context.Context, cmd ReleaseCommand) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.primaryErr != nil {
		return b.primaryErr
	}
	b.primary = append(b.primary, cmd)
	return nil
}

type recordingEventBus struct {
	mu        sync.Mutex
	published []LifecycleEvent
}

func (b *recordingEventBus) Publish(_ context.Context, event LifecycleEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
	return nil
}

func (b *recordingEventBus) Subscribe(LifecycleEventHandler) {}

func (b *recordingEventBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.published))
	for _, event := range b.published {
		out = append(out, event.Name)
	}
	return out
}

type staticSchemaValidator struct {
	err error
}

func (v staticSchemaValidator) Validate(context.Context, string, map[string]any) error {
	return v.err
}

// serviceFixture bundles a service with every collaborator the tests
// inspect afterwards.
type serviceFixture struct {
	service  *Service
	provider *memoryStoreProvider
	cache    *recordingConfigCache
	releaser *recordingReleaser
	bus      *recordingReleaseBus
	events   *recordingEventBus
}

func newServiceFixture(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, extra ...Option) *serviceFixture {
	t.Helper()
	fixture := &serviceFixture{
		provider: newMemoryStoreProvider(),
		cache:    newRecordingConfigCache(),
		releaser: &recordingReleaser{},
		bus:      &recordingReleaseBus{},
		events:   &recordingEventBus{},
	}
	opts := []Option{
		WithLogger(stubLogger{}),
		WithSecretProvider(testSecretProvider{}),
		WithStoreProvider(fixture.provider),
		WithSourceConfigCache(fixture.cache),
		WithConnectionReleaser(fixture.releaser),
		WithReleaseBus(fixture.bus),
		WithLifecycleEventBus(fixture.events),
	}
	opts = append(opts, extra...)
	service, err := NewService(Config{}, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fixture.service = service
	return fixture
}

func mustCreateIntegration(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, fixture *serviceFixture, req CreateIntegrationRequest) Integration {
	t.Helper()
	integration, err := fixture.service.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create integration: %v", err)
	}
	return integration
}
