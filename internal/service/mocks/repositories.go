package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/repository"
)

// Моки повторяют семантику SQL репозиториев: условные инкременты, первое появление отпечатка,
// полная перезапись агрегата. Наружу всегда отдаются копии.

// MockShareTokenRepository implements repository.ShareTokenRepository for testing
type MockShareTokenRepository struct {
	mu      sync.RWMutex
	tokens  map[int64]*models.ShareToken
	byValue map[string]int64
	nextID  int64
}

func NewMockShareTokenRepository() *MockShareTokenRepository {
	return &MockShareTokenRepository{
		tokens:  make(map[int64]*models.ShareToken),
		byValue: make(map[string]int64),
		nextID:  1,
	}
}

func (m *MockShareTokenRepository) Create(ctx context.Context, token *models.ShareToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byValue[token.Token]; exists {
		return repository.ErrShareTokenExists
	}

	token.ID = m.nextID
	m.nextID++
	stored := *token
	m.tokens[token.ID] = &stored
	m.byValue[token.Token] = token.ID
	return nil
}

func (m *MockShareTokenRepository) GetByToken(ctx context.Context, token string) (*models.ShareToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.byValue[token]
	if !exists {
		return nil, repository.ErrShareTokenNotFound
	}
	st := *m.tokens[id]
	return &st, nil
}

func (m *MockShareTokenRepository) GetByID(ctx context.Context, id int64) (*models.ShareToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, exists := m.tokens[id]
	if !exists {
		return nil, repository.ErrShareTokenNotFound
	}
	out := *st
	return &out, nil
}

func (m *MockShareTokenRepository) ListByTenant(ctx context.Context, tenantID int64) ([]models.ShareToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tokens := []models.ShareToken{}
	for _, st := range m.tokens {
		if st.TenantID == tenantID {
			tokens = append(tokens, *st)
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID > tokens[j].ID })
	return tokens, nil
}

func (m *MockShareTokenRepository) IncrementViews(ctx context.Context, token string, now time.Time) (*models.ShareToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, exists := m.byValue[token]
	if !exists {
		return nil, repository.ErrShareTokenNotFound
	}
	st := m.tokens[id]
	if st.Status(now) != models.TokenValid {
		return nil, repository.ErrShareTokenNotFound
	}

	st.ViewCount++
	viewedAt := now
	st.LastViewedAt = &viewedAt
	out := *st
	return &out, nil
}

func (m *MockShareTokenRepository) Revoke(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, exists := m.tokens[id]
	if !exists {
		return repository.ErrShareTokenNotFound
	}
	st.Revoked = true
	return nil
}

// Seed добавляет токен в обход сервиса
func (m *MockShareTokenRepository) Seed(token *models.ShareToken) *models.ShareToken {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	_ = m.Create(context.Background(), token)
	return token
}

func (m *MockShareTokenRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = make(map[int64]*models.ShareToken)
	m.byValue = make(map[string]int64)
	m.nextID = 1
}

// MockShortlinkRepository implements repository.ShortlinkRepository for testing
type MockShortlinkRepository struct {
	mu     sync.RWMutex
	links  map[int64]*models.Shortlink
	bySlug map[string]int64
	nextID int64
}

func NewMockShortlinkRepository() *MockShortlinkRepository {
	return &MockShortlinkRepository{
		links:  make(map[int64]*models.Shortlink),
		bySlug: make(map[string]int64),
		nextID: 1,
	}
}

func (m *MockShortlinkRepository) Create(ctx context.Context, link *models.Shortlink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bySlug[link.Slug]; exists {
		return repository.ErrSlugExists
	}

	link.ID = m.nextID
	link.Active = true
	m.nextID++
	stored := *link
	m.links[link.ID] = &stored
	m.bySlug[link.Slug] = link.ID
	return nil
}

func (m *MockShortlinkRepository) GetBySlug(ctx context.Context, slug string) (*models.Shortlink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.bySlug[slug]
	if !exists {
		return nil, repository.ErrShortlinkNotFound
	}
	link := *m.links[id]
	return &link, nil
}

func (m *MockShortlinkRepository) IncrementClicks(ctx context.Context, id int64, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.links[id]
	if !exists || !link.Active || link.Expired(now) {
		return 0, repository.ErrShortlinkNotFound
	}

	link.ClickCount++
	clickedAt := now
	link.LastClickedAt = &clickedAt
	return link.ClickCount, nil
}

func (m *MockShortlinkRepository) Deactivate(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.links[id]
	if !exists {
		return repository.ErrShortlinkNotFound
	}
	link.Active = false
	return nil
}

// Snapshot возвращает копии всех ссылок по id
func (m *MockShortlinkRepository) Snapshot() map[int64]models.Shortlink {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64]models.Shortlink, len(m.links))
	for id, link := range m.links {
		out[id] = *link
	}
	return out
}

// seenSet таблица первых появлений отпечатков
type seenSet map[string]struct{}

func (s seenSet) markFirstSeen(ownerKey, fingerprint string) bool {
	key := ownerKey + "|" + fingerprint
	if _, seen := s[key]; seen {
		return false
	}
	s[key] = struct{}{}
	return true
}

// MockClickRepository implements repository.ClickRepository for testing
type MockClickRepository struct {
	mu     sync.RWMutex
	clicks []models.ShortlinkClick
	seen   seenSet
	nextID int64
	err    error
}

func NewMockClickRepository() *MockClickRepository {
	return &MockClickRepository{
		seen:   make(seenSet),
		nextID: 1,
	}
}

func (m *MockClickRepository) RecordClick(ctx context.Context, click *models.ShortlinkClick, ownerKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	click.IsUnique = m.seen.markFirstSeen(ownerKey, click.Fingerprint)
	click.ID = m.nextID
	m.nextID++
	m.clicks = append(m.clicks, *click)
	return nil
}

func (m *MockClickRepository) GetStats(ctx context.Context, shortlinkID int64) (*models.ShortlinkStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.ShortlinkStats{Channels: []models.BreakdownEntry{}}
	byChannel := map[models.Channel]int64{}
	for _, c := range m.clicks {
		if c.ShortlinkID != shortlinkID {
			continue
		}
		stats.RecordedClicks++
		if c.IsUnique {
			stats.UniqueClicks++
		}
		byChannel[c.Channel]++
	}
	for channel, count := range byChannel {
		stats.Channels = append(stats.Channels, models.BreakdownEntry{Key: string(channel), Count: count})
	}
	return stats, nil
}

// SetError заставляет RecordClick возвращать err
func (m *MockClickRepository) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockClickRepository) Clicks() []models.ShortlinkClick {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.ShortlinkClick(nil), m.clicks...)
}

// MockViewRepository implements repository.ViewRepository for testing
type MockViewRepository struct {
	mu     sync.RWMutex
	views  []models.RentcardView
	seen   seenSet
	nextID int64
	err    error
}

func NewMockViewRepository() *MockViewRepository {
	return &MockViewRepository{
		seen:   make(seenSet),
		nextID: 1,
	}
}

func (m *MockViewRepository) RecordView(ctx context.Context, view *models.RentcardView, ownerKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	view.IsUnique = m.seen.markFirstSeen(ownerKey, view.ViewerFingerprint)
	view.ID = m.nextID
	m.nextID++
	m.views = append(m.views, *view)
	return nil
}

// SetError заставляет RecordView возвращать err
func (m *MockViewRepository) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockViewRepository) Views() []models.RentcardView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.RentcardView(nil), m.views...)
}

// MockSessionRepository implements repository.SessionRepository for testing
type MockSessionRepository struct {
	mu       sync.RWMutex
	sessions map[int64]*models.ViewSession
	nextID   int64
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		sessions: make(map[int64]*models.ViewSession),
		nextID:   1,
	}
}

func (m *MockSessionRepository) FindLatest(ctx context.Context, fingerprint string, tenantID int64) (*models.ViewSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *models.ViewSession
	for _, s := range m.sessions {
		if s.SessionFingerprint != fingerprint || s.TenantID != tenantID {
			continue
		}
		if latest == nil || s.EndTime.After(latest.EndTime) || (s.EndTime.Equal(latest.EndTime) && s.ID > latest.ID) {
			latest = s
		}
	}
	if latest == nil {
		return nil, repository.ErrSessionNotFound
	}
	out := *latest
	return &out, nil
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.ViewSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session.ID = m.nextID
	m.nextID++
	stored := *session
	m.sessions[session.ID] = &stored
	return nil
}

func (m *MockSessionRepository) Extend(ctx context.Context, id int64, at time.Time, durationSeconds int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.sessions[id]
	if !exists {
		return repository.ErrSessionNotFound
	}
	if at.After(s.EndTime) {
		s.EndTime = at
	}
	s.TotalViews++
	s.TotalDuration += durationSeconds
	return nil
}

func (m *MockSessionRepository) markConverted(id, interestID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.sessions[id]
	if !exists || s.ConvertedToInterest {
		return repository.ErrSessionAlreadyConverted
	}
	s.ConvertedToInterest = true
	s.InterestID = &interestID
	conversionTime := at
	s.ConversionTime = &conversionTime
	return nil
}

// Sessions возвращает копии сессий в порядке создания
func (m *MockSessionRepository) Sessions() []models.ViewSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ViewSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MockInterestRepository implements repository.InterestRepository for testing.
// CreateConverted помечает сессию в соседнем моке, как транзакция в SQL.
type MockInterestRepository struct {
	mu        sync.RWMutex
	sessions  *MockSessionRepository
	interests map[int64]*models.InterestAnalytics // interest_id -> row
	nextID    int64
	err       error
}

func NewMockInterestRepository(sessions *MockSessionRepository) *MockInterestRepository {
	return &MockInterestRepository{
		sessions:  sessions,
		interests: make(map[int64]*models.InterestAnalytics),
		nextID:    1,
	}
}

func (m *MockInterestRepository) Create(ctx context.Context, ia *models.InterestAnalytics) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkInsert(ia); err != nil {
		return err
	}
	m.insert(ia)
	return nil
}

func (m *MockInterestRepository) CreateConverted(ctx context.Context, ia *models.InterestAnalytics) error {
	if ia.SessionID == nil {
		return m.Create(ctx, ia)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Вставка проверяется до пометки сессии: при ошибке сессия не меняется
	if err := m.checkInsert(ia); err != nil {
		return err
	}
	if err := m.sessions.markConverted(*ia.SessionID, ia.InterestID, ia.CreatedAt); err != nil {
		return err
	}
	m.insert(ia)
	return nil
}

func (m *MockInterestRepository) checkInsert(ia *models.InterestAnalytics) error {
	if m.err != nil {
		return m.err
	}
	if _, exists := m.interests[ia.InterestID]; exists {
		return repository.ErrInterestExists
	}
	return nil
}

func (m *MockInterestRepository) insert(ia *models.InterestAnalytics) {
	ia.ID = m.nextID
	m.nextID++
	if ia.UpdatedAt.IsZero() {
		ia.UpdatedAt = ia.CreatedAt
	}
	stored := *ia
	m.interests[ia.InterestID] = &stored
}

// SetError заставляет вставки возвращать err
func (m *MockInterestRepository) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockInterestRepository) GetByInterestID(ctx context.Context, interestID int64) (*models.InterestAnalytics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ia, exists := m.interests[interestID]
	if !exists {
		return nil, repository.ErrInterestNotFound
	}
	out := *ia
	return &out, nil
}

func (m *MockInterestRepository) UpdateOutcome(ctx context.Context, interestID int64, status models.InterestStatus, responseMinutes int64, now time.Time) (*models.InterestAnalytics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ia, exists := m.interests[interestID]
	if !exists {
		return nil, repository.ErrInterestNotFound
	}
	finalStatus := status
	ia.FinalStatus = &finalStatus
	if ia.LandlordResponseTime == nil {
		minutes := responseMinutes
		ia.LandlordResponseTime = &minutes
	}
	ia.UpdatedAt = now
	out := *ia
	return &out, nil
}

func (m *MockInterestRepository) All() []models.InterestAnalytics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.InterestAnalytics, 0, len(m.interests))
	for _, ia := range m.interests {
		out = append(out, *ia)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MockAggregationRepository implements repository.AggregationRepository for testing.
// Сырые события читаются из соседних моков, как SQL читает их из таблиц.
type MockAggregationRepository struct {
	mu        sync.RWMutex
	links     *MockShortlinkRepository
	clicks    *MockClickRepository
	views     *MockViewRepository
	interests *MockInterestRepository
	rows      map[aggregationKey]*models.AnalyticsAggregation
	nextID    int64
}

type aggregationKey struct {
	entityType  models.EntityType
	entityID    int64
	granularity models.Granularity
	date        int64
}

func NewMockAggregationRepository(
	links *MockShortlinkRepository,
	clicks *MockClickRepository,
	views *MockViewRepository,
	interests *MockInterestRepository,
) *MockAggregationRepository {
	return &MockAggregationRepository{
		links:     links,
		clicks:    clicks,
		views:     views,
		interests: interests,
		rows:      make(map[aggregationKey]*models.AnalyticsAggregation),
		nextID:    1,
	}
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (m *MockAggregationRepository) ListViewFacts(ctx context.Context, entity models.EntityRef, from, to time.Time) ([]models.EventFact, error) {
	facts := []models.EventFact{}

	if entity.Type == models.EntityTenant {
		for _, v := range m.views.Views() {
			if v.TenantID != entity.ID || !inWindow(v.ViewedAt, from, to) {
				continue
			}
			facts = append(facts, models.EventFact{
				Source:     string(v.Source),
				DeviceType: string(v.Metadata.Device.Type),
				Country:    v.Metadata.Location.Country,
				IsUnique:   v.IsUnique,
			})
		}
		return facts, nil
	}

	links := m.links.Snapshot()
	for _, c := range m.clicks.Clicks() {
		link, ok := links[c.ShortlinkID]
		if !ok || !inWindow(c.ClickedAt, from, to) || !matchesEntity(entity, link.LandlordID, link.PropertyID) {
			continue
		}
		facts = append(facts, models.EventFact{
			Source:     string(c.Channel),
			DeviceType: string(c.Device.Type),
			Country:    c.Location.Country,
			IsUnique:   c.IsUnique,
		})
	}
	return facts, nil
}

func matchesEntity(entity models.EntityRef, landlordID, propertyID *int64) bool {
	switch entity.Type {
	case models.EntityLandlord:
		return landlordID != nil && *landlordID == entity.ID
	case models.EntityProperty:
		return propertyID != nil && *propertyID == entity.ID
	}
	return false
}

func (m *MockAggregationRepository) CountInterests(ctx context.Context, entity models.EntityRef, from, to time.Time) (int64, error) {
	var count int64
	for _, ia := range m.interests.All() {
		if !inWindow(ia.CreatedAt, from, to) {
			continue
		}
		if (entity.Type == models.EntityTenant && ia.TenantID == entity.ID) ||
			matchesEntity(entity, ia.LandlordID, ia.PropertyID) {
			count++
		}
	}
	return count, nil
}

func (m *MockAggregationRepository) ListActiveEntities(ctx context.Context, from, to time.Time) ([]models.EntityRef, error) {
	set := map[models.EntityRef]struct{}{}
	add := func(t models.EntityType, id *int64) {
		if id != nil {
			set[models.EntityRef{Type: t, ID: *id}] = struct{}{}
		}
	}

	for _, v := range m.views.Views() {
		if inWindow(v.ViewedAt, from, to) {
			tenantID := v.TenantID
			add(models.EntityTenant, &tenantID)
		}
	}
	links := m.links.Snapshot()
	for _, c := range m.clicks.Clicks() {
		if link, ok := links[c.ShortlinkID]; ok && inWindow(c.ClickedAt, from, to) {
			add(models.EntityLandlord, link.LandlordID)
			add(models.EntityProperty, link.PropertyID)
		}
	}
	for _, ia := range m.interests.All() {
		if inWindow(ia.CreatedAt, from, to) {
			tenantID := ia.TenantID
			add(models.EntityTenant, &tenantID)
			add(models.EntityLandlord, ia.LandlordID)
			add(models.EntityProperty, ia.PropertyID)
		}
	}

	entities := make([]models.EntityRef, 0, len(set))
	for e := range set {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Type != entities[j].Type {
			return entities[i].Type < entities[j].Type
		}
		return entities[i].ID < entities[j].ID
	})
	return entities, nil
}

func (m *MockAggregationRepository) Upsert(ctx context.Context, agg *models.AnalyticsAggregation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := aggregationKey{agg.EntityType, agg.EntityID, agg.AggregationType, agg.Date.Unix()}
	row, exists := m.rows[key]
	if !exists {
		row = &models.AnalyticsAggregation{ID: m.nextID}
		m.nextID++
		m.rows[key] = row
	}

	agg.ID = row.ID
	agg.UpdatedAt = time.Now().UTC()
	*row = *agg
	return nil
}

func (m *MockAggregationRepository) List(ctx context.Context, entity models.EntityRef, granularity models.Granularity, from, to time.Time) ([]models.AnalyticsAggregation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	aggs := []models.AnalyticsAggregation{}
	for _, row := range m.rows {
		if row.EntityType == entity.Type && row.EntityID == entity.ID &&
			row.AggregationType == granularity && inWindow(row.Date, from, to) {
			aggs = append(aggs, *row)
		}
	}
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].Date.Before(aggs[j].Date) })
	return aggs, nil
}

// Count число строк агрегатов
func (m *MockAggregationRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// MockOutboxRepository implements repository.OutboxRepository for testing.
// События хранятся в JSON, как в Redis.
type MockOutboxRepository struct {
	mu      sync.Mutex
	items   [][]byte
	pushErr error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Push(ctx context.Context, event *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pushErr != nil {
		return m.pushErr
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	m.items = append(m.items, data)
	return nil
}

func (m *MockOutboxRepository) Pop(ctx context.Context) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return nil, repository.ErrOutboxEmpty
	}
	data := m.items[0]
	m.items = m.items[1:]

	var event models.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrOutboxCorrupt, err)
	}
	return &event, nil
}

// PushRaw кладёт в очередь произвольные байты
func (m *MockOutboxRepository) PushRaw(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, data)
}

func (m *MockOutboxRepository) Len(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.items)), nil
}

// SetPushError заставляет Push возвращать err
func (m *MockOutboxRepository) SetPushError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushErr = err
}
