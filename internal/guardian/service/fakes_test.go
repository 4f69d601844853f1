package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"gorm.io/gorm"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/dto"
)

var (
	errStoreDown = errors.New("connection refused")
	errNotFound  = gorm.ErrRecordNotFound
)

func clockAt() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(evalNow)
	return clk
}

type memJournal struct {
	mu        sync.Mutex
	positions []entity.JournalPosition
	err       error
}

func (m *memJournal) GetOpen(ctx context.Context) ([]entity.JournalPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]entity.JournalPosition, len(m.positions))
	copy(out, m.positions)
	return out, nil
}

// memRiskStore mirrors the upsert and locking rules of the postgres repository.
type memRiskStore struct {
	mu      sync.Mutex
	nextID  uint
	rows    map[uint]*entity.PositionRisk
	alerts  []entity.UrgentAlert
	syncErr map[string]error
	saveErr map[string]error
	ackErr  map[uint]error
	saves   int
}

func newMemRiskStore() *memRiskStore {
	return &memRiskStore{rows: map[uint]*entity.PositionRisk{}, syncErr: map[string]error{}, saveErr: map[string]error{}, ackErr: map[uint]error{}}
}

func (m *memRiskStore) Sync(ctx context.Context, s dto.PositionSync) (*entity.PositionRisk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.syncErr[s.Symbol]; err != nil {
		return nil, err
	}

	var row *entity.PositionRisk
	for _, r := range m.rows {
		if r.Symbol == s.Symbol && r.PositionID == s.PositionID {
			row = r
		}
	}
	if row == nil {
		m.nextID++
		row = &entity.PositionRisk{ID: m.nextID, Symbol: s.Symbol, PositionID: s.PositionID, EntryPrice: s.EntryPrice, CreatedAt: s.SyncedAt}
		m.rows[row.ID] = row
	}

	row.Side = s.Side
	row.Quantity = s.Quantity
	if s.CurrentPrice.Valid {
		row.CurrentPrice = s.CurrentPrice
	}
	if s.PriceUpdatedAt != nil {
		row.PriceUpdatedAt = s.PriceUpdatedAt
	}
	if s.NextEarningsDate != nil {
		row.NextEarningsDate = s.NextEarningsDate
	}
	brokerOwned := row.StopLossType != nil && *row.StopLossType == entity.StopLossBroker
	if s.BrokerStop != nil {
		if !row.StopLossPrice.Valid {
			at := s.SyncedAt
			row.StopLossSetAt = &at
		}
		if !row.StopLossPrice.Valid || brokerOwned {
			row.StopLossPrice.Decimal = *s.BrokerStop
			row.StopLossPrice.Valid = true
			t := entity.StopLossBroker
			row.StopLossType = &t
		}
	} else if s.FeedAvailable && brokerOwned {
		row.StopLossPrice.Valid = false
		row.StopLossType = nil
	}
	row.UpdatedAt = s.SyncedAt

	out := *row
	return &out, nil
}

func (m *memRiskStore) FindByID(ctx context.Context, id uint) (*entity.PositionRisk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, errNotFound
	}
	out := *r
	return &out, nil
}

func (m *memRiskStore) FindBySymbol(ctx context.Context, symbol string) ([]entity.PositionRisk, error) {
	all, _ := m.FindAll(ctx)
	var out []entity.PositionRisk
	for _, r := range all {
		if r.Symbol == symbol {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRiskStore) FindAll(ctx context.Context) ([]entity.PositionRisk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.PositionRisk, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].PositionID < out[j].PositionID
	})
	return out, nil
}

func (m *memRiskStore) SaveOutcome(ctx context.Context, risk *entity.PositionRisk, alert *entity.UrgentAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if err := m.saveErr[risk.Symbol]; err != nil {
		return err
	}
	locked, ok := m.rows[risk.ID]
	if !ok {
		return errNotFound
	}
	if !sameTime(locked.AcknowledgedAt, risk.AcknowledgedAt) {
		if locked.Acknowledged {
			risk.EscalationLevel = locked.EscalationLevel
			if alert != nil {
				alert.Acknowledged = true
				alert.AcknowledgedAt = locked.AcknowledgedAt
				action := entity.ResponseAcknowledged
				alert.ResponseAction = &action
			}
		}
		risk.Acknowledged = locked.Acknowledged
		risk.AcknowledgedAt = locked.AcknowledgedAt
		risk.AcknowledgedReason = locked.AcknowledgedReason
		risk.AcknowledgedSeverity = locked.AcknowledgedSeverity
	}
	saved := *locked
	saved.CurrentDrawdownPct = risk.CurrentDrawdownPct
	saved.CurrentSeverity = risk.CurrentSeverity
	saved.EscalationLevel = risk.EscalationLevel
	saved.MissingStopAlertSent = risk.MissingStopAlertSent
	saved.AlertCount = risk.AlertCount
	saved.LastAlertSent = risk.LastAlertSent
	saved.EpisodeStartedAt = risk.EpisodeStartedAt
	saved.EpisodeSeverity = risk.EpisodeSeverity
	saved.Acknowledged = risk.Acknowledged
	saved.AcknowledgedAt = risk.AcknowledgedAt
	saved.AcknowledgedReason = risk.AcknowledgedReason
	saved.AcknowledgedSeverity = risk.AcknowledgedSeverity
	saved.UpdatedAt = risk.UpdatedAt
	m.rows[risk.ID] = &saved

	if alert != nil {
		a := *alert
		a.ID = uint(len(m.alerts) + 1)
		a.PositionRiskID = risk.ID
		m.alerts = append(m.alerts, a)
	}
	return nil
}

func (m *memRiskStore) Acknowledge(ctx context.Context, ids []uint, reason string, at time.Time) ([]entity.PositionRisk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if _, ok := m.rows[id]; !ok {
			return nil, errNotFound
		}
		if err := m.ackErr[id]; err != nil {
			return nil, err
		}
	}

	out := make([]entity.PositionRisk, 0, len(ids))
	for _, id := range ids {
		r := m.rows[id]
		r.Acknowledged = true
		r.AcknowledgedAt = &at
		r.AcknowledgedReason = &reason
		r.AcknowledgedSeverity = max(r.CurrentSeverity, r.EpisodeSeverity)
		r.EscalationLevel = entity.EscalationNone
		r.UpdatedAt = at
		m.answer(id, entity.ResponseAcknowledged, at)
		out = append(out, *r)
	}
	return out, nil
}

func (m *memRiskStore) SetStopLoss(ctx context.Context, id uint, update dto.StopLossUpdate, at time.Time) (*entity.PositionRisk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, errNotFound
	}
	t := update.Type
	r.StopLossPrice.Decimal = update.Price
	r.StopLossPrice.Valid = true
	r.StopLossType = &t
	r.StopLossPct = update.Pct
	r.StopLossSetAt = &at
	r.EscalationLevel = entity.EscalationNone
	r.MissingStopAlertSent = false
	r.EpisodeStartedAt = nil
	r.EpisodeSeverity = entity.SeverityNone
	r.Acknowledged = false
	r.AcknowledgedSeverity = entity.SeverityNone
	r.UpdatedAt = at
	m.answer(id, entity.ResponseStopLossSet, at)
	out := *r
	return &out, nil
}

func (m *memRiskStore) DeleteClosed(ctx context.Context) (int64, error) {
	return 0, nil
}

func (m *memRiskStore) answer(id uint, action string, at time.Time) {
	for i := range m.alerts {
		if m.alerts[i].PositionRiskID == id && !m.alerts[i].Acknowledged {
			m.alerts[i].Acknowledged = true
			m.alerts[i].AcknowledgedAt = &at
			a := action
			m.alerts[i].ResponseAction = &a
		}
	}
}

func (m *memRiskStore) row(symbol string) entity.PositionRisk {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Symbol == symbol {
			return *r
		}
	}
	return entity.PositionRisk{}
}

func (m *memRiskStore) alertsFor(symbol string) []entity.UrgentAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.UrgentAlert
	for _, a := range m.alerts {
		if a.Symbol == symbol {
			out = append(out, a)
		}
	}
	return out
}

func (m *memRiskStore) FindRecent(ctx context.Context, param dto.GetUrgentAlertsParam) ([]entity.UrgentAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.UrgentAlert
	for i := len(m.alerts) - 1; i >= 0; i-- {
		if param.Symbol == "" || m.alerts[i].Symbol == param.Symbol {
			out = append(out, m.alerts[i])
		}
	}
	if param.Limit > 0 && len(out) > param.Limit {
		out = out[:param.Limit]
	}
	return out, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

type staticFeed struct {
	mu       sync.Mutex
	snapshot dto.FeedSnapshot
	account  dto.AccountState
	err      error
}

func (f *staticFeed) Snapshot(ctx context.Context) (*dto.FeedSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := f.snapshot
	return &s, nil
}

func (f *staticFeed) GetAccountState(ctx context.Context) (*dto.AccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	a := f.account
	return &a, nil
}

func (f *staticFeed) setPrice(symbol string, price float64, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshot.Positions == nil {
		f.snapshot.Positions = map[string]dto.BrokerPosition{}
	}
	f.snapshot.Available = true
	f.snapshot.FetchedAt = at
	f.snapshot.Positions[symbol] = dto.BrokerPosition{Symbol: symbol, Quantity: dec(1), Equity: dec(price), UpdatedAt: &at}
}

// fakeNotifier records Telegram traffic. failN makes the next n sends fail.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	failN    int
	failAll  bool
}

func (n *fakeNotifier) SendMessage(text string) error {
	_, err := n.SendMessageToChat(context.Background(), 0, text)
	return err
}

func (n *fakeNotifier) SendMessageToChat(ctx context.Context, chatID int64, text string) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failAll || n.failN > 0 {
		if n.failN > 0 {
			n.failN--
		}
		return 0, errors.New("telegram: bad gateway")
	}
	n.messages = append(n.messages, text)
	return len(n.messages), nil
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	copy(out, n.messages)
	return out
}

type fakeTwilio struct {
	mu    sync.Mutex
	sms   []string
	calls []string
	err   error
}

func (f *fakeTwilio) SendSMS(ctx context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sms = append(f.sms, body)
	return "SM1", nil
}

func (f *fakeTwilio) MakeCall(ctx context.Context, to, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, message)
	return "CA1", nil
}

func (f *fakeTwilio) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sms), len(f.calls)
}

// scriptedSender fails according to errs, one entry per call, then succeeds.
type scriptedSender struct {
	mu      sync.Mutex
	channel entity.AlertChannel
	errs    []error
	calls   int
	block   chan struct{}
}

func (s *scriptedSender) Channel() entity.AlertChannel {
	return s.channel
}

func (s *scriptedSender) Send(ctx context.Context, message dto.AlertMessage, recipient string) (string, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	block := s.block
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if call <= len(s.errs) && s.errs[call-1] != nil {
		return "", s.errs[call-1]
	}
	return "ref-1", nil
}

func (s *scriptedSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
