// Package services wires extraction, the ledger and user state into the
// operations the transport layer exposes. All multi-step flows live here so
// handlers stay thin.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"voiceledger/internal/capture"
	"voiceledger/internal/core"
	"voiceledger/internal/extract"
	"voiceledger/internal/ledger"
	"voiceledger/internal/log"
	"voiceledger/internal/notify"
	"voiceledger/internal/state"
)

// User-facing notice texts for classified extraction failures.
const (
	NoticeLimitReached  = "Daily limit reached. Please try again later."
	NoticeNothingCaught = "AI didn't catch that. Please speak clearly."
	NoticeConfused      = "AI is confused. Please speak/scan again."
)

var (
	// ErrBusy rejects a capture while another one is still settling.
	ErrBusy = errors.New("another capture is being processed")
	// ErrNotSetUp means no region profile has been chosen yet.
	ErrNotSetUp = errors.New("user has not completed setup")
)

// Extractor is what the service needs from the extraction client.
type Extractor interface {
	FromVoice(ctx context.Context, clip extract.Media, region core.RegionProfile) (core.Candidate, error)
	FromReceipt(ctx context.Context, image extract.Media) (core.Candidate, error)
}

// LedgerService orchestrates the capture-to-ledger flow and owns the
// user-level state: region profile, inception date, day cursor and the
// busy flag guarding concurrent captures.
type LedgerService struct {
	states    state.Store
	ledger    *ledger.Store
	extractor Extractor
	notices   *notify.Center
	logger    *log.Logger
	now       func() time.Time

	mu     sync.Mutex // guards region and cursor
	region *core.RegionProfile
	cursor *core.Cursor

	busy chan struct{} // len 1 when busy
}

// New builds the service. The now function is injectable for tests; nil
// means time.Now.
func New(states state.Store, lgr *ledger.Store, extractor Extractor, notices *notify.Center, logger *log.Logger, now func() time.Time) *LedgerService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent("ledger-service")
	}
	return &LedgerService{
		states:    states,
		ledger:    lgr,
		extractor: extractor,
		notices:   notices,
		logger:    logger,
		now:       now,
		busy:      make(chan struct{}, 1),
	}
}

// Boot restores persisted user state and the ledger. It reports whether
// this is a first launch, meaning no region profile was ever chosen.
func (s *LedgerService) Boot(ctx context.Context) (firstLaunch bool, err error) {
	if err := s.ledger.Load(ctx); err != nil {
		return false, err
	}

	raw, ok, err := s.states.Get(ctx, state.KeyUserCountry)
	if err != nil {
		return false, fmt.Errorf("load region: %w", err)
	}
	if !ok {
		return true, nil
	}

	// The key holds the serialized profile. Only the ID matters: the
	// profile is resolved against the built-in list so stale serialized
	// fields never leak into the session.
	regionID := raw
	var persisted core.RegionProfile
	if err := json.Unmarshal([]byte(raw), &persisted); err == nil && persisted.ID != "" {
		regionID = persisted.ID
	}
	region, err := core.RegionByID(regionID)
	if err != nil {
		// An unknown persisted region is treated as a fresh install
		// rather than a fatal boot failure.
		s.logger.WarnContext(ctx, "Persisted region unknown, forcing setup", "region", regionID)
		return true, nil
	}
	s.mu.Lock()
	s.region = &region
	s.mu.Unlock()

	start := s.now()
	if raw, ok, err := s.states.Get(ctx, state.KeyStartDate); err != nil {
		return false, fmt.Errorf("load start date: %w", err)
	} else if ok {
		parsed, perr := time.Parse(time.RFC3339Nano, raw)
		if perr != nil {
			return false, fmt.Errorf("decode start date: %w", perr)
		}
		start = parsed
	}
	s.mu.Lock()
	s.cursor = core.NewCursor(start, s.now)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Service booted",
		"region", region.ID,
		"start_date", core.Midnight(start).Format(time.DateOnly),
		"transactions", len(s.ledger.Transactions()))
	return false, nil
}

// SetupUser selects the region profile and stamps the inception date. It is
// called once on first launch; calling it again switches the profile but
// keeps the original inception date.
func (s *LedgerService) SetupUser(ctx context.Context, regionID string) (core.RegionProfile, error) {
	region, err := core.RegionByID(regionID)
	if err != nil {
		return core.RegionProfile{}, err
	}

	encoded, err := json.Marshal(region)
	if err != nil {
		return core.RegionProfile{}, fmt.Errorf("encode region: %w", err)
	}
	if err := s.states.Set(ctx, state.KeyUserCountry, string(encoded)); err != nil {
		return core.RegionProfile{}, fmt.Errorf("persist region: %w", err)
	}

	start := core.Midnight(s.now())
	if raw, ok, err := s.states.Get(ctx, state.KeyStartDate); err != nil {
		return core.RegionProfile{}, fmt.Errorf("load start date: %w", err)
	} else if ok {
		if parsed, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			start = parsed
		}
	} else {
		if err := s.states.Set(ctx, state.KeyStartDate, start.Format(time.RFC3339Nano)); err != nil {
			return core.RegionProfile{}, fmt.Errorf("persist start date: %w", err)
		}
	}

	s.mu.Lock()
	s.region = &region
	s.cursor = core.NewCursor(start, s.now)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "User set up", "region", region.ID)
	return region, nil
}

// Reset wipes the ledger and all persisted user state, returning the
// service to its first-launch state. A capture in flight blocks the reset.
func (s *LedgerService) Reset(ctx context.Context) error {
	select {
	case s.busy <- struct{}{}:
	default:
		return ErrBusy
	}
	defer func() { <-s.busy }()

	if err := s.ledger.Reset(ctx); err != nil {
		return err
	}
	if err := s.states.Delete(ctx, state.KeyUserCountry); err != nil {
		return fmt.Errorf("reset region: %w", err)
	}
	if err := s.states.Delete(ctx, state.KeyStartDate); err != nil {
		return fmt.Errorf("reset start date: %w", err)
	}

	s.mu.Lock()
	s.region = nil
	s.cursor = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "User state reset")
	return nil
}

// Region returns the active profile, or ErrNotSetUp before setup.
func (s *LedgerService) Region() (core.RegionProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.region == nil {
		return core.RegionProfile{}, ErrNotSetUp
	}
	return *s.region, nil
}

// Busy reports whether a capture is currently being processed.
func (s *LedgerService) Busy() bool {
	return len(s.busy) == 1
}

// HandleMedia runs extraction on captured media and appends the resulting
// candidate to the ledger. Exactly one entry is appended on success and
// none on any failure. Classified extraction failures also raise a notice;
// the error is still returned so transports can map it.
func (s *LedgerService) HandleMedia(ctx context.Context, media extract.Media, source capture.Source) (core.Transaction, error) {
	select {
	case s.busy <- struct{}{}:
	default:
		return core.Transaction{}, ErrBusy
	}
	defer func() { <-s.busy }()

	region, err := s.Region()
	if err != nil {
		return core.Transaction{}, err
	}

	var cand core.Candidate
	switch source {
	case capture.SourceReceipt:
		cand, err = s.extractor.FromReceipt(ctx, media)
	default:
		cand, err = s.extractor.FromVoice(ctx, media, region)
	}
	if err != nil {
		s.notices.Show(noticeFor(err))
		s.logger.ErrorContext(ctx, "Extraction failed", "source", source, "error", err)
		return core.Transaction{}, err
	}

	tx, err := s.ledger.Append(ctx, cand)
	if err != nil {
		s.notices.Show(NoticeConfused)
		s.logger.ErrorContext(ctx, "Ledger append failed", "error", err)
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction recorded",
		"id", tx.ID,
		"item", tx.Item,
		"amount_cents", tx.Amount.Cents,
		"type", tx.Type,
		"source", source)
	return tx, nil
}

// DeleteTransaction removes an entry by ID. Deleting an absent ID succeeds.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id int64) error {
	if err := s.ledger.Delete(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "Ledger delete failed", "id", id, "error", err)
		return err
	}
	return nil
}

// ViewDay returns the cursor's day with its entries and totals.
func (s *LedgerService) ViewDay() (time.Time, []core.Transaction, core.DaySummary, error) {
	s.mu.Lock()
	if s.cursor == nil {
		s.mu.Unlock()
		return time.Time{}, nil, core.DaySummary{}, ErrNotSetUp
	}
	day := s.cursor.View()
	s.mu.Unlock()
	return day, s.ledger.Day(day), s.ledger.DailySummary(day), nil
}

// Day returns entries and totals for an arbitrary date.
func (s *LedgerService) Day(date time.Time) ([]core.Transaction, core.DaySummary) {
	return s.ledger.Day(date), s.ledger.DailySummary(date)
}

// Balance returns the signed lifetime balance over the whole ledger.
func (s *LedgerService) Balance() core.Money {
	return s.ledger.LifetimeBalance()
}

// Transactions returns the full sequence, newest first.
func (s *LedgerService) Transactions() []core.Transaction {
	return s.ledger.Transactions()
}

// CursorPrev steps the viewed day back; it reports whether it moved.
func (s *LedgerService) CursorPrev() (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == nil {
		return time.Time{}, false, ErrNotSetUp
	}
	moved := s.cursor.Prev()
	return s.cursor.View(), moved, nil
}

// CursorNext steps the viewed day forward; it reports whether it moved.
func (s *LedgerService) CursorNext() (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == nil {
		return time.Time{}, false, ErrNotSetUp
	}
	moved := s.cursor.Next()
	return s.cursor.View(), moved, nil
}

// CursorToday snaps the viewed day to the current date.
func (s *LedgerService) CursorToday() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == nil {
		return time.Time{}, ErrNotSetUp
	}
	s.cursor.Today()
	return s.cursor.View(), nil
}

// Notice returns the active transient notice, if any.
func (s *LedgerService) Notice() (notify.Notice, bool) {
	return s.notices.Active()
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, extract.ErrLimitReached):
		return NoticeLimitReached
	case errors.Is(err, extract.ErrNothingCaught):
		return NoticeNothingCaught
	default:
		return NoticeConfused
	}
}
