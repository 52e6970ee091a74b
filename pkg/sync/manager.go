package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	gosync "sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lwgs/searchindex-client/pkg/model"
	"github.com/lwgs/searchindex-client/pkg/store"
)

// SeedState is the lifecycle mode of the singleton full-sync cycle.
type SeedState string

const (
	SeedReady   SeedState = "READY"
	SeedSeeding SeedState = "SEEDING"
	SeedSeeded  SeedState = "SEEDED"
	SeedSending SeedState = "SENDING"
	SeedSent    SeedState = "SENT"
	SeedFailed  SeedState = "FAILED"
)

var ErrIllegalStateTransition = errors.New("sync: illegal full-sync state transition")

// Setting keys under which the cycle survives restarts.
const (
	settingState          = "full.sync.state"
	settingJobID          = "full.sync.job.id"
	settingSeededCount    = "full.sync.messages.seeded"
	settingProcessedCount = "full.sync.messages.processed"
	settingSentCount      = "full.sync.messages.sent"
)

// Counters is a consistent snapshot of the cycle's progress.
type Counters struct {
	Seeded    int64 `json:"seeded"`
	Processed int64 `json:"processed"`
	Sent      int64 `json:"sent"`
}

// StateManager owns the process-wide full-sync lifecycle. Every public
// operation is one critical section over the (state, jobId, counters)
// tuple; the current values are mirrored into Settings so a restart
// resumes the cycle.
type StateManager struct {
	mu       gosync.Mutex
	settings store.SettingRepository
	logger   *zap.Logger

	state     SeedState
	jobID     uuid.UUID
	hasJobID  bool
	seeded    int64
	processed int64
	sent      int64
}

func NewStateManager(settings store.SettingRepository, logger *zap.Logger) *StateManager {
	m := &StateManager{
		settings: settings,
		logger:   logger,
		state:    SeedReady,
	}
	m.restore()
	return m
}

func (m *StateManager) restore() {
	ctx := context.Background()

	if value, ok := m.loadSetting(ctx, settingState); ok {
		m.state = SeedState(value)
	}
	if value, ok := m.loadSetting(ctx, settingJobID); ok {
		if id, err := uuid.Parse(value); err == nil {
			m.jobID = id
			m.hasJobID = true
		}
	}
	m.seeded = m.loadCounter(ctx, settingSeededCount)
	m.processed = m.loadCounter(ctx, settingProcessedCount)
	m.sent = m.loadCounter(ctx, settingSentCount)

	m.logger.Info("full-sync state restored",
		zap.String("state", string(m.state)),
		zap.Bool("has_job_id", m.hasJobID),
	)
}

func (m *StateManager) loadSetting(ctx context.Context, key string) (string, bool) {
	setting, err := m.settings.FindByKey(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("failed to load setting", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return setting.Value, true
}

func (m *StateManager) loadCounter(ctx context.Context, key string) int64 {
	value, ok := m.loadSetting(ctx, key)
	if !ok {
		return 0
	}
	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return count
}

func (m *StateManager) persist(key, value string) {
	ctx := context.Background()
	setting, err := m.settings.FindByKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		setting = &model.Setting{Key: key}
	} else if err != nil {
		m.logger.Warn("failed to read setting", zap.String("key", key), zap.Error(err))
		return
	}
	setting.Value = value
	if err := m.settings.Save(ctx, setting); err != nil {
		m.logger.Warn("failed to persist setting", zap.String("key", key), zap.Error(err))
	}
}

func (m *StateManager) persistLocked() {
	m.persist(settingState, string(m.state))
	if m.hasJobID {
		m.persist(settingJobID, m.jobID.String())
	} else {
		m.persist(settingJobID, "")
	}
	m.persist(settingSeededCount, strconv.FormatInt(m.seeded, 10))
	m.persist(settingProcessedCount, strconv.FormatInt(m.processed, 10))
	m.persist(settingSentCount, strconv.FormatInt(m.sent, 10))
}

func (m *StateManager) transitionLocked(from []SeedState, to SeedState) error {
	for _, state := range from {
		if m.state == state {
			m.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalStateTransition, m.state, to)
}

// StartSeeding opens admission for a fresh cycle: READY -> SEEDING with a
// new job id and reset counters.
func (m *StateManager) StartSeeding() (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transitionLocked([]SeedState{SeedReady}, SeedSeeding); err != nil {
		return uuid.Nil, err
	}
	m.jobID = uuid.New()
	m.hasJobID = true
	m.seeded = 0
	m.processed = 0
	m.sent = 0
	m.persistLocked()
	m.logger.Info("full-sync seeding started", zap.String("job_id", m.jobID.String()))
	return m.jobID, nil
}

// SubmitSeeding closes admission: SEEDING -> SEEDED.
func (m *StateManager) SubmitSeeding() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transitionLocked([]SeedState{SeedSeeding}, SeedSeeded); err != nil {
		return err
	}
	m.persistLocked()
	return nil
}

// FailSeeding aborts an open admission phase: SEEDING -> FAILED.
func (m *StateManager) FailSeeding() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transitionLocked([]SeedState{SeedSeeding}, SeedFailed); err != nil {
		return err
	}
	m.persistLocked()
	return nil
}

// StartSending records the batcher's first outgoing message: SEEDED -> SENDING.
func (m *StateManager) StartSending() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transitionLocked([]SeedState{SeedSeeded}, SeedSending); err != nil {
		return err
	}
	m.persistLocked()
	return nil
}

// FinishSending records that all outgoing messages are dispatched: SENDING -> SENT.
func (m *StateManager) FinishSending() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transitionLocked([]SeedState{SeedSending}, SeedSent); err != nil {
		return err
	}
	m.persistLocked()
	return nil
}

// Fail escalates a processing failure: SEEDED|SENDING -> FAILED.
func (m *StateManager) Fail() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transitionLocked([]SeedState{SeedSeeded, SeedSending}, SeedFailed); err != nil {
		return err
	}
	m.persistLocked()
	return nil
}

// Reset clears the cycle: SENT|FAILED -> READY.
func (m *StateManager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transitionLocked([]SeedState{SeedSent, SeedFailed}, SeedReady); err != nil {
		return err
	}
	m.jobID = uuid.Nil
	m.hasJobID = false
	m.seeded = 0
	m.processed = 0
	m.sent = 0
	m.persistLocked()
	return nil
}

func (m *StateManager) State() SeedState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *StateManager) IsInStateSeeding() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == SeedSeeding
}

// CurrentJobID returns the job id of the cycle, if one is open.
func (m *StateManager) CurrentJobID() (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobID, m.hasJobID
}

func (m *StateManager) IncSeedMessageCounter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeded++
	m.persist(settingSeededCount, strconv.FormatInt(m.seeded, 10))
}

func (m *StateManager) IncProcessedMessageCounter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed++
	m.persist(settingProcessedCount, strconv.FormatInt(m.processed, 10))
}

func (m *StateManager) IncSentMessageCounter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	m.persist(settingSentCount, strconv.FormatInt(m.sent, 10))
}

func (m *StateManager) Counters() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Counters{Seeded: m.seeded, Processed: m.processed, Sent: m.sent}
}
