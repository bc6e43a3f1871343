package factory

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/chaosroom/internal/audit"
	"github.com/mcoot/chaosroom/internal/catalog"
	"github.com/mcoot/chaosroom/internal/dependencies/mocks"
	"github.com/mcoot/chaosroom/internal/storage/memory"
	"github.com/mcoot/chaosroom/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	MockAudit  *audit.MemoryRecorder
}

// TestStartTime is where the mock clock starts, aligned to a chaos cycle boundary
var TestStartTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	return NewTestAppWithConfig(DefaultConfig())
}

// NewTestAppWithConfig is NewTestApp with custom service settings. Storage,
// audit and clock settings in cfg are ignored.
func NewTestAppWithConfig(cfg Config) *TestApp {
	mockClock := mocks.NewMockClock(TestStartTime)
	mockRandom := mocks.NewMockRandom()
	recorder := audit.NewMemoryRecorder()
	store := memory.New(mockClock)

	cfg.Auth.BcryptCost = bcrypt.MinCost
	cfg.Auth.SuperAdminEmails = append(cfg.Auth.SuperAdminEmails, "root@example.com")
	if cfg.Session.TickInterval == 0 || cfg.Session.TickInterval == time.Second {
		cfg.Session.TickInterval = 10 * time.Millisecond
	}

	app := newWithDependencies(store, recorder, catalog.Default(), mockClock, mockRandom, cfg, testutil.NopLogger())

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		MockAudit:  recorder,
	}
}
