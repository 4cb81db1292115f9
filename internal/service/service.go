package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reelguard/reelguard/internal/config"
	"github.com/reelguard/reelguard/internal/models"
	"github.com/reelguard/reelguard/internal/preferences"
	"github.com/reelguard/reelguard/pkg/a11y"
	"github.com/reelguard/reelguard/pkg/classifier"
	"github.com/reelguard/reelguard/pkg/engine"
	"github.com/reelguard/reelguard/pkg/throttle"
)

// Repository is what the service needs from the database
type Repository interface {
	preferences.Store
	ActionWriter
	EnsureDefaults(names []string) (int, error)
	EnabledPackageNames() ([]string, error)
	CreateErrorLog(errorLog *models.ErrorLog) error
	DeleteOldActions(before time.Time) (int64, error)
}

// Status is a point-in-time view of a running service
type Status struct {
	Running   bool                `json:"running"`
	Platform  string              `json:"platform"`
	Available bool                `json:"available"`
	SessionID string              `json:"session_id"`
	Engine    engine.Stats        `json:"engine"`
	Cooldowns []throttle.KeyState `json:"cooldowns"`
	Recorded  uint64              `json:"actions_recorded"`
	Dropped   uint64              `json:"actions_dropped"`
}

type Service struct {
	config   *config.Config
	repo     Repository
	platform a11y.Platform
	engine   *engine.Engine
	recorder *ActionRecorder
	prefs    *preferences.Provider
	logger   *log.Logger

	stopMu   sync.Mutex
	stopChan chan struct{}
	running  atomic.Bool
}

// Option configures a Service
type Option func(*options)

type options struct {
	logger *log.Logger
	clock  throttle.Clock
}

// WithLogger sets the logger shared by the service and its engine
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the cooldown clock, e.g. with a replay's virtual time
func WithClock(c throttle.Clock) Option {
	return func(o *options) { o.clock = c }
}

func NewService(cfg *config.Config, repo Repository, platform a11y.Platform, opts ...Option) *Service {
	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var throttleOpts []throttle.Option
	if o.clock != nil {
		throttleOpts = append(throttleOpts, throttle.WithClock(o.clock))
	}

	recorder := NewActionRecorder(repo, platform.Name(), o.logger)
	registry := classifier.Defaults(classifier.Options{ShortsFastPath: cfg.Engine.ShortsFastPath})
	eng := engine.New(platform, registry,
		throttle.New(cfg.Engine.Cooldown, throttleOpts...),
		engine.WithLogger(o.logger),
		engine.WithRecorder(recorder),
		engine.WithScrollEvents(cfg.Engine.IncludeScrollEvents),
	)

	return &Service{
		config:   cfg,
		repo:     repo,
		platform: platform,
		engine:   eng,
		recorder: recorder,
		prefs:    preferences.NewProvider(repo, cfg.Preferences.RefreshInterval, o.logger),
		logger:   o.logger,
		stopChan: make(chan struct{}),
	}
}

// Start connects the engine and runs the platform loop until it ends, ctx
// is cancelled or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.stopMu.Lock()
	if !s.running.CompareAndSwap(false, true) {
		s.stopMu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.stopMu.Unlock()
	defer s.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		select {
		case <-stop:
			close(stopped)
			cancel()
		case <-runCtx.Done():
		}
	}()

	s.pruneActions()
	tracked := s.initialPackages()
	if err := s.engine.Connect(tracked); err != nil {
		return err
	}
	s.logger.Printf("Starting detection on %s (cooldown %v, session %s)",
		s.platform.Name(), s.config.Engine.Cooldown, s.recorder.SessionID())

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.recorder.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		s.watchPreferences(runCtx, tracked)
	}()
	go func() {
		defer wg.Done()
		s.pollAvailability(runCtx)
	}()

	err := s.platform.Run(runCtx, s.engine.OnEvent)
	cancel()
	wg.Wait()

	select {
	case <-stopped:
		s.logger.Println("Service stopped")
		return nil
	default:
	}
	if ctx.Err() != nil {
		s.logger.Println("Service stopped by context")
		return ctx.Err()
	}
	if err != nil {
		s.engine.OnInterrupt()
		s.storeError("platform", err)
		return fmt.Errorf("platform %s stopped: %w", s.platform.Name(), err)
	}
	s.logger.Printf("Platform %s finished", s.platform.Name())
	return nil
}

// initialPackages seeds defaults on first start and reads the enabled set,
// falling back to the configured defaults when the database is unreadable
func (s *Service) initialPackages() []string {
	n, err := s.repo.EnsureDefaults(s.config.Preferences.DefaultPackages)
	if err != nil {
		s.storeError("preferences", err)
	} else if n > 0 {
		s.logger.Printf("Seeded %d default package(s)", n)
	}

	names, err := s.repo.EnabledPackageNames()
	if err != nil {
		s.storeError("preferences", err)
		return s.config.Preferences.DefaultPackages
	}
	return names
}

// pruneActions applies the configured retention to the action log
func (s *Service) pruneActions() {
	if s.config.Database.Retention <= 0 {
		return
	}
	n, err := s.repo.DeleteOldActions(time.Now().Add(-s.config.Database.Retention))
	if err != nil {
		s.storeError("database", err)
		return
	}
	if n > 0 {
		s.logger.Printf("Removed %d action(s) older than %v", n, s.config.Database.Retention)
	}
}

func (s *Service) watchPreferences(ctx context.Context, initial []string) {
	first := true
	for names := range s.prefs.Packages(ctx) {
		if first {
			first = false
			if equalNames(names, initial) {
				continue
			}
		}
		if err := s.engine.UpdateTrackedPackages(names); err != nil {
			s.storeError("preferences", err)
			continue
		}
		s.logger.Printf("Tracked packages updated: %v", names)
	}
}

func (s *Service) pollAvailability(ctx context.Context) {
	ticker := time.NewTicker(s.config.Platform.AvailabilityPoll)
	defer ticker.Stop()

	available := s.platform.IsAvailable()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.platform.IsAvailable()
			if now == available {
				continue
			}
			available = now
			if now {
				s.logger.Printf("Platform %s is available again", s.platform.Name())
			} else {
				s.logger.Printf("Platform %s became unavailable", s.platform.Name())
			}
		}
	}
}

// Stop ends the current Start. The service can be started again afterwards;
// a Stop with nothing running has no effect on the next Start.
func (s *Service) Stop() {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
}

func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// Engine exposes the detection engine
func (s *Service) Engine() *engine.Engine {
	return s.engine
}

// Status returns counters and cooldown state
func (s *Service) Status() Status {
	return Status{
		Running:   s.IsRunning(),
		Platform:  s.platform.Name(),
		Available: s.platform.IsAvailable(),
		SessionID: s.recorder.SessionID(),
		Engine:    s.engine.Stats(),
		Cooldowns: s.engine.Throttler().Snapshot(),
		Recorded:  s.recorder.Written(),
		Dropped:   s.recorder.Dropped(),
	}
}

func (s *Service) storeError(component string, err error) {
	errorLog := &models.ErrorLog{
		Timestamp: time.Now(),
		Component: component,
		ErrorMsg:  err.Error(),
	}

	if dbErr := s.repo.CreateErrorLog(errorLog); dbErr != nil {
		s.logger.Printf("Failed to store error in database: %v (original error: %v)", dbErr, err)
	} else {
		s.logger.Printf("Error logged to database: %v", err)
	}
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
