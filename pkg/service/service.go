// Package service exposes the engine's command surface: the operations the
// host UI invokes (status, indexing control, search, and file operations)
// and the startup decision tree that chooses between fast resume, catchup,
// and a full index.
package service

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/charlesoon/everything/pkg/catalog"
	"github.com/charlesoon/everything/pkg/catchup"
	"github.com/charlesoon/everything/pkg/events"
	"github.com/charlesoon/everything/pkg/ignore"
	"github.com/charlesoon/everything/pkg/logging"
	"github.com/charlesoon/everything/pkg/memindex"
	"github.com/charlesoon/everything/pkg/recent"
	"github.com/charlesoon/everything/pkg/settings"
	"github.com/charlesoon/everything/pkg/state"
	"github.com/charlesoon/everything/pkg/status"
	"github.com/charlesoon/everything/pkg/watching"
)

const (
	// heartbeatStaleThreshold is how old a persisted heartbeat may be before
	// startup runs catchup rather than trusting the watcher state alone.
	heartbeatStaleThreshold = 5 * time.Minute
)

// Service is the engine facade handed to the host.
type Service struct {
	// settings is the loaded configuration.
	settings *settings.Settings
	// store is the persistent catalog.
	store *catalog.Store
	// holder is the memory index publication point.
	holder *memindex.Holder
	// controller is the status controller.
	controller *status.Controller
	// bus is the event bus.
	bus *events.Bus
	// tracker drives live-search polling.
	tracker *state.Tracker
	// recentOps suppresses watcher churn from the service's own operations.
	recentOps *recent.Ops
	// ignores is the ignore rule set.
	ignores *ignore.Set
	// applier is the shared change applier.
	applier *watching.Applier
	// logger is the service's logger.
	logger *logging.Logger

	// lock guards the fields below.
	lock sync.Mutex
	// indexing indicates whether or not a full index is in flight.
	indexing bool
	// stopWatcher stops the running watcher, if any.
	stopWatcher func()
}

// New creates a service over the provided settings, opening the catalog.
func New(config *settings.Settings, logger *logging.Logger) (*Service, error) {
	// Open the catalog.
	store, err := catalog.Open(config.DatabasePath, logger.Sublogger("catalog"))
	if err != nil {
		return nil, err
	}

	// Build the shared components.
	home, _ := os.UserHomeDir()
	bus := events.NewBus()
	controller := status.NewController(bus)
	tracker := state.NewTracker()
	recentOps := recent.NewOps()
	ignores := ignore.NewSet(config.Ignore, home, logger.Sublogger("ignore"))
	holder := memindex.NewHolder()
	applier := watching.NewApplier(store, ignores, recentOps, controller, bus, tracker, logger.Sublogger("applier"))

	// Create the service.
	return &Service{
		settings:   config,
		store:      store,
		holder:     holder,
		controller: controller,
		bus:        bus,
		tracker:    tracker,
		recentOps:  recentOps,
		ignores:    ignores,
		applier:    applier,
		logger:     logger,
	}, nil
}

// Bus exposes the event bus for host subscriptions.
func (s *Service) Bus() *events.Bus {
	return s.bus
}

// Tracker exposes the live-search state tracker.
func (s *Service) Tracker() *state.Tracker {
	return s.tracker
}

// Status returns the current status snapshot.
func (s *Service) Status() status.Snapshot {
	return s.controller.Snapshot()
}

// LoadCachedStatus populates the status snapshot from the catalog's cached
// counters without starting any background machinery. One-shot hosts (the
// CLI's query commands) use it so that status and counts are meaningful
// without spinning up watchers.
func (s *Service) LoadCachedStatus() error {
	complete, err := s.store.IndexComplete()
	if err != nil {
		return err
	}
	if !complete {
		return nil
	}
	count, err := s.store.GetMetaInt(catalog.MetaEntryCount, 0)
	if err != nil {
		return err
	}
	lastUpdated, err := s.store.GetMetaInt(catalog.MetaLastUpdated, 0)
	if err != nil {
		return err
	}
	s.controller.SetReady(count, lastUpdated, "")
	return nil
}

// Start runs the startup decision tree: if a complete catalog exists, the
// engine presents Ready immediately with cached counts, starts the watcher
// (resuming where the platform allows), and runs catchup for any gap;
// otherwise a full index begins.
func (s *Service) Start() error {
	complete, err := s.store.IndexComplete()
	if err != nil {
		return err
	}
	if !complete {
		return s.StartFullIndex()
	}

	// Fast resume: present Ready from cached counters before any query.
	count, err := s.store.GetMetaInt(catalog.MetaEntryCount, 0)
	if err != nil {
		return err
	}
	lastUpdated, err := s.store.GetMetaInt(catalog.MetaLastUpdated, 0)
	if err != nil {
		return err
	}
	s.controller.SetReady(count, lastUpdated, "")
	s.logger.Infof("fast startup: catalog ready with %d entries", count)

	// Start the watcher, resuming from persisted state where possible. If
	// the platform requires a full re-index instead (a recreated USN
	// journal, for example), run it now.
	resumed, err := s.startWatcher()
	if err != nil {
		s.logger.Warnf("unable to start watcher: %v", err)
	}
	if !resumed {
		// The stored position is unusable; only a full index restores
		// consistency.
		return s.StartFullIndex()
	}

	// Close any heartbeat gap with catchup.
	lastActive, err := s.store.GetMetaInt(catalog.MetaLastActiveTime, 0)
	if err != nil {
		return err
	}
	if lastActive == 0 || time.Since(time.Unix(lastActive, 0)) > heartbeatStaleThreshold {
		engine := catchup.NewEngine(
			s.settings.ScanRoot, s.store, s.applier, s.ignores,
			s.controller, s.bus, s.logger.Sublogger("catchup"),
		)
		go func() {
			if err := engine.Run(lastActive); err != nil {
				s.logger.Warnf("catchup failed: %v", err)
			}
		}()
	}

	// Done.
	return nil
}

// StartFullIndex transitions Ready to Indexing and runs the platform's
// preferred indexing path. It returns immediately after the index becomes
// searchable; persistence and watcher startup continue in the background.
func (s *Service) StartFullIndex() error {
	// Reject concurrent runs.
	s.lock.Lock()
	if s.indexing {
		s.lock.Unlock()
		return errors.New("indexing already in progress")
	}
	s.indexing = true
	stop := s.stopWatcher
	s.stopWatcher = nil
	s.lock.Unlock()

	// Stop any running watcher; the full index supersedes its state.
	if stop != nil {
		stop()
	}

	// Run the platform indexer.
	if err := s.runFullIndex(); err != nil {
		s.lock.Lock()
		s.indexing = false
		s.lock.Unlock()

		// The Error state appears only when no usable catalog exists; a
		// stale-but-complete catalog still serves.
		if complete, completeErr := s.store.IndexComplete(); completeErr == nil && complete {
			count, _ := s.store.GetMetaInt(catalog.MetaEntryCount, 0)
			lastUpdated, _ := s.store.GetMetaInt(catalog.MetaLastUpdated, 0)
			s.controller.SetReady(count, lastUpdated, "indexing failed; serving previous catalog")
		} else {
			s.controller.SetError(err.Error())
		}
		return err
	}

	// Done.
	return nil
}

// indexingFinished clears the indexing flag and records the watcher stopper
// installed by the persistence callback.
func (s *Service) indexingFinished(stopWatcher func()) {
	s.lock.Lock()
	s.indexing = false
	s.stopWatcher = stopWatcher
	s.lock.Unlock()
}

// Indexing indicates whether or not a full index (including its background
// persistence) is in flight.
func (s *Service) Indexing() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.indexing
}

// ResetIndex wipes the catalog and restarts the indexer from scratch.
func (s *Service) ResetIndex() error {
	// Stop any running watcher.
	s.lock.Lock()
	stop := s.stopWatcher
	s.stopWatcher = nil
	s.lock.Unlock()
	if stop != nil {
		stop()
	}

	// Wipe the catalog and drop any published index.
	if err := s.store.Wipe(); err != nil {
		return err
	}
	s.holder.Free()
	s.tracker.NotifyOfChange()

	// Restart indexing.
	return s.StartFullIndex()
}

// Stop shuts down the watcher and closes the catalog.
func (s *Service) Stop() {
	s.lock.Lock()
	stop := s.stopWatcher
	s.stopWatcher = nil
	s.lock.Unlock()
	if stop != nil {
		stop()
	}
	s.tracker.Terminate()
	if err := s.store.Close(); err != nil {
		s.logger.Warnf("unable to close catalog: %v", err)
	}
}
