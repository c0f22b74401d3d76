package connection

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/newrelic/infra-integrations-sdk/v3/log"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/dberr"
)

// ChangeEvent is delivered to subscribers after the active target changes.
type ChangeEvent struct {
	Configured bool
	Server     string
	Database   string
}

// Observer receives target change notifications. Observers may call back
// into the Manager; notifications are delivered outside the state lock.
type Observer func(ChangeEvent)

// Manager is the single source of truth for which database the integration
// is pointed at. It is safe for concurrent use. Construct one instance and
// hand it to every component that needs connectivity.
type Manager struct {
	mu         sync.RWMutex
	descriptor TargetDescriptor
	server     string
	database   string
	configured bool

	obsMu      sync.Mutex
	observers  map[int]Observer
	nextObsID  int
	delivering bool
	pending    bool
}

// NewManager creates an unconfigured Manager.
func NewManager() *Manager {
	return &Manager{observers: make(map[int]Observer)}
}

// SetTarget atomically replaces the active descriptor. When the identity
// projections cannot be parsed the manager transitions to the unconfigured
// state instead of failing; callers must tolerate empty identities. The
// change notification is raised after the state lock is released so that an
// observer may re-enter the manager, including calling SetTarget, from its
// callback. Overlapping changes coalesce into a single notification carrying
// the latest state.
func (m *Manager) SetTarget(descriptor TargetDescriptor) {
	server, database, err := ParseIdentity(descriptor)
	configured := err == nil
	if err != nil {
		log.Warn("Could not parse connection target identity: %s", err.Error())
		server, database = "", ""
	}

	m.mu.Lock()
	m.descriptor = descriptor
	m.server = server
	m.database = database
	m.configured = configured
	m.mu.Unlock()

	m.notify()
}

// Target returns the raw active descriptor.
func (m *Manager) Target() TargetDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.descriptor
}

// Connected reports whether a usable target is configured.
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configured
}

// CurrentServer returns the server identity of the active target.
func (m *Manager) CurrentServer() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.server
}

// CurrentDatabase returns the database identity of the active target.
func (m *Manager) CurrentDatabase() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.database
}

// AcquireConnection opens a new physical connection to the active target.
// Pooling, if any, is the driver's business; every caller gets its own
// connection and must Close it on all exit paths. Fails with a
// ConfigurationError when no target has been set.
func (m *Manager) AcquireConnection(ctx context.Context) (*SQLConnection, error) {
	m.mu.RLock()
	descriptor := m.descriptor
	server := m.server
	m.mu.RUnlock()

	if descriptor.Empty() {
		return nil, dberr.NewConfigurationError("no connection target has been set", nil)
	}

	driver, err := DriverName(descriptor.Platform)
	if err != nil {
		return nil, dberr.NewConfigurationError("unsupported platform", err)
	}

	// I/O happens outside the lock.
	db, err := sqlx.ConnectContext(ctx, driver, descriptor.ConnectionString)
	if err != nil {
		return nil, dberr.NewConfigurationError("could not open connection", err)
	}

	return &SQLConnection{Connection: db, Host: server}, nil
}

// Probe opportunistically checks target liveness. It is a best-effort health
// check: every failure mode, including acquisition failure, collapses to
// false and is never propagated.
func (m *Manager) Probe(ctx context.Context) bool {
	sc, err := m.AcquireConnection(ctx)
	if err != nil {
		log.Debug("Probe failed to acquire connection: %s", err.Error())
		return false
	}
	defer sc.Close()

	if err := sc.Connection.PingContext(ctx); err != nil {
		log.Debug("Probe ping failed: %s", err.Error())
		return false
	}
	return true
}

// Subscribe registers an observer for target changes and returns its
// unsubscribe function. Delivery order among observers is unspecified.
func (m *Manager) Subscribe(observer Observer) (unsubscribe func()) {
	m.obsMu.Lock()
	id := m.nextObsID
	m.nextObsID++
	m.observers[id] = observer
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

// notify delivers the current target state to every observer. Deliveries are
// funneled through a single goroutine at a time and bursts coalesce, so the
// last event an observer receives always reflects the latest state. The
// event is a snapshot read at delivery time, not at SetTarget time.
func (m *Manager) notify() {
	m.obsMu.Lock()
	m.pending = true
	if m.delivering {
		// The active deliverer will pick this change up on its next pass.
		m.obsMu.Unlock()
		return
	}
	m.delivering = true
	for m.pending {
		m.pending = false
		observers := make([]Observer, 0, len(m.observers))
		for _, observer := range m.observers {
			observers = append(observers, observer)
		}
		m.obsMu.Unlock()

		m.mu.RLock()
		event := ChangeEvent{Configured: m.configured, Server: m.server, Database: m.database}
		m.mu.RUnlock()

		for _, observer := range observers {
			observer(event)
		}
		m.obsMu.Lock()
	}
	m.delivering = false
	m.obsMu.Unlock()
}
