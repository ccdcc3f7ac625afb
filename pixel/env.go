// Package pixel implements the Poplift tracking pixel: durable
// visitor/session identity, popup trigger evaluation, best-effort event
// delivery and popup rendering. Browser capabilities (storage, timers,
// the DOM, transports) are injected so the whole pipeline runs headless
// in tests and in server-side embedding bridges.
package pixel

// Storage is the persistence capability backing visitor/session identity
// and the shown-popup registry. Implementations map onto browser local
// storage; failures must be reported, never panic.
type Storage interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string) error
	RemoveItem(key string)
}

// memoryStorage is the degraded mode used when no persistent storage is
// available: identity becomes page-view-scoped instead of durable.
type memoryStorage struct {
	items map[string]string
}

// NewMemoryStorage returns a non-persistent Storage.
func NewMemoryStorage() Storage {
	return &memoryStorage{items: make(map[string]string)}
}

func (m *memoryStorage) GetItem(key string) (string, bool) {
	v, ok := m.items[key]
	return v, ok
}

func (m *memoryStorage) SetItem(key, value string) error {
	m.items[key] = value
	return nil
}

func (m *memoryStorage) RemoveItem(key string) {
	delete(m.items, key)
}

// PageInfo is a snapshot of the embedding page, captured once at init.
// CoarsePointer selects the mobile exit-intent heuristic instead of
// re-deriving it from the user agent at each call site.
type PageInfo struct {
	URL           string
	Title         string
	Referrer      string
	UserAgent     string
	ScreenWidth   int
	ScreenHeight  int
	CoarsePointer bool
}

// Sender transmits one serialized payload to a collector endpoint. A
// returned error makes the dispatcher fall through to the next transport;
// it is never surfaced to the host page.
type Sender interface {
	Send(payload []byte) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(payload []byte) error

func (f SenderFunc) Send(payload []byte) error {
	return f(payload)
}

// Transport is the beacon-first delivery pair for one endpoint: try
// Beacon, fall back to Fallback, drop the payload if both fail.
type Transport struct {
	Beacon   Sender
	Fallback Sender
}

func (t Transport) deliver(payload []byte) {
	if t.Beacon != nil {
		if err := t.Beacon.Send(payload); err == nil {
			return
		}
	}
	if t.Fallback != nil {
		// Failures here are discarded. Tracking loss is accepted over
		// accumulating background work on the host page.
		_ = t.Fallback.Send(payload)
	}
}

// Surface is the DOM capability used by the renderer. Implementations
// live in the embedding bridge; tests use a recording fake.
type Surface interface {
	// EnsureStylesheet injects the shared popup stylesheet if a sheet
	// with the given id is not already present.
	EnsureStylesheet(id, css string)
	Mount(markup string)
	SetVisible(visible bool)
	Unmount()
	RequestFrame(fn func())
	Navigate(url string)
	SetScrollLock(locked bool)
}
