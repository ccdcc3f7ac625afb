package pixel

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"log"
	"strconv"
	"time"
)

const (
	keyPrefix       = "poplift"
	sessionTimeout  = 30 * time.Minute
	defaultCooldown = 24 * time.Hour
)

// sessionRecord is the session-continuity record persisted under the
// owner-scoped analytics key. Timestamps are unix milliseconds.
type sessionRecord struct {
	ID           string `json:"id"`
	StartedAt    int64  `json:"started_at"`
	LastActivity int64  `json:"last_activity"`
}

// Identity derives and persists the durable visitor id, the rolling
// session id and the shown-popup cooldown registry. Every storage access
// is wrapped so failures degrade to in-memory state; identity must never
// break the host page.
type Identity struct {
	storage  Storage
	clock    Clock
	ownerID  string
	cooldown time.Duration

	visitorID  string
	session    sessionRecord
	newSession bool
	shown      map[string]time.Time
}

func newIdentity(ownerID string, storage Storage, clock Clock, cooldown time.Duration) *Identity {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	id := &Identity{
		storage:  storage,
		clock:    clock,
		ownerID:  ownerID,
		cooldown: cooldown,
	}
	id.loadVisitor()
	id.loadShown()
	return id
}

func (id *Identity) visitorKey() string {
	return keyPrefix + "_visitor_" + id.ownerID
}

func (id *Identity) sessionKey() string {
	return keyPrefix + "_session_" + id.ownerID + "_analytics"
}

func (id *Identity) shownKey() string {
	return keyPrefix + "_shown_" + id.ownerID
}

func (id *Identity) loadVisitor() {
	if v, ok := id.storage.GetItem(id.visitorKey()); ok && v != "" {
		id.visitorID = v
		return
	}
	id.visitorID = newID("plv")
	if err := id.storage.SetItem(id.visitorKey(), id.visitorID); err != nil {
		// Non-fatal: the visitor id stays page-view-scoped.
		log.Printf("poplift pixel: visitor id not persisted: %v", err)
	}
}

// VisitorID returns the durable visitor id for this browser profile.
func (id *Identity) VisitorID() string {
	return id.visitorID
}

// SessionID returns the current session id, minting a new one when the
// gap since the last tracked activity exceeds 30 minutes. Every call
// counts as activity and refreshes the record.
func (id *Identity) SessionID() string {
	now := id.clock.Now()
	nowMs := now.UnixMilli()

	rec := id.session
	if rec.ID == "" {
		rec = id.readSessionRecord()
	}

	if rec.ID != "" && nowMs-rec.LastActivity < sessionTimeout.Milliseconds() {
		rec.LastActivity = nowMs
		id.session = rec
		id.writeSessionRecord(rec)
		return rec.ID
	}

	rec = sessionRecord{
		ID:           newID("pls"),
		StartedAt:    nowMs,
		LastActivity: nowMs,
	}
	id.session = rec
	id.newSession = true
	id.writeSessionRecord(rec)
	return rec.ID
}

// SessionIsNew reports whether this instance minted a fresh session id,
// i.e. a session_start event should be emitted.
func (id *Identity) SessionIsNew() bool {
	return id.newSession
}

func (id *Identity) readSessionRecord() sessionRecord {
	raw, ok := id.storage.GetItem(id.sessionKey())
	if !ok || raw == "" {
		return sessionRecord{}
	}
	var rec sessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		id.storage.RemoveItem(id.sessionKey())
		return sessionRecord{}
	}
	return rec
}

func (id *Identity) writeSessionRecord(rec sessionRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := id.storage.SetItem(id.sessionKey(), string(raw)); err != nil {
		log.Printf("poplift pixel: session record not persisted: %v", err)
	}
}

func (id *Identity) loadShown() {
	id.shown = make(map[string]time.Time)

	raw, ok := id.storage.GetItem(id.shownKey())
	if !ok || raw == "" {
		return
	}
	var stored map[string]int64
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		id.storage.RemoveItem(id.shownKey())
		return
	}

	// Entries older than the cooldown are pruned lazily at load.
	now := id.clock.Now()
	pruned := false
	for popupID, ms := range stored {
		shownAt := time.UnixMilli(ms)
		if now.Sub(shownAt) >= id.cooldown {
			pruned = true
			continue
		}
		id.shown[popupID] = shownAt
	}
	if pruned {
		id.saveShown()
	}
}

func (id *Identity) saveShown() {
	stored := make(map[string]int64, len(id.shown))
	for popupID, shownAt := range id.shown {
		stored[popupID] = shownAt.UnixMilli()
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return
	}
	if err := id.storage.SetItem(id.shownKey(), string(raw)); err != nil {
		log.Printf("poplift pixel: shown registry not persisted: %v", err)
	}
}

// WasShown reports whether the popup is still inside its cooldown window
// for this visitor.
func (id *Identity) WasShown(popupID string) bool {
	_, ok := id.shown[popupID]
	return ok
}

// MarkShown records the popup as shown right now and persists the
// registry. Called exactly when a popup is actually displayed.
func (id *Identity) MarkShown(popupID string) {
	id.shown[popupID] = id.clock.Now()
	id.saveShown()
}

// newID builds an id from a type prefix, the current time and a random
// base36 suffix. Collisions are treated as negligible; this is not a
// cryptographic guarantee.
func newID(prefix string) string {
	suffix := strconv.FormatInt(time.Now().UnixNano()%1e6, 36)
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		suffix = strconv.FormatUint(binary.BigEndian.Uint64(b[:]), 36)
	}
	return prefix + "_" + strconv.FormatInt(time.Now().UnixMilli(), 36) + suffix
}
