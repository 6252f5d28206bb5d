package events

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"buildledger/core/types"
	"buildledger/storage"
)

// payloadEvent is implemented by events that carry a canonical attribute
// payload. Events without a payload are counted but not persisted.
type payloadEvent interface {
	Event() *types.Event
}

var (
	outboxSeqKey    = []byte("events/next")
	outboxEntryPref = "events/log/"
)

// Outbox is an append-only, storage-backed event log. Engines emit into the
// outbox on successful commits; indexers and dashboards read it back in
// sequence order. Entries are never rewritten or removed.
type Outbox struct {
	mu   sync.Mutex
	db   storage.Database
	next uint64
}

// NewOutbox opens the outbox over the provided database, resuming the
// sequence counter from the last persisted value.
func NewOutbox(db storage.Database) (*Outbox, error) {
	if db == nil {
		return nil, errors.New("events: outbox requires a database")
	}
	o := &Outbox{db: db}
	raw, err := db.Get(outboxSeqKey)
	switch {
	case err == nil:
		if len(raw) != 8 {
			return nil, fmt.Errorf("events: corrupt outbox sequence (%d bytes)", len(raw))
		}
		o.next = binary.BigEndian.Uint64(raw)
	case errors.Is(err, storage.ErrKeyNotFound):
		o.next = 0
	default:
		return nil, err
	}
	return o, nil
}

// Entry is a single persisted outbox record.
type Entry struct {
	Sequence uint64      `json:"sequence"`
	Event    types.Event `json:"event"`
}

func outboxEntryKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", outboxEntryPref, seq))
}

// Emit satisfies the Emitter interface. Persistence failures are swallowed:
// emission is fire-and-forget and must never unwind a committed transition.
func (o *Outbox) Emit(evt Event) {
	if o == nil || evt == nil {
		return
	}
	payload, ok := evt.(payloadEvent)
	if !ok {
		return
	}
	_ = o.Append(payload.Event())
}

// Append persists the event under the next sequence number.
func (o *Outbox) Append(evt *types.Event) error {
	if o == nil || o.db == nil {
		return errors.New("events: outbox not initialised")
	}
	if evt == nil || strings.TrimSpace(evt.Type) == "" {
		return errors.New("events: event type required")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	seq := o.next
	entry := Entry{Sequence: seq, Event: *evt}
	encoded, err := json.Marshal(&entry)
	if err != nil {
		return err
	}
	if err := o.db.Put(outboxEntryKey(seq), encoded); err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq+1)
	if err := o.db.Put(outboxSeqKey, buf[:]); err != nil {
		return err
	}
	o.next = seq + 1
	return nil
}

// List returns up to limit entries starting at the from sequence number,
// optionally filtered by an event type prefix (e.g. "escrow."). A limit of
// zero or less applies no cap.
func (o *Outbox) List(from uint64, typePrefix string, limit int) ([]Entry, error) {
	if o == nil || o.db == nil {
		return nil, errors.New("events: outbox not initialised")
	}
	o.mu.Lock()
	end := o.next
	o.mu.Unlock()

	prefix := strings.TrimSpace(typePrefix)
	entries := make([]Entry, 0)
	for seq := from; seq < end; seq++ {
		raw, err := o.db.Get(outboxEntryKey(seq))
		if errors.Is(err, storage.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("events: corrupt outbox entry %d: %w", seq, err)
		}
		if prefix != "" && !strings.HasPrefix(entry.Event.Type, prefix) {
			continue
		}
		entries = append(entries, entry)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

// Len reports the number of appended entries.
func (o *Outbox) Len() uint64 {
	if o == nil {
		return 0
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.next
}
