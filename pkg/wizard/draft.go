package wizard

import (
	"context"
	"errors"
	"time"

	"github.com/gabrielmiguelok/tropa/pkg/logging"
	"github.com/gabrielmiguelok/tropa/pkg/state"
)

// DraftStore keeps best-effort snapshots of unsubmitted records so a session
// can be rehydrated after an accidental reload. It is never authoritative.
type DraftStore interface {
	SaveDraft(ctx context.Context, key string, rec Record) error
	LoadDraft(ctx context.Context, key string) (Record, bool, error)
	DiscardDraft(ctx context.Context, key string) error
}

// Autosave writes the record to the draft store when it changed since the
// last save. Failures are logged and otherwise ignored.
func (s *Session) Autosave(ctx context.Context) {
	s.mu.Lock()
	if s.drafts == nil || s.draftKey == "" || !s.dirty || s.active < 0 || s.submitted {
		s.mu.Unlock()
		return
	}
	snapshot := s.record.Clone()
	drafts, key := s.drafts, s.draftKey
	s.dirty = false
	s.mu.Unlock()

	if err := drafts.SaveDraft(ctx, key, snapshot); err != nil {
		s.logger.Warn("save draft failed", logging.String("key", key), logging.Err(err))
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
	}
}

// RestoreDraft overlays a saved draft onto the record. It only applies in
// create mode and reports whether a draft was found. Restored non-empty
// fields are revalidated so step statuses reflect them.
func (s *Session) RestoreDraft(ctx context.Context) bool {
	s.mu.Lock()
	drafts, key, mode := s.drafts, s.draftKey, s.mode
	s.mu.Unlock()

	if drafts == nil || key == "" || mode != ModeCreate {
		return false
	}

	rec, ok, err := drafts.LoadDraft(ctx, key)
	if err != nil {
		s.logger.Warn("load draft failed", logging.String("key", key), logging.Err(err))
		return false
	}
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active < 0 {
		return false
	}
	for name, v := range rec {
		if _, known := s.reg.Field(name); !known {
			continue
		}
		s.record[name] = v
		if !isBlank(v) {
			s.touched[name] = true
			s.validateFieldLocked(name)
		}
	}
	return true
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	default:
		return false
	}
}

// StateDraftStore keeps drafts in a state.Store, msgpack encoded, with a TTL.
type StateDraftStore struct {
	store      state.Store
	serializer *state.MsgPackSerializer
	ttl        time.Duration
	prefix     string
}

// NewStateDraftStore wraps a state.Store. A zero ttl keeps drafts forever.
func NewStateDraftStore(store state.Store, ttl time.Duration) *StateDraftStore {
	return &StateDraftStore{
		store:      store,
		serializer: state.NewMsgPackSerializer(),
		ttl:        ttl,
		prefix:     "draft:",
	}
}

func (d *StateDraftStore) SaveDraft(ctx context.Context, key string, rec Record) error {
	data, err := d.serializer.Marshal(map[string]any(rec))
	if err != nil {
		return err
	}
	return d.store.Set(ctx, d.prefix+key, data, d.ttl)
}

func (d *StateDraftStore) LoadDraft(ctx context.Context, key string) (Record, bool, error) {
	data, err := d.store.Get(ctx, d.prefix+key)
	if errors.Is(err, state.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rec map[string]any
	if err := d.serializer.Unmarshal(data, &rec); err != nil {
		return nil, false, err
	}
	return Record(rec), true, nil
}

func (d *StateDraftStore) DiscardDraft(ctx context.Context, key string) error {
	return d.store.Delete(ctx, d.prefix+key)
}
