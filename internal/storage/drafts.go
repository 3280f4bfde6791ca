package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gabrielmiguelok/tropa/pkg/state"
	"github.com/gabrielmiguelok/tropa/pkg/wizard"
)

// Drafts keeps unsubmitted wizard records, msgpack encoded.
type Drafts struct {
	db         *DB
	serializer *state.MsgPackSerializer
}

// NewDrafts returns the drafts repository.
func NewDrafts(db *DB) *Drafts {
	return &Drafts{db: db, serializer: state.NewMsgPackSerializer()}
}

var _ wizard.DraftStore = (*Drafts)(nil)

func (d *Drafts) SaveDraft(ctx context.Context, key string, rec wizard.Record) error {
	data, err := d.serializer.Marshal(map[string]any(rec))
	if err != nil {
		return err
	}
	return d.db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO drafts(key, data, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
			key, data, now())
		return err
	})
}

func (d *Drafts) LoadDraft(ctx context.Context, key string) (wizard.Record, bool, error) {
	var data []byte
	err := d.db.SQL.QueryRowContext(ctx, `SELECT data FROM drafts WHERE key=?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rec map[string]any
	if err := d.serializer.Unmarshal(data, &rec); err != nil {
		return nil, false, err
	}
	return wizard.Record(rec), true, nil
}

func (d *Drafts) DiscardDraft(ctx context.Context, key string) error {
	_, err := d.db.SQL.ExecContext(ctx, `DELETE FROM drafts WHERE key=?`, key)
	return err
}

// Purge deletes drafts not updated within olderThan and returns how many.
func (d *Drafts) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	res, err := d.db.SQL.ExecContext(ctx, `DELETE FROM drafts WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
