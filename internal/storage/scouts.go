package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/tropa/pkg/wizard"
)

// scoutColumns are the record fields persisted for a scout, in column order.
var scoutColumns = []string{
	"nombres", "apellidos", "fecha_nacimiento", "sexo", "documento",
	"region", "subregion", "localidad", "ubicacion", "telefono", "email",
	"rama", "patrulla", "fecha_ingreso", "cargo",
	"contacto_nombre", "contacto_telefono", "grupo_sanguineo", "alergias",
	"seguro_medico", "seguro_numero",
}

// Scout is the summary returned by List.
type Scout struct {
	ID          string `json:"id"`
	DisplayCode string `json:"display_code"`
	Nombres     string `json:"nombres"`
	Apellidos   string `json:"apellidos"`
	Documento   string `json:"documento"`
	Rama        string `json:"rama"`
	Patrulla    string `json:"patrulla,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

// ListFilter narrows List.
type ListFilter struct {
	Rama  string
	Limit int
}

// Scouts persists registered scouts. It is the wizard's Submitter.
type Scouts struct {
	db    *DB
	clock func() time.Time
}

// NewScouts returns the scouts repository.
func NewScouts(db *DB) *Scouts {
	return &Scouts{db: db, clock: time.Now}
}

var _ wizard.Submitter = (*Scouts)(nil)

// SubmitEntity inserts the record, or updates it when it carries an id.
// New scouts get a uuid and a per-year display code.
func (s *Scouts) SubmitEntity(ctx context.Context, rec wizard.Record) (wizard.SubmitResult, error) {
	args := make([]any, 0, len(scoutColumns))
	for _, col := range scoutColumns {
		args = append(args, columnValue(col, rec[col]))
	}
	ts := now()

	var res wizard.SubmitResult
	err := s.db.inTx(ctx, func(tx *sql.Tx) error {
		if id := rec.String("id"); id != "" {
			return s.update(ctx, tx, id, args, ts, &res)
		}
		return s.insert(ctx, tx, args, ts, &res)
	})
	if isUnique(err) && strings.Contains(err.Error(), "documento") {
		return wizard.SubmitResult{}, ErrDuplicateDocument
	}
	if err != nil {
		return wizard.SubmitResult{}, err
	}
	return res, nil
}

func (s *Scouts) insert(ctx context.Context, tx *sql.Tx, args []any, ts string, res *wizard.SubmitResult) error {
	year := s.clock().UTC().Year()
	var seq int
	err := tx.QueryRowContext(ctx, `
		INSERT INTO scout_sequences(year, last) VALUES (?, 1)
		ON CONFLICT(year) DO UPDATE SET last = last + 1
		RETURNING last`, year).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	res.ID = uuid.NewString()
	res.DisplayCode = fmt.Sprintf("SC-%d-%04d", year, seq)

	cols := append([]string{"id", "display_code"}, scoutColumns...)
	cols = append(cols, "created_at", "updated_at")
	values := append([]any{res.ID, res.DisplayCode}, args...)
	values = append(values, ts, ts)

	q := fmt.Sprintf(`INSERT INTO scouts(%s) VALUES (%s)`,
		strings.Join(cols, ", "), placeholders(len(cols)))
	_, err = tx.ExecContext(ctx, q, values...)
	return err
}

func (s *Scouts) update(ctx context.Context, tx *sql.Tx, id string, args []any, ts string, res *wizard.SubmitResult) error {
	sets := make([]string, len(scoutColumns))
	for i, col := range scoutColumns {
		sets[i] = col + "=?"
	}
	q := fmt.Sprintf(`UPDATE scouts SET %s, updated_at=? WHERE id=? RETURNING display_code`, strings.Join(sets, ", "))
	values := append(args, ts, id)

	err := tx.QueryRowContext(ctx, q, values...).Scan(&res.DisplayCode)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	res.ID = id
	return nil
}

// Get loads a scout as a wizard record, including its id and display code.
func (s *Scouts) Get(ctx context.Context, id string) (wizard.Record, error) {
	cols := append([]string{"id", "display_code"}, scoutColumns...)
	q := fmt.Sprintf(`SELECT %s FROM scouts WHERE id=?`, strings.Join(cols, ", "))

	dest := make([]any, len(cols))
	raw := make([]sql.NullString, len(cols))
	var seguro sql.NullInt64
	for i, col := range cols {
		if col == "seguro_medico" {
			dest[i] = &seguro
		} else {
			dest[i] = &raw[i]
		}
	}

	err := s.db.SQL.QueryRowContext(ctx, q, id).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec := make(wizard.Record, len(cols))
	for i, col := range cols {
		if col == "seguro_medico" {
			rec[col] = seguro.Int64 != 0
		} else {
			rec[col] = raw[i].String
		}
	}
	return rec, nil
}

// List returns scouts ordered by surname, optionally filtered by rama.
func (s *Scouts) List(ctx context.Context, f ListFilter) ([]Scout, error) {
	q := `SELECT id, display_code, nombres, apellidos, documento, rama, patrulla, updated_at FROM scouts`
	var args []any
	if f.Rama != "" {
		q += ` WHERE rama=?`
		args = append(args, f.Rama)
	}
	q += ` ORDER BY apellidos, nombres`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.SQL.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Scout
	for rows.Next() {
		var sc Scout
		if err := rows.Scan(&sc.ID, &sc.DisplayCode, &sc.Nombres, &sc.Apellidos,
			&sc.Documento, &sc.Rama, &sc.Patrulla, &sc.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// columnValue maps a record value onto its column. Empty place references
// become NULL so the foreign keys accept them.
func columnValue(col string, v any) any {
	switch col {
	case "seguro_medico":
		if b, ok := v.(bool); ok && b {
			return 1
		}
		return 0
	case "region", "subregion", "localidad":
		if s, ok := v.(string); ok && s != "" {
			return s
		}
		return nil
	}
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
