package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/tropa/internal/storage"
	"github.com/gabrielmiguelok/tropa/pkg/core"
	"github.com/gabrielmiguelok/tropa/pkg/live"
	"github.com/gabrielmiguelok/tropa/pkg/livetest"
	"github.com/gabrielmiguelok/tropa/pkg/lookup"
	"github.com/gabrielmiguelok/tropa/pkg/state"
	"github.com/gabrielmiguelok/tropa/pkg/wizard"
)

const wait = 2 * time.Second

type fakeScouts struct {
	mu      sync.Mutex
	records map[string]wizard.Record
	calls   int
	err     error
	release chan struct{}
}

func newFakeScouts() *fakeScouts {
	return &fakeScouts{records: make(map[string]wizard.Record)}
}

func (f *fakeScouts) SubmitEntity(ctx context.Context, rec wizard.Record) (wizard.SubmitResult, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return wizard.SubmitResult{}, f.err
	}
	id := rec.String("id")
	if id == "" {
		id = fmt.Sprintf("id-%d", f.calls)
	}
	f.records[id] = rec.Clone()
	return wizard.SubmitResult{ID: id, DisplayCode: fmt.Sprintf("SC-2026-%04d", f.calls)}, nil
}

func (f *fakeScouts) Get(ctx context.Context, id string) (wizard.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := rec.Clone()
	out["id"] = id
	return out, nil
}

func (f *fakeScouts) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testPlaces() PlaceSources {
	return PlaceSources{
		Regions: lookup.StaticSource{"": {{ID: "norte", Label: "Norte"}, {ID: "sur", Label: "Sur"}}},
		Subregions: lookup.StaticSource{
			"norte": {{ID: "costa", Label: "Costa"}},
			"sur":   {{ID: "pampa", Label: "Pampa"}},
		},
		Localities: lookup.StaticSource{
			"costa": {{ID: "puerto", Label: "Puerto"}},
			"pampa": {{ID: "llano", Label: "Llano"}},
		},
	}
}

func mountView(t *testing.T, deps Deps, opts ...livetest.Option) (*livetest.View, *WizardView) {
	t.Helper()
	if deps.Places.Regions == nil {
		deps.Places = testPlaces()
	}
	wv := NewFactory(deps)().(*WizardView)
	return livetest.Mount(t, wv, opts...), wv
}

func change(v *livetest.View, field string, value any) {
	v.MustEvent("change", map[string]any{"field": field, "value": value})
}

func selectPlace(t *testing.T, v *livetest.View, field, id string) {
	t.Helper()
	v.MustEvent("select", map[string]any{"field": field, "value": id})
	v.AwaitInfo(wait)
}

func fillAll(t *testing.T, v *livetest.View) {
	t.Helper()
	change(v, "nombres", "Ana")
	change(v, "apellidos", "Paz")
	change(v, "fecha_nacimiento", "2012-04-01")
	change(v, "sexo", "F")
	change(v, "documento", "12345678")
	selectPlace(t, v, FieldRegion, "norte")
	selectPlace(t, v, FieldSubregion, "costa")
	selectPlace(t, v, FieldLocalidad, "puerto")
	change(v, "ubicacion", "Calle Falsa 123")
	change(v, "rama", "tropa")
	change(v, "fecha_ingreso", "2023-03-01")
	change(v, "contacto_nombre", "Luis Paz")
	change(v, "contacto_telefono", "11 2233 4455")
}

func TestSchema(t *testing.T) {
	reg := Schema()
	require.Equal(t, 4, reg.Len())

	ids := make([]string, reg.Len())
	for i := range ids {
		ids[i] = reg.Step(i).ID
	}
	assert.Equal(t, []string{"datos-personales", "ubicacion", "datos-scout", "salud-contacto"}, ids)

	i, ok := reg.StepOf("seguro_numero")
	require.True(t, ok)
	assert.Equal(t, 3, i)
	assert.Contains(t, reg.Dependents("fecha_nacimiento"), "fecha_ingreso")
	assert.Contains(t, reg.Dependents("seguro_medico"), "seguro_numero")
}

func TestMount_CreateMode(t *testing.T) {
	v, wv := mountView(t, Deps{Scouts: newFakeScouts()})

	assert.Equal(t, "Nuevo scout", wv.Title())
	assert.Equal(t, wizard.ModeCreate, wv.Session().Mode())
	assert.Contains(t, v.HTML(), `data-step="datos-personales"`)
	assert.Contains(t, v.HTML(), `aria-current="step"`)
	assert.Contains(t, v.HTML(), "0% completo")
	assert.Contains(t, v.HTML(), `<p class="field-help">Se usa para detectar inscripciones repetidas.</p>`)

	st := wv.cascade.State(0)
	assert.False(t, st.Disabled)
	assert.Len(t, st.Options, 2)
	assert.True(t, wv.cascade.State(1).Disabled)
}

func TestNext_BlockedShowsErrors(t *testing.T) {
	v, wv := mountView(t, Deps{Scouts: newFakeScouts()})

	v.MustEvent("next", nil)
	assert.Equal(t, 0, wv.Session().Active())
	assert.Contains(t, v.HTML(), "Revisá los campos marcados para continuar.")
	assert.Contains(t, v.HTML(), "field-error")

	change(v, "nombres", "Ana")
	change(v, "apellidos", "Paz")
	change(v, "fecha_nacimiento", "2012-04-01")
	change(v, "sexo", "F")
	change(v, "documento", "12.345.678")
	assert.Contains(t, v.HTML(), "Ingresá entre 7 y 12 dígitos, sin puntos")

	change(v, "documento", "12345678")
	v.MustEvent("next", nil)
	assert.Equal(t, 1, wv.Session().Active())
	assert.Contains(t, v.HTML(), `data-step="ubicacion"`)
	assert.NotContains(t, v.HTML(), "Revisá los campos marcados")
}

func TestJumpAndPrevious(t *testing.T) {
	v, wv := mountView(t, Deps{Scouts: newFakeScouts()})

	v.MustEvent("jump", map[string]any{"index": float64(2)})
	assert.Equal(t, 2, wv.Session().Active())

	v.MustEvent("jump", map[string]any{"step": "salud-contacto"})
	assert.Equal(t, 3, wv.Session().Active())
	assert.Contains(t, v.HTML(), "Guardar")

	v.MustEvent("prev", nil)
	assert.Equal(t, 2, wv.Session().Active())

	assert.ErrorIs(t, v.Event("jump", map[string]any{"index": "9"}), wizard.ErrStepOutOfRange)
	assert.ErrorIs(t, v.Event("jump", map[string]any{"step": "nope"}), wizard.ErrStepOutOfRange)
}

func TestPlaceCascade(t *testing.T) {
	v, wv := mountView(t, Deps{Scouts: newFakeScouts()})
	v.MustEvent("jump", map[string]any{"index": 1})

	selectPlace(t, v, FieldRegion, "norte")
	assert.Contains(t, v.HTML(), ">Costa</option>")
	assert.True(t, wv.cascade.State(2).Disabled)

	selectPlace(t, v, FieldSubregion, "costa")
	selectPlace(t, v, FieldLocalidad, "puerto")
	assert.Equal(t, []string{"norte", "costa", "puerto"}, wv.cascade.Selection())

	// Changing the region clears the deeper selections without flagging them.
	selectPlace(t, v, FieldRegion, "sur")
	assert.Equal(t, "", wv.Session().FieldValue(FieldSubregion))
	assert.Equal(t, "", wv.Session().FieldValue(FieldLocalidad))
	assert.Empty(t, wv.Session().FieldError(FieldSubregion))
	assert.Contains(t, v.HTML(), ">Pampa</option>")
	assert.NotContains(t, v.HTML(), ">Costa</option>")

	// A change event on a place field is routed to the cascade.
	change(v, FieldSubregion, "pampa")
	v.AwaitInfo(wait)
	assert.Equal(t, []string{"sur", "pampa", ""}, wv.cascade.Selection())
}

func TestPlaceSelectionRejectsForeignIDs(t *testing.T) {
	scouts := newFakeScouts()
	v, wv := mountView(t, Deps{Scouts: scouts})
	fillAll(t, v)

	// "pampa" sits under "sur", not under the selected "norte".
	err := v.Event("select", map[string]any{"field": FieldSubregion, "value": "pampa"})
	assert.ErrorIs(t, err, lookup.ErrUnknownOption)
	err = v.Event("change", map[string]any{"field": FieldLocalidad, "value": "no-such-place"})
	assert.ErrorIs(t, err, lookup.ErrUnknownOption)

	assert.Equal(t, "costa", wv.Session().FieldValue(FieldSubregion))
	assert.Equal(t, "puerto", wv.Session().FieldValue(FieldLocalidad))
	assert.Equal(t, []string{"norte", "costa", "puerto"}, wv.cascade.Selection())

	v.MustEvent("jump", map[string]any{"index": 3})
	v.MustEvent("submit", nil)
	v.AwaitInfo(wait)
	require.Equal(t, 1, scouts.Calls())
	assert.Equal(t, "costa", scouts.records["id-1"][FieldSubregion])
	assert.Equal(t, "puerto", scouts.records["id-1"][FieldLocalidad])
}

func TestPlaceSourceFailureDegrades(t *testing.T) {
	places := testPlaces()
	places.Regions = lookup.SourceFunc(func(ctx context.Context, _ string) ([]lookup.Option, error) {
		return nil, errors.New("places service down")
	})
	v, wv := mountView(t, Deps{Scouts: newFakeScouts(), Places: places})

	v.MustEvent("jump", map[string]any{"index": 1})
	assert.Contains(t, v.HTML(), "No disponible")
	assert.Error(t, wv.cascade.State(0).Err)

	v.MustEvent("jump", map[string]any{"index": 0})
	change(v, "nombres", "Ana")
	change(v, "apellidos", "Paz")
	change(v, "fecha_nacimiento", "2012-04-01")
	change(v, "sexo", "M")
	change(v, "documento", "12345678")
	v.MustEvent("next", nil)
	assert.Equal(t, 1, wv.Session().Active())
}

func TestSubmit_Success(t *testing.T) {
	scouts := newFakeScouts()
	scouts.release = make(chan struct{})
	v, wv := mountView(t, Deps{Scouts: scouts})

	fillAll(t, v)
	v.MustEvent("jump", map[string]any{"index": 3})
	v.MustEvent("submit", nil)
	assert.Contains(t, v.HTML(), "Guardando…")
	assert.Contains(t, v.HTML(), `disabled aria-busy="true"`)

	// A second click while the first is in flight is ignored.
	v.MustEvent("submit", nil)

	close(scouts.release)
	v.AwaitInfo(wait)

	assert.Equal(t, 1, scouts.Calls())
	assert.Contains(t, v.HTML(), "SC-2026-0001")
	assert.Contains(t, v.HTML(), "Scout guardado con el código SC-2026-0001")
	assert.Contains(t, v.HTML(), "/scouts/id-1/edit")
	assert.Equal(t, "puerto", scouts.records["id-1"][FieldLocalidad])

	_, submitted := wv.Session().Submitted()
	assert.True(t, submitted)

	v.MustEvent("reset", nil)
	assert.Equal(t, "", wv.Session().FieldValue("nombres"))
	assert.Contains(t, v.HTML(), `data-step="datos-personales"`)
}

func TestSubmit_IgnoredAfterSuccess(t *testing.T) {
	scouts := newFakeScouts()
	v, wv := mountView(t, Deps{Scouts: scouts})

	fillAll(t, v)
	v.MustEvent("jump", map[string]any{"index": 3})
	v.MustEvent("submit", nil)
	v.AwaitInfo(wait)
	require.Equal(t, 1, scouts.Calls())

	v.MustEvent("submit", nil)
	assert.Equal(t, 1, scouts.Calls())
	assert.Len(t, scouts.records, 1)
	assert.Contains(t, v.HTML(), "SC-2026-0001")

	_, err := wv.Session().Submit(context.Background())
	assert.ErrorIs(t, err, wizard.ErrAlreadySubmitted)
	assert.Equal(t, 1, scouts.Calls())
}

func TestSubmit_InvalidJumpsToFirstErrorStep(t *testing.T) {
	scouts := newFakeScouts()
	v, wv := mountView(t, Deps{Scouts: scouts})

	v.MustEvent("jump", map[string]any{"index": 3})
	change(v, "contacto_nombre", "Luis")
	v.MustEvent("submit", nil)
	v.AwaitInfo(wait)

	assert.Equal(t, 0, wv.Session().Active())
	assert.Zero(t, scouts.Calls())
	assert.Contains(t, v.HTML(), "Hay campos con errores.")
	assert.Contains(t, v.HTML(), "step-badge")
}

func TestSubmit_DuplicateDocument(t *testing.T) {
	scouts := newFakeScouts()
	scouts.err = fmt.Errorf("insert scout: %w", storage.ErrDuplicateDocument)
	v, wv := mountView(t, Deps{Scouts: scouts})

	fillAll(t, v)
	v.MustEvent("jump", map[string]any{"index": 3})
	v.MustEvent("submit", nil)
	v.AwaitInfo(wait)

	assert.Contains(t, v.HTML(), "Ya hay un scout registrado con ese documento.")
	assert.NotContains(t, v.HTML(), "No pudimos guardar")
	assert.Equal(t, "12345678", wv.Session().FieldValue("documento"))
}

func TestSubmit_FailureAllowsRetry(t *testing.T) {
	scouts := newFakeScouts()
	scouts.err = errors.New("disk full")
	v, wv := mountView(t, Deps{Scouts: scouts})

	fillAll(t, v)
	v.MustEvent("jump", map[string]any{"index": 3})
	v.MustEvent("submit", nil)
	v.AwaitInfo(wait)

	assert.Contains(t, v.HTML(), "No pudimos guardar los datos.")
	assert.Equal(t, "Ana", wv.Session().FieldValue("nombres"))
	assert.NotContains(t, v.HTML(), "Guardando…")

	scouts.mu.Lock()
	scouts.err = nil
	scouts.mu.Unlock()

	v.MustEvent("submit", nil)
	v.AwaitInfo(wait)
	assert.Equal(t, 2, scouts.Calls())
	assert.Contains(t, v.HTML(), "SC-2026-0002")
}

func TestMount_EditMode(t *testing.T) {
	scouts := newFakeScouts()
	scouts.records["abc"] = wizard.Record{
		"nombres": "Ana", "apellidos": "Paz", "fecha_nacimiento": "2012-04-01", "sexo": "F",
		"documento": "12345678", "region": "norte", "subregion": "costa", "localidad": "puerto",
		"ubicacion": "Calle Falsa 123", "rama": "tropa", "fecha_ingreso": "2023-03-01",
		"contacto_nombre": "Luis", "contacto_telefono": "1122334455", "seguro_medico": false,
	}

	v, wv := mountView(t, Deps{Scouts: scouts}, livetest.WithParams(core.Params{"id": "abc"}))

	assert.Equal(t, "Editar scout", wv.Title())
	assert.Equal(t, wizard.ModeEdit, wv.Session().Mode())
	assert.Equal(t, []string{"norte", "costa", "puerto"}, wv.cascade.Selection())
	assert.NotContains(t, v.HTML(), "Recuperar borrador")

	v.MustEvent("jump", map[string]any{"index": 2})
	change(v, "patrulla", "Lobos")
	v.MustEvent("jump", map[string]any{"index": 3})
	v.MustEvent("submit", nil)
	v.AwaitInfo(wait)

	assert.Equal(t, "Lobos", scouts.records["abc"]["patrulla"])
	assert.Contains(t, v.HTML(), "Seguir editando")

	v.MustEvent("reset", nil)
	assert.Equal(t, wizard.ModeEdit, wv.Session().Mode())
	assert.Equal(t, "Ana", wv.Session().FieldValue("nombres"))
}

func TestMount_UnknownScout(t *testing.T) {
	wv := NewFactory(Deps{Scouts: newFakeScouts(), Places: testPlaces()})().(*WizardView)
	err := wv.Mount(context.Background(), core.Params{"id": "missing"}, core.Session{})
	assert.ErrorIs(t, err, live.ErrNotFound)
}

func TestDrafts_RestoreAndAutosave(t *testing.T) {
	ctx := context.Background()
	drafts := wizard.NewStateDraftStore(state.NewMemoryStore(0), 0)
	require.NoError(t, drafts.SaveDraft(ctx, "scout:abc", wizard.Record{"nombres": "Eva", "region": "sur"}))

	v, wv := mountView(t, Deps{Scouts: newFakeScouts(), Drafts: drafts},
		livetest.WithSession(core.Session{"cookie:" + DraftCookie: "abc"}))

	assert.Equal(t, "Eva", wv.Session().FieldValue("nombres"))
	assert.Equal(t, "sur", wv.cascade.Selection()[0])
	assert.Contains(t, v.HTML(), "Recuperamos los datos")

	change(v, "nombres", "Ana")
	rec, ok, err := drafts.LoadDraft(ctx, "scout:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ana", rec["nombres"])

	v.MustEvent("reset", nil)
	assert.Equal(t, "", wv.Session().FieldValue("nombres"))
	v.MustEvent("restore", nil)
	assert.Equal(t, "Ana", wv.Session().FieldValue("nombres"))
}

func TestRestore_WithoutDraft(t *testing.T) {
	v, _ := mountView(t, Deps{Scouts: newFakeScouts()})
	v.MustEvent("restore", nil)
	assert.Contains(t, v.HTML(), "No hay un borrador para recuperar.")
}

func TestUnknownEventAndField(t *testing.T) {
	v, _ := mountView(t, Deps{Scouts: newFakeScouts()})

	assert.ErrorIs(t, v.Event("explode", nil), ErrUnknownEvent)
	assert.ErrorIs(t, v.Event("change", map[string]any{"field": "nope", "value": "x"}), ErrUnknownField)
	assert.ErrorIs(t, v.Event("select", map[string]any{"field": "nombres", "value": "x"}), ErrUnknownField)
}

func TestCheckboxRequiredIf(t *testing.T) {
	v, wv := mountView(t, Deps{Scouts: newFakeScouts()})
	v.MustEvent("jump", map[string]any{"index": 3})

	change(v, "seguro_medico", true)
	assert.Contains(t, v.HTML(), "checked")
	assert.Equal(t, true, wv.Session().FieldValue("seguro_medico"))

	change(v, "seguro_numero", "")
	assert.Equal(t, "Indicá el número de afiliado", wv.Session().FieldError("seguro_numero"))

	change(v, "seguro_medico", "false")
	assert.Empty(t, wv.Session().FieldError("seguro_numero"))
}
