package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabrielmiguelok/tropa/internal/storage"
	"github.com/gabrielmiguelok/tropa/pkg/core"
	"github.com/gabrielmiguelok/tropa/pkg/forms"
	"github.com/gabrielmiguelok/tropa/pkg/live"
	"github.com/gabrielmiguelok/tropa/pkg/logging"
	"github.com/gabrielmiguelok/tropa/pkg/lookup"
	"github.com/gabrielmiguelok/tropa/pkg/metrics"
	"github.com/gabrielmiguelok/tropa/pkg/wizard"
)

// DraftCookie names the cookie whose value keys a visitor's draft.
const DraftCookie = "tropa_draft"

const lookupTimeout = 5 * time.Second

// View errors.
var (
	ErrUnknownEvent = errors.New("registration: unknown event")
	ErrUnknownField = errors.New("registration: unknown field")
)

// ScoutStore persists scouts and loads them for editing.
type ScoutStore interface {
	wizard.Submitter
	Get(ctx context.Context, id string) (wizard.Record, error)
}

// PlaceSources feed the region, sub-region and locality selectors.
type PlaceSources struct {
	Regions    lookup.Source
	Subregions lookup.Source
	Localities lookup.Source
}

// Deps are the collaborators shared by every wizard view.
type Deps struct {
	Scouts ScoutStore
	Places PlaceSources
	Drafts wizard.DraftStore

	// SubmitTimeout bounds one submission. Defaults to 10s.
	SubmitTimeout time.Duration

	Logger  logging.Logger
	Metrics *metrics.Metrics
}

// NewFactory returns the live.Handler factory for the scout wizard.
func NewFactory(deps Deps) func() core.Component {
	reg := Schema()
	return func() core.Component {
		return NewWizardView(reg, deps)
	}
}

// submitDone carries the outcome of a background submission back to the
// event loop.
type submitDone struct {
	result wizard.SubmitResult
	err    error
}

// lookupDone reports that a background cascade selection finished.
type lookupDone struct {
	level int
	err   error
}

type selectRequest struct {
	level int
	id    string
}

// WizardView is the live component of the scout registration wizard.
type WizardView struct {
	core.BaseComponent

	reg  *wizard.Registry
	deps Deps

	sess    *wizard.Session
	cascade *lookup.Cascade
	editing wizard.Record

	pending bool
	flash   []wizard.Notice
	done    *wizard.SubmitResult
	selects chan selectRequest
	logger  logging.Logger
}

// NewWizardView creates an unmounted view.
func NewWizardView(reg *wizard.Registry, deps Deps) *WizardView {
	if deps.Logger == nil {
		deps.Logger = logging.NopLogger{}
	}
	if deps.SubmitTimeout <= 0 {
		deps.SubmitTimeout = 10 * time.Second
	}
	return &WizardView{
		reg:    reg,
		deps:   deps,
		logger: deps.Logger.With(logging.String("component", "scout-wizard")),
	}
}

func (v *WizardView) Name() string {
	return "scout-wizard"
}

// Title names the page.
func (v *WizardView) Title() string {
	if v.editing != nil {
		return "Editar scout"
	}
	return "Nuevo scout"
}

// Session exposes the wizard session.
func (v *WizardView) Session() *wizard.Session {
	return v.sess
}

// Mount opens the session in edit mode when an id param is present, and in
// create mode otherwise, restoring the visitor's draft if there is one.
func (v *WizardView) Mount(ctx context.Context, params core.Params, session core.Session) error {
	opts := []wizard.Option{
		wizard.WithSubmitter(v.deps.Scouts),
		wizard.WithLogger(v.logger),
		wizard.WithMetrics(v.deps.Metrics),
		wizard.WithNoticeText(
			"No pudimos guardar los datos. Revisá la conexión e intentá de nuevo.",
			func(r wizard.SubmitResult) string { return "Scout guardado con el código " + r.DisplayCode },
		),
	}

	if id := params.Get("id"); id != "" {
		rec, err := v.deps.Scouts.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: scout %s", live.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("load scout %s: %w", id, err)
		}
		v.editing = rec
		opts = append(opts, wizard.WithInitialRecord(rec))
	} else if key := session.GetString("cookie:" + DraftCookie); key != "" && v.deps.Drafts != nil {
		opts = append(opts, wizard.WithDraftStore(v.deps.Drafts, "scout:"+key))
	}

	v.sess = wizard.New(v.reg, opts...)

	cascade, err := lookup.NewCascade(v.logger,
		lookup.Level{Name: FieldRegion, Field: FieldRegion, Source: v.deps.Places.Regions},
		lookup.Level{Name: FieldSubregion, Field: FieldSubregion, Source: v.deps.Places.Subregions},
		lookup.Level{Name: FieldLocalidad, Field: FieldLocalidad, Source: v.deps.Places.Localities},
	)
	if err != nil {
		return err
	}
	v.cascade = cascade

	if v.editing == nil && v.sess.RestoreDraft(ctx) {
		v.flash = append(v.flash, wizard.Notice{Level: wizard.NoticeInfo, Message: "Recuperamos los datos que habías cargado."})
	}
	v.hydrate(ctx)

	if v.Connected() {
		v.selects = make(chan selectRequest, 8)
		go v.lookupWorker(v.selects)
	}
	return nil
}

// hydrate reloads the place selectors from the record. Failures leave the
// affected selector disabled; the rest of the wizard keeps working.
func (v *WizardView) hydrate(ctx context.Context) {
	rec := v.sess.Record()
	err := v.cascade.Hydrate(ctx, rec.String(FieldRegion), rec.String(FieldSubregion), rec.String(FieldLocalidad))
	if err != nil {
		v.logger.Warn("place selectors degraded", logging.Err(err))
	}
}

// lookupWorker applies cascade selections in the order they were made and
// wakes the event loop after each one.
func (v *WizardView) lookupWorker(reqs <-chan selectRequest) {
	for req := range reqs {
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		err := v.cascade.Select(ctx, req.level, req.id)
		cancel()
		if sock := v.Socket(); sock != nil {
			if serr := sock.SendInfo(lookupDone{level: req.level, err: err}); serr != nil {
				v.logger.Debug("lookup result dropped", logging.Err(serr))
			}
		}
	}
}

// HandleEvent applies one browser event to the session.
func (v *WizardView) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	v.flash = nil

	switch event {
	case "change":
		return v.change(ctx, payload)
	case "select":
		return v.selectPlace(ctx, payload)
	case "next":
		if !v.sess.Next() {
			v.warn("Revisá los campos marcados para continuar.")
		}
	case "prev":
		v.sess.Previous()
	case "jump":
		return v.jump(payload)
	case "submit":
		v.submit(ctx)
	case "reset":
		v.reset(ctx)
	case "restore":
		if v.editing != nil || !v.sess.RestoreDraft(ctx) {
			v.warn("No hay un borrador para recuperar.")
			return nil
		}
		v.hydrate(ctx)
		v.flash = append(v.flash, wizard.Notice{Level: wizard.NoticeInfo, Message: "Recuperamos los datos que habías cargado."})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	return nil
}

func (v *WizardView) change(ctx context.Context, payload map[string]any) error {
	name, _ := payload["field"].(string)
	f, ok := v.reg.Field(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if _, isPlace := v.cascade.IndexOf(name); isPlace {
		return v.selectPlace(ctx, payload)
	}
	v.sess.SetField(name, forms.Coerce(f, payload["value"]))
	v.sess.Autosave(ctx)
	return nil
}

// selectPlace stores a place selection, clears the deeper places and loads
// the options of the next level. Ids that are not offered under the current
// parent are rejected before the session changes.
func (v *WizardView) selectPlace(ctx context.Context, payload map[string]any) error {
	name, _ := payload["field"].(string)
	id, _ := payload["value"].(string)
	i, ok := v.cascade.IndexOf(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if err := v.cascade.Check(i, id); err != nil {
		return fmt.Errorf("select %s: %w", name, err)
	}

	v.sess.SetField(name, id)
	for _, l := range v.cascade.Levels()[i+1:] {
		v.sess.ClearField(l.Field)
	}
	v.sess.Autosave(ctx)

	if v.selects != nil {
		v.cascade.Begin(i)
		select {
		case v.selects <- selectRequest{level: i, id: id}:
			return nil
		default:
		}
	}
	if err := v.cascade.Select(ctx, i, id); err != nil {
		v.logger.Warn("place selection failed", logging.String("level", name), logging.Err(err))
	}
	return nil
}

func (v *WizardView) jump(payload map[string]any) error {
	var k int
	switch {
	case payload["step"] != nil:
		id, _ := payload["step"].(string)
		i, ok := v.reg.Index(id)
		if !ok {
			return fmt.Errorf("%w: step %q", wizard.ErrStepOutOfRange, id)
		}
		k = i
	default:
		n, ok := forms.ToFloat64(payload["index"])
		if !ok {
			return fmt.Errorf("%w: %v", wizard.ErrStepOutOfRange, payload["index"])
		}
		k = int(n)
	}
	return v.sess.JumpTo(k)
}

// submit hands the record to the store in the background. The outcome comes
// back through HandleInfo; until then the submit button stays disabled.
func (v *WizardView) submit(ctx context.Context) {
	if v.pending || v.done != nil || v.sess.IsSubmitting() {
		return
	}

	sock := v.Socket()
	if sock == nil {
		sctx, cancel := context.WithTimeout(ctx, v.deps.SubmitTimeout)
		res, err := v.sess.Submit(sctx)
		cancel()
		v.applySubmit(submitDone{result: res, err: err})
		return
	}

	v.pending = true
	sess, timeout := v.sess, v.deps.SubmitTimeout
	go func() {
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := sess.Submit(sctx)
		if serr := sock.SendInfo(submitDone{result: res, err: err}); serr != nil {
			v.logger.Warn("submission result dropped", logging.Err(serr))
		}
	}()
}

func (v *WizardView) applySubmit(d submitDone) {
	v.pending = false
	switch {
	case d.err == nil:
		v.done = &d.result
	case errors.Is(d.err, wizard.ErrValidationFailed):
		v.warn("Hay campos con errores. Te llevamos a la primera sección a corregir.")
	case errors.Is(d.err, storage.ErrDuplicateDocument):
		v.sess.Notices()
		v.flash = append(v.flash, wizard.Notice{Level: wizard.NoticeError, Message: "Ya hay un scout registrado con ese documento."})
	case errors.Is(d.err, wizard.ErrSubmitFailed):
		// The session queued its own notice.
	default:
		v.logger.Warn("submission rejected", logging.Err(d.err))
	}
	v.flash = append(v.flash, v.sess.Notices()...)
}

func (v *WizardView) reset(ctx context.Context) {
	v.sess.Reset(v.editing)
	v.done = nil
	v.hydrate(ctx)
}

// HandleInfo receives background results.
func (v *WizardView) HandleInfo(ctx context.Context, msg any) error {
	switch m := msg.(type) {
	case submitDone:
		v.flash = nil
		v.applySubmit(m)
	case lookupDone:
		if m.err != nil {
			v.logger.Warn("place options unavailable", logging.Int("level", m.level), logging.Err(m.err))
		}
	}
	return nil
}

// Terminate stops the lookup worker and discards the session.
func (v *WizardView) Terminate(ctx context.Context, reason core.TerminateReason) error {
	if v.selects != nil {
		close(v.selects)
		v.selects = nil
	}
	if v.sess != nil {
		v.sess.Close()
	}
	return nil
}

func (v *WizardView) warn(msg string) {
	v.flash = append(v.flash, wizard.Notice{Level: wizard.NoticeWarning, Message: msg})
}
