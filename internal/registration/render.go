package registration

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/gabrielmiguelok/tropa/pkg/core"
	"github.com/gabrielmiguelok/tropa/pkg/forms"
	"github.com/gabrielmiguelok/tropa/pkg/wizard"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))

type stepView struct {
	Index  int
	ID     string
	Title  string
	Icon   string
	Status string
	Errors int
}

type optionView struct {
	Value    string
	Label    string
	Selected bool
}

type fieldView struct {
	Name        string
	Label       string
	Type        string
	Value       string
	Checked     bool
	Required    bool
	Placeholder string
	Help        string
	Error       string
	Event       string
	Options     []optionView
	Loading     bool
	Disabled    bool
	Unavailable bool
}

type pageView struct {
	Title      string
	Editing    bool
	Steps      []stepView
	Progress   int
	Active     int
	Step       wizard.StepDefinition
	Fields     []fieldView
	First      bool
	Last       bool
	Submitting bool
	Notices    []wizard.Notice
	Done       *wizard.SubmitResult
}

// Render draws the stepper, the active section and pending notifications.
func (v *WizardView) Render(ctx context.Context) core.Renderer {
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		return templates.ExecuteTemplate(w, "wizard.html", v.view())
	})
}

func (v *WizardView) view() pageView {
	active := v.sess.Active()
	pv := pageView{
		Title:      v.Title(),
		Editing:    v.editing != nil,
		Progress:   v.sess.Progress(),
		Active:     active,
		Submitting: v.pending || v.sess.IsSubmitting(),
		Notices:    v.flash,
		Done:       v.done,
	}
	if active < 0 {
		return pv
	}

	for _, s := range v.sess.Steps() {
		pv.Steps = append(pv.Steps, stepView{
			Index:  s.Index,
			ID:     s.Step.ID,
			Title:  s.Step.Title,
			Icon:   s.Step.Icon,
			Status: s.Status.String(),
			Errors: s.Errors,
		})
	}

	pv.Step = v.reg.Step(active)
	pv.First = active == 0
	pv.Last = active == v.reg.Len()-1

	rec := v.sess.Record()
	errs := v.sess.Errors()
	for _, f := range pv.Step.Fields {
		pv.Fields = append(pv.Fields, v.fieldView(f, rec[f.Name], errs.Get(f.Name)))
	}
	return pv
}

func (v *WizardView) fieldView(f forms.Field, value any, errMsg string) fieldView {
	fv := fieldView{
		Name:        f.Name,
		Label:       f.Label,
		Type:        string(f.Type),
		Value:       stringValue(value),
		Required:    f.Required,
		Placeholder: f.Placeholder,
		Help:        f.Help,
		Error:       errMsg,
		Event:       "change",
	}
	if f.Type == forms.FieldCheckbox {
		fv.Checked = forms.IsTrue(value)
	}

	if i, ok := v.cascade.IndexOf(f.Name); ok {
		st := v.cascade.State(i)
		fv.Event = "select"
		fv.Loading = st.Loading
		fv.Disabled = st.Disabled
		fv.Unavailable = st.Err != nil
		for _, o := range st.Options {
			fv.Options = append(fv.Options, optionView{Value: o.ID, Label: o.Label, Selected: o.ID == fv.Value})
		}
		return fv
	}

	for _, o := range f.Options {
		if o.Disabled {
			continue
		}
		fv.Options = append(fv.Options, optionView{Value: o.Value, Label: o.Label, Selected: o.Value == fv.Value})
	}
	return fv
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return ""
	default:
		return fmt.Sprint(t)
	}
}
