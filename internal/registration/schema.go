// Package registration is the scout registration wizard: the four-step
// schema and the live view that drives a wizard.Session from browser events.
package registration

import (
	"github.com/gabrielmiguelok/tropa/pkg/forms"
	"github.com/gabrielmiguelok/tropa/pkg/wizard"
)

// Place fields, in cascade order.
const (
	FieldRegion    = "region"
	FieldSubregion = "subregion"
	FieldLocalidad = "localidad"
)

// Ramas are the age sections a scout can belong to.
var Ramas = []forms.Option{
	{Value: "manada", Label: "Manada"},
	{Value: "tropa", Label: "Tropa"},
	{Value: "comunidad", Label: "Comunidad"},
	{Value: "clan", Label: "Clan"},
}

var (
	sexos = []forms.Option{
		{Value: "F", Label: "Femenino"},
		{Value: "M", Label: "Masculino"},
		{Value: "X", Label: "Otro / prefiero no decir"},
	}

	cargos = []forms.Option{
		{Value: "guia", Label: "Guía de patrulla"},
		{Value: "subguia", Label: "Subguía"},
		{Value: "intendente", Label: "Intendente"},
		{Value: "secretario", Label: "Secretario"},
	}

	gruposSanguineos = []forms.Option{
		{Value: "0+", Label: "0+"}, {Value: "0-", Label: "0-"},
		{Value: "A+", Label: "A+"}, {Value: "A-", Label: "A-"},
		{Value: "B+", Label: "B+"}, {Value: "B-", Label: "B-"},
		{Value: "AB+", Label: "AB+"}, {Value: "AB-", Label: "AB-"},
	}
)

const phonePattern = `^\+?[0-9 ()-]{6,20}$`

// Schema returns the scout registry. Steps are traversed in this order.
func Schema() *wizard.Registry {
	return wizard.MustRegistry(
		wizard.StepDefinition{
			ID:          "datos-personales",
			Title:       "Datos personales",
			Icon:        "user",
			Description: "Identidad del scout tal como figura en su documento.",
			Fields: []forms.Field{
				forms.TextField("nombres", "Nombres", forms.WithRequired(), forms.WithMaxLength(80)),
				forms.TextField("apellidos", "Apellidos", forms.WithRequired(), forms.WithMaxLength(80)),
				forms.DateField("fecha_nacimiento", "Fecha de nacimiento",
					forms.WithRequired(), forms.WithValidator(forms.NotFuture())),
				forms.RadioField("sexo", "Sexo", forms.WithRequired(), forms.WithOptions(sexos...)),
				forms.TextField("documento", "Documento", forms.WithRequired(),
					forms.WithPattern(`^[0-9]{7,12}$`, "Ingresá entre 7 y 12 dígitos, sin puntos"),
					forms.WithPlaceholder("Sólo números"),
					forms.WithHelp("Se usa para detectar inscripciones repetidas.")),
			},
		},
		wizard.StepDefinition{
			ID:          "ubicacion",
			Title:       "Ubicación",
			Icon:        "map-pin",
			Description: "Dónde vive y cómo contactarlo.",
			Fields: []forms.Field{
				forms.SelectField(FieldRegion, "Región", forms.WithRequired(), forms.WithSource(FieldRegion)),
				forms.SelectField(FieldSubregion, "Subregión", forms.WithRequired(), forms.WithSource(FieldSubregion)),
				forms.SelectField(FieldLocalidad, "Localidad", forms.WithRequired(), forms.WithSource(FieldLocalidad)),
				forms.TextField("ubicacion", "Dirección", forms.WithRequired(),
					forms.WithMinLength(5), forms.WithMaxLength(200)),
				forms.TelField("telefono", "Teléfono",
					forms.WithPattern(phonePattern, "Ingresá un teléfono válido")),
				forms.EmailField("email", "Email"),
			},
		},
		wizard.StepDefinition{
			ID:          "datos-scout",
			Title:       "Datos scout",
			Icon:        "compass",
			Description: "Rama, patrulla y trayectoria en el grupo.",
			Fields: []forms.Field{
				forms.SelectField("rama", "Rama", forms.WithRequired(), forms.WithOptions(Ramas...)),
				forms.TextField("patrulla", "Patrulla", forms.WithMaxLength(60)),
				forms.DateField("fecha_ingreso", "Fecha de ingreso", forms.WithRequired(),
					forms.WithValidator(forms.DateNotBefore("fecha_nacimiento",
						"La fecha de ingreso no puede ser anterior al nacimiento"))),
				forms.SelectField("cargo", "Cargo", forms.WithOptions(cargos...)),
			},
		},
		wizard.StepDefinition{
			ID:          "salud-contacto",
			Title:       "Salud y contacto",
			Icon:        "heart",
			Description: "A quién avisar y qué tener en cuenta en una emergencia.",
			Fields: []forms.Field{
				forms.TextField("contacto_nombre", "Contacto de emergencia", forms.WithRequired()),
				forms.TelField("contacto_telefono", "Teléfono del contacto", forms.WithRequired(),
					forms.WithPattern(phonePattern, "Ingresá un teléfono válido")),
				forms.SelectField("grupo_sanguineo", "Grupo sanguíneo", forms.WithOptions(gruposSanguineos...)),
				forms.TextareaField("alergias", "Alergias y medicación", forms.WithMaxLength(500)),
				forms.CheckboxField("seguro_medico", "Tiene seguro médico"),
				forms.TextField("seguro_numero", "Número de afiliado",
					forms.WithValidator(forms.RequiredIf("seguro_medico", forms.IsTrue,
						"Indicá el número de afiliado")),
					forms.WithHelp("Obligatorio si tiene seguro médico.")),
			},
		},
	)
}
