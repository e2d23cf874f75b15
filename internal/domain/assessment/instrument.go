package assessment

import (
	"fmt"
	"strings"
)

// Instrument codes accepted by the API.
const (
	InstrumentMentalHealth = "mental-health"
	InstrumentBDI          = "bdi-ii"
)

// Section keys of the depression/anxiety/stress instrument.
const (
	KeyDepression = "depression"
	KeyAnxiety    = "anxiety"
	KeyStress     = "stress"
)

// ScaleOption is one labelled point value of an ordinal answer scale.
type ScaleOption struct {
	Label  string `json:"label"`
	Points int    `json:"points"`
}

// Scale is the ordinal answer vocabulary shared by the scored items of an
// instrument.
type Scale struct {
	Options []ScaleOption `json:"options"`
}

// MaxPoints returns the highest point value on the scale.
func (s Scale) MaxPoints() int {
	top := 0
	for _, o := range s.Options {
		if o.Points > top {
			top = o.Points
		}
	}
	return top
}

// Points maps an answer onto the scale. Explicit points are used when they
// fall inside the scale's range; otherwise the label must match a vocabulary
// entry exactly. Anything that does not resolve scores 0.
func (s Scale) Points(a Answer) int {
	if a.Points != nil {
		if *a.Points >= 0 && *a.Points <= s.MaxPoints() {
			return *a.Points
		}
		return 0
	}
	for _, o := range s.Options {
		if o.Label == a.Label {
			return o.Points
		}
	}
	return 0
}

// Item is a single question of an instrument.
type Item struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"` // nil means the instrument scale
}

// Section groups items that are scored together. Membership is by id prefix.
type Section struct {
	Key    string `json:"key"`
	Prefix string `json:"prefix"`
	Name   string `json:"name"`
	Scored bool   `json:"scored"`
	Items  []Item `json:"items"`
}

// MaxScore is the highest raw score the section can reach on the given scale.
func (s Section) MaxScore(scale Scale) int {
	if !s.Scored {
		return 0
	}
	return len(s.Items) * scale.MaxPoints()
}

// Owns reports whether a question id belongs to the section.
func (s Section) Owns(questionID string) bool {
	return strings.HasPrefix(questionID, s.Prefix)
}

// RedFlagRule raises Message when ItemID resolves to more than zero points.
type RedFlagRule struct {
	ItemID  string `json:"item_id"`
	Message string `json:"message"`
}

// Instrument is the full schema of a questionnaire.
type Instrument struct {
	Code     string        `json:"code"`
	Title    string        `json:"title"`
	Scale    Scale         `json:"scale"`
	Sections []Section     `json:"sections"`
	RedFlags []RedFlagRule `json:"red_flags,omitempty"`
}

// ItemCount returns the number of questions across all sections.
func (in Instrument) ItemCount() int {
	n := 0
	for _, s := range in.Sections {
		n += len(s.Items)
	}
	return n
}

// Section returns the section with the given key.
func (in Instrument) Section(key string) (Section, bool) {
	for _, s := range in.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}

// SelfHarmAlert is raised when the self-harm item of the mental-health
// instrument is answered with anything above "Nunca".
const SelfHarmAlert = "ALERTA: el paciente refiere pensamientos de hacerse daño. Contactar de inmediato y valorar riesgo de autolesión."

// Ordinal frequency scale used by the scored sections.
var frequencyScale = Scale{Options: []ScaleOption{
	{Label: "Nunca", Points: 0},
	{Label: "Algunas veces", Points: 1},
	{Label: "Con frecuencia", Points: 2},
	{Label: "Siempre", Points: 3},
}}

var yesNo = []string{"Sí", "No"}

// MentalHealthInstrument is the depression/anxiety/stress questionnaire:
// six sections, 23 questions, of which dep, anx and str are scored.
var MentalHealthInstrument = Instrument{
	Code:  InstrumentMentalHealth,
	Title: "Evaluación de depresión, ansiedad y estrés",
	Scale: frequencyScale,
	Sections: []Section{
		{Key: "general", Prefix: "gen", Name: "Bienestar general", Items: []Item{
			{ID: "gen_1", Text: "¿Cómo describirías tu estado de ánimo general esta semana?", Options: []string{"Bueno", "Regular", "Malo"}},
			{ID: "gen_2", Text: "¿Cuántas horas duermes por noche en promedio?", Options: []string{"Menos de 5", "Entre 5 y 7", "Más de 7"}},
			{ID: "gen_3", Text: "¿Realizas actividad física de forma regular?", Options: yesNo},
		}},
		{Key: KeyDepression, Prefix: "dep", Name: "Depresión", Scored: true, Items: []Item{
			{ID: "dep_1", Text: "Me he sentido triste o decaído."},
			{ID: "dep_2", Text: "He perdido el interés por actividades que antes disfrutaba."},
			{ID: "dep_3", Text: "Me he sentido sin esperanza respecto al futuro."},
			{ID: "dep_4", Text: "Me he sentido inútil o culpable."},
			{ID: "dep_5_risk", Text: "He tenido pensamientos de hacerme daño."},
		}},
		{Key: KeyAnxiety, Prefix: "anx", Name: "Ansiedad", Scored: true, Items: []Item{
			{ID: "anx_1", Text: "Me he sentido nervioso o con los nervios de punta."},
			{ID: "anx_2", Text: "No he podido dejar de preocuparme."},
			{ID: "anx_3", Text: "He tenido dificultad para relajarme."},
			{ID: "anx_4", Text: "He sentido palpitaciones o falta de aire sin motivo."},
			{ID: "anx_5", Text: "He sentido miedo de que algo terrible pudiera pasar."},
		}},
		{Key: KeyStress, Prefix: "str", Name: "Estrés", Scored: true, Items: []Item{
			{ID: "str_1", Text: "Me ha costado calmarme después de algo que me alteró."},
			{ID: "str_2", Text: "He reaccionado de forma exagerada ante situaciones."},
			{ID: "str_3", Text: "Me he sentido irritable."},
			{ID: "str_4", Text: "Me he sentido abrumado por mis responsabilidades."},
		}},
		{Key: "history", Prefix: "hist", Name: "Antecedentes", Items: []Item{
			{ID: "hist_1", Text: "¿Has recibido atención psicológica anteriormente?", Options: yesNo},
			{ID: "hist_2", Text: "¿Tomas actualmente medicación psiquiátrica?", Options: yesNo},
			{ID: "hist_3", Text: "¿Hay antecedentes de salud mental en tu familia?", Options: yesNo},
		}},
		{Key: "support", Prefix: "sup", Name: "Red de apoyo", Items: []Item{
			{ID: "sup_1", Text: "¿Cuentas con alguien de confianza para hablar de tus problemas?", Options: yesNo},
			{ID: "sup_2", Text: "¿Vives acompañado?", Options: yesNo},
			{ID: "sup_3", Text: "¿Participas en actividades sociales o comunitarias?", Options: yesNo},
		}},
	},
	RedFlags: []RedFlagRule{
		{ItemID: "dep_5_risk", Message: SelfHarmAlert},
	},
}

// BDI-II item ids are bdi_1 .. bdi_21; bdi_20 is the suicidal ideation item.
const (
	bdiItemCount      = 21
	bdiMaxItemValue   = 3
	BDISuicidalItemID = "bdi_20"
)

var bdiItemTitles = [bdiItemCount]string{
	"Tristeza", "Pesimismo", "Fracaso", "Pérdida de placer", "Sentimientos de culpa",
	"Sentimientos de castigo", "Disconformidad con uno mismo", "Autocrítica", "Agitación",
	"Llanto", "Pérdida de interés", "Indecisión", "Desvalorización", "Pérdida de energía",
	"Cambios en los hábitos de sueño", "Irritabilidad", "Cambios en el apetito",
	"Dificultad de concentración", "Cansancio o fatiga", "Pensamientos o deseos suicidas",
	"Pérdida de interés en el sexo",
}

func bdiItemID(n int) string {
	return fmt.Sprintf("bdi_%d", n)
}

func bdiItems() []Item {
	items := make([]Item, 0, bdiItemCount)
	for i, title := range bdiItemTitles {
		items = append(items, Item{ID: bdiItemID(i + 1), Text: title})
	}
	return items
}

// BDIInstrument is the Beck Depression Inventory (BDI-II). Answers carry
// their value as a "<digit>: <description>" prefix.
var BDIInstrument = Instrument{
	Code:  InstrumentBDI,
	Title: "Inventario de Depresión de Beck (BDI-II)",
	Scale: Scale{Options: []ScaleOption{
		{Label: "0", Points: 0},
		{Label: "1", Points: 1},
		{Label: "2", Points: 2},
		{Label: "3", Points: 3},
	}},
	Sections: []Section{
		{Key: "bdi", Prefix: "bdi_", Name: "BDI-II", Scored: true, Items: bdiItems()},
	},
}

// Instruments lists the known instruments by code.
var Instruments = map[string]Instrument{
	InstrumentMentalHealth: MentalHealthInstrument,
	InstrumentBDI:          BDIInstrument,
}

// LookupInstrument returns the instrument registered under code.
func LookupInstrument(code string) (Instrument, error) {
	in, ok := Instruments[code]
	if !ok {
		return Instrument{}, fmt.Errorf("%w: %q", ErrUnknownInstrument, code)
	}
	return in, nil
}
