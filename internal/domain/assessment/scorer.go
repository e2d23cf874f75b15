package assessment

import "sort"

// Severity thresholds shared by every scored section.
const (
	leveThreshold     = 4
	moderadoThreshold = 8
	graveThreshold    = 13
)

var levelAdvice = map[Level]string{
	LevelNormal:   "Sin indicadores relevantes. No se requiere intervención; mantén tus hábitos de autocuidado.",
	LevelLeve:     "Síntomas leves. Se recomienda seguimiento y practicar estrategias de autocuidado.",
	LevelModerado: "Síntomas moderados. Se recomienda consultar con un profesional de la salud mental.",
	LevelGrave:    "Síntomas graves. Se recomienda intervención profesional intensiva lo antes posible.",
}

// ClassifySection maps a raw section score onto its severity level.
func ClassifySection(score int) Level {
	switch {
	case score >= graveThreshold:
		return LevelGrave
	case score >= moderadoThreshold:
		return LevelModerado
	case score >= leveThreshold:
		return LevelLeve
	default:
		return LevelNormal
	}
}

// Advice returns the fixed advisory text for a level.
func Advice(l Level) string {
	return levelAdvice[l]
}

// latestByID indexes responses by question id. A repeated id keeps its last
// answer.
func latestByID(responses []Response) map[string]Answer {
	answers := make(map[string]Answer, len(responses))
	for _, r := range responses {
		answers[r.QuestionID] = r.Answer
	}
	return answers
}

// ScoreSections evaluates responses against an instrument with depression, anxiety
// and stress sections. Responses whose id matches no scored section are
// ignored; answers outside the scale count as zero.
func ScoreSections(in Instrument, responses []Response) AssessmentResult {
	answers := latestByID(responses)
	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := AssessmentResult{RedFlags: []string{}}
	for _, sec := range in.Sections {
		if !sec.Scored {
			continue
		}

		raw := 0
		for _, id := range ids {
			if sec.Owns(id) {
				raw += in.Scale.Points(answers[id])
			}
		}
		for _, rule := range in.RedFlags {
			if !sec.Owns(rule.ItemID) {
				continue
			}
			if a, ok := answers[rule.ItemID]; ok && in.Scale.Points(a) > 0 {
				result.RedFlags = append(result.RedFlags, rule.Message)
			}
		}

		level := ClassifySection(raw)
		score := SectionScore{
			RawScore: raw,
			MaxScore: sec.MaxScore(in.Scale),
			Level:    level,
			Advice:   Advice(level),
		}
		switch sec.Key {
		case KeyDepression:
			result.Depression = score
		case KeyAnxiety:
			result.Anxiety = score
		case KeyStress:
			result.Stress = score
		}
		result.TotalScore += raw
	}
	return result
}

// ScoreMentalHealth scores the depression/anxiety/stress instrument.
func ScoreMentalHealth(responses []Response) AssessmentResult {
	return ScoreSections(MentalHealthInstrument, responses)
}
