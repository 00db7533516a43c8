package entity

import "strings"

// DefaultLanguage is used when a language has no status table.
const DefaultLanguage = "en"

// statusLabels maps screen_mode_flag codes to display text per language.
var statusLabels = map[string]map[int64]string{
	"en": {
		0: "Standby",
		1: "Heating",
		2: "Boost heating",
		3: "Temperature reached",
		4: "No control signal",
		5: "Error",
		6: "Blocked",
	},
	"de": {
		0: "Standby",
		1: "Heizen",
		2: "Boost-Heizen",
		3: "Temperatur erreicht",
		4: "Kein Regelsignal",
		5: "Fehler",
		6: "Gesperrt",
	},
}

// Languages returns the languages with a status table.
func Languages() []string {
	return []string{"de", "en"}
}

// SupportsLanguage reports whether lang, ignoring any region suffix, has a
// status table.
func SupportsLanguage(lang string) bool {
	_, ok := statusLabels[normalizeLanguage(lang)]
	return ok
}

// StatusLabel decodes a status code. Region suffixes ("de-AT") are stripped
// and unknown languages use English. Unknown codes report false.
func StatusLabel(lang string, code int64) (string, bool) {
	table, ok := statusLabels[normalizeLanguage(lang)]
	if !ok {
		table = statusLabels[DefaultLanguage]
	}
	label, ok := table[code]
	return label, ok
}

func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}
