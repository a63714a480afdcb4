package formatter

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/r9s-ai/erbfmt/internal/beautify"
)

// UnsupportedMessage is shown once for every request in a language without a
// routine.
const UnsupportedMessage = "Sorry, this language is not supported. Only support CSS and HTML."

// Route binds a language id to its routine and the formatter.json key its
// options are read from.
type Route struct {
	LanguageID string
	ConfigKey  string
	Family     beautify.Family
	Routine    beautify.Routine
}

var routes = map[string]Route{
	"css.erb":  {LanguageID: "css.erb", ConfigKey: "css.erb", Family: beautify.FamilyCSS, Routine: beautify.CSS},
	"scss.erb": {LanguageID: "scss.erb", ConfigKey: "css", Family: beautify.FamilyCSS, Routine: beautify.CSS},
	"html.erb": {LanguageID: "html.erb", ConfigKey: "html.erb", Family: beautify.FamilyHTML, Routine: beautify.HTML},
}

// onSaveLanguages are the ids the save hook reformats.
var onSaveLanguages = map[string]bool{
	"css.erb":  true,
	"scss.erb": true,
	"html.erb": true,
}

// Dispatch returns the route for languageID. A miss sends UnsupportedMessage
// to n exactly once.
func Dispatch(languageID string, n Notifier) (Route, bool) {
	r, ok := routes[languageID]
	if !ok {
		if n != nil {
			n.Notify(UnsupportedMessage)
		}
		return Route{}, false
	}
	return r, true
}

// Languages lists the supported language ids in sorted order.
func Languages() []string {
	out := make([]string, 0, len(routes))
	for id := range routes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ConfigKeys lists the formatter.json keys some route reads.
func ConfigKeys() []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		if !seen[r.ConfigKey] {
			seen[r.ConfigKey] = true
			out = append(out, r.ConfigKey)
		}
	}
	sort.Strings(out)
	return out
}

// LanguageForPath derives the language id from a file name suffix such as
// "app.html.erb".
func LanguageForPath(path string) (string, bool) {
	base := strings.ToLower(filepath.Base(path))
	for _, id := range Languages() {
		if strings.HasSuffix(base, "."+id) {
			return id, true
		}
	}
	return "", false
}

// Suggest returns the supported id closest to languageID, if any is within
// three edits.
func Suggest(languageID string) (string, bool) {
	best, bestDist := "", 4
	for _, id := range Languages() {
		if d := levenshtein.ComputeDistance(strings.ToLower(languageID), id); d < bestDist {
			best, bestDist = id, d
		}
	}
	return best, best != ""
}
