package aggregator

import (
	"regexp"
	"strings"
)

// languageAliases map a raw language prefix to a canonical name before suffix stripping.
var languageAliases = []struct {
	prefix string
	name   string
}{
	{prefix: "Perl6", name: "Raku"},
}

// versionSuffix matches a trailing "<digits><spaces>(<anything>)" such as "14 (GCC 5.4.1)".
var versionSuffix = regexp.MustCompile(`\d*\s*\(.*\)$`)

// SimplifyLanguage folds compiler and version variants into one language name:
// "C++14 (GCC 5.4.1)" becomes "C++", "Perl (5)" becomes "Perl".
func SimplifyLanguage(language string) string {
	for _, alias := range languageAliases {
		if strings.HasPrefix(language, alias.prefix) {
			return alias.name
		}
	}
	return strings.TrimSpace(versionSuffix.ReplaceAllString(language, ""))
}
