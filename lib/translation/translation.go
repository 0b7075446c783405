package translation

import (
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Configure loads message catalogs from dir for lang. Missing catalogs leave messages untranslated.
func Configure(dir, lang string) {
	gotext.Configure(dir, normalizeLanguage(lang), "default")
}

// normalizeLanguage turns locale values such as "en_US.UTF-8" into "en_us" and defaults to "en".
func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, ".@"); i >= 0 {
		lang = lang[:i]
	}

	if lang == "" || lang == "c" || lang == "posix" || lang == "und" {
		return "en"
	}

	return lang
}

// Translate returns msgID in the configured language, formatted with vars.
func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
