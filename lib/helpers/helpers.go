package helpers

import (
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func EscapeMarkdownV2(text string) string {
	charactersToEscape := []string{"\\", ".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

	for _, char := range charactersToEscape {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// EscapeHTML escapes text for inclusion in an email body.
func EscapeHTML(text string) string {
	return html.EscapeString(text)
}

// FormatPriceUS formats a USD price with thousands separators. Cheap coins keep more decimals.
func FormatPriceUS(price float64) string {
	decimals := 6

	abs := math.Abs(price)
	if abs > 1.2 {
		decimals = 2
	} else if abs < 0.00001 && abs != 0 {
		decimals = 8
	}

	p := message.NewPrinter(language.English)
	return p.Sprintf("%.*f", decimals, price)
}

// FormatPercent formats a signed percentage with two decimals.
func FormatPercent(percent float64) string {
	return fmt.Sprintf("%.2f", percent)
}

// FormatVolumeUS formats a volume rounded to whole units with thousands separators.
func FormatVolumeUS(volume float64) string {
	return humanize.Commaf(math.Round(volume))
}

// UpperAsset is the display form of an asset slug.
func UpperAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
