package notify

import (
	"fmt"
	"strings"

	"cryptotrack-alerts/internal/types"
	"cryptotrack-alerts/lib/helpers"
	"cryptotrack-alerts/lib/translation"
)

// Message is a rendered notification, ready for any transport.
type Message struct {
	From    string
	To      string
	Subject string
	// HTML is the email body.
	HTML string
	// Text is a MarkdownV2 rendering for chat transports.
	Text string
}

type line struct {
	label string
	value string
}

// Render builds the notification for a triggered alert.
func Render(from, to string, a types.Alert, snapshot types.Snapshot) Message {
	asset := helpers.UpperAsset(a.Asset)
	kind := string(a.Condition.Kind())
	lines := conditionLines(a.Condition, snapshot)

	title := translation.Translate("Crypto Alert Triggered")
	intro := translation.Translate("Your %s alert for %s has been triggered.", kind, asset)

	htmlLines := make([]string, 0, len(lines))
	textLines := make([]string, 0, len(lines))
	for _, l := range lines {
		htmlLines = append(htmlLines, helpers.EscapeHTML(l.label+": "+l.value))
		textLines = append(textLines, fmt.Sprintf("*%s:* %s", helpers.EscapeMarkdownV2(l.label), helpers.EscapeMarkdownV2(l.value)))
	}

	html := fmt.Sprintf("<h2>%s</h2>\n<p>%s</p>\n<p>%s</p>\n",
		helpers.EscapeHTML(title),
		helpers.EscapeHTML(intro),
		strings.Join(htmlLines, "<br>"),
	)

	text := fmt.Sprintf("🔔 *%s*\n%s\n\n%s",
		helpers.EscapeMarkdownV2(title),
		helpers.EscapeMarkdownV2(intro),
		strings.Join(textLines, "\n"),
	)

	return Message{
		From:    from,
		To:      to,
		Subject: translation.Translate("%s Alert Triggered", asset),
		HTML:    html,
		Text:    text,
	}
}

func conditionLines(c types.Condition, s types.Snapshot) []line {
	switch cond := c.(type) {
	case types.PriceCondition:
		return []line{
			{translation.Translate("Current price"), "$" + helpers.FormatPriceUS(s.CurrentPrice)},
			{translation.Translate("Target price"), orDash(cond.Threshold, func(v float64) string { return "$" + helpers.FormatPriceUS(v) })},
		}
	case types.PercentChangeCondition:
		return []line{
			{translation.Translate("24h Price Change"), helpers.FormatPercent(s.PercentChange24h) + "%"},
			{translation.Translate("Target Change"), orDash(cond.Threshold, func(v float64) string { return helpers.FormatPercent(v) + "%" })},
		}
	case types.VolumeCondition:
		return []line{
			{translation.Translate("24h Volume"), "$" + helpers.FormatVolumeUS(s.TotalVolume24h)},
			{translation.Translate("Volume Threshold"), orDash(cond.Threshold, func(v float64) string { return "$" + helpers.FormatVolumeUS(v) })},
		}
	}
	return nil
}

func orDash(v *float64, format func(float64) string) string {
	if v == nil {
		return "-"
	}
	return format(*v)
}
