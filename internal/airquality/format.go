package airquality

import (
	"fmt"
	"html"
	"strings"
)

// FormatMessage renders the reading as a Telegram HTML message for the given
// location name.
func FormatMessage(r *Reading, location string) string {
	band := r.Band()

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>Air quality in %s</b>\n", band.Emoji(), html.EscapeString(location))
	if r.Weather != nil {
		fmt.Fprintf(&b, "\n%s\n", r.Weather.Line())
	}
	fmt.Fprintf(&b, "\n<b>AQI:</b> %d\n", r.AQI)
	fmt.Fprintf(&b, "<b>Level:</b> %s\n", band.Title())
	fmt.Fprintf(&b, "<b>Main pollutant:</b> %s\n\n", html.EscapeString(PollutantName(r.MainPollutant)))
	fmt.Fprintf(&b, "💡 <i>%s</i>", band.Recommendation())
	return b.String()
}
