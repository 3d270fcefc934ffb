package report

import (
	"fmt"
	"strings"

	"github.com/k3a/html2text"
	"github.com/tkoskela/inatwatch/internal/inat"
)

// renderDigest builds the digest title and plain-text body. The body is
// composed as minimal HTML and flattened with html2text so list markup
// degrades cleanly on plain-text services.
func renderDigest(d *Digest) (title, body string) {
	title = fmt.Sprintf("%s digest: %d new, %d earlier", d.NodeName, len(d.New), len(d.Old))

	var b strings.Builder
	fmt.Fprintf(&b, "<p>Observations from %s to %s.</p>",
		d.Coverage.WindowStart.Format("2006-01-02 15:04"),
		d.Coverage.WindowEnd.Format("2006-01-02 15:04"))

	if d.Coverage.Truncated {
		fmt.Fprintf(&b, "<p><b>Note:</b> only the first %d of %d matching observations are included.</p>",
			len(d.New)+len(d.Old), d.Coverage.TotalResults)
	}

	writeBucket(&b, "New sightings", d.New)
	writeBucket(&b, "Earlier sightings", d.Old)

	return title, html2text.HTML2Text(b.String())
}

// renderAlert builds the alert title and body, a single undecorated list.
func renderAlert(a *Alert) (title, body string) {
	title = fmt.Sprintf("%s watchlist alert: %d sighting(s)", a.NodeName, len(a.Observations))

	var b strings.Builder
	fmt.Fprintf(&b, "<p>Watchlist sightings since %s.</p>",
		a.Coverage.WindowStart.Format("2006-01-02 15:04"))
	writeBucket(&b, "", a.Observations)

	return title, html2text.HTML2Text(b.String())
}

func writeBucket(b *strings.Builder, heading string, observations []inat.Observation) {
	if len(observations) == 0 {
		return
	}
	if heading != "" {
		fmt.Fprintf(b, "<h3>%s</h3>", heading)
	}
	b.WriteString("<ul>")
	for i := range observations {
		writeObservation(b, &observations[i])
	}
	b.WriteString("</ul>")
}

func writeObservation(b *strings.Builder, o *inat.Observation) {
	b.WriteString("<li>")
	fmt.Fprintf(b, "<b>%s</b> (<i>%s</i>)", o.DisplayName(), o.Taxon.Name)
	if date, ok := o.ObservedOnDate(); ok {
		fmt.Fprintf(b, " observed %s", date.Format("2006-01-02"))
	}
	if o.PlaceGuess != "" && !o.Obscured {
		fmt.Fprintf(b, " at %s", o.PlaceGuess)
	}
	if o.User.Login != "" {
		fmt.Fprintf(b, " by %s", o.User.Login)
	}
	if o.RarityCount != nil {
		fmt.Fprintf(b, ", %d local records (%s)", *o.RarityCount, o.RarityMethod)
	}
	if o.URI != "" {
		fmt.Fprintf(b, " %s", o.URI)
	}
	b.WriteString("</li>")
}
