// Package notify renders alert notifications and delivers them over SMTP and
// push channels.
package notify

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/geo"
)

// Alert is everything a channel needs to notify about one admitted alert.
type Alert struct {
	AlertID    int64
	CaseID     string
	Name       string
	Similarity float64
	Location   *geo.Point
	CapturedAt time.Time

	To []string
	Cc []string

	Image     []byte // evidence frame, embedded inline by the mail channel
	ImageName string
}

// Sender delivers an alert over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, alert *Alert) error
}

// Subject returns the mail subject line.
func (a *Alert) Subject() string {
	return "HIGH PRIORITY ALERT: Match Found for Case ID " + a.CaseID
}

// Percent formats the similarity as a percentage with two decimals.
func (a *Alert) Percent() string {
	return fmt.Sprintf("%.2f%%", a.Similarity*100)
}

// LocationText returns the coordinates or the unavailable marker.
func (a *Alert) LocationText() string {
	if a.Location == nil {
		return constants.LocationUnavailable
	}
	return a.Location.String()
}

// MapURL returns a map link, empty when the location is unknown.
func (a *Alert) MapURL() string {
	if a.Location == nil {
		return ""
	}
	return a.Location.MapURL()
}

// ImageCID is the Content-ID of the inline evidence image.
const ImageCID = "evidence"

const textBody = `URGENT: A possible match has been detected.

Case ID: {{.CaseID}}
{{- if .Name}}
Name: {{.Name}}
{{- end}}
Confidence: {{.Percent}} | Location: {{.LocationText}}
{{- if .MapURL}}
Map: {{.MapURL}}
{{- end}}
Captured: {{.CapturedAt.UTC.Format "2006-01-02 15:04:05 MST"}}

The evidence frame is attached to this message.
`

const htmlBody = `<html><body>
<h2 style="color:#b00020">URGENT: Possible match detected</h2>
<p><strong>Case ID:</strong> {{.CaseID}}{{if .Name}} ({{.Name}}){{end}}</p>
<p><strong>Confidence:</strong> {{.Percent}} | <strong>Location:</strong> {{.LocationText}}</p>
{{if .MapURL}}<p><a href="{{.MapURL}}">Open location in Google Maps</a></p>{{end}}
<p><strong>Captured:</strong> {{.CapturedAt.UTC.Format "2006-01-02 15:04:05 MST"}}</p>
{{if .HasImage}}<p><img src="cid:{{.CID}}" alt="evidence frame" style="max-width:640px"></p>{{end}}
</body></html>
`

const pushBody = `Match for case {{.CaseID}}: {{.Percent}} at {{.LocationText}}{{if .MapURL}} {{.MapURL}}{{end}}`

var (
	textTmpl = template.Must(template.New("text").Parse(textBody))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(htmlBody))
	pushTmpl = template.Must(template.New("push").Parse(pushBody))
)

type htmlData struct {
	*Alert
	HasImage bool
	CID      string
}

// RenderText renders the plain text mail body.
func RenderText(a *Alert) (string, error) {
	return render(textTmpl, a)
}

// RenderHTML renders the HTML mail body referencing the inline image.
func RenderHTML(a *Alert) (string, error) {
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, htmlData{Alert: a, HasImage: len(a.Image) > 0, CID: ImageCID}); err != nil {
		return "", fmt.Errorf("render html body: %w", err)
	}
	return buf.String(), nil
}

// RenderPush renders the short push message.
func RenderPush(a *Alert) (string, error) {
	return render(pushTmpl, a)
}

func render(t *template.Template, a *Alert) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, a); err != nil {
		return "", fmt.Errorf("render %s body: %w", t.Name(), err)
	}
	return buf.String(), nil
}
