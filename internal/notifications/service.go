package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/deviantnotify/deviant-notify/internal/config"
)

// NewSink creates the sink selected by NOTIFICATION_CHANNEL
func NewSink(cfg *config.Config) (Sink, error) {
	switch cfg.NotificationChannel {
	case "", "log":
		return &LogSink{}, nil
	case "teams":
		return NewTeamsSink(cfg.TeamsWebhookURL, cfg.PublicURL), nil
	case "email":
		return NewEmailSink(cfg), nil
	}
	return nil, fmt.Errorf("unknown notification channel %q", cfg.NotificationChannel)
}

// LogSink writes notifications to the log
type LogSink struct{}

var _ Sink = (*LogSink)(nil)

func (l *LogSink) Send(_ context.Context, n *Notification) error {
	logrus.WithFields(logrus.Fields{
		"id":      n.ID,
		"sound":   n.Sound,
		"persist": n.Persist,
	}).Infof("%s: %s", n.Title, strings.ReplaceAll(n.Message, "\n", " "))
	return nil
}

func (l *LogSink) Clear(_ context.Context, id string) error {
	logrus.Debugf("Notification %s cleared", id)
	return nil
}

func (l *LogSink) SupportsButtons() bool {
	return false
}

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type            string         `json:"@type"`
	Context         string         `json:"@context"`
	Summary         string         `json:"summary"`
	Title           string         `json:"title"`
	Text            string         `json:"text"`
	ThemeColor      string         `json:"themeColor,omitempty"`
	Sections        []TeamsSection `json:"sections,omitempty"`
	PotentialAction []TeamsAction  `json:"potentialAction,omitempty"`
}

type TeamsSection struct {
	Facts []TeamsFact `json:"facts"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type TeamsAction struct {
	Type    string        `json:"@type"`
	Name    string        `json:"name"`
	Targets []TeamsTarget `json:"targets"`
}

type TeamsTarget struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

// TeamsSink posts notifications to an incoming webhook. Buttons link back to
// the daemon so clicks resolve the same way as in the browser.
type TeamsSink struct {
	client     *resty.Client
	webhookURL string
	publicURL  string
}

var _ Sink = (*TeamsSink)(nil)

func NewTeamsSink(webhookURL, publicURL string) *TeamsSink {
	return &TeamsSink{
		client:     resty.New().SetTimeout(30 * time.Second),
		webhookURL: webhookURL,
		publicURL:  strings.TrimRight(publicURL, "/"),
	}
}

func (t *TeamsSink) Send(ctx context.Context, n *Notification) error {
	message := t.buildTeamsMessage(n)

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(t.webhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (t *TeamsSink) buildTeamsMessage(n *Notification) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Summary: n.Message,
		Title:   n.Title,
		// Teams markdown needs blank lines between rows
		Text:       strings.ReplaceAll(n.Message, "\n", "\n\n"),
		ThemeColor: "05cc47",
	}

	if len(n.Details) > 0 {
		section := TeamsSection{}
		for _, d := range n.Details {
			section.Facts = append(section.Facts, TeamsFact{Name: d.Name, Value: strconv.Itoa(d.Count)})
		}
		message.Sections = []TeamsSection{section}
	}

	for i, btn := range n.Buttons {
		message.PotentialAction = append(message.PotentialAction, TeamsAction{
			Type: "OpenUri",
			Name: btn.Title,
			Targets: []TeamsTarget{{
				OS:  "default",
				URI: fmt.Sprintf("%s/notifications/%s/buttons/%d", t.publicURL, n.ID, i),
			}},
		})
	}

	return message
}

// Clear is a no-op; posted cards cannot be retracted
func (t *TeamsSink) Clear(_ context.Context, id string) error {
	logrus.Debugf("Teams notification %s expired", id)
	return nil
}

func (t *TeamsSink) SupportsButtons() bool {
	return true
}

// EmailSink mails notifications through SMTP
type EmailSink struct {
	dialer *gomail.Dialer
	from   string
	to     string
}

var _ Sink = (*EmailSink)(nil)

func NewEmailSink(cfg *config.Config) *EmailSink {
	return &EmailSink{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.SMTPUsername,
		to:     cfg.NotificationEmail,
	}
}

func (e *EmailSink) Send(_ context.Context, n *Notification) error {
	m, err := e.buildMessage(n)
	if err != nil {
		return err
	}

	if err := e.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

var emailTemplate = template.Must(template.New("email").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #05cc47; color: white; padding: 20px; border-radius: 5px; }
        .line { padding: 4px 0; }
    </style>
</head>
<body>
    <div class="header"><h1>{{.Title}}</h1></div>
    {{range .Lines}}<div class="line">{{.}}</div>
    {{end}}
</body>
</html>
`))

func (e *EmailSink) buildMessage(n *Notification) (*gomail.Message, error) {
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, struct {
		Title string
		Lines []string
	}{
		Title: n.Title,
		Lines: strings.Split(n.Message, "\n"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", e.to)
	m.SetHeader("Subject", fmt.Sprintf("%s - %s", n.Title, notificationMessage))
	m.SetBody("text/plain", n.Message)
	m.AddAlternative("text/html", buf.String())
	return m, nil
}

// Clear is a no-op; sent mail stays in the inbox
func (e *EmailSink) Clear(_ context.Context, id string) error {
	return nil
}

func (e *EmailSink) SupportsButtons() bool {
	return false
}
