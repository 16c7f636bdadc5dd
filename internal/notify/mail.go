package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/reunite/internal/config"
	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/faces"
	"github.com/wneessen/go-mail"
)

// ErrNoRecipients is returned when an alert has nobody to notify.
var ErrNoRecipients = errors.New("alert has no recipients")

// maxInlineImageDim bounds the inline evidence image.
const maxInlineImageDim = 1280

// transport sends composed messages. *mail.Client satisfies it.
type transport interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer sends alerts over SMTP.
type Mailer struct {
	from   string
	client transport
}

// NewMailer creates an SMTP mailer from configuration.
func NewMailer(cfg *config.SMTPConfig) (*Mailer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("SMTP host and sender address are required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(orDefault(cfg.Timeout, constants.DefaultSMTPTimeout)),
	}
	opts = append(opts, mail.WithTLSPolicy(tlsPolicy(cfg.TLS)))
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create SMTP client: %w", err)
	}
	return &Mailer{from: cfg.From, client: client}, nil
}

// tlsPolicy requires STARTTLS when asked to, and otherwise still upgrades
// whenever the server offers it.
func tlsPolicy(required bool) mail.TLSPolicy {
	if required {
		return mail.TLSMandatory
	}
	return mail.TLSOpportunistic
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Name implements Sender.
func (m *Mailer) Name() string {
	return "smtp"
}

// Send composes and delivers the alert.
func (m *Mailer) Send(ctx context.Context, a *Alert) error {
	msg, err := m.Compose(a)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send alert %d: %w", a.AlertID, err)
	}
	return nil
}

// Compose builds the mail message: plain text with an HTML alternative and the
// evidence frame embedded inline.
func (m *Mailer) Compose(a *Alert) (*mail.Msg, error) {
	if len(a.To) == 0 {
		return nil, ErrNoRecipients
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(a.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	if len(a.Cc) > 0 {
		if err := msg.Cc(a.Cc...); err != nil {
			return nil, fmt.Errorf("invalid cc address: %w", err)
		}
	}
	msg.Subject(a.Subject())
	msg.SetImportance(mail.ImportanceUrgent)

	text, err := RenderText(a)
	if err != nil {
		return nil, err
	}
	html, err := RenderHTML(a)
	if err != nil {
		return nil, err
	}
	msg.SetBodyString(mail.TypeTextPlain, text)
	msg.AddAlternativeString(mail.TypeTextHTML, html)

	if len(a.Image) > 0 {
		img, err := faces.Thumbnail(a.Image, maxInlineImageDim)
		if err != nil {
			img = a.Image
		}
		name := a.ImageName
		if name == "" {
			name = ImageCID + ".jpg"
		}
		if err := msg.EmbedReader(name, bytes.NewReader(img),
			mail.WithFileContentID(ImageCID),
			mail.WithFileContentType(mail.ContentType(faces.DetectMIMEType(img)))); err != nil {
			return nil, fmt.Errorf("embed evidence image: %w", err)
		}
	}
	return msg, nil
}
