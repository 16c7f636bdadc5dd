package notify

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/kozaktomas/reunite/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type fakeTransport struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeTransport) DialAndSendWithContext(_ context.Context, msgs ...*mail.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msgs...)
	return nil
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil))
	return buf.Bytes()
}

func TestMailer_Send(t *testing.T) {
	ft := &fakeTransport{}
	m := &Mailer{from: "alerts@reunite.example", client: ft}

	a := sampleAlert()
	a.Image = testJPEG(t)
	require.NoError(t, m.Send(context.Background(), a))
	require.Len(t, ft.sent, 1)

	msg := ft.sent[0]
	assert.Equal(t, []string{a.Subject()}, msg.GetGenHeader(mail.HeaderSubject))

	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"officer@police.example", "guardian@example.org", "station@police.example",
	}, rcpts)

	var raw bytes.Buffer
	_, err = msg.WriteTo(&raw)
	require.NoError(t, err)
	out := strings.ToLower(raw.String())
	assert.Contains(t, out, "<evidence>")
	assert.Contains(t, out, "multipart/related")
	assert.Contains(t, out, "text/html")
}

func TestMailer_SendErrors(t *testing.T) {
	ft := &fakeTransport{err: errors.New("connection reset")}
	m := &Mailer{from: "alerts@reunite.example", client: ft}

	err := m.Send(context.Background(), sampleAlert())
	assert.ErrorContains(t, err, "connection reset")

	a := sampleAlert()
	a.To = nil
	assert.ErrorIs(t, m.Send(context.Background(), a), ErrNoRecipients)

	a = sampleAlert()
	a.Cc = []string{"not an address"}
	assert.Error(t, m.Send(context.Background(), a))
}

func TestNewMailer(t *testing.T) {
	_, err := NewMailer(&config.SMTPConfig{})
	assert.Error(t, err, "disabled config is rejected")

	m, err := NewMailer(&config.SMTPConfig{
		Host: "smtp.example.org", Port: 587, From: "alerts@reunite.example",
		Username: "u", Password: "p", TLS: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "smtp", m.Name())
}

func TestTLSPolicy(t *testing.T) {
	assert.Equal(t, mail.TLSMandatory, tlsPolicy(true))
	assert.Equal(t, mail.TLSOpportunistic, tlsPolicy(false), "optional TLS still upgrades when offered")
}
