package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// PushNotifier sends a short alert text to every configured shoutrrr URL.
type PushNotifier struct {
	sender *router.ServiceRouter
}

// NewPushNotifier validates the URLs and builds a single sender for all of them.
func NewPushNotifier(urls []string, timeout time.Duration) (*PushNotifier, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one push URL is required")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("create push sender: %w", redact(err, urls))
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &PushNotifier{sender: sender}, nil
}

// Name implements Sender.
func (p *PushNotifier) Name() string {
	return "push"
}

// Send delivers the alert text. The router applies its own timeout.
func (p *PushNotifier) Send(_ context.Context, a *Alert) error {
	body, err := RenderPush(a)
	if err != nil {
		return err
	}
	params := stypes.Params{}
	params.SetTitle(a.Subject())

	var errs []error
	for _, e := range p.sender.Send(body, &params) {
		if e != nil {
			errs = append(errs, e)
		}
	}
	return errors.Join(errs...)
}

// redact strips configured URLs (which carry tokens) from an error message.
func redact(err error, urls []string) error {
	msg := err.Error()
	for _, u := range urls {
		msg = strings.ReplaceAll(msg, u, "[redacted]")
	}
	return errors.New(msg)
}
