package notification

import (
	"fmt"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

type EmailSender interface {
	SendEmail(to, subject, body string) error
}

// PushSender returns the tokens the push service rejected so callers can
// forget them.
type PushSender interface {
	Push(tokens []string, title, body string, data map[string]string) (invalid []string, err error)
}

type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(host string, port int, user, pass string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, user, pass),
		from:   user,
	}
}

func (s *SMTPSender) SendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return s.dialer.DialAndSend(m)
}

type ExpoSender struct {
	client *expo.PushClient
}

func NewExpoSender() *ExpoSender {
	return &ExpoSender{client: expo.NewPushClient(nil)}
}

func (s *ExpoSender) Push(tokens []string, title, body string, data map[string]string) ([]string, error) {
	var valid []expo.ExponentPushToken
	var invalid []string
	for _, t := range tokens {
		pushToken, err := expo.NewExponentPushToken(t)
		if err != nil {
			log.Debug().Str("token", t).Msg("invalid push token format")
			invalid = append(invalid, t)
			continue
		}
		valid = append(valid, pushToken)
	}
	if len(valid) == 0 {
		return invalid, fmt.Errorf("no valid push tokens found")
	}

	response, err := s.client.Publish(&expo.PushMessage{
		To:       valid,
		Body:     body,
		Title:    title,
		Sound:    "default",
		Priority: expo.DefaultPriority,
		Data:     data,
	})
	if err != nil {
		return invalid, fmt.Errorf("publish push notification: %w", err)
	}
	if err := response.ValidateResponse(); err != nil {
		return invalid, fmt.Errorf("push notification rejected: %w", err)
	}
	return invalid, nil
}
