package notification

import (
	"fmt"
	"sync"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

// Config holds the operator email settings. An empty APIKey disables email.
type Config struct {
	APIKey string
	From   string
	To     string
}

// Service sends operator emails through SendGrid. The invalid-token
// notification is sent at most once until the token is seen working again.
type Service struct {
	cfg Config
	log *logrus.Entry

	mu                 sync.Mutex
	invalidTokenMailed bool
}

func NewService(cfg Config, log *logrus.Entry) *Service {
	return &Service{cfg: cfg, log: log}
}

// Enabled reports whether email sending is configured.
func (s *Service) Enabled() bool {
	return s.cfg.APIKey != "" && s.cfg.To != ""
}

// NotifyInvalidToken emails the operator that the pricing API rejected the
// configured token. Repeated calls are suppressed until ClearInvalidToken.
func (s *Service) NotifyInvalidToken(feed string) {
	if !s.Enabled() {
		return
	}

	s.mu.Lock()
	if s.invalidTokenMailed {
		s.mu.Unlock()
		return
	}
	s.invalidTokenMailed = true
	s.mu.Unlock()

	subject := "Pricing API token rejected"
	body := fmt.Sprintf(
		"The pricing API rejected the configured token while updating the %s feed at %s.\n\n"+
			"Price updates are suspended for this feed until the token is corrected.",
		feed, time.Now().Format(time.RFC3339))

	if err := s.send(subject, body); err != nil {
		s.log.WithError(err).Warn("failed to send invalid token email")
		// Allow a retry on the next failure.
		s.mu.Lock()
		s.invalidTokenMailed = false
		s.mu.Unlock()
		return
	}
	s.log.Info("sent invalid token email")
}

// ClearInvalidToken re-arms the invalid-token notification after a
// successful request.
func (s *Service) ClearInvalidToken() {
	s.mu.Lock()
	s.invalidTokenMailed = false
	s.mu.Unlock()
}

func (s *Service) send(subject, body string) error {
	from := mail.NewEmail("Enever Adapter", s.cfg.From)
	to := mail.NewEmail("", s.cfg.To)
	message := mail.NewSingleEmail(from, subject, to, body, body)

	client := sendgrid.NewSendClient(s.cfg.APIKey)
	resp, err := client.Send(message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}
