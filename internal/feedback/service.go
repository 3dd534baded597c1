package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // Europe/London timestamps on hosts without zoneinfo

	"github.com/rs/zerolog"
)

const (
	subjectPrefix = "Belfast Bikes feedback: "
	timeLayout    = "02/01/2006, 15:04:05"
)

// ServiceConfig holds configuration for the feedback service.
type ServiceConfig struct {
	// Sender delivers mail. When nil, reports are only logged.
	Sender Sender

	// From is the sender address.
	From string

	// To is the notification address.
	To string

	// Location for the report timestamp (default: Europe/London).
	Location *time.Location

	// Now overrides the clock (optional).
	Now func() time.Time

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service relays feedback reports.
type Service struct {
	sender   Sender
	from     string
	to       string
	location *time.Location
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a new feedback service.
func NewService(cfg ServiceConfig) *Service {
	loc := cfg.Location
	if loc == nil {
		var err error
		loc, err = time.LoadLocation("Europe/London")
		if err != nil {
			loc = time.UTC
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		sender:   cfg.Sender,
		from:     cfg.From,
		to:       cfg.To,
		location: loc,
		now:      now,
		logger:   cfg.Logger,
	}
}

// Submit validates fb and relays it. Without a sender the report is logged
// and Submit succeeds.
func (s *Service) Submit(ctx context.Context, fb Feedback) error {
	if err := fb.Validate(); err != nil {
		return err
	}

	if s.sender == nil {
		s.logger.Info().
			Str("station", fb.Station).
			Str("type", fb.Type).
			Str("message", fb.Message).
			Msg("feedback received (no email configured)")
		return nil
	}

	if err := s.sender.Send(ctx, s.compose(fb)); err != nil {
		s.logger.Error().Err(err).Str("station", fb.Station).Msg("failed to send feedback email")
		return fmt.Errorf("relaying feedback: %w", err)
	}

	s.logger.Info().Str("station", fb.Station).Str("type", fb.Type).Msg("feedback relayed")
	return nil
}

func (s *Service) compose(fb Feedback) Message {
	message := fb.Message
	if message == "" {
		message = "None"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Station: %s\n", fb.Station)
	fmt.Fprintf(&body, "Issue type: %s\n", fb.Type)
	fmt.Fprintf(&body, "Message: %s\n", message)
	fmt.Fprintf(&body, "Time: %s", s.now().In(s.location).Format(timeLayout))

	return Message{
		From:    s.from,
		To:      s.to,
		Subject: subjectPrefix + fb.Station,
		Body:    body.String(),
	}
}
