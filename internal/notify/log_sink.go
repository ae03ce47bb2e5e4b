package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes every event to the log. Useful as an audit trail of what
// was sent and as the only sink in development.
type LogSink struct {
	logger *zerolog.Logger
}

func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, ev Event) error {
	s.logger.Info().
		Str("kind", string(ev.Kind)).
		Int64("appointment_id", ev.Appointment.ID).
		Int64("professional_id", ev.Appointment.ProfessionalID).
		Str("status", string(ev.Appointment.Status)).
		Time("start", ev.Appointment.StartTime).
		Msg("Appointment notification")
	return nil
}
