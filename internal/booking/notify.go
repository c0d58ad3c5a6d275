package booking

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier is the default NotificationGateway: it records the confirmation
// in the structured log. Real delivery channels live outside the engine and
// plug in behind the same interface.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendBookingConfirmation(_ context.Context, appt *Appointment) error {
	n.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("patient_id", appt.PatientID.String()).
		Time("start", appt.Start).
		Str("modality", string(appt.Modality)).
		Msg("booking confirmation sent")
	return nil
}
