package booking

import "time"

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) share at least one instant. Half-open semantics keep
// back-to-back intervals from being treated as a conflict.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// overlapsAppointment reports whether [start, end) intersects the
// appointment's own stored interval.
func overlapsAppointment(start, end time.Time, appt *Appointment) bool {
	return Overlaps(start, end, appt.Start, appt.End())
}
