package scan

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kiosk/internal/attendance"
)

const (
	outcomeIn       = "in"
	outcomeOut      = "out"
	outcomeInvalid  = "invalid_payload"
	outcomeNotFound = "not_found"
	outcomeInFlight = "in_flight"
	outcomeStorage  = "storage_error"
)

var scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kiosk_scans_total",
	Help: "Processed scan payloads by outcome",
}, []string{"outcome"})

func outcomeOf(res Result, err error) string {
	switch {
	case err == nil && res.Entry.Status == attendance.StatusOut:
		return outcomeOut
	case err == nil:
		return outcomeIn
	case errors.Is(err, ErrInvalidPayload):
		return outcomeInvalid
	case errors.Is(err, ErrStudentNotFound):
		return outcomeNotFound
	default:
		return outcomeStorage
	}
}
