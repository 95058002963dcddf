// Package export renders dispatch audit records for offline analysis.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch/logging"
)

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{
	"timestamp", "job_id", "customer_id", "service_type", "pickup_lat", "pickup_lng",
	"result", "accepted_by", "waves", "notified", "duration_ms",
}

// WriteJSON writes records to w as a JSON array.
func WriteJSON(w io.Writer, records []logging.LogRecord) error {
	if records == nil {
		records = []logging.LogRecord{}
	}
	return json.NewEncoder(w).Encode(records)
}

// WriteCSV writes one row per dispatch. Notified heroes are joined with
// spaces in wave order.
func WriteCSV(w io.Writer, records []logging.LogRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Timestamp.UTC().Format(time.RFC3339),
			r.JobID,
			r.CustomerID,
			r.ServiceType,
			strconv.FormatFloat(r.Pickup.Lat, 'f', -1, 64),
			strconv.FormatFloat(r.Pickup.Lng, 'f', -1, 64),
			string(r.Result),
			r.AcceptedBy,
			strconv.Itoa(len(r.Waves)),
			strings.Join(r.Notified(), " "),
			strconv.FormatInt(r.DurationMS, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
