package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redalert-desktop/redalert/internal/alerts"
)

// MaxBodySize is the maximum allowed request body size (64 KB)
const MaxBodySize = 64 << 10

// DateLayout is the from/to query parameter format
const DateLayout = "2006-01-02"

// DecodeJSON reads and decodes a JSON request body into dst with
// user-friendly error messages.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	r.Body = http.MaxBytesReader(nil, r.Body, MaxBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		return nil
	}

	var syntaxErr *json.SyntaxError
	var unmarshalTypeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	case errors.As(err, &unmarshalTypeErr):
		return fmt.Errorf("invalid value for field %q: expected %s", unmarshalTypeErr.Field, unmarshalTypeErr.Type)
	case errors.Is(err, io.EOF):
		return errors.New("request body is empty")
	case errors.As(err, &maxBytesErr):
		return fmt.Errorf("request body exceeds maximum size of %d bytes", MaxBodySize)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return fmt.Errorf("unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
	default:
		return errors.New("invalid JSON in request body")
	}
}

// AlertQuery is the query string accepted by the stats and history endpoints
type AlertQuery struct {
	From        string `validate:"omitempty,datetime=2006-01-02"`
	To          string `validate:"omitempty,datetime=2006-01-02"`
	AlertTypeID int    `validate:"oneof=0 1 2"`
	Limit       int    `validate:"omitempty,min=1,max=100"`
}

// ParseAlertQuery reads from, to, alertTypeId and limit. Non-numeric values
// are reported as field errors.
func ParseAlertQuery(values url.Values) (AlertQuery, map[string]string) {
	q := AlertQuery{From: values.Get("from"), To: values.Get("to")}
	errs := map[string]string{}

	if v := values.Get("alertTypeId"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs["alert_type_id"] = "must be a number"
		}
		q.AlertTypeID = n
	}
	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs["limit"] = "must be a number"
		}
		q.Limit = n
	}
	if len(errs) > 0 {
		return q, errs
	}

	if fieldErrs := Validate(q); fieldErrs != nil {
		return q, fieldErrs
	}
	return q, nil
}

// Range returns From and To as times in loc. Empty dates are zero.
// To covers its whole day.
func (q AlertQuery) Range(loc *time.Location) (time.Time, time.Time) {
	var from, to time.Time
	if q.From != "" {
		from, _ = time.ParseInLocation(DateLayout, q.From, loc)
	}
	if q.To != "" {
		if t, err := time.ParseInLocation(DateLayout, q.To, loc); err == nil {
			to = t.Add(24*time.Hour - time.Second)
		}
	}
	return from, to
}

// AlertType returns the requested alert type
func (q AlertQuery) AlertType() alerts.AlertTypeID {
	return alerts.AlertTypeID(q.AlertTypeID)
}
