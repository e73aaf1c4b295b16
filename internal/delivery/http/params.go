package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/roadwatch/backend/internal/analytics"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator. Field errors are reported by
// their query parameter name.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("query"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// bindQuery decodes the query string into dst and validates it. Defaults
// must be set on dst beforehand; absent parameters leave them untouched.
func bindQuery(c *fiber.Ctx, dst any) error {
	if err := c.QueryParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid query parameters: "+err.Error())
	}
	if err := getValidator().Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return fiber.NewError(fiber.StatusBadRequest, strings.Join(msgs, "; "))
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// dateLayouts are tried in order for start_date and end_date
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(name, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			// occurred_at has no zone; offsets are folded into UTC
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fiber.NewError(fiber.StatusBadRequest,
		fmt.Sprintf("%s must be a date (YYYY-MM-DD) or timestamp (RFC 3339)", name))
}

// parseRange parses an inclusive date range. A range ending before it
// starts is rejected.
func parseRange(start, end string) (*time.Time, *time.Time, error) {
	from, err := parseDate("start_date", start)
	if err != nil {
		return nil, nil, err
	}
	to, err := parseDate("end_date", end)
	if err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "end_date must not be before start_date")
	}
	return from, to, nil
}

type collisionListParams struct {
	Location  string `query:"location"`
	Severity  string `query:"severity"`
	StartDate string `query:"start_date"`
	EndDate   string `query:"end_date"`
	Limit     int    `query:"limit" validate:"min=1,max=500"`
	Offset    int    `query:"offset" validate:"min=0"`
}

type statsParams struct {
	Location  string `query:"location"`
	Severity  string `query:"severity"`
	StartDate string `query:"start_date"`
	EndDate   string `query:"end_date"`
}

func (p statsParams) filter() (analytics.Filter, error) {
	start, end, err := parseRange(p.StartDate, p.EndDate)
	if err != nil {
		return analytics.Filter{}, err
	}
	return analytics.Filter{Location: p.Location, Severity: p.Severity, StartDate: start, EndDate: end}, nil
}

type severityChartParams struct {
	Location  string `query:"location"`
	StartDate string `query:"start_date"`
	EndDate   string `query:"end_date"`
}

type topLocationsParams struct {
	AddressType string `query:"address_type"`
	Metric      string `query:"metric" validate:"oneof=harm count"`
	Limit       int    `query:"limit" validate:"min=1,max=100"`
	StartDate   string `query:"start_date"`
	EndDate     string `query:"end_date"`
}

type timeSeriesParams struct {
	Metric    string `query:"metric" validate:"oneof=collisions injuries serious_injuries fatalities harm"`
	Interval  string `query:"interval" validate:"oneof=day week month"`
	Series    string `query:"series" validate:"oneof=none severity"`
	Location  string `query:"location"`
	StartDate string `query:"start_date"`
	EndDate   string `query:"end_date"`
}

type heatmapParams struct {
	Metric     string `query:"metric" validate:"oneof=count harm"`
	SeverityID int64  `query:"severity_id" validate:"min=0"`
	StartDate  string `query:"start_date"`
	EndDate    string `query:"end_date"`
}

type dateRangeParams struct {
	StartDate string `query:"start_date"`
	EndDate   string `query:"end_date"`
}
