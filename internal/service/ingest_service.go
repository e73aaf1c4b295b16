package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/pkg/utils"
)

// ArcGISResponse is a FeatureServer query response
type ArcGISResponse struct {
	Features              []ArcGISFeature `json:"features"`
	ExceededTransferLimit bool            `json:"exceededTransferLimit"`
	Error                 *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ArcGISFeature is one collision as published by SDOT
type ArcGISFeature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   *struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	} `json:"geometry"`
}

// IngestReport summarises an import run
type IngestReport struct {
	Batches int `json:"batches"`
	Fetched int `json:"fetched"`
	Written int `json:"written"`
	Skipped int `json:"skipped"`
}

// MaxPageSize is the FeatureServer maxRecordCount; larger pages are truncated
// by the server, which would silently skip records.
const MaxPageSize = 2000

// errNoTimestamp marks a feature that cannot be stored because occurred_at is required
var errNoTimestamp = errors.New("feature has no incident timestamp")

// IngestService imports collisions from the SDOT ArcGIS FeatureServer
type IngestService struct {
	baseURL    string
	batchSize  int
	httpClient *http.Client
	repo       domain.IngestRepository
	logger     *zap.Logger
}

// NewIngestService creates a new ingest service. batchSize is clamped to
// 1..MaxPageSize.
func NewIngestService(baseURL string, batchSize int, timeout time.Duration, repo domain.IngestRepository, logger *zap.Logger) *IngestService {
	return &IngestService{
		baseURL:   baseURL,
		batchSize: utils.Clamp(batchSize, 1, MaxPageSize),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		repo:   repo,
		logger: logger.Named("ingest"),
	}
}

// FetchPage fetches one page of features ordered by INCKEY
func (s *IngestService) FetchPage(ctx context.Context, offset int) (ArcGISResponse, error) {
	params := url.Values{}
	params.Set("where", "1=1")
	params.Set("outFields", "*")
	params.Set("outSR", "4326")
	params.Set("f", "json")
	params.Set("resultOffset", strconv.Itoa(offset))
	params.Set("resultRecordCount", strconv.Itoa(s.batchSize))
	params.Set("orderByFields", "INCKEY")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return ArcGISResponse{}, fmt.Errorf("ingest: failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return ArcGISResponse{}, fmt.Errorf("ingest: failed to fetch page at offset %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ArcGISResponse{}, fmt.Errorf("ingest: unexpected status %d at offset %d", resp.StatusCode, offset)
	}

	var page ArcGISResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return ArcGISResponse{}, fmt.Errorf("ingest: failed to decode response: %w", err)
	}
	if page.Error != nil {
		return ArcGISResponse{}, fmt.Errorf("ingest: arcgis error %d: %s", page.Error.Code, page.Error.Message)
	}

	return page, nil
}

// Run pages through the feed until it runs dry or maxBatches pages were
// stored (0 means no cap). Any failure stops the run.
func (s *IngestService) Run(ctx context.Context, maxBatches int) (IngestReport, error) {
	var report IngestReport

	for offset := 0; maxBatches == 0 || report.Batches < maxBatches; offset += s.batchSize {
		page, err := s.FetchPage(ctx, offset)
		if err != nil {
			return report, err
		}
		if len(page.Features) == 0 {
			break
		}
		report.Fetched += len(page.Features)

		records := make([]domain.CollisionRecord, 0, len(page.Features))
		for _, f := range page.Features {
			rec, err := ToRecord(f)
			if err != nil {
				report.Skipped++
				s.logger.Debug("Skipping feature", zap.Any("inckey", f.Attributes["INCKEY"]), zap.Error(err))
				continue
			}
			records = append(records, rec)
		}

		written, err := s.repo.IngestBatch(ctx, records)
		if err != nil {
			return report, fmt.Errorf("ingest: batch at offset %d: %w", offset, err)
		}
		report.Written += written
		report.Batches++

		s.logger.Info("Stored batch",
			zap.Int("offset", offset),
			zap.Int("written", written),
			zap.Int("skipped_total", report.Skipped),
		)
	}

	return report, nil
}

// incidentLayouts are the INCDTTM formats seen in the feed
var incidentLayouts = []string{
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006",
}

// ToRecord converts a feature into a collision record
func ToRecord(f ArcGISFeature) (domain.CollisionRecord, error) {
	a := f.Attributes

	incKey, ok := attrInt(a, "INCKEY")
	if !ok {
		return domain.CollisionRecord{}, errors.New("feature has no INCKEY")
	}
	occurredAt, ok := incidentTime(a)
	if !ok {
		return domain.CollisionRecord{}, errNoTimestamp
	}

	rec := domain.CollisionRecord{
		IncKey:     incKey,
		OccurredAt: occurredAt,
		Counts: domain.CollisionCounts{
			PersonCount:     attrCount(a, "PERSONCOUNT"),
			PedCount:        attrCount(a, "PEDCOUNT"),
			PedcylCount:     attrCount(a, "PEDCYLCOUNT"),
			VehCount:        attrCount(a, "VEHCOUNT"),
			Injuries:        attrCount(a, "INJURIES"),
			SeriousInjuries: attrCount(a, "SERIOUSINJURIES"),
			Fatalities:      attrCount(a, "FATALITIES"),
		},
		CollisionType:    attrString(a, "COLLISIONTYPE"),
		JunctionType:     attrString(a, "JUNCTIONTYPE"),
		LightCondition:   attrString(a, "LIGHTCOND"),
		WeatherCondition: attrString(a, "WEATHER"),
		RoadCondition:    attrString(a, "ROADCOND"),
		AddressType:      attrString(a, "ADDRTYPE"),
	}

	if loc := attrString(a, "LOCATION"); loc != "" {
		rec.Location = &loc
	}
	if key, ok := attrInt(a, "INTKEY"); ok {
		rec.IntKey = &key
	}
	if code := attrString(a, "SEVERITYCODE"); code != "" {
		rec.Severity = &domain.CodedValue{Code: code, Desc: attrString(a, "SEVERITYDESC")}
	}
	if code := attrString(a, "SDOT_COLCODE"); code != "" {
		rec.SDOTCollisionType = &domain.CodedValue{Code: code, Desc: attrString(a, "SDOT_COLDESC")}
	}
	if f.Geometry != nil && f.Geometry.X != nil && f.Geometry.Y != nil {
		rec.Longitude, rec.Latitude = f.Geometry.X, f.Geometry.Y
	}

	return rec, nil
}

// incidentTime prefers INCDTTM and falls back to the INCDATE epoch millis
func incidentTime(a map[string]any) (time.Time, bool) {
	if s := attrString(a, "INCDTTM"); s != "" {
		for _, layout := range incidentLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	if ms, ok := attrInt(a, "INCDATE"); ok {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

func attrString(a map[string]any, key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func attrInt(a map[string]any, key string) (int64, bool) {
	switch v := a[key].(type) {
	case float64:
		return int64(v), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// attrCount returns nil for missing or negative counts
func attrCount(a map[string]any, key string) *int32 {
	n, ok := attrInt(a, key)
	if !ok || n < 0 {
		return nil
	}
	c := int32(n)
	return &c
}
