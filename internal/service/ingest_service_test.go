package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roadwatch/backend/internal/domain"
)

type fakeIngestRepo struct {
	mu      sync.Mutex
	batches [][]domain.CollisionRecord
	err     error
}

func (r *fakeIngestRepo) IngestBatch(_ context.Context, records []domain.CollisionRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.batches = append(r.batches, records)
	return len(records), nil
}

const firstPage = `{
  "features": [
    {
      "attributes": {
        "INCKEY": 1307, "LOCATION": "5TH AVE AND MADISON ST", "INCDTTM": "3/27/2004 5:32:00 PM",
        "SEVERITYCODE": "2", "SEVERITYDESC": "Injury Collision", "COLLISIONTYPE": "Angles",
        "SDOT_COLCODE": 11, "SDOT_COLDESC": "MOTOR VEHICLE STRUCK MOTOR VEHICLE, FRONT END AT ANGLE",
        "JUNCTIONTYPE": "At Intersection (intersection related)", "LIGHTCOND": "Daylight",
        "WEATHER": "Clear", "ROADCOND": "Dry", "ADDRTYPE": "Intersection", "INTKEY": 29557,
        "PERSONCOUNT": 3, "PEDCOUNT": 0, "PEDCYLCOUNT": 0, "VEHCOUNT": 2,
        "INJURIES": 1, "SERIOUSINJURIES": 0, "FATALITIES": 0
      },
      "geometry": {"x": -122.3258, "y": 47.6066}
    },
    {
      "attributes": {"INCKEY": 1308, "LOCATION": "BROADWAY", "ADDRTYPE": "Block"}
    }
  ]
}`

func newArcGISServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "INCKEY", r.URL.Query().Get("orderByFields"))
		assert.Equal(t, "4326", r.URL.Query().Get("outSR"))
		body, ok := pages[r.URL.Query().Get("resultOffset")]
		if !ok {
			body = `{"features": []}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIngestService_Run(t *testing.T) {
	srv := newArcGISServer(t, map[string]string{"0": firstPage})
	repo := &fakeIngestRepo{}
	svc := NewIngestService(srv.URL, 2, 5*time.Second, repo, zap.NewNop())

	report, err := svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, IngestReport{Batches: 1, Fetched: 2, Written: 1, Skipped: 1}, report)

	require.Len(t, repo.batches, 1)
	require.Len(t, repo.batches[0], 1)
	rec := repo.batches[0][0]
	assert.Equal(t, int64(1307), rec.IncKey)
	assert.Equal(t, time.Date(2004, 3, 27, 17, 32, 0, 0, time.UTC), rec.OccurredAt)
	require.NotNil(t, rec.Severity)
	assert.Equal(t, domain.CodedValue{Code: "2", Desc: "Injury Collision"}, *rec.Severity)
	require.NotNil(t, rec.SDOTCollisionType)
	assert.Equal(t, "11", rec.SDOTCollisionType.Code)
	require.NotNil(t, rec.IntKey)
	assert.Equal(t, int64(29557), *rec.IntKey)
	require.NotNil(t, rec.Longitude)
	assert.Equal(t, -122.3258, *rec.Longitude)
	require.NotNil(t, rec.Counts.VehCount)
	assert.Equal(t, int32(2), *rec.Counts.VehCount)
	assert.Equal(t, "Intersection", rec.AddressType)
}

func TestIngestService_RunStopsAtMaxBatches(t *testing.T) {
	full := `{"features": [{"attributes": {"INCKEY": 1, "INCDATE": 1072915200000}}]}`
	srv := newArcGISServer(t, map[string]string{"0": full, "1": full, "2": full})
	repo := &fakeIngestRepo{}
	svc := NewIngestService(srv.URL, 1, 5*time.Second, repo, zap.NewNop())

	report, err := svc.Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Batches)
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, time.Date(2004, 1, 1, 0, 0, 0, 0, time.UTC), repo.batches[0][0].OccurredAt)
}

func TestIngestService_ArcGISError(t *testing.T) {
	srv := newArcGISServer(t, map[string]string{"0": `{"error": {"code": 400, "message": "Invalid query"}}`})
	svc := NewIngestService(srv.URL, 10, 5*time.Second, &fakeIngestRepo{}, zap.NewNop())

	_, err := svc.Run(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid query")
}

func TestIngestService_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	svc := NewIngestService(srv.URL, 10, 5*time.Second, &fakeIngestRepo{}, zap.NewNop())

	_, err := svc.FetchPage(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}

func TestIngestService_RepositoryError(t *testing.T) {
	srv := newArcGISServer(t, map[string]string{"0": firstPage})
	boom := errors.New("disk full")
	svc := NewIngestService(srv.URL, 2, 5*time.Second, &fakeIngestRepo{err: boom}, zap.NewNop())

	report, err := svc.Run(context.Background(), 0)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, report.Batches)
}

func TestToRecord(t *testing.T) {
	t.Run("missing inckey", func(t *testing.T) {
		_, err := ToRecord(ArcGISFeature{Attributes: map[string]any{"INCDTTM": "1/1/2020"}})
		assert.Error(t, err)
	})

	t.Run("missing timestamp", func(t *testing.T) {
		_, err := ToRecord(ArcGISFeature{Attributes: map[string]any{"INCKEY": float64(5)}})
		assert.ErrorIs(t, err, errNoTimestamp)
	})

	t.Run("date only and blanks", func(t *testing.T) {
		rec, err := ToRecord(ArcGISFeature{Attributes: map[string]any{
			"INCKEY":       float64(9),
			"INCDTTM":      "11/5/2019",
			"LOCATION":     "  ",
			"SEVERITYCODE": "",
			"INJURIES":     float64(-1),
		}})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2019, 11, 5, 0, 0, 0, 0, time.UTC), rec.OccurredAt)
		assert.Nil(t, rec.Location)
		assert.Nil(t, rec.Severity)
		assert.Nil(t, rec.Counts.Injuries)
		assert.Nil(t, rec.Longitude)
	})
}

func TestNewIngestService_ClampsBatchSize(t *testing.T) {
	assert.Equal(t, MaxPageSize, NewIngestService("http://arcgis", 5000, time.Second, &fakeIngestRepo{}, zap.NewNop()).batchSize)
	assert.Equal(t, 1, NewIngestService("http://arcgis", 0, time.Second, &fakeIngestRepo{}, zap.NewNop()).batchSize)
}
