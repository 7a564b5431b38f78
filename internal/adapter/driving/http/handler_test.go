package httphandler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/centroplan/pvpanel/internal/adapter/driving/http"
	"github.com/centroplan/pvpanel/internal/application"
	"github.com/centroplan/pvpanel/internal/domain/model"
	"github.com/centroplan/pvpanel/internal/domain/port/driven"
)

type mockBackend struct {
	mu          sync.Mutex
	sites       []model.Site
	clients     []model.Client
	insertedRow *model.Site
	updatedRow  *model.Site
	insertErr   error
	updateErr   error
	inserted    []model.SiteChange
	updated     []int64
}

func (m *mockBackend) FetchSites(_ context.Context) ([]model.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Site(nil), m.sites...), nil
}

func (m *mockBackend) FetchClients(_ context.Context) ([]model.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Client(nil), m.clients...), nil
}

func (m *mockBackend) InsertSite(_ context.Context, change model.SiteChange) (*model.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, change)
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	return m.insertedRow, nil
}

func (m *mockBackend) UpdateSite(_ context.Context, id int64, _ model.SiteChange) (*model.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, id)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return m.updatedRow, nil
}

type mockSiteStore struct {
	mu    sync.Mutex
	sites []model.Site
}

func (m *mockSiteStore) ReplaceAll(_ context.Context, sites []model.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites = append([]model.Site(nil), sites...)
	return nil
}

func (m *mockSiteStore) List(_ context.Context, filter model.SiteFilter) ([]model.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Site
	for _, s := range m.sites {
		if filter.ClientID != nil && (s.ClientMapID == nil || *s.ClientMapID != *filter.ClientID) {
			continue
		}
		if filter.MinPower != nil && s.PowerOrZero() < *filter.MinPower {
			continue
		}
		if filter.MaxPower != nil && s.PowerOrZero() > *filter.MaxPower {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *mockSiteStore) GetByID(_ context.Context, id int64) (*model.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sites {
		if s.ID == id {
			found := s
			return &found, nil
		}
	}
	return nil, nil
}

type mockClientStore struct {
	mu      sync.Mutex
	clients []model.Client
}

func (m *mockClientStore) ReplaceAll(_ context.Context, clients []model.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = append([]model.Client(nil), clients...)
	return nil
}

func (m *mockClientStore) ListAll(_ context.Context) ([]model.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Client(nil), m.clients...), nil
}

var (
	_ driven.Backend     = (*mockBackend)(nil)
	_ driven.SiteStore   = (*mockSiteStore)(nil)
	_ driven.ClientStore = (*mockClientStore)(nil)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer wires a handler with the given backend state and starts the
// sync loop so manual refreshes work.
func newTestServer(t *testing.T, backend *mockBackend) http.Handler {
	t.Helper()

	siteStore := &mockSiteStore{}
	clientStore := &mockClientStore{}

	syncSvc := application.NewSyncService(backend, siteStore, clientStore, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go syncSvc.Start(ctx)

	// Wait for the initial sync so reads see the backend data.
	require.Eventually(t, func() bool {
		status := syncSvc.Status()
		return !status.LastSitesSync.IsZero() && !status.LastClientsSync.IsZero()
	}, time.Second, 5*time.Millisecond)

	siteSvc := application.NewSiteService(backend, siteStore, clientStore, syncSvc)

	h := httphandler.NewHandler(siteSvc, syncSvc, testLogger())
	mux := http.NewServeMux()
	httphandler.RegisterAPIRoutes(mux, h)
	return httphandler.ApplyMiddleware(mux, testLogger())
}

func ptrF(v float64) *float64 { return &v }
func ptrI(v int64) *int64     { return &v }

func seededBackend() *mockBackend {
	date := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	return &mockBackend{
		sites: []model.Site{
			{ID: 1, Name: "Ferme du Moulin", Code: "FDM-01", NominalPower: ptrF(250.5), Address: "12 route des Champs", CommissionDate: &date, ClientMapID: ptrI(7)},
			{ID: 2, Name: "Hangar Nord", NominalPower: ptrF(99.9)},
			{ID: 3, Name: "Toiture Sud", NominalPower: ptrF(500), ClientMapID: ptrI(9)},
		},
		clients: []model.Client{
			{ID: 7, Name: "Centroplan"},
			{ID: 9, Name: "EnerSud"},
		},
	}
}

func TestListSites(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sites", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var sites []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sites))
	require.Len(t, sites, 3)

	assert.Equal(t, "Ferme du Moulin", sites[0]["name"])
	assert.Equal(t, "Centroplan", sites[0]["client_name"])
	assert.Equal(t, "2023-06-15", sites[0]["commission_date"])
	assert.Equal(t, "", sites[1]["client_name"])
	assert.Nil(t, sites[1]["commission_date"])
}

func TestListSites_Filters(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"by client", "client_id=7", []string{"Ferme du Moulin"}},
		{"min power", "min_power=200", []string{"Ferme du Moulin", "Toiture Sud"}},
		{"max power", "max_power=100", []string{"Hangar Nord"}},
		{"range", "min_power=100&max_power=300", []string{"Ferme du Moulin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sites?"+tt.query, nil))
			require.Equal(t, http.StatusOK, rec.Code)

			var sites []map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sites))

			var names []string
			for _, s := range sites {
				names = append(names, s["name"].(string))
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestListSites_InvalidFilter(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	for _, query := range []string{"client_id=abc", "min_power=much", "max_power="} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sites?"+query, nil))

		if query == "max_power=" {
			// Empty values are treated as unset, not invalid.
			assert.Equal(t, http.StatusOK, rec.Code)
			continue
		}
		assert.Equal(t, http.StatusBadRequest, rec.Code, "query %q", query)
	}
}

func TestGetSite(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sites/1", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var site map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &site))
	assert.Equal(t, float64(1), site["id"])
	assert.Equal(t, "FDM-01", site["code"])
	assert.Equal(t, 250.5, site["nominal_power"])
}

func TestGetSite_NotFound(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sites/999", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "site not found")
}

func TestGetSite_InvalidID(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sites/abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSite(t *testing.T) {
	backend := seededBackend()
	backend.insertedRow = &model.Site{ID: 42, Name: "Nouvelle Ferme", NominalPower: ptrF(120)}
	srv := newTestServer(t, backend)

	body := `{"name":"Nouvelle Ferme","nominal_power":120,"commission_date":"2024-01-10"}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sites", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)

	var site map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &site))
	assert.Equal(t, float64(42), site["id"])

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.inserted, 1)
	assert.Equal(t, "Nouvelle Ferme", backend.inserted[0].Name)
	require.NotNil(t, backend.inserted[0].CommissionDate)
	assert.Equal(t, "2024-01-10", backend.inserted[0].CommissionDate.Format("2006-01-02"))
}

func TestCreateSite_NameRequired(t *testing.T) {
	backend := seededBackend()
	srv := newTestServer(t, backend)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sites", strings.NewReader(`{"name":"  "}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name is required")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Empty(t, backend.inserted)
}

func TestCreateSite_InvalidBody(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sites", strings.NewReader(`{not json`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSite_InvalidDate(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	body := `{"name":"Alpha","commission_date":"15/06/2023"}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sites", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "commission_date")
}

func TestUpdateSite(t *testing.T) {
	backend := seededBackend()
	backend.updatedRow = &model.Site{ID: 2, Name: "Hangar Nord Bis"}
	srv := newTestServer(t, backend)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/v1/sites/2", strings.NewReader(`{"name":"Hangar Nord Bis"}`)))

	require.Equal(t, http.StatusOK, rec.Code)

	var site map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &site))
	assert.Equal(t, "Hangar Nord Bis", site["name"])

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, []int64{2}, backend.updated)
}

func TestUpdateSite_NotFound(t *testing.T) {
	backend := seededBackend()
	backend.updateErr = driven.ErrSiteNotFound
	srv := newTestServer(t, backend)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/v1/sites/999", strings.NewReader(`{"name":"Ghost"}`)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListClients(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var clients []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &clients))
	require.Len(t, clients, 2)
	assert.Equal(t, "Centroplan", clients[0]["name"])
}

func TestExportSites(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sites/export", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="sites_pv.csv"`, rec.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Name,Code,Nominal Power (kWc),Address,Client,Commissioned", lines[0])
	assert.Equal(t, "Ferme du Moulin,FDM-01,250.5,12 route des Champs,Centroplan,2023-06-15", lines[1])
}

func TestExportSites_Filtered(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sites/export?client_id=9", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Toiture Sud")
}

func TestSyncStatus(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, float64(3), status["site_count"])
	assert.Equal(t, float64(2), status["client_count"])
	assert.NotEmpty(t, status["last_sites_sync"])
}

func TestTriggerSync(t *testing.T) {
	backend := seededBackend()
	srv := newTestServer(t, backend)

	backend.mu.Lock()
	backend.sites = append(backend.sites, model.Site{ID: 4, Name: "Zone Ouest"})
	backend.mu.Unlock()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, float64(4), status["site_count"])
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRequestIDEchoed(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-Id", "test-id-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "test-id-123", rec.Header().Get("X-Request-Id"))
}

func TestRequestIDGenerated(t *testing.T) {
	srv := newTestServer(t, seededBackend())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
