package web_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centroplan/pvpanel/internal/adapter/driving/web"
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
	updateErr   error
	inserted    []model.SiteChange
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
	return m.insertedRow, nil
}

func (m *mockBackend) UpdateSite(_ context.Context, _ int64, _ model.SiteChange) (*model.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func ptrF(v float64) *float64 { return &v }
func ptrI(v int64) *int64     { return &v }

func newTestMux(t *testing.T, backend *mockBackend) http.Handler {
	t.Helper()

	siteStore := &mockSiteStore{}
	clientStore := &mockClientStore{}

	syncSvc := application.NewSyncService(backend, siteStore, clientStore, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go syncSvc.Start(ctx)

	require.Eventually(t, func() bool {
		status := syncSvc.Status()
		return !status.LastSitesSync.IsZero() && !status.LastClientsSync.IsZero()
	}, time.Second, 5*time.Millisecond)

	siteSvc := application.NewSiteService(backend, siteStore, clientStore, syncSvc)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := web.NewHandler(siteSvc, syncSvc, logger)
	mux := http.NewServeMux()
	web.RegisterRoutes(mux, h)
	return mux
}

func seededBackend() *mockBackend {
	date := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	return &mockBackend{
		sites: []model.Site{
			{ID: 1, Name: "Ferme du Moulin", Code: "FDM-01", NominalPower: ptrF(250.5), Address: "12 route des Champs", CommissionDate: &date, ClientMapID: ptrI(7)},
			{ID: 2, Name: "Hangar Nord", NominalPower: ptrF(99.9)},
		},
		clients: []model.Client{
			{ID: 7, Name: "Centroplan"},
			{ID: 9, Name: "EnerSud"},
		},
	}
}

// csrfSetup performs a GET on the form page and returns the CSRF cookie.
func csrfSetup(t *testing.T, mux http.Handler, path string) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	for _, c := range rec.Result().Cookies() {
		if c.Name == "csrf_token" {
			return c
		}
	}
	t.Fatal("csrf cookie not set")
	return nil
}

func postForm(mux http.Handler, path string, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestDashboard(t *testing.T) {
	mux := newTestMux(t, seededBackend())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "Ferme du Moulin")
	assert.Contains(t, body, "Hangar Nord")
	assert.Contains(t, body, "Centroplan")
	assert.Contains(t, body, "2023-06-15")
	assert.Contains(t, body, "/sites/1/edit")
	assert.Contains(t, body, "2 sites")
}

func TestDashboard_Filtered(t *testing.T) {
	mux := newTestMux(t, seededBackend())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?client_id=7", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "Ferme du Moulin")
	assert.NotContains(t, body, "Hangar Nord")
	// Export link carries the active filter.
	assert.Contains(t, body, "/export.csv?client_id=7")
}

func TestDashboard_EmptyState(t *testing.T) {
	mux := newTestMux(t, seededBackend())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?min_power=9999", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No sites match the current filters.")
}

func TestNewSiteForm_SetsCSRFCookie(t *testing.T) {
	mux := newTestMux(t, seededBackend())
	cookie := csrfSetup(t, mux, "/sites/new")
	assert.NotEmpty(t, cookie.Value)
}

func TestCreateSite_Redirects(t *testing.T) {
	backend := seededBackend()
	backend.insertedRow = &model.Site{ID: 42, Name: "Nouvelle Ferme"}
	mux := newTestMux(t, backend)

	cookie := csrfSetup(t, mux, "/sites/new")
	rec := postForm(mux, "/sites/new", cookie, url.Values{
		"csrf_token":      {cookie.Value},
		"name":            {"Nouvelle Ferme"},
		"nominal_power":   {"120"},
		"commission_date": {"2024-01-10"},
		"client_id":       {"7"},
	})

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.inserted, 1)
	assert.Equal(t, "Nouvelle Ferme", backend.inserted[0].Name)
	require.NotNil(t, backend.inserted[0].NominalPower)
	assert.Equal(t, 120.0, *backend.inserted[0].NominalPower)
	require.NotNil(t, backend.inserted[0].ClientMapID)
	assert.Equal(t, int64(7), *backend.inserted[0].ClientMapID)
}

func TestCreateSite_MissingCSRF(t *testing.T) {
	backend := seededBackend()
	mux := newTestMux(t, backend)

	rec := postForm(mux, "/sites/new", nil, url.Values{"name": {"Ghost"}})

	assert.Equal(t, http.StatusForbidden, rec.Code)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Empty(t, backend.inserted)
}

func TestCreateSite_NameRequired(t *testing.T) {
	mux := newTestMux(t, seededBackend())

	cookie := csrfSetup(t, mux, "/sites/new")
	rec := postForm(mux, "/sites/new", cookie, url.Values{
		"csrf_token": {cookie.Value},
		"name":       {"  "},
		"code":       {"XY-9"},
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "Site name is required.")
	// The submitted values survive the round trip.
	assert.Contains(t, body, "XY-9")
}

func TestCreateSite_InvalidPower(t *testing.T) {
	mux := newTestMux(t, seededBackend())

	cookie := csrfSetup(t, mux, "/sites/new")
	rec := postForm(mux, "/sites/new", cookie, url.Values{
		"csrf_token":    {cookie.Value},
		"name":          {"Alpha"},
		"nominal_power": {"lots"},
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nominal power must be a number.")
}

func TestEditSiteForm(t *testing.T) {
	mux := newTestMux(t, seededBackend())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sites/1/edit", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "Edit site")
	assert.Contains(t, body, "Ferme du Moulin")
	assert.Contains(t, body, "250.5")
	assert.Contains(t, body, "2023-06-15")
}

func TestEditSiteForm_NotFound(t *testing.T) {
	mux := newTestMux(t, seededBackend())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sites/999/edit", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateSite_Redirects(t *testing.T) {
	backend := seededBackend()
	backend.updatedRow = &model.Site{ID: 1, Name: "Renamed"}
	mux := newTestMux(t, backend)

	cookie := csrfSetup(t, mux, "/sites/1/edit")
	rec := postForm(mux, "/sites/1/edit", cookie, url.Values{
		"csrf_token": {cookie.Value},
		"name":       {"Renamed"},
	})

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestUpdateSite_BackendNotFound(t *testing.T) {
	backend := seededBackend()
	backend.updateErr = driven.ErrSiteNotFound
	mux := newTestMux(t, backend)

	cookie := csrfSetup(t, mux, "/sites/1/edit")
	rec := postForm(mux, "/sites/1/edit", cookie, url.Values{
		"csrf_token": {cookie.Value},
		"name":       {"Renamed"},
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportCSV(t *testing.T) {
	mux := newTestMux(t, seededBackend())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export.csv", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="sites_pv.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "Ferme du Moulin,FDM-01,250.5,12 route des Champs,Centroplan,2023-06-15")
}
