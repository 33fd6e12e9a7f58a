package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventuri/internal/auth"
	"inventuri/internal/inventory"
	"inventuri/internal/report"
	"inventuri/internal/storage"
	"inventuri/internal/storage/storagetest"
	"inventuri/internal/stream"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type fixture struct {
	mem    *storagetest.Memory
	hub    *stream.Hub
	router http.Handler
	token  string
}

func newFixture(t *testing.T, withHub bool) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	mem := storagetest.NewMemory()
	mem.SeedAccount("nurse", "secret1")

	authn := auth.New(mem, auth.Config{Secret: "test-secret", Issuer: "inventuri", TTL: time.Hour}, logger)
	session, err := authn.Issue("nurse")
	require.NoError(t, err)

	var hub *stream.Hub
	if withHub {
		hub = stream.NewHub(4, logger)
	}
	h := NewHandler(
		inventory.NewService(mem, mem, mem, logger),
		report.NewService(mem, mem, mem, report.Options{}, logger),
		authn,
		hub,
		logger,
	)
	return &fixture{mem: mem, hub: hub, router: NewRouter(h, logger), token: session.Token}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, false)
	f.token = ""
	rec, _ := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, false)
	f.token = ""

	rec, env := f.do(t, http.MethodPost, "/api/login", gin.H{"username": "nurse", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var session auth.Session
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.NotEmpty(t, session.Token)

	rec, env = f.do(t, http.MethodPost, "/api/login", gin.H{"username": "nurse", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid username or password.", env.Error)

	rec, _ = f.do(t, http.MethodPost, "/api/login", gin.H{"username": "ab", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequiresToken(t *testing.T) {
	f := newFixture(t, false)

	f.token = ""
	rec, env := f.do(t, http.MethodGet, "/api/items", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)

	f.token = "forged"
	rec, _ = f.do(t, http.MethodGet, "/api/items", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenQueryParameter(t *testing.T) {
	f := newFixture(t, false)
	token := f.token
	f.token = ""

	rec, _ := f.do(t, http.MethodGet, "/api/items?token="+token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestItemLifecycle(t *testing.T) {
	f := newFixture(t, false)

	rec, env := f.do(t, http.MethodPost, "/api/items", gin.H{"item_name": " gloves ", "unit": "box", "quantity": 10})
	require.Equal(t, http.StatusCreated, rec.Code)
	var item storage.Item
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, "GLOVES", item.Name)

	rec, env = f.do(t, http.MethodPost, "/api/items", gin.H{"item_name": "Gloves", "quantity": 5})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, 15, item.Quantity)

	rec, _ = f.do(t, http.MethodPost, "/api/items", gin.H{"item_name": "", "quantity": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = f.do(t, http.MethodPatch, "/api/items/"+itoa(item.ID), gin.H{"quantity": 12})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, 12, item.Quantity)

	rec, env = f.do(t, http.MethodGet, "/api/items/"+itoa(item.ID)+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		History []storage.HistoryRecord `json:"history"`
		Trend   string                  `json:"trend"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	assert.Len(t, hist.History, 3)
	assert.NotEmpty(t, hist.Trend)

	rec, env = f.do(t, http.MethodGet, "/api/items?search=glo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []storage.Item
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Len(t, items, 1)

	rec, _ = f.do(t, http.MethodDelete, "/api/items", gin.H{"ids": []int64{item.ID}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = f.do(t, http.MethodGet, "/api/items/"+itoa(item.ID)+"/history", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestBadPathID(t *testing.T) {
	f := newFixture(t, false)
	rec, env := f.do(t, http.MethodPatch, "/api/items/abc", gin.H{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid id", env.Error)
}

func TestAvailability(t *testing.T) {
	f := newFixture(t, false)
	f.mem.SeedItem(storage.Item{Name: "GLOVES", Quantity: 4})
	f.mem.SeedItem(storage.Item{Name: "MASKS", Quantity: 0})

	rec, env := f.do(t, http.MethodGet, "/api/items/availability", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out inventory.Availability
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Len(t, out.Available, 1)
	assert.Len(t, out.Unavailable, 1)
}

func TestEquipmentRoutes(t *testing.T) {
	f := newFixture(t, false)

	rec, _ := f.do(t, http.MethodPost, "/api/equipment", gin.H{"equipment_name": "Monitor", "department": "ER", "serial_num": "SN-1", "count": 2, "status": "good"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/equipment", gin.H{"equipment_name": "Monitor", "department": "ER", "serial_num": "SN-1", "count": 1, "status": "broken"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := f.do(t, http.MethodGet, "/api/equipment?status=All&department=ER", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var eqs []storage.Equipment
	require.NoError(t, json.Unmarshal(env.Data, &eqs))
	require.Len(t, eqs, 1)

	rec, _ = f.do(t, http.MethodPatch, "/api/equipment/"+itoa(eqs[0].ID), gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, "/api/equipment", gin.H{"ids": []int64{eqs[0].ID}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSuppliesReportDownload(t *testing.T) {
	f := newFixture(t, false)

	rec, env := f.do(t, http.MethodGet, "/api/supplies_reportgenerator", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)

	f.mem.SeedItem(storage.Item{Name: "GLOVES", Quantity: 4})
	rec, _ = f.do(t, http.MethodGet, "/api/supplies_reportgenerator", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "items_report.docx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec, _ = f.do(t, http.MethodGet, "/supplies_reportgenerator", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "item_report.docx")
}

func TestEquipmentReportDownload(t *testing.T) {
	f := newFixture(t, false)
	rec, _ := f.do(t, http.MethodGet, "/api/equipments_reportgenertor", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "equipment_report.docx")
}

func TestSummaryAndCharts(t *testing.T) {
	f := newFixture(t, false)

	rec, _ := f.do(t, http.MethodGet, "/api/reports/charts/quantities.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.mem.SeedItem(storage.Item{Name: "GLOVES", Quantity: 4})
	f.mem.SeedEquipment(storage.Equipment{Name: "Monitor", Department: "ER", Count: 1, Status: inventory.StatusGood})

	rec, env := f.do(t, http.MethodGet, "/api/reports/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sum report.Summary
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	assert.Len(t, sum.Items, 1)
	assert.Equal(t, 1, sum.EquipmentByStatus[inventory.StatusGood])

	for _, path := range []string{"/api/reports/charts/quantities.png", "/api/reports/charts/status.png"} {
		rec, _ = f.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")), path)
	}
}

func TestStreamDisabled(t *testing.T) {
	f := newFixture(t, false)
	rec, _ := f.do(t, http.MethodGet, "/api/stream", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStreamRelaysChanges(t *testing.T) {
	f := newFixture(t, true)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream?token="+f.token, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := bufio.NewScanner(resp.Body)
	waitFor := func(prefix string) string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), prefix) {
				return lines.Text()
			}
		}
		t.Fatalf("stream ended before %q: %v", prefix, lines.Err())
		return ""
	}

	waitFor("event:ready")
	f.hub.Publish(storage.ChangeEvent{Table: "items", Op: "UPDATE", ID: 7})
	waitFor("event:change")
	data := waitFor("data:")

	var ev storage.ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(data, "data:")), &ev))
	assert.Equal(t, storage.ChangeEvent{Table: "items", Op: "UPDATE", ID: 7}, ev)
}


func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
