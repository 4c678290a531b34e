package imports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cleaning-crm/common"
	"cleaning-crm/importer"
	"cleaning-crm/leads"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	rows    []importer.NormalizedRecord
	batches int
	failOn  int
	gate    chan struct{}
}

func (m *memorySink) InsertBatch(ctx context.Context, records []importer.NormalizedRecord) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if m.batches == m.failOn {
		return &importer.SinkError{Message: `duplicate key value violates unique constraint "leads_pkey"`}
	}
	m.rows = append(m.rows, records...)
	return nil
}

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func setupRouter(t *testing.T, sink importer.Sink) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &common.Config{ImportBatchSize: 50, ImportBatchDelay: 0, UploadMaxSize: 1 << 20}
	h := NewHandler(NewStore(importer.SessionConfig{}), sink, cfg, common.DiscardLogger())

	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1/imports"))
	return r, h
}

func csvFile(rows int) string {
	var b strings.Builder
	b.WriteString("Nome;Email;Quartos;Preço\n")
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&b, "Lead %d;lead%d@example.com;%d;R$ %d\n", i, i, i%3+1, 100+i)
	}
	return b.String()
}

func upload(t *testing.T, r http.Handler, path, name, content, delimiter string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	part.Write([]byte(content))
	if delimiter != "" {
		mw.WriteField("delimiter", delimiter)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) importer.Snapshot {
	t.Helper()
	var snap importer.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap), w.Body.String())
	return snap
}

func TestImportFlow(t *testing.T) {
	sink := &memorySink{}
	r, h := setupRouter(t, sink)

	w := upload(t, r, "/api/v1/imports", "leads.csv", csvFile(120), ";")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	snap := decode(t, w)
	assert.Equal(t, importer.PhaseMap, snap.Phase)
	assert.Len(t, snap.Preview, 5)
	assert.Equal(t, "Nome", snap.Mapping["name"])
	assert.Equal(t, "Preço", snap.Mapping["estimated_price"])
	assert.Len(t, snap.Fields, len(importer.LeadFields))

	w = doJSON(r, http.MethodPost, "/api/v1/imports/"+snap.ID+"/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	h.Wait()

	snap = decode(t, doJSON(r, http.MethodGet, "/api/v1/imports/"+snap.ID, nil))
	assert.Equal(t, importer.PhaseSuccess, snap.Phase)
	assert.Equal(t, 120, snap.Processed)
	assert.Equal(t, 100, snap.Percent)
	assert.Equal(t, 120, sink.count())
	assert.Equal(t, 3, sink.batches)
	assert.Equal(t, 101.0, sink.rows[0]["estimated_price"], "currency symbol dropped")

	w = doJSON(r, http.MethodDelete, "/api/v1/imports/"+snap.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/api/v1/imports/"+snap.ID, nil).Code)
}

func TestImport_PartialFailureReported(t *testing.T) {
	sink := &memorySink{failOn: 2}
	r, h := setupRouter(t, sink)

	snap := decode(t, upload(t, r, "/api/v1/imports", "leads.csv", csvFile(120), "semicolon"))
	require.Equal(t, http.StatusAccepted, doJSON(r, http.MethodPost, "/api/v1/imports/"+snap.ID+"/run", nil).Code)
	h.Wait()

	snap = decode(t, doJSON(r, http.MethodGet, "/api/v1/imports/"+snap.ID, nil))
	assert.Equal(t, importer.PhaseMap, snap.Phase)
	assert.Equal(t, 50, snap.Processed)
	require.NotNil(t, snap.Failure)
	assert.Equal(t, 50, snap.Failure.Imported)
	assert.Equal(t, 120, snap.Failure.Total)
	assert.Contains(t, snap.Error, "duplicate key value")
	assert.Equal(t, 50, sink.count())
}

func TestImport_MappingEdits(t *testing.T) {
	r, _ := setupRouter(t, &memorySink{})
	snap := decode(t, upload(t, r, "/api/v1/imports", "leads.csv", csvFile(3), ";"))
	base := "/api/v1/imports/" + snap.ID

	w := doJSON(r, http.MethodPatch, base+"/mapping", SetMappingRequest{Field: "name", Column: ""})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode(t, w).Mapping, "name")

	w = doJSON(r, http.MethodPost, base+"/run", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Name is required")

	w = doJSON(r, http.MethodPatch, base+"/mapping", SetMappingRequest{Field: "fax", Column: "Email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPut, base+"/mapping", ReplaceMappingRequest{Mapping: importer.ColumnMapping{"name": "Email"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, importer.ColumnMapping{"name": "Email"}, decode(t, w).Mapping)
}

func TestImport_ChangeFile(t *testing.T) {
	r, _ := setupRouter(t, &memorySink{})
	snap := decode(t, upload(t, r, "/api/v1/imports", "leads.csv", csvFile(3), ";"))

	w := upload(t, r, "/api/v1/imports/"+snap.ID+"/file", "other.csv", "Full Name,Phone\nAna,555\n", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap = decode(t, w)
	assert.Equal(t, "other.csv", snap.FileName)
	assert.Equal(t, importer.ColumnMapping{"name": "Full Name", "phone": "Phone"}, snap.Mapping)
}

func TestImport_CloseRefusedWhileRunning(t *testing.T) {
	sink := &memorySink{gate: make(chan struct{})}
	r, h := setupRouter(t, sink)
	snap := decode(t, upload(t, r, "/api/v1/imports", "leads.csv", csvFile(10), ";"))

	require.Equal(t, http.StatusAccepted, doJSON(r, http.MethodPost, "/api/v1/imports/"+snap.ID+"/run", nil).Code)
	assert.Equal(t, http.StatusConflict, doJSON(r, http.MethodDelete, "/api/v1/imports/"+snap.ID, nil).Code)
	assert.Equal(t, http.StatusConflict, doJSON(r, http.MethodPost, "/api/v1/imports/"+snap.ID+"/run", nil).Code)

	close(sink.gate)
	h.Wait()
	assert.Equal(t, http.StatusNoContent, doJSON(r, http.MethodDelete, "/api/v1/imports/"+snap.ID, nil).Code)
}

func TestImport_BadUploads(t *testing.T) {
	r, h := setupRouter(t, &memorySink{})

	w := doJSON(r, http.MethodPost, "/api/v1/imports", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = upload(t, r, "/api/v1/imports", "leads.csv", csvFile(1), "colon")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported delimiter")

	w = upload(t, r, "/api/v1/imports", "broken.csv", "Name,Email\n\"Ana,ana@example.com\n", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "could not read CSV file")
	assert.Equal(t, 1, h.store.Len(), "the session stays open in upload so another file can be tried")

	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/api/v1/imports/nope", nil).Code)
}

func TestImport_WritesLeadsTable(t *testing.T) {
	db, err := common.OpenTestDB()
	require.NoError(t, err)
	require.NoError(t, leads.AutoMigrate(db))

	r, h := setupRouter(t, importer.NewGormSink(db, &leads.LeadModel{}))
	snap := decode(t, upload(t, r, "/api/v1/imports", "leads.csv", csvFile(101), ";"))
	require.Equal(t, http.StatusAccepted, doJSON(r, http.MethodPost, "/api/v1/imports/"+snap.ID+"/run", nil).Code)
	h.Wait()

	snap = decode(t, doJSON(r, http.MethodGet, "/api/v1/imports/"+snap.ID, nil))
	require.Equal(t, importer.PhaseSuccess, snap.Phase, snap.Error)
	assert.Equal(t, 101, snap.Committed)

	var stored []leads.LeadModel
	require.NoError(t, db.Order("id").Find(&stored).Error)
	require.Len(t, stored, 101)
	assert.Equal(t, "Lead 1", stored[0].Name)
	assert.Equal(t, leads.StatusNew, stored[0].Status)
	require.NotNil(t, stored[0].Bedrooms)
	assert.Equal(t, 2.0, *stored[0].Bedrooms)
	assert.False(t, stored[0].UpdatedAt.IsZero())
}

func TestImport_StrayQuoteAccepted(t *testing.T) {
	sink := &memorySink{}
	r, h := setupRouter(t, sink)

	w := upload(t, r, "/api/v1/imports", "leads.csv", "Name,Notes\nAna,5\" wide window\n", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	snap := decode(t, w)

	w = doJSON(r, http.MethodPatch, "/api/v1/imports/"+snap.ID+"/mapping", SetMappingRequest{Field: "email", Column: "Notes"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, http.StatusAccepted, doJSON(r, http.MethodPost, "/api/v1/imports/"+snap.ID+"/run", nil).Code)
	h.Wait()

	require.Equal(t, 1, sink.count())
	assert.Equal(t, `5" wide window`, sink.rows[0]["email"])
}

func TestStore_EvictIdle(t *testing.T) {
	sink := &memorySink{}
	r, h := setupRouter(t, sink)

	for i := 0; i < 3; i++ {
		snap := decode(t, upload(t, r, "/api/v1/imports", "leads.csv", csvFile(5), ";"))
		require.Equal(t, http.StatusAccepted, doJSON(r, http.MethodPost, "/api/v1/imports/"+snap.ID+"/run", nil).Code)
	}
	h.Wait()
	upload(t, r, "/api/v1/imports", "broken.csv", "Name,Email\n\"Ana,ana@example.com\n", "")

	gated := &memorySink{gate: make(chan struct{})}
	rg, hg := setupRouter(t, gated)
	running := decode(t, upload(t, rg, "/api/v1/imports", "leads.csv", csvFile(5), ";"))
	require.Equal(t, http.StatusAccepted, doJSON(rg, http.MethodPost, "/api/v1/imports/"+running.ID+"/run", nil).Code)

	require.Equal(t, 4, h.store.Len())
	assert.Zero(t, h.store.EvictIdle(time.Hour), "nothing is idle yet")

	later := func() time.Time { return time.Now().Add(2 * time.Hour) }
	h.store.now = later
	hg.store.now = later
	assert.Equal(t, 4, h.store.EvictIdle(time.Hour), "finished and failed sessions both go")
	assert.Zero(t, h.store.Len())
	assert.Zero(t, hg.store.EvictIdle(time.Hour), "a running import is kept")
	assert.Equal(t, 1, hg.store.Len())

	close(gated.gate)
	hg.Wait()
}
