package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moodiary/pkg/metrics"
	"moodiary/pkg/models"
	"moodiary/pkg/services"
	"moodiary/pkg/storage"
)

type testServer struct {
	handler  http.Handler
	entries  *storage.EntryStore
	images   *storage.ImageStore
	metrics  *metrics.Metrics
	backupTo string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()

	entries, err := storage.NewEntryStore(filepath.Join(root, "data", "diary.json"), nil)
	require.NoError(t, err)
	images, err := storage.NewImageStore(filepath.Join(root, "uploads"), nil)
	require.NoError(t, err)
	settings, err := storage.NewSettingsStore(filepath.Join(root, "data", "settings.json"), "", nil)
	require.NoError(t, err)

	m := metrics.New()
	diary := services.NewDiaryService(entries, images, settings, services.Options{
		Metrics: m,
		Now:     func() time.Time { return time.Date(2024, time.June, 1, 9, 0, 0, 0, time.Local) },
	})

	backupTo := filepath.Join(root, "backups")
	handler, err := NewRouter(RouterDeps{
		Diary:     diary,
		Images:    images,
		BackupDir: backupTo,
		Metrics:   m,
	})
	require.NoError(t, err)

	return &testServer{handler: handler, entries: entries, images: images, metrics: m, backupTo: backupTo}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	return s.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func (s *testServer) postForm(t *testing.T, target string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(t, req)
}

func (s *testServer) postEntry(t *testing.T, fields map[string]string, photoName string, photo []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if photoName != "" {
		fw, err := mw.CreateFormFile("photo", photoName)
		require.NoError(t, err)
		_, err = fw.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/entries", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(t, req)
}

func pngData(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 3))))
	return buf.Bytes()
}

func validEntry(note string) map[string]string {
	return map[string]string{"date": "2024-06-01", "score": "8.5", "note": note}
}

func TestIndexEmptyDiary(t *testing.T) {
	s := newTestServer(t)

	rec := s.get(t, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "📔 My Diary")
	assert.Contains(t, body, "2024-06-01")
	assert.Contains(t, body, "No entries yet.")
	assert.Contains(t, body, `value="7.0"`)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestSaveEntryAndShowIt(t *testing.T) {
	s := newTestServer(t)

	rec := s.postEntry(t, validEntry("Great <day>\nsecond line"), "", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?done=saved", rec.Header().Get("Location"))

	rec = s.get(t, "/?done=saved")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "✅ Entry saved!")
	assert.Contains(t, body, "Great &lt;day&gt;<br>second line")
	assert.Contains(t, body, "Mood: 8.5")
	assert.NotContains(t, body, "No entries yet.")

	entries := s.entries.Entries()
	require.Len(t, entries, 1)
	assert.Contains(t, body, `action="/entries/`+entries[0].ID+`/delete"`)
}

func TestSaveEntryWithPhotoIsServed(t *testing.T) {
	s := newTestServer(t)
	photo := pngData(t)

	rec := s.postEntry(t, validEntry("with photo"), "sunset.png", photo)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	body := s.get(t, "/").Body.String()
	match := regexp.MustCompile(`src="(/uploads/[^"]+)"`).FindStringSubmatch(body)
	require.Len(t, match, 2, body)
	assert.True(t, strings.HasSuffix(match[1], "_sunset.png"))

	rec = s.get(t, match[1])
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, photo, rec.Body.Bytes())
}

func TestSaveEntryRejectsBlankNote(t *testing.T) {
	s := newTestServer(t)

	rec := s.postEntry(t, map[string]string{"date": "2024-05-30", "score": "3", "note": "   "}, "", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Please write something before saving")
	assert.Contains(t, body, `value="2024-05-30"`, "typed date is kept")
	assert.Contains(t, body, `value="3.0"`, "typed score is kept")

	_, err := os.Stat(s.entries.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestSaveEntryRejectsBadScoreAndPhotoType(t *testing.T) {
	s := newTestServer(t)

	rec := s.postEntry(t, map[string]string{"date": "2024-06-01", "score": "abc", "note": "x"}, "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.postEntry(t, map[string]string{"date": "2024-06-01", "score": "11", "note": "x"}, "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.postEntry(t, validEntry("gif"), "anim.gif", []byte("GIF89a"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Photos must be jpg, jpeg or png")
}

func TestDeleteByIDFromPage(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusSeeOther, s.postEntry(t, validEntry("first"), "", nil).Code)
	require.Equal(t, http.StatusSeeOther, s.postEntry(t, validEntry("second"), "", nil).Code)
	first := s.entries.Entries()[0]

	rec := s.postForm(t, "/entries/"+first.ID+"/delete", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?done=deleted", rec.Header().Get("Location"))

	remaining := s.entries.Entries()
	require.Len(t, remaining, 1)
	assert.Equal(t, "second", remaining[0].Note)

	// A stale form for the same entry is refused without touching anything.
	rec = s.postForm(t, "/entries/"+first.ID+"/delete", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "That entry no longer exists")
	assert.Len(t, s.entries.Entries(), 1)
}

func TestDeleteLegacyEntryByPosition(t *testing.T) {
	s := newTestServer(t)
	legacy := `[{"date":"2023-12-31","score":6,"note":"old","image":"","saved_at":1}]`
	require.NoError(t, os.WriteFile(s.entries.Path(), []byte(legacy), 0644))

	body := s.get(t, "/").Body.String()
	assert.Contains(t, body, `action="/entries/at/0/delete"`)

	rec := s.postForm(t, "/entries/at/0/delete", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = s.postForm(t, "/entries/at/0/delete", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.postForm(t, "/entries/at/x/delete", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCorruptDiaryCanBeQuarantined(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, os.WriteFile(s.entries.Path(), []byte("{not json"), 0644))

	rec := s.get(t, "/")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "The diary file could not be read")
	assert.Contains(t, body, `action="/quarantine"`)
	assert.Contains(t, body, `action="/entries"`, "the form is still there")

	// Saving is refused and the file stays as it was.
	rec = s.postEntry(t, validEntry("new"), "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	data, err := os.ReadFile(s.entries.Path())
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))

	rec = s.postForm(t, "/quarantine", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = s.get(t, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No entries yet.")
}

func TestCorruptSettingsDoNotOfferToMoveHealthyDiary(t *testing.T) {
	s := newTestServer(t)
	rec := s.postEntry(t, validEntry("still here"), "", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	before, err := os.ReadFile(s.entries.Path())
	require.NoError(t, err)

	settingsPath := filepath.Join(filepath.Dir(s.entries.Path()), "settings.json")
	require.NoError(t, os.WriteFile(settingsPath, []byte(`{"bg_url": 42}`), 0644))

	rec = s.get(t, "/")
	body := rec.Body.String()
	assert.Contains(t, body, "The settings file could not be read")
	assert.Contains(t, body, "still here", "entries are still listed")
	assert.NotContains(t, body, `action="/quarantine"`)
	assert.NotContains(t, body, "The diary file could not be read")

	rec = s.postForm(t, "/quarantine", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "The diary file is fine, so it was not moved")

	after, err := os.ReadFile(s.entries.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	_, err = os.Stat(filepath.Join(filepath.Dir(s.entries.Path()), "corrupted"))
	assert.True(t, os.IsNotExist(err))
}

func TestSavedEntryPlaysBalloons(t *testing.T) {
	s := newTestServer(t)

	rec := s.get(t, "/?done=saved")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-effect="balloons"`)
	assert.Contains(t, body, `body[data-effect="balloons"] .effect-piece`)
	assert.Contains(t, body, "document.body.dataset.effect")

	rec = s.get(t, "/?done=deleted")
	assert.Contains(t, rec.Body.String(), `<body data-effect="">`)
}

func TestSettingsForm(t *testing.T) {
	s := newTestServer(t)

	rec := s.postForm(t, "/settings", url.Values{"bg_url": {"https://example.com/sky.jpg"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?done=settings", rec.Header().Get("Location"))
	assert.Contains(t, s.get(t, "/").Body.String(), "https://example.com/sky.jpg")

	rec = s.postForm(t, "/settings", url.Values{"bg_url": {"not a url"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUploadsNotFound(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, s.get(t, "/uploads/missing.png").Code)

	require.NoError(t, os.WriteFile(filepath.Join(s.images.Dir(), "fake.png"), []byte("text"), 0644))
	assert.Equal(t, http.StatusNotFound, s.get(t, "/uploads/fake.png").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	s.get(t, "/")
	rec = s.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/",status="200"} 1`)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAPIEntries(t *testing.T) {
	s := newTestServer(t)

	rec := s.get(t, "/api/entries")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = s.do(t, jsonRequest(http.MethodPost, "/api/entries", models.EntryForm{Date: "2024-06-01", Score: 6.5, Note: "from api"}))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.DiaryEntry
	decodeJSON(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 6.5, created.Score)

	rec = s.get(t, "/api/entries")
	var listed []models.DiaryEntry
	decodeJSON(t, rec, &listed)
	assert.Equal(t, []models.DiaryEntry{created}, listed)

	rec = s.do(t, jsonRequest(http.MethodDelete, "/api/entries/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, jsonRequest(http.MethodDelete, "/api/entries/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, jsonRequest(http.MethodDelete, "/api/entries/at/3", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	var errBody struct {
		Error struct {
			Type string `json:"type"`
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeJSON(t, rec, &errBody)
	assert.Equal(t, "out_of_range", errBody.Error.Type)
	assert.Equal(t, "POSITION_OUT_OF_RANGE", errBody.Error.Code)
}

func TestAPIRejectsInvalidEntries(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, jsonRequest(http.MethodPost, "/api/entries", models.EntryForm{Date: "2024-06-01", Score: 5, Note: ""}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var errBody struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeJSON(t, rec, &errBody)
	assert.Equal(t, "NOTE_EMPTY", errBody.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/entries", strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, s.do(t, req).Code)
}

func TestAPISettingsAndBackup(t *testing.T) {
	s := newTestServer(t)

	rec := s.get(t, "/api/settings")
	var settings map[string]string
	decodeJSON(t, rec, &settings)
	assert.Equal(t, storage.DefaultBackgroundURL, settings["bg_url"])

	rec = s.do(t, jsonRequest(http.MethodPut, "/api/settings", map[string]string{"bg_url": "https://example.com/a.jpg"}))
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &settings)
	assert.Equal(t, "https://example.com/a.jpg", settings["bg_url"])

	rec = s.do(t, jsonRequest(http.MethodPost, "/api/backup", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var backup struct {
		Success bool   `json:"success"`
		Path    string `json:"path"`
	}
	decodeJSON(t, rec, &backup)
	assert.True(t, backup.Success)
	assert.Equal(t, s.backupTo, filepath.Dir(backup.Path))
	assert.FileExists(t, backup.Path)
}

func TestAPIQuarantine(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, os.WriteFile(s.entries.Path(), []byte("garbage"), 0644))

	rec := s.get(t, "/api/entries")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = s.do(t, jsonRequest(http.MethodPost, "/api/quarantine", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		MovedTo string `json:"moved_to"`
	}
	decodeJSON(t, rec, &out)
	assert.FileExists(t, out.MovedTo)

	assert.Equal(t, http.StatusOK, s.get(t, "/api/entries").Code)
}

func TestAPIQuarantineRefusesHealthyDiary(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, jsonRequest(http.MethodPost, "/api/entries", models.EntryForm{Date: "2024-06-01", Score: 6, Note: "fine"}))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, jsonRequest(http.MethodPost, "/api/quarantine", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.get(t, "/api/entries")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fine")
}
