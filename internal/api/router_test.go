package api

import (
	"bytes"
	"database/sql"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hepavision/fibrostage/internal/auth"
	"github.com/hepavision/fibrostage/internal/database"
	"github.com/hepavision/fibrostage/internal/imaging"
	"github.com/hepavision/fibrostage/internal/labels"
	"github.com/hepavision/fibrostage/internal/services"
	"github.com/hepavision/fibrostage/internal/web"
)

// stubClassifier stands in for the TFLite engine in handler tests.
type stubClassifier struct {
	ready   bool
	loadErr string
	probs   []float32
	err     error
}

func (s *stubClassifier) Ready() (bool, string) { return s.ready, s.loadErr }

func (s *stubClassifier) Classify(t imaging.Tensor) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.probs, nil
}

type testApp struct {
	server    *httptest.Server
	db        *sql.DB
	uploadDir string
}

func newTestApp(t *testing.T, engine *stubClassifier) *testApp {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	renderer, err := web.NewRenderer()
	require.NoError(t, err)

	uploadDir := t.TempDir()

	router := NewRouter(RouterDeps{
		DB:          db,
		Users:       services.NewUserService(db),
		Predictions: services.NewPredictionService(db),
		Engine:      engine,
		Labels:      labels.NewMap(filepath.Join(t.TempDir(), "label_map.json")),
		Sessions:    auth.NewManager("test-session-secret", false),
		Renderer:    renderer,
		UploadDir:   uploadDir,
		MaxUpload:   10 << 20,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testApp{server: server, db: db, uploadDir: uploadDir}
}

// newClient returns a cookie-keeping client that does not follow redirects,
// so tests can assert on Location headers.
func (a *testApp) newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (a *testApp) postForm(t *testing.T, client *http.Client, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := client.PostForm(a.server.URL+path, form)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func (a *testApp) get(t *testing.T, client *http.Client, path string) *http.Response {
	t.Helper()
	resp, err := client.Get(a.server.URL + path)
	require.NoError(t, err)
	return resp
}

func (a *testApp) register(t *testing.T, client *http.Client, name, email, password string) *http.Response {
	t.Helper()
	return a.postForm(t, client, "/register", url.Values{
		"full_name": {name},
		"email":     {email},
		"password":  {password},
		"confirm":   {password},
	})
}

func (a *testApp) login(t *testing.T, client *http.Client, email, password string) *http.Response {
	t.Helper()
	return a.postForm(t, client, "/login", url.Values{
		"email":    {email},
		"password": {password},
	})
}

func (a *testApp) signUpAndIn(t *testing.T, name, email string) *http.Client {
	t.Helper()
	client := a.newClient(t)
	resp := a.register(t, client, name, email, "s3cret")
	require.Equal(t, "/login", resp.Header.Get("Location"))
	resp = a.login(t, client, email, "s3cret")
	require.Equal(t, "/home", resp.Header.Get("Location"))
	return client
}

func (a *testApp) userCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, a.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&n))
	return n
}

func (a *testApp) predictionCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, a.db.QueryRow("SELECT COUNT(*) FROM predictions").Scan(&n))
	return n
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 180, G: 60, B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (a *testApp) postUpload(t *testing.T, client *http.Client, filename string, content []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if filename != "" {
		part, err := writer.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/predict", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestRootRedirects(t *testing.T) {
	app := newTestApp(t, &stubClassifier{})
	client := app.newClient(t)

	resp := app.get(t, client, "/")
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	client = app.signUpAndIn(t, "Ada Lovelace", "ada@example.com")
	resp = app.get(t, client, "/")
	resp.Body.Close()
	assert.Equal(t, "/home", resp.Header.Get("Location"))
}

func TestSessionGating(t *testing.T) {
	app := newTestApp(t, &stubClassifier{})
	client := app.newClient(t)

	for _, path := range []string{"/home", "/predict", "/history", "/report/1", "/logout"} {
		resp := app.get(t, client, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/login", resp.Header.Get("Location"), path)
	}
}

func TestRegisterValidation(t *testing.T) {
	app := newTestApp(t, &stubClassifier{})
	client := app.newClient(t)

	// Missing fields bounce back to the form.
	resp := app.postForm(t, client, "/register", url.Values{
		"full_name": {""}, "email": {"a@b.c"}, "password": {"x"}, "confirm": {"x"},
	})
	assert.Equal(t, "/register", resp.Header.Get("Location"))

	// Mismatched confirmation bounces back too.
	resp = app.postForm(t, client, "/register", url.Values{
		"full_name": {"Ada"}, "email": {"a@b.c"}, "password": {"x"}, "confirm": {"y"},
	})
	assert.Equal(t, "/register", resp.Header.Get("Location"))

	assert.Equal(t, 0, app.userCount(t))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	app := newTestApp(t, &stubClassifier{})
	client := app.newClient(t)

	resp := app.register(t, client, "Ada", "ada@example.com", "s3cret")
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	require.Equal(t, 1, app.userCount(t))

	other := app.newClient(t)
	resp = app.register(t, other, "Imposter", "ADA@example.com", "other")
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Equal(t, 1, app.userCount(t), "duplicate registration must not create a user")
}

func TestLoginWrongCredentials(t *testing.T) {
	app := newTestApp(t, &stubClassifier{})
	client := app.newClient(t)
	app.register(t, client, "Ada", "ada@example.com", "s3cret")

	resp := app.login(t, client, "ada@example.com", "wrong")
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp = app.login(t, client, "nobody@example.com", "s3cret")
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	// Still gated after failed attempts.
	resp = app.get(t, client, "/home")
	resp.Body.Close()
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestAuthenticatedCallersSkipLoginAndRegister(t *testing.T) {
	app := newTestApp(t, &stubClassifier{})
	client := app.signUpAndIn(t, "Ada", "ada@example.com")

	for _, path := range []string{"/login", "/register"} {
		resp := app.get(t, client, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/home", resp.Header.Get("Location"), path)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	app := newTestApp(t, &stubClassifier{})
	client := app.signUpAndIn(t, "Ada", "ada@example.com")

	resp := app.get(t, client, "/logout")
	resp.Body.Close()
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp = app.get(t, client, "/home")
	resp.Body.Close()
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestPredictShowRendersModelState(t *testing.T) {
	app := newTestApp(t, &stubClassifier{ready: false, loadErr: "model file not found at: /models/x.tflite"})
	client := app.signUpAndIn(t, "Ada", "ada@example.com")

	resp := app.get(t, client, "/predict")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Model not ready")
	assert.Contains(t, string(body), "model file not found")
	assert.Contains(t, string(body), "F4") // default class names listed
}

func TestPredictModelUnavailable(t *testing.T) {
	app := newTestApp(t, &stubClassifier{ready: false, loadErr: "model file not found"})
	client := app.signUpAndIn(t, "Ada", "ada@example.com")

	resp := app.postUpload(t, client, "scan.png", pngBytes(t))
	assert.Equal(t, "/predict", resp.Header.Get("Location"))
	assert.Equal(t, 0, app.predictionCount(t))
}

func TestPredictNoFile(t *testing.T) {
	app := newTestApp(t, &stubClassifier{ready: true, probs: []float32{1, 0, 0, 0, 0}})
	client := app.signUpAndIn(t, "Ada", "ada@example.com")

	resp := app.postUpload(t, client, "", nil)
	assert.Equal(t, "/predict", resp.Header.Get("Location"))
	assert.Equal(t, 0, app.predictionCount(t))
}

func TestPredictRejectsDisallowedExtension(t *testing.T) {
	app := newTestApp(t, &stubClassifier{ready: true, probs: []float32{1, 0, 0, 0, 0}})
	client := app.signUpAndIn(t, "Ada", "ada@example.com")

	resp := app.postUpload(t, client, "scan.gif", pngBytes(t))
	assert.Equal(t, "/predict", resp.Header.Get("Location"))
	assert.Equal(t, 0, app.predictionCount(t))

	entries, err := os.ReadDir(app.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads must not be saved")
}

func TestPredictSuccess(t *testing.T) {
	app := newTestApp(t, &stubClassifier{ready: true, probs: []float32{0.05, 0.1, 0.7, 0.1, 0.05}})
	client := app.signUpAndIn(t, "Ada", "ada@example.com")

	resp := app.postUpload(t, client, "scan.png", pngBytes(t))
	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, "/report/"), "expected redirect to report, got %q", location)
	require.Equal(t, 1, app.predictionCount(t))

	var stage, probsJSON, storedName string
	var confidence float64
	require.NoError(t, app.db.QueryRow("SELECT stage, confidence, probs_json, image_filename FROM predictions").
		Scan(&stage, &confidence, &probsJSON, &storedName))
	assert.Equal(t, "F2", stage)
	assert.InDelta(t, 0.7, confidence, 1e-6)
	assert.NotEqual(t, "scan.png", storedName, "stored name must be generated, not user-supplied")
	assert.True(t, strings.HasSuffix(storedName, ".png"))

	// The uploaded bytes landed under the generated name.
	entries, err := os.ReadDir(app.uploadDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, storedName, entries[0].Name())

	// The report renders the stage and sorted distribution.
	reportResp := app.get(t, client, location)
	defer reportResp.Body.Close()
	require.Equal(t, http.StatusOK, reportResp.StatusCode)
	body, err := io.ReadAll(reportResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "F2")
	assert.Contains(t, string(body), "70.00%")
}

func TestPredictInferenceFailure(t *testing.T) {
	app := newTestApp(t, &stubClassifier{ready: true, err: fmt.Errorf("interpreter exploded")})
	client := app.signUpAndIn(t, "Ada", "ada@example.com")

	resp := app.postUpload(t, client, "scan.png", pngBytes(t))
	assert.Equal(t, "/predict", resp.Header.Get("Location"))
	assert.Equal(t, 0, app.predictionCount(t))
}

func TestPredictUndecodableImage(t *testing.T) {
	app := newTestApp(t, &stubClassifier{ready: true, probs: []float32{1, 0, 0, 0, 0}})
	client := app.signUpAndIn(t, "Ada", "ada@example.com")

	resp := app.postUpload(t, client, "scan.png", []byte("not really a png"))
	assert.Equal(t, "/predict", resp.Header.Get("Location"))
	assert.Equal(t, 0, app.predictionCount(t))
}

func TestHistoryListsOwnPredictionsOnly(t *testing.T) {
	app := newTestApp(t, &stubClassifier{ready: true, probs: []float32{0.05, 0.1, 0.7, 0.1, 0.05}})

	ada := app.signUpAndIn(t, "Ada", "ada@example.com")
	app.postUpload(t, ada, "scan.png", pngBytes(t))

	grace := app.signUpAndIn(t, "Grace", "grace@example.com")

	resp := app.get(t, grace, "/history")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "No predictions yet")
}

func TestReportOwnership(t *testing.T) {
	app := newTestApp(t, &stubClassifier{ready: true, probs: []float32{0.05, 0.1, 0.7, 0.1, 0.05}})

	ada := app.signUpAndIn(t, "Ada", "ada@example.com")
	resp := app.postUpload(t, ada, "scan.png", pngBytes(t))
	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, "/report/"))

	// Another authenticated user is forbidden.
	grace := app.signUpAndIn(t, "Grace", "grace@example.com")
	foreign := app.get(t, grace, location)
	foreign.Body.Close()
	assert.Equal(t, http.StatusForbidden, foreign.StatusCode)

	// The owner sees the report.
	own := app.get(t, ada, location)
	own.Body.Close()
	assert.Equal(t, http.StatusOK, own.StatusCode)

	// Unknown IDs are a 404.
	missing := app.get(t, ada, "/report/99999")
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	app := newTestApp(t, &stubClassifier{ready: false, loadErr: "model file not found"})
	client := app.newClient(t)

	resp := app.get(t, client, "/status")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"modelReady":false`)
	assert.Contains(t, string(body), `"databaseOk":true`)

	ready := newTestApp(t, &stubClassifier{ready: true, probs: []float32{1, 0, 0, 0, 0}})
	resp = ready.get(t, client, "/status")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
