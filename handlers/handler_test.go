package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CorrelAid/registration_uploader/inits"
	"github.com/CorrelAid/registration_uploader/metrics"
	"github.com/CorrelAid/registration_uploader/operations"
	"github.com/CorrelAid/registration_uploader/registration"
	"github.com/CorrelAid/registration_uploader/validators"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type gateway struct {
	router        *gin.Engine
	registerCalls atomic.Int32
	lastPayload   map[string]string
	backendStatus int
	backendBody   string
	cookie        *http.Cookie
	conf          *inits.Config
}

func newGateway(t *testing.T, turnstile *validators.TurnstileValidator) *gateway {
	t.Helper()
	gw := &gateway{backendStatus: http.StatusCreated, backendBody: `{"success":true}`}

	imageHost := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"url":"http://res.example.com/ada.png"}`))
	}))
	t.Cleanup(imageHost.Close)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gw.registerCalls.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&gw.lastPayload)
		w.WriteHeader(gw.backendStatus)
		_, _ = w.Write([]byte(gw.backendBody))
	}))
	t.Cleanup(backend.Close)

	conf, err := inits.LoadConfig("", "")
	require.NoError(t, err)
	conf.Backend.BaseURL = backend.URL
	conf.ImageHost.BaseURL = imageHost.URL
	conf.ImageHost.UploadPreset = "preset"
	conf.ImageHost.CloudName = "demo"
	conf.Server.LoginURL = "http://app.example.com/login"
	conf.Server.AllowedOrigins = []string{"http://localhost:3000"}
	gw.conf = conf

	db, err := inits.NewDB()
	require.NoError(t, err)

	sessions := operations.NewSessions(db, conf.Session.TTL)
	svc := &registration.Service{
		Store:      sessions,
		Uploader:   operations.NewImageHost(conf.ImageHost.BaseURL, conf.ImageHost.UploadPreset, conf.ImageHost.CloudName, time.Second),
		Registrar:  operations.NewBackend(conf.Backend.BaseURL, conf.Backend.RegisterPath, time.Second),
		LoginRoute: "/login",
	}
	m := metrics.New()
	h := NewHandler(svc, turnstile, m, conf.Session.Cookie, conf.Server.LoginURL)
	gw.router = SetupRouter(conf, h, sessions, m)
	return gw
}

func (gw *gateway) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if gw.cookie != nil {
		req.AddCookie(gw.cookie)
	}
	w := httptest.NewRecorder()
	gw.router.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == "register_session" {
			if c.MaxAge < 0 {
				gw.cookie = nil
			} else {
				gw.cookie = c
			}
		}
	}
	return w
}

func (gw *gateway) start(t *testing.T) {
	t.Helper()
	w := gw.do(t, httptest.NewRequest(http.MethodGet, "/register", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gw.cookie)
}

func (gw *gateway) setFields(t *testing.T, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(fields)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPatch, "/register/fields", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return gw.do(t, req)
}

func (gw *gateway) upload(t *testing.T, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="ada.png"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/register/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return gw.do(t, req)
}

func (gw *gateway) submit(t *testing.T, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/register/submit", nil)
	if token != "" {
		req.Header.Set("CF-Turnstile-Response", token)
	}
	return gw.do(t, req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

var validFields = map[string]string{
	"firstname":    "Ada",
	"lastname":     "Lovelace",
	"email":        "ada@example.com",
	"password":     "abcde",
	"confpassword": "abcde",
}

func TestShow(t *testing.T) {
	gw := newGateway(t, nil)
	gw.start(t)
	require.Equal(t, http.StatusOK, gw.setFields(t, map[string]string{"firstname": "Ada", "password": "secret"}).Code)

	w := gw.do(t, httptest.NewRequest(http.MethodGet, "/register", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var view FormView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "Ada", view.Form.Firstname)
	assert.NotEqual(t, "secret", view.Form.Password)
	assert.Empty(t, view.ImageURL)
	assert.False(t, view.Loading)
	assert.Equal(t, "/register/login", view.LoginLink)
}

func TestRegistrationFlow(t *testing.T) {
	gw := newGateway(t, nil)
	gw.start(t)

	require.Equal(t, http.StatusOK, gw.setFields(t, validFields).Code)

	w := gw.upload(t, "image/png", []byte("\x89PNG"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = gw.submit(t, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "/login", resp.Redirect)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, "User registered successfully", resp.Notifications[0].Message)

	assert.Equal(t, int32(1), gw.registerCalls.Load())
	assert.Equal(t, map[string]string{
		"firstname": "Ada",
		"lastname":  "Lovelace",
		"email":     "ada@example.com",
		"password":  "abcde",
		"pic":       "http://res.example.com/ada.png",
	}, gw.lastPayload)
	assert.Nil(t, gw.cookie, "session cookie should be cleared")
}

// A browser sends one PATCH per input change; none of that may be throttled
// under the shipped limits.
func TestRegistrationFlow_DefaultLimits(t *testing.T) {
	gw := newGateway(t, nil)
	require.Equal(t, 60.0, gw.conf.Server.RateLimit)
	require.Equal(t, 10, gw.conf.Server.RateBurst)
	gw.start(t)

	typed := []struct{ field, value string }{
		{"firstname", "A"}, {"firstname", "Ad"}, {"firstname", "Ada"},
		{"lastname", "Love"}, {"lastname", "Lovelace"},
		{"email", "ada@"}, {"email", "ada@example.com"},
		{"password", "abc"}, {"password", "abcde"},
		{"confpassword", "abc"}, {"confpassword", "abcde"},
	}
	for _, in := range typed {
		w := gw.setFields(t, map[string]string{in.field: in.value})
		require.Equal(t, http.StatusOK, w.Code, "PATCH %s=%s", in.field, in.value)
	}
	require.Equal(t, http.StatusOK, gw.do(t, httptest.NewRequest(http.MethodGet, "/register", nil)).Code)

	// A re-upload still fits in the burst.
	require.Equal(t, http.StatusOK, gw.upload(t, "image/png", []byte("png")).Code)
	require.Equal(t, http.StatusOK, gw.upload(t, "image/jpeg", []byte("jpg")).Code)

	w := gw.submit(t, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "/login", decode(t, w).Redirect)
	assert.Equal(t, int32(1), gw.registerCalls.Load())
}

func TestSubmit_RateLimited(t *testing.T) {
	gw := newGateway(t, nil)
	gw.backendStatus = http.StatusBadRequest
	gw.backendBody = `{"message":"Email exists"}`
	gw.start(t)
	gw.setFields(t, validFields)
	require.Equal(t, http.StatusOK, gw.upload(t, "image/png", []byte("png")).Code)

	var codes []int
	for i := 0; i <= gw.conf.Server.RateBurst; i++ {
		codes = append(codes, gw.submit(t, "").Code)
	}

	assert.Contains(t, codes, http.StatusTooManyRequests)
	assert.Less(t, gw.registerCalls.Load(), int32(len(codes)))
	// Field input is never throttled.
	assert.Equal(t, http.StatusOK, gw.setFields(t, map[string]string{"email": "ada2@example.com"}).Code)
}

func TestSubmit_WithoutPictureIsSkipped(t *testing.T) {
	gw := newGateway(t, nil)
	gw.start(t)
	gw.setFields(t, validFields)

	w := gw.submit(t, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "skipped", resp.Status)
	assert.Empty(t, resp.Notifications)
	assert.Equal(t, int32(0), gw.registerCalls.Load())
}

func TestSubmit_ValidationFailure(t *testing.T) {
	gw := newGateway(t, nil)
	gw.start(t)
	gw.setFields(t, validFields)
	gw.setFields(t, map[string]string{"confpassword": "edcba"})
	require.Equal(t, http.StatusOK, gw.upload(t, "image/jpeg", []byte("jpg")).Code)

	w := gw.submit(t, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode(t, w)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, "Passwords do not match", resp.Notifications[0].Message)
	assert.Equal(t, int32(0), gw.registerCalls.Load())
}

func TestSubmit_BackendRejects(t *testing.T) {
	gw := newGateway(t, nil)
	gw.backendStatus = http.StatusBadRequest
	gw.backendBody = `{"message":"Email exists"}`
	gw.start(t)
	gw.setFields(t, validFields)
	require.Equal(t, http.StatusOK, gw.upload(t, "image/png", []byte("png")).Code)

	w := gw.submit(t, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w)
	require.Len(t, resp.Notifications, 1)
	assert.Contains(t, resp.Notifications[0].Message, "Email exists")
	assert.Empty(t, resp.Redirect)
	assert.NotNil(t, gw.cookie)
}

func TestSubmit_BackendServerError(t *testing.T) {
	gw := newGateway(t, nil)
	gw.backendStatus = http.StatusInternalServerError
	gw.backendBody = ``
	gw.start(t)
	gw.setFields(t, validFields)
	gw.upload(t, "image/png", []byte("png"))

	w := gw.submit(t, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decode(t, w)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, "Registration failed: Unknown error", resp.Notifications[0].Message)
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		size        int
		wantCode    int
		wantMsg     string
	}{
		{name: "gif", contentType: "image/gif", size: 10, wantCode: http.StatusUnsupportedMediaType, wantMsg: "Please select an image in jpeg or png format"},
		{name: "too large", contentType: "image/png", size: 5*1024*1024 + 1, wantCode: http.StatusRequestEntityTooLarge, wantMsg: "File size must be less than 5MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newGateway(t, nil)
			gw.start(t)

			w := gw.upload(t, tt.contentType, bytes.Repeat([]byte{'x'}, tt.size))
			assert.Equal(t, tt.wantCode, w.Code)
			resp := decode(t, w)
			require.Len(t, resp.Notifications, 1)
			assert.Equal(t, tt.wantMsg, resp.Notifications[0].Message)

			show := gw.do(t, httptest.NewRequest(http.MethodGet, "/register", nil))
			var view FormView
			require.NoError(t, json.Unmarshal(show.Body.Bytes(), &view))
			assert.Empty(t, view.ImageURL)
			assert.False(t, view.Loading)
		})
	}
}

func TestUpload_MissingFile(t *testing.T) {
	gw := newGateway(t, nil)
	gw.start(t)

	req := httptest.NewRequest(http.MethodPost, "/register/upload", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	w := gw.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFields_UnknownField(t *testing.T) {
	gw := newGateway(t, nil)
	gw.start(t)

	w := gw.setFields(t, map[string]string{"nickname": "ada"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginLink(t *testing.T) {
	gw := newGateway(t, nil)

	w := gw.do(t, httptest.NewRequest(http.MethodGet, "/register/login", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://app.example.com/login", w.Header().Get("Location"))
}

func TestMetricsEndpoint(t *testing.T) {
	gw := newGateway(t, nil)
	gw.start(t)
	gw.upload(t, "image/gif", []byte("gif"))

	w := gw.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `registration_uploads_total{result="rejected"} 1`)
	assert.Contains(t, w.Body.String(), fmt.Sprintf(`registration_rejections_total{rule=%q} 1`, validators.RuleImageType))
}

type stubVerifier struct{ ok bool }

func (s stubVerifier) Verify(ctx context.Context, token, ip string) (bool, error) {
	return s.ok, nil
}

func TestSubmit_Turnstile(t *testing.T) {
	ts := &validators.TurnstileValidator{Verifier: stubVerifier{ok: false}, TestToken: "dev-token"}
	gw := newGateway(t, ts)
	gw.start(t)
	gw.setFields(t, validFields)
	require.Equal(t, http.StatusOK, gw.upload(t, "image/png", []byte("png")).Code)

	w := gw.submit(t, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = gw.submit(t, "forged")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, int32(0), gw.registerCalls.Load())

	w = gw.submit(t, "dev-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), gw.registerCalls.Load())
}
