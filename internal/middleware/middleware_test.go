package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/pkg/auth"
	"github.com/jwalitptl/shadowing-api/pkg/errors"
	"github.com/jwalitptl/shadowing-api/pkg/httputil"
	"github.com/jwalitptl/shadowing-api/pkg/logger"
	"github.com/jwalitptl/shadowing-api/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func newAuthEngine(t *testing.T) (*gin.Engine, auth.JWTService) {
	t.Helper()
	jwt := auth.NewJWTService("test-secret", "")
	m := NewAuthMiddleware(jwt, time.Minute)

	engine := gin.New()
	engine.GET("/doctor", m.Authenticate(), m.RequireRole(model.RoleDoctor, model.RoleAdmin), func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		require.True(t, ok)
		c.String(http.StatusOK, identity.UserID.String())
	})
	return engine, jwt
}

func TestAuthenticate(t *testing.T) {
	engine, jwt := newAuthEngine(t)
	doctor := model.Identity{UserID: uuid.New(), Role: model.RoleDoctor}
	token, err := jwt.GenerateAccessToken(doctor, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/doctor", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(engine, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, doctor.UserID.String(), w.Body.String())

	// Served from the cache the second time.
	w = serve(engine, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticateRejects(t *testing.T) {
	engine, jwt := newAuthEngine(t)
	expired, err := jwt.GenerateAccessToken(model.Identity{UserID: uuid.New(), Role: model.RoleDoctor}, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"expired token", "Bearer " + expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/doctor", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(engine, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, string(errors.ErrUnauthorized), decodeError(t, w).Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	engine, jwt := newAuthEngine(t)
	token, err := jwt.GenerateAccessToken(model.Identity{UserID: uuid.New(), Role: model.RoleStudent}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/doctor", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(engine, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(errors.ErrForbidden), decodeError(t, w).Code)
}

func TestTokenCacheNeverOutlivesToken(t *testing.T) {
	jwt := auth.NewJWTService("test-secret", "")
	m := NewAuthMiddleware(jwt, time.Hour)
	token, err := jwt.GenerateAccessToken(model.Identity{UserID: uuid.New(), Role: model.RoleStudent}, 2*time.Second)
	require.NoError(t, err)

	_, err = m.identify(token)
	require.NoError(t, err)
	_, expiry, found := m.cache.GetWithExpiration(token)
	require.True(t, found)
	assert.WithinDuration(t, time.Now().Add(2*time.Second), expiry, 2*time.Second)
}

func TestRequestIDAndLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Output: &buf, JSON: true})

	engine := gin.New()
	engine.Use(RequestID(), Logger(log))
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderXRequestID, "req-123")
	w := serve(engine, req)

	assert.Equal(t, "req-123", w.Header().Get(HeaderXRequestID))
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
	assert.Contains(t, buf.String(), "Request processed")

	w = serve(engine, httptest.NewRequest(http.MethodGet, "/ping", nil))
	_, err := uuid.Parse(w.Header().Get(HeaderXRequestID))
	assert.NoError(t, err, "a fresh id is generated when none is sent")
}

func TestRecovery(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery(logger.Nop()))
	engine.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, string(errors.ErrInternal), body.Code)
	assert.NotContains(t, body.Message, "kaboom")
}

func TestErrorHandlerAnswersUnwrittenErrors(t *testing.T) {
	engine := gin.New()
	engine.Use(ErrorHandler(logger.Nop()))
	engine.GET("/fail", func(c *gin.Context) { _ = c.Error(errors.NotFound("slot", nil)) })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(errors.ErrNotFound), decodeError(t, w).Code)
}

func TestTimeoutSetsDeadline(t *testing.T) {
	engine := gin.New()
	engine.Use(Timeout(TimeoutConfig{Duration: time.Second}))
	engine.GET("/deadline", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		c.Status(http.StatusOK)
	})

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/deadline", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitPerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 2})
	engine := gin.New()
	engine.Use(rl.RateLimit())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(engine, req)
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)
	w := send("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, string(errors.ErrRateLimited), body.Code)
	assert.True(t, body.Retryable)

	assert.Equal(t, http.StatusOK, send("10.0.0.2").Code, "buckets are per client")
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	m := metrics.New("test")
	engine := gin.New()
	engine.Use(Metrics(m))
	engine.GET("/clinics/:clinicId", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(engine, httptest.NewRequest(http.MethodGet, "/clinics/"+uuid.NewString(), nil))
	serve(engine, httptest.NewRequest(http.MethodGet, "/clinics/"+uuid.NewString(), nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/clinics/:clinicId", "200")))
}

func TestCORS(t *testing.T) {
	engine := gin.New()
	engine.Use(CORS(CORSConfig{AllowOrigins: []string{"https://app.example"}, AllowMethods: []string{http.MethodGet}, MaxAge: 600}))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	w := serve(engine, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	assert.Equal(t, http.StatusForbidden, serve(engine, req).Code)
}

func TestSizeLimit(t *testing.T) {
	engine := gin.New()
	engine.Use(SizeLimit(SizeLimitConfig{MaxBodySize: 8}))
	engine.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.Equal(t, http.StatusOK, w.Code)
}

type bindTarget struct {
	Lat      *float64   `form:"lat" binding:"required,latitude"`
	Location [2]float64 `json:"coordinates" binding:"lnglat"`
}

func TestBindingErrorNamesFields(t *testing.T) {
	engine := gin.New()
	engine.POST("/", func(c *gin.Context) {
		var req bindTarget
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.RespondWithError(c, BindingError(err))
			return
		}
		c.Status(http.StatusOK)
	})

	w := serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"coordinates":[200,10]}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, string(errors.ErrValidation), body.Code)
	assert.Contains(t, body.Message, "coordinates")
	assert.Contains(t, body.Message, "lat is required")

	w = serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`)))
	assert.Equal(t, "malformed request", decodeError(t, w).Message)
}
