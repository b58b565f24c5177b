package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/doctracker/internal/api"
	"github.com/charlesng35/doctracker/internal/app"
	iauth "github.com/charlesng35/doctracker/internal/auth"
	"github.com/charlesng35/doctracker/internal/cache"
	sharedtestutil "github.com/charlesng35/doctracker/internal/database/testutil"
	"github.com/charlesng35/doctracker/internal/models"
	"github.com/charlesng35/doctracker/internal/reminders"
	"github.com/charlesng35/doctracker/pkg/mail"
	"github.com/charlesng35/doctracker/pkg/response"
)

// SchedulerSecret is the scheduler secret configured by NewEnv.
const SchedulerSecret = "scheduler-test-secret"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Engine *reminders.Engine
	Store  *reminders.SQLStore
	Mailer *RecordingMailer
	Now    time.Time
}

// EnvOption customises NewEnv.
type EnvOption func(*envConfig)

type envConfig struct {
	now      time.Time
	authMode reminders.AuthMode
}

// WithNow pins the reminder engine clock.
func WithNow(now time.Time) EnvOption {
	return func(cfg *envConfig) {
		cfg.now = now
	}
}

// WithAuthMode switches the scheduler authorisation mode. The default is hardened.
func WithAuthMode(mode reminders.AuthMode) EnvOption {
	return func(cfg *envConfig) {
		cfg.authMode = mode
	}
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	cfgOpts := envConfig{
		now:      time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC),
		authMode: reminders.AuthHardened,
	}
	for _, opt := range opts {
		opt(&cfgOpts)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	store, err := reminders.NewSQLStore(db)
	require.NoError(t, err)

	authorizer, err := reminders.NewAuthorizer(reminders.AuthConfig{
		Mode:   cfgOpts.authMode,
		Secret: SchedulerSecret,
	})
	require.NoError(t, err)

	mailer := &RecordingMailer{}
	locks := cache.NewDatabaseStore(db)
	engine, err := reminders.NewEngine(reminders.Dependencies{
		Loader:     store,
		Resolver:   store,
		Ledger:     store,
		Recorder:   store,
		Mailer:     mailer,
		Locks:      locks,
		Authorizer: authorizer,
	}, reminders.EngineConfig{
		AppURL: "https://app.example.com",
		Clock:  func() time.Time { return cfgOpts.now },
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: jwtSecret,
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
	}

	router, err := api.NewRouter(api.Dependencies{
		DB:     db,
		JWT:    jwtSvc,
		Config: cfg,
		Engine: engine,
		Store:  store,
		Cache:  locks,
	})
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Engine: engine,
		Store:  store,
		Mailer: mailer,
		Now:    cfgOpts.now,
	}
}

// CreateUser inserts a user with the supplied settings blob.
func (e *Env) CreateUser(settings map[string]any) *models.User {
	e.T.Helper()

	id := uuid.NewString()
	user := &models.User{
		ID:       id,
		Email:    "user-" + id[:8] + "@example.com",
		Name:     "Dana",
		FullName: "Dana Example",
		Settings: datatypes.JSONMap(settings),
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// CreateDocument inserts a document expiring daysFromNow days after the env clock.
func (e *Env) CreateDocument(user *models.User, title string, daysFromNow int) *models.Document {
	e.T.Helper()

	expiration := reminders.CalendarDate(e.Now).AddDate(0, 0, daysFromNow)
	doc := &models.Document{
		UserID:         user.ID,
		Title:          title,
		Type:           "passport",
		ExpirationDate: &expiration,
	}
	require.NoError(e.T, e.DB.Create(doc).Error)
	return doc
}

// Token issues an access token for user.
func (e *Env) Token(user *models.User) string {
	e.T.Helper()

	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Email: user.Email})
	require.NoError(e.T, err)
	return token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	headers := http.Header{}
	if token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}
	return e.RequestWithHeaders(method, path, body, headers)
}

// RequestWithHeaders executes an HTTP request carrying the supplied headers.
func (e *Env) RequestWithHeaders(method, path string, body any, headers http.Header) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// SecretHeaders returns headers presenting the scheduler secret.
func SecretHeaders() http.Header {
	headers := http.Header{}
	headers.Set(reminders.SecretHeader, SchedulerSecret)
	return headers
}

// RecordingMailer captures sent messages. After SetErr every call fails.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *RecordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *RecordingMailer) Verify(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Sent returns a copy of the delivered messages.
func (m *RecordingMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

// SetErr changes the failure returned by the mailer.
func (m *RecordingMailer) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
