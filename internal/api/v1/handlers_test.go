package apiv1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/speedai/speedai/app/controllers"
	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/analytics"
	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/middleware"
	"github.com/speedai/speedai/internal/pkg/statistics"
)

type testServer struct {
	app   *fiber.App
	repos *repository.Repositories
	key   string
	user  *models.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	repos := repository.NewRepositories(db)
	user, err := models.NewUser("workflow@example.com", "secret-password", "Jean", "Dupont", "Chez Jean")
	require.NoError(t, err)
	key, err := user.IssueAPIKey()
	require.NoError(t, err)
	require.NoError(t, repos.User.Create(user))

	deps := &controllers.Deps{
		Repos: repos,
		Stats: statistics.NewService(repos.Call, nil, analytics.DefaultPolicy()),
	}
	app := fiber.New(fiber.Config{ErrorHandler: apierror.ErrorHandler})
	v1 := app.Group("/api/v1", middleware.APIKeyAuth(repos.User), middleware.RequireActiveAccount(nil))
	RegisterHandlers(v1, NewAPIServer(deps))
	return &testServer{app: app, repos: repos, key: key, user: user}
}

func (s *testServer) call(t *testing.T, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, "/api/v1"+path, reader)
	req.Header.Set("Content-Type", "application/json")
	if s.key != "" {
		req.Header.Set("Authorization", "Bearer "+s.key)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func TestPingRequiresKey(t *testing.T) {
	s := newTestServer(t)

	status, body := s.call(t, "GET", "/ping", nil)
	require.Equal(t, 200, status)
	var pong Pong
	require.NoError(t, json.Unmarshal(body, &pong))
	assert.Equal(t, "pong", pong.Ping)

	s.key = ""
	status, _ = s.call(t, "GET", "/ping", nil)
	assert.Equal(t, 401, status)
}

func TestProfile(t *testing.T) {
	s := newTestServer(t)

	status, body := s.call(t, "GET", "/me", nil)
	require.Equal(t, 200, status)
	var profile map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &profile))
	assert.Equal(t, "workflow@example.com", profile["email"])
	assert.Equal(t, "Chez Jean", profile["companyName"])
}

func TestPostCallUpsertsByExternalID(t *testing.T) {
	s := newTestServer(t)
	in := fiber.Map{"externalId": "wf-42", "phoneNumber": "+33612345678"}

	status, body := s.call(t, "POST", "/calls", in)
	require.Equal(t, 201, status, string(body))
	var created models.Call
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, models.CALL_STATUS_ACTIVE, created.Status)

	in["status"] = "completed"
	in["duration"] = 95
	status, body = s.call(t, "POST", "/calls", in)
	require.Equal(t, 200, status, string(body))
	var updated models.Call
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, models.CALL_STATUS_COMPLETED, updated.Status)

	// A redelivery after completion keeps the terminal status.
	in["status"] = "failed"
	in["clientName"] = "Marie"
	status, body = s.call(t, "POST", "/calls", in)
	require.Equal(t, 200, status, string(body))
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, models.CALL_STATUS_COMPLETED, updated.Status)
	assert.Equal(t, "Marie", updated.ClientName)

	status, body = s.call(t, "GET", "/calls/wf-42", nil)
	require.Equal(t, 200, status)
	var fetched models.Call
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, created.ID, fetched.ID)

	status, body = s.call(t, "PATCH", "/calls/wf-42", fiber.Map{"summary": "Table pour 4", "conversionResult": "converted"})
	require.Equal(t, 200, status, string(body))
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, "Table pour 4", fetched.Summary)

	status, body = s.call(t, "PATCH", "/calls/wf-42", fiber.Map{"status": "failed"})
	assert.Equal(t, 400, status, string(body))

	status, _ = s.call(t, "GET", "/calls/unknown", nil)
	assert.Equal(t, 404, status)
}

func TestPostCallValidation(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.call(t, "POST", "/calls", fiber.Map{"status": "completed"})
	assert.Equal(t, 400, status)

	status, _ = s.call(t, "POST", "/calls", fiber.Map{"phoneNumber": "+33612345678", "status": "ringing"})
	assert.Equal(t, 400, status)
}

func TestCallStats(t *testing.T) {
	s := newTestServer(t)
	for _, st := range []string{"completed", "completed", "failed"} {
		status, _ := s.call(t, "POST", "/calls", fiber.Map{"phoneNumber": "+33612345678", "status": st})
		require.Equal(t, 201, status)
	}

	status, body := s.call(t, "GET", "/calls/stats?timeFilter=today", nil)
	require.Equal(t, 200, status)
	var stats models.CallStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, int64(3), stats.TotalCalls)
	assert.Equal(t, int64(2), stats.SuccessfulCalls)
	assert.InDelta(t, 66.7, stats.ConversionRate, 0.001)

	status, _ = s.call(t, "GET", "/calls/stats?timeFilter=month", nil)
	assert.Equal(t, 400, status)
}
