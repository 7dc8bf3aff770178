package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/jobqueue"
	"github.com/speedai/speedai/internal/pkg/middleware"
	"github.com/speedai/speedai/internal/pkg/usercontext"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newTestRepos(t *testing.T) *repository.Repositories {
	return repository.NewRepositories(newTestDB(t))
}

func createUser(t *testing.T, repos *repository.Repositories, email string) *models.User {
	t.Helper()
	u, err := models.NewUser(email, "secret-password", "Jean", "Dupont", "Chez Jean")
	require.NoError(t, err)
	require.NoError(t, repos.User.Create(u))
	return u
}

// testApp authenticates requests from the X-Test-User header and mounts the
// routes registered by mount behind RequireAuth. Public routes are registered
// first since the auth group applies to every path.
func testApp(deps *Deps, mount func(r fiber.Router), public ...func(r fiber.Router)) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: apierror.ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		var id uint
		_, _ = fmt.Sscan(c.Get("X-Test-User"), &id)
		if id != 0 {
			usercontext.Set(c, usercontext.UserContext{UserID: id, IsLoggedIn: true})
		}
		return c.Next()
	})
	for _, p := range public {
		p(app)
	}
	mount(app.Group("", middleware.RequireAuth(deps.Repos.User)))
	return app
}

type response struct {
	Status int
	Body   []byte
	Header http.Header
}

func (r response) json(t *testing.T, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Body, dst), string(r.Body))
}

func (r response) errorCode(t *testing.T) string {
	t.Helper()
	var m map[string]interface{}
	r.json(t, &m)
	code, _ := m["error"].(string)
	return code
}

func do(t *testing.T, app *fiber.App, method, path string, userID uint, body interface{}) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("X-Test-User", fmt.Sprint(userID))
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{Status: resp.StatusCode, Body: raw, Header: resp.Header}
}

// fakeJobs records enqueued jobs, or fails every enqueue when err is set.
type fakeJobs struct {
	mu   sync.Mutex
	jobs []*jobqueue.Job
	err  error
}

func (f *fakeJobs) EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	job := &jobqueue.Job{ID: uuid.NewString(), Type: jobType, Status: jobqueue.JobStatusPending, Payload: payload}
	f.jobs = append(f.jobs, job)
	return job, nil
}
