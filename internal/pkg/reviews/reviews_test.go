package reviews

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/mail"
)

type fakeConnector struct {
	platform string
	reviews  []FetchedReview
	err      error
	calls    int
}

func (f *fakeConnector) Platform() string { return f.platform }

func (f *fakeConnector) Fetch(context.Context, models.ReviewSource) ([]FetchedReview, error) {
	f.calls++
	return f.reviews, f.err
}

type fakeEmail struct {
	sent []mail.Message
	err  error
}

func (f *fakeEmail) Send(_ context.Context, msg mail.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "msg_1", nil
}

type fakeSMS struct{ bodies []string }

func (f *fakeSMS) Send(_ context.Context, to, body string) (string, error) {
	f.bodies = append(f.bodies, to+"|"+body)
	return "SM1", nil
}

type fakeRenderer struct{ last map[string]interface{} }

func (f *fakeRenderer) Render(name string, data map[string]interface{}) (string, string, error) {
	f.last = data
	subject := "Votre avis compte"
	if s, ok := data["Subject"].(string); ok {
		subject = s
	}
	return subject, fmt.Sprintf("%s:%v", name, data["Link"]), nil
}

type fakeStore struct{ keys []string }

func (f *fakeStore) Put(_ context.Context, key, _ string, _ []byte) (string, error) {
	f.keys = append(f.keys, key)
	return "https://cdn.example/" + key, nil
}
func (f *fakeStore) Exists(context.Context, string) (bool, error) { return true, nil }
func (f *fakeStore) Delete(context.Context, string) error         { return nil }

func newRepos(t *testing.T) (*repository.Repositories, *models.User) {
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
	u, err := models.NewUser("resto@example.com", "secret-password", "Jean", "Dupont", "Chez Jean")
	require.NoError(t, err)
	require.NoError(t, repos.User.Create(u))
	return repos, u
}

func TestSyncSourceInsertsUpdatesAndAlerts(t *testing.T) {
	repos, u := newRepos(t)
	require.NoError(t, repos.Review.UpsertConfig(&models.ReviewConfig{UserID: u.ID, AlertThreshold: 2, PreferredPlatform: models.PLATFORM_GOOGLE}))
	src := &models.ReviewSource{UserID: u.ID, Platform: models.PLATFORM_GOOGLE, ExternalRef: "place-1", IsActive: true}
	require.NoError(t, repos.Review.CreateSource(src))

	google := &fakeConnector{platform: models.PLATFORM_GOOGLE, reviews: []FetchedReview{
		{ExternalID: "a", AuthorName: "Anne", Rating: 5},
		{ExternalID: "b", AuthorName: "Bruno", Rating: 1, Content: "Froid"},
		{ExternalID: "c", AuthorName: "Chloé", Rating: 3},
		{ExternalID: "", Rating: 4},
		{ExternalID: "bad", Rating: 9},
	}}
	syncer := NewSyncer(repos.Review, repos.Notification, DefaultConnectors(google))

	log, err := syncer.SyncSource(context.Background(), *src)
	require.NoError(t, err)
	assert.Equal(t, models.SYNC_SUCCESS, log.Status)
	assert.Equal(t, 5, log.Fetched)
	assert.Equal(t, 3, log.Inserted)
	assert.Equal(t, 0, log.Updated)
	assert.NotNil(t, log.FinishedAt)

	alerts, err := repos.Review.ListAlerts(u.ID, true)
	require.NoError(t, err)
	require.Len(t, alerts, 1, "only ratings at or below the threshold alert")
	assert.Contains(t, alerts[0].Message, "1/5")

	unread, err := repos.Notification.CountUnread(u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	// A second run only refreshes and raises nothing new.
	google.reviews[1].Content = "Froid et lent"
	log, err = syncer.SyncSource(context.Background(), *src)
	require.NoError(t, err)
	assert.Equal(t, 0, log.Inserted)
	assert.Equal(t, 3, log.Updated)
	alerts, err = repos.Review.ListAlerts(u.ID, false)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	got, err := repos.Review.GetSource(u.ID, src.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastSyncAt)

	logs, err := repos.Review.ListSyncLogs(u.ID, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestSyncAllIsolatesFailingSources(t *testing.T) {
	repos, u := newRepos(t)
	fb := &models.ReviewSource{UserID: u.ID, Platform: models.PLATFORM_FACEBOOK, ExternalRef: "page", IsActive: true}
	g := &models.ReviewSource{UserID: u.ID, Platform: models.PLATFORM_GOOGLE, ExternalRef: "place", IsActive: true}
	require.NoError(t, repos.Review.CreateSource(fb))
	require.NoError(t, repos.Review.CreateSource(g))

	google := &fakeConnector{platform: models.PLATFORM_GOOGLE, reviews: []FetchedReview{{ExternalID: "x", Rating: 4}}}
	syncer := NewSyncer(repos.Review, repos.Notification, DefaultConnectors(google))

	failed, err := syncer.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, google.calls)

	logs, err := repos.Review.ListSyncLogs(u.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	byPlatform := map[string]models.ReviewSyncLog{}
	for _, l := range logs {
		byPlatform[l.Platform] = l
	}
	assert.Equal(t, models.SYNC_FAILED, byPlatform[models.PLATFORM_FACEBOOK].Status)
	assert.Contains(t, byPlatform[models.PLATFORM_FACEBOOK].Error, "not supported")
	assert.Equal(t, models.SYNC_SUCCESS, byPlatform[models.PLATFORM_GOOGLE].Status)

	_, total, err := repos.Review.ListReviews(u.ID, repository.ReviewFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestSyncSourceRecordsConnectorError(t *testing.T) {
	repos, u := newRepos(t)
	src := &models.ReviewSource{UserID: u.ID, Platform: models.PLATFORM_GOOGLE, ExternalRef: "place", IsActive: true}
	require.NoError(t, repos.Review.CreateSource(src))

	boom := errors.New("quota exceeded")
	syncer := NewSyncer(repos.Review, repos.Notification, DefaultConnectors(&fakeConnector{platform: models.PLATFORM_GOOGLE, err: boom}))
	log, err := syncer.SyncSource(context.Background(), *src)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, log)
	assert.Equal(t, models.SYNC_FAILED, log.Status)
	assert.Equal(t, "quota exceeded", log.Error)
}

func newRequests(t *testing.T) (*Requests, *repository.Repositories, *models.User, *fakeEmail, *fakeSMS, *fakeRenderer) {
	repos, u := newRepos(t)
	email, text, tpl := &fakeEmail{}, &fakeSMS{}, &fakeRenderer{}
	r := NewRequests(RequestsConfig{Repo: repos.Review, Email: email, SMS: text, Templates: tpl, BaseURL: "https://app.speedai.fr/"})
	return r, repos, u, email, text, tpl
}

func TestCreateRequestAppliesDelay(t *testing.T) {
	r, repos, u, _, _, _ := newRequests(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	require.NoError(t, repos.Review.UpsertConfig(&models.ReviewConfig{UserID: u.ID, AlertThreshold: 3, RequestDelayHours: 2, PreferredPlatform: models.PLATFORM_GOOGLE}))

	_, err := r.Create(u.ID, NewRequestInput{CustomerName: "Claire"})
	assert.ErrorIs(t, err, ErrNoContactChannel)

	req, err := r.Create(u.ID, NewRequestInput{CustomerName: "Claire", CustomerEmail: " claire@example.com "})
	require.NoError(t, err)
	assert.Len(t, req.ShortCode, 8)
	assert.Equal(t, "claire@example.com", req.CustomerEmail)
	require.NotNil(t, req.SendAfter)
	assert.True(t, now.Add(2*time.Hour).Equal(*req.SendAfter))

	now2, err := r.Create(u.ID, NewRequestInput{CustomerEmail: "x@example.com", SendNow: true})
	require.NoError(t, err)
	assert.Nil(t, now2.SendAfter)

	missing := uint(999)
	_, err = r.Create(u.ID, NewRequestInput{CustomerEmail: "x@example.com", IncentiveID: &missing})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSendRequestByEmailAndSMS(t *testing.T) {
	r, repos, u, email, text, tpl := newRequests(t)
	require.NoError(t, repos.Review.UpsertConfig(&models.ReviewConfig{UserID: u.ID, BusinessName: "Chez Jean", AlertThreshold: 3, EmailSubject: "Merci !", PreferredPlatform: models.PLATFORM_GOOGLE}))
	inc := &models.ReviewIncentive{UserID: u.ID, Title: "Café offert", Value: "1 café", Type: "gift", IsActive: true}
	require.NoError(t, repos.Review.CreateIncentive(inc))

	req, err := r.Create(u.ID, NewRequestInput{CustomerName: "Claire", CustomerEmail: "claire@example.com", IncentiveID: &inc.ID, SendNow: true})
	require.NoError(t, err)
	sent, err := r.Send(context.Background(), u.ID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.REVIEW_REQUEST_SENT, sent.Status)
	assert.NotNil(t, sent.SentAt)
	require.Len(t, email.sent, 1)
	assert.Equal(t, "Merci !", email.sent[0].Subject)
	assert.Equal(t, "https://app.speedai.fr/r/"+req.ShortCode, tpl.last["Link"])
	assert.Equal(t, "Café offert : 1 café", tpl.last["Incentive"])

	_, err = r.Send(context.Background(), u.ID, req.ID)
	assert.ErrorIs(t, err, ErrRequestAlreadySent)

	phone, err := r.Create(u.ID, NewRequestInput{CustomerName: "Paul", CustomerPhone: "+33600000001", SendNow: true})
	require.NoError(t, err)
	_, err = r.Send(context.Background(), u.ID, phone.ID)
	require.NoError(t, err)
	require.Len(t, text.bodies, 1)
	assert.Contains(t, text.bodies[0], "+33600000001|Bonjour Paul, merci de votre visite chez Chez Jean")
	assert.Contains(t, text.bodies[0], "/r/"+phone.ShortCode)
}

func TestSendRequestFailureIsStored(t *testing.T) {
	r, _, u, email, _, _ := newRequests(t)
	email.err = errors.New("smtp down")

	req, err := r.Create(u.ID, NewRequestInput{CustomerEmail: "claire@example.com", SendNow: true})
	require.NoError(t, err)
	got, err := r.Send(context.Background(), u.ID, req.ID)
	assert.Error(t, err)
	assert.Equal(t, models.REVIEW_REQUEST_FAILED, got.Status)
	assert.Equal(t, "smtp down", got.Error)

	email.err = nil
	sent, failed, err := r.SendDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent, "failed requests are not due again")
	assert.Zero(t, failed)
}

func TestResolveShortCode(t *testing.T) {
	r, repos, u, _, _, _ := newRequests(t)
	req, err := r.Create(u.ID, NewRequestInput{CustomerEmail: "claire@example.com", SendNow: true})
	require.NoError(t, err)

	_, err = r.Resolve(req.ShortCode)
	assert.ErrorIs(t, err, ErrNoReviewURL)

	require.NoError(t, repos.Review.UpsertConfig(&models.ReviewConfig{UserID: u.ID, AlertThreshold: 3, PreferredPlatform: models.PLATFORM_FACEBOOK, GoogleReviewURL: "https://g.page/r/chez-jean", FacebookPageURL: "https://facebook.com/chezjean"}))
	target, err := r.Resolve(req.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://facebook.com/chezjean", target)

	got, err := repos.Review.GetRequest(u.ID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.REVIEW_REQUEST_CLICKED, got.Status)
	require.NotNil(t, got.ClickedAt)

	_, err = r.Resolve("nope!")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = r.Resolve("zzzzzzzz")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestQRCodeArchivesWhenStoreConfigured(t *testing.T) {
	r, _, u, _, _, _ := newRequests(t)
	req, err := r.Create(u.ID, NewRequestInput{CustomerEmail: "claire@example.com"})
	require.NoError(t, err)

	png, url, err := r.QRCode(context.Background(), u.ID, req.ID, 256)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))
	assert.Empty(t, url)

	store := &fakeStore{}
	r.store = store
	_, url, err = r.QRCode(context.Background(), u.ID, req.ID, 256)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("https://cdn.example/qrcodes/%d/%s.png", u.ID, req.ShortCode), url)
}

func TestGooglePlacesFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "place-1", r.URL.Query().Get("place_id"))
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","result":{"reviews":[{"author_name":"Anne","author_url":"https://g/anne","rating":2,"text":"Bof","time":1717200000}]}}`))
	}))
	defer srv.Close()

	g := &GooglePlaces{Endpoint: srv.URL + "/details/json", APIKey: "k", Language: "fr", Timeout: time.Second}
	got, err := g.Fetch(context.Background(), models.ReviewSource{ExternalRef: "place-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Anne", got[0].AuthorName)
	assert.Equal(t, 2, got[0].Rating)
	assert.Equal(t, int64(1717200000), got[0].PublishedAt.Unix())
	assert.Equal(t, googleReviewID("https://g/anne", "Anne", 1717200000), got[0].ExternalID)

	_, err = (&GooglePlaces{Endpoint: srv.URL}).Fetch(context.Background(), models.ReviewSource{})
	assert.Error(t, err)
}

func TestUnsupportedConnectors(t *testing.T) {
	c := DefaultConnectors(nil)
	_, err := c[models.PLATFORM_TRIPADVISOR].Fetch(context.Background(), models.ReviewSource{})
	assert.ErrorIs(t, err, ErrConnectorUnsupported)
}
