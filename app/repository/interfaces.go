package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/analytics"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByVerificationToken(token string) (*models.User, error)
	GetByResetToken(token string) (*models.User, error)
	GetByAPIKeyPrefix(prefix string) ([]models.User, error)
	GetByStripeCustomerID(customerID string) (*models.User, error)
	Update(user *models.User) error
	UpdateFields(id uint, fields map[string]interface{}) error
	TouchAPIKey(id uint, at time.Time) error
	SetAccountStatus(id uint, status string) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	ListIDs() ([]uint, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
	GetProviderAccount(provider, providerUserID string) (*models.ProviderAccount, error)
	CreateProviderAccount(account *models.ProviderAccount) error
}

// CallRange bounds a call query on start_time. Nil ends are open.
type CallRange struct {
	Since *time.Time
	Until *time.Time
}

// CallListFilter holds the listing query parameters.
type CallListFilter struct {
	Range            CallRange
	Status           string
	AppointmentsOnly bool
	Offset           int
	Limit            int
}

// CallAggregate holds the SQL aggregates behind the dashboard stats.
type CallAggregate struct {
	Total           int64
	Active          int64
	Completed       int64
	Failed          int64
	Successful      int64
	AverageDuration float64
}

// CallRepository defines tenant-scoped call operations
type CallRepository interface {
	Create(call *models.Call) error
	UpsertByExternalID(call *models.Call) (bool, error)
	GetByID(userID, id uint) (*models.Call, error)
	GetByExternalID(userID uint, externalID string) (*models.Call, error)
	List(userID uint, filter CallListFilter) ([]models.Call, int64, error)
	Update(call *models.Call) error
	Delete(userID, id uint) error
	GetStats(userID uint, r CallRange) (*CallAggregate, error)
	GetChartPoints(userID uint, r CallRange) ([]analytics.CallPoint, error)
	GetStartTimes(userID uint, r CallRange) ([]time.Time, error)
	BackfillConversionResults() (int64, error)
}

// NotificationRepository defines tenant-scoped notification operations
type NotificationRepository interface {
	Create(n *models.Notification) error
	List(userID uint, unreadOnly bool, offset, limit int) ([]models.Notification, error)
	CountUnread(userID uint) (int64, error)
	SetRead(userID, id uint, read bool) error
	MarkAllRead(userID uint) (int64, error)
	Delete(userID, id uint) error
}

// ReportRepository defines monthly report operations
type ReportRepository interface {
	CreateIfNotExists(report *models.MonthlyReport) (bool, error)
	List(userID uint) ([]models.MonthlyReport, error)
	GetByPeriod(userID uint, period string) (*models.MonthlyReport, error)
}

// MarketingRepository defines contacts, segments, campaigns and sends operations
type MarketingRepository interface {
	CreateContact(contact *models.MarketingContact) error
	CreateContacts(contacts []models.MarketingContact) error
	GetContact(userID, id uint) (*models.MarketingContact, error)
	ListContacts(userID uint, filter models.ContactFilter, offset, limit int) ([]models.MarketingContact, int64, error)
	FindContacts(userID uint, filter models.ContactFilter) ([]models.MarketingContact, error)
	UpdateContact(contact *models.MarketingContact) error
	DeleteContact(userID, id uint) error
	ApplyUnsubscribe(userID, contactID uint, channel string, at time.Time) error

	CreateSegment(segment *models.MarketingSegment) error
	GetSegment(userID, id uint) (*models.MarketingSegment, error)
	ListSegments(userID uint) ([]models.MarketingSegment, error)
	UpdateSegment(segment *models.MarketingSegment) error
	DeleteSegment(userID, id uint) error

	CreateCampaign(campaign *models.MarketingCampaign) error
	GetCampaign(userID, id uint) (*models.MarketingCampaign, error)
	ListCampaigns(userID uint, status string) ([]models.MarketingCampaign, error)
	ListDueCampaigns(now time.Time) ([]models.MarketingCampaign, error)
	UpdateCampaign(campaign *models.MarketingCampaign) error
	ClaimCampaign(userID, id uint) (bool, error)
	DeleteCampaign(userID, id uint) error

	CreateSend(send *models.MarketingSend) error
	ClaimSend(send *models.MarketingSend) (bool, error)
	UpdateSend(send *models.MarketingSend) error
	GetSendByTrackingID(trackingID string) (*models.MarketingSend, error)
	ListSends(userID, campaignID uint) ([]models.MarketingSend, error)
	MarkSendOpened(trackingID string, at time.Time) (*models.MarketingSend, bool, error)
	MarkSendClicked(trackingID string, at time.Time) (*models.MarketingSend, bool, error)
}

// ReviewStats summarizes the review inbox.
type ReviewStats struct {
	TotalReviews  int64            `json:"totalReviews"`
	AverageRating float64          `json:"averageRating"`
	ByPlatform    map[string]int64 `json:"byPlatform"`
	Distribution  map[int]int64    `json:"distribution"`
	UnreadAlerts  int64            `json:"unreadAlerts"`
	RequestsSent  int64            `json:"requestsSent"`
	RequestsClick int64            `json:"requestsClicked"`
}

// ReviewFilter narrows review listings.
type ReviewFilter struct {
	Platform  string
	MaxRating int
	Offset    int
	Limit     int
}

// ReviewRepository defines reputation management operations
type ReviewRepository interface {
	GetConfig(userID uint) (*models.ReviewConfig, error)
	UpsertConfig(cfg *models.ReviewConfig) error

	CreateIncentive(incentive *models.ReviewIncentive) error
	GetIncentive(userID, id uint) (*models.ReviewIncentive, error)
	ListIncentives(userID uint) ([]models.ReviewIncentive, error)
	UpdateIncentive(incentive *models.ReviewIncentive) error
	DeleteIncentive(userID, id uint) error

	CreateRequest(req *models.ReviewRequest) error
	GetRequest(userID, id uint) (*models.ReviewRequest, error)
	GetRequestByShortCode(code string) (*models.ReviewRequest, error)
	ListRequests(userID uint) ([]models.ReviewRequest, error)
	ListDueRequests(now time.Time) ([]models.ReviewRequest, error)
	UpdateRequest(req *models.ReviewRequest) error

	UpsertReview(review *models.Review) (bool, error)
	GetReview(userID, id uint) (*models.Review, error)
	ListReviews(userID uint, filter ReviewFilter) ([]models.Review, int64, error)
	UpdateReview(review *models.Review) error

	CreateAlert(alert *models.ReviewAlert) error
	ListAlerts(userID uint, unreadOnly bool) ([]models.ReviewAlert, error)
	MarkAlertRead(userID, id uint) error

	CreateSource(source *models.ReviewSource) error
	GetSource(userID, id uint) (*models.ReviewSource, error)
	ListSources(userID uint) ([]models.ReviewSource, error)
	ListActiveSources() ([]models.ReviewSource, error)
	UpdateSource(source *models.ReviewSource) error
	DeleteSource(userID, id uint) error

	CreateSyncLog(log *models.ReviewSyncLog) error
	UpdateSyncLog(log *models.ReviewSyncLog) error
	ListSyncLogs(userID uint, limit int) ([]models.ReviewSyncLog, error)

	GetStats(userID uint) (*ReviewStats, error)
}

// GuaranteeStats summarizes the no-show protection activity.
type GuaranteeStats struct {
	TotalSessions int64 `json:"totalSessions"`
	Honored       int64 `json:"honored"`
	NoShows       int64 `json:"noShows"`
	Charged       int64 `json:"charged"`
	ChargedAmount int64 `json:"chargedAmount"`
	FailedCharges int64 `json:"failedCharges"`
}

// GuaranteeRepository defines no-show guarantee operations
type GuaranteeRepository interface {
	CreateSession(session *models.GuaranteeSession) error
	GetSession(userID, id uint) (*models.GuaranteeSession, error)
	ListSessions(userID uint, status string) ([]models.GuaranteeSession, error)
	UpdateSession(session *models.GuaranteeSession) error
	DeleteSession(userID, id uint) error
	CreateCharge(charge *models.NoshowCharge) error
	ListCharges(userID, sessionID uint) ([]models.NoshowCharge, error)
	GetStats(userID uint) (*GuaranteeStats, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Call         CallRepository
	Notification NotificationRepository
	Report       ReportRepository
	Marketing    MarketingRepository
	Review       ReviewRepository
	Guarantee    GuaranteeRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Call:         NewCallRepository(db),
		Notification: NewNotificationRepository(db),
		Report:       NewReportRepository(db),
		Marketing:    NewMarketingRepository(db),
		Review:       NewReviewRepository(db),
		Guarantee:    NewGuaranteeRepository(db),
	}
}
