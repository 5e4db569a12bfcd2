package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"urban-issue-service/internal/alerts"
	"urban-issue-service/internal/auth"
	"urban-issue-service/internal/config"
	"urban-issue-service/internal/db"
	"urban-issue-service/internal/inference"
	"urban-issue-service/internal/logging"
	"urban-issue-service/internal/models"
)

// Inferrer is satisfied by *inference.Orchestrator.
type Inferrer interface {
	Infer(ctx context.Context, req inference.Request) (inference.Result, error)
}

// Clusterer is satisfied by *hotspot.Service.
type Clusterer interface {
	Cluster(ctx context.Context, reports []models.IssueReport) ([]models.Cluster, error)
}

// IssueStore is satisfied by *db.DB.
type IssueStore interface {
	CreateIssueWithPrediction(ctx context.Context, issue *models.Issue, pred *models.Prediction) error
	ListIssues(ctx context.Context, f db.IssueFilter) ([]models.Issue, int, error)
	GetIssue(ctx context.Context, id uuid.UUID) (models.Issue, error)
	UpdateIssueStatus(ctx context.Context, id uuid.UUID, status models.IssueStatus, remarks string, adminID uuid.UUID) (models.Issue, error)
	ResolutionLogs(ctx context.Context, issueID uuid.UUID) ([]models.ResolutionLog, error)
	CountIssuesNear(ctx context.Context, lat, lng, radius float64, since time.Time) (int, error)
	Summary(ctx context.Context) (models.Summary, error)
	Monthly(ctx context.Context) ([]models.MonthlyCount, error)
	CreateUser(ctx context.Context, user *models.User) error
	UserByEmail(ctx context.Context, email string) (models.User, error)
}

// HotspotProvider is satisfied by *cronjobs.HotspotCache.
type HotspotProvider interface {
	Hotspots(ctx context.Context) ([]models.HotspotSummary, time.Time, error)
}

// EventPublisher is satisfied by *kafka.Producer and *alerts.Service.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.TriageEvent) error
}

// Deps are the collaborators behind the routes. Store, Auth, Hotspots,
// Events and Hub are optional; their routes are only mounted when set. The
// account, issue and analytics routes need both Store and Auth.
type Deps struct {
	Inference Inferrer
	Clusterer Clusterer
	Store     IssueStore
	Auth      *auth.Tokens
	Hotspots  HotspotProvider
	Events    EventPublisher
	Hub       *alerts.Hub
}

type Handler struct {
	deps   Deps
	logger *logging.Logger
	config config.Config
}

func NewHandler(deps Deps, logger *logging.Logger, cfg config.Config) *Handler {
	return &Handler{deps: deps, logger: logger, config: cfg}
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Predict triages an uploaded image without storing it.
func (h *Handler) Predict(c *gin.Context) {
	h.limitBody(c)
	data, err := h.readImage(c, "file")
	if err != nil {
		h.writeError(c, err)
		return
	}
	req := inference.Request{Image: data}
	if req.DescriptionLength, err = formInt(c, "description_length"); err != nil {
		h.writeError(c, err)
		return
	}
	if req.LocationFreq, err = formInt(c, "location_freq"); err != nil {
		h.writeError(c, err)
		return
	}
	if req.Hour, err = formInt(c, "hour"); err != nil {
		h.writeError(c, err)
		return
	}

	res, err := h.deps.Inference.Infer(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type hotspotPoint struct {
	Lat      *float64 `json:"lat" binding:"required"`
	Lng      *float64 `json:"lng" binding:"required"`
	Severity *int     `json:"severity" binding:"required"`
}

type hotspotRequest struct {
	Points []hotspotPoint `json:"points" binding:"required,dive"`
}

// PredictHotspots clusters the posted points.
func (h *Handler) PredictHotspots(c *gin.Context) {
	var req hotspotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, models.NewValidationError("points", "%v", err))
		return
	}

	reports := make([]models.IssueReport, len(req.Points))
	for i, p := range req.Points {
		reports[i] = models.IssueReport{Latitude: *p.Lat, Longitude: *p.Lng, Severity: *p.Severity}
	}

	clusters, err := h.deps.Clusterer.Cluster(c.Request.Context(), reports)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if len(reports) < h.config.Hotspot.MinPoints {
		c.JSON(http.StatusOK, gin.H{"clusters": clusters})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hotspots": clusters})
}

// CreateIssue triages, stores and announces a citizen report.
func (h *Handler) CreateIssue(c *gin.Context) {
	ctx := c.Request.Context()
	h.limitBody(c)

	data, err := h.readImage(c, "image")
	if err != nil {
		h.writeError(c, err)
		return
	}
	description := strings.TrimSpace(c.PostForm("description"))
	if description == "" {
		h.writeError(c, models.NewValidationError("description", "is required"))
		return
	}
	lat, err := formFloat(c, "lat")
	if err != nil {
		h.writeError(c, err)
		return
	}
	lng, err := formFloat(c, "lng")
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := models.ValidateCoordinates(lat, lng); err != nil {
		h.writeError(c, err)
		return
	}
	hour, err := formInt(c, "hour")
	if err != nil {
		h.writeError(c, err)
		return
	}
	freq, err := formInt(c, "location_freq")
	if err != nil {
		h.writeError(c, err)
		return
	}
	if freq == nil {
		since := time.Now().AddDate(0, 0, -h.config.Hotspot.LookbackDays)
		n, err := h.deps.Store.CountIssuesNear(ctx, lat, lng, h.config.Hotspot.Eps, since)
		if err != nil {
			h.writeError(c, err)
			return
		}
		freq = &n
	}

	descLen := utf8.RuneCountInString(description)
	res, err := h.deps.Inference.Infer(ctx, inference.Request{
		Image:             data,
		DescriptionLength: &descLen,
		LocationFreq:      freq,
		Hour:              hour,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	owner := principal(c).UserID
	issue := models.Issue{
		ID:          uuid.New(),
		UserID:      &owner,
		Description: description,
		Status:      models.StatusReported,
		Latitude:    lat,
		Longitude:   lng,
	}
	issue.ImagePath, err = h.saveImage(issue.ID, data)
	if err != nil {
		h.writeError(c, err)
		return
	}
	pred := models.Prediction{
		IssueType:  res.IssueType,
		Confidence: res.Confidence,
		Severity:   res.Severity,
		Priority:   res.Priority,
	}
	if err := h.deps.Store.CreateIssueWithPrediction(ctx, &issue, &pred); err != nil {
		os.Remove(issue.ImagePath)
		h.writeError(c, err)
		return
	}
	h.logger.Infof("Created issue %s: %s severity %d (%s)", issue.ID, res.IssueType, res.Severity, res.Priority)

	if h.deps.Events != nil {
		ev := models.NewTriageEvent(issue.ID.String(), res.IssueType, res.Confidence, res.Severity, res.Priority, issue.CreatedAt).
			WithLocation(lat, lng)
		if err := h.deps.Events.Publish(ctx, ev); err != nil {
			h.logger.Warnf("Failed to publish triage event for issue %s: %v", issue.ID, err)
		}
	}

	// The prediction is returned alongside, not nested.
	body := issue
	body.Prediction = nil
	c.JSON(http.StatusCreated, gin.H{"issue": body, "prediction": pred})
}

// ListIssues pages through every issue. Admin only.
func (h *Handler) ListIssues(c *gin.Context) {
	h.listIssues(c, uuid.Nil)
}

// MyIssues pages through the caller's own reports.
func (h *Handler) MyIssues(c *gin.Context) {
	h.listIssues(c, principal(c).UserID)
}

func (h *Handler) listIssues(c *gin.Context, owner uuid.UUID) {
	filter, err := issueFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	filter.UserID = owner

	issues, total, err := h.deps.Store.ListIssues(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Debugf("Retrieved %d of %d issues", len(issues), total)
	c.JSON(http.StatusOK, gin.H{"issues": issues, "total": total, "limit": filter.Limit, "offset": filter.Offset})
}

func (h *Handler) GetIssue(c *gin.Context) {
	id, err := pathUUID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	issue, err := h.deps.Store.GetIssue(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if p := principal(c); !p.IsAdmin() && (issue.UserID == nil || *issue.UserID != p.UserID) {
		h.writeError(c, fmt.Errorf("issue %s: %w", id, errForbidden))
		return
	}
	logs, err := h.deps.Store.ResolutionLogs(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"issue": issue, "resolution_logs": logs})
}

func (h *Handler) UpdateIssueStatus(c *gin.Context) {
	id, err := pathUUID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var body models.StatusUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, models.NewValidationError("status", "%v", err))
		return
	}
	status, err := models.ParseIssueStatus(body.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}

	admin := principal(c).UserID
	issue, err := h.deps.Store.UpdateIssueStatus(c.Request.Context(), id, status, body.Remarks, admin)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Infof("Issue %s moved to %s by %s", id, status, admin)
	c.JSON(http.StatusOK, issue)
}

func (h *Handler) Summary(c *gin.Context) {
	s, err := h.deps.Store.Summary(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) Monthly(c *gin.Context) {
	m, err := h.deps.Store.Monthly(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) Hotspots(c *gin.Context) {
	hs, at, err := h.deps.Hotspots.Hotspots(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hotspots": hs, "refreshed_at": at})
}

// Register creates a citizen account. Administrators are provisioned out of band.
func (h *Handler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, models.NewValidationError("user", "%v", err))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	user := models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        normalizeEmail(req.Email),
		PasswordHash: hash,
		Role:         models.RoleCitizen,
	}
	if err := h.deps.Store.CreateUser(c.Request.Context(), &user); err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Infof("Registered user %s", user.ID)
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login exchanges credentials for a bearer token.
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, models.NewValidationError("credentials", "%v", err))
		return
	}
	user, err := h.deps.Store.UserByEmail(c.Request.Context(), normalizeEmail(req.Email))
	if errors.Is(err, db.ErrNotFound) {
		err = auth.ErrInvalidCredentials
	}
	if err == nil {
		err = auth.CheckPassword(user.PasswordHash, req.Password)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	token, err := h.deps.Auth.Issue(user)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// Alerts upgrades to a websocket that receives every dispatched alert.
func (h *Handler) Alerts(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}
	if !h.deps.Hub.Add(conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many subscribers"))
		conn.Close()
		return
	}

	// Subscribers only listen; reading detects the close.
	go func() {
		defer h.deps.Hub.Remove(conn)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Handler) limitBody(c *gin.Context) {
	// room for the multipart envelope and text fields
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.API.MaxUploadBytes+1<<20)
}

func (h *Handler) readImage(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, errTooLarge
		}
		return nil, models.NewValidationError(field, "an image upload is required")
	}
	if fh.Size > h.config.API.MaxUploadBytes {
		return nil, errTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.config.API.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > h.config.API.MaxUploadBytes {
		return nil, errTooLarge
	}
	return data, nil
}

func (h *Handler) saveImage(id uuid.UUID, data []byte) (string, error) {
	if err := os.MkdirAll(h.config.API.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(h.config.API.UploadDir, id.String()+mimetype.Detect(data).Extension())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return path, nil
}

func issueFilter(c *gin.Context) (db.IssueFilter, error) {
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		return db.IssueFilter{}, err
	}
	if limit < 1 || limit > maxPageSize {
		return db.IssueFilter{}, models.NewValidationError("limit", "must be in [1,%d]", maxPageSize)
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return db.IssueFilter{}, err
	}
	if offset < 0 {
		return db.IssueFilter{}, models.NewValidationError("offset", "must be non-negative")
	}
	filter := db.IssueFilter{Limit: limit, Offset: offset}
	if s := c.Query("status"); s != "" {
		if filter.Status, err = models.ParseIssueStatus(s); err != nil {
			return db.IssueFilter{}, err
		}
	}
	return filter, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func formInt(c *gin.Context, field string) (*int, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, models.NewValidationError(field, "%q is not an integer", raw)
	}
	return &v, nil
}

func formFloat(c *gin.Context, field string) (float64, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return 0, models.NewValidationError(field, "is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, models.NewValidationError(field, "%q is not a number", raw)
	}
	return v, nil
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, models.NewValidationError(name, "%q is not an integer", raw)
	}
	return v, nil
}

func pathUUID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, models.NewValidationError("id", "%q is not a valid id", c.Param("id"))
	}
	return id, nil
}
