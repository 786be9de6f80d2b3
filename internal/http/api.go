package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rimo-de/attend-academy-timekeeper/internal/domain"
	"github.com/rimo-de/attend-academy-timekeeper/internal/report"
	"github.com/rimo-de/attend-academy-timekeeper/internal/service"
	"github.com/rimo-de/attend-academy-timekeeper/internal/session"
	"github.com/rimo-de/attend-academy-timekeeper/internal/storage"
	"github.com/rimo-de/attend-academy-timekeeper/internal/tracker"
)

// Handler wires HTTP routes to the session store and attendance trackers.
type Handler struct {
	sessions  *session.Store
	trackers  *tracker.Registry
	storage   storage.Service
	bucket    string
	keyPrefix string
	log       logrus.FieldLogger
}

func NewHandler(sessions *session.Store, trackers *tracker.Registry, store storage.Service, bucket, keyPrefix string, log logrus.FieldLogger) *Handler {
	return &Handler{
		sessions:  sessions,
		trackers:  trackers,
		storage:   store,
		bucket:    bucket,
		keyPrefix: keyPrefix,
		log:       log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.POST("/auth/register", h.register)
		api.POST("/auth/login", h.login)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})

		authed := api.Group("")
		authed.Use(h.authRequired())
		{
			authed.POST("/auth/logout", h.logout)
			authed.GET("/auth/me", h.me)

			authed.POST("/attendance/check-in", h.checkIn)
			authed.POST("/attendance/check-out", h.checkOut)
			authed.GET("/attendance/today", h.today)
			authed.GET("/attendance/recent", h.recent)
			authed.GET("/attendance/records", h.records)
			authed.GET("/attendance/report", h.exportReport)

			authed.GET("/reports", h.listReports)
			authed.GET("/reports/url", h.reportURL)
			authed.DELETE("/reports", h.deleteReports)
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

const (
	ctxUserKey  = "current_user"
	ctxTokenKey = "session_token"
)

func (h *Handler) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		user, err := h.sessions.CurrentUser(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxUserKey, user)
		c.Set(ctxTokenKey, token)
		c.Next()
	}
}

func currentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}

type registerRequest struct {
	Username       string `json:"username" binding:"required"`
	Password       string `json:"password" binding:"required"`
	RegisterSecret string `json:"register_secret"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.sessions.Register(c.Request.Context(), req.Username, req.Password, req.RegisterSecret)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, service.ErrUserAlreadyExists) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, userToResponse(user))
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.sessions.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt.Format(time.RFC3339),
		"user":       userToResponse(sess.User),
	})
}

func (h *Handler) logout(c *gin.Context) {
	token := c.GetString(ctxTokenKey)
	h.sessions.Logout(token)
	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, userToResponse(currentUser(c)))
}

func (h *Handler) checkIn(c *gin.Context) {
	user := currentUser(c)
	t := h.trackers.ForUser(c.Request.Context(), user.ID)

	record, err := t.CheckIn(c.Request.Context())
	if err != nil {
		h.respondTrackerError(c, t, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"checked_in": true,
		"record":     recordToResponse(*record),
	})
}

func (h *Handler) checkOut(c *gin.Context) {
	user := currentUser(c)
	t := h.trackers.ForUser(c.Request.Context(), user.ID)

	record, err := t.CheckOut(c.Request.Context())
	if err != nil {
		h.respondTrackerError(c, t, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"checked_out": true,
		"record":      recordToResponse(*record),
	})
}

// respondTrackerError maps the tracker's error taxonomy onto HTTP statuses:
// no-op conditions become informational notices, in-flight rejection a
// conflict, and persistence failures a bad gateway.
func (h *Handler) respondTrackerError(c *gin.Context, t *tracker.Tracker, err error) {
	switch {
	case errors.Is(err, tracker.ErrAlreadyCheckedIn),
		errors.Is(err, tracker.ErrAlreadyCheckedOut),
		errors.Is(err, tracker.ErrNotCheckedIn):
		resp := gin.H{"notice": err.Error()}
		if today := t.Today(); today != nil {
			resp["record"] = recordToResponse(*today)
		}
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, tracker.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.WithError(err).Error("attendance operation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "attendance could not be saved"})
	}
}

func (h *Handler) today(c *gin.Context) {
	user := currentUser(c)
	t := h.trackers.ForUser(c.Request.Context(), user.ID)

	resp := gin.H{"checked_in": t.IsCheckedIn()}
	if record := t.Today(); record != nil {
		resp["record"] = recordToResponse(*record)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) recent(c *gin.Context) {
	user := currentUser(c)
	t := h.trackers.ForUser(c.Request.Context(), user.ID)

	records := t.Recent()
	resp := make([]AttendanceResponse, len(records))
	for i := range records {
		resp[i] = recordToResponse(records[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) records(c *gin.Context) {
	user := currentUser(c)
	t := h.trackers.ForUser(c.Request.Context(), user.ID)

	records, err := t.FetchByDateRange(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := make([]AttendanceResponse, len(records))
	for i := range records {
		resp[i] = recordToResponse(records[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) exportReport(c *gin.Context) {
	user := currentUser(c)
	t := h.trackers.ForUser(c.Request.Context(), user.ID)

	records, err := t.FetchByDateRange(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, records); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := report.Filename(time.Now())

	if h.storage != nil && h.bucket != "" {
		key := fmt.Sprintf("%s/user-%d/%s", strings.Trim(h.keyPrefix, "/"), user.ID, filename)
		if _, err := h.storage.UploadReport(c.Request.Context(), h.bucket, key, bytes.NewReader(buf.Bytes())); err != nil {
			h.log.WithError(err).Warn("archive report")
		}
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func (h *Handler) listReports(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage service not configured"})
		return
	}

	user := currentUser(c)
	prefix := fmt.Sprintf("%s/user-%d/", strings.Trim(h.keyPrefix, "/"), user.ID)
	objects, err := h.storage.ListObjects(c.Request.Context(), h.bucket, prefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) reportURL(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage service not configured"})
		return
	}

	user := currentUser(c)
	key := c.Query("key")
	prefix := fmt.Sprintf("%s/user-%d/", strings.Trim(h.keyPrefix, "/"), user.ID)
	if !strings.HasPrefix(key, prefix) {
		c.JSON(http.StatusForbidden, gin.H{"error": "key does not belong to current user"})
		return
	}

	url, err := h.storage.PresignGet(c.Request.Context(), h.bucket, key, 15*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) deleteReports(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage service not configured"})
		return
	}

	user := currentUser(c)
	prefix := fmt.Sprintf("%s/user-%d/", strings.Trim(h.keyPrefix, "/"), user.ID)
	if err := h.storage.DeletePrefix(c.Request.Context(), h.bucket, prefix); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": prefix})
}

type UserResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
}

type AttendanceResponse struct {
	ID           string  `json:"id"`
	Date         string  `json:"date"`
	CheckInTime  string  `json:"check_in_time"`
	CheckOutTime *string `json:"check_out_time,omitempty"`
	Duration     string  `json:"duration"`
	CheckedOut   bool    `json:"checked_out"`
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func userToResponse(user *domain.User) UserResponse {
	if user == nil {
		return UserResponse{}
	}
	return UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
}

func recordToResponse(record domain.AttendanceRecord) AttendanceResponse {
	resp := AttendanceResponse{
		ID:          record.ID,
		Date:        record.Date,
		CheckInTime: record.CheckInTime.Format(time.RFC3339),
		Duration:    record.Duration(),
		CheckedOut:  record.IsCheckedOut(),
	}
	if record.CheckOutTime != nil {
		v := record.CheckOutTime.Format(time.RFC3339)
		resp.CheckOutTime = &v
	}
	return resp
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	resp := StorageObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}
