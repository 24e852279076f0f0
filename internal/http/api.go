package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"finbook/internal/auth"
	"finbook/internal/domain"
	"finbook/internal/importer"
	"finbook/internal/service"
	"finbook/internal/storage"
)

const userContextKey = "finbook.user"

// AppInfo is the static metadata served on /info.
type AppInfo struct {
	Name       string
	AdminEmail string
	GithubLink string
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users      service.UserService
	operations service.OperationService
	reports    service.ReportService
	tokens     *auth.TokenService
	validator  auth.Validator
	importer   importer.Manager
	storage    storage.Service
	bucket     string
	keyPrefix  string
	appInfo    AppInfo
	logger     *logrus.Logger
}

func NewHandler(
	users service.UserService,
	operations service.OperationService,
	reports service.ReportService,
	tokens *auth.TokenService,
	validator auth.Validator,
	importMgr importer.Manager,
	store storage.Service,
	bucket, keyPrefix string,
	appInfo AppInfo,
	logger *logrus.Logger,
) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		users:      users,
		operations: operations,
		reports:    reports,
		tokens:     tokens,
		validator:  validator,
		importer:   importMgr,
		storage:    store,
		bucket:     bucket,
		keyPrefix:  keyPrefix,
		appInfo:    appInfo,
		logger:     logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())
	router.Use(h.requestLogger())

	router.POST("/auth/sign-up", h.signUp)
	router.POST("/auth/sign-in", h.signIn)
	router.GET("/auth/user", h.requireUser(), h.currentUser)

	operations := router.Group("/operations", h.requireUser())
	{
		operations.GET("", h.listOperations)
		operations.POST("", h.createOperation)
		operations.GET("/:id", h.getOperation)
		operations.PUT("/:id", h.updateOperation)
		operations.DELETE("/:id", h.deleteOperation)
	}

	reports := router.Group("/reports", h.requireUser())
	{
		reports.GET("/export", h.exportCSV)
		reports.POST("/import", h.importCSV)
		reports.GET("/jobs/:id", h.getImportJob)
		reports.GET("/archives", h.listArchives)
		reports.DELETE("/archives", h.deleteArchives)
	}

	router.GET("/info", h.info)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": "ok"})
	})
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

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Writer.Header().Set("X-Request-Id", requestID)

		start := time.Now()
		c.Next()

		h.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
		}).Info("request")
	}
}

// requireUser resolves the bearer token into the acting user. Missing,
// malformed, expired, and forged tokens all produce the same 401.
func (h *Handler) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			abortUnauthorized(c)
			return
		}

		user, err := h.validator.Validate(c.Request.Context(), parts[1])
		if err != nil {
			abortUnauthorized(c)
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidToken.Error()})
}

func actingUser(c *gin.Context) *domain.User {
	if v, ok := c.Get(userContextKey); ok {
		if user, ok := v.(*domain.User); ok {
			return user
		}
	}
	return nil
}

type signUpRequest struct {
	Email    string `json:"email" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *Handler) signUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.issueToken(c, http.StatusCreated, user)
}

func (h *Handler) signIn(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	user, err := h.users.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.issueToken(c, http.StatusOK, user)
}

func (h *Handler) issueToken(c *gin.Context, status int, user *domain.User) {
	token, err := h.tokens.Issue(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(status, tokenResponse{
		AccessToken: token,
		TokenType:   auth.TokenType,
	})
}

type userResponse struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (h *Handler) currentUser(c *gin.Context) {
	user := actingUser(c)
	c.JSON(http.StatusOK, userResponse{
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
	})
}

type operationRequest struct {
	Date        string  `json:"date" binding:"required"`
	Kind        string  `json:"kind" binding:"required"`
	Amount      string  `json:"amount" binding:"required"`
	Description *string `json:"description"`
}

type operationResponse struct {
	ID          int64   `json:"id"`
	Date        string  `json:"date"`
	Kind        string  `json:"kind"`
	Amount      string  `json:"amount"`
	Description *string `json:"description"`
}

func operationToResponse(op domain.Operation) operationResponse {
	return operationResponse{
		ID:          op.ID,
		Date:        op.Date.Format("2006-01-02"),
		Kind:        string(op.Kind),
		Amount:      op.Amount.StringFixed(2),
		Description: op.Description,
	}
}

func (h *Handler) listOperations(c *gin.Context) {
	user := actingUser(c)

	var kind *domain.OperationKind
	if raw := c.Query("kind"); raw != "" {
		parsed, err := domain.ParseOperationKind(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kind = &parsed
	}

	operations, err := h.operations.List(c.Request.Context(), user.ID, kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]operationResponse, len(operations))
	for i := range operations {
		resp[i] = operationToResponse(operations[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createOperation(c *gin.Context) {
	user := actingUser(c)

	input, ok := bindOperationInput(c)
	if !ok {
		return
	}

	op, err := h.operations.Create(c.Request.Context(), user.ID, input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, operationToResponse(*op))
}

func (h *Handler) getOperation(c *gin.Context) {
	user := actingUser(c)
	id, ok := operationID(c)
	if !ok {
		return
	}

	op, err := h.operations.Get(c.Request.Context(), user.ID, id)
	if err != nil {
		h.respondOperationError(c, err)
		return
	}
	c.JSON(http.StatusOK, operationToResponse(*op))
}

func (h *Handler) updateOperation(c *gin.Context) {
	user := actingUser(c)
	id, ok := operationID(c)
	if !ok {
		return
	}

	input, ok := bindOperationInput(c)
	if !ok {
		return
	}

	op, err := h.operations.Update(c.Request.Context(), user.ID, id, input)
	if err != nil {
		h.respondOperationError(c, err)
		return
	}
	c.JSON(http.StatusOK, operationToResponse(*op))
}

func (h *Handler) deleteOperation(c *gin.Context) {
	user := actingUser(c)
	id, ok := operationID(c)
	if !ok {
		return
	}

	if err := h.operations.Delete(c.Request.Context(), user.ID, id); err != nil {
		h.respondOperationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func bindOperationInput(c *gin.Context) (domain.OperationInput, bool) {
	var req operationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return domain.OperationInput{}, false
	}

	input, err := service.ParseOperationInput(req.Date, req.Kind, req.Amount, req.Description)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return domain.OperationInput{}, false
	}
	return input, true
}

func operationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid operation id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) respondOperationError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrOperationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (h *Handler) exportCSV(c *gin.Context) {
	user := actingUser(c)

	data, err := h.reports.Export(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.storage != nil && h.bucket != "" {
		key := fmt.Sprintf("%s/user-%d/report-%s.csv",
			strings.Trim(h.keyPrefix, "/"),
			user.ID,
			time.Now().UTC().Format("20060102T150405"),
		)
		if location, err := h.storage.UploadReport(c.Request.Context(), h.bucket, key, bytes.NewReader(data)); err != nil {
			h.logger.Warnf("archive export for user %d: %v", user.ID, err)
		} else {
			h.logger.Infof("archived export to %s", location)
		}
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=report_userid%d.csv", user.ID))
	c.Data(http.StatusOK, "text/csv", data)
}

func (h *Handler) importCSV(c *gin.Context) {
	user := actingUser(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart file field is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	if h.importer != nil {
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".csv") {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": service.ErrUnsupportedMedia.Error()})
			return
		}
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		jobID, err := h.importer.Enqueue(user.ID, fileHeader.Filename, data)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
		return
	}

	rec, err := h.reports.Import(c.Request.Context(), user.ID, fileHeader.Filename, file)
	if err != nil {
		h.respondImportError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) respondImportError(c *gin.Context, err error) {
	var rowErr *service.RowError
	switch {
	case errors.Is(err, service.ErrUnsupportedMedia):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
	case errors.As(err, &rowErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type importJobResponse struct {
	ID             string                  `json:"id"`
	Status         string                  `json:"status"`
	Filename       string                  `json:"filename"`
	Reconciliation *service.Reconciliation `json:"reconciliation,omitempty"`
	ErrorMessage   string                  `json:"error_message,omitempty"`
	CreatedAt      string                  `json:"created_at"`
	FinishedAt     *string                 `json:"finished_at,omitempty"`
}

func (h *Handler) getImportJob(c *gin.Context) {
	if h.importer == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "async import is not enabled"})
		return
	}

	user := actingUser(c)
	job, ok := h.importer.Job(user.ID, c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "import job not found"})
		return
	}

	resp := importJobResponse{
		ID:             job.ID,
		Status:         string(job.Status),
		Filename:       job.Filename,
		Reconciliation: job.Reconciliation,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt.Format(time.RFC3339),
	}
	if job.FinishedAt != nil {
		v := job.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &v
	}
	c.JSON(http.StatusOK, resp)
}

type archiveResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func (h *Handler) listArchives(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "report archiving is not enabled"})
		return
	}

	user := actingUser(c)
	prefix := fmt.Sprintf("%s/user-%d/", strings.Trim(h.keyPrefix, "/"), user.ID)

	objects, err := h.storage.ListObjects(c.Request.Context(), h.bucket, prefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]archiveResponse, len(objects))
	for i, obj := range objects {
		resp[i] = archiveResponse{
			Key:  obj.Key,
			Size: obj.Size,
		}
		if obj.LastModified != nil && !obj.LastModified.IsZero() {
			v := obj.LastModified.Format(time.RFC3339)
			resp[i].LastModified = &v
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) deleteArchives(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "report archiving is not enabled"})
		return
	}

	user := actingUser(c)
	prefix := fmt.Sprintf("%s/user-%d/", strings.Trim(h.keyPrefix, "/"), user.ID)

	if err := h.storage.DeletePrefix(c.Request.Context(), h.bucket, prefix); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app_name":    h.appInfo.Name,
		"admin_email": h.appInfo.AdminEmail,
		"github_link": h.appInfo.GithubLink,
	})
}
