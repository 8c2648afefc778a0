package rest

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartico/promo-importer/internal/adapter"
	"github.com/smartico/promo-importer/internal/domain"
	"github.com/smartico/promo-importer/internal/importer"
	"github.com/smartico/promo-importer/internal/logger"
	"github.com/smartico/promo-importer/internal/store"
	"github.com/smartico/promo-importer/internal/store/schema"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Config holds handler configuration
type Config struct {
	UploadDir     string
	BatchSize     int
	DefaultPolicy domain.MergePolicy
	PurgeStaging  bool
}

// Handler defines the interface for REST API handlers
type Handler interface {
	// CreateImport accepts a multipart CSV upload and runs the full ingestion
	// pipeline synchronously, responding with the per-run statistics
	// POST /api/v1/imports
	CreateImport(c *gin.Context)

	// GetUser retrieves a user by the external numeric Smartico id
	// GET /api/v1/users/:smartico_id
	GetUser(c *gin.Context)

	// ListUserPromotions retrieves all enrollments of a user
	// GET /api/v1/users/:smartico_id/promotions
	ListUserPromotions(c *gin.Context)

	// GetPromotion retrieves a promotion by name
	// GET /api/v1/promotions/:name
	GetPromotion(c *gin.Context)

	// GetPromotionHistory retrieves audit records of a promotion, newest first
	// GET /api/v1/promotions/:name/history?limit=<limit>&offset=<offset>
	GetPromotionHistory(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	config Config
	store  store.Store
	fs     adapter.FileSystem
	clock  adapter.Clock
}

// NewHandler creates a new REST API handler
func NewHandler(cfg Config, st store.Store, fs adapter.FileSystem, clock adapter.Clock) Handler {
	return &handler{
		config: cfg,
		store:  st,
		fs:     fs,
		clock:  clock,
	}
}

// CreateImport accepts a multipart CSV upload and imports it
func (h *handler) CreateImport(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "A CSV file is required in the 'file' form field", err.Error())
		return
	}

	policy := h.config.DefaultPolicy
	if raw := c.PostForm("merge_policy"); raw != "" {
		policy, err = domain.ParseMergePolicy(raw)
		if err != nil {
			respondValidationError(c, err.Error())
			return
		}
	}

	purge := h.config.PurgeStaging
	if raw := c.PostForm("purge_staging"); raw != "" {
		purge, err = strconv.ParseBool(raw)
		if err != nil {
			respondValidationError(c, "purge_staging must be a boolean")
			return
		}
	}

	// The stored name is prefixed with a UUID so concurrent uploads of
	// same-named files get distinct staging scopes.
	storedName := uuid.NewString() + "_" + filepath.Base(fileHeader.Filename)
	dst := filepath.Join(h.config.UploadDir, storedName)

	if err := c.SaveUploadedFile(fileHeader, dst); err != nil {
		respondInternalError(c, err, "Failed to store uploaded file")
		return
	}

	logger.InfoCtx(c.Request.Context(), "Import upload received",
		zap.String("filename", storedName),
		zap.String("original_filename", fileHeader.Filename),
		zap.Int64("size", fileHeader.Size),
		zap.String("merge_policy", string(policy)),
		zap.Bool("purge_staging", purge),
	)

	imp := importer.New(importer.Config{
		BatchSize:    h.config.BatchSize,
		Policy:       policy,
		PurgeStaging: purge,
	}, h.store, h.fs, h.clock)

	stats, err := imp.ImportFile(c.Request.Context(), dst)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidHeader) {
			respondValidationError(c, err.Error())
			return
		}
		respondInternalError(c, err, "Import failed")
		return
	}

	c.JSON(http.StatusOK, ImportResultDTO{
		Filename: storedName,
		Stats:    *stats,
	})
}

// GetUser retrieves a user by the external numeric Smartico id
func (h *handler) GetUser(c *gin.Context) {
	user, ok := h.lookupUser(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, mapUser(user))
}

// ListUserPromotions retrieves all enrollments of a user
func (h *handler) ListUserPromotions(c *gin.Context) {
	user, ok := h.lookupUser(c)
	if !ok {
		return
	}

	links, err := h.store.ListUserPromotions(c.Request.Context(), user.ID)
	if err != nil {
		respondInternalError(c, err, "Failed to list user promotions")
		return
	}

	c.JSON(http.StatusOK, mapUserPromotions(links))
}

// GetPromotion retrieves a promotion by name
func (h *handler) GetPromotion(c *gin.Context) {
	promotion, ok := h.lookupPromotion(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, mapPromotion(promotion))
}

// GetPromotionHistory retrieves audit records of a promotion, newest first
func (h *handler) GetPromotionHistory(c *gin.Context) {
	promotion, ok := h.lookupPromotion(c)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondValidationError(c, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	var offset uint64
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondValidationError(c, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	entries, total, err := h.store.ListHistory(c.Request.Context(), promotion.ID, limit, offset)
	if err != nil {
		respondInternalError(c, err, "Failed to list promotion history")
		return
	}

	c.JSON(http.StatusOK, HistoryPageDTO{
		Entries: mapHistory(entries),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// lookupUser resolves the :smartico_id path parameter; on failure it writes
// the error response and returns ok = false
func (h *handler) lookupUser(c *gin.Context) (*schema.User, bool) {
	smarticoID, err := strconv.ParseInt(c.Param("smartico_id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "smartico_id must be an integer")
		return nil, false
	}

	user, err := h.store.GetUserBySmarticoID(c.Request.Context(), smarticoID)
	if err != nil {
		respondInternalError(c, err, "Failed to get user")
		return nil, false
	}
	if user == nil {
		respondNotFound(c, "User not found")
		return nil, false
	}

	return user, true
}

// lookupPromotion resolves the :name path parameter; on failure it writes the
// error response and returns ok = false
func (h *handler) lookupPromotion(c *gin.Context) (*schema.Promotion, bool) {
	name := c.Param("name")
	if name == "" {
		respondBadRequest(c, "Promotion name is required")
		return nil, false
	}

	promotion, err := h.store.GetPromotionByName(c.Request.Context(), name)
	if err != nil {
		respondInternalError(c, err, "Failed to get promotion")
		return nil, false
	}
	if promotion == nil {
		respondNotFound(c, "Promotion not found")
		return nil, false
	}

	return promotion, true
}
