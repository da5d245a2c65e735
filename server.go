package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nexvantage/orders_backend/config"
	"github.com/nexvantage/orders_backend/models"
	"github.com/nexvantage/orders_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// sessionMiddleware copies the caller identity headers into the request
// context. Authentication happens upstream at the gateway; the backend only
// needs the resolved identity.
func sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if businessId := c.GetHeader("x-business-id"); businessId != "" {
			ctx = utils.SetBusinessIdInContext(ctx, businessId)
		}
		if username := c.GetHeader("x-username"); username != "" {
			ctx = utils.SetUsernameInContext(ctx, username)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// customErrorLogger logs only requests that recorded errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// respondError maps domain errors onto HTTP statuses: validation 400,
// referential conflict 409, persistence 500, unknown record 404.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	var reconcileErr *models.ReconciliationError
	if errors.As(err, &reconcileErr) {
		switch reconcileErr.Kind {
		case models.ErrKindValidation:
			c.JSON(http.StatusBadRequest, gin.H{"error": reconcileErr.Message})
			return
		case models.ErrKindReferentialConflict:
			c.JSON(http.StatusConflict, gin.H{"error": reconcileErr.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": reconcileErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": utils.ProcessValidationErrors(err)})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return false
	}
	return true
}

func registerRoutes(r *gin.Engine) {
	r.POST("/estimates", func(c *gin.Context) {
		var input models.NewEstimate
		if !bindJSON(c, &input) {
			return
		}
		estimate, err := models.CreateEstimate(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, estimate)
	})
	r.POST("/estimates/:id/convert", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		estimate, err := models.MarkEstimateConverted(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, estimate)
	})
	r.GET("/estimates/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		estimate, err := models.GetEstimate(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, estimate)
	})

	r.POST("/sales-orders", func(c *gin.Context) {
		var input models.NewSalesOrder
		if !bindJSON(c, &input) {
			return
		}
		so, err := models.CreateSalesOrder(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, so)
	})
	r.GET("/sales-orders/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		so, err := models.GetSalesOrder(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, so)
	})
	r.PUT("/sales-orders/:id/status", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input struct {
			Status models.SalesOrderStatus `json:"status" binding:"required"`
		}
		if !bindJSON(c, &input) {
			return
		}
		so, err := models.UpdateStatusSalesOrder(c.Request.Context(), id, input.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, so)
	})
	r.PUT("/sales-orders/:id/lines", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input struct {
			Details []models.NewOrderLine `json:"details" binding:"required,dive"`
		}
		if !bindJSON(c, &input) {
			return
		}
		report, err := models.SaveSalesOrderLines(c.Request.Context(), id, input.Details)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	})
	r.POST("/sales-orders/:id/recompute-status", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		status, err := models.RecomputeSalesOrderStatus(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": status})
	})
	r.DELETE("/sales-orders/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		so, err := models.DeleteSalesOrder(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, so)
	})

	r.POST("/purchase-orders", func(c *gin.Context) {
		var input models.NewPurchaseOrder
		if !bindJSON(c, &input) {
			return
		}
		po, err := models.CreatePurchaseOrder(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, po)
	})
	r.GET("/purchase-orders/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		po, err := models.GetPurchaseOrder(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, po)
	})
	r.PUT("/purchase-orders/:id/status", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input struct {
			Status models.PurchaseOrderStatus `json:"status" binding:"required"`
		}
		if !bindJSON(c, &input) {
			return
		}
		po, err := models.UpdateStatusPurchaseOrder(c.Request.Context(), id, input.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, po)
	})
	r.PUT("/purchase-orders/:id/lines", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input struct {
			Details []models.NewOrderLine `json:"details" binding:"required,dive"`
		}
		if !bindJSON(c, &input) {
			return
		}
		report, err := models.SavePurchaseOrderLines(c.Request.Context(), id, input.Details)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	})
	r.POST("/purchase-orders/:id/recompute-status", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		status, err := models.RecomputePurchaseOrderStatus(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": status})
	})
	r.DELETE("/purchase-orders/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		po, err := models.DeletePurchaseOrder(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, po)
	})

	r.POST("/receipts", func(c *gin.Context) {
		var input models.NewReceipt
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.ReceiveInventory(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	})
	r.PATCH("/receipts/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input struct {
			QuantityReceived decimal.Decimal `json:"quantity_received" binding:"required"`
		}
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.EditReceipt(c.Request.Context(), id, input.QuantityReceived)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
	r.DELETE("/receipts/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		result, err := models.DeleteReceipt(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
	r.GET("/receipts/orphans", func(c *gin.Context) {
		warnings, err := models.AuditOrphanReceipts(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"warnings": warnings})
	})
	r.GET("/purchase-order-lines/:id/receipts", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		receipts, err := models.GetReceiptsForLine(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, receipts)
	})

	r.POST("/invoices", func(c *gin.Context) {
		var input models.NewSalesInvoice
		if !bindJSON(c, &input) {
			return
		}
		invoice, err := models.CreateSalesInvoice(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, invoice)
	})
	r.DELETE("/invoices/:id", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		invoice, err := models.DeleteSalesInvoice(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	})

	r.GET("/documents/:type/:id/graph", func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		snapshot, err := models.ResolveDocumentGraph(c.Request.Context(), models.DocumentType(c.Param("type")), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, snapshot)
	})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server before the dependencies are up; app endpoints
	// return 503 until DB and Redis are ready.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-business-id", "x-username", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(sessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	registerRoutes(r)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Derivations read rows committed by concurrent receipts; stale repeatable
	// reads would derive stale statuses.
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{"info": "Connection Established"}).Info("listening on port ", port)

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
