package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/faithboy007/world-conquest-veterinary-home/catalog"
	"github.com/faithboy007/world-conquest-veterinary-home/circuitbreaker"
	"github.com/faithboy007/world-conquest-veterinary-home/middleware"
	"github.com/faithboy007/world-conquest-veterinary-home/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProductLookup interface {
	Get(ctx context.Context, sku string) (models.Product, error)
}

type CatalogStore interface {
	ProductLookup
	List(ctx context.Context) ([]models.Product, error)
	Upsert(ctx context.Context, req models.UpsertProductRequest) (models.Product, error)
}

type CatalogHandler struct {
	store  CatalogStore
	logger *zap.Logger
}

func NewCatalogHandler(store CatalogStore, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{store: store, logger: logger}
}

func (h *CatalogHandler) GetProducts(c *gin.Context) {
	products, err := h.store.List(c.Request.Context())
	if err != nil {
		h.storeError(c, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	c.JSON(http.StatusOK, products)
}

func (h *CatalogHandler) GetProduct(c *gin.Context) {
	product, err := h.store.Get(c.Request.Context(), c.Param("sku"))
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *CatalogHandler) UpsertProduct(c *gin.Context) {
	var req models.UpsertProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.store.Upsert(c.Request.Context(), req)
	if err != nil {
		h.storeError(c, err)
		return
	}

	h.logger.Info("Catalog updated",
		zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
		zap.String("sku", product.SKU),
		zap.String("admin", c.GetString("admin")),
	)
	c.JSON(http.StatusOK, product)
}

func (h *CatalogHandler) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	default:
		h.logger.Error("Catalog error",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
