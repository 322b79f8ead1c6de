package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
)

type createResourceRequest struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Abbreviation string          `json:"abbreviation"`
	Unit         string          `json:"unit"`
	Kind         string          `json:"kind"`
	HourlyRate   decimal.Decimal `json:"hourly_rate"`
}

type createCategoryRequest struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Workload    string `json:"workload"`
}

type allocationRequest struct {
	ResourceID int64           `json:"resource_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type createConfigurationRequest struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Resources   []allocationRequest `json:"resources"`
}

func (s *Server) CreateResource(c *gin.Context) {
	var req createResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.store.CreateResource(c.Request.Context(), domain.CreateResourceRequest{
		ID:           req.ID,
		Name:         req.Name,
		Abbreviation: req.Abbreviation,
		Unit:         req.Unit,
		Kind:         req.Kind,
		HourlyRate:   req.HourlyRate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListResources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.store.ListResources()})
}

func (s *Server) GetResource(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resp, err := s.store.FindResource(id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateCategory(c *gin.Context) {
	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.store.CreateCategory(c.Request.Context(), domain.CreateCategoryRequest{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Workload:    req.Workload,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.store.ListCategories()})
}

func (s *Server) GetCategory(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resp, err := s.store.FindCategory(id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateConfiguration(c *gin.Context) {
	categoryID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req createConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	allocations := make([]domain.AllocationRequest, 0, len(req.Resources))
	for _, r := range req.Resources {
		allocations = append(allocations, domain.AllocationRequest{ResourceID: r.ResourceID, Quantity: r.Quantity})
	}
	resp, err := s.store.CreateConfiguration(c.Request.Context(), domain.CreateConfigurationRequest{
		CategoryID:  categoryID,
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Resources:   allocations,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListConfigurations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.store.ListConfigurations()})
}

func (s *Server) GetConfiguration(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resp, err := s.store.FindConfiguration(id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetConfigurationCategory(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	categoryID := s.store.CategoryOfConfiguration(id)
	if categoryID == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	resp, err := s.store.FindCategory(*categoryID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
