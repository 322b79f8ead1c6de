package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
)

type createClientRequest struct {
	TaxID    string `json:"tax_id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Address  string `json:"address"`
	Email    string `json:"email"`
}

// legacyClientRequest is the payload of POST /crear-cliente.
type legacyClientRequest struct {
	TaxID    *string `json:"nit"`
	Name     *string `json:"nombre"`
	Username *string `json:"usuario"`
	Password *string `json:"clave"`
	Address  *string `json:"direccion"`
	Email    *string `json:"correo"`
}

type createInstanceRequest struct {
	ID              int64  `json:"id"`
	ConfigurationID int64  `json:"configuration_id"`
	Name            string `json:"name"`
	StartDate       string `json:"start_date"`
}

type cancelInstanceRequest struct {
	EndDate string `json:"end_date"`
}

func (s *Server) CreateClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.store.CreateClient(c.Request.Context(), domain.CreateClientRequest{
		TaxID:    req.TaxID,
		Name:     req.Name,
		Username: req.Username,
		Password: req.Password,
		Address:  req.Address,
		Email:    req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) CreateClientLegacy(c *gin.Context) {
	var req legacyClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, statusMessage{Status: string(domain.StatusError), Message: "invalid JSON body"})
		return
	}
	if req.TaxID == nil || req.Name == nil || req.Username == nil || req.Password == nil || req.Address == nil || req.Email == nil {
		c.JSON(http.StatusBadRequest, statusMessage{Status: string(domain.StatusError), Message: "missing data to create the client"})
		return
	}

	_, err := s.store.CreateClient(c.Request.Context(), domain.CreateClientRequest{
		TaxID:    *req.TaxID,
		Name:     *req.Name,
		Username: *req.Username,
		Password: *req.Password,
		Address:  *req.Address,
		Email:    *req.Email,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, statusMessage{Status: string(domain.StatusSuccess), Message: "client created"})
	case errors.Is(err, domain.ErrInvalidTaxID):
		c.JSON(http.StatusBadRequest, statusMessage{Status: string(domain.StatusError), Message: "invalid tax id"})
	case errors.Is(err, domain.ErrDuplicateID):
		c.JSON(http.StatusBadRequest, statusMessage{Status: string(domain.StatusError), Message: "a client with that tax id already exists"})
	case errors.Is(err, domain.ErrNotPersisted):
		c.JSON(http.StatusCreated, statusMessage{Status: string(domain.StatusPartial), Message: "client created but the state file could not be written"})
	default:
		status, payload := mapError(err)
		c.JSON(status, statusMessage{Status: string(domain.StatusError), Message: payload.Message})
	}
}

func (s *Server) ListClients(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.store.ListClients()})
}

func (s *Server) GetClient(c *gin.Context) {
	resp, err := s.store.FindClient(c.Param("taxId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateInstance(c *gin.Context) {
	var req createInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.store.CreateInstance(c.Request.Context(), domain.CreateInstanceRequest{
		TaxID:           c.Param("taxId"),
		ID:              req.ID,
		ConfigurationID: req.ConfigurationID,
		Name:            req.Name,
		StartDate:       req.StartDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetInstance(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resp, err := s.store.FindInstance(c.Param("taxId"), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelInstance(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req cancelInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.store.CancelInstance(c.Request.Context(), domain.CancelInstanceRequest{
		TaxID:      c.Param("taxId"),
		InstanceID: id,
		EndDate:    req.EndDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
