package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/smallbiznis/datalake/internal/observability/tracing"
)

const (
	uploadField    = "archivo"
	maxUploadBytes = 32 << 20

	feedConfiguration = "configuration"
	feedConsumption   = "consumption"
)

type statusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// IngestConfigurationUpload takes the feed from the multipart field archivo.
func (s *Server) IngestConfigurationUpload(c *gin.Context) {
	body, ok := s.readUploadFile(c)
	if !ok {
		return
	}
	defer body.Close()
	s.respondResult(c, s.ingest(c, feedConfiguration, body))
}

func (s *Server) IngestConsumptionUpload(c *gin.Context) {
	body, ok := s.readUploadFile(c)
	if !ok {
		return
	}
	defer body.Close()
	s.respondResult(c, s.ingest(c, feedConsumption, body))
}

// IngestConfiguration accepts either a multipart upload or a raw XML body.
func (s *Server) IngestConfiguration(c *gin.Context) {
	body, ok := s.readUploadOrBody(c)
	if !ok {
		return
	}
	defer body.Close()
	s.respondResult(c, s.ingest(c, feedConfiguration, body))
}

func (s *Server) IngestConsumption(c *gin.Context) {
	body, ok := s.readUploadOrBody(c)
	if !ok {
		return
	}
	defer body.Close()
	s.respondResult(c, s.ingest(c, feedConsumption, body))
}

func (s *Server) ingest(c *gin.Context, feed string, r io.Reader) *domain.Result {
	ctx := c.Request.Context()
	var (
		res *domain.Result
		err error
	)
	switch feed {
	case feedConfiguration:
		res, err = s.store.IngestConfiguration(ctx, r)
	default:
		res, err = s.store.IngestConsumption(ctx, r)
	}
	if res == nil {
		msg := "ingestion failed"
		if err != nil {
			msg = err.Error()
		}
		res = &domain.Result{Status: domain.StatusError, Message: msg, Diagnostics: []string{}}
	}
	return res
}

func (s *Server) respondResult(c *gin.Context, res *domain.Result) {
	tracing.AnnotateResult(c.Request.Context(), string(res.Status), res.RunID, len(res.Diagnostics))
	c.JSON(resultHTTPStatus(res.Status), res)
}

func resultHTTPStatus(status domain.Status) int {
	if status == domain.StatusError {
		return http.StatusBadRequest
	}
	return http.StatusOK
}

func (s *Server) Reset(c *gin.Context) {
	res, err := s.store.Reset(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondResult(c, res)
}

func (s *Server) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Snapshot())
}

func (s *Server) readUploadFile(c *gin.Context) (io.ReadCloser, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	header, err := c.FormFile(uploadField)
	if err != nil {
		c.JSON(http.StatusBadRequest, statusMessage{Status: string(domain.StatusError), Message: "file not found in field " + uploadField})
		return nil, false
	}
	if strings.TrimSpace(header.Filename) == "" {
		c.JSON(http.StatusBadRequest, statusMessage{Status: string(domain.StatusError), Message: "no file selected"})
		return nil, false
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, statusMessage{Status: string(domain.StatusError), Message: fmt.Sprintf("cannot read upload: %v", err)})
		return nil, false
	}
	return file, true
}

func (s *Server) readUploadOrBody(c *gin.Context) (io.ReadCloser, bool) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return s.readUploadFile(c)
	}
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		c.JSON(http.StatusBadRequest, statusMessage{Status: string(domain.StatusError), Message: "empty request body"})
		return nil, false
	}
	return http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes), true
}
