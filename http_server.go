package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/byBit-ovo/coral_lineage/lineage"
	"github.com/byBit-ovo/coral_lineage/qa"
)

type server struct {
	lineage *lineage.Service
	// qa is nil when no CSV table is configured.
	qa     *qa.Service
	banner string
}

func newRouter(s *server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/", s.apiHello)
	router.POST("/generate-lineage", s.apiGenerateLineage)
	router.POST("/getDetails", s.apiGetDetails)
	router.POST("/get_data_lineage", s.apiGetDataLineage)
	router.GET("/lineage/:document_id", s.apiGetLineage)
	if s.qa != nil {
		router.POST("/ask", s.apiAsk)
	}
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()))
	}
}

func (s *server) apiHello(c *gin.Context) {
	c.String(http.StatusOK, s.banner)
}

func (s *server) apiGenerateLineage(c *gin.Context) {
	var req struct {
		JobID string `json:"job_id" form:"job_id"`
	}
	if err := bindBody(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.JobID) == "" {
		respondError(c, http.StatusBadRequest, "job_id is required")
		return
	}
	out, err := s.lineage.Generate(c.Request.Context(), req.JobID, false)
	if err != nil {
		respondError(c, statusFor(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"lineage": out.Lineage})
}

// apiGetDetails always persists the extracted lineage.
func (s *server) apiGetDetails(c *gin.Context) {
	var req struct {
		CodeID string `json:"code_id" form:"code_id"`
	}
	if err := bindBody(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.CodeID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "code_id is required"})
		return
	}
	out, err := s.lineage.Generate(c.Request.Context(), req.CodeID, true)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"document_id":    out.DocumentID,
		"formatted_json": formatJSON(out.Lineage),
	})
}

func (s *server) apiGetDataLineage(c *gin.Context) {
	var req struct {
		CodeID string `json:"code_id" form:"code_id"`
		Save   bool   `json:"save" form:"save"`
	}
	if err := bindBody(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.CodeID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "code_id is required"})
		return
	}
	out, err := s.lineage.Generate(c.Request.Context(), req.CodeID, req.Save)
	if err != nil {
		body := gin.H{"status": "error", "message": err.Error()}
		var perr *lineage.ParseError
		if errors.As(err, &perr) {
			body["raw_response"] = perr.Raw
		}
		c.JSON(statusFor(err), body)
		return
	}
	body := gin.H{
		"status":         "success",
		"message":        "lineage extracted",
		"formatted_json": formatJSON(out.Lineage),
	}
	if out.DocumentID != "" {
		body["message"] = "lineage extracted and saved"
		body["document_id"] = out.DocumentID
	}
	c.JSON(http.StatusOK, body)
}

func (s *server) apiGetLineage(c *gin.Context) {
	result, err := s.lineage.Lookup(c.Request.Context(), c.Param("document_id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"document_id":    result.ID,
		"code_id":        result.CodeID,
		"model":          result.Model,
		"formatted_json": formatJSON(result.Lineage),
		"created_at":     result.CreatedAt,
	})
}

func (s *server) apiAsk(c *gin.Context) {
	var req struct {
		APIKey   string `json:"api_key" form:"api_key"`
		Question string `json:"question" form:"question"`
	}
	if err := bindBody(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	answer, err := s.qa.Answer(c.Request.Context(), req.APIKey, req.Question)
	if err != nil {
		respondError(c, statusFor(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

// bindBody decodes a JSON or form body into req. An empty body leaves req
// zero so the handler reports the missing field instead.
func bindBody(c *gin.Context, req interface{}) error {
	err := c.ShouldBind(req)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, lineage.ErrInputMissing):
		return http.StatusBadRequest
	case errors.Is(err, qa.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, lineage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lineage.ErrTransientTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, lineage.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// formatJSON renders mappings the way clients display them.
func formatJSON(mappings []lineage.Mapping) string {
	b, err := json.MarshalIndent(mappings, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
