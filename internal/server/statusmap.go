package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	statusdomain "github.com/qazaqsoft/kaspisync/internal/statusmap/domain"
)

type createStatusMappingRequest struct {
	KaspiStatus   string `json:"kaspi_status"`
	AmoPipelineID int64  `json:"amo_pipeline_id"`
	AmoStatusID   int64  `json:"amo_status_id"`
	SortOrder     int    `json:"sort_order"`
	IsActive      *bool  `json:"is_active"`
}

type updateStatusMappingRequest struct {
	AmoStatusID *int64 `json:"amo_status_id,omitempty"`
	SortOrder   *int   `json:"sort_order,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

func (s *Server) ListStatusMappings(c *gin.Context) {
	var pipelineID int64
	if raw := strings.TrimSpace(c.Query("pipeline_id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		pipelineID = parsed
	}

	resp, err := s.statuses.List(c.Request.Context(), pipelineID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateStatusMapping(c *gin.Context) {
	var req createStatusMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	resp, err := s.statuses.Create(c.Request.Context(), statusdomain.CreateMappingRequest{
		KaspiStatus:   strings.TrimSpace(req.KaspiStatus),
		AmoPipelineID: req.AmoPipelineID,
		AmoStatusID:   req.AmoStatusID,
		SortOrder:     req.SortOrder,
		IsActive:      active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateStatusMapping(c *gin.Context) {
	var req updateStatusMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.statuses.Update(c.Request.Context(), statusdomain.UpdateMappingRequest{
		ID:          c.Param("id"),
		AmoStatusID: req.AmoStatusID,
		SortOrder:   req.SortOrder,
		IsActive:    req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteStatusMapping(c *gin.Context) {
	if err := s.statuses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) ActivateStatusMapping(c *gin.Context) {
	s.setStatusMappingActive(c, true)
}

func (s *Server) DeactivateStatusMapping(c *gin.Context) {
	s.setStatusMappingActive(c, false)
}

func (s *Server) setStatusMappingActive(c *gin.Context, active bool) {
	resp, err := s.statuses.SetActive(c.Request.Context(), c.Param("id"), active)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
