package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lamim/medibill/internal/config"
	"github.com/lamim/medibill/internal/explainer"
	"github.com/lamim/medibill/internal/store"
	"github.com/lamim/medibill/internal/util"
	"github.com/lamim/medibill/pkg/models"
)

type itemsResponse struct {
	Items          []models.BillItem `json:"items"`
	Total          float64           `json:"total"`
	FormattedTotal string            `json:"formatted_total"`
	Footer         string            `json:"footer"`
}

type explanationRequest struct {
	Language   string `json:"language"`
	FamilyMode *bool  `json:"family_mode"`
}

type explanationResponse struct {
	models.ExplanationResult
	InsuranceLabel string `json:"insurance_label"`
	Footer         string `json:"footer"`
}

type illustrationResponse struct {
	models.IllustrationResult
	Footer string `json:"footer"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listItems(c *gin.Context) {
	items, err := s.repo.List(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to list items", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load bill items"})
		return
	}
	if items == nil {
		items = []models.BillItem{}
	}

	total := store.Total(items)
	c.JSON(http.StatusOK, itemsResponse{
		Items:          items,
		Total:          total,
		FormattedTotal: store.FormatRupees(total),
		Footer:         config.FooterNotice,
	})
}

func (s *Server) explain(c *gin.Context) {
	item, ok := s.loadItem(c)
	if !ok {
		return
	}

	var req explanationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	prefs := s.defaults
	if req.Language != "" {
		lang, ok := util.ParseLanguage(req.Language)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported language", "supported": models.Languages})
			return
		}
		prefs.Language = lang
	}
	if req.FamilyMode != nil {
		prefs.FamilyMode = *req.FamilyMode
	}

	result, err := s.service.Explain(c.Request.Context(), item, prefs)
	if err != nil {
		s.fail(c, item, err)
		return
	}

	c.JSON(http.StatusOK, explanationResponse{
		ExplanationResult: result,
		InsuranceLabel:    result.Explanation.InsuranceStatus.Label(),
		Footer:            config.FooterNotice,
	})
}

func (s *Server) illustrate(c *gin.Context) {
	item, ok := s.loadItem(c)
	if !ok {
		return
	}

	result, err := s.service.Illustrate(c.Request.Context(), item)
	if err != nil {
		s.fail(c, item, err)
		return
	}

	c.JSON(http.StatusOK, illustrationResponse{
		IllustrationResult: result,
		Footer:             config.FooterNotice,
	})
}

// loadItem resolves :id, writing the error response itself when it fails
func (s *Server) loadItem(c *gin.Context) (models.BillItem, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return models.BillItem{}, false
	}

	item, err := s.repo.Get(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return models.BillItem{}, false
	}
	if err != nil {
		s.logger.Error("Failed to load item", "item_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load bill item"})
		return models.BillItem{}, false
	}
	return item, true
}

// fail reports a generation failure without leaking model output
func (s *Server) fail(c *gin.Context, item models.BillItem, err error) {
	kind := explainer.FailureKind(err)
	s.logger.Warn("Request failed", "item_id", item.ID, "kind", kind, "error", err)

	if errors.Is(err, explainer.ErrUnsupportedLanguage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported language", "kind": kind})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": "temporarily unavailable", "kind": kind})
}
