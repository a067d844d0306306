package insights

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NethermindEth/eternal-regression/ai"
	"github.com/NethermindEth/eternal-regression/core"
)

// RecordSource looks up the round log of a run.
type RecordSource interface {
	Records(id string) ([]core.RoundRecord, bool)
}

type Handler struct {
	source  RecordSource
	backend ai.Backend
	logger  *slog.Logger
}

// NewHandler serves insights for the runs in source. backend is only used
// for narratives and may be nil.
func NewHandler(source RecordSource, backend ai.Backend, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{source: source, backend: backend, logger: logger}
}

func (h *Handler) records(c *gin.Context) ([]core.RoundRecord, bool) {
	id := c.Param("id")
	records, ok := h.source.Records(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "regression not found: " + id})
		return nil, false
	}
	return records, true
}

// GetAnalysis returns per-round statistics for a run.
func (h *Handler) GetAnalysis(c *gin.Context) {
	records, ok := h.records(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, Analyze(records))
}

// GetVisualization returns the flat per-round records.
func (h *Handler) GetVisualization(c *gin.Context) {
	records, ok := h.records(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, Visualize(records))
}

// GetExport returns the export document.
func (h *Handler) GetExport(c *gin.Context) {
	records, ok := h.records(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, Export(records))
}

// GetNarrative asks the model to write up a run.
func (h *Handler) GetNarrative(c *gin.Context) {
	records, ok := h.records(c)
	if !ok {
		return
	}
	if h.backend == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no chat backend configured"})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "no finished rounds yet"})
		return
	}

	narrative, err := Narrate(c.Request.Context(), h.backend, Analyze(records))
	if err != nil {
		h.logger.Error("failed to generate narrative", "run", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("narrative generated", "run", c.Param("id"), "length", len(narrative.Analysis))
	c.JSON(http.StatusOK, narrative)
}
