package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/idgate/internal/auth"
	"github.com/your-org/idgate/internal/compliance"
	"github.com/your-org/idgate/internal/match"
	"github.com/your-org/idgate/internal/models"
	"github.com/your-org/idgate/internal/observability"
	"github.com/your-org/idgate/internal/queue"
	"github.com/your-org/idgate/internal/scan"
	"github.com/your-org/idgate/internal/storage"
	"github.com/your-org/idgate/pkg/dto"
)

// Settings holds the runtime-tunable matching parameters. Operators
// adjust them through the settings endpoint without a restart.
type Settings struct {
	mu                  sync.RWMutex
	threshold           float64
	thresholdConfidence float64
}

func NewSettings(threshold, thresholdConfidence float64) *Settings {
	return &Settings{threshold: threshold, thresholdConfidence: thresholdConfidence}
}

func (s *Settings) Get() (float64, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold, s.thresholdConfidence
}

func (s *Settings) Set(threshold, thresholdConfidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
	s.thresholdConfidence = thresholdConfidence
}

type ScanHandler struct {
	db         *storage.PostgresStore
	producer   *queue.Producer
	compliance *compliance.Engine
	settings   *Settings
	// fallback is the kiosk config served when no role configures one.
	fallback models.ScannerConfig
	// EmbedFn extracts an embedding from a preprocessed face crop.
	EmbedFn  func(crop []float32) ([]float32, error)
	embedDim int
}

func NewScanHandler(db *storage.PostgresStore, producer *queue.Producer, engine *compliance.Engine, settings *Settings, fallback models.ScannerConfig, embedDim int) *ScanHandler {
	return &ScanHandler{
		db:         db,
		producer:   producer,
		compliance: engine,
		settings:   settings,
		fallback:   fallback,
		embedDim:   embedDim,
	}
}

// Scan identifies a face probe set, evaluates the matched person's
// compliance and returns what the requester is allowed to see.
func (h *ScanHandler) Scan(c *gin.Context) {
	requester, ok := auth.Requester(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "requester not resolved"})
		return
	}

	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	probes := make([]match.Representation, 0, len(req.Representations))
	for _, in := range req.Representations {
		vector := in.Vector
		if len(vector) > 0 && h.embedDim > 0 && len(vector) != h.embedDim {
			c.JSON(http.StatusBadRequest, gin.H{"error": "vector dimension mismatch for variant " + string(in.Variant)})
			return
		}
		if len(vector) == 0 && len(in.Crop) > 0 {
			if h.EmbedFn == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "embedding model not initialized; supply vectors directly"})
				return
			}
			var err error
			vector, err = h.EmbedFn(in.Crop)
			if err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "extract embedding: " + err.Error()})
				return
			}
		}
		probes = append(probes, match.Representation{Variant: in.Variant, Vector: vector})
	}

	threshold, thresholdConfidence := h.settings.Get()
	orch := scan.New(match.NewEngine(h.db, thresholdConfidence), h.db, h.compliance)

	resp, err := orch.HandleScan(c.Request.Context(), probes, requester.ID, threshold)
	if err != nil {
		h.scanError(c, err)
		return
	}

	if resp.BestDistance >= 0 {
		observability.MatchDistance.Observe(resp.BestDistance)
	}

	result := classify(resp)
	observability.ScansTotal.WithLabelValues(string(models.ScanModeFace), string(result)).Inc()

	out := dto.ScanResponse{
		Matched:        resp.Matched,
		Result:         result,
		Confidence:     resp.Confidence,
		BestDistance:   resp.BestDistance,
		Variant:        resp.Variant,
		VariantsTested: resp.VariantsTested,
		Reason:         resp.Reason,
		Compliance:     resp.Compliance,
	}

	var eventPersonID *uuid.UUID
	if resp.Matched {
		eventPersonID = &resp.Person.ID
		out.Person = &dto.PersonSummary{
			ID:        resp.Person.ID,
			FirstName: resp.Person.FirstName,
			LastName:  resp.Person.LastName,
		}
		if resp.Person.PhotoKey != "" {
			out.Person.PhotoURL = "/v1/persons/" + resp.Person.ID.String() + "/photo"
		}
		out.Fields = fieldsFromScan(resp)
	}

	h.publishEvent(c, dto.ScanEventDTO{
		ID:          uuid.New(),
		PersonID:    eventPersonID,
		RequesterID: requester.ID,
		Method:      models.ScanModeFace,
		Variant:     resp.Variant,
		Confidence:  resp.Confidence,
		Distance:    resp.BestDistance,
		Result:      result,
		Reasons:     eventReasons(resp),
		CreatedAt:   time.Now().UTC(),
	})

	c.JSON(http.StatusOK, out)
}

// TextSearch is the fallback recognition mode: substring search over
// names and the searchable attributes the requester's roles expose.
func (h *ScanHandler) TextSearch(c *gin.Context) {
	requester, ok := auth.Requester(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "requester not resolved"})
		return
	}

	var req dto.TextScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Query) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must be at least 2 characters"})
		return
	}

	defs, err := h.db.GetAttributeDefinitions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	scanner := scan.MergedScannerConfig(*requester, h.fallback)
	searchable := searchableFields(defs, scanner.TextSearchFields)

	persons, err := h.db.SearchPersonsByText(c.Request.Context(), req.Query, searchable, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	result := models.ScanResultNoMatch
	if len(persons) > 0 {
		result = models.ScanResultAllowed
	}
	observability.ScansTotal.WithLabelValues(string(models.ScanModeText), string(result)).Inc()

	var eventPersonID *uuid.UUID
	if len(persons) == 1 {
		eventPersonID = &persons[0].ID
	}
	h.publishEvent(c, dto.ScanEventDTO{
		ID:          uuid.New(),
		PersonID:    eventPersonID,
		RequesterID: requester.ID,
		Method:      models.ScanModeText,
		Result:      result,
		Reasons:     []string{fmt.Sprintf("%d candidates for text query", len(persons))},
		CreatedAt:   time.Now().UTC(),
	})

	candidates := make([]dto.PersonResponse, 0, len(persons))
	for i := range persons {
		pr := dto.PersonFromModel(&persons[i])
		pr.PhotoURL = photoURL(&persons[i])
		candidates = append(candidates, pr)
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates, "total": len(candidates)})
}

// Config returns the kiosk configuration merged across the requester's
// roles.
func (h *ScanHandler) Config(c *gin.Context) {
	requester, ok := auth.Requester(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "requester not resolved"})
		return
	}
	c.JSON(http.StatusOK, scan.MergedScannerConfig(*requester, h.fallback))
}

func (h *ScanHandler) GetSettings(c *gin.Context) {
	threshold, thresholdConfidence := h.settings.Get()
	c.JSON(http.StatusOK, dto.ScanSettings{
		Threshold:           threshold,
		ThresholdConfidence: thresholdConfidence,
	})
}

func (h *ScanHandler) UpdateSettings(c *gin.Context) {
	var req dto.ScanSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Threshold <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be positive"})
		return
	}
	if req.ThresholdConfidence < 0 || req.ThresholdConfidence >= 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "threshold_confidence must be in [0, 100)"})
		return
	}

	h.settings.Set(req.Threshold, req.ThresholdConfidence)
	slog.Info("scan settings updated", "threshold", req.Threshold, "threshold_confidence", req.ThresholdConfidence)
	c.JSON(http.StatusOK, req)
}

// Events returns the persisted scan audit log, newest first.
func (h *ScanHandler) Events(c *gin.Context) {
	var personID *uuid.UUID
	if raw := c.Query("person_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person_id"})
			return
		}
		personID = &id
	}

	limit := intQuery(c, "per_page", 50)
	page := intQuery(c, "page", 1)

	events, total, err := h.db.QueryScanEvents(c.Request.Context(), personID, limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": total, "page": page, "per_page": limit})
}

func (h *ScanHandler) publishEvent(c *gin.Context, evt dto.ScanEventDTO) {
	if err := h.producer.PublishScan(c.Request.Context(), evt.RequesterID.String(), evt); err != nil {
		// Audit publish failure must not fail the scan itself.
		slog.Error("publish scan event", "error", err)
	}
}

func (h *ScanHandler) scanError(c *gin.Context, err error) {
	var collab *scan.CollaboratorError
	var confErr *compliance.ConfigurationError
	switch {
	case errors.Is(err, match.ErrInvalidProbe):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &confErr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":        "compliance rule misconfigured",
			"attribute_id": confErr.AttributeID,
			"detail":       confErr.Error(),
		})
	case errors.As(err, &collab):
		c.JSON(http.StatusBadGateway, gin.H{"error": collab.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// classify reduces a scan outcome to the audit result: no match, denied
// on a non-compliant person, allowed otherwise.
func classify(resp *scan.Response) models.ScanResult {
	if !resp.Matched {
		return models.ScanResultNoMatch
	}
	if resp.Compliance != nil && !resp.Compliance.Compliant {
		return models.ScanResultDenied
	}
	return models.ScanResultAllowed
}

func eventReasons(resp *scan.Response) []string {
	var reasons []string
	if resp.Reason != "" {
		reasons = append(reasons, resp.Reason)
	}
	if resp.Compliance != nil {
		for _, issue := range resp.Compliance.Errors {
			reasons = append(reasons, issue.Message)
		}
	}
	return reasons
}

// fieldsFromScan flattens the orchestrator's visible value maps into the
// ordered field list shown on the kiosk.
func fieldsFromScan(resp *scan.Response) []dto.FieldValue {
	editable := make(map[uuid.UUID]bool, len(resp.EditableIDs))
	for _, id := range resp.EditableIDs {
		editable[id] = true
	}

	fields := make([]dto.FieldValue, 0, len(resp.Labels))
	for id, label := range resp.Labels {
		fields = append(fields, dto.FieldValue{
			AttributeID: id,
			Label:       label,
			Value:       resp.Values[id],
			Editable:    editable[id],
		})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Label < fields[j].Label })
	return fields
}

// searchableFields intersects the role-exposed text search fields with
// the attributes actually flagged searchable.
func searchableFields(defs []models.AttributeDefinition, roleFields []uuid.UUID) []uuid.UUID {
	exposed := make(map[uuid.UUID]bool, len(roleFields))
	for _, id := range roleFields {
		exposed[id] = true
	}

	var out []uuid.UUID
	for _, def := range defs {
		if !def.Searchable {
			continue
		}
		// No role restriction means every searchable attribute is in play.
		if len(roleFields) == 0 || exposed[def.ID] {
			out = append(out, def.ID)
		}
	}
	return out
}
