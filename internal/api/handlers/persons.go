package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/idgate/internal/auth"
	"github.com/your-org/idgate/internal/compliance"
	"github.com/your-org/idgate/internal/models"
	"github.com/your-org/idgate/internal/observability"
	"github.com/your-org/idgate/internal/permissions"
	"github.com/your-org/idgate/internal/storage"
	"github.com/your-org/idgate/pkg/dto"
)

type PersonHandler struct {
	db         *storage.PostgresStore
	minio      *storage.MinIOStore
	compliance *compliance.Engine
	// EmbedFn extracts an embedding from a preprocessed face crop.
	// Set after the model is initialized; nil means clients must supply
	// vectors directly.
	EmbedFn  func(crop []float32) ([]float32, error)
	embedDim int
}

func NewPersonHandler(db *storage.PostgresStore, minio *storage.MinIOStore, engine *compliance.Engine, embedDim int) *PersonHandler {
	return &PersonHandler{db: db, minio: minio, compliance: engine, embedDim: embedDim}
}

func (h *PersonHandler) Create(c *gin.Context) {
	var req dto.CreatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	person := &models.Person{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Values:    req.Values,
	}
	if err := h.db.CreatePerson(c.Request.Context(), person); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.PersonFromModel(person))
}

func (h *PersonHandler) List(c *gin.Context) {
	requester, ok := auth.Requester(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "requester not resolved"})
		return
	}

	limit := intQuery(c, "per_page", 50)
	page := intQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}

	persons, total, err := h.db.ListPersons(c.Request.Context(), limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	defs, err := h.db.GetAttributeDefinitions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	perms := permissions.Resolve(*requester, defs)

	resp := make([]dto.PersonResponse, 0, len(persons))
	for i := range persons {
		pr := dto.PersonFromModel(&persons[i])
		pr.PhotoURL = photoURL(&persons[i])
		pr.Fields = buildFields(defs, persons[i].Values, perms)
		resp = append(resp, pr)
	}

	c.JSON(http.StatusOK, dto.PersonListResponse{
		Persons: resp,
		Total:   total,
		Page:    page,
		PerPage: limit,
	})
}

func (h *PersonHandler) Get(c *gin.Context) {
	requester, ok := auth.Requester(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "requester not resolved"})
		return
	}

	person, defs, done := h.loadPerson(c)
	if done {
		return
	}

	perms := permissions.Resolve(*requester, defs)
	pr := dto.PersonFromModel(person)
	pr.PhotoURL = photoURL(person)
	pr.Fields = buildFields(defs, person.Values, perms)

	comp, err := h.compliance.Evaluate(defs, person.Values, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	observability.ComplianceChecks.WithLabelValues(string(comp.Status)).Inc()
	pr.Compliance = &comp

	c.JSON(http.StatusOK, pr)
}

// UpdateValues merges attribute values into the person. Every touched
// attribute must be in the requester's editable set.
func (h *PersonHandler) UpdateValues(c *gin.Context) {
	requester, ok := auth.Requester(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "requester not resolved"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	var req dto.UpdateValuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	defs, err := h.db.GetAttributeDefinitions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	known := make(map[uuid.UUID]bool, len(defs))
	for _, def := range defs {
		known[def.ID] = true
	}
	perms := permissions.Resolve(*requester, defs)
	for attrID := range req.Values {
		if !known[attrID] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown attribute: " + attrID.String()})
			return
		}
		if !perms.Editable.Contains(attrID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "attribute not editable: " + attrID.String()})
			return
		}
	}

	person, err := h.db.UpdatePersonValues(c.Request.Context(), id, req.Values)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	pr := dto.PersonFromModel(person)
	pr.PhotoURL = photoURL(person)
	pr.Fields = buildFields(defs, person.Values, perms)
	c.JSON(http.StatusOK, pr)
}

func (h *PersonHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	if err := h.db.DeletePerson(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	// Best effort: the record is already gone, stored objects are orphans.
	if err := h.minio.DeleteObjects(c.Request.Context(), "photos/"+id.String()+"/"); err != nil {
		slog.Warn("purge person objects", "person_id", id, "error", err)
	}
	c.Status(http.StatusNoContent)
}

// UploadPhoto stores the profile photo in object storage and records the
// key on the person.
func (h *PersonHandler) UploadPhoto(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	person, err := h.db.GetPerson(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	file, header, err := c.Request.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read photo failed"})
		return
	}

	key := "photos/" + id.String() + "/" + uuid.New().String() + "_" + header.Filename
	if err := h.minio.PutObject(c.Request.Context(), key, data, header.Header.Get("Content-Type")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store photo failed"})
		return
	}

	if person.PhotoKey != "" {
		_ = h.minio.DeleteObject(c.Request.Context(), person.PhotoKey)
	}
	if err := h.db.SetPersonPhoto(c.Request.Context(), id, key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"photo_key": key, "photo_url": "/v1/persons/" + id.String() + "/photo"})
}

func (h *PersonHandler) Photo(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	person, err := h.db.GetPerson(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil || person.PhotoKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}

	data, err := h.minio.GetObject(c.Request.Context(), person.PhotoKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

// ReplaceRepresentations swaps the person's whole representation set. All
// variants are supplied together; the store bumps the generation.
func (h *PersonHandler) ReplaceRepresentations(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	person, err := h.db.GetPerson(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	var req dto.ReplaceRepresentationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Representations) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one representation required"})
		return
	}

	reps := make([]models.FaceRepresentation, 0, len(req.Representations))
	seen := map[models.Variant]bool{}
	for _, in := range req.Representations {
		if !models.ValidVariant(in.Variant) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown variant: " + string(in.Variant)})
			return
		}
		if seen[in.Variant] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "duplicate variant: " + string(in.Variant)})
			return
		}
		seen[in.Variant] = true

		vector, errMsg := h.resolveVector(in)
		if errMsg != "" {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errMsg})
			return
		}
		reps = append(reps, models.FaceRepresentation{Variant: in.Variant, Vector: vector})
	}

	if err := h.db.ReplaceFaceRepresentations(c.Request.Context(), id, reps); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"person_id":  id,
		"generation": reps[0].Generation,
		"variants":   len(reps),
	})
}

func (h *PersonHandler) ListRepresentations(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	reps, err := h.db.ListFaceRepresentations(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"representations": reps, "total": len(reps)})
}

// Compliance evaluates the person's attribute values against every
// attached rule and returns the aggregate.
func (h *PersonHandler) Compliance(c *gin.Context) {
	person, defs, done := h.loadPerson(c)
	if done {
		return
	}

	comp, err := h.compliance.Evaluate(defs, person.Values, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	observability.ComplianceChecks.WithLabelValues(string(comp.Status)).Inc()
	c.JSON(http.StatusOK, comp)
}

// loadPerson fetches the person and the attribute definitions, writing
// the error response itself. done is true when a response was written.
func (h *PersonHandler) loadPerson(c *gin.Context) (*models.Person, []models.AttributeDefinition, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return nil, nil, true
	}

	person, err := h.db.GetPerson(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, nil, true
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return nil, nil, true
	}

	defs, err := h.db.GetAttributeDefinitions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, nil, true
	}
	return person, defs, false
}

// resolveVector returns the embedding for one representation input,
// running the model when only a crop was supplied.
func (h *PersonHandler) resolveVector(in dto.RepresentationInput) ([]float32, string) {
	if len(in.Vector) > 0 {
		if h.embedDim > 0 && len(in.Vector) != h.embedDim {
			return nil, "vector dimension mismatch for variant " + string(in.Variant)
		}
		return in.Vector, ""
	}
	if len(in.Crop) == 0 {
		return nil, "representation needs a vector or a crop"
	}
	if h.EmbedFn == nil {
		return nil, "embedding model not initialized; supply vectors directly"
	}
	vector, err := h.EmbedFn(in.Crop)
	if err != nil {
		return nil, "extract embedding: " + err.Error()
	}
	return vector, ""
}

func photoURL(p *models.Person) string {
	if p.PhotoKey == "" {
		return ""
	}
	return "/v1/persons/" + p.ID.String() + "/photo"
}

// buildFields reduces a person's values to what the requester may see.
// Attributes outside the visible set are omitted entirely.
func buildFields(defs []models.AttributeDefinition, values map[uuid.UUID]any, perms permissions.Result) []dto.FieldValue {
	fields := make([]dto.FieldValue, 0, len(defs))
	for _, def := range defs {
		if !perms.Visible.Contains(def.ID) {
			continue
		}
		fields = append(fields, dto.FieldValue{
			AttributeID: def.ID,
			Label:       def.Label,
			Value:       values[def.ID],
			Editable:    perms.Editable.Contains(def.ID),
		})
	}
	return fields
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
