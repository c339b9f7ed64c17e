package handler

import (
	"encoding/base64"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/delivery/http/middleware"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/errs"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/service"
)

type SignalementHandler struct {
	signalementService service.SignalementService
	debug              bool
}

func NewSignalementHandler(ss service.SignalementService, debug bool) *SignalementHandler {
	return &SignalementHandler{signalementService: ss, debug: debug}
}

// elementJSON est un média inliné dans un corps JSON : octets en base64
// (upload), référence storage_path (republication) ou URL externe.
type elementJSON struct {
	Filename    string `json:"filename"`
	Mimetype    string `json:"mimetype"`
	Data        string `json:"data,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`
	URL         string `json:"url,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`
}

type addSignalementJSON struct {
	Description string        `json:"description"`
	Cible       string        `json:"cible"`
	HasLocation bool          `json:"has_location"`
	Latitude    float64       `json:"latitude"`
	Longitude   float64       `json:"longitude"`
	Accuracy    float64       `json:"accuracy"`
	Altitude    float64       `json:"altitude"`
	Heading     float64       `json:"heading"`
	Speed       float64       `json:"speed"`
	Timestamp   *time.Time    `json:"timestamp,omitempty"`
	Address     string        `json:"address"`
	Anonymat    bool          `json:"anonymat"`
	RepublierDe *int64        `json:"republier_de,omitempty"`
	Strict      bool          `json:"strict"`
	Elements    []elementJSON `json:"elements"`
}

// Add traite POST /signalement/add, en JSON (médias inlinés, typiquement les
// republications) ou en multipart/form-data (médias en parts fichier).
func (h *SignalementHandler) Add(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var input *service.CreateSignalementInput
	var err error

	ct := c.GetHeader("Content-Type")
	switch {
	case strings.HasPrefix(ct, "application/json"):
		input, err = parseJSONRequest(c)
	case strings.HasPrefix(ct, "multipart/form-data"):
		input, err = parseMultipartRequest(c)
	default:
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported content type"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "bad_request"})
		return
	}
	input.CitoyenID = userID

	result, err := h.signalementService.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	if !h.debug {
		result.Trace = nil
	}
	c.JSON(http.StatusCreated, result)
}

func parseJSONRequest(c *gin.Context) (*service.CreateSignalementInput, error) {
	var req addSignalementJSON
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}

	input := &service.CreateSignalementInput{
		Description: req.Description,
		Cible:       req.Cible,
		HasLocation: req.HasLocation,
		Anonymat:    req.Anonymat,
		RepublierDe: req.RepublierDe,
		Strict:      req.Strict,
	}
	if req.HasLocation {
		loc := &entity.GPSLocation{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Accuracy:  req.Accuracy,
			Altitude:  req.Altitude,
			Heading:   req.Heading,
			Speed:     req.Speed,
			Address:   req.Address,
		}
		if req.Timestamp != nil {
			loc.Timestamp = *req.Timestamp
		}
		input.Location = loc
	}

	for _, e := range req.Elements {
		item := service.MediaItem{
			Filename:    e.Filename,
			Mimetype:    e.Mimetype,
			StoragePath: e.StoragePath,
			URL:         e.URL,
			ExternalURL: e.ExternalURL,
		}
		if e.Data != "" {
			data, err := base64.StdEncoding.DecodeString(e.Data)
			if err != nil {
				return nil, errors.New("invalid base64 media data")
			}
			item.Data = data
		}
		input.Medias = append(input.Medias, item)
	}
	return input, nil
}

func parseMultipartRequest(c *gin.Context) (*service.CreateSignalementInput, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}

	input := &service.CreateSignalementInput{
		Description: formValue(form, "description"),
		Cible:       formValue(form, "cible"),
		HasLocation: formBool(form, "has_location"),
		Anonymat:    formBool(form, "anonymat"),
		Strict:      formBool(form, "strict"),
	}
	if v := formValue(form, "republier_de"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.New("invalid republier_de")
		}
		input.RepublierDe = &id
	}

	if input.HasLocation {
		lat, errLat := strconv.ParseFloat(formValue(form, "latitude"), 64)
		lon, errLon := strconv.ParseFloat(formValue(form, "longitude"), 64)
		if errLat != nil || errLon != nil {
			return nil, errors.New("invalid latitude/longitude")
		}
		loc := &entity.GPSLocation{
			Latitude:  lat,
			Longitude: lon,
			Accuracy:  formFloat(form, "accuracy"),
			Altitude:  formFloat(form, "altitude"),
			Heading:   formFloat(form, "heading"),
			Speed:     formFloat(form, "speed"),
			Address:   formValue(form, "address"),
		}
		if ts := formValue(form, "gps_timestamp"); ts != "" {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				loc.Timestamp = parsed
			}
		}
		input.Location = loc
	}

	for _, fh := range form.File["files"] {
		data, err := readFilePart(fh)
		if err != nil {
			return nil, err
		}
		input.Medias = append(input.Medias, service.MediaItem{
			Data:     data,
			Filename: fh.Filename,
			Mimetype: fh.Header.Get("Content-Type"),
		})
	}
	return input, nil
}

func readFilePart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func formBool(form *multipart.Form, key string) bool {
	v, err := strconv.ParseBool(formValue(form, key))
	return err == nil && v
}

func formFloat(form *multipart.Form, key string) float64 {
	v, _ := strconv.ParseFloat(formValue(form, key), 64)
	return v
}

func (h *SignalementHandler) GetByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	sig, err := h.signalementService.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if sig == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "signalement not found"})
		return
	}
	c.JSON(http.StatusOK, sig)
}

func (h *SignalementHandler) List(c *gin.Context) {
	sigs, err := h.signalementService.GetAll(c.Request.Context(), c.Query("statut"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sigs)
}

// ListNearby traite GET /signalement/location?lat=&lon=&radius= (mètres).
func (h *SignalementHandler) ListNearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon query params are required"})
		return
	}
	radius := 500.0
	if v := c.Query("radius"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			radius = parsed
		}
	}

	sigs, err := h.signalementService.FindNearby(c.Request.Context(), lat, lon, radius)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sigs)
}

// ListMediaByCategory traite GET /signalement/media/:category : les médias de
// tous les signalements visibles, filtrés par catégorie de stockage.
func (h *SignalementHandler) ListMediaByCategory(c *gin.Context) {
	category := entity.MediaCategory(c.Param("category"))
	switch category {
	case entity.MediaImages, entity.MediaVideos, entity.MediaAudios, entity.MediaDocuments, entity.MediaOthers:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown media category"})
		return
	}

	sigs, err := h.signalementService.GetAll(c.Request.Context(), "")
	if err != nil {
		respondError(c, err)
		return
	}

	medias := []entity.MediaElement{}
	for _, sig := range sigs {
		for _, m := range sig.Elements {
			if m.Category == category {
				medias = append(medias, m)
			}
		}
	}
	c.JSON(http.StatusOK, medias)
}

type voteRequest struct {
	Positif bool `json:"positif"`
}

func (h *SignalementHandler) Vote(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.signalementService.Vote(c.Request.Context(), id, req.Positif); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *SignalementHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.signalementService.SoftDelete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

// respondError mappe les sentinelles d'erreur vers les codes HTTP.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrCoherenceFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "coherence_failed"})
	case errors.Is(err, errs.ErrBadRequest),
		errors.Is(err, errs.ErrDisallowedMime),
		errors.Is(err, errs.ErrOversizedBlob),
		errors.Is(err, errs.ErrEmptyBlob):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "bad_request"})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
