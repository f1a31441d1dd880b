package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/smarthealth/internal/logger"
	"github.com/Skufu/smarthealth/internal/predictor"
	"github.com/Skufu/smarthealth/internal/report"
	"github.com/Skufu/smarthealth/internal/symptom"
)

const maxPatientIDLen = 128

type predictRequest struct {
	PatientID string         `json:"patient_id"`
	Answers   map[string]any `json:"answers"`
}

type predictResponse struct {
	ID         string         `json:"id"`
	Index      int            `json:"index"`
	Diagnosis  string         `json:"diagnosis"`
	Vector     symptom.Vector `json:"vector"`
	Disclaimer string         `json:"disclaimer"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type formField struct {
	ID      string
	Name    string
	Present bool
}

type formGroup struct {
	Name   string
	Fields []formField
}

type formPage struct {
	About      string
	Disclaimer string
	PatientID  string
	Diagnosis  string
	Error      string
	Invalid    []fieldError
	Groups     []formGroup
}

func (h *handler) apiPredict(c *gin.Context) {
	_, answers, ok := h.bindAPI(c)
	if !ok {
		return
	}

	res, err := h.svc.Predict(c.Request.Context(), answers)
	if err != nil {
		writePredictError(c, err)
		return
	}
	c.JSON(http.StatusOK, predictResponse{
		ID:         res.ID,
		Index:      res.Index,
		Diagnosis:  res.Diagnosis,
		Vector:     res.Vector,
		Disclaimer: report.Disclaimer,
	})
}

func (h *handler) apiReport(c *gin.Context) {
	req, answers, ok := h.bindAPI(c)
	if !ok {
		return
	}

	res, err := h.svc.Predict(c.Request.Context(), answers)
	if err != nil {
		writePredictError(c, err)
		return
	}
	pdf, err := h.render(req.PatientID, res)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("report rendering failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "report_failed",
			"message": "Report generation failed. Please try again.",
		})
		return
	}
	sendPDF(c, res.ID, pdf)
}

// bindAPI decodes and validates a JSON prediction request. It writes the
// error response itself and reports whether handling should continue.
func (h *handler) bindAPI(c *gin.Context) (predictRequest, symptom.AnswerSet, bool) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return req, nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return req, nil, false
	}

	answers, invalid := parseJSONAnswers(req.Answers)
	invalid = append(invalid, validatePatientID(req.PatientID)...)
	if len(invalid) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "validation_failed",
			"details": invalid,
		})
		return req, nil, false
	}
	return req, answers, true
}

func writePredictError(c *gin.Context, err error) {
	var perr *predictor.Error
	if errors.As(err, &perr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "prediction_failed",
			"message": perr.UserMessage(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

// parseJSONAnswers accepts booleans, 0/1 and the strings understood by
// symptom.ParsePresence. Keys outside the schema are kept; the encoder drops
// them. Two keys that normalize to the same id are rejected.
func parseJSONAnswers(raw map[string]any) (symptom.AnswerSet, []fieldError) {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	answers := make(symptom.AnswerSet, len(raw))
	seen := make(map[string]string, len(raw))
	var invalid []fieldError
	for _, key := range keys {
		v := raw[key]
		id := symptom.NormalizeID(key)
		field := "answers." + key
		if first, dup := seen[id]; dup {
			invalid = append(invalid, fieldError{Field: field, Message: fmt.Sprintf("duplicate answer for %s (also given as %q)", id, first)})
			continue
		}
		seen[id] = key
		switch v := v.(type) {
		case nil:
			answers[id] = false
		case bool:
			answers[id] = v
		case float64:
			switch v {
			case 0:
				answers[id] = false
			case 1:
				answers[id] = true
			default:
				invalid = append(invalid, fieldError{Field: field, Message: fmt.Sprintf("numeric answer must be 0 or 1, got %v", v)})
			}
		case string:
			present, err := symptom.ParsePresence(v)
			if err != nil {
				invalid = append(invalid, fieldError{Field: field, Message: err.Error() + "; use present/absent or yes/no"})
				continue
			}
			answers[id] = present
		default:
			invalid = append(invalid, fieldError{Field: field, Message: "answer must be a boolean or string"})
		}
	}
	sort.Slice(invalid, func(i, j int) bool { return invalid[i].Field < invalid[j].Field })
	return answers, invalid
}

func validatePatientID(id string) []fieldError {
	if utf8.RuneCountInString(id) > maxPatientIDLen {
		return []fieldError{{Field: "patient_id", Message: fmt.Sprintf("must be at most %d characters", maxPatientIDLen)}}
	}
	if err := report.CheckText(id); err != nil {
		return []fieldError{{Field: "patient_id", Message: err.Error()}}
	}
	return nil
}

func (h *handler) form(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", h.page("", nil))
}

func (h *handler) formPredict(c *gin.Context) {
	patientID, answers, invalid := h.bindForm(c)
	page := h.page(patientID, answers)
	if len(invalid) > 0 {
		page.Invalid = invalid
		c.HTML(http.StatusUnprocessableEntity, "index.html", page)
		return
	}

	res, err := h.svc.Predict(c.Request.Context(), answers)
	if err != nil {
		page.Error = userMessage(err)
		c.HTML(http.StatusOK, "index.html", page)
		return
	}
	page.Diagnosis = res.Diagnosis
	c.HTML(http.StatusOK, "index.html", page)
}

func (h *handler) formReport(c *gin.Context) {
	patientID, answers, invalid := h.bindForm(c)
	page := h.page(patientID, answers)
	if len(invalid) > 0 {
		page.Invalid = invalid
		c.HTML(http.StatusUnprocessableEntity, "index.html", page)
		return
	}

	res, err := h.svc.Predict(c.Request.Context(), answers)
	if err != nil {
		page.Error = userMessage(err)
		c.HTML(http.StatusOK, "index.html", page)
		return
	}
	pdf, err := h.render(patientID, res)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("report rendering failed", zap.Error(err))
		page.Diagnosis = res.Diagnosis
		page.Error = "Report generation failed. Please try again."
		c.HTML(http.StatusOK, "index.html", page)
		return
	}
	sendPDF(c, res.ID, pdf)
}

func (h *handler) bindForm(c *gin.Context) (string, symptom.AnswerSet, []fieldError) {
	patientID := c.PostForm("patient_id")
	invalid := validatePatientID(patientID)

	answers := make(symptom.AnswerSet)
	for _, sym := range h.svc.Schema().Symptoms() {
		present, err := symptom.ParsePresence(c.PostForm(sym.ID))
		if err != nil {
			invalid = append(invalid, fieldError{Field: sym.Name, Message: err.Error()})
			continue
		}
		answers[sym.ID] = present
	}
	return patientID, answers, invalid
}

func (h *handler) page(patientID string, answers symptom.AnswerSet) formPage {
	schema := h.svc.Schema()
	byGroup := make(map[string]int)
	var groups []formGroup
	for _, sym := range schema.Symptoms() {
		i, ok := byGroup[sym.Group]
		if !ok {
			i = len(groups)
			byGroup[sym.Group] = i
			groups = append(groups, formGroup{Name: sym.Group})
		}
		groups[i].Fields = append(groups[i].Fields, formField{ID: sym.ID, Name: sym.Name, Present: answers[sym.ID]})
	}
	return formPage{
		About:      About,
		Disclaimer: report.Disclaimer,
		PatientID:  patientID,
		Groups:     groups,
	}
}

func (h *handler) render(patientID string, res predictor.Result) ([]byte, error) {
	var buf bytes.Buffer
	err := report.Render(&buf, report.Summary{
		ResultID:    res.ID,
		PatientID:   patientID,
		Diagnosis:   res.Diagnosis,
		GeneratedAt: res.CreatedAt,
		Schema:      h.svc.Schema(),
		Answers:     res.Answers,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sendPDF(c *gin.Context, id string, pdf []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="smarthealth-report-%s.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func userMessage(err error) string {
	var perr *predictor.Error
	if errors.As(err, &perr) {
		return perr.UserMessage()
	}
	return "Prediction failed. Please try again."
}
