// Package predictor turns an answer set into a diagnosis label.
package predictor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Skufu/smarthealth/internal/diagnosis"
	"github.com/Skufu/smarthealth/internal/logger"
	"github.com/Skufu/smarthealth/internal/metrics"
	"github.com/Skufu/smarthealth/internal/model"
	"github.com/Skufu/smarthealth/internal/symptom"
)

// Recorder persists anonymous per-diagnosis counts.
type Recorder interface {
	RecordPrediction(ctx context.Context, diagnosis string) error
}

// Result is one prediction. It is not persisted.
type Result struct {
	ID        string            `json:"id"`
	Index     int               `json:"index"`
	Diagnosis string            `json:"diagnosis"`
	Vector    symptom.Vector    `json:"vector"`
	Answers   symptom.AnswerSet `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
}

// Error wraps a classifier failure.
type Error struct {
	Cause error
}

func (e *Error) Error() string { return "prediction failed: " + e.Cause.Error() }

func (e *Error) Unwrap() error { return e.Cause }

// UserMessage is the text shown to the user.
func (e *Error) UserMessage() string { return fmt.Sprintf("Prediction failed: %v", e.Cause) }

// Service holds the read-only schema, label table and classifier shared by
// all requests.
type Service struct {
	schema   *symptom.Schema
	labels   *diagnosis.Table
	clf      model.Classifier
	recorder Recorder
	now      func() time.Time
}

// New checks that schema, labels and classifier agree before serving.
func New(schema *symptom.Schema, labels *diagnosis.Table, clf model.Classifier) (*Service, error) {
	if n := clf.NumFeatures(); n > 0 && n != schema.Len() {
		return nil, fmt.Errorf("classifier expects %d features, schema has %d", n, schema.Len())
	}
	if namer, ok := clf.(model.FeatureNamer); ok {
		if names := namer.FeatureNames(); names != nil {
			if err := schema.MatchesOrder(names); err != nil {
				return nil, fmt.Errorf("classifier feature order: %w", err)
			}
		}
	}
	if err := labels.Validate(clf.Classes()); err != nil {
		return nil, fmt.Errorf("label table: %w", err)
	}
	return &Service{
		schema: schema,
		labels: labels,
		clf:    clf,
		now:    time.Now,
	}, nil
}

// WithRecorder sets where prediction counts are tallied.
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

func (s *Service) Schema() *symptom.Schema { return s.schema }

func (s *Service) Labels() *diagnosis.Table { return s.labels }

// Predict encodes answers, runs the classifier and decodes the label.
// Classifier faults come back as *Error; the service stays usable.
func (s *Service) Predict(ctx context.Context, answers symptom.AnswerSet) (Result, error) {
	log := logger.FromContext(ctx)
	vec := symptom.Encode(answers, s.schema)

	start := time.Now()
	idx, err := s.classify(vec)
	metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PredictionErrorsTotal.Inc()
		log.Error("classifier call failed", zap.Error(err))
		return Result{}, &Error{Cause: err}
	}

	label := s.labels.Decode(idx)
	metrics.PredictionsTotal.WithLabelValues(label).Inc()

	res := Result{
		ID:        uuid.NewString(),
		Index:     idx,
		Diagnosis: label,
		Vector:    vec,
		Answers:   answers,
		CreatedAt: s.now().UTC(),
	}
	log.Info("prediction",
		zap.String("prediction_id", res.ID),
		zap.Int("index", idx),
		zap.String("diagnosis", label),
		zap.Int("present", len(symptom.Present(answers, s.schema))),
	)

	if s.recorder != nil {
		if err := s.recorder.RecordPrediction(ctx, label); err != nil {
			log.Warn("tally write failed", zap.Error(err))
		}
	}
	return res, nil
}

// Probe classifies the all-absent row without recording metrics or tallies.
func (s *Service) Probe(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	idx, err := s.classify(symptom.Encode(nil, s.schema))
	if err != nil {
		return 0, &Error{Cause: err}
	}
	return idx, nil
}

func (s *Service) classify(vec symptom.Vector) (idx int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return s.clf.Predict(vec)
}
