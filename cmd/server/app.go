package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Skufu/smarthealth/internal/config"
	"github.com/Skufu/smarthealth/internal/diagnosis"
	"github.com/Skufu/smarthealth/internal/model"
	"github.com/Skufu/smarthealth/internal/predictor"
	"github.com/Skufu/smarthealth/internal/symptom"
)

// loadConfig resolves the --config flag and loads settings.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

func labelTable(cfg *config.Config) (*diagnosis.Table, error) {
	if len(cfg.Labels) == 0 {
		return diagnosis.Default(), nil
	}
	return diagnosis.FromList(cfg.Labels)
}

// buildService loads the classifier and checks it against the schema and
// label table. The caller owns the returned classifier.
func buildService(cfg *config.Config, log *zap.Logger) (*predictor.Service, model.Classifier, error) {
	labels, err := labelTable(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("labels: %w", err)
	}

	clf, err := model.Load(cfg.Model.Kind, cfg.Model.Path, cfg.ModelOptions())
	if err != nil {
		return nil, nil, err
	}

	svc, err := predictor.New(symptom.Default(), labels, clf)
	if err != nil {
		return nil, nil, errors.Join(err, clf.Close())
	}
	artifact := cfg.Model.Kind
	if n, ok := clf.(model.Namer); ok && n.Name() != "" {
		artifact = n.Name()
	}
	log.Info("model loaded",
		zap.String("kind", cfg.Model.Kind),
		zap.String("artifact", artifact),
		zap.String("path", cfg.Model.Path),
		zap.Int("features", svc.Schema().Len()),
		zap.Int("labels", labels.Len()),
	)
	return svc, clf, nil
}

// modelProbe classifies the all-absent row so readiness fails if the
// classifier can no longer answer.
func modelProbe(svc *predictor.Service) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := svc.Probe(ctx)
		return err
	}
}
