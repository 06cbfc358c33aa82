package server

import (
	"context"
	"fmt"
	"log/slog"

	"headlines/internal/store"
)

// TrainClassifier relearns the boring/interesting model from every rated
// item and refreshes the prediction of every unrated one.
func (a *App) TrainClassifier(ctx context.Context) error {
	a.classifyMu.Lock()
	defer a.classifyMu.Unlock()

	samples, err := store.TrainingSamples(ctx, a.db, a.opts.BoringThreshold)
	if err != nil {
		return fmt.Errorf("load training samples: %w", err)
	}

	a.classifier.Train(samples)

	boring, interesting := a.classifier.Counts()

	predicted, err := store.ClassifyItems(ctx, a.db, a.classifier.Classify, false)
	if err != nil {
		return fmt.Errorf("classify items: %w", err)
	}

	slog.Info("classifier trained",
		"boring_samples", boring,
		"interesting_samples", interesting,
		"predicted_boring", predicted,
	)

	return nil
}

// classifyNewItems predicts items stored since the last classification.
func (a *App) classifyNewItems(ctx context.Context) {
	a.classifyMu.Lock()
	defer a.classifyMu.Unlock()

	if !a.classifier.Ready() {
		return
	}

	_, err := store.ClassifyItems(ctx, a.db, a.classifier.Classify, true)
	if err != nil {
		slog.Warn("classify new items failed", "err", err)
	}
}

func (a *App) retrainClassifier(ctx context.Context) {
	err := a.TrainClassifier(ctx)
	if err != nil {
		slog.Warn("classifier training failed", "err", err)
	}
}
