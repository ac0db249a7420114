// Package pipeline orchestrates one investigation run:
// transcribe -> chunk -> index -> retrieve -> answer, then the advisory
// wanted-check and alert. The answer path is fatal-on-error; the
// advisory path can never cost the caller the answer.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"crimesight-go/internal/caseindex"
	"crimesight-go/internal/chunker"
	"crimesight-go/internal/logger"
	"crimesight-go/internal/notifier"
	"crimesight-go/internal/types"
)

// retrievalK is how many chunks ground each answer.
const retrievalK = 3

// Transcriber yields the subject's transcript, reporting whether an
// existing job was reused.
type Transcriber interface {
	Transcribe(ctx context.Context, subjectID string) (text string, alreadyExisted bool, err error)
}

// Embedder is the process-wide embedding model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Dimension(ctx context.Context) (int, error)
}

// Synthesizer produces the grounded answer.
type Synthesizer interface {
	Answer(ctx context.Context, contextDocs []string, question string) (string, error)
}

// WantedMatcher checks the subject name against the wanted feed. By
// contract it soft-fails internally and never returns an error.
type WantedMatcher interface {
	FindMatches(ctx context.Context, name string) []types.WantedEntry
}

// Investigator wires the stages together. Runs for different subjects
// may proceed concurrently; runs for the same subject must be
// serialized by the caller (they race the index rebuild).
type Investigator struct {
	transcriber Transcriber
	embedder    Embedder
	store       caseindex.VectorStore
	synthesizer Synthesizer
	matcher     WantedMatcher
	notifier    notifier.Notifier
	location    string
	log         *logrus.Entry
}

func New(t Transcriber, e Embedder, store caseindex.VectorStore, s Synthesizer, m WantedMatcher, n notifier.Notifier, location string) *Investigator {
	if n == nil {
		n = notifier.Noop{}
	}
	return &Investigator{
		transcriber: t,
		embedder:    e,
		store:       store,
		synthesizer: s,
		matcher:     m,
		notifier:    n,
		location:    location,
		log:         logger.New().WithComponent("pipeline"),
	}
}

// Run executes one investigation. On a fatal stage error no partial
// result is returned; the error carries the failing stage and subject.
func (inv *Investigator) Run(ctx context.Context, subjectID, subjectName, question string) (*types.InvestigationResult, error) {
	if err := types.ValidateSubjectID(subjectID); err != nil {
		return nil, err
	}

	log := inv.log.WithField("subject_id", subjectID)
	start := time.Now()

	transcript, reused, err := inv.transcriber.Transcribe(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("transcribe %q: %w", subjectID, err)
	}
	if reused {
		log.Info("reused existing transcription job")
	}

	chunks := chunker.Split(transcript)
	log.WithField("chunks", len(chunks)).Info("transcript chunked")

	dim, err := inv.embedder.Dimension(ctx)
	if err != nil {
		return nil, fmt.Errorf("index %q: %w", subjectID, err)
	}
	index := caseindex.New(inv.store, subjectID, dim)

	var vectors [][]float32
	if len(chunks) > 0 {
		vectors, err = inv.embedder.Embed(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("index %q: %w", subjectID, err)
		}
	}
	if err := index.Rebuild(ctx, chunks, vectors); err != nil {
		return nil, fmt.Errorf("index %q: %w", subjectID, err)
	}

	queryVector, err := inv.embedder.EmbedSingle(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieve %q: %w", subjectID, err)
	}
	docs, err := index.TopK(ctx, queryVector, retrievalK)
	if err != nil {
		return nil, fmt.Errorf("retrieve %q: %w", subjectID, err)
	}
	contextDocs := make([]string, len(docs))
	for i, doc := range docs {
		contextDocs[i] = doc.Content
	}

	answer, err := inv.synthesizer.Answer(ctx, contextDocs, question)
	if err != nil {
		return nil, fmt.Errorf("answer %q: %w", subjectID, err)
	}

	result := &types.InvestigationResult{
		Answer:        answer,
		WantedMatches: []types.WantedEntry{},
	}
	inv.runAdvisory(ctx, log, subjectName, result)

	log.WithField("duration_ms", time.Since(start).Milliseconds()).
		WithField("matches", len(result.WantedMatches)).
		Info("investigation finished")
	return result, nil
}

// runAdvisory performs the wanted check and, when it hits, the alert.
// Both live inside one isolation boundary: whatever goes wrong here is
// logged and the result keeps the matches gathered before the failure.
func (inv *Investigator) runAdvisory(ctx context.Context, log *logrus.Entry, subjectName string, result *types.InvestigationResult) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("advisory path panicked")
		}
	}()

	if inv.matcher == nil || subjectName == "" {
		return
	}
	result.WantedMatches = inv.matcher.FindMatches(ctx, subjectName)
	if len(result.WantedMatches) == 0 {
		return
	}

	log.WithField("matches", len(result.WantedMatches)).Warn("subject matched wanted feed")
	if err := inv.notifier.Alert(ctx, subjectName, inv.location); err != nil {
		log.WithError(err).Warn("alert failed")
	}
}
