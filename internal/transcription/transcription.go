// Package transcription drives an asynchronous transcription job to
// completion for a subject's interrogation recording. Jobs are keyed by
// subject id; media resolves deterministically to the subject's object
// in the recordings bucket.
package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	transcribetypes "github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/sirupsen/logrus"

	"crimesight-go/internal/logger"
)

// JobFailedError signals that the transcription job itself reached the
// FAILED state. Fatal for the pipeline run.
type JobFailedError struct {
	SubjectID string
	Reason    string
}

func (e *JobFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transcription job %q failed", e.SubjectID)
	}
	return fmt.Sprintf("transcription job %q failed: %s", e.SubjectID, e.Reason)
}

// FetchError signals that a completed job's transcript could not be
// retrieved or parsed from its result location.
type FetchError struct {
	URI    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch transcript from %s: %v", e.URI, e.Err)
	}
	return fmt.Sprintf("fetch transcript from %s: status %d", e.URI, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// JobAPI is the slice of the transcription service the driver needs.
// The AWS SDK client satisfies it directly.
type JobAPI interface {
	StartTranscriptionJob(ctx context.Context, in *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, in *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
}

// Transcriber submits, polls and fetches one transcription job per call.
// Submitting creates billed infrastructure, so it must not be called
// speculatively.
type Transcriber struct {
	api          JobAPI
	bucket       string
	mediaFormat  transcribetypes.MediaFormat
	languageCode transcribetypes.LanguageCode
	pollInterval time.Duration
	// MaxWait bounds the polling loop; zero keeps the original
	// unbounded wait and leaves the bound to the caller's context.
	maxWait    time.Duration
	httpClient *http.Client
	mock       bool
	log        *logrus.Entry
}

// Option tweaks a Transcriber.
type Option func(*Transcriber)

func WithPollInterval(d time.Duration) Option { return func(t *Transcriber) { t.pollInterval = d } }
func WithMaxWait(d time.Duration) Option      { return func(t *Transcriber) { t.maxWait = d } }
func WithHTTPClient(c *http.Client) Option    { return func(t *Transcriber) { t.httpClient = c } }

// New builds a Transcriber over an existing job API.
func New(api JobAPI, bucket string, opts ...Option) *Transcriber {
	t := &Transcriber{
		api:          api,
		bucket:       bucket,
		mediaFormat:  transcribetypes.MediaFormatMp4,
		languageCode: transcribetypes.LanguageCodeEnUs,
		pollInterval: 10 * time.Second,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		log:          logger.New().WithComponent("transcription"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewFromEnv wires the AWS client from the default credential chain.
// USE_MOCK_TRANSCRIBE=true skips AWS entirely and serves a canned
// transcript for offline demos.
func NewFromEnv(ctx context.Context, opts ...Option) (*Transcriber, error) {
	if os.Getenv("USE_MOCK_TRANSCRIBE") == "true" {
		t := New(nil, "", opts...)
		t.mock = true
		return t, nil
	}

	bucket := os.Getenv("AWS_S3_BUCKET")
	if bucket == "" {
		return nil, errors.New("AWS_S3_BUCKET not set")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region := os.Getenv("AWS_REGION"); region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(transcribe.NewFromConfig(cfg), bucket, opts...), nil
}

// MediaURI maps a subject id to its recording location. Pure and
// deterministic: the same subject always resolves to the same object.
func (t *Transcriber) MediaURI(subjectID string) string {
	return fmt.Sprintf("s3://%s/%s.mp4", t.bucket, subjectID)
}

// Transcribe submits the subject's job (reusing it when one already
// exists under that name), polls until a terminal state and returns the
// plain transcript text.
func (t *Transcriber) Transcribe(ctx context.Context, subjectID string) (string, bool, error) {
	if t.mock {
		return "MOCK TRANSCRIPT: The suspect confessed to the robbery on May 5th.", false, nil
	}

	log := t.log.WithField("subject_id", subjectID)
	mediaURI := t.MediaURI(subjectID)
	alreadyExisted := false

	_, err := t.api.StartTranscriptionJob(ctx, &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(subjectID),
		Media:                &transcribetypes.Media{MediaFileUri: aws.String(mediaURI)},
		MediaFormat:          t.mediaFormat,
		LanguageCode:         t.languageCode,
	})
	if err != nil {
		var conflict *transcribetypes.ConflictException
		if !errors.As(err, &conflict) {
			return "", false, fmt.Errorf("submit transcription job %q: %w", subjectID, err)
		}
		// A job under this name may have been started for different
		// media; we reuse it regardless, so make the reuse visible.
		alreadyExisted = true
		log.Warn("transcription job already exists, reusing and polling")
	} else {
		log.WithField("media_uri", mediaURI).Info("transcription job submitted")
	}

	resultURI, err := t.waitForJob(ctx, subjectID)
	if err != nil {
		return "", alreadyExisted, err
	}

	log.Info("transcription completed, downloading transcript")
	text, err := t.fetchTranscript(ctx, resultURI)
	if err != nil {
		return "", alreadyExisted, err
	}
	return text, alreadyExisted, nil
}

// waitForJob polls job status on a fixed interval until COMPLETED or
// FAILED, honoring context cancellation and the optional MaxWait bound.
func (t *Transcriber) waitForJob(ctx context.Context, subjectID string) (string, error) {
	if t.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.maxWait)
		defer cancel()
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	log := t.log.WithField("subject_id", subjectID)
	for {
		out, err := t.api.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
			TranscriptionJobName: aws.String(subjectID),
		})
		if err != nil {
			return "", fmt.Errorf("poll transcription job %q: %w", subjectID, err)
		}
		job := out.TranscriptionJob

		switch job.TranscriptionJobStatus {
		case transcribetypes.TranscriptionJobStatusCompleted:
			if job.Transcript == nil || job.Transcript.TranscriptFileUri == nil {
				return "", &FetchError{Err: errors.New("completed job has no transcript uri")}
			}
			return aws.ToString(job.Transcript.TranscriptFileUri), nil
		case transcribetypes.TranscriptionJobStatusFailed:
			return "", &JobFailedError{SubjectID: subjectID, Reason: aws.ToString(job.FailureReason)}
		}

		log.WithField("status", string(job.TranscriptionJobStatus)).Debug("waiting for transcription to complete")
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("wait for transcription job %q: %w", subjectID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// transcriptPayload mirrors the result document: the text lives at
// results.transcripts[0].transcript.
type transcriptPayload struct {
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
	} `json:"results"`
}

func (t *Transcriber) fetchTranscript(ctx context.Context, uri string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", &FetchError{URI: uri, Err: err}
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", &FetchError{URI: uri, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URI: uri, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URI: uri, Err: err}
	}

	var payload transcriptPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &FetchError{URI: uri, Err: fmt.Errorf("decode transcript payload: %w", err)}
	}
	if len(payload.Results.Transcripts) == 0 {
		return "", &FetchError{URI: uri, Err: errors.New("transcript payload has no transcripts")}
	}
	return payload.Results.Transcripts[0].Transcript, nil
}
