package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	transcribetypes "github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobAPI struct {
	startErr      error
	startCalls    int
	statuses      []transcribetypes.TranscriptionJobStatus
	statusCalls   int
	resultURI     string
	failureReason string
}

func (f *fakeJobAPI) StartTranscriptionJob(_ context.Context, in *transcribe.StartTranscriptionJobInput, _ ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error) {
	f.startCalls++
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &transcribe.StartTranscriptionJobOutput{}, nil
}

func (f *fakeJobAPI) GetTranscriptionJob(_ context.Context, in *transcribe.GetTranscriptionJobInput, _ ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error) {
	i := f.statusCalls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.statusCalls++

	job := &transcribetypes.TranscriptionJob{
		TranscriptionJobName:   in.TranscriptionJobName,
		TranscriptionJobStatus: f.statuses[i],
	}
	switch f.statuses[i] {
	case transcribetypes.TranscriptionJobStatusCompleted:
		job.Transcript = &transcribetypes.Transcript{TranscriptFileUri: aws.String(f.resultURI)}
	case transcribetypes.TranscriptionJobStatusFailed:
		job.FailureReason = aws.String(f.failureReason)
	}
	return &transcribe.GetTranscriptionJobOutput{TranscriptionJob: job}, nil
}

func transcriptServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": map[string]any{
				"transcripts": []map[string]any{{"transcript": text}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribeCompletesAfterPolling(t *testing.T) {
	srv := transcriptServer(t, "The suspect confessed to the robbery on May 5th.")
	api := &fakeJobAPI{
		statuses: []transcribetypes.TranscriptionJobStatus{
			transcribetypes.TranscriptionJobStatusInProgress,
			transcribetypes.TranscriptionJobStatusInProgress,
			transcribetypes.TranscriptionJobStatusCompleted,
		},
		resultURI: srv.URL,
	}
	tr := New(api, "interrogations", WithPollInterval(time.Millisecond))

	text, reused, err := tr.Transcribe(context.Background(), "VincentRomano")
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, "The suspect confessed to the robbery on May 5th.", text)
	assert.Equal(t, 1, api.startCalls)
	assert.Equal(t, 3, api.statusCalls)
}

func TestTranscribeReusesExistingJob(t *testing.T) {
	srv := transcriptServer(t, "transcript body")
	api := &fakeJobAPI{
		startErr:  &transcribetypes.ConflictException{Message: aws.String("job already exists")},
		statuses:  []transcribetypes.TranscriptionJobStatus{transcribetypes.TranscriptionJobStatusCompleted},
		resultURI: srv.URL,
	}
	tr := New(api, "interrogations", WithPollInterval(time.Millisecond))

	text, reused, err := tr.Transcribe(context.Background(), "VincentRomano")
	require.NoError(t, err)
	assert.True(t, reused, "an existing job is reused, not an error")
	assert.Equal(t, "transcript body", text)
}

func TestTranscribeOtherSubmitErrorsAreFatal(t *testing.T) {
	api := &fakeJobAPI{
		startErr: &transcribetypes.BadRequestException{Message: aws.String("bad media uri")},
	}
	tr := New(api, "interrogations", WithPollInterval(time.Millisecond))

	_, _, err := tr.Transcribe(context.Background(), "VincentRomano")
	require.Error(t, err)
	assert.Zero(t, api.statusCalls, "a rejected submission must not be polled")
}

func TestTranscribeJobFailure(t *testing.T) {
	api := &fakeJobAPI{
		statuses:      []transcribetypes.TranscriptionJobStatus{transcribetypes.TranscriptionJobStatusFailed},
		failureReason: "unsupported codec",
	}
	tr := New(api, "interrogations", WithPollInterval(time.Millisecond))

	_, _, err := tr.Transcribe(context.Background(), "VincentRomano")
	var failed *JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "VincentRomano", failed.SubjectID)
	assert.Contains(t, failed.Error(), "unsupported codec")
}

func TestTranscribeFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	api := &fakeJobAPI{
		statuses:  []transcribetypes.TranscriptionJobStatus{transcribetypes.TranscriptionJobStatusCompleted},
		resultURI: srv.URL,
	}
	tr := New(api, "interrogations", WithPollInterval(time.Millisecond))

	_, _, err := tr.Transcribe(context.Background(), "VincentRomano")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusForbidden, fetchErr.Status)
}

func TestTranscribeHonorsCancellation(t *testing.T) {
	api := &fakeJobAPI{
		statuses: []transcribetypes.TranscriptionJobStatus{transcribetypes.TranscriptionJobStatusInProgress},
	}
	tr := New(api, "interrogations", WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := tr.Transcribe(ctx, "VincentRomano")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTranscribeMaxWaitBoundsThePoll(t *testing.T) {
	api := &fakeJobAPI{
		statuses: []transcribetypes.TranscriptionJobStatus{transcribetypes.TranscriptionJobStatusInProgress},
	}
	tr := New(api, "interrogations",
		WithPollInterval(5*time.Millisecond),
		WithMaxWait(20*time.Millisecond))

	_, _, err := tr.Transcribe(context.Background(), "VincentRomano")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMediaURIIsDeterministic(t *testing.T) {
	tr := New(nil, "interrogations")
	assert.Equal(t, "s3://interrogations/VincentRomano.mp4", tr.MediaURI("VincentRomano"))
	assert.Equal(t, tr.MediaURI("TommyBugati"), tr.MediaURI("TommyBugati"))
}

func TestMockModeSkipsAWS(t *testing.T) {
	t.Setenv("USE_MOCK_TRANSCRIBE", "true")
	tr, err := NewFromEnv(context.Background())
	require.NoError(t, err)

	text, reused, err := tr.Transcribe(context.Background(), "VincentRomano")
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotEmpty(t, text)
}
