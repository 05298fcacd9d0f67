// Package transcription wraps the external speech-to-text service. The flow
// is publish → poll → download; any failure here is fatal to the pipeline run
// that requested it.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/types"
)

// Service talks to the transcription API configured via TRANSCRIBE_URL.
// USE_MOCK_TRANSCRIBE=true switches to a deterministic offline transcript.
type Service struct {
	host string
	http *http.Client
	mock bool

	pollInterval time.Duration
	pollAttempts int
}

func New() *Service {
	return &Service{
		host:         os.Getenv("TRANSCRIBE_URL"),
		http:         &http.Client{Timeout: 12 * time.Second},
		mock:         os.Getenv("USE_MOCK_TRANSCRIBE") == "true",
		pollInterval: 1500 * time.Millisecond,
		pollAttempts: 40,
	}
}

type publishResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		MediaId          string `json:"MediaId"`
		Status           string `json:"Status"`
		TranscriptionURL string `json:"TranscriptionURL"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

type statusResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		Status               string `json:"Status"`
		TranscriptionTextURL string `json:"TranscriptionTextURL"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

// payload is the analysis document the service produces per recording.
type payload struct {
	Transcript        string `json:"transcript"`
	SpeakerTimestamps struct {
		Speakers []struct {
			ID         string `json:"id"`
			Utterances []struct {
				Start float64 `json:"start"`
				End   float64 `json:"end"`
				Text  string  `json:"text"`
			} `json:"utterances"`
		} `json:"speakers"`
	} `json:"speaker_timestamps"`
	AudioStats struct {
		SilenceRate float64 `json:"silence_rate"`
	} `json:"audio_stats"`
}

// Transcribe runs the full publish/poll/download flow for one recording.
func (s *Service) Transcribe(ctx context.Context, audioPath string) (*types.TranscriptResult, error) {
	if s.mock {
		return mockResult(), nil
	}
	if s.host == "" {
		return nil, errors.New("TRANSCRIBE_URL not set")
	}
	log := logger.New().WithField("module", "transcription")

	mediaID, existingURL, err := s.publish(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	finalURL := existingURL
	if finalURL == "" {
		finalURL, err = s.poll(ctx, mediaID)
		if err != nil {
			return nil, err
		}
	}
	log.WithField("final_url", finalURL).Info("downloading transcription result")

	doc, err := s.download(ctx, finalURL)
	if err != nil {
		return nil, err
	}
	return parsePayload(doc)
}

func (s *Service) publish(ctx context.Context, audioPath string) (string, string, error) {
	endpoint := strings.TrimRight(s.host, "/") + "/transcribe"
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	w.WriteField("callRecordingLink", audioPath)
	w.WriteField("callType", "PNS")
	_ = w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &b)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp publishResponse
	if err := s.doJSON(req, &resp); err != nil {
		return "", "", err
	}
	if resp.Code != 200 {
		return "", "", fmt.Errorf("transcribe publish error: code=%d reason=%s", resp.Code, resp.Reason)
	}
	if resp.Data.TranscriptionURL != "" && strings.EqualFold(resp.Data.Status, "success") {
		return "", resp.Data.TranscriptionURL, nil
	}
	return resp.Data.MediaId, "", nil
}

func (s *Service) poll(ctx context.Context, mediaID string) (string, error) {
	base := strings.TrimRight(s.host, "/") + "/getstatus"
	for i := 0; i < s.pollAttempts; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.pollInterval):
		}
		u, _ := url.Parse(base)
		q := u.Query()
		q.Set("mediaId", mediaID)
		u.RawQuery = q.Encode()
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)

		var resp statusResponse
		if err := s.doJSON(req, &resp); err != nil {
			continue
		}
		switch resp.Data.Status {
		case "Success":
			return resp.Data.TranscriptionTextURL, nil
		case "Queued", "Processing":
			continue
		case "Failed":
			return "", fmt.Errorf("transcription failed: %s", resp.Reason)
		}
	}
	return "", fmt.Errorf("transcription timeout for media %s", mediaID)
}

func (s *Service) download(ctx context.Context, resultURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download failed: %s", string(body))
	}
	return body, nil
}

func (s *Service) doJSON(req *http.Request, target any) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 12 * time.Second
	var lastErr error
	op := func() error {
		resp, err := s.http.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %s", string(body))
			return lastErr
		}
		if len(body) == 0 {
			lastErr = fmt.Errorf("empty body")
			return lastErr
		}
		if err := json.Unmarshal(body, target); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, string(body))
			return lastErr
		}
		return nil
	}
	if err := backoff.Retry(op, bo); err != nil {
		return lastErr
	}
	return nil
}

// parsePayload flattens the per-speaker utterance lists into one sequence
// ordered by start time.
func parsePayload(doc []byte) (*types.TranscriptResult, error) {
	var p payload
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("parse transcription payload: %w", err)
	}
	if p.Transcript == "" {
		return nil, errors.New("transcription payload has no transcript text")
	}

	var utterances []types.Utterance
	for _, speaker := range p.SpeakerTimestamps.Speakers {
		for _, u := range speaker.Utterances {
			utterances = append(utterances, types.Utterance{
				SpeakerID: speaker.ID,
				Start:     u.Start,
				End:       u.End,
				Text:      u.Text,
			})
		}
	}
	sort.SliceStable(utterances, func(i, j int) bool {
		return utterances[i].Start < utterances[j].Start
	})

	return &types.TranscriptResult{
		FullText:     p.Transcript,
		Utterances:   utterances,
		SilenceRatio: p.AudioStats.SilenceRate,
	}, nil
}

func mockResult() *types.TranscriptResult {
	return &types.TranscriptResult{
		FullText: "MOCK TRANSCRIPT: customer asks about a billing issue and the agent walks through the refund steps.",
		Utterances: []types.Utterance{
			{SpeakerID: "AGENT", Start: 0.0, End: 4.5, Text: "Hello, how can I help you today?"},
			{SpeakerID: "CUSTOMER", Start: 5.0, End: 12.7, Text: "I was charged twice on my last bill."},
			{SpeakerID: "AGENT", Start: 13.2, End: 24.8, Text: "I can see the duplicate charge, let me start a refund for you."},
			{SpeakerID: "CUSTOMER", Start: 25.5, End: 29.0, Text: "Thank you, that solves it."},
		},
		SilenceRatio: 0.15,
	}
}
