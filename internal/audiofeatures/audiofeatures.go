// Package audiofeatures probes call recordings locally. Everything here is
// best-effort: a recording that cannot be decoded degrades the feature set,
// never the pipeline run.
package audiofeatures

import (
	"fmt"
	"io"
	"math"
	"os"

	wav "github.com/youpy/go-wav"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/types"
)

// silenceRMS is the per-chunk RMS floor below which audio counts as silence.
const silenceRMS = 0.01

const chunkSamples = 2048

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Duration returns the recording length in seconds from the WAV header.
func (e *Extractor) Duration(audioPath string) (float64, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return 0, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	d, err := wav.NewReader(f).Duration()
	if err != nil {
		return 0, fmt.Errorf("read wav duration: %w", err)
	}
	return d.Seconds(), nil
}

// Extract decodes the recording and computes aggregate acoustic features.
// Returns nil when the file cannot be decoded.
func (e *Extractor) Extract(audioPath string) *types.AudioFeatures {
	log := logger.New().WithField("module", "audiofeatures")

	f, err := os.Open(audioPath)
	if err != nil {
		log.WithError(err).Warn("cannot open recording, skipping feature extraction")
		return nil
	}
	defer f.Close()

	reader := wav.NewReader(f)
	format, err := reader.Format()
	if err != nil {
		log.WithError(err).Warn("cannot read wav format, skipping feature extraction")
		return nil
	}

	var (
		rmsSum        float64
		chunks        int
		silentChunks  int
		crossings     int
		totalSamples  int
		prevNegative  bool
		havePrevValue bool
	)

	for {
		samples, err := reader.ReadSamples(chunkSamples)
		if len(samples) > 0 {
			var sumSquares float64
			for _, sample := range samples {
				v := reader.FloatValue(sample, 0)
				sumSquares += v * v
				negative := v < 0
				if havePrevValue && negative != prevNegative {
					crossings++
				}
				prevNegative = negative
				havePrevValue = true
			}
			rms := math.Sqrt(sumSquares / float64(len(samples)))
			rmsSum += rms
			chunks++
			if rms < silenceRMS {
				silentChunks++
			}
			totalSamples += len(samples)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			log.WithError(err).Warn("wav decode error, skipping feature extraction")
			return nil
		}
	}
	if chunks == 0 || totalSamples == 0 {
		log.Warn("recording has no samples, skipping feature extraction")
		return nil
	}

	zcrMean := float64(crossings) / float64(totalSamples)
	return &types.AudioFeatures{
		RMSMean: rmsSum / float64(chunks),
		ZCRMean: zcrMean,
		// zero-crossing estimate of the dominant frequency content
		SpectralCentroidMean: zcrMean * float64(format.SampleRate) / 2,
		SilenceRatio:         float64(silentChunks) / float64(chunks),
	}
}
