package coaching

import (
	"math"
	"strings"
)

// IdealRate is the conversational pace, in words per minute, the fluency
// score is centred on.
const IdealRate = 150

// Metrics are computed locally from the transcript and never by the model.
type Metrics struct {
	FluencyScore    int `json:"fluencyScore"`
	WordCount       int `json:"wordCount"`
	SpeechRate      int `json:"speechRate"`
	FillerWordCount int `json:"fillerWordCount"`
}

// ComputeMetrics derives word count, speech rate and fluency. Callers are
// expected to reject empty transcripts and non-positive durations first; if
// they do not, the zero Metrics (with the filler count) is returned.
func ComputeMetrics(transcript string, duration float64, fillers int) Metrics {
	m := Metrics{
		WordCount:       len(strings.Fields(strings.TrimSpace(transcript))),
		FillerWordCount: fillers,
	}
	if m.WordCount == 0 || duration <= 0 {
		return m
	}

	m.SpeechRate = int(math.Round(float64(m.WordCount) / duration * 60))
	m.FluencyScore = int(math.Round(Fluency(m.WordCount, m.SpeechRate, fillers)))
	return m
}

// Fluency is 100 minus 50 times the filler ratio and 0.2 points per wpm away
// from IdealRate, clamped to [0, 100].
func Fluency(wordCount, speechRate, fillers int) float64 {
	ratio := float64(fillers) / float64(wordCount)
	score := 100 - ratio*50 - math.Abs(float64(speechRate-IdealRate))*0.2
	return max(0, min(100, score))
}
