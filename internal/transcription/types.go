package transcription

// Segment is one recognized phrase with timing. SpeakerID is empty unless
// the backend diarizes inline or the diarization merge filled it in.
type Segment struct {
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	SpeakerID  string  `json:"speaker_id,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Result is the normalized output of any transcription backend.
type Result struct {
	Segments []Segment `json:"segments"`
	FullText string    `json:"full_text"`
	Duration float64   `json:"duration"`
	Language string    `json:"language,omitempty"`
}

// SpeakerTurn is one labeled interval from a diarization pass. Turns carry
// no transcript text; they are merged onto segments by timestamp overlap.
type SpeakerTurn struct {
	SpeakerID string  `json:"speaker_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Options carries the per-job recognition settings a backend may honor.
// Backends ignore settings they do not support.
type Options struct {
	Language           string
	LanguageCandidates []string
	EnableDiarization  bool
	MaxSpeakers        int
	CustomTerms        []string
	ChunkSize          int
	Temperature        *float64
	InitialPrompt      string
}
