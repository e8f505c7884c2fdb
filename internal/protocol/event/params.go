package event

import "time"

// DetectSpeechParams is the data of a DetectSpeech event. Timeouts travel as
// milliseconds under the server's field names.
type DetectSpeechParams struct {
	StartInputTimers      bool  `json:"StartInputTimers"`
	NoInputTimeout        int64 `json:"NoInputTimeout"`
	SpeechCompleteTimeout int64 `json:"SpeechCompleteTimeout"`
	AutomaticInterruption bool  `json:"AutomaticInterruption"`
}

func DefaultDetectSpeechParams() DetectSpeechParams {
	return DetectSpeechParams{
		StartInputTimers:      true,
		NoInputTimeout:        (60 * time.Second).Milliseconds(),
		SpeechCompleteTimeout: (800 * time.Millisecond).Milliseconds(),
		AutomaticInterruption: true,
	}
}

// ConnectParams is the data of a ClientConnect event. Type "spy" asks the
// server to allocate an RTP receive port instead of bridging a SIP leg.
type ConnectParams struct {
	Type string `json:"Type,omitempty"`
}

const ConnectTypeSpy = "spy"

// ConnectResult is the data of the server's ClientConnect event.
type ConnectResult struct {
	RTPPort int `json:"rtpPort"`
}
