package agent

import "context"

// Recorder captures microphone audio and returns its transcription. The
// implementation lives outside this module; a nil Recorder disables the
// send_voice_message action with a descriptive outcome.
type Recorder interface {
	RecordAndTranscribe(ctx context.Context, seconds int) (string, error)
}
