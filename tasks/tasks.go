package tasks

import "encoding/json"

// Queue names. The pipeline is transcode first, then moderation; each video
// moves through the stages via one task per stage.
const (
	// QueueVideoTranscode converts the uploaded original into the
	// adaptive-bitrate artifact set.
	QueueVideoTranscode = "q_video_transcode"

	// QueueVideoModeration runs the content scan against the encoded
	// stream once transcoding has finished.
	QueueVideoModeration = "q_video_moderation"
)

// TranscodeTaskPayload is the payload for QueueVideoTranscode.
type TranscodeTaskPayload struct {
	VideoID string `json:"video_id"`
}

// ModerationTaskPayload is the payload for QueueVideoModeration.
type ModerationTaskPayload struct {
	VideoID string `json:"video_id"`
}

// Marshal creates a JSON payload for a task.
func Marshal(payload interface{}) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
