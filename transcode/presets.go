package transcode

import (
	"fmt"
	"strconv"
	"strings"
)

// QualityPreset is one fixed rendition of the adaptive ladder. Bitrates use
// ffmpeg notation ("5000k").
type QualityPreset struct {
	Name         string
	Width        int
	Height       int
	VideoBitrate string
	AudioBitrate string
}

// DefaultLadder is the reference preset ladder. Order matters: the master
// manifest lists variants in this order.
var DefaultLadder = []QualityPreset{
	{Name: "1080p", Width: 1920, Height: 1080, VideoBitrate: "5000k", AudioBitrate: "192k"},
	{Name: "720p", Width: 1280, Height: 720, VideoBitrate: "2800k", AudioBitrate: "128k"},
	{Name: "480p", Width: 854, Height: 480, VideoBitrate: "1400k", AudioBitrate: "128k"},
	{Name: "360p", Width: 640, Height: 360, VideoBitrate: "800k", AudioBitrate: "96k"},
}

// Bandwidth converts the video bitrate to bits per second for the
// EXT-X-STREAM-INF BANDWIDTH attribute.
func (p QualityPreset) Bandwidth() int {
	n, _ := strconv.Atoi(strings.TrimSuffix(p.VideoBitrate, "k"))
	return n * 1000
}

func (p QualityPreset) validate() error {
	if p.Name == "" || p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("invalid preset %q: %dx%d", p.Name, p.Width, p.Height)
	}
	if !strings.HasSuffix(p.VideoBitrate, "k") || !strings.HasSuffix(p.AudioBitrate, "k") {
		return fmt.Errorf("invalid preset %q: bitrates must use ffmpeg k notation", p.Name)
	}
	return nil
}

// masterPlaylist renders the top-level HLS manifest referencing each variant
// sub-manifest, in preset order.
func masterPlaylist(presets []QualityPreset) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	for _, p := range presets {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", p.Bandwidth(), p.Width, p.Height)
		fmt.Fprintf(&b, "%s/index.m3u8\n", p.Name)
	}
	return b.String()
}
