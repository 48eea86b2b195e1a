package transfer

import "strings"

// Kind classifies the payload carried by a source message. The set is
// closed; anything the source reports outside it maps to KindUnknown and is
// skipped rather than guessed at.
type Kind string

const (
	KindDocument  Kind = "document"
	KindVideo     Kind = "video"
	KindAudio     Kind = "audio"
	KindPhoto     Kind = "photo"
	KindAnimation Kind = "animation"
	KindSticker   Kind = "sticker"
	KindVoice     Kind = "voice"
	KindText      Kind = "text"
	KindUnknown   Kind = "unknown"
)

type capability struct {
	thumbnail bool
	extension string
	maxSizeMB int64
	relayable bool
}

// capabilities is the single source of truth for per-kind behavior.
// Dispatch sites branch on Kind and consult this table instead of matching
// raw strings.
var capabilities = map[Kind]capability{
	KindDocument:  {thumbnail: true, extension: "", maxSizeMB: 2000, relayable: true},
	KindVideo:     {thumbnail: true, extension: ".mp4", maxSizeMB: 2000, relayable: true},
	KindAudio:     {thumbnail: true, extension: ".mp3", maxSizeMB: 2000, relayable: true},
	KindPhoto:     {thumbnail: false, extension: ".jpg", maxSizeMB: 10, relayable: true},
	KindAnimation: {thumbnail: false, extension: ".mp4", maxSizeMB: 50, relayable: true},
	KindSticker:   {thumbnail: false, extension: ".webp", maxSizeMB: 1, relayable: true},
	KindVoice:     {thumbnail: false, extension: ".ogg", maxSizeMB: 50, relayable: true},
	KindText:      {thumbnail: false, extension: ".txt", maxSizeMB: 0, relayable: true},
	KindUnknown:   {relayable: false},
}

// mimeExtensions overrides the per-kind default extension for specific
// payload MIME types.
var mimeExtensions = map[string]string{
	"image/gif":               ".gif",
	"video/x-matroska":        ".mkv",
	"video/webm":              ".webm",
	"audio/ogg":               ".ogg",
	"audio/wav":               ".wav",
	"audio/mpeg":              ".mp3",
	"image/webp":              ".webp",
	"application/x-tgsticker": ".tgs",
}

// ParseKind maps a raw source classification onto the closed Kind set.
func ParseKind(value string) Kind {
	kind := Kind(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := capabilities[kind]; ok && kind != KindUnknown {
		return kind
	}
	return KindUnknown
}

// Relayable reports whether the kind can be relayed at all.
func (k Kind) Relayable() bool {
	return capabilities[k].relayable
}

// HasThumbnail reports whether uploads of this kind carry a thumbnail.
func (k Kind) HasThumbnail() bool {
	return capabilities[k].thumbnail
}

// MaxSizeBytes returns the per-kind size ceiling. Zero means no ceiling
// beyond the global limit.
func (k Kind) MaxSizeBytes() int64 {
	return capabilities[k].maxSizeMB * 1024 * 1024
}

// Extension resolves the file extension for a payload, letting the MIME
// type override the kind default.
func (k Kind) Extension(mimeType string) string {
	if ext, ok := mimeExtensions[strings.ToLower(strings.TrimSpace(mimeType))]; ok {
		return ext
	}
	return capabilities[k].extension
}
