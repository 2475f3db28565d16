// Package mediatype classifies input and output files by extension.
package mediatype

import (
	"path/filepath"
	"slices"
	"strings"
)

// Kind identifies the role a file plays in a conversion.
type Kind string

const (
	// KindImage is the still image shown for the whole video.
	KindImage Kind = "image"
	// KindAudio is the soundtrack.
	KindAudio Kind = "audio"
	// KindOutput is the produced video container.
	KindOutput Kind = "output"
)

// Accepted extensions, lower-case with the leading dot.
var (
	ImageExts  = []string{".jpg", ".jpeg", ".png"}
	AudioExts  = []string{".mp3", ".wav"}
	OutputExts = []string{".mp4"}

	// CompatibleImageExts can be handed to the encoder as they are.
	CompatibleImageExts = []string{".jpg", ".jpeg"}
	// ConvertibleImageExts must be converted to JPEG first.
	ConvertibleImageExts = []string{".png"}
)

// Ext returns the lower-cased extension of path, including the dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// Allowed returns the accepted extensions for kind.
func Allowed(kind Kind) []string {
	switch kind {
	case KindImage:
		return ImageExts
	case KindAudio:
		return AudioExts
	case KindOutput:
		return OutputExts
	default:
		return nil
	}
}

// Accepts reports whether path has an extension accepted for kind.
func Accepts(kind Kind, path string) bool {
	return slices.Contains(Allowed(kind), Ext(path))
}

// IsCompatibleImage reports whether path can be encoded without conversion.
func IsCompatibleImage(path string) bool {
	return slices.Contains(CompatibleImageExts, Ext(path))
}

// IsConvertibleImage reports whether path must be converted before encoding.
func IsConvertibleImage(path string) bool {
	return slices.Contains(ConvertibleImageExts, Ext(path))
}
