package standardize

import (
	"path/filepath"
	"strings"
)

const (
	// PrimaryExt is the preferred target container.
	PrimaryExt = ".mp4"
	// SecondaryExt is the fallback container for anything the primary
	// cannot legally carry.
	SecondaryExt = ".mkv"
	// DisallowedCodec is the audio codec the primary container cannot hold.
	DisallowedCodec = "opus"
)

// videoExts are the extensions treated as video input regardless of what the
// transport reported.
var videoExts = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".flv":  true,
	".wmv":  true,
	".webm": true,
}

// IsVideoExt reports whether ext names a recognized video container.
func IsVideoExt(ext string) bool {
	return videoExts[strings.ToLower(ext)]
}

// Plan decides the target container from the source extension and the
// disallowed-codec probe. The primary container is kept only when the source
// already uses it and carries no disallowed audio.
func Plan(sourceExt string, hasDisallowedCodec bool) string {
	if strings.EqualFold(sourceExt, PrimaryExt) && !hasDisallowedCodec {
		return PrimaryExt
	}
	return SecondaryExt
}

// OutputName builds the standardized filename: the fixed brand prefix plus
// the target extension. The brand comes from configuration, never from the
// file content.
func OutputName(brand, targetExt string) string {
	if !strings.HasPrefix(targetExt, ".") {
		targetExt = "." + targetExt
	}
	return brand + targetExt
}

// NormalizeName ensures a declared filename carries a usable extension,
// defaulting to the primary container when none is present.
func NormalizeName(declared string) string {
	ext := strings.ToLower(filepath.Ext(declared))
	if ext == "" || ext == "." {
		return declared + PrimaryExt
	}
	return declared
}
