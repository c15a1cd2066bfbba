package sniff

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Supported image MIME types.
const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeWEBP = "image/webp"
	MimeGIF  = "image/gif"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// DetectMime inspects the leading bytes of an image and returns its MIME
// type. Only the formats the analyzer accepts are recognized.
func DetectMime(data []byte) (string, error) {
	switch {
	case len(data) >= 8 && bytes.Equal(data[:8], pngMagic):
		return MimePNG, nil
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return MimeJPEG, nil
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return MimeWEBP, nil
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return MimeGIF, nil
	}
	return "", fmt.Errorf("unrecognized image format")
}

// IsSupported reports whether the MIME type is one the pipeline accepts.
func IsSupported(mimeType string) bool {
	switch mimeType {
	case MimePNG, MimeJPEG, MimeWEBP, MimeGIF:
		return true
	}
	return false
}

// ExtensionFor returns the canonical file extension (without dot) for a
// supported MIME type, used when naming uploaded objects.
func ExtensionFor(mimeType string) string {
	switch mimeType {
	case MimePNG:
		return "png"
	case MimeJPEG:
		return "jpg"
	case MimeWEBP:
		return "webp"
	case MimeGIF:
		return "gif"
	}
	return "bin"
}

// DetermineMime resolves the MIME type for an upload: the magic bytes win,
// then the filename extension, then whatever the client claimed.
func DetermineMime(data []byte, filename, headerMime string) string {
	if detected, err := DetectMime(data); err == nil {
		return detected
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return MimePNG
	case ".jpg", ".jpeg":
		return MimeJPEG
	case ".webp":
		return MimeWEBP
	case ".gif":
		return MimeGIF
	}

	return headerMime
}
