package entity

import (
	"fmt"
	"strings"
)

type Format string

const (
	FormatWebP Format = "webp"
	FormatGIF  Format = "gif"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// OutputFormats lists the formats a download may be converted to.
var OutputFormats = []Format{FormatWebP, FormatGIF, FormatPNG}

// ParseFormat accepts one of the output formats, case-insensitive. Empty input yields webp.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FormatWebP, nil
	}

	for _, f := range OutputFormats {
		if string(f) == s {
			return f, nil
		}
	}

	return "", fmt.Errorf("unknown format %q", s)
}

func (f Format) String() string {
	return string(f)
}

// Extension returns the file extension without the leading dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}

	return string(f)
}

// DownloadOptions configures one pipeline run.
type DownloadOptions struct {
	OutputFormat      Format
	RetainOriginal    bool   // Keep pre-conversion bytes next to the converted ones
	CustomArchiveName string // Overrides the pack title as archive name
}

func DefaultDownloadOptions() DownloadOptions {
	return DownloadOptions{
		OutputFormat: FormatWebP,
	}
}
