package audio

import "bytes"

// Format describes a detected audio container.
type Format struct {
	Ext  string
	MIME string
}

var unknownFormat = Format{Ext: "m4a", MIME: "audio/m4a"}

// DetectFormat sniffs the container of an uploaded audio blob from its magic
// bytes. Mobile recorders mostly produce m4a, so that is the fallback when
// nothing matches; Whisper accepts the blob either way, the name only has to
// carry a plausible extension.
func DetectFormat(data []byte) Format {
	if len(data) < 12 {
		return unknownFormat
	}

	switch {
	case bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return Format{Ext: "wav", MIME: "audio/wav"}
	case bytes.HasPrefix(data, []byte("OggS")):
		return Format{Ext: "ogg", MIME: "audio/ogg"}
	case bytes.HasPrefix(data, []byte("fLaC")):
		return Format{Ext: "flac", MIME: "audio/flac"}
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return Format{Ext: "webm", MIME: "audio/webm"}
	case bytes.HasPrefix(data, []byte("ID3")):
		return Format{Ext: "mp3", MIME: "audio/mpeg"}
	case data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// Raw MPEG audio frame sync.
		return Format{Ext: "mp3", MIME: "audio/mpeg"}
	case bytes.Equal(data[4:8], []byte("ftyp")):
		return Format{Ext: "m4a", MIME: "audio/m4a"}
	default:
		return unknownFormat
	}
}
