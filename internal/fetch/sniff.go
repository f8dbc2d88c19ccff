package fetch

import "bytes"

// Accepted audio content types
var allowedTypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/mp3":   true,
	"audio/wav":   true,
	"audio/wave":  true,
	"audio/x-wav": true,
}

// AllowedType reports whether the declared content type is one we accept.
func AllowedType(contentType string) bool {
	return allowedTypes[contentType]
}

// LooksLikeMP3 checks the leading bytes for an ID3 tag or an MPEG frame
// sync (0xFF followed by 0xE0 bits set).
func LooksLikeMP3(head []byte) bool {
	if len(head) < 3 {
		return false
	}
	if bytes.HasPrefix(head, []byte("ID3")) {
		return true
	}
	return head[0] == 0xFF && head[1]&0xE0 == 0xE0
}

// LooksLikeWAV checks for the RIFF....WAVE container header.
func LooksLikeWAV(head []byte) bool {
	if len(head) < 12 {
		return false
	}
	return bytes.HasPrefix(head, []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE"))
}

// MatchesDeclaredType verifies the file's magic bytes agree with the
// declared content type. Unknown declared types always fail.
func MatchesDeclaredType(head []byte, contentType string) bool {
	switch contentType {
	case "audio/mpeg", "audio/mp3":
		return LooksLikeMP3(head)
	case "audio/wav", "audio/wave", "audio/x-wav":
		return LooksLikeWAV(head)
	default:
		return false
	}
}
