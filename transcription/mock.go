package transcription

import "github.com/nijaru/yt-clip/subtitles"

// MockTranscript is returned when no model is available or inference fails.
func MockTranscript(lang Language) subtitles.Track {
	if lang == Spanish {
		return subtitles.Track{
			{Start: 0, End: 2.5, Text: "Este es un subtítulo de ejemplo en Español."},
			{Start: 3, End: 5.5, Text: "Será reemplazado con transcripción real."},
			{Start: 6, End: 9, Text: "Cuando el modelo Whisper esté funcionando correctamente."},
		}
	}
	return subtitles.Track{
		{Start: 0, End: 2.5, Text: "This is a sample subtitle in English."},
		{Start: 3, End: 5.5, Text: "It will be replaced with actual transcription."},
		{Start: 6, End: 9, Text: "When the Whisper model is working correctly."},
	}
}
