package prompt

import (
	"fmt"
	"os"
	"strings"
)

const (
	// TranscriptPlaceholder marks where the transcript text is inserted.
	TranscriptPlaceholder = "<<TRANSCRIPTION>>"
	// TemplatePlaceholder marks where the note template JSON is inserted.
	TemplatePlaceholder = "<<TEMPLATE>>"
)

// Compose reads the prompt template at promptPath and substitutes every
// occurrence of the transcript and template placeholders with the given
// texts. The template JSON is inserted verbatim, with no escaping, so a
// valid JSON document in the template appears inline in the prompt
// unchanged. A placeholder absent from the template is silently skipped.
func Compose(promptPath, transcript, templateJSON string) (string, error) {
	data, err := os.ReadFile(promptPath)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt template %s: %w", promptPath, err)
	}

	text := string(data)
	text = strings.ReplaceAll(text, TranscriptPlaceholder, transcript)
	text = strings.ReplaceAll(text, TemplatePlaceholder, templateJSON)

	return text, nil
}
