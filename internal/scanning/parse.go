package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// textScanPrompt is shared by the LLM engines
const textScanPrompt = `You are reading a photo of medicine packaging. Transcribe ALL printed text you can see,
line by line, exactly as printed. Pay special attention to registration numbers such as
"NAFDAC REG. NO: A4-1234" and batch numbers.

Then estimate how confident you are that the transcription is correct, from 0 (unreadable)
to 100 (perfectly legible).

Return ONLY valid JSON in this exact format:
{
  "text": "transcribed text",
  "confidence": 0
}

Important:
- Do not guess characters you cannot see; lower the confidence instead
- Use an empty string for text if nothing is legible
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// textData is the JSON contract of the LLM engines
type textData struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// parseTextJSON extracts the first JSON object from an LLM reply
func parseTextJSON(text string) (*textData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	var data textData
	if err := json.Unmarshal([]byte(text[startIdx:endIdx+1]), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Text = strings.TrimSpace(data.Text)
	data.Confidence = clampConfidence(data.Confidence)

	return &data, nil
}
