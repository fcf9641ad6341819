package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/readably/api/internal/client"
	"github.com/readably/api/internal/model"
	"github.com/readably/api/internal/stage"
)

// transformerAdapter builds prompts for the LLM, parses its JSON output into
// content blocks and vocabulary items, and normalizes field naming at the
// boundary so the rest of the pipeline only ever sees camelCase.
type transformerAdapter struct {
	client *client.TransformerClient
}

// NewTransformer returns the transformation collaborator. An unconfigured
// client falls back to a heuristic mock so the pipeline stays runnable
// without an API key.
func NewTransformer(c *client.TransformerClient) Transformer {
	return &transformerAdapter{client: c}
}

const transformSystemPrompt = `You convert textbook passages into dyslexia-friendly content blocks.
Output a JSON array only, no prose. Each element is one of:
{"type":"TEXT","text":"..."} short sentences, simple words
{"type":"HEADING","text":"...","level":1}
{"type":"LIST","items":["..."]}
{"type":"TABLE","rows":[["..."]]}
{"type":"PAGE_IMAGE","imagePrompt":"..."} a concrete scene description for an illustration
Preserve the meaning and order of the source text.`

const vocabularySystemPrompt = `You identify words in a sentence that are difficult for dyslexic readers.
Output a JSON array only, no prose. Each element:
{"word":"...","startIndex":0,"endIndex":0,"definition":"...","simplifiedDefinition":"...","examples":["..."],"difficultyLevel":"easy|medium|hard","gradeLevel":3}
startIndex and endIndex are rune offsets of the word within the sentence.
Pick at most five words. If nothing qualifies, pick the single hardest word.`

// rawBlock tolerates the naming variants the model emits before the block is
// normalized into the canonical shape.
type rawBlock struct {
	Type        string     `json:"type"`
	Text        string     `json:"text"`
	Level       int        `json:"level"`
	Items       []string   `json:"items"`
	Rows        [][]string `json:"rows"`
	ImagePrompt string     `json:"imagePrompt"`
	ImageSnake  string     `json:"image_prompt"`
}

func (a *transformerAdapter) TransformChunk(ctx context.Context, chunk model.ExtractedChunk, opts model.ProcessingOptions) ([]model.ContentBlock, error) {
	if a.client == nil || !a.client.IsConfigured() {
		return a.transformMock(chunk, opts), nil
	}

	system := transformSystemPrompt
	if opts.WordLimit > 0 {
		system += fmt.Sprintf("\nKeep each TEXT block under %d words.", opts.WordLimit)
	}

	user := fmt.Sprintf("Page %d passage:\n%s", chunk.PageNumber, chunk.Text)
	raw, err := a.client.Complete(ctx, system, user)
	if err != nil {
		return nil, classifyHTTP(err, "transformer")
	}

	blocks, err := a.parseBlocks(raw, chunk)
	if err != nil {
		return nil, stage.Permanent(model.ErrCodeCollaboratorFailure, "transformer returned malformed content", err)
	}
	return blocks, nil
}

func (a *transformerAdapter) parseBlocks(raw string, chunk model.ExtractedChunk) ([]model.ContentBlock, error) {
	var rawBlocks []rawBlock
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &rawBlocks); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	if len(rawBlocks) == 0 {
		return nil, fmt.Errorf("no blocks in response")
	}

	blocks := make([]model.ContentBlock, 0, len(rawBlocks))
	for i, rb := range rawBlocks {
		block := model.ContentBlock{
			// Derived from the source chunk so ids stay stable when the
			// stage is retried.
			BlockID:       fmt.Sprintf("%s-b%d", chunk.ChunkID, i+1),
			PageNumber:    chunk.PageNumber,
			SourceChunkID: chunk.ChunkID,
			Type:          normalizeBlockType(rb.Type),
			Text:          rb.Text,
			Level:         rb.Level,
			Items:         rb.Items,
			Rows:          rb.Rows,
			ImagePrompt:   rb.ImagePrompt,
		}
		if block.ImagePrompt == "" {
			block.ImagePrompt = rb.ImageSnake
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// normalizeBlockType maps model output onto the canonical block types.
// Unknown types degrade to TEXT rather than failing the chunk.
func normalizeBlockType(t string) model.BlockType {
	canon := model.BlockType(strings.ToUpper(strings.TrimSpace(t)))
	if canon == "IMAGE" {
		canon = model.BlockTypePageImage
	}
	for _, valid := range model.ValidBlockTypes {
		if canon == valid {
			return canon
		}
	}
	return model.BlockTypeText
}

// rawVocabularyItem tolerates snake_case index fields.
type rawVocabularyItem struct {
	Word                 string          `json:"word"`
	StartIndex           int             `json:"startIndex"`
	EndIndex             int             `json:"endIndex"`
	StartSnake           int             `json:"start_index"`
	EndSnake             int             `json:"end_index"`
	Definition           string          `json:"definition"`
	SimplifiedDefinition string          `json:"simplifiedDefinition"`
	SimplifiedSnake      string          `json:"simplified_definition"`
	Examples             []string        `json:"examples"`
	DifficultyLevel      string          `json:"difficultyLevel"`
	DifficultySnake      string          `json:"difficulty_level"`
	GradeLevel           int             `json:"gradeLevel"`
	GradeSnake           int             `json:"grade_level"`
	Phonemes             json.RawMessage `json:"phonemes"`
}

func (a *transformerAdapter) AnalyzeVocabulary(ctx context.Context, text string, opts model.ProcessingOptions) ([]model.VocabularyItem, error) {
	if a.client == nil || !a.client.IsConfigured() {
		return a.vocabularyMock(text), nil
	}

	system := vocabularySystemPrompt
	if opts.EnablePhonemes {
		system += "\nAlso include a \"phonemes\" object per item: {\"syllables\":[\"...\"],\"sounds\":[\"...\"]}."
	}

	raw, err := a.client.Complete(ctx, system, text)
	if err != nil {
		return nil, classifyHTTP(err, "transformer")
	}

	var rawItems []rawVocabularyItem
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &rawItems); err != nil {
		return nil, stage.Permanent(model.ErrCodeCollaboratorFailure, "vocabulary analysis returned malformed content", err)
	}

	items := make([]model.VocabularyItem, 0, len(rawItems))
	for _, ri := range rawItems {
		if ri.Word == "" {
			continue
		}
		item := model.VocabularyItem{
			Word:                 ri.Word,
			StartIndex:           firstNonZero(ri.StartIndex, ri.StartSnake),
			EndIndex:             firstNonZero(ri.EndIndex, ri.EndSnake),
			Definition:           ri.Definition,
			SimplifiedDefinition: firstNonEmpty(ri.SimplifiedDefinition, ri.SimplifiedSnake),
			Examples:             ri.Examples,
			DifficultyLevel:      firstNonEmpty(ri.DifficultyLevel, ri.DifficultySnake),
			GradeLevel:           firstNonZero(ri.GradeLevel, ri.GradeSnake),
		}
		if len(ri.Phonemes) > 0 {
			item.PhonemeAnalysis = string(ri.Phonemes)
		}
		items = append(items, item)
	}
	return items, nil
}

// Mock implementations for development/testing

func (a *transformerAdapter) transformMock(chunk model.ExtractedChunk, opts model.ProcessingOptions) []model.ContentBlock {
	text := chunk.Text
	if opts.WordLimit > 0 {
		text = limitWords(text, opts.WordLimit)
	}
	blocks := []model.ContentBlock{
		{
			BlockID:       fmt.Sprintf("%s-b1", chunk.ChunkID),
			PageNumber:    chunk.PageNumber,
			SourceChunkID: chunk.ChunkID,
			Type:          model.BlockTypeText,
			Text:          text,
		},
	}
	if opts.EnableImages {
		blocks = append(blocks, model.ContentBlock{
			BlockID:       fmt.Sprintf("%s-b2", chunk.ChunkID),
			PageNumber:    chunk.PageNumber,
			SourceChunkID: chunk.ChunkID,
			Type:          model.BlockTypePageImage,
			ImagePrompt:   fmt.Sprintf("A simple illustration of: %s", firstSentence(chunk.Text)),
		})
	}
	return blocks
}

// vocabularyMock picks the longest word in the sentence, so every analyzed
// block yields at least one item.
func (a *transformerAdapter) vocabularyMock(text string) []model.VocabularyItem {
	word, start := longestWord(text)
	if word == "" {
		return nil
	}
	return []model.VocabularyItem{
		{
			Word:                 word,
			StartIndex:           start,
			EndIndex:             start + len(word),
			Definition:           fmt.Sprintf("Definition of %q.", word),
			SimplifiedDefinition: fmt.Sprintf("What %q means, in simple words.", word),
			DifficultyLevel:      "medium",
			GradeLevel:           5,
		},
	}
}

func longestWord(text string) (string, int) {
	best, bestStart := "", 0
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start > len(best) {
			best, bestStart = text[start:i], start
		}
		start = -1
	}
	if start >= 0 && len(text)-start > len(best) {
		best, bestStart = text[start:], start
	}
	return best, bestStart
}

func limitWords(text string, n int) string {
	words := strings.Fields(text)
	if n <= 0 || len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ")
}

func firstSentence(text string) string {
	if i := strings.IndexAny(text, ".!?"); i > 0 {
		return text[:i+1]
	}
	return text
}

// extractJSONArray trims prose and code fences around the first JSON array.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}
