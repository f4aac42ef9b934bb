// Package promptbuilder composes and budgets the free-text sections the
// decomposer and per-subquery subgraph embed in their LLM prompts:
// schema context, retrieved chunks, and refiner feedback. Grounded on
// the teacher's pkg/agent/prompt/builder.go (stateless section
// composition from parameters, no mutable state) and pkg/mcp/tokens.go
// (truncate-at-line-boundary with a trailing marker, char-count
// fallback), generalized to use a real tokenizer where the teacher used
// a 4-chars-per-token heuristic.
package promptbuilder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/nl2sql-engine/core/pkg/retrieval"
)

// charsPerToken is the fallback heuristic's ratio, used only when the
// tiktoken encoding could not be loaded.
const charsPerToken = 4

// DefaultSchemaContextBudget bounds the serialized relevant-tables
// section of a planning prompt, per spec.md §6's prompt_token_budget.
const DefaultSchemaContextBudget = 4000

// DefaultCandidateContextBudget bounds the serialized vector-candidate
// section of a decomposition prompt.
const DefaultCandidateContextBudget = 2000

// Builder counts and truncates prompt text against a token budget.
// Stateless beyond the cached encoder; safe for concurrent use.
type Builder struct {
	enc *tiktoken.Tiktoken
}

// New constructs a Builder. If the cl100k_base encoding cannot be
// loaded (offline environments with no cached BPE ranks), CountTokens
// falls back to the char-count heuristic rather than failing — token
// budgeting is a soft limit, not a correctness requirement.
func New() *Builder {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Builder{}
	}
	return &Builder{enc: enc}
}

// CountTokens returns text's token count using the real tokenizer when
// available, or the 4-chars-per-token heuristic otherwise.
func (b *Builder) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if b.enc != nil {
		return len(b.enc.Encode(text, nil, nil))
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// TruncateToTokens cuts text at the last newline before maxTokens,
// appending a marker noting the original and truncated sizes. Returns
// text unchanged if it already fits.
func (b *Builder) TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 || b.CountTokens(text) <= maxTokens {
		return text
	}

	// Binary search for the largest prefix (by rune boundary, then line
	// boundary) that fits within maxTokens, avoiding a token-by-token
	// re-encode of the whole text on every trim.
	lo, hi := 0, len(text)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if b.CountTokens(text[:mid]) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	cut := lo
	for cut > 0 && !isRuneStart(text, cut) {
		cut--
	}
	truncated := text[:cut]
	if idx := strings.LastIndex(truncated, "\n"); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + fmt.Sprintf("\n\n[TRUNCATED: prompt section exceeded its token budget — original %d tokens, limit %d]", b.CountTokens(text), maxTokens)
}

func isRuneStart(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}

// FormatRelevantTables renders the schema section of a planning prompt,
// one line per table (name, columns, primary key, foreign-key count),
// dropping lowest-priority tables from the end of the (already
// relevance-ordered) slice until the rendered section fits maxTokens.
func (b *Builder) FormatRelevantTables(tables []models.RelevantTable, maxTokens int) string {
	lines := make([]string, len(tables))
	for i, t := range tables {
		cols := make([]string, 0, len(t.Columns))
		for name := range t.Columns {
			cols = append(cols, name)
		}
		sort.Strings(cols)
		lines[i] = fmt.Sprintf("- %s(%s) pk=%v fks=%d", t.Name, strings.Join(cols, ", "), t.PrimaryKey, len(t.ForeignKeys))
	}

	for n := len(lines); n > 0; n-- {
		section := strings.Join(lines[:n], "\n")
		if b.CountTokens(section) <= maxTokens || n == 1 {
			if n < len(lines) {
				section += fmt.Sprintf("\n[TRUNCATED: %d lower-priority table(s) omitted to fit the schema context budget]", len(lines)-n)
			}
			return section
		}
	}
	return ""
}

// FormatCandidateChunks renders a vector-candidate section, truncated to
// maxTokens at a line boundary. Used by the decomposer when the
// retrieved candidate set is large enough to risk crowding out the
// user's question itself.
func (b *Builder) FormatCandidateChunks(chunks []retrieval.Chunk, maxTokens int) string {
	lines := make([]string, 0, len(chunks))
	for _, c := range chunks {
		lines = append(lines, "- "+c.DatasourceID+": "+c.Description)
	}
	return b.TruncateToTokens(strings.Join(lines, "\n"), maxTokens)
}
