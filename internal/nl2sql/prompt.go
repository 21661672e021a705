package nl2sql

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/nlsql/nlsql/internal/training"
)

const sqlSystemPrompt = "You are a PostgreSQL expert. Generate a single SQL query that answers the user's question. " +
	"Use only the tables and columns described in the context. " +
	"Return ONLY SQL. No markdown, no explanation."

const questionSystemPrompt = "You suggest questions a business user could ask about a PostgreSQL database. " +
	"Return one question per line. No numbering, no explanation."

var listMarkerPattern = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

type retrievedContext struct {
	DDL           []string
	Documentation []string
	Examples      []training.Unit
}

// retrieveContext picks up to limit units of each kind, ranked by how many distinct question
// tokens they share. Ties keep store order.
func retrieveContext(units []training.Unit, question string, limit int) retrievedContext {
	if limit <= 0 {
		limit = 10
	}
	terms := tokenize(question)

	type scored struct {
		unit  training.Unit
		score int
	}
	byKind := map[training.Kind][]scored{}
	for _, unit := range units {
		text := unit.Content
		if unit.Question != "" {
			text = unit.Question + " " + unit.Content
		}
		byKind[unit.Kind] = append(byKind[unit.Kind], scored{unit: unit, score: overlap(terms, tokenize(text))})
	}

	top := func(kind training.Kind) []training.Unit {
		items := byKind[kind]
		sort.SliceStable(items, func(i, j int) bool { return items[i].score > items[j].score })
		if len(items) > limit {
			items = items[:limit]
		}
		out := make([]training.Unit, 0, len(items))
		for _, item := range items {
			out = append(out, item.unit)
		}
		return out
	}

	ctx := retrievedContext{Examples: top(training.KindSQL)}
	for _, unit := range top(training.KindDDL) {
		ctx.DDL = append(ctx.DDL, unit.Content)
	}
	for _, unit := range top(training.KindDocumentation) {
		ctx.Documentation = append(ctx.Documentation, unit.Content)
	}
	return ctx
}

func buildSQLPrompt(question string, ctx retrievedContext) string {
	var b strings.Builder
	if len(ctx.DDL) > 0 {
		b.WriteString("===Tables\n")
		for _, ddl := range ctx.DDL {
			b.WriteString(ddl)
			b.WriteString("\n\n")
		}
	}
	if len(ctx.Documentation) > 0 {
		b.WriteString("===Additional Context\n")
		for _, doc := range ctx.Documentation {
			b.WriteString(doc)
			b.WriteString("\n\n")
		}
	}
	if len(ctx.Examples) > 0 {
		b.WriteString("===Question-SQL Examples\n")
		for _, example := range ctx.Examples {
			fmt.Fprintf(&b, "Question: %s\nSQL: %s\n\n", example.Question, example.Content)
		}
	}
	b.WriteString("===Question\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nRules:\n- Output a single SQL query only.\n- Prefer explicit column names.")
	return b.String()
}

func buildQuestionPrompt(ctx retrievedContext, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest %d questions that can be answered with SQL against this database.\n\n", count)
	for _, ddl := range ctx.DDL {
		b.WriteString(ddl)
		b.WriteString("\n\n")
	}
	for _, doc := range ctx.Documentation {
		b.WriteString(doc)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func parseQuestionLines(output string, limit int) []string {
	questions := make([]string, 0)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(listMarkerPattern.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		questions = append(questions, line)
		if limit > 0 && len(questions) >= limit {
			break
		}
	}
	return questions
}

func tokenize(text string) map[string]struct{} {
	tokens := map[string]struct{}{}
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, field := range fields {
		if len(field) < 2 {
			continue
		}
		tokens[field] = struct{}{}
	}
	return tokens
}

func overlap(terms, candidate map[string]struct{}) int {
	score := 0
	for term := range terms {
		if _, ok := candidate[term]; ok {
			score++
		}
	}
	return score
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
