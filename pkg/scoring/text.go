package scoring

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	fencedCodeRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe  = regexp.MustCompile("`([^`]+)`")
	boldItalicRe  = regexp.MustCompile(`\*\*\*([^*]+)\*\*\*|___([^_]+)___`)
	boldRe        = regexp.MustCompile(`\*\*([^*]+)\*\*|__([^_]+)__`)
	italicRe      = regexp.MustCompile(`\*([^*\n]+)\*|\b_([^_\n]+)_\b`)
	linkRe        = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	listMarkerRe  = regexp.MustCompile(`^\s*(?:[-*+•]|\d+[.)])\s+`)
	headingRe     = regexp.MustCompile(`^\s*#{1,6}\s+`)
	tableRuleRe   = regexp.MustCompile(`^\s*\|?\s*:?-+:?\s*(\|\s*:?-+:?\s*)*\|?\s*$`)
	sentenceEndRe = regexp.MustCompile(`([.!?])\s+`)
	numberRe      = regexp.MustCompile(`\d+(?:[.,]\d+)*`)
	thousandsRe   = regexp.MustCompile(`^\d{1,3}(?:[.,]\d{3})+$`)
	wordRe        = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'’&-]*`)
)

// Normalize strips markdown syntax that carries no content: fenced code,
// inline emphasis, link targets, list markers, headings and table rules.
func Normalize(markdown string) string {
	text := fencedCodeRe.ReplaceAllString(markdown, "")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = boldItalicRe.ReplaceAllString(text, "$1$2")
	text = boldRe.ReplaceAllString(text, "$1$2")
	text = italicRe.ReplaceAllString(text, "$1$2")
	text = linkRe.ReplaceAllString(text, "$1")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if tableRuleRe.MatchString(line) && strings.Contains(line, "-") {
			continue
		}
		line = headingRe.ReplaceAllString(line, "")
		line = listMarkerRe.ReplaceAllString(line, "")
		line = strings.ReplaceAll(line, "|", " ")
		out = append(out, strings.TrimSpace(line))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Sentences splits normalized text into sentences. Line breaks always end
// a sentence so that bullet items count individually.
func Sentences(text string) []string {
	var sentences []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		marked := sentenceEndRe.ReplaceAllString(line, "$1\x00")
		for _, s := range strings.Split(marked, "\x00") {
			s = strings.TrimSpace(s)
			if hasWord(s) {
				sentences = append(sentences, s)
			}
		}
	}
	return sentences
}

func hasWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// Words returns the word tokens of text
func Words(text string) []string {
	return wordRe.FindAllString(text, -1)
}

// WordCount counts the words of a markdown draft after normalization
func WordCount(markdown string) int {
	return len(Words(Normalize(markdown)))
}

// Numbers extracts normalized numeric tokens in order of appearance.
func Numbers(text string) []string {
	raw := numberRe.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, n := range raw {
		out = append(out, normalizeNumber(n))
	}
	return out
}

func normalizeNumber(n string) string {
	if thousandsRe.MatchString(n) {
		n = strings.NewReplacer(",", "", ".", "").Replace(n)
	} else {
		n = strings.ReplaceAll(n, ",", ".")
	}
	if strings.Count(n, ".") == 1 {
		n = strings.TrimRight(n, "0")
		n = strings.TrimSuffix(n, ".")
	}
	n = strings.TrimLeft(n, "0")
	if n == "" || strings.HasPrefix(n, ".") {
		n = "0" + n
	}
	return n
}

// lowerCollapse lower-cases text and collapses whitespace runs
func lowerCollapse(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// properNouns returns capitalized words that are not the first word of
// the sentence and not stopwords.
func properNouns(sentence string, stop map[string]struct{}) []string {
	words := Words(sentence)
	var out []string
	for i, w := range words {
		if i == 0 {
			continue
		}
		r := []rune(w)
		if !unicode.IsUpper(r[0]) {
			continue
		}
		if _, isStop := stop[strings.ToLower(w)]; isStop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// significantTerms returns the distinct lower-case words of length >= 4
// that are not stopwords, sorted.
func significantTerms(text string, stop map[string]struct{}) []string {
	seen := make(map[string]struct{})
	for _, w := range Words(strings.ToLower(text)) {
		if len([]rune(w)) < 4 {
			continue
		}
		if _, isStop := stop[w]; isStop {
			continue
		}
		seen[w] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// countPhrases counts case-insensitive whole-word occurrences of each phrase
// in text and returns the total plus the distinct phrases found, sorted.
func countPhrases(text string, phrases []string) (int, []string) {
	padded := " " + lowerCollapse(punctToSpace(text)) + " "
	total := 0
	var found []string
	for _, p := range phrases {
		needle := " " + lowerCollapse(punctToSpace(p)) + " "
		if strings.TrimSpace(needle) == "" {
			continue
		}
		if n := strings.Count(padded, needle); n > 0 {
			total += n
			found = append(found, p)
		}
	}
	sort.Strings(found)
	return total, found
}

func punctToSpace(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '[' || r == ']' {
			return r
		}
		return ' '
	}, text)
}
