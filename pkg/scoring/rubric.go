package scoring

import "strings"

// Rubric holds the phrase lists the heuristics match against. All
// matching is case-insensitive on whole words.
type Rubric struct {
	// Placeholders are generic nouns and phrases that stand in for a
	// concrete subject.
	Placeholders []string `yaml:"placeholders" mapstructure:"placeholders"`
	// Hedges are vague qualifiers that weaken a statement.
	Hedges []string `yaml:"hedges" mapstructure:"hedges"`
	// Verbs are concrete action verbs.
	Verbs []string `yaml:"verbs" mapstructure:"verbs"`
	// Deliverables are nouns naming a tangible outcome.
	Deliverables []string `yaml:"deliverables" mapstructure:"deliverables"`
	// Stopwords are ignored when comparing terms and proper nouns.
	Stopwords []string `yaml:"stopwords" mapstructure:"stopwords"`
}

// DefaultRubric returns the built-in English and German rubric
func DefaultRubric() *Rubric {
	return &Rubric{
		Placeholders: []string{
			"the system", "the solution", "the platform", "the tool", "the process",
			"many users", "some users", "various",
			"several", "a number of", "etc", "and so on", "things", "stuff", "something",
			"significant", "improved efficiency", "better results", "lorem ipsum",
			"tbd", "to be defined", "n/a", "[placeholder]", "xyz",
			"das system", "die lösung", "viele nutzer", "verschiedene", "diverse", "usw",
		},
		Hedges: []string{
			"might", "may", "could", "possibly", "perhaps", "potentially", "maybe",
			"probably", "somewhat", "arguably", "it seems", "hopefully", "likely",
			"in some cases", "to some extent",
			"vielleicht", "eventuell", "möglicherweise", "wahrscheinlich", "könnte",
		},
		Verbs: []string{
			"build", "built", "deliver", "delivered", "deploy", "deployed", "implement",
			"implemented", "integrate", "integrated", "migrate", "automate", "automated",
			"reduce", "reduced", "increase", "increased", "create", "created", "design",
			"designed", "launch", "launched", "ship", "test", "tested", "validate",
			"validated", "measure", "define", "prioritize", "train", "trained", "connect",
			"extract", "develop", "developed", "replace", "schedule", "review", "present",
			"set up", "roll out",
			"entwickeln", "entwickelt", "implementieren", "umsetzen", "automatisieren",
			"reduzieren", "integrieren", "liefern", "testen", "validieren",
		},
		Deliverables: []string{
			"prototype", "mvp", "dashboard", "api", "report", "pipeline", "model",
			"workshop", "roadmap", "milestone", "sprint", "backlog", "demo", "pilot",
			"integration", "deployment", "release", "proof of concept", "poc", "kpi",
			"deadline", "owner", "budget",
			"prototyp", "meilenstein", "bericht",
		},
		Stopwords: []string{
			"the", "a", "an", "and", "or", "but", "of", "to", "in", "on", "for", "with",
			"by", "at", "from", "as", "is", "are", "was", "were", "be", "been", "this",
			"that", "these", "those", "it", "its", "we", "our", "they", "their", "will",
			"would", "can", "into", "over", "than", "then", "also", "more", "most",
			"which", "while", "during", "after", "before", "about", "there", "have",
			"has", "had", "each", "within", "per", "via", "i", "ii", "iii",
			"der", "die", "das", "und", "oder", "mit", "für", "von", "ein", "eine",
			"wir", "sie", "nicht", "auf", "aus", "bei", "nach", "wird", "werden",
		},
	}
}

// Extend returns a copy of r with the entries of extra appended to each
// list. Entries already present are skipped, ignoring case.
func (r *Rubric) Extend(extra *Rubric) *Rubric {
	if extra == nil {
		return r
	}
	return &Rubric{
		Placeholders: mergeTerms(r.Placeholders, extra.Placeholders),
		Hedges:       mergeTerms(r.Hedges, extra.Hedges),
		Verbs:        mergeTerms(r.Verbs, extra.Verbs),
		Deliverables: mergeTerms(r.Deliverables, extra.Deliverables),
		Stopwords:    mergeTerms(r.Stopwords, extra.Stopwords),
	}
}

func mergeTerms(base, extra []string) []string {
	out := append([]string(nil), base...)
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, t := range base {
		seen[strings.ToLower(t)] = struct{}{}
	}
	for _, t := range extra {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func (r *Rubric) stopSet() map[string]struct{} {
	stop := make(map[string]struct{}, len(r.Stopwords))
	for _, w := range r.Stopwords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return stop
}
