package pattern

import (
	"regexp"
	"strings"
)

// Entity kinds the extractor recognizes. Pattern rows and CEL predicates
// refer to these names.
const (
	KindPatients   = "patients"
	KindSubstances = "substances"
)

// Entities holds the spans recognized in one query, keyed by kind. Every
// kind is always present so CEL predicates can take size() without guards.
type Entities map[string][]string

// substanceLexicon lists the substances the extractor recognizes. It covers
// the bundled safety monographs plus common ward medications so patterns
// keep matching for substances the reference data does not know yet.
var substanceLexicon = []string{
	"amiodarone", "amoxicillin", "apixaban", "aspirin", "atorvastatin",
	"bisoprolol", "clarithromycin", "clopidogrel", "digoxin", "enoxaparin",
	"furosemide", "gentamicin", "heparin", "ibuprofen", "insulin",
	"lisinopril", "metformin", "methotrexate", "metoprolol", "naproxen",
	"omeprazole", "paracetamol", "penicillin", "prednisolone", "rivaroxaban",
	"sertraline", "simvastatin", "spironolactone", "vancomycin", "warfarin",
}

var (
	substanceRegex = regexp.MustCompile(`\b(` + strings.Join(substanceLexicon, "|") + `)\b`)
	substanceSet   = func() map[string]bool {
		set := make(map[string]bool, len(substanceLexicon))
		for _, s := range substanceLexicon {
			set[s] = true
		}
		return set
	}()

	// fullNameRegex finds runs of two or more capitalized words; leading
	// sentence-case verbs are trimmed against the stopword list below.
	fullNameRegex   = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)
	titledNameRegex = regexp.MustCompile(`\b(?:Mr|Ms|Mrs|Mx|Dr|[Pp]atient)\.?\s+([A-Z][a-z]+)`)
)

var nameStopwords = map[string]bool{
	"a": true, "about": true, "an": true, "and": true, "are": true,
	"can": true, "check": true, "compare": true, "could": true, "did": true,
	"do": true, "does": true, "dr": true, "find": true, "for": true,
	"give": true, "has": true, "have": true, "how": true, "i": true,
	"in": true, "is": true, "list": true, "look": true, "mr": true,
	"mrs": true, "ms": true, "mx": true, "my": true, "of": true,
	"on": true, "our": true, "patient": true, "please": true, "review": true,
	"should": true, "show": true, "tell": true, "the": true, "to": true,
	"up": true, "was": true, "were": true, "what": true, "who": true,
	"will": true, "would": true,
}

// Extract recognizes patient names and substances in a query. Extraction is
// lexicon and casing driven, not a model call, so it is cheap enough to run
// on every turn and deterministic enough for the router to rely on.
func Extract(query string) Entities {
	return Entities{
		KindPatients:   extractPatients(query),
		KindSubstances: extractSubstances(query),
	}
}

func extractSubstances(query string) []string {
	matches := substanceRegex.FindAllString(strings.ToLower(query), -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func extractPatients(query string) []string {
	out := make([]string, 0, 2)
	seen := make(map[string]bool, 2)
	appendName := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, span := range fullNameRegex.FindAllString(query, -1) {
		appendName(trimNameSpan(span))
	}
	for _, groups := range titledNameRegex.FindAllStringSubmatch(query, -1) {
		appendName(groups[1])
	}
	return out
}

// trimNameSpan drops sentence-case verbs from the front of a capitalized
// span and rejects spans that are really substance mentions. A single
// remaining token is too weak a signal to call a name.
func trimNameSpan(span string) string {
	tokens := strings.Fields(span)
	for _, token := range tokens {
		if substanceSet[strings.ToLower(token)] {
			return ""
		}
	}
	for len(tokens) > 0 && nameStopwords[strings.ToLower(tokens[0])] {
		tokens = tokens[1:]
	}
	if len(tokens) < 2 {
		return ""
	}
	return strings.Join(tokens, " ")
}

// Hints renders prompt-ready lines describing what was recognized. The tool
// selector includes them so stage-two argument prompts can quote the exact
// spans instead of paraphrasing them.
func (e Entities) Hints() []string {
	hints := make([]string, 0, 2)
	if substances := e[KindSubstances]; len(substances) > 0 {
		hints = append(hints, "Substances mentioned: "+strings.Join(substances, ", "))
	}
	if patients := e[KindPatients]; len(patients) > 0 {
		hints = append(hints, "Patient names mentioned: "+strings.Join(patients, ", "))
	}
	return hints
}

// celContext exposes the entity lists to CEL predicates.
func (e Entities) celContext() map[string]any {
	ctx := make(map[string]any, len(e))
	for kind, values := range e {
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = v
		}
		ctx[kind] = list
	}
	return ctx
}
