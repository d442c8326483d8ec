// Package medsafety is the demo medication-safety reference tool: a small
// in-memory set of monographs with interaction pairs, contraindications,
// and monitoring notes.
package medsafety

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/roundslab/rounds/engine/schema"
	"github.com/roundslab/rounds/engine/tool"
)

const (
	Name  = "medication_safety"
	Label = "medication safety data"
)

type interaction struct {
	With     string `json:"with"`
	Severity string `json:"severity"`
	Note     string `json:"note"`
}

type monograph struct {
	Substance         string        `json:"substance"`
	Class             string        `json:"class"`
	Contraindications []string      `json:"contraindications"`
	Interactions      []interaction `json:"interactions"`
	Monitoring        string        `json:"monitoring"`
}

var monographs = map[string]monograph{
	"warfarin": {
		Substance:         "warfarin",
		Class:             "vitamin K antagonist anticoagulant",
		Contraindications: []string{"active major bleeding", "pregnancy"},
		Interactions: []interaction{
			{With: "clarithromycin", Severity: "major", Note: "macrolide inhibition raises INR; avoid or intensify INR monitoring"},
			{With: "aspirin", Severity: "major", Note: "additive bleeding risk"},
			{With: "simvastatin", Severity: "moderate", Note: "may potentiate anticoagulation"},
		},
		Monitoring: "INR at least weekly during any interacting course",
	},
	"apixaban": {
		Substance:         "apixaban",
		Class:             "direct factor Xa inhibitor",
		Contraindications: []string{"active major bleeding", "severe hepatic impairment"},
		Interactions: []interaction{
			{With: "clarithromycin", Severity: "moderate", Note: "CYP3A4/P-gp inhibition raises exposure"},
			{With: "aspirin", Severity: "moderate", Note: "additive bleeding risk"},
		},
		Monitoring: "renal function at least annually",
	},
	"metformin": {
		Substance:         "metformin",
		Class:             "biguanide antihyperglycaemic",
		Contraindications: []string{"eGFR below 30", "acute metabolic acidosis"},
		Interactions: []interaction{
			{With: "iodinated contrast", Severity: "major", Note: "withhold around contrast imaging; lactic acidosis risk"},
		},
		Monitoring: "renal function every 6 to 12 months",
	},
	"clarithromycin": {
		Substance:         "clarithromycin",
		Class:             "macrolide antibiotic",
		Contraindications: []string{"history of QT prolongation", "concurrent simvastatin"},
		Interactions: []interaction{
			{With: "warfarin", Severity: "major", Note: "raises INR"},
			{With: "simvastatin", Severity: "major", Note: "myopathy and rhabdomyolysis risk; suspend statin during course"},
			{With: "apixaban", Severity: "moderate", Note: "raises anticoagulant exposure"},
		},
		Monitoring: "QT interval when combined with other QT-prolonging agents",
	},
	"simvastatin": {
		Substance:         "simvastatin",
		Class:             "HMG-CoA reductase inhibitor",
		Contraindications: []string{"active liver disease", "concurrent strong CYP3A4 inhibitors"},
		Interactions: []interaction{
			{With: "clarithromycin", Severity: "major", Note: "myopathy and rhabdomyolysis risk"},
			{With: "warfarin", Severity: "moderate", Note: "may potentiate anticoagulation"},
		},
		Monitoring: "creatine kinase if muscle symptoms develop",
	},
	"bisoprolol": {
		Substance:         "bisoprolol",
		Class:             "cardioselective beta blocker",
		Contraindications: []string{"severe bradycardia", "decompensated heart failure"},
		Interactions:      []interaction{},
		Monitoring:        "heart rate and blood pressure after dose changes",
	},
}

// Definition returns the registered tool definition.
func Definition() *tool.Definition {
	return &tool.Definition{
		Name:        Name,
		Label:       Label,
		Category:    "safety",
		Description: "Returns reference safety data for a medication: interactions, contraindications, and monitoring. Optionally checks one specific interaction pair.",
		ReadOnly:    true,
		Args: &schema.Contract{
			Name:        Name + "_args",
			Description: "Arguments for the medication safety lookup.",
			Fields: []schema.Field{
				{
					Name: "substance", Type: "string", Required: true,
					Description: "Medication to look up, generic name preferred.",
				},
				{
					Name: "interacting_with", Type: "string",
					Description: "Second medication to check a specific interaction against.",
				},
			},
		},
		Handler: handle,
		Format:  format,
	}
}

type pairCheck struct {
	Substance       string `json:"substance"`
	InteractingWith string `json:"interacting_with"`
	Severity        string `json:"severity"`
	Note            string `json:"note,omitempty"`
}

func handle(_ context.Context, args map[string]any) (json.RawMessage, error) {
	substanceArg, _ := args["substance"].(string)
	substance := normalize(substanceArg)
	if substance == "" {
		return nil, &tool.CategoryError{
			Category: tool.ErrorInvalidArgs,
			Reason:   "blank substance after trimming",
			Field:    "substance",
		}
	}
	entry, ok := monographs[substance]
	if !ok {
		return nil, &tool.CategoryError{
			Category: tool.ErrorNotFound,
			Reason:   "substance not in reference set",
		}
	}
	otherArg, _ := args["interacting_with"].(string)
	other := normalize(otherArg)
	if other == "" {
		return json.Marshal(entry)
	}
	if _, known := monographs[other]; !known {
		return nil, &tool.CategoryError{
			Category: tool.ErrorNotFound,
			Reason:   "interacting substance not in reference set",
			Field:    "interacting_with",
		}
	}
	check := pairCheck{Substance: substance, InteractingWith: other, Severity: "none documented"}
	for _, x := range entry.Interactions {
		if x.With == other {
			check.Severity = x.Severity
			check.Note = x.Note
			break
		}
	}
	return json.Marshal(check)
}

func format(label string, payload json.RawMessage) (string, error) {
	doc := gjson.ParseBytes(payload)
	substance := doc.Get("substance").String()
	if substance == "" {
		return "", fmt.Errorf("payload carries no substance")
	}
	if doc.Get("interacting_with").Exists() {
		return formatPair(label, doc), nil
	}
	return formatMonograph(label, doc), nil
}

func formatPair(label string, doc gjson.Result) string {
	substance := doc.Get("substance").String()
	other := doc.Get("interacting_with").String()
	severity := doc.Get("severity").String()
	if severity == "none documented" {
		return fmt.Sprintf("The %s has no documented interaction between %s and %s.",
			label, substance, other)
	}
	text := fmt.Sprintf("The %s reports a %s interaction between %s and %s.",
		label, severity, substance, other)
	if note := doc.Get("note").String(); note != "" {
		text += " " + capitalize(note) + "."
	}
	return text
}

func formatMonograph(label string, doc gjson.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The %s lists %s (%s).",
		label, doc.Get("substance").String(), doc.Get("class").String())
	if contra := joinStrings(doc.Get("contraindications")); contra != "" {
		fmt.Fprintf(&b, " Contraindications: %s.", contra)
	}
	if interactions := doc.Get("interactions").Array(); len(interactions) > 0 {
		pairs := make([]string, 0, len(interactions))
		for _, x := range interactions {
			pairs = append(pairs, fmt.Sprintf("%s (%s)", x.Get("with").String(), x.Get("severity").String()))
		}
		sort.Strings(pairs)
		fmt.Fprintf(&b, " Documented interactions: %s.", strings.Join(pairs, ", "))
	} else {
		b.WriteString(" No documented interactions.")
	}
	if monitoring := doc.Get("monitoring").String(); monitoring != "" {
		fmt.Fprintf(&b, " Monitoring: %s.", monitoring)
	}
	return b.String()
}

func joinStrings(value gjson.Result) string {
	var items []string
	for _, entry := range value.Array() {
		items = append(items, entry.String())
	}
	return strings.Join(items, ", ")
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
