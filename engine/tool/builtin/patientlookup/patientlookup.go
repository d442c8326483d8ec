// Package patientlookup is the demo patient-record reference tool. It
// serves a small in-memory directory so the engine runs end to end
// without a records system; the directory deliberately contains shared
// surnames to exercise ambiguous-match handling.
package patientlookup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/roundslab/rounds/engine/schema"
	"github.com/roundslab/rounds/engine/tool"
)

const (
	// Name is the internal identifier; Label is what rendered text uses.
	Name  = "patient_lookup"
	Label = "patient record lookup"
)

type record struct {
	ID          string   `json:"id"`
	FullName    string   `json:"full_name"`
	Ward        string   `json:"ward"`
	DateOfBirth string   `json:"date_of_birth"`
	Allergies   []string `json:"allergies"`
	Medications []string `json:"medications"`
}

// directory is the in-memory demo data set. Three Okafors make surname
// fragments ambiguous on purpose.
var directory = []record{
	{
		ID: "pt-1041", FullName: "Adaeze Okafor", Ward: "ward 2",
		DateOfBirth: "1952-03-14",
		Allergies:   []string{"penicillin"},
		Medications: []string{"warfarin 5mg daily", "bisoprolol 2.5mg daily"},
	},
	{
		ID: "pt-1187", FullName: "Chukwudi Okafor", Ward: "ward 5",
		DateOfBirth: "1978-11-02",
		Allergies:   nil,
		Medications: []string{"metformin 500mg twice daily"},
	},
	{
		ID: "pt-1203", FullName: "Ngozi Okafor", Ward: "ward 5",
		DateOfBirth: "1990-06-21",
		Allergies:   []string{"latex"},
		Medications: nil,
	},
	{
		ID: "pt-0042", FullName: "Maren Lindqvist", Ward: "ward 1",
		DateOfBirth: "1944-09-30",
		Allergies:   []string{"aspirin", "sulfonamides"},
		Medications: []string{"apixaban 5mg twice daily", "simvastatin 20mg nightly"},
	},
	{
		ID: "pt-0777", FullName: "Tomas Herrera", Ward: "ward 3",
		DateOfBirth: "1968-01-09",
		Allergies:   nil,
		Medications: []string{"lisinopril 10mg daily", "clarithromycin 500mg twice daily"},
	},
}

// Definition returns the registered tool definition.
func Definition() *tool.Definition {
	return &tool.Definition{
		Name:        Name,
		Label:       Label,
		Category:    "records",
		Description: "Looks up a patient's demographic and medication record by name, optionally narrowed by ward.",
		ReadOnly:    true,
		UserArgs:    []string{"name"},
		Args: &schema.Contract{
			Name:        Name + "_args",
			Description: "Arguments for the patient record lookup.",
			Fields: []schema.Field{
				{
					Name: "name", Type: "string", Required: true,
					Description: "Patient name or surname fragment to match.",
				},
				{
					Name: "ward", Type: "string",
					Description: "Ward identifier to narrow the match, e.g. \"ward 5\".",
				},
			},
		},
		Handler: handle,
		Format:  format,
	}
}

func handle(_ context.Context, args map[string]any) (json.RawMessage, error) {
	name, _ := args["name"].(string)
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, &tool.CategoryError{
			Category: tool.ErrorInvalidArgs,
			Reason:   "blank name after trimming",
			Field:    "name",
		}
	}
	ward, _ := args["ward"].(string)
	ward = strings.ToLower(strings.TrimSpace(ward))

	var matches []record
	for _, r := range directory {
		if !strings.Contains(strings.ToLower(r.FullName), needle) {
			continue
		}
		if ward != "" && strings.ToLower(r.Ward) != ward {
			continue
		}
		matches = append(matches, r)
	}
	switch len(matches) {
	case 0:
		return nil, &tool.CategoryError{
			Category: tool.ErrorNotFound,
			Reason:   "no directory entry matched",
		}
	case 1:
		return json.Marshal(matches[0])
	default:
		candidates := make([]string, 0, len(matches))
		for _, m := range matches {
			candidates = append(candidates, fmt.Sprintf("%s (%s)", m.FullName, m.Ward))
		}
		return nil, &tool.CategoryError{
			Category:   tool.ErrorAmbiguousMatch,
			Reason:     fmt.Sprintf("%d directory entries matched", len(matches)),
			Candidates: candidates,
		}
	}
}

func format(label string, payload json.RawMessage) (string, error) {
	doc := gjson.ParseBytes(payload)
	fullName := doc.Get("full_name").String()
	if fullName == "" {
		return "", fmt.Errorf("payload carries no full_name")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The %s found %s (%s, born %s).",
		label, fullName, doc.Get("ward").String(), doc.Get("date_of_birth").String())
	if allergies := joinList(doc.Get("allergies")); allergies != "" {
		fmt.Fprintf(&b, " Allergies: %s.", allergies)
	} else {
		b.WriteString(" No known allergies.")
	}
	if meds := joinList(doc.Get("medications")); meds != "" {
		fmt.Fprintf(&b, " Active medications: %s.", meds)
	} else {
		b.WriteString(" No active medications on record.")
	}
	return b.String(), nil
}

func joinList(value gjson.Result) string {
	var items []string
	for _, entry := range value.Array() {
		items = append(items, entry.String())
	}
	return strings.Join(items, ", ")
}
