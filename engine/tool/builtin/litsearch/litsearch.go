// Package litsearch is the HTTP-backed literature reference tool. It
// queries a configurable search endpoint (a stub in tests and demos) and
// maps transport failures onto the gateway's category taxonomy.
package litsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/roundslab/rounds/engine/schema"
	"github.com/roundslab/rounds/engine/tool"
)

const (
	Name  = "literature_search"
	Label = "literature search"

	defaultMaxResults = 5
	searchPath        = "/search"
)

type article struct {
	Title   string `json:"title"`
	Journal string `json:"journal"`
	Year    int    `json:"year"`
	DOI     string `json:"doi,omitempty"`
}

type searchResponse struct {
	Total    int       `json:"total"`
	Articles []article `json:"articles"`
}

type payload struct {
	Query    string    `json:"query"`
	Total    int       `json:"total"`
	Articles []article `json:"articles"`
}

// New builds the definition against the given base URL.
func New(baseURL string) *tool.Definition {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json")
	return &tool.Definition{
		Name:        Name,
		Label:       Label,
		Category:    "literature",
		Description: "Searches the clinical literature index for articles matching a query.",
		ReadOnly:    true,
		Args: &schema.Contract{
			Name:        Name + "_args",
			Description: "Arguments for the literature search.",
			Fields: []schema.Field{
				{
					Name: "query", Type: "string", Required: true,
					Description: "Search terms, e.g. a drug pair or condition.",
				},
				{
					Name: "max_results", Type: "integer",
					Description: "Upper bound on returned articles (default 5).",
				},
				{
					Name: "since_year", Type: "integer",
					Description: "Only include articles published in or after this year.",
				},
			},
		},
		Handler: handler(client),
		Format:  format,
	}
}

func handler(client *resty.Client) tool.Handler {
	return func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
		query, _ := args["query"].(string)
		query = strings.TrimSpace(query)
		if query == "" {
			return nil, &tool.CategoryError{
				Category: tool.ErrorInvalidArgs,
				Reason:   "blank query after trimming",
				Field:    "query",
			}
		}
		req := client.R().
			SetContext(ctx).
			SetQueryParam("q", query).
			SetQueryParam("limit", fmt.Sprintf("%d", intArg(args, "max_results", defaultMaxResults)))
		if since := intArg(args, "since_year", 0); since > 0 {
			req.SetQueryParam("since", fmt.Sprintf("%d", since))
		}
		var parsed searchResponse
		req.SetResult(&parsed)
		resp, err := req.Get(searchPath)
		if err != nil {
			return nil, classifyTransport(err)
		}
		if resp.IsError() {
			return nil, classifyStatus(resp.StatusCode())
		}
		if parsed.Total == 0 || len(parsed.Articles) == 0 {
			return nil, nil
		}
		return json.Marshal(payload{Query: query, Total: parsed.Total, Articles: parsed.Articles})
	}
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &tool.CategoryError{
		Category: tool.ErrorServerError,
		Reason:   fmt.Sprintf("transport failure: %v", err),
	}
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &tool.CategoryError{
			Category: tool.ErrorRateLimited,
			Reason:   "search endpoint returned 429",
		}
	case status == http.StatusBadRequest:
		return &tool.CategoryError{
			Category: tool.ErrorInvalidArgs,
			Reason:   "search endpoint rejected the query",
			Field:    "query",
		}
	default:
		return &tool.CategoryError{
			Category: tool.ErrorServerError,
			Reason:   fmt.Sprintf("search endpoint returned %d", status),
		}
	}
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func format(label string, raw json.RawMessage) (string, error) {
	doc := gjson.ParseBytes(raw)
	query := doc.Get("query").String()
	if query == "" {
		return "", fmt.Errorf("payload carries no query")
	}
	total := doc.Get("total").Int()
	articles := doc.Get("articles").Array()
	var b strings.Builder
	fmt.Fprintf(&b, "The %s found %d articles for %q.", label, total, query)
	shown := articles
	if len(shown) > 3 {
		shown = shown[:3]
	}
	for i, entry := range shown {
		fmt.Fprintf(&b, " %d) %s (%s, %d).",
			i+1, entry.Get("title").String(), entry.Get("journal").String(), entry.Get("year").Int())
	}
	if len(articles) > len(shown) {
		fmt.Fprintf(&b, " %d further results omitted.", len(articles)-len(shown))
	}
	return b.String(), nil
}
