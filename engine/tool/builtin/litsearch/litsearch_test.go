package litsearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundslab/rounds/engine/tool"
)

func stubServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestHandler(t *testing.T) {
	t.Run("Should return matching articles with the query echoed", func(t *testing.T) {
		server := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/search", r.URL.Path)
			assert.Equal(t, "warfarin clarithromycin", r.URL.Query().Get("q"))
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			w.Header().Set("Content-Type", "application/json")
			err := json.NewEncoder(w).Encode(searchResponse{
				Total: 2,
				Articles: []article{
					{Title: "Macrolide and warfarin interactions", Journal: "J Clin Pharm", Year: 2021},
					{Title: "INR instability in polypharmacy", Journal: "Drug Saf", Year: 2019},
				},
			})
			assert.NoError(t, err)
		})
		def := New(server.URL)

		raw, err := def.Handler(context.Background(), map[string]any{"query": "warfarin clarithromycin"})
		require.NoError(t, err)

		var got payload
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "warfarin clarithromycin", got.Query)
		assert.Equal(t, 2, got.Total)
		assert.Len(t, got.Articles, 2)
	})

	t.Run("Should pass numeric arguments through as query params", func(t *testing.T) {
		server := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "3", r.URL.Query().Get("limit"))
			assert.Equal(t, "2020", r.URL.Query().Get("since"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"total":0,"articles":[]}`))
		})
		def := New(server.URL)

		// JSON-decoded arguments arrive as float64.
		raw, err := def.Handler(context.Background(), map[string]any{
			"query": "metformin", "max_results": float64(3), "since_year": float64(2020),
		})
		require.NoError(t, err)
		assert.Nil(t, raw, "zero hits must surface as an empty payload")
	})

	t.Run("Should map 429 to rate_limited", func(t *testing.T) {
		server := stubServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		def := New(server.URL)

		_, err := def.Handler(context.Background(), map[string]any{"query": "metformin"})
		var catErr *tool.CategoryError
		require.True(t, errors.As(err, &catErr))
		assert.Equal(t, tool.ErrorRateLimited, catErr.Category)
	})

	t.Run("Should map 5xx to server_error", func(t *testing.T) {
		server := stubServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		def := New(server.URL)

		_, err := def.Handler(context.Background(), map[string]any{"query": "metformin"})
		var catErr *tool.CategoryError
		require.True(t, errors.As(err, &catErr))
		assert.Equal(t, tool.ErrorServerError, catErr.Category)
	})

	t.Run("Should map an unreachable endpoint to server_error", func(t *testing.T) {
		def := New("http://127.0.0.1:1")

		_, err := def.Handler(context.Background(), map[string]any{"query": "metformin"})
		var catErr *tool.CategoryError
		require.True(t, errors.As(err, &catErr))
		assert.Equal(t, tool.ErrorServerError, catErr.Category)
	})

	t.Run("Should surface context deadline as-is for timeout mapping", func(t *testing.T) {
		server := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})
		def := New(server.URL)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err := def.Handler(ctx, map[string]any{"query": "metformin"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Should treat a blank query as invalid_args", func(t *testing.T) {
		def := New("http://unused.example")

		_, err := def.Handler(context.Background(), map[string]any{"query": "   "})
		var catErr *tool.CategoryError
		require.True(t, errors.As(err, &catErr))
		assert.Equal(t, tool.ErrorInvalidArgs, catErr.Category)
	})
}

func TestFormat(t *testing.T) {
	t.Run("Should render top articles with the label", func(t *testing.T) {
		raw, err := json.Marshal(payload{
			Query: "apixaban renal",
			Total: 4,
			Articles: []article{
				{Title: "Apixaban in renal impairment", Journal: "Kidney Int", Year: 2022},
				{Title: "DOAC dosing review", Journal: "Blood Adv", Year: 2021},
				{Title: "Anticoagulation in CKD", Journal: "NEJM", Year: 2020},
				{Title: "Case series", Journal: "BMJ", Year: 2018},
			},
		})
		require.NoError(t, err)

		text, err := format(Label, raw)
		require.NoError(t, err)
		assert.Contains(t, text, "literature search")
		assert.Contains(t, text, "4 articles")
		assert.Contains(t, text, "Apixaban in renal impairment")
		assert.Contains(t, text, "1 further results omitted")
		assert.NotContains(t, text, "literature_search")
	})
}

func TestDefinition(t *testing.T) {
	t.Run("Should pass catalog validation with query first", func(t *testing.T) {
		def := New("http://localhost:0")
		require.NoError(t, def.Check())
		assert.Equal(t, "query", def.Args.Fields[0].Name)
		assert.Equal(t, "literature", def.Category)
	})
}
