package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emporia-ai/clerk/internal/catalog"
	"github.com/emporia-ai/clerk/pkg/provider/embeddings"
	embedmock "github.com/emporia-ai/clerk/pkg/provider/embeddings/mock"
)

type fakeIndex struct {
	hits  []catalog.Hit
	err   error
	calls []struct {
		vector []float32
		limit  int
	}
}

func (f *fakeIndex) Search(_ context.Context, vector []float32, limit int) ([]catalog.Hit, error) {
	f.calls = append(f.calls, struct {
		vector []float32
		limit  int
	}{vector, limit})
	return f.hits, f.err
}

type fakeFetcher struct {
	result catalog.Result
	err    error
	calls  [][]string
}

func (f *fakeFetcher) ProductsByASIN(_ context.Context, asins []string) (catalog.Result, error) {
	f.calls = append(f.calls, asins)
	return f.result, f.err
}

func productResult(asins ...string) catalog.Result {
	r := catalog.Result{Columns: []string{"parent_asin", "title"}}
	for _, a := range asins {
		r.Rows = append(r.Rows, map[string]any{"parent_asin": a, "title": "Product " + a})
	}
	return r
}

func TestRetrieveCapsResults(t *testing.T) {
	t.Parallel()

	embedder := &embedmock.Provider{EmbedResult: []float32{0.1, 0.2}}
	index := &fakeIndex{hits: []catalog.Hit{
		{ParentASIN: "B01", Score: 0.9},
		{ParentASIN: "B02", Score: 0.8},
		{ParentASIN: "B03", Score: 0.7},
		{ParentASIN: "B04", Score: 0.6},
		{ParentASIN: "B05", Score: 0.5},
	}}
	fetcher := &fakeFetcher{result: productResult("B01", "B02", "B03", "B04", "B05")}

	r, err := New(embedder, index, fetcher)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := r.Retrieve(context.Background(), "usb microphone")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Len() != 3 {
		t.Fatalf("want 3 rows, got %d", got.Len())
	}
	if got.Rows[0]["parent_asin"] != "B01" {
		t.Fatalf("rows must keep relevance order, got first %v", got.Rows[0]["parent_asin"])
	}
}

func TestRetrieveEmbedsWithQueryTask(t *testing.T) {
	t.Parallel()

	embedder := &embedmock.Provider{EmbedResult: []float32{1}}
	index := &fakeIndex{}
	r, err := New(embedder, index, &fakeFetcher{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "gaming mouse"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(embedder.EmbedCalls) != 1 {
		t.Fatalf("want 1 embed call, got %d", len(embedder.EmbedCalls))
	}
	if embedder.EmbedCalls[0].Task != embeddings.TaskQuery {
		t.Fatalf("want query task, got %q", embedder.EmbedCalls[0].Task)
	}
	if embedder.EmbedCalls[0].Text != "gaming mouse" {
		t.Fatalf("want query text forwarded, got %q", embedder.EmbedCalls[0].Text)
	}
}

func TestRetrieveNoNeighboursSkipsCatalog(t *testing.T) {
	t.Parallel()

	embedder := &embedmock.Provider{EmbedResult: []float32{1}}
	index := &fakeIndex{hits: nil}
	fetcher := &fakeFetcher{}

	r, err := New(embedder, index, fetcher)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := r.Retrieve(context.Background(), "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Len() != 0 {
		t.Fatalf("want empty result, got %d rows", got.Len())
	}
	if len(fetcher.calls) != 0 {
		t.Fatal("catalog must not be queried when the index has no neighbours")
	}
}

func TestRetrieveDeduplicatesASINs(t *testing.T) {
	t.Parallel()

	embedder := &embedmock.Provider{EmbedResult: []float32{1}}
	index := &fakeIndex{hits: []catalog.Hit{
		{ParentASIN: "B01"},
		{ParentASIN: "B02"},
		{ParentASIN: "B01"},
	}}
	fetcher := &fakeFetcher{result: productResult("B01", "B02")}

	r, err := New(embedder, index, fetcher)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "duplicates"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fetcher.calls) != 1 {
		t.Fatalf("want 1 fetch, got %d", len(fetcher.calls))
	}
	want := []string{"B01", "B02"}
	got := fetcher.calls[0]
	if len(got) != len(want) {
		t.Fatalf("want asins %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want asins %v, got %v", want, got)
		}
	}
}

func TestRetrieveUsesConfiguredTopK(t *testing.T) {
	t.Parallel()

	embedder := &embedmock.Provider{EmbedResult: []float32{1}}
	index := &fakeIndex{}
	r, err := New(embedder, index, &fakeFetcher{}, WithTopK(25))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "q"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(index.calls) != 1 || index.calls[0].limit != 25 {
		t.Fatalf("want search limit 25, got %+v", index.calls)
	}
}

func TestRetrieveErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	cases := []struct {
		name    string
		embed   *embedmock.Provider
		index   *fakeIndex
		fetcher *fakeFetcher
	}{
		{
			name:    "embed failure",
			embed:   &embedmock.Provider{EmbedErr: boom},
			index:   &fakeIndex{},
			fetcher: &fakeFetcher{},
		},
		{
			name:    "search failure",
			embed:   &embedmock.Provider{EmbedResult: []float32{1}},
			index:   &fakeIndex{err: boom},
			fetcher: &fakeFetcher{},
		},
		{
			name:    "fetch failure",
			embed:   &embedmock.Provider{EmbedResult: []float32{1}},
			index:   &fakeIndex{hits: []catalog.Hit{{ParentASIN: "B01"}}},
			fetcher: &fakeFetcher{err: boom},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, err := New(tc.embed, tc.index, tc.fetcher)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, err := r.Retrieve(context.Background(), "q"); !errors.Is(err, boom) {
				t.Fatalf("want wrapped boom, got %v", err)
			}
		})
	}
}

func TestFixedDelayHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := FixedDelay{Delay: time.Hour}.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestFixedDelayZeroReturnsImmediately(t *testing.T) {
	t.Parallel()

	if err := (FixedDelay{}).Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
