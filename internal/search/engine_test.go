package search

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/mock/gomock"

	"memorybank/internal/embedding/mocks"
)

func populatedCache() *Cache {
	cache := NewCache()
	cache.Replace(map[string][]Entry{
		"strong.md": {{Path: "strong.md", Ordinal: 0, Title: "Strong", Text: "strong chunk", Vector: []float32{0.9, 1}}},
		"medium.md": {{Path: "medium.md", Ordinal: 0, Title: "Medium", Text: "medium chunk", Vector: []float32{0.5, 1}}},
		"weak.md":   {{Path: "weak.md", Ordinal: 0, Title: "Weak", Text: "weak chunk", Vector: []float32{0.1, 1}}},
	})
	return cache
}

func TestEngine_SearchRanksBySimilarity(t *testing.T) {
	ctrl := gomock.NewController(t)
	embedder := mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().IsConfigured().Return(true).AnyTimes()
	embedder.EXPECT().Embed(gomock.Any(), "query").Return([]float32{1, 0}, nil)

	engine := NewEngine(embedder, populatedCache())
	results, err := engine.Search(context.Background(), "query", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("Search() returned %d results, want 3", len(results))
	}
	wantOrder := []string{"strong.md", "medium.md", "weak.md"}
	for i, want := range wantOrder {
		if results[i].Path != want {
			t.Errorf("results[%d].Path = %s, want %s", i, results[i].Path, want)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not in descending score order: %v then %v", results[i-1].Score, results[i].Score)
		}
	}
	if results[0].Title != "Strong" || results[0].Snippet != "strong chunk" {
		t.Errorf("top result = %+v, want title and snippet from best chunk", results[0])
	}
}

func TestEngine_SearchDeduplicatesByDocument(t *testing.T) {
	ctrl := gomock.NewController(t)
	embedder := mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().IsConfigured().Return(true).AnyTimes()
	embedder.EXPECT().Embed(gomock.Any(), gomock.Any()).Return([]float32{1, 0}, nil)

	cache := NewCache()
	cache.Replace(map[string][]Entry{
		"hot.md": {
			{Path: "hot.md", Ordinal: 0, Text: "best", Vector: []float32{1, 0.01}},
			{Path: "hot.md", Ordinal: 1, Text: "second best", Vector: []float32{1, 0.02}},
			{Path: "hot.md", Ordinal: 2, Text: "third best", Vector: []float32{1, 0.03}},
		},
		"cold.md": {{Path: "cold.md", Ordinal: 0, Text: "cold", Vector: []float32{0.2, 1}}},
	})

	engine := NewEngine(embedder, cache)
	results, err := engine.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].Path != "hot.md" || results[0].Snippet != "best" {
		t.Errorf("top result = %+v, want best chunk of hot.md", results[0])
	}
	if results[1].Path != "cold.md" {
		t.Errorf("second result = %s, want cold.md despite weaker chunks in hot.md", results[1].Path)
	}
}

func TestEngine_SearchDegradedMode(t *testing.T) {
	ctrl := gomock.NewController(t)
	embedder := mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().IsConfigured().Return(false)

	engine := NewEngine(embedder, populatedCache())
	results, err := engine.Search(context.Background(), "query", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search() returned %d results without a provider, want 0", len(results))
	}
}

func TestEngine_SearchEmbedFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	embedder := mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().IsConfigured().Return(true)
	embedder.EXPECT().Embed(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("provider down"))

	engine := NewEngine(embedder, populatedCache())
	if _, err := engine.Search(context.Background(), "query", 3); err == nil {
		t.Error("Search() with failing embedder should return an error")
	}
}

func TestEngine_SearchDefaultLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	embedder := mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().IsConfigured().Return(true).AnyTimes()
	embedder.EXPECT().Embed(gomock.Any(), gomock.Any()).Return([]float32{1, 0}, nil)

	byPath := make(map[string][]Entry)
	for i := 0; i < 10; i++ {
		path := fmt.Sprintf("doc-%d.md", i)
		byPath[path] = []Entry{{Path: path, Ordinal: 0, Text: "t", Vector: []float32{1, float32(i)}}}
	}
	cache := NewCache()
	cache.Replace(byPath)

	engine := NewEngine(embedder, cache)
	results, err := engine.Search(context.Background(), "q", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != defaultMaxResults {
		t.Errorf("Search() with zero limit returned %d results, want %d", len(results), defaultMaxResults)
	}
}
