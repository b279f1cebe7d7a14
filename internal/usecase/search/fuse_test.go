package search

import (
	"testing"

	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	"github.com/kailas-cloud/retrievex/internal/domain/taxonomy"
)

func lex(id string, score float64) result.Candidate {
	return result.Candidate{ChunkID: id, DocID: "d-" + id, TextSnippet: "text " + id, LexicalScore: result.Score(score)}
}

func vec(id string, score float64) result.Candidate {
	return result.Candidate{ChunkID: id, DocID: "d-" + id, VectorScore: result.Score(score)}
}

func ids(cands []result.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.ChunkID
	}
	return out
}

func TestFuse_WeightedMinMax(t *testing.T) {
	lexical := []result.Candidate{lex("c1", 4), lex("c2", 2), lex("c3", 0)}
	vector := []result.Candidate{vec("c2", 0.9), vec("c4", 0.5), vec("c1", 0.1)}

	got := Fuse(lexical, vector, FusionWeights{Lexical: 0.6, Vector: 0.4, Method: MinMax})

	want := []struct {
		id    string
		fused float64
	}{
		{"c2", 0.7}, {"c1", 0.6}, {"c4", 0.2}, {"c3", 0},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d: %v", len(want), len(got), ids(got))
	}
	for i, w := range want {
		if got[i].ChunkID != w.id {
			t.Fatalf("order = %v, want c2 c1 c4 c3", ids(got))
		}
		if !almostEqual(got[i].FusedScore, w.fused) {
			t.Errorf("%s fused = %f, want %f", w.id, got[i].FusedScore, w.fused)
		}
		if got[i].FinalScore != got[i].FusedScore {
			t.Errorf("%s final score must equal fused score before rerank", w.id)
		}
	}
}

func TestFuse_UnionKeepsBothScores(t *testing.T) {
	lexical := []result.Candidate{lex("c1", 3)}
	lexical[0].TaxonomyPath = taxonomy.Path{"Technology", "AI"}
	vector := []result.Candidate{vec("c1", 0.8), vec("c2", 0.4)}

	got := Fuse(lexical, vector, FusionWeights{Lexical: 0.5, Vector: 0.5, Method: MinMax})
	if len(got) != 2 {
		t.Fatalf("expected unique chunk ids, got %v", ids(got))
	}
	c1 := got[0]
	if c1.ChunkID != "c1" {
		t.Fatalf("expected c1 first, got %v", ids(got))
	}
	if c1.Lexical() != 3 || c1.Vector() != 0.8 {
		t.Errorf("c1 scores = %f/%f", c1.Lexical(), c1.Vector())
	}
	if c1.TextSnippet != "text c1" || !c1.TaxonomyPath.Equal(taxonomy.Path{"Technology", "AI"}) {
		t.Errorf("c1 lost lexical fields: %+v", c1)
	}
	if got[1].LexicalScore != nil {
		t.Error("vector-only candidate must not gain a lexical score")
	}
}

func TestFuse_TieBreakOnRawVectorScore(t *testing.T) {
	lexical := []result.Candidate{lex("a", 10), lex("b", 0)}
	vector := []result.Candidate{vec("b", 0.8), vec("a", 0.2)}

	got := Fuse(lexical, vector, FusionWeights{Lexical: 0.5, Vector: 0.5, Method: MinMax})
	if got[0].FusedScore != got[1].FusedScore {
		t.Fatalf("setup must tie: %f vs %f", got[0].FusedScore, got[1].FusedScore)
	}
	if got[0].ChunkID != "b" {
		t.Errorf("higher raw vector score must win the tie, got %v", ids(got))
	}
}

func TestFuse_TieBreakOnChunkID(t *testing.T) {
	vector := []result.Candidate{vec("zeta", 0.5), vec("alpha", 0.5), vec("mid", 0.5)}
	got := Fuse(nil, vector, FusionWeights{Lexical: 0, Vector: 1, Method: MinMax})
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if got[i].ChunkID != want[i] {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}
	}
}

func TestFuse_Deterministic(t *testing.T) {
	lexical := []result.Candidate{lex("x", 1), lex("y", 1), lex("z", 1)}
	vector := []result.Candidate{vec("z", 0.3), vec("y", 0.3)}
	w := FusionWeights{Lexical: 0.6, Vector: 0.4, Method: MinMax}

	first := ids(Fuse(lexical, vector, w))
	for range 20 {
		again := ids(Fuse(lexical, vector, w))
		for i := range first {
			if first[i] != again[i] {
				t.Fatalf("non-deterministic order: %v vs %v", first, again)
			}
		}
	}
}

func TestFuse_MonotonicInEachChannel(t *testing.T) {
	w := FusionWeights{Lexical: 0.6, Vector: 0.4, Method: MinMax}
	vector := []result.Candidate{vec("target", 0.5), vec("other", 0.7)}

	prev := -1.0
	for _, s := range []float64{0, 1, 2, 3, 5, 8} {
		lexical := []result.Candidate{lex("anchor-hi", 8), lex("target", s), lex("anchor-lo", 0)}
		var fused float64
		for _, c := range Fuse(lexical, vector, w) {
			if c.ChunkID == "target" {
				fused = c.FusedScore
			}
		}
		if fused < prev {
			t.Fatalf("fused score decreased from %f to %f when lexical rose to %f", prev, fused, s)
		}
		prev = fused
	}
}

func TestFuse_RRF(t *testing.T) {
	lexical := []result.Candidate{lex("a", 9), lex("b", 3)}
	vector := []result.Candidate{vec("b", 0.9), vec("a", 0.1)}
	got := Fuse(lexical, vector, FusionWeights{Lexical: 0.5, Vector: 0.5, Method: RRF})
	// a: rank0 lex, rank1 vec; b: rank1 lex, rank0 vec -> equal; b wins on raw vector.
	if got[0].ChunkID != "b" || !almostEqual(got[0].FusedScore, got[1].FusedScore) {
		t.Errorf("rrf order = %v scores %f %f", ids(got), got[0].FusedScore, got[1].FusedScore)
	}
	want := 0.5/61 + 0.5/62
	if !almostEqual(got[0].FusedScore, want) {
		t.Errorf("rrf fused = %f, want %f", got[0].FusedScore, want)
	}
}

func TestFuse_Empty(t *testing.T) {
	if got := Fuse(nil, nil, FusionWeights{Lexical: 0.6, Vector: 0.4}); len(got) != 0 {
		t.Errorf("expected empty, got %v", ids(got))
	}
}

func TestFilterMinScore(t *testing.T) {
	cands := []result.Candidate{{ChunkID: "a", FusedScore: 0.9}, {ChunkID: "b", FusedScore: 0.4}}
	if got := filterMinScore(cands, 0); len(got) != 2 {
		t.Errorf("zero min score must keep everything, got %v", ids(got))
	}
	if got := filterMinScore(cands, 0.5); len(got) != 1 || got[0].ChunkID != "a" {
		t.Errorf("got %v", ids(got))
	}
}
