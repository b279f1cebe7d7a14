package result

import (
	"testing"

	"github.com/kailas-cloud/retrievex/internal/domain/taxonomy"
)

func TestCandidate_AbsentScoresAreZero(t *testing.T) {
	c := Candidate{ChunkID: "c1", VectorScore: Score(0.8)}
	if c.Lexical() != 0 {
		t.Errorf("Lexical() = %f, want 0", c.Lexical())
	}
	if c.Vector() != 0.8 {
		t.Errorf("Vector() = %f", c.Vector())
	}
}

func TestCandidate_CloneIsDeep(t *testing.T) {
	c := Candidate{
		ChunkID:        "c1",
		LexicalScore:   Score(2.5),
		TaxonomyPath:   taxonomy.Path{"Technology", "AI"},
		SourceMetadata: map[string]string{"lang": "en"},
	}
	cp := c.Clone()
	*cp.LexicalScore = 9
	cp.TaxonomyPath[0] = "Science"
	cp.SourceMetadata["lang"] = "de"

	if *c.LexicalScore != 2.5 {
		t.Errorf("original LexicalScore mutated: %f", *c.LexicalScore)
	}
	if c.TaxonomyPath[0] != "Technology" {
		t.Errorf("original TaxonomyPath mutated: %v", c.TaxonomyPath)
	}
	if c.SourceMetadata["lang"] != "en" {
		t.Errorf("original SourceMetadata mutated: %v", c.SourceMetadata)
	}
}

func TestResponse_Warnings(t *testing.T) {
	var r Response
	r.AddWarning(WarnVectorUnavailable)
	r.AddWarning(WarnVectorUnavailable)
	if len(r.Warnings) != 1 {
		t.Fatalf("expected deduplicated warnings, got %v", r.Warnings)
	}
	if !r.HasWarning(WarnVectorUnavailable) || r.HasWarning(WarnLexicalUnavailable) {
		t.Errorf("HasWarning mismatch: %v", r.Warnings)
	}
}

func TestResponse_SetStage(t *testing.T) {
	var r Response
	r.SetStage(StageRerank, StatusOK, "")
	r.SetStage(StageRerank, StatusFailed, "panic")
	if len(r.Stages) != 1 {
		t.Fatalf("expected 1 stage, got %d", len(r.Stages))
	}
	if r.StageStatusOf(StageRerank) != StatusFailed {
		t.Errorf("status = %q", r.StageStatusOf(StageRerank))
	}
	if r.StageStatusOf(StageFuse) != "" {
		t.Error("unknown stage must report empty status")
	}
}

func TestResponse_CloneIsDeep(t *testing.T) {
	r := Response{
		Candidates: []Candidate{{ChunkID: "a", FusedScore: 0.9}},
		Warnings:   []string{WarnRerankSkipped},
		Stages:     []Stage{{Name: StageFuse, Status: StatusOK}},
	}
	cp := r.Clone()
	cp.Candidates[0].FusedScore = 0
	cp.Warnings[0] = "x"
	cp.Stages[0].Status = StatusFailed

	if r.Candidates[0].FusedScore != 0.9 || r.Warnings[0] != WarnRerankSkipped || r.Stages[0].Status != StatusOK {
		t.Errorf("original mutated through clone: %+v", r)
	}
	if r.TopFusedScore() != 0.9 {
		t.Errorf("TopFusedScore() = %f", r.TopFusedScore())
	}
}
