package rank

import (
	"reflect"
	"testing"
)

func TestSignalSetScoreCountsCategoryOnce(t *testing.T) {
	set := NewSignalSet([]Signal{
		{Name: "monetization", Weight: 3.5, Keywords: []string{"pricing", "revenue"}},
	})
	// Two keywords from the same category still contribute one weight.
	if got := set.Score("new pricing tiers boost revenue"); got != 3.5 {
		t.Errorf("Score = %.1f, want 3.5", got)
	}
}

func TestSignalSetScoreSumsCategories(t *testing.T) {
	set := NewSignalSet([]Signal{
		{Name: "monetization", Weight: 3.5, Keywords: []string{"pricing"}},
		{Name: "productivity", Weight: 3.0, Keywords: []string{"automation"}},
		{Name: "learning", Weight: 2.5, Keywords: []string{"tutorial"}},
	})
	if got := set.Score("Pricing changes and automation news"); got != 6.5 {
		t.Errorf("Score = %.1f, want 6.5", got)
	}
	if got := set.Score("nothing relevant here"); got != 0 {
		t.Errorf("Score = %.1f, want 0", got)
	}
}

func TestSignalSetNames(t *testing.T) {
	set := NewSignalSet([]Signal{
		{Name: "monetization", Weight: 3.5, Keywords: []string{"pricing"}},
		{Name: "productivity", Weight: 3.0, Keywords: []string{"automation"}},
	})
	got := set.Names("automation will change pricing")
	want := []string{"monetization", "productivity"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
	if names := set.Names("unrelated"); names != nil {
		t.Errorf("Names on no match = %v, want nil", names)
	}
}

func TestSignalSetCaseInsensitive(t *testing.T) {
	set := NewSignalSet([]Signal{
		{Name: "productivity", Weight: 3.0, Keywords: []string{"Copilot"}},
	})
	if got := set.Score("COPILOT update shipped"); got != 3.0 {
		t.Errorf("Score = %.1f, want 3.0", got)
	}
}

func TestSignalSetCJKKeywords(t *testing.T) {
	set := NewSignalSet(nil)
	if got := set.Score("新的AI变现模式出现了"); got == 0 {
		t.Error("expected CJK monetization keyword to trigger")
	}
}

func TestNewSignalSetDefaultsOnEmpty(t *testing.T) {
	set := NewSignalSet(nil)
	if got := set.Score("subscription pricing announced"); got != 3.5 {
		t.Errorf("default monetization weight: got %.1f, want 3.5", got)
	}
}
