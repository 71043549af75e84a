package rank

import "strings"

// Signal is one value-signal category: a weight plus the keywords that
// trigger it. Keyword matching is case-insensitive substring search, so
// CJK and Latin terms coexist in one list.
type Signal struct {
	Name     string
	Weight   float64
	Keywords []string
}

// DefaultSignals is the built-in value-signal table. Weights and keywords
// are overridable through configuration.
func DefaultSignals() []Signal {
	return []Signal{
		{Name: "monetization", Weight: 3.5, Keywords: []string{
			"变现", "赚钱", "盈利", "营收", "订阅", "付费", "价格",
			"pricing", "revenue", "monetiz", "roi",
		}},
		{Name: "productivity", Weight: 3.0, Keywords: []string{
			"效率", "自动化", "节省时间", "降本", "提效",
			"workflow", "agent", "copilot", "automation",
		}},
		{Name: "learning", Weight: 2.5, Keywords: []string{
			"学习", "教程", "课程", "指南", "教学",
			"education", "guide", "tutorial", "course",
		}},
		{Name: "consumer_value", Weight: 2.5, Keywords: []string{
			"工具", "应用", "插件", "个人", "家庭", "生活", "体验", "开源", "免费",
			"app", "product", "tool", "assistant", "open-source", "open source", "free",
		}},
		{Name: "safety_compliance", Weight: 2.0, Keywords: []string{
			"安全", "隐私", "合规", "风险", "审计",
			"security", "privacy", "compliance",
		}},
		{Name: "business_enablement", Weight: 2.0, Keywords: []string{
			"商业", "创业", "客户", "企业",
			"b2b", "go-to-market", "gtm", "growth",
		}},
	}
}

// SignalSet evaluates text against a fixed signal table.
type SignalSet struct {
	signals []Signal
}

// NewSignalSet builds a SignalSet, lowercasing keywords once up front.
// An empty table falls back to DefaultSignals.
func NewSignalSet(signals []Signal) *SignalSet {
	if len(signals) == 0 {
		signals = DefaultSignals()
	}
	prepared := make([]Signal, 0, len(signals))
	for _, sig := range signals {
		keywords := make([]string, 0, len(sig.Keywords))
		for _, k := range sig.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				keywords = append(keywords, k)
			}
		}
		prepared = append(prepared, Signal{Name: sig.Name, Weight: sig.Weight, Keywords: keywords})
	}
	return &SignalSet{signals: prepared}
}

// Score sums the weight of every triggered category. A category contributes
// its full weight once no matter how many of its keywords appear.
func (s *SignalSet) Score(text string) float64 {
	lower := strings.ToLower(strings.TrimSpace(text))
	score := 0.0
	for _, sig := range s.signals {
		if sig.triggered(lower) {
			score += sig.Weight
		}
	}
	return score
}

// Names returns the names of categories triggered by the text.
func (s *SignalSet) Names(text string) []string {
	lower := strings.ToLower(strings.TrimSpace(text))
	var names []string
	for _, sig := range s.signals {
		if sig.triggered(lower) {
			names = append(names, sig.Name)
		}
	}
	return names
}

func (sig *Signal) triggered(lowerText string) bool {
	for _, k := range sig.Keywords {
		if strings.Contains(lowerText, k) {
			return true
		}
	}
	return false
}
