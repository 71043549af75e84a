package rank

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/feiwu/aibrief/pkg/source"
)

// OfficialDomains are first-party AI organization domains (priority 4).
var OfficialDomains = map[string]bool{
	"openai.com":          true,
	"ai.googleblog.com":   true,
	"deepmind.google":     true,
	"research.google":     true,
	"huggingface.co":      true,
	"blogs.microsoft.com": true,
	"blogs.nvidia.com":    true,
	"aws.amazon.com":      true,
	"ai.meta.com":         true,
	"anthropic.com":       true,
	"stability.ai":        true,
}

// CodeDomains and PaperDomains share priority 3.
var CodeDomains = map[string]bool{
	"github.com":    true,
	"gitlab.com":    true,
	"bitbucket.org": true,
}

var PaperDomains = map[string]bool{
	"arxiv.org":        true,
	"openreview.net":   true,
	"papers.nips.cc":   true,
	"aclanthology.org": true,
}

// AuthorityDomains are recognized publishers (priority 2).
var AuthorityDomains = map[string]bool{
	"nature.com":        true,
	"science.org":       true,
	"sciencedirect.com": true,
	"ieee.org":          true,
	"acm.org":           true,
}

// LowValueLinkDomains are preferred out of link selection when any other
// candidate exists (preprint listings make poor primary links).
var LowValueLinkDomains = map[string]bool{
	"arxiv.org": true,
}

// LinkDebug explains a link-selection decision.
type LinkDebug struct {
	CandidateCount   int    `json:"candidate_count"`
	FilteredLowValue bool   `json:"filtered_low_value"`
	PrimaryDomain    string `json:"primary_domain,omitempty"`
	PrimaryPriority  string `json:"primary_priority,omitempty"`
}

// LinkSelection is the outcome of SelectLinks for one cluster.
type LinkSelection struct {
	Primary  string
	Evidence []string
	Debug    LinkDebug
}

type linkCandidate struct {
	url      string
	domain   string
	priority int
	tie      uint64
}

func linkPriority(domain string) int {
	switch {
	case OfficialDomains[domain]:
		return 4
	case CodeDomains[domain] || PaperDomains[domain]:
		return 3
	case AuthorityDomains[domain]:
		return 2
	default:
		return 1
	}
}

func priorityLabel(priority int) string {
	switch priority {
	case 4:
		return "official"
	case 3:
		return "code_or_paper"
	case 2:
		return "authority"
	default:
		return "community"
	}
}

// stableHash gives a deterministic, non-cryptographic ordering key for a
// (cluster, url) pair. A hash rather than a seeded PRNG so repeated runs
// over the same inputs reproduce the same ordering without persisting a
// seed.
func stableHash(clusterID int64, url string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s", clusterID, url)
	return h.Sum64()
}

// SelectLinks deterministically picks one primary link and an ordered,
// domain-diversified evidence set from a cluster's member items.
func SelectLinks(clusterID int64, items []source.Item, minCount, maxCount int) LinkSelection {
	if minCount <= 0 {
		minCount = 3
	}
	if maxCount < minCount {
		maxCount = minCount + 2
	}

	seen := make(map[string]bool)
	var candidates []linkCandidate
	for i := range items {
		url := source.CanonicalURL(items[i].URL)
		if url == "" || seen[url] {
			continue
		}
		domain := items[i].Domain
		if domain == "" {
			domain = source.Domain(url)
		}
		if domain == "" {
			continue
		}
		seen[url] = true
		candidates = append(candidates, linkCandidate{url: url, domain: domain})
	}

	if len(candidates) == 0 {
		return LinkSelection{Evidence: []string{}, Debug: LinkDebug{}}
	}

	var kept []linkCandidate
	for _, c := range candidates {
		if !LowValueLinkDomains[c.domain] {
			kept = append(kept, c)
		}
	}
	filtered := len(kept) > 0 && len(kept) < len(candidates)
	if len(kept) == 0 {
		kept = candidates
	}

	for i := range kept {
		kept[i].priority = linkPriority(kept[i].domain)
		kept[i].tie = stableHash(clusterID, kept[i].url)
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].priority != kept[j].priority {
			return kept[i].priority > kept[j].priority
		}
		return kept[i].tie < kept[j].tie
	})

	primary := kept[0]
	return LinkSelection{
		Primary:  primary.url,
		Evidence: evidenceLinks(kept, minCount, maxCount),
		Debug: LinkDebug{
			CandidateCount:   len(candidates),
			FilteredLowValue: filtered,
			PrimaryDomain:    primary.domain,
			PrimaryPriority:  priorityLabel(primary.priority),
		},
	}
}

// evidenceLinks walks the sorted candidates preferring one link per distinct
// domain; if fewer than minCount were found that way it backfills with the
// remaining candidates in sorted order, capped at maxCount.
func evidenceLinks(sorted []linkCandidate, minCount, maxCount int) []string {
	evidence := make([]string, 0, minCount)
	taken := make(map[string]bool)
	seenDomains := make(map[string]bool)

	for _, c := range sorted {
		if taken[c.url] || seenDomains[c.domain] {
			continue
		}
		evidence = append(evidence, c.url)
		taken[c.url] = true
		seenDomains[c.domain] = true
		if len(evidence) >= minCount {
			break
		}
	}

	if len(evidence) < minCount {
		for _, c := range sorted {
			if taken[c.url] {
				continue
			}
			evidence = append(evidence, c.url)
			taken[c.url] = true
			if len(evidence) >= minCount {
				break
			}
		}
	}

	if len(evidence) > maxCount {
		evidence = evidence[:maxCount]
	}
	return evidence
}
