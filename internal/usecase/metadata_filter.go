package usecase

import (
	"strings"

	"scantrad-search/internal/domain"
)

// DescribedCandidate pairs a search candidate with the raw description
// blob of its page, so metadata filtering can be applied uniformly to
// bubble hits (description joined on demand) and semantic hits
// (description carried by the corpus row).
type DescribedCandidate struct {
	Candidate      domain.Candidate
	RawDescription string
}

// FilterByMetadata keeps the candidates whose page description matches
// the requested facets. Characters are OR-ed (any requested name
// matching any tagged character keeps the candidate); the arc condition
// is AND-ed with the character condition. Matching is case-insensitive
// substring. A candidate whose description cannot be parsed is
// excluded rather than matched permissively.
func FilterByMetadata(cands []DescribedCandidate, characters []string, arc string) []DescribedCandidate {
	if len(characters) == 0 && arc == "" {
		return cands
	}

	kept := make([]DescribedCandidate, 0, len(cands))
	for _, c := range cands {
		desc, err := domain.ParseDescription(c.RawDescription)
		if err != nil {
			continue
		}
		if matchesMetadata(desc.Metadata, characters, arc) {
			kept = append(kept, c)
		}
	}
	return kept
}

func matchesMetadata(meta domain.DescriptionMetadata, characters []string, arc string) bool {
	if arc != "" && !strings.Contains(strings.ToLower(meta.Arc), strings.ToLower(arc)) {
		return false
	}
	if len(characters) == 0 {
		return true
	}
	for _, want := range characters {
		lowered := strings.ToLower(want)
		for _, tagged := range meta.Characters {
			if strings.Contains(strings.ToLower(tagged), lowered) {
				return true
			}
		}
	}
	return false
}
