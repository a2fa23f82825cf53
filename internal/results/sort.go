// Package results applies the read-time ordering of search hits: the
// requested metric first, then a fixed four-tier species priority as the
// tie-break.
package results

import (
	"sort"

	"github.com/nucleohub/seqdispatch/pkg/models"
)

// Reference organisms and the popular-species taxon set used for
// tie-breaking. Tier 0 sorts first.
const (
	primaryOrganism   = "Homo sapiens"
	secondaryOrganism = "Mus musculus"
)

var popularSpecies = map[string]bool{
	"Arabidopsis thaliana":      true,
	"Caenorhabditis elegans":    true,
	"Danio rerio":               true,
	"Drosophila melanogaster":   true,
	"Escherichia coli":          true,
	"Rattus norvegicus":         true,
	"Saccharomyces cerevisiae":  true,
	"Schizosaccharomyces pombe": true,
}

// metricDescending marks metrics whose "better" direction is descending.
// e_value and bias sort ascending (lower is better).
var metricDescending = map[string]bool{
	models.OrderingScore:    true,
	models.OrderingCoverage: true,
}

// speciesTier ranks a hit's species: primary reference organism, secondary
// reference organism, popular species, everything else.
func speciesTier(species string) int {
	switch {
	case species == primaryOrganism:
		return 0
	case species == secondaryOrganism:
		return 1
	case popularSpecies[species]:
		return 2
	default:
		return 3
	}
}

func metric(h *models.Hit, ordering string) float64 {
	switch ordering {
	case models.OrderingScore:
		return h.Score
	case models.OrderingBias:
		return h.Bias
	case models.OrderingCoverage:
		return h.Coverage
	default:
		return h.EValue
	}
}

// Sort orders hits in place by the given ordering key, ties broken by
// species tier. The sort is stable, so equal hits within a tier keep their
// stored order.
func Sort(hits []models.Hit, ordering string) {
	desc := metricDescending[ordering]
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := metric(&hits[i], ordering), metric(&hits[j], ordering)
		if a != b {
			if desc {
				return a > b
			}
			return a < b
		}
		return speciesTier(hits[i].Species) < speciesTier(hits[j].Species)
	})
}
