package consumer

import "github.com/nucleohub/seqdispatch/pkg/models"

// Parser converts a tool's raw tabular output into result rows. The
// tool-specific text formats are owned by a separate component; the worker
// only cares that a finished run yields zero or more hits.
type Parser interface {
	Parse(outputPath string) ([]models.Hit, error)
}

// NoopParser records no hits. Wired by default until a format-specific
// parser is plugged in.
type NoopParser struct{}

func (NoopParser) Parse(string) ([]models.Hit, error) {
	return nil, nil
}

var _ Parser = NoopParser{}
