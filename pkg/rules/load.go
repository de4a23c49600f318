package rules

import (
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/spread-install/spread/pkg/hash"
)

// fileRule is the on-disk YAML representation of one Rule. Exactly one of
// URL or Archive must be set.
type fileRule struct {
	RuleString string `yaml:"name"`

	URL *struct {
		Output   string `yaml:"output"`
		Location string `yaml:"location"`
		Priority int    `yaml:"priority"`
		Weight   int    `yaml:"weight"`
		Size     uint64 `yaml:"size"`
	} `yaml:"url"`

	Archive *struct {
		ArcHash    string   `yaml:"hash"`
		DirHash    string   `yaml:"dir"`
		DirPointer string   `yaml:"pointer"`
		Outputs    []string `yaml:"outputs"`
		Deps       []string `yaml:"deps"`
	} `yaml:"archive"`
}

// fileHint is the on-disk representation of a hint: an archive the resolver
// should consider for a directory it hasn't been asked to produce directly.
// Pattern, if set, additionally makes the hint apply automatically whenever
// an install touches a destination path matching the glob (see
// ApplyPatternHints), rather than only when DirHash is requested directly.
type fileHint struct {
	DirHash string `yaml:"dir"`
	ArcHash string `yaml:"archive"`
	Pattern string `yaml:"pattern"`
}

// fileFormat is the top-level shape of a rule-set YAML file.
type fileFormat struct {
	Rules []fileRule `yaml:"rules"`
	Hints []fileHint `yaml:"hints"`
}

// PatternHint records one pattern-triggered hint, surfaced from LoadFile so
// a caller can later apply it against the actual set of requested
// destination paths via ApplyPatternHints.
type PatternHint struct {
	Pattern string
	DirHash hash.Hash
	ArcHash hash.Hash
}

// LoadFile reads a YAML rule-set file and returns the rules it declares
// together with a StaticRuleFinder built from them (with every
// unconditional hint already registered) and the file's pattern-triggered
// hints, which the caller applies once the actual requested paths are
// known (see ApplyPatternHints). This is Spread's concrete rule-data
// source: channel/package metadata in a real deployment takes this same
// shape.
func LoadFile(path string) ([]*Rule, *StaticRuleFinder, []PatternHint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "unable to read rule file")
	}

	var parsed fileFormat
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, nil, nil, errors.Wrap(err, "unable to parse rule file")
	}

	rulesList := make([]*Rule, 0, len(parsed.Rules))
	for i, fr := range parsed.Rules {
		rule, err := fr.toRule()
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "rule %d", i)
		}
		rulesList = append(rulesList, rule)
	}

	finder := NewStaticRuleFinder(rulesList)

	var patternHints []PatternHint
	for i, fh := range parsed.Hints {
		dirHash, err := hash.Parse(fh.DirHash)
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "hint %d: dir hash", i)
		}
		arcHash, err := hash.Parse(fh.ArcHash)
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "hint %d: archive hash", i)
		}
		if fh.Pattern == "" {
			finder.AddHint(dirHash, arcHash)
			continue
		}
		// Validate the pattern by matching it against a non-empty path: a
		// bad pattern surfaces as an error here, not as a silent non-match
		// later (doublestar.Match's only failure mode is a malformed
		// pattern).
		if _, err := doublestar.Match(fh.Pattern, "a"); err != nil {
			return nil, nil, nil, errors.Wrapf(err, "hint %d: invalid glob pattern %q", i, fh.Pattern)
		}
		patternHints = append(patternHints, PatternHint{Pattern: fh.Pattern, DirHash: dirHash, ArcHash: arcHash})
	}

	return rulesList, finder, patternHints, nil
}

// ApplyPatternHints registers, onto finder, every pattern hint whose glob
// matches at least one of requestedPaths. This lets a rule file declare
// "if the install touches anything under vendor/**, consider this archive
// a useful hint" without the caller needing to know the directory hash in
// advance, the same ignore-style glob matching doublestar provides
// elsewhere in the ecosystem.
func ApplyPatternHints(finder *StaticRuleFinder, hints []PatternHint, requestedPaths []string) {
	for _, h := range hints {
		for _, path := range requestedPaths {
			if matched, _ := doublestar.Match(h.Pattern, path); matched {
				finder.AddHint(h.DirHash, h.ArcHash)
				break
			}
		}
	}
}

func (fr fileRule) toRule() (*Rule, error) {
	switch {
	case fr.URL != nil && fr.Archive != nil:
		return nil, errors.New("rule declares both url and archive")
	case fr.URL != nil:
		output, err := hash.Parse(fr.URL.Output)
		if err != nil {
			return nil, errors.Wrap(err, "url rule output hash")
		}
		return &Rule{
			RuleString: fr.RuleString,
			Type:       TypeURL,
			Outputs:    []hash.Hash{output},
			URL: URLPayload{
				URL:      fr.URL.Location,
				Priority: fr.URL.Priority,
				Weight:   fr.URL.Weight,
				Size:     fr.URL.Size,
			},
		}, nil
	case fr.Archive != nil:
		arcHash, err := hash.Parse(fr.Archive.ArcHash)
		if err != nil {
			return nil, errors.Wrap(err, "archive rule hash")
		}
		var dirHash hash.Hash
		if fr.Archive.DirHash != "" {
			dirHash, err = hash.Parse(fr.Archive.DirHash)
			if err != nil {
				return nil, errors.Wrap(err, "archive rule dir hash")
			}
		}
		outputs := make([]hash.Hash, 0, len(fr.Archive.Outputs))
		for i, text := range fr.Archive.Outputs {
			h, err := hash.Parse(text)
			if err != nil {
				return nil, errors.Wrapf(err, "archive rule output %d", i)
			}
			outputs = append(outputs, h)
		}
		deps := make([]hash.Hash, 0, len(fr.Archive.Deps)+1)
		deps = append(deps, arcHash)
		for i, text := range fr.Archive.Deps {
			h, err := hash.Parse(text)
			if err != nil {
				return nil, errors.Wrapf(err, "archive rule dep %d", i)
			}
			deps = append(deps, h)
		}
		return &Rule{
			RuleString: fr.RuleString,
			Type:       TypeArchive,
			Deps:       deps,
			Outputs:    outputs,
			Archive: ArchivePayload{
				ArcHash:    arcHash,
				DirHash:    dirHash,
				DirPointer: fr.Archive.DirPointer,
			},
		}, nil
	default:
		return nil, errors.New("rule declares neither url nor archive")
	}
}
