package research

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/watch-research/internal/techspec"
)

// Policy is the ordered preference list of spec providers. The first
// provider that returns a successful result wins.
type Policy struct {
	Providers []string `yaml:"providers"`
}

// DefaultPolicy prefers the search-capable provider and falls back to the
// configured non-search backend.
func DefaultPolicy(fallback string) *Policy {
	if fallback == "" {
		fallback = techspec.NameOpenAI
	}
	return &Policy{Providers: []string{techspec.NamePerplexity, fallback}}
}

// LoadPolicy reads a policy from a YAML file. An empty path yields the
// default policy. The file has a top-level "research" key:
//
//	research:
//	  providers: [perplexity, anthropic]
func LoadPolicy(path, fallback string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(fallback), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "research: read policy %s", path)
	}

	var wrapper struct {
		Research Policy `yaml:"research"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "research: parse policy")
	}

	p := &wrapper.Research
	if err := p.normalize(); err != nil {
		return nil, err
	}
	if len(p.Providers) == 0 {
		return DefaultPolicy(fallback), nil
	}
	return p, nil
}

// normalize lowercases names, drops duplicates and rejects unknown
// providers.
func (p *Policy) normalize() error {
	seen := make(map[string]bool, len(p.Providers))
	out := make([]string, 0, len(p.Providers))
	for _, name := range p.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case techspec.NamePerplexity, techspec.NameOpenAI, techspec.NameAnthropic, techspec.NameGemini:
		default:
			return eris.Errorf("research: unknown provider %q in policy", name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	p.Providers = out
	return nil
}
