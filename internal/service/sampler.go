package service

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/egd-cxr-toolkit/internal/domain"
)

// SamplerConfig holds the target size, quotas and seed of the stratified sampler.
type SamplerConfig struct {
	Size           int
	Seed           int64
	PrimaryQuota   int
	ComplexQuota   int
	SecondaryQuota int
	MinComplexity  int
	Primary        []domain.Condition
	Secondary      []domain.Condition
}

// DefaultSamplerConfig returns the quotas of the diverse stratified strategy:
// 8 per primary condition, 8 complex cases, 3 per secondary condition, 50 total.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Size:           50,
		Seed:           42,
		PrimaryQuota:   8,
		ComplexQuota:   8,
		SecondaryQuota: 3,
		MinComplexity:  2,
		Primary:        domain.DefaultPrimaryConditions,
		Secondary:      domain.DefaultSecondaryConditions,
	}
}

// SamplerConfigFrom maps the sampling section of the configuration.
func SamplerConfigFrom(c domain.SamplingConfig) SamplerConfig {
	return SamplerConfig{
		Size:           c.Size,
		Seed:           c.Seed,
		PrimaryQuota:   c.PrimaryQuota,
		ComplexQuota:   c.ComplexQuota,
		SecondaryQuota: c.SecondaryQuota,
		MinComplexity:  c.MinComplexity,
		Primary:        c.Primary(),
		Secondary:      c.Secondary(),
	}
}

// Conditions returns primary followed by secondary conditions.
func (c SamplerConfig) Conditions() []domain.Condition {
	out := make([]domain.Condition, 0, len(c.Primary)+len(c.Secondary))
	out = append(out, c.Primary...)
	return append(out, c.Secondary...)
}

// StratifiedSampler selects a case subset balanced across clinical conditions.
type StratifiedSampler struct {
	logger *logrus.Logger
	config SamplerConfig
}

// NewStratifiedSampler creates a sampler.
func NewStratifiedSampler(logger *logrus.Logger, config SamplerConfig) *StratifiedSampler {
	if config.MinComplexity <= 0 {
		config.MinComplexity = 2
	}
	return &StratifiedSampler{logger: logger, config: config}
}

// selection tracks picked cases in order; a case is never added twice.
type selection struct {
	cases  []*domain.Case
	used   map[string]struct{}
	strata map[string]string
}

func (s *selection) add(c *domain.Case, stratum string) {
	s.cases = append(s.cases, c)
	s.used[c.DicomID] = struct{}{}
	s.strata[c.DicomID] = stratum
}

func (s *selection) unused(pool []*domain.Case, keep func(*domain.Case) bool) []*domain.Case {
	var out []*domain.Case
	for _, c := range pool {
		if _, taken := s.used[c.DicomID]; taken {
			continue
		}
		if keep == nil || keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// Sample runs the fixed-priority selection over cases that already passed the
// completeness check:
//
//  1. up to PrimaryQuota positives per primary condition
//  2. up to ComplexQuota cases with at least MinComplexity positive flags
//  3. up to SecondaryQuota positives per secondary condition
//  4. a random fill up to Size from what is left
//  5. a uniform downsample to Size if the quotas overshoot
//
// All draws come from one source seeded with Seed, so the same input and seed always
// produce the same sample. Fewer than Size cases are returned when the pool runs out.
func (s *StratifiedSampler) Sample(cases []*domain.Case) *domain.SampleSet {
	cfg := s.config
	rng := rand.New(rand.NewSource(cfg.Seed))
	sel := &selection{used: make(map[string]struct{}), strata: make(map[string]string)}

	for _, cond := range cfg.Primary {
		s.drawCondition(rng, sel, cases, cond, cfg.PrimaryQuota, domain.StratumPrimary)
	}

	conds := cfg.Conditions()
	complexCases := sel.unused(cases, func(c *domain.Case) bool {
		return c.Complexity(conds) >= cfg.MinComplexity
	})
	picked := draw(rng, complexCases, cfg.ComplexQuota)
	for _, c := range picked {
		sel.add(c, string(domain.StratumComplex))
	}
	s.logQuota("complex", len(picked), cfg.ComplexQuota, len(complexCases))

	for _, cond := range cfg.Secondary {
		s.drawCondition(rng, sel, cases, cond, cfg.SecondaryQuota, domain.StratumSecondary)
	}

	if remaining := cfg.Size - len(sel.cases); remaining > 0 {
		fill := draw(rng, sel.unused(cases, nil), remaining)
		for _, c := range fill {
			sel.add(c, string(domain.StratumFill))
		}
		s.logger.WithField("count", len(fill)).Info("Added diverse random samples")
	}

	final := sel.cases
	if len(final) > cfg.Size {
		final = draw(rng, final, cfg.Size)
	}

	strata := make(map[string]string, len(final))
	for _, c := range final {
		strata[c.DicomID] = sel.strata[c.DicomID]
	}

	s.logger.WithFields(logrus.Fields{
		"selected": len(final),
		"target":   cfg.Size,
		"pool":     len(cases),
		"seed":     cfg.Seed,
	}).Info("Final diverse sample")

	return &domain.SampleSet{
		Cases:      final,
		TargetSize: cfg.Size,
		Seed:       cfg.Seed,
		Strata:     strata,
	}
}

func (s *StratifiedSampler) drawCondition(rng *rand.Rand, sel *selection, pool []*domain.Case, cond domain.Condition, quota int, stratum domain.Stratum) {
	candidates := sel.unused(pool, func(c *domain.Case) bool { return c.Has(cond) })
	picked := draw(rng, candidates, quota)
	for _, c := range picked {
		sel.add(c, string(stratum)+":"+string(cond))
	}
	s.logQuota(string(cond), len(picked), quota, len(candidates))
}

func (s *StratifiedSampler) logQuota(stratum string, got, quota, available int) {
	entry := s.logger.WithFields(logrus.Fields{
		"stratum":   stratum,
		"sampled":   got,
		"quota":     quota,
		"available": available,
	})
	if got < quota {
		entry.Info("Quota not filled, continuing with fewer cases")
		return
	}
	entry.Info("Sampled cases")
}

// draw picks min(n, len(pool)) cases uniformly without replacement. The pool is not
// modified.
func draw(rng *rand.Rand, pool []*domain.Case, n int) []*domain.Case {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	if n > len(pool) {
		n = len(pool)
	}
	shuffled := make([]*domain.Case, len(pool))
	copy(shuffled, pool)
	// Partial Fisher-Yates: the first n slots end up uniformly chosen
	for i := 0; i < n; i++ {
		j := i + rng.Intn(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n]
}
