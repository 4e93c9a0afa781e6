package app

import (
	"sync"

	"go.uber.org/zap"

	"github.com/five82/tether/internal/config"
	"github.com/five82/tether/internal/pipeline"
)

// ruleSource feeds highlight rules to the pipeline. Each RuleSet call rereads
// the rules file, so a highlight restart picks up edits. A broken file keeps
// the last good rules.
type ruleSource struct {
	mu   sync.Mutex
	cfg  config.Config
	last pipeline.RuleSet
	hide bool
	log  *zap.SugaredLogger
}

func newRuleSource(cfg config.Config, log *zap.SugaredLogger) *ruleSource {
	r := &ruleSource{cfg: cfg, hide: cfg.HideEnabled, log: log}
	set, err := cfg.RuleSet()
	if err != nil {
		log.Warnw("rules rejected", "error", err)
	}
	r.last = set
	return r
}

// RuleSet is a pipeline.RuleProvider.
func (r *ruleSource) RuleSet() pipeline.RuleSet {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.cfg
	if err := next.ReloadRules(); err != nil {
		r.log.Warnw("rules file not reloaded", "path", r.cfg.RulesFile, "error", err)
	} else if set, err := next.RuleSet(); err != nil {
		r.log.Warnw("rules rejected", "error", err)
	} else {
		r.cfg = next
		r.last = set
	}
	set := r.last
	set.HideEnabled = r.hide
	return set
}

// Rules returns the rules currently in effect.
func (r *ruleSource) Rules() []config.Rule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]config.Rule(nil), r.cfg.Rules...)
}

func (r *ruleSource) setHide(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hide = enabled
}

// controller keeps the hide toggle across highlight restarts.
type controller struct {
	*pipeline.Supervisor
	rules *ruleSource
}

func (c controller) SetHideEnabled(enabled bool) {
	c.rules.setHide(enabled)
	c.Supervisor.SetHideEnabled(enabled)
}
