package policy

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/bbque-go/bbqued/pkg/accounter"
	"github.com/bbque-go/bbqued/pkg/app"
	"github.com/bbque-go/bbqued/pkg/appmanager"
	"github.com/bbque-go/bbqued/pkg/binding"
	"github.com/bbque-go/bbqued/pkg/respath"
	"github.com/bbque-go/bbqued/pkg/restree"
	"github.com/bbque-go/bbqued/pkg/rtid"
)

// GreedyPolicy is the reference scheduling policy: it visits READY and
// RUNNING EXCs in ascending priority order (lower value is better, per the
// application manager's priority-floor convention) and, for each, requests
// its cheapest currently-enabled working mode bound to the first legal
// physical id of the default binding domain. A rejected request (the
// normal negative outcome of insufficient capacity) is logged and the EXC
// is left for the next round; GreedyPolicy never retries within a round.
type GreedyPolicy struct {
	log zerolog.Logger
}

// NewGreedy returns a ready-to-use GreedyPolicy.
func NewGreedy(log zerolog.Logger) *GreedyPolicy {
	return &GreedyPolicy{log: log.With().Str("component", "policy").Str("policy", "greedy").Logger()}
}

func (p *GreedyPolicy) Name() string { return "greedy" }

// Run opens a speculative view named after the policy, schedules every
// READY/RUNNING EXC onto its cheapest enabled working mode, and returns the
// view token for the caller to carry through the sync-session protocol.
func (p *GreedyPolicy) Run(acc *accounter.Accounter, mgr *appmanager.Manager, binder *binding.Manager, tree *restree.Tree) (rtid.ViewToken, error) {
	token, code := acc.GetView(p.Name())
	if !code.Ok() {
		return 0, fmt.Errorf("policy: get_view failed: %w", code)
	}

	domain := binding.DefaultDomain
	ids := binder.IDs(domain)
	if len(ids) == 0 {
		return 0, fmt.Errorf("policy: no legal binding ids for domain %s", domain)
	}

	candidates := append(mgr.Running(), mgr.Ready()...)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Priority() < candidates[j].Priority() })

	for _, a := range candidates {
		p.scheduleOne(a, token, domain, ids, acc, tree)
	}
	return token, nil
}

func (p *GreedyPolicy) scheduleOne(a *app.App, token rtid.ViewToken, domain respath.Type, ids []int64, acc *accounter.Accounter, tree *restree.Tree) {
	enabled := a.EnabledWorkingModes()
	if len(enabled) == 0 {
		p.log.Warn().Str("app", a.UID().String()).Msg("no enabled working modes this round")
		return
	}
	w := enabled[0]

	refn, err := w.Bind(domain, respath.IDAny, ids[0], 0, tree)
	if err != nil {
		p.log.Warn().Str("app", a.UID().String()).Err(err).Msg("binding failed")
		return
	}

	code := a.ScheduleRequest(w, token, refn, acc)
	if !code.Ok() {
		p.log.Info().Str("app", a.UID().String()).Stringer("code", code).Msg("schedule request rejected, retrying next round")
	}
}
