package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"bytematch/internal/config"
	"bytematch/internal/metrics"
	"bytematch/internal/rules"
	"bytematch/pkg/matcher"
)

// DenyAction is the action of the rule set installed in strict mode when
// the controller cannot be reached.
const DenyAction = "deny"

func NewFetcher(controllerURL, configHash string, fetchInterval time.Duration, verbose bool, operationalMode string, tlsCfg TLSConfig, updateChannel chan<- rules.Set) (*Fetcher, error) {
	tlsConfig, err := loadTLSConfig(tlsCfg)
	if err != nil {
		return nil, err
	}

	return &Fetcher{
		controllerURL:   controllerURL,
		configHash:      configHash,
		fetchInterval:   fetchInterval,
		verbose:         verbose,
		operationalMode: operationalMode,
		updateChannel:   updateChannel,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig:   tlsConfig,
				ForceAttemptHTTP2: true,
			},
		},
	}, nil
}

// Start polls the controller until ctx is done.
func (f *Fetcher) Start(ctx context.Context) {
	if f.verbose {
		log.Info().Msgf("Starting rule set fetcher, controller: %s, interval: %v", f.controllerURL, f.fetchInterval)
	}
	if f.configHash == "" {
		log.Warn().Msg("BYTEMATCH_CONTROLLER_HASH is empty, the controller may not select a rule set")
	}

	// Fetch immediately on start
	interval := f.fetchOnce(ctx)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(f.fetchOnce(ctx))
		}
	}
}

// fetchOnce runs one poll, applies the operational mode on failure and
// returns the delay before the next poll.
func (f *Fetcher) fetchOnce(ctx context.Context) time.Duration {
	policy, err := f.fetchPolicy(ctx)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(metrics.ErrorTypePolicyFetch, "controller").Inc()
		log.Err(err).Msgf("Error fetching rule set, operational mode is %s", f.operationalMode)
		if f.operationalMode == config.ModeStrict {
			f.send(ctx, denyAll())
			f.lastVersion = ""
		}
		return f.fetchInterval
	}

	next := f.fetchInterval
	if policy.Spec.Interval > 0 {
		next = time.Duration(policy.Spec.Interval) * time.Second
	}

	version := policy.ResourceVersion
	if version != "" && version == f.lastVersion {
		if f.verbose {
			log.Info().Msgf("Rule set %s unchanged at version %s", policy.Name, version)
		}
		return next
	}

	doc := rules.Document{Fold: policy.Spec.Fold, Rules: policy.Spec.Rules}
	rs, err := doc.Set()
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(metrics.ErrorTypePolicyFetch, "controller_rules").Inc()
		log.Err(err).Msgf("Rule set %s from controller is invalid", policy.Name)
		return next
	}

	if f.verbose {
		log.Info().Msgf("Fetched %d rules from controller (%s, version %q)", len(rs.Rules), policy.Name, version)
	}
	f.send(ctx, rs)
	f.lastVersion = version
	return next
}

func (f *Fetcher) send(ctx context.Context, rs rules.Set) {
	select {
	case f.updateChannel <- rs:
	case <-ctx.Done():
	}
}

func (f *Fetcher) fetchPolicy(ctx context.Context) (*RuleSetPolicy, error) {
	u := fmt.Sprintf("%s/api/rulesets?hash=%s", f.controllerURL, url.QueryEscape(f.configHash))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from controller: %d", resp.StatusCode)
	}

	var controllerResp ControllerResponse
	if err := json.NewDecoder(resp.Body).Decode(&controllerResp); err != nil {
		return nil, fmt.Errorf("decode rule set response: %w", err)
	}
	if len(controllerResp.Policy.Spec.Rules) == 0 {
		return nil, errors.New("controller returned an empty rule set")
	}
	return &controllerResp.Policy, nil
}

func denyAll() rules.Set {
	return rules.Set{Rules: []matcher.Rule[string]{{Pattern: matcher.Wildcard(), Action: DenyAction}}}
}
