package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/estateops/pkg/async"
	"github.com/platinummonkey/estateops/pkg/events"
	"github.com/platinummonkey/estateops/pkg/observability"
	"github.com/platinummonkey/estateops/pkg/records"
)

const (
	// SubscriberName identifies the engine on the bus
	SubscriberName = "automation"
	// Actor is recorded on every write an automation rule makes
	Actor = "automation"
)

// Config configures an Engine
type Config struct {
	CacheSize   int
	CacheTTL    time.Duration
	RuleTimeout time.Duration
}

// DefaultConfig returns engine defaults
func DefaultConfig() Config {
	return Config{
		CacheSize:   1024,
		CacheTTL:    5 * time.Minute,
		RuleTimeout: 5 * time.Second,
	}
}

// Engine evaluates rules against events
type Engine struct {
	cfg       Config
	store     records.Store
	publisher events.Publisher
	log       *logrus.Logger
	metrics   *observability.Metrics

	mu    sync.RWMutex
	rules []Rule

	// per-tenant rule lists, rebuilt lazily after a reload
	cache *lru.LRU[uuid.UUID, []Rule]
}

// NewEngine creates an engine with no rules
func NewEngine(cfg Config, store records.Store, publisher events.Publisher, log *logrus.Logger, metrics *observability.Metrics) *Engine {
	d := DefaultConfig()
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = d.CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = d.CacheTTL
	}
	if cfg.RuleTimeout <= 0 {
		cfg.RuleTimeout = d.RuleTimeout
	}
	if log == nil {
		log = logrus.New()
	}

	return &Engine{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		log:       log,
		metrics:   metrics,
		cache:     lru.NewLRU[uuid.UUID, []Rule](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// Register subscribes the engine to every event type a rule may use
func (e *Engine) Register(bus *events.Bus) {
	for _, t := range events.Catalogue {
		if t == events.AccessDenied {
			continue
		}
		bus.Subscribe(t, SubscriberName, e)
	}
}

// SetRules replaces the active rule set
func (e *Engine) SetRules(rules []Rule) {
	e.mu.Lock()
	e.rules = rules
	e.cache.Purge()
	e.mu.Unlock()

	e.log.WithField("rules", len(rules)).Info("Automation rules loaded")
}

// Reload reads path and replaces the active rules. On error the previous
// rules stay active.
func (e *Engine) Reload(path string) error {
	rules, err := LoadFile(path)
	if err != nil {
		return err
	}
	e.SetRules(rules)
	return nil
}

// RuleCount returns the number of active rules
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// RulesFor returns the rules owned by tenantID
func (e *Engine) RulesFor(tenantID uuid.UUID) []Rule {
	if cached, ok := e.cache.Get(tenantID); ok {
		return cached
	}

	e.mu.RLock()
	var out []Rule
	for _, r := range e.rules {
		if r.tenant == tenantID {
			out = append(out, r)
		}
	}
	// populate under the read lock so a concurrent SetRules purge wins
	e.cache.Add(tenantID, out)
	e.mu.RUnlock()
	return out
}

// Handle implements events.Handler
func (e *Engine) Handle(ctx context.Context, evt events.Event) error {
	// writes made by rules publish events too; never react to our own
	if evt.Actor == Actor {
		return nil
	}

	var failed int
	for _, rule := range e.RulesFor(evt.TenantID) {
		if !rule.Matches(evt) {
			continue
		}

		err := async.Run(ctx, e.cfg.RuleTimeout, rule.Name, func(ctx context.Context) error {
			return e.execute(ctx, rule, evt)
		})

		result := "ok"
		if err != nil {
			failed++
			result = "error"
			var pe *async.PanicError
			if errors.As(err, &pe) {
				result = "panic"
			}
			e.log.WithFields(logrus.Fields{
				"rule":       rule.Name,
				"tenant_id":  evt.TenantID.String(),
				"event_id":   evt.ID,
				"event_type": evt.Type,
			}).WithError(err).Error("Automation rule failed")
		}
		e.metrics.RecordRuleExecution(string(rule.Action.Type), result)
	}

	if failed > 0 {
		return fmt.Errorf("%d automation rule(s) failed for event %s", failed, evt.ID)
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, rule Rule, evt events.Event) error {
	if rule.Action.Type == ActionLog {
		e.log.WithFields(logrus.Fields{
			"rule":        rule.Name,
			"tenant_id":   evt.TenantID.String(),
			"event_type":  evt.Type,
			"resource_id": evt.ResourceID,
		}).Info(rule.Action.Params["message"])
		return nil
	}

	scope, err := evt.Scope()
	if err != nil {
		return err
	}
	svc, err := records.NewService(e.store, scope, e.publisher, Actor)
	if err != nil {
		return err
	}
	taskID, err := uuid.Parse(evt.ResourceID)
	if err != nil {
		return fmt.Errorf("event resource %q is not a task id: %w", evt.ResourceID, err)
	}

	switch rule.Action.Type {
	case ActionAssign:
		_, err = svc.Assign(ctx, taskID, rule.Action.Params["assignee"])
	case ActionSetStatus:
		_, err = svc.SetStatus(ctx, taskID, rule.Action.Params["status"])
	default:
		err = fmt.Errorf("unknown action type %q", rule.Action.Type)
	}
	return err
}
