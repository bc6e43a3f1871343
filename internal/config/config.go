// Package config loads server settings from the environment and optional
// .env files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mcoot/chaosroom/internal/api"
	"github.com/mcoot/chaosroom/internal/audit"
	"github.com/mcoot/chaosroom/internal/factory"
	"github.com/mcoot/chaosroom/internal/model"
)

// Environment keys
const (
	EnvHTTPHost             = "HTTP_HOST"
	EnvHTTPPort             = "HTTP_PORT"
	EnvLogLevel             = "LOG_LEVEL"
	EnvStorageType          = "STORAGE_TYPE"
	EnvRedisURL             = "REDIS_URL"
	EnvMissionDuration      = "MISSION_DURATION"
	EnvOnboardingTokens     = "ONBOARDING_TOKENS"
	EnvChaosCycle           = "CHAOS_CYCLE"
	EnvChaosRules           = "CHAOS_RULES"
	EnvSurvivalCredit       = "SURVIVAL_CREDIT"
	EnvDedupeSurvivalCredit = "DEDUPE_SURVIVAL_CREDIT"
	EnvSkipRuleResource     = "SKIP_RULE_RESOURCE"
	EnvSkipRuleCost         = "SKIP_RULE_COST"
	EnvStaleGrace           = "STALE_GRACE"
	EnvSweepExpired         = "SWEEP_EXPIRED_MISSIONS"
	EnvSweepInterval        = "SWEEP_INTERVAL"
	EnvAuditDialect         = "AUDIT_DIALECT"
	EnvAuditDSN             = "AUDIT_DSN"
	EnvSuperAdminEmails     = "SUPERADMIN_EMAILS"
	EnvCatalogPath          = "CATALOG_PATH"
	EnvSessionDuration      = "SESSION_DURATION"
)

// Config is everything cmd/server needs to start
type Config struct {
	LogLevel slog.Level
	Server   api.ServerConfig
	App      factory.Config
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		LogLevel: slog.LevelInfo,
		Server:   api.DefaultServerConfig(),
		App:      factory.DefaultConfig(),
	}
}

// Load reads the given .env files (missing files are skipped) and then the
// process environment, which wins over file values
func Load(envFiles ...string) (Config, error) {
	fileValues := map[string]string{}
	for _, path := range envFiles {
		values, err := godotenv.Read(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		for k, v := range values {
			if _, seen := fileValues[k]; !seen {
				fileValues[k] = v
			}
		}
	}

	return FromLookup(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := fileValues[key]
		return v, ok
	})
}

// FromLookup builds a Config from a key lookup, reporting every malformed value
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	cfg.Server.Host = p.str(EnvHTTPHost, cfg.Server.Host)
	cfg.Server.Port = p.integer(EnvHTTPPort, cfg.Server.Port)
	cfg.LogLevel = p.level(EnvLogLevel, cfg.LogLevel)

	app := &cfg.App
	app.StorageType = p.str(EnvStorageType, app.StorageType)
	app.Redis.URL = p.str(EnvRedisURL, app.Redis.URL)
	app.CatalogPath = p.str(EnvCatalogPath, app.CatalogPath)

	app.Session.MissionDuration = p.duration(EnvMissionDuration, app.Session.MissionDuration)
	app.Session.OnboardingTokens = int64(p.integer(EnvOnboardingTokens, int(app.Session.OnboardingTokens)))
	app.Session.SurvivalCredit = p.boolean(EnvSurvivalCredit, app.Session.SurvivalCredit)
	app.Session.DedupeSurvivalCredit = p.boolean(EnvDedupeSurvivalCredit, app.Session.DedupeSurvivalCredit)
	app.Session.StaleGrace = p.duration(EnvStaleGrace, app.Session.StaleGrace)
	app.Session.SkipRule.Amount = int64(p.integer(EnvSkipRuleCost, int(app.Session.SkipRule.Amount)))
	if raw, ok := p.value(EnvSkipRuleResource); ok {
		field, err := model.ParseBalanceField(raw)
		if err != nil {
			p.fail(EnvSkipRuleResource, err)
		} else {
			app.Session.SkipRule.Resource = field
		}
	}

	app.Chaos.Cycle = p.duration(EnvChaosCycle, app.Chaos.Cycle)
	if app.Chaos.Cycle < minChaosCycle {
		p.fail(EnvChaosCycle, fmt.Errorf("must be at least %s", minChaosCycle))
	}
	app.Chaos.Rules = p.list(EnvChaosRules, app.Chaos.Rules)

	app.Scheduler.SweepExpiredMissions = p.boolean(EnvSweepExpired, app.Scheduler.SweepExpiredMissions)
	app.Scheduler.SweepInterval = p.duration(EnvSweepInterval, app.Scheduler.SweepInterval)

	app.Audit.Dialect = audit.Dialect(strings.ToLower(p.str(EnvAuditDialect, string(app.Audit.Dialect))))
	app.Audit.DSN = p.str(EnvAuditDSN, app.Audit.DSN)

	app.Auth.SuperAdminEmails = p.list(EnvSuperAdminEmails, app.Auth.SuperAdminEmails)
	app.Auth.SessionDuration = p.duration(EnvSessionDuration, app.Auth.SessionDuration)

	if app.StorageType != factory.StorageTypeMemory && app.StorageType != factory.StorageTypeRedis {
		p.fail(EnvStorageType, fmt.Errorf("must be %q or %q", factory.StorageTypeMemory, factory.StorageTypeRedis))
	}

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// minChaosCycle is the shortest accepted chaos rotation
const minChaosCycle = time.Second

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) value(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) fail(key string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
}

func (p *parser) str(key, def string) string {
	if v, ok := p.value(key); ok {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v, ok := p.value(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v, ok := p.value(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.value(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare numbers are seconds
		secs, nerr := strconv.Atoi(v)
		if nerr != nil {
			p.fail(key, err)
			return def
		}
		d = time.Duration(secs) * time.Second
	}
	if d < 0 {
		p.fail(key, errors.New("must not be negative"))
		return def
	}
	return d
}

// list splits a comma separated value, dropping blanks
func (p *parser) list(key string, def []string) []string {
	v, ok := p.value(key)
	if !ok {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (p *parser) level(key string, def slog.Level) slog.Level {
	v, ok := p.value(key)
	if !ok {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		p.fail(key, err)
		return def
	}
	return lvl
}
