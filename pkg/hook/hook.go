// Package hook runs external commands when orders and alerts change state
package hook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Event represents the type of hook event
type Event string

const (
	// EventPreSubmit runs before an accepted order is handed to the
	// submitter. A command exiting with status 2 blocks the order.
	EventPreSubmit      Event = "pre_submit"
	EventOrderSubmitted Event = "order_submitted"
	EventOrderRejected  Event = "order_rejected"
	EventAlertTriggered Event = "alert_triggered"
	EventPortfolioRisk  Event = "portfolio_risk"
)

// BlockExitCode is the exit status a command uses to block a pre_submit event.
const BlockExitCode = 2

const defaultTimeout = 10 * time.Second

// Config represents one hook configuration
type Config struct {
	// Matcher identifies when this hook should run
	Matcher Matcher `json:"matcher" yaml:"matcher"`

	// Hooks are the commands to execute
	Hooks []Command `json:"hooks" yaml:"hooks"`
}

// Matcher defines conditions for when a hook should run
type Matcher struct {
	Event Event `json:"event" yaml:"event"`

	// Symbol patterns (doublestar glob), e.g. "AAPL" or "BRK.*"
	Symbols []string `json:"symbols,omitempty" yaml:"symbols,omitempty"`

	// Kinds narrows by alert condition, rejection kind or risk level
	Kinds []string `json:"kinds,omitempty" yaml:"kinds,omitempty"`
}

// Command is a shell command to execute
type Command struct {
	Command string `json:"command" yaml:"command"`

	// Timeout in milliseconds
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Payload is what a hook receives. Fields are exported to the command as
// HOOK_<KEY> variables, ${key} template substitutions and HOOK_DATA JSON.
type Payload struct {
	Event  Event
	Symbol string
	Kind   string
	Fields map[string]string
	Data   any
}

// Result represents the result of running the hooks for one event
type Result struct {
	// Blocked indicates the action should not proceed
	Blocked bool   `json:"blocked"`
	Message string `json:"message,omitempty"`
	Output  string `json:"output,omitempty"`
	Runs    int    `json:"runs"`
	Failed  int    `json:"failed"`
}

// Manager manages hooks
type Manager struct {
	hooks   []Config
	workDir string
	logger  *zap.Logger

	// OnRun is called after each command with the event and one of
	// "ok", "blocked" or "error".
	OnRun func(event Event, result string)

	mu sync.RWMutex
}

// NewManager creates a hook manager running commands in workDir. logger may be nil.
func NewManager(workDir string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		hooks:   make([]Config, 0),
		workDir: workDir,
		logger:  logger.Named("hook"),
	}
}

// Load reads hooks from a JSON or YAML file. A missing file is not an error.
func (m *Manager) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read hooks: %w", err)
	}

	var configs []Config
	if err := json.Unmarshal(data, &configs); err != nil {
		if err := yaml.Unmarshal(data, &configs); err != nil {
			return fmt.Errorf("failed to parse hooks config: %w", err)
		}
	}
	for i, c := range configs {
		if err := c.validate(); err != nil {
			return fmt.Errorf("hook %d: %w", i, err)
		}
	}

	m.mu.Lock()
	m.hooks = configs
	m.mu.Unlock()
	return nil
}

// Register adds a hook programmatically
func (m *Manager) Register(c Config) error {
	if err := c.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, c)
	return nil
}

// Len returns the number of configured hooks.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hooks)
}

func (c Config) validate() error {
	switch c.Matcher.Event {
	case EventPreSubmit, EventOrderSubmitted, EventOrderRejected, EventAlertTriggered, EventPortfolioRisk:
	default:
		return fmt.Errorf("unknown event %q", c.Matcher.Event)
	}
	for _, p := range c.Matcher.Symbols {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("bad symbol pattern %q", p)
		}
	}
	for _, cmd := range c.Hooks {
		if strings.TrimSpace(cmd.Command) == "" {
			return errors.New("empty command")
		}
	}
	return nil
}

// Run executes every hook matching p. For EventPreSubmit it stops at the
// first command that blocks.
func (m *Manager) Run(ctx context.Context, p Payload) Result {
	m.mu.RLock()
	hooks := m.matching(p)
	m.mu.RUnlock()

	var res Result
	for _, h := range hooks {
		for _, cmd := range h.Hooks {
			out, blocked, err := m.executeCommand(ctx, cmd, p)
			res.Runs++
			res.Output += out

			switch {
			case blocked && p.Event == EventPreSubmit:
				m.observe(p.Event, "blocked")
				res.Blocked = true
				res.Message = strings.TrimSpace(out)
				m.logger.Info("order blocked by hook",
					zap.String("symbol", p.Symbol), zap.String("command", cmd.Command), zap.String("message", res.Message))
				return res
			case err != nil:
				m.observe(p.Event, "error")
				res.Failed++
				m.logger.Warn("hook failed",
					zap.String("event", string(p.Event)), zap.String("command", cmd.Command), zap.Error(err))
			default:
				m.observe(p.Event, "ok")
			}
		}
	}
	return res
}

func (m *Manager) observe(event Event, result string) {
	if m.OnRun != nil {
		m.OnRun(event, result)
	}
}

// matching returns hooks that match the payload
func (m *Manager) matching(p Payload) []Config {
	var out []Config
	for _, h := range m.hooks {
		if h.Matcher.Event != p.Event {
			continue
		}
		if len(h.Matcher.Symbols) > 0 && !matchAny(p.Symbol, h.Matcher.Symbols) {
			continue
		}
		if len(h.Matcher.Kinds) > 0 && !containsFold(h.Matcher.Kinds, p.Kind) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// executeCommand executes a shell command hook
func (m *Manager) executeCommand(ctx context.Context, cmd Command, p Payload) (string, bool, error) {
	timeout := defaultTimeout
	if cmd.Timeout > 0 {
		timeout = time.Duration(cmd.Timeout) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vars := p.vars()
	command := expandTemplate(cmd.Command, vars)

	env := os.Environ()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("HOOK_%s=%s", strings.ToUpper(k), vars[k]))
	}

	data, err := json.Marshal(map[string]any{
		"event":  p.Event,
		"symbol": p.Symbol,
		"kind":   p.Kind,
		"fields": p.Fields,
		"data":   p.Data,
	})
	if err != nil {
		return "", false, fmt.Errorf("marshal hook data: %w", err)
	}
	env = append(env, "HOOK_DATA="+string(data))

	shellCmd := exec.CommandContext(ctx, "sh", "-c", command)
	shellCmd.Env = env
	shellCmd.Dir = m.workDir
	shellCmd.WaitDelay = time.Second

	output, err := shellCmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == BlockExitCode {
			return string(output), true, nil
		}
		return string(output), false, err
	}
	return string(output), false, nil
}

func (p Payload) vars() map[string]string {
	vars := make(map[string]string, len(p.Fields)+3)
	for k, v := range p.Fields {
		vars[k] = v
	}
	vars["event"] = string(p.Event)
	vars["symbol"] = p.Symbol
	vars["kind"] = p.Kind
	return vars
}

// matchAny checks if the symbol matches any of the patterns
func matchAny(symbol string, patterns []string) bool {
	symbol = strings.ToUpper(symbol)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(strings.ToUpper(pattern), symbol); ok {
			return true
		}
	}
	return false
}

func containsFold(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// expandTemplate replaces ${key} with its value
func expandTemplate(template string, vars map[string]string) string {
	result := template
	for k, v := range vars {
		result = strings.ReplaceAll(result, "${"+k+"}", v)
	}
	return result
}
