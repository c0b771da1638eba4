package hook

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestLoadYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "hooks.yaml")
	os.WriteFile(yamlPath, []byte(`
- matcher:
    event: alert_triggered
    symbols: ["AAPL", "BRK.*"]
  hooks:
    - command: echo fired
      timeout: 500
`), 0644)

	m := NewManager(dir, nil)
	if err := m.Load(yamlPath); err != nil {
		t.Fatalf("Load yaml: %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}

	jsonPath := filepath.Join(dir, "hooks.json")
	os.WriteFile(jsonPath, []byte(`[{"matcher":{"event":"order_rejected"},"hooks":[{"command":"true"}]}]`), 0644)
	if err := m.Load(jsonPath); err != nil {
		t.Fatalf("Load json: %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len after reload = %d, want 1", m.Len())
	}

	if err := m.Load(filepath.Join(dir, "missing.yaml")); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"event":   `[{"matcher":{"event":"PreToolUse"},"hooks":[{"command":"true"}]}]`,
		"pattern": `[{"matcher":{"event":"alert_triggered","symbols":["[A"]},"hooks":[{"command":"true"}]}]`,
		"command": `[{"matcher":{"event":"alert_triggered"},"hooks":[{"command":"  "}]}]`,
		"syntax":  `[{`,
	}
	for name, body := range tests {
		path := filepath.Join(dir, name+".json")
		os.WriteFile(path, []byte(body), 0644)
		if err := NewManager(dir, nil).Load(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestRunMatchesSymbolAndKind(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, nil)
	m.Register(Config{
		Matcher: Matcher{Event: EventAlertTriggered, Symbols: []string{"brk.*"}, Kinds: []string{"price_above"}},
		Hooks:   []Command{{Command: "echo ${symbol} $HOOK_KIND $HOOK_TARGET"}},
	})

	res := m.Run(context.Background(), Payload{
		Event:  EventAlertTriggered,
		Symbol: "BRK.B",
		Kind:   "PRICE_ABOVE",
		Fields: map[string]string{"target": "450"},
	})
	if res.Runs != 1 {
		t.Fatalf("Runs = %d, want 1", res.Runs)
	}
	if got := strings.TrimSpace(res.Output); got != "BRK.B PRICE_ABOVE 450" {
		t.Errorf("Output = %q", got)
	}

	if res := m.Run(context.Background(), Payload{Event: EventAlertTriggered, Symbol: "AAPL", Kind: "price_above"}); res.Runs != 0 {
		t.Errorf("symbol mismatch ran %d commands", res.Runs)
	}
	if res := m.Run(context.Background(), Payload{Event: EventAlertTriggered, Symbol: "BRK.A", Kind: "price_below"}); res.Runs != 0 {
		t.Errorf("kind mismatch ran %d commands", res.Runs)
	}
	if res := m.Run(context.Background(), Payload{Event: EventOrderRejected, Symbol: "BRK.B"}); res.Runs != 0 {
		t.Errorf("event mismatch ran %d commands", res.Runs)
	}
}

func TestPreSubmitBlocks(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	m.Register(Config{
		Matcher: Matcher{Event: EventPreSubmit},
		Hooks: []Command{
			{Command: "echo 'desk closed'; exit 2"},
			{Command: "echo should-not-run"},
		},
	})

	var mu sync.Mutex
	results := map[string]int{}
	m.OnRun = func(e Event, r string) {
		mu.Lock()
		results[string(e)+"/"+r]++
		mu.Unlock()
	}

	res := m.Run(context.Background(), Payload{Event: EventPreSubmit, Symbol: "TSLA"})
	if !res.Blocked {
		t.Fatal("expected order to be blocked")
	}
	if res.Message != "desk closed" {
		t.Errorf("Message = %q", res.Message)
	}
	if res.Runs != 1 {
		t.Errorf("Runs = %d, want 1", res.Runs)
	}
	if results["pre_submit/blocked"] != 1 {
		t.Errorf("OnRun results = %v", results)
	}
}

func TestExitTwoOnlyBlocksPreSubmit(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	m.Register(Config{
		Matcher: Matcher{Event: EventOrderSubmitted},
		Hooks:   []Command{{Command: "exit 2"}, {Command: "exit 1"}, {Command: "true"}},
	})

	res := m.Run(context.Background(), Payload{Event: EventOrderSubmitted, Symbol: "AAPL"})
	if res.Blocked {
		t.Error("order_submitted hooks cannot block")
	}
	if res.Runs != 3 || res.Failed != 1 {
		t.Errorf("Runs = %d Failed = %d, want 3 and 1", res.Runs, res.Failed)
	}
}

func TestHookData(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	m.Register(Config{
		Matcher: Matcher{Event: EventOrderRejected},
		Hooks:   []Command{{Command: `printf '%s' "$HOOK_DATA"`}},
	})

	res := m.Run(context.Background(), Payload{
		Event:  EventOrderRejected,
		Symbol: "TSLA",
		Kind:   "insufficient_funds",
		Data:   map[string]int{"qty": 10},
	})
	if !strings.Contains(res.Output, `"kind":"insufficient_funds"`) || !strings.Contains(res.Output, `"qty":10`) {
		t.Errorf("HOOK_DATA = %s", res.Output)
	}
}

func TestCommandTimeout(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	m.Register(Config{
		Matcher: Matcher{Event: EventPortfolioRisk},
		Hooks:   []Command{{Command: "sleep 5", Timeout: 50}},
	})

	res := m.Run(context.Background(), Payload{Event: EventPortfolioRisk})
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
}

func TestExpandTemplate(t *testing.T) {
	got := expandTemplate("notify ${symbol} at ${price} ${missing}", map[string]string{"symbol": "AAPL", "price": "180"})
	if got != "notify AAPL at 180 ${missing}" {
		t.Errorf("expandTemplate = %q", got)
	}
}
