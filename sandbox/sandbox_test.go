package sandbox

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caffeineduck/subinterp/executor"
	"github.com/caffeineduck/subinterp/hostfunc"
	"github.com/caffeineduck/subinterp/language/lua"
)

func TestBasicExecution(t *testing.T) {
	result := Run(context.Background(), "print('hello')", DefaultConfig())
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if strings.TrimSpace(result.Output) != "hello" {
		t.Errorf("expected 'hello', got %q", result.Output)
	}
}

func TestComputation(t *testing.T) {
	result := Run(context.Background(), `
local sum = 0
for x = 0, 9 do sum = sum + x * x end
print(sum)
`, DefaultConfig())
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if strings.TrimSpace(result.Output) != "285" {
		t.Errorf("expected '285', got %q", result.Output)
	}
}

func TestRunsInSubInterpreter(t *testing.T) {
	result := Run(context.Background(), "print(sys.name, sys.main)", DefaultConfig())
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if result.Output != "sandbox\tfalse\n" {
		t.Errorf("expected sandbox interpreter, got %q", result.Output)
	}
}

func TestScriptError(t *testing.T) {
	result := Run(context.Background(), "print(undefined_name)", DefaultConfig())
	var se *executor.ScriptError
	if !errors.As(result.Error, &se) {
		t.Fatalf("expected *executor.ScriptError, got %v", result.Error)
	}
	if !strings.Contains(se.Error(), "undefined global 'undefined_name'") {
		t.Errorf("unexpected error: %v", se)
	}
}

func TestHostFunctionCall(t *testing.T) {
	result := Run(context.Background(), `
host.kv_set{key = "key", value = "value"}
print(host.kv_get{key = "key"})
`, DefaultConfig())
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if strings.TrimSpace(result.Output) != "value" {
		t.Errorf("expected 'value', got %q", result.Output)
	}
}

func TestTimeout(t *testing.T) {
	cfg := Config{Timeout: 100 * time.Millisecond}
	result := Run(context.Background(), `while true do end`, cfg)
	if result.Error == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(result.Error.Error(), "timeout") {
		t.Errorf("expected timeout error, got %v", result.Error)
	}
}

func TestKVPersistsAcrossRuns(t *testing.T) {
	kv := hostfunc.NewKV(hostfunc.DefaultKVConfig())
	cfg := Config{Timeout: 30 * time.Second, KVStore: kv}

	Run(context.Background(), `host.kv_set{key = "from_lua", value = "hello"}`, cfg)

	val, _ := kv.Get(context.Background(), map[string]any{"key": "from_lua"})
	if val != "hello" {
		t.Errorf("expected 'hello', got %v", val)
	}

	kv.Set(context.Background(), map[string]any{"key": "from_go", "value": "world"})

	result := Run(context.Background(), `print(host.kv_get{key = "from_go"})`, cfg)
	if strings.TrimSpace(result.Output) != "world" {
		t.Errorf("expected 'world', got %q", result.Output)
	}
}

func TestGlobalsDoNotPersistAcrossRuns(t *testing.T) {
	Run(context.Background(), `leaked = 1`, DefaultConfig())
	result := Run(context.Background(), `print(leaked)`, DefaultConfig())
	if result.Error == nil {
		t.Errorf("globals leaked between runs: %q", result.Output)
	}
}

func TestHostFuncCalledWithArgs(t *testing.T) {
	var capturedArgs map[string]any

	registry := hostfunc.NewRegistry()
	registry.Register("capture", func(ctx context.Context, args map[string]any) (any, error) {
		capturedArgs = args
		return "captured", nil
	})

	cfg := Config{Timeout: 30 * time.Second, Registry: registry}
	result := Run(context.Background(), `print(host.capture{foo = "bar", num = 42, list = {1, 2}})`, cfg)
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if strings.TrimSpace(result.Output) != "captured" {
		t.Errorf("expected 'captured', got %q", result.Output)
	}
	if capturedArgs["foo"] != "bar" {
		t.Errorf("expected foo='bar', got %v", capturedArgs["foo"])
	}
	if capturedArgs["num"] != int64(42) {
		t.Errorf("expected num=42, got %v (%T)", capturedArgs["num"], capturedArgs["num"])
	}
	if list, ok := capturedArgs["list"].([]any); !ok || len(list) != 2 {
		t.Errorf("expected two-element list, got %v", capturedArgs["list"])
	}
}

func TestHostFuncErrorPropagates(t *testing.T) {
	registry := hostfunc.NewRegistry()
	registry.Register("fail", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("intentional failure")
	})

	cfg := Config{Timeout: 30 * time.Second, Registry: registry}
	result := Run(context.Background(), `
local ok, err = pcall(host.fail, {})
print("caught: " .. tostring(err))
`, cfg)

	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if !strings.Contains(result.Output, "caught:") || !strings.Contains(result.Output, "intentional failure") {
		t.Errorf("expected error to propagate, got %q", result.Output)
	}
}

func TestStdoutEcho(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Stdout = &buf

	result := Run(context.Background(), `print("echo")`, cfg)
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if buf.String() != "echo\n" {
		t.Errorf("expected echoed output, got %q", buf.String())
	}
}

func TestLuaOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lua = []lua.Option{lua.WithStrictGlobals(false)}

	result := Run(context.Background(), `print(missing)`, cfg)
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if result.Output != "nil\n" {
		t.Errorf("expected nil, got %q", result.Output)
	}
}

func TestConcurrentRunsSerialize(t *testing.T) {
	kv := hostfunc.NewKV(hostfunc.DefaultKVConfig())
	cfg := Config{Timeout: 30 * time.Second, KVStore: kv}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := Run(context.Background(), `print(sys.name)`, cfg); res.Error != nil {
				errs <- res.Error
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent run failed: %v", err)
	}
}

func TestDurationTracked(t *testing.T) {
	result := Run(context.Background(), "print(1)", DefaultConfig())
	if result.Duration <= 0 {
		t.Error("expected positive duration")
	}
}
