package hostfunc

import (
	"context"
	"strings"
	"testing"
)

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	r.Register("zeta", noop)
	r.Register("alpha", noop)
	r.Register("mid", noop)

	if got := strings.Join(r.List(), ","); got != "alpha,mid,zeta" {
		t.Errorf("expected sorted names, got %s", got)
	}
}

func TestRegistryAllIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Register("a", TimeNow)

	all := r.All()
	delete(all, "a")

	if _, ok := r.Get("a"); !ok {
		t.Error("mutating All() result must not affect the registry")
	}
}

func TestDefaultRegistry(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	r := NewDefaultRegistry(kv)

	want := "kv_delete,kv_get,kv_keys,kv_set,time_now"
	if got := strings.Join(r.List(), ","); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	set, _ := r.Get("kv_set")
	if _, err := set(context.Background(), map[string]any{"key": "k", "value": "v"}); err != nil {
		t.Fatalf("kv_set failed: %v", err)
	}
	val, _ := kv.Get(context.Background(), map[string]any{"key": "k"})
	if val != "v" {
		t.Errorf("registry functions should share the store, got %v", val)
	}

	if got := strings.Join(NewDefaultRegistry(nil).List(), ","); got != "time_now" {
		t.Errorf("expected only time_now without a store, got %s", got)
	}
}

func TestTimeNow(t *testing.T) {
	v, err := TimeNow(context.Background(), nil)
	if err != nil {
		t.Fatalf("time_now failed: %v", err)
	}
	if f, ok := v.(float64); !ok || f <= 0 {
		t.Errorf("expected positive seconds, got %v", v)
	}
}
