// Package hostfunc provides Go functions that scripts can call from inside
// any interpreter.
//
// # Registry
//
// The [Registry] manages available host functions:
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("my_func", func(ctx context.Context, args map[string]any) (any, error) {
//	    return "result", nil
//	})
//
// Pass it to the runtime with executor.WithHostFuncs. With the Lua backend,
// scripts call it as host.my_func{name = "value"}.
//
// # Key-Value Store
//
// [KVStore] is host-side state. Every interpreter of a runtime sees the same
// store, which makes it the one deliberate channel between otherwise
// isolated interpreters:
//
//	kv := hostfunc.NewKV(hostfunc.DefaultKVConfig())
//	registry := hostfunc.NewDefaultRegistry(kv)
//
// All operations have configurable size limits.
package hostfunc
