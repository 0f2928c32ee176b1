package lua

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/caffeineduck/subinterp/executor"
	"github.com/caffeineduck/subinterp/hostfunc"
	lua "github.com/yuin/gopher-lua"
)

// Instance is one interpreter: a Lua state with its own globals.
//
// gopher-lua's LState is not goroutine-safe. The executor only calls an
// Instance while holding its execution lock, which is all the
// synchronization needed.
type Instance struct {
	L    *lua.LState
	name string

	// Set for the duration of Exec.
	out io.Writer
	ctx context.Context

	closed bool
}

func newInstance(b *Backend, cfg executor.InstanceConfig) (*Instance, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	inst := &Instance{
		L:    L,
		name: cfg.Name,
		out:  io.Discard,
		ctx:  context.Background(),
	}

	if err := openLibraries(L, b.cfg.libs); err != nil {
		L.Close()
		return nil, err
	}

	// No loading code from disk.
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)

	L.SetGlobal("print", L.NewFunction(inst.print))
	L.SetGlobal("repr", L.NewFunction(luaRepr))
	L.SetGlobal("str", L.NewFunction(luaStr))

	sys := L.NewTable()
	sys.RawSetString("name", lua.LString(cfg.Name))
	sys.RawSetString("id", lua.LNumber(cfg.ID))
	sys.RawSetString("main", lua.LBool(cfg.Main))
	sys.RawSetString("engine", lua.LString("gopher-lua"))
	L.SetGlobal("sys", sys)

	if cfg.Host != nil {
		L.SetGlobal("host", inst.hostTable(cfg.Host))
	}

	L.Push(L.NewFunctionFromProto(b.proto))
	if err := L.PCall(0, 0, nil); err != nil {
		L.Close()
		return nil, fmt.Errorf("run prelude: %w", err)
	}

	if b.cfg.strict {
		installStrictGlobals(L)
	}
	return inst, nil
}

// Exec runs code in the instance. Output from print goes to stdout. The run
// is abandoned when ctx is done.
func (i *Instance) Exec(ctx context.Context, code string, stdout io.Writer) (err error) {
	if i.closed {
		return ErrInstanceClosed
	}
	if stdout == nil {
		stdout = io.Discard
	}

	i.out, i.ctx = stdout, ctx
	i.L.SetContext(ctx)
	defer func() {
		i.L.RemoveContext()
		i.out, i.ctx = io.Discard, context.Background()
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return i.L.DoString(code)
}

// Close releases the Lua state.
func (i *Instance) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true
	i.L.Close()
	return nil
}

func (i *Instance) print(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, 0, top)
	for n := 1; n <= top; n++ {
		parts = append(parts, L.ToStringMeta(L.Get(n)).String())
	}
	fmt.Fprintln(i.out, strings.Join(parts, "\t"))
	return 0
}

// hostTable exposes the functions registered at creation time. Each takes
// an optional table of named arguments: host.kv_get{key = "a"}.
func (i *Instance) hostTable(r *hostfunc.Registry) *lua.LTable {
	tbl := i.L.NewTable()
	for name, fn := range r.All() {
		tbl.RawSetString(name, i.L.NewFunction(i.hostCall(name, fn)))
	}
	return tbl
}

func (i *Instance) hostCall(name string, fn hostfunc.Func) lua.LGFunction {
	return func(L *lua.LState) int {
		args := make(map[string]any)
		if L.GetTop() >= 1 && L.Get(1) != lua.LNil {
			if m, ok := toGo(L.CheckTable(1)).(map[string]any); ok {
				args = m
			}
		}

		res, err := fn(i.ctx, args)
		if err != nil {
			L.RaiseError("%s: %v", name, err)
			return 0
		}
		L.Push(toLua(L, res))
		return 1
	}
}

func installStrictGlobals(L *lua.LState) {
	mt := L.NewTable()
	mt.RawSetString("__index", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("undefined global '%s'", L.Get(2).String())
		return 0
	}))
	L.SetMetatable(L.G.Global, mt)
}
