// Package lua provides the gopher-lua backend for the executor package.
//
// Every interpreter is its own *lua.LState, so globals never leak between
// interpreters. The backend compiles a shared prelude once at Init and runs
// it in each new interpreter, after opening a restricted set of standard
// libraries and seeding these globals:
//
//	sys        per-interpreter table: sys.name, sys.id, sys.main, sys.engine
//	print      writes to the output of the current run
//	repr, str  format values, e.g. repr({'abc'}) == "{'abc'}"
//	getattr    getattr(tbl, key, default) without metamethods
//	host       Go functions from the runtime's hostfunc.Registry
//
// With strict globals (the default) reading an undefined global raises
// "undefined global 'x'" instead of yielding nil.
package lua

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caffeineduck/subinterp/executor"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

var (
	ErrNotInitialized = errors.New("lua backend not initialized")
	ErrInitialized    = errors.New("lua backend already initialized")
	ErrInstanceClosed = errors.New("lua instance is closed")
	ErrUnknownLibrary = errors.New("unknown lua library")
)

// DefaultPrelude is run in every new interpreter before user code.
const DefaultPrelude = `
function getattr(obj, key, default)
  local v = rawget(obj, key)
  if v == nil then
    return default
  end
  return v
end

function hasattr(obj, key)
  return rawget(obj, key) ~= nil
end
`

// Library names a Lua standard library that can be opened in interpreters.
type Library string

const (
	LibBase      Library = "base"
	LibTable     Library = "table"
	LibString    Library = "string"
	LibMath      Library = "math"
	LibOS        Library = "os"
	LibCoroutine Library = "coroutine"
)

// DefaultLibraries excludes io, os, debug and package.
var DefaultLibraries = []Library{LibBase, LibTable, LibString, LibMath}

var libraries = map[Library]struct {
	name string
	open lua.LGFunction
}{
	LibBase:      {lua.BaseLibName, lua.OpenBase},
	LibTable:     {lua.TabLibName, lua.OpenTable},
	LibString:    {lua.StringLibName, lua.OpenString},
	LibMath:      {lua.MathLibName, lua.OpenMath},
	LibOS:        {lua.OsLibName, lua.OpenOs},
	LibCoroutine: {lua.CoroutineLibName, lua.OpenCoroutine},
}

// Option configures the Backend.
type Option func(*config)

type config struct {
	strict  bool
	prelude string
	libs    []Library
}

// WithStrictGlobals controls whether reading an undefined global is an
// error. Enabled by default.
func WithStrictGlobals(strict bool) Option {
	return func(c *config) {
		c.strict = strict
	}
}

// WithPrelude appends code to the prelude every interpreter runs.
func WithPrelude(code string) Option {
	return func(c *config) {
		c.prelude += "\n" + code
	}
}

// WithLibraries replaces the set of standard libraries opened in each
// interpreter. LibBase is always opened.
func WithLibraries(libs ...Library) Option {
	return func(c *config) {
		c.libs = libs
	}
}

// Backend implements executor.Backend on gopher-lua.
type Backend struct {
	cfg   config
	proto *lua.FunctionProto
}

// New returns a Lua backend.
func New(opts ...Option) *Backend {
	cfg := config{
		strict:  true,
		prelude: DefaultPrelude,
		libs:    DefaultLibraries,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Backend{cfg: cfg}
}

// Name returns "lua".
func (b *Backend) Name() string {
	return "lua"
}

// Init checks the library set and compiles the prelude shared by all
// interpreters.
func (b *Backend) Init() error {
	if b.proto != nil {
		return ErrInitialized
	}
	for _, lib := range b.cfg.libs {
		if _, ok := libraries[lib]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownLibrary, lib)
		}
	}

	chunk, err := parse.Parse(strings.NewReader(b.cfg.prelude), "<prelude>")
	if err != nil {
		return fmt.Errorf("parse prelude: %w", err)
	}
	proto, err := lua.Compile(chunk, "<prelude>")
	if err != nil {
		return fmt.Errorf("compile prelude: %w", err)
	}
	b.proto = proto
	return nil
}

// Finalize drops the compiled prelude. The backend may be initialized again.
func (b *Backend) Finalize() error {
	b.proto = nil
	return nil
}

// NewInstance creates an interpreter with fresh globals.
func (b *Backend) NewInstance(cfg executor.InstanceConfig) (executor.Instance, error) {
	if b.proto == nil {
		return nil, ErrNotInitialized
	}
	return newInstance(b, cfg)
}

func openLibraries(L *lua.LState, libs []Library) error {
	open := []Library{LibBase}
	for _, lib := range libs {
		if lib != LibBase {
			open = append(open, lib)
		}
	}
	for _, lib := range open {
		l := libraries[lib]
		err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(l.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(l.name))
		if err != nil {
			return fmt.Errorf("open %s library: %w", lib, err)
		}
	}
	return nil
}
