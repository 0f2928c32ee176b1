// Package subinterp runs script code in several isolated interpreters that
// share one engine and one execution lock.
//
// # Overview
//
// The engine is started once per process. Besides the main interpreter,
// any number of sub-interpreters can be created; each has its own globals.
// Native threads enter an interpreter, run code, and leave again, and only
// the thread holding the execution lock may touch interpreter state.
//
// # Basic Usage
//
//	err := executor.With(lua.New(), func(rt *executor.Runtime, main *executor.Thread) error {
//	    sub, err := rt.NewInterpreter(main, "s1")
//	    if err != nil {
//	        return err
//	    }
//	    defer sub.Close(main)
//
//	    w := rt.Spawn(ctx, sub, "t1", `print(sys.name)`)
//	    defer main.AllowThreads().End()
//	    return executor.WaitAll(w)
//	})
//
// # One-shot
//
//	result := sandbox.Run(ctx, `print(1 + 1)`, sandbox.DefaultConfig())
//
// See the [executor], [language/lua], [hostfunc], [scenario] and [sandbox]
// packages for detailed API documentation.
package subinterp
