// Package executor runs several isolated interpreters of one embedded
// scripting engine from several native threads, coordinating the single
// execution lock the engine requires.
//
// # Overview
//
// Only one thread may run engine code at a time, but which interpreter it
// runs in is freely switchable. Interpreters give isolation of globals, not
// parallelism: threads bound to different interpreters take turns holding
// the lock.
//
// Every acquire has a matching release returned as a small scope value, so
// callers pair them with defer and unwind in reverse order.
//
// # Basic Usage
//
//	rt, err := executor.Start(lua.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	main := rt.MainThread() // holds the lock, bound to rt.Main()
//
//	sub, err := rt.NewInterpreter(main, "s1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	w := rt.Spawn(ctx, sub, "t1", `print("hello from s1")`)
//	func() {
//	    defer main.AllowThreads().End() // let the worker take the lock
//	    w.Wait()
//	}()
//
//	sub.Close(main)
//	rt.Stop()
//
// # Scopes
//
//   - [Thread.AllowThreads] releases the lock until End.
//   - [Thread.SaveBinding] captures a binding until Restore.
//   - [Thread.SwapBinding] rebinds a thread until Restore; swaps nest.
//   - [Interpreter.NewThreadState] takes the lock and binds until Close.
//   - [Interpreter.Enter] combines the last two, as workers do.
//
// Misusing a scope (releasing a lock not held, restoring out of order,
// ending an interpreter that is still in use) is a programming error and
// panics with a [*UsageError]. Engine start-up failures are returned as
// [*FatalError]; failures raised by scripts come back in [Result.Error] as
// [*ScriptError].
//
// # Backend Interface
//
// To run interpreters on another engine, implement the [Backend] interface.
// See [github.com/caffeineduck/subinterp/language/lua] for an example.
package executor
