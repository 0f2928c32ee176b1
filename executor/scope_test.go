package executor

import (
	"context"
	"math/rand"
	"testing"
)

func TestSaveBindingRestoresAfterMutation(t *testing.T) {
	rt, _ := startMock(t)
	main := rt.MainThread()
	sub, _ := rt.NewInterpreter(main, "s1")
	original := main.State()

	snap := main.SaveBinding()
	if snap.Saved() != original {
		t.Fatal("snapshot should capture the current binding")
	}

	main.state = sub.State()
	main.state = nil
	snap.Restore()
	if main.State() != original {
		t.Fatal("snapshot did not restore the binding")
	}

	// Restoring again rebinds again.
	main.state = sub.State()
	snap.Restore()
	if main.State() != original {
		t.Fatal("second restore did not rebind")
	}

	sub.Close(main)
	rt.Stop()
}

func TestSaveBindingRestoresOnPanic(t *testing.T) {
	rt, _ := startMock(t)
	main := rt.MainThread()
	sub, _ := rt.NewInterpreter(main, "s1")
	original := main.State()

	func() {
		defer func() { recover() }()
		snap := main.SaveBinding()
		defer snap.Restore()

		main.state = sub.State()
		panic("fail inside scope")
	}()

	if main.State() != original {
		t.Fatal("binding not restored after panic")
	}
	sub.Close(main)
	rt.Stop()
}

func TestSwapBindingRestores(t *testing.T) {
	rt, _ := startMock(t)
	main := rt.MainThread()
	sub, _ := rt.NewInterpreter(main, "s1")
	original := main.State()

	sw := main.SwapBinding(sub.State())
	if sw.Previous() != original {
		t.Fatal("swap should return the previous binding")
	}
	if main.Interpreter() != sub {
		t.Fatal("swap did not rebind to the sub-interpreter")
	}

	result := main.Run(context.Background(), "get name")
	if result.Error != nil || result.Output != "s1\n" {
		t.Fatalf("expected to run in s1, got %q (%v)", result.Output, result.Error)
	}

	sw.Restore()
	if main.State() != original {
		t.Fatal("swap did not restore the binding")
	}
	sub.Close(main)
	rt.Stop()
}

func TestSwapBindingNesting(t *testing.T) {
	rt, _ := startMock(t)
	main := rt.MainThread()
	s1, _ := rt.NewInterpreter(main, "s1")
	s2, _ := rt.NewInterpreter(main, "s2")
	original := main.State()

	targets := []*ThreadState{nil, original, s1.State(), s2.State()}
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 50; round++ {
		depth := 1 + rng.Intn(12)
		var swaps []*BindingSwap
		var expect []*ThreadState

		for i := 0; i < depth; i++ {
			expect = append(expect, main.State())
			target := targets[rng.Intn(len(targets))]
			swaps = append(swaps, main.SwapBinding(target))
			if main.State() != target {
				t.Fatalf("round %d depth %d: swap did not install target", round, i)
			}
		}
		for i := depth - 1; i >= 0; i-- {
			swaps[i].Restore()
			if main.State() != expect[i] {
				t.Fatalf("round %d depth %d: unwind restored the wrong binding", round, i)
			}
		}
		if main.State() != original {
			t.Fatalf("round %d: binding differs after full unwind", round)
		}
	}

	s2.Close(main)
	s1.Close(main)
	rt.Stop()
}

func TestSwapRestoreOutOfOrderPanics(t *testing.T) {
	rt, _ := startMock(t)
	main := rt.MainThread()
	sub, _ := rt.NewInterpreter(main, "s1")

	outer := main.SwapBinding(sub.State())
	inner := main.SwapBinding(nil)

	mustPanicWith(t, ErrScopeOrder, func() { outer.Restore() })

	inner.Restore()
	outer.Restore()
	mustPanicWith(t, ErrAlreadyRestored, func() { outer.Restore() })

	sub.Close(main)
	rt.Stop()
}

func TestSwapForeignStatePanics(t *testing.T) {
	rt, _ := startMock(t)
	main := rt.MainThread()
	sub, _ := rt.NewInterpreter(main, "s1")
	other := rt.NewThread("other")

	foreign := newThreadState(sub, other)
	mustPanicWith(t, ErrForeignState, func() { main.SwapBinding(foreign) })
	mustPanicWith(t, ErrLockNotHeld, func() { other.SwapBinding(nil) })

	sub.Close(main)
	rt.Stop()
}

func TestAllowThreadsReleasesAndRestores(t *testing.T) {
	rt, _ := startMock(t)
	main := rt.MainThread()
	sub, _ := rt.NewInterpreter(main, "s1")
	original := main.State()

	a := main.AllowThreads()
	if main.HoldsLock() {
		t.Fatal("lock still held inside AllowThreads")
	}
	if main.State() != nil {
		t.Fatal("thread should be unbound inside AllowThreads")
	}

	w := rt.Spawn(context.Background(), sub, "w", "set x 1\nget x")
	if res := w.Wait(); res.Error != nil || res.Output != "1\n" {
		t.Fatalf("worker could not run while lock released: %q (%v)", res.Output, res.Error)
	}

	a.End()
	if !main.HoldsLock() || main.State() != original {
		t.Fatal("End did not restore lock and binding")
	}
	mustPanicWith(t, ErrAlreadyRestored, func() { a.End() })

	sub.Close(main)
	rt.Stop()
}

func TestAllowThreadsWithoutLockPanics(t *testing.T) {
	rt, _ := startMock(t)
	other := rt.NewThread("other")

	mustPanicWith(t, ErrLockNotHeld, func() { other.AllowThreads() })
	rt.Stop()
}

func TestThreadStateLifecycle(t *testing.T) {
	rt, _ := startMock(t)
	main := rt.MainThread()
	sub, _ := rt.NewInterpreter(main, "s1")
	other := rt.NewThread("other")

	a := main.AllowThreads()

	ts := sub.NewThreadState(other)
	if !other.HoldsLock() {
		t.Fatal("new thread state should take the lock")
	}
	if other.State() != ts || other.Interpreter() != sub || ts.Interpreter() != sub {
		t.Fatal("new thread state should be bound to its thread and interpreter")
	}
	if ts.Thread() != other || ts.ID() == 0 {
		t.Error("unexpected thread state identity")
	}

	ts.Close()
	if other.HoldsLock() {
		t.Fatal("closing the thread state should release the lock")
	}
	if other.State() != nil {
		t.Fatal("closing the thread state should remove the binding")
	}
	mustPanicWith(t, ErrNotBound, func() { other.Interpreter() })
	mustPanicWith(t, ErrAlreadyRestored, func() { ts.Close() })

	a.End()
	sub.Close(main)
	rt.Stop()
}

func TestNewThreadStateWhileHoldingLockPanics(t *testing.T) {
	rt, _ := startMock(t)
	main := rt.MainThread()
	sub, _ := rt.NewInterpreter(main, "s1")

	mustPanicWith(t, ErrLockHeld, func() { sub.NewThreadState(main) })

	sub.Close(main)
	rt.Stop()
}

func TestThreadStateCloseNotCurrentPanics(t *testing.T) {
	rt, _ := startMock(t)
	main := rt.MainThread()
	sub, _ := rt.NewInterpreter(main, "s1")
	other := rt.NewThread("other")

	a := main.AllowThreads()
	ts := sub.NewThreadState(other)
	sw := other.SwapBinding(nil)

	mustPanicWith(t, ErrNotCurrent, func() { ts.Close() })

	sw.Restore()
	ts.Close()
	a.End()
	sub.Close(main)
	rt.Stop()
}
