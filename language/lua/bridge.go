package lua

import (
	"fmt"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// toGo converts a Lua value to a Go value. Tables with keys 1..n become
// []any, other tables map[string]any. Cycles and functions become nil.
func toGo(lv lua.LValue) any {
	return toGoVisited(lv, make(map[*lua.LTable]bool))
}

func toGoVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return tableToGo(v, visited)
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

func tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	n := arrayLen(t)
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && n == count {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = toGoVisited(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = toGoVisited(v, visited)
	})
	return m
}

// toLua converts a Go value returned by a host function to a Lua value.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case []string:
		t := L.NewTable()
		for i, s := range val {
			t.RawSetInt(i+1, lua.LString(s))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, e := range val {
			t.RawSetInt(i+1, toLua(L, e))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, e := range val {
			t.RawSetString(k, toLua(L, e))
		}
		return t
	case lua.LValue:
		return val
	default:
		return lua.LString(fmt.Sprint(val))
	}
}

// arrayLen returns n when keys 1..n are all present.
func arrayLen(t *lua.LTable) int {
	n := 0
	for t.RawGetInt(n+1) != lua.LNil {
		n++
	}
	return n
}

func luaRepr(L *lua.LState) int {
	L.Push(lua.LString(repr(L.CheckAny(1))))
	return 1
}

func luaStr(L *lua.LState) int {
	L.Push(lua.LString(str(L.CheckAny(1))))
	return 1
}

// str formats strings as-is and everything else with repr.
func str(lv lua.LValue) string {
	if s, ok := lv.(lua.LString); ok {
		return string(s)
	}
	return repr(lv)
}

// repr formats a value as Lua source: strings quoted, tables as
// constructors with array items first and other keys sorted.
func repr(lv lua.LValue) string {
	var b strings.Builder
	writeRepr(&b, lv, make(map[*lua.LTable]bool))
	return b.String()
}

func writeRepr(b *strings.Builder, lv lua.LValue, visited map[*lua.LTable]bool) {
	switch v := lv.(type) {
	case lua.LString:
		b.WriteByte('\'')
		b.WriteString(strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`).Replace(string(v)))
		b.WriteByte('\'')
	case *lua.LTable:
		if visited[v] {
			b.WriteString("{...}")
			return
		}
		visited[v] = true
		defer delete(visited, v)
		writeTable(b, v, visited)
	default:
		b.WriteString(lv.String())
	}
}

func writeTable(b *strings.Builder, t *lua.LTable, visited map[*lua.LTable]bool) {
	n := arrayLen(t)

	type field struct {
		key string
		val lua.LValue
	}
	var fields []field
	t.ForEach(func(k, v lua.LValue) {
		if num, ok := k.(lua.LNumber); ok {
			if i := int(num); float64(i) == float64(num) && i >= 1 && i <= n {
				return
			}
		}
		var key string
		if s, ok := k.(lua.LString); ok && isIdent(string(s)) {
			key = string(s)
		} else {
			key = "[" + repr(k) + "]"
		}
		fields = append(fields, field{key, v})
	})
	sort.Slice(fields, func(i, j int) bool { return fields[i].key < fields[j].key })

	b.WriteByte('{')
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		writeRepr(b, t.RawGetInt(i), visited)
	}
	for i, f := range fields {
		if n > 0 || i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.key)
		b.WriteByte('=')
		writeRepr(b, f.val, visited)
	}
	b.WriteByte('}')
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
