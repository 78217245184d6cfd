package scripted

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

// maxDepth bounds table nesting when converting Lua values back to Go.
const maxDepth = 64

var (
	errTooDeep   = errors.New("lua value nested too deeply (cyclic table?)")
	errNonFinite = errors.New("non-finite number in lua value")
)

// toLua converts a JSON-compatible Go value into a Lua value. Other Go
// values are normalized through encoding/json first.
func toLua(L *lua.LState, v any) (lua.LValue, error) {
	switch v := v.(type) {
	case nil:
		return lua.LNil, nil
	case bool:
		return lua.LBool(v), nil
	case string:
		return lua.LString(v), nil
	case float64:
		return lua.LNumber(v), nil
	case int:
		return lua.LNumber(v), nil
	case int64:
		return lua.LNumber(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return lua.LNumber(f), nil
	case []any:
		tbl := L.CreateTable(len(v), 0)
		for _, item := range v {
			lv, err := toLua(L, item)
			if err != nil {
				return nil, err
			}
			tbl.Append(lv)
		}
		return tbl, nil
	case map[string]any:
		tbl := L.CreateTable(0, len(v))
		for k, item := range v {
			lv, err := toLua(L, item)
			if err != nil {
				return nil, err
			}
			tbl.RawSetString(k, lv)
		}
		return tbl, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("convert %T to lua: %w", v, err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return toLua(L, generic)
}

// fromLua converts a Lua value into plain Go values: nil, bool, float64,
// string, []any (sequence tables) and map[string]any (all other tables).
func fromLua(v lua.LValue) (any, error) {
	return fromLuaDepth(v, 0)
}

func fromLuaDepth(v lua.LValue, depth int) (any, error) {
	if depth > maxDepth {
		return nil, errTooDeep
	}
	switch v := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LNumber:
		// NaN and Inf have no JSON encoding
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errNonFinite
		}
		return f, nil
	case lua.LString:
		return string(v), nil
	case *lua.LTable:
		return tableFromLua(v, depth)
	}
	return nil, fmt.Errorf("unsupported lua value of type %s", v.Type())
}

func tableFromLua(tbl *lua.LTable, depth int) (any, error) {
	n := tbl.MaxN()
	count := 0
	tbl.ForEach(func(lua.LValue, lua.LValue) { count++ })

	if n > 0 && count == n {
		list := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			item, err := fromLuaDepth(tbl.RawGetInt(i), depth+1)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	}

	m := make(map[string]any, count)
	var convErr error
	tbl.ForEach(func(k, item lua.LValue) {
		if convErr != nil {
			return
		}
		var key string
		switch k := k.(type) {
		case lua.LString:
			key = string(k)
		case lua.LNumber:
			key = strconv.FormatFloat(float64(k), 'f', -1, 64)
		default:
			convErr = fmt.Errorf("unsupported table key of type %s", k.Type())
			return
		}
		m[key], convErr = fromLuaDepth(item, depth+1)
	})
	if convErr != nil {
		return nil, convErr
	}
	return m, nil
}
