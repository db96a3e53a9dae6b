package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for server-side hooks.
// Single-goroutine access only (server loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads every script in scriptsDir.
// A missing directory yields an engine with no hooks.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if scriptsDir == "" {
		return e, nil
	}
	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// DefaultChatLine is the line broadcast when no script overrides it.
func DefaultChatLine(name, text string) string {
	return name + ": " + text
}

// FormatChat builds the line broadcast for a chat message. If a global
// format_chat(name, text) exists its string result is used; a nil result
// drops the message. Script errors fall back to the default line.
func (e *Engine) FormatChat(name, text string) (string, bool) {
	fn := e.vm.GetGlobal("format_chat")
	if fn == lua.LNil {
		return DefaultChatLine(name, text), true
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(name), lua.LString(text)); err != nil {
		e.log.Error("lua format_chat error", zap.Error(err))
		return DefaultChatLine(name, text), true
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	switch v := result.(type) {
	case *lua.LNilType:
		return "", false
	case lua.LString:
		return string(v), true
	default:
		e.log.Error("lua format_chat returned non-string", zap.String("type", result.Type().String()))
		return DefaultChatLine(name, text), true
	}
}

func (e *Engine) Close() {
	e.vm.Close()
}
