//go:build !no_automation

package automation

// Script is a single automation hook loaded from a .lua file on disk. Unlike
// the teacher's device-automation scripts, these carry no editable metadata
// or Blockly source — they are plain Lua files dropped into the scripts
// directory and picked up on startup.
type Script struct {
	ID       string // filename stem
	LuaCode  string
	FilePath string
}
