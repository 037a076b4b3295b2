package input

import "sort"

// KeyName is a key a control panel may ask the host to press.
type KeyName string

// Recognized key names.
const (
	KeyUp                KeyName = "UP"
	KeyDown              KeyName = "DOWN"
	KeyLeft              KeyName = "LEFT"
	KeyRight             KeyName = "RIGHT"
	KeyEnter             KeyName = "ENTER"
	KeyMute              KeyName = "MUTE"
	KeyVolumeUp          KeyName = "VOLUME_UP"
	KeyVolumeDown        KeyName = "VOLUME_DOWN"
	KeyCopy              KeyName = "COPY"
	KeyPaste             KeyName = "PASTE"
	KeySelectAll         KeyName = "SELECT_ALL"
	KeyAltTab            KeyName = "ALT_TAB"
	KeyStartPresentation KeyName = "START_PRESENTATION"
	KeyEndPresentation   KeyName = "END_PRESENTATION"
)

// Key is a backend key symbol, named after X11 keysyms.
type Key string

// Key symbols used by the key map.
const (
	SymUp         Key = "Up"
	SymDown       Key = "Down"
	SymLeft       Key = "Left"
	SymRight      Key = "Right"
	SymReturn     Key = "Return"
	SymMute       Key = "XF86AudioMute"
	SymVolumeUp   Key = "XF86AudioRaiseVolume"
	SymVolumeDown Key = "XF86AudioLowerVolume"
	SymCtrl       Key = "ctrl"
	SymAlt        Key = "alt"
	SymTab        Key = "Tab"
	SymF5         Key = "F5"
	SymEscape     Key = "Escape"
	SymA          Key = "a"
	SymC          Key = "c"
	SymV          Key = "v"
)

// ActionKind discriminates Action.
type ActionKind int

const (
	// SingleKey taps one key.
	SingleKey ActionKind = iota
	// Combination holds modifiers while tapping other keys.
	Combination
)

// Action is a closed variant: a single key, or a combination of held keys
// and tapped keys. Only the fields for its Kind are set.
type Action struct {
	Kind ActionKind
	Key  Key   // SingleKey
	Hold []Key // Combination, pressed in order, released in reverse
	Tap  []Key // Combination, tapped in order while Hold is down
}

// Single returns a single-key action.
func Single(k Key) Action {
	return Action{Kind: SingleKey, Key: k}
}

// Combo returns a combination action.
func Combo(hold []Key, tap ...Key) Action {
	return Action{Kind: Combination, Hold: hold, Tap: tap}
}

var keyMap = map[KeyName]Action{
	KeyUp:                Single(SymUp),
	KeyDown:              Single(SymDown),
	KeyLeft:              Single(SymLeft),
	KeyRight:             Single(SymRight),
	KeyEnter:             Single(SymReturn),
	KeyMute:              Single(SymMute),
	KeyVolumeUp:          Single(SymVolumeUp),
	KeyVolumeDown:        Single(SymVolumeDown),
	KeyCopy:              Combo([]Key{SymCtrl}, SymC),
	KeyPaste:             Combo([]Key{SymCtrl}, SymV),
	KeySelectAll:         Combo([]Key{SymCtrl}, SymA),
	KeyAltTab:            Combo([]Key{SymAlt}, SymTab),
	KeyStartPresentation: Single(SymF5),
	KeyEndPresentation:   Single(SymEscape),
}

// Lookup returns the action bound to name.
func Lookup(name KeyName) (Action, bool) {
	a, ok := keyMap[name]
	return a, ok
}

// IsKnownKey reports whether name is in the recognized set.
func IsKnownKey(name string) bool {
	_, ok := keyMap[KeyName(name)]
	return ok
}

// KnownKeys returns the recognized key names, sorted.
func KnownKeys() []KeyName {
	names := make([]KeyName, 0, len(keyMap))
	for name := range keyMap {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
