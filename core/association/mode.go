package association

import "fmt"

// Mode is what the user is currently doing. The variants are mutually
// exclusive; the interface is sealed to this package.
type Mode interface {
	fmt.Stringer
	mode()
}

// Idle is the default mode.
type Idle struct{}

// EditingFile edits the data file at Path.
type EditingFile struct{ Path string }

// ViewingSchema shows the schema named Schema read-only.
type ViewingSchema struct{ Schema string }

// EditingSchema edits the schema named Schema.
type EditingSchema struct{ Schema string }

// DiffingFiles compares two data files.
type DiffingFiles struct{ Source, Target string }

func (Idle) mode()          {}
func (EditingFile) mode()   {}
func (ViewingSchema) mode() {}
func (EditingSchema) mode() {}
func (DiffingFiles) mode()  {}

func (Idle) String() string            { return "idle" }
func (m EditingFile) String() string   { return "editing file " + m.Path }
func (m ViewingSchema) String() string { return "viewing schema " + m.Schema }
func (m EditingSchema) String() string { return "editing schema " + m.Schema }
func (m DiffingFiles) String() string  { return "diffing " + m.Source + " against " + m.Target }

// referencesFile reports whether m points at the data file at path.
func referencesFile(m Mode, path string) bool {
	switch m := m.(type) {
	case EditingFile:
		return m.Path == path
	case DiffingFiles:
		return m.Source == path || m.Target == path
	}
	return false
}

// referencesSchema reports whether m points at the schema named name.
func referencesSchema(m Mode, name string) bool {
	switch m := m.(type) {
	case ViewingSchema:
		return m.Schema == name
	case EditingSchema:
		return m.Schema == name
	}
	return false
}

// renameFile rewrites file references in m from oldPath to newPath.
func renameFile(m Mode, oldPath, newPath string) Mode {
	switch m := m.(type) {
	case EditingFile:
		if m.Path == oldPath {
			m.Path = newPath
		}
		return m
	case DiffingFiles:
		if m.Source == oldPath {
			m.Source = newPath
		}
		if m.Target == oldPath {
			m.Target = newPath
		}
		return m
	}
	return m
}
