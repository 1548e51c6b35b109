// Package contextname maps deployable artifact names (a#b.war, a#b.xml,
// directory a#b) to context paths (/a/b) and back.
package contextname

import (
	"strings"
)

const (
	// RootName is the on-disk base name of the root context
	RootName = "ROOT"

	versionSeparator = "##"
	escapedSlash     = "#"
)

// ContextName is the parsed identity of one deployable unit
type ContextName struct {
	// Path is the context path, "" for the root context
	Path string
	// Version is the optional parallel-deployment version
	Version string
	// Name is the unique unit key: Path plus "##Version" when versioned
	Name string
	// BaseName is the file-system name without extension
	BaseName string
	// DisplayName is Name with the root context rendered as "/"
	DisplayName string
}

// NewContextName parses a file name, base name or context path. When
// stripFileExtension is set, a trailing .war or .xml is removed first.
func NewContextName(name string, stripFileExtension bool) ContextName {
	if stripFileExtension {
		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, ".war") || strings.HasSuffix(lower, ".xml") {
			name = name[:len(name)-4]
		}
	}

	tmp := name
	version := ""
	if idx := strings.Index(name, versionSeparator); idx > -1 {
		version = name[idx+len(versionSeparator):]
		tmp = name[:idx]
	}

	var path string
	switch {
	case tmp == RootName || tmp == "/":
		path = ""
	case tmp == "" || strings.HasPrefix(tmp, "/"):
		path = tmp
	default:
		path = "/" + strings.ReplaceAll(tmp, escapedSlash, "/")
	}

	return FromPathAndVersion(path, version)
}

// FromPathAndVersion builds a ContextName from an explicit path and version
func FromPathAndVersion(path, version string) ContextName {
	if path == "/" || path == RootName {
		path = ""
	}

	cn := ContextName{
		Path:    path,
		Version: version,
	}

	cn.Name = path
	if version != "" {
		cn.Name = path + versionSeparator + version
	}

	var base strings.Builder
	if path == "" {
		base.WriteString(RootName)
	} else {
		base.WriteString(strings.ReplaceAll(path[1:], "/", escapedSlash))
	}
	if version != "" {
		base.WriteString(versionSeparator)
		base.WriteString(version)
	}
	cn.BaseName = base.String()

	if path == "" {
		cn.DisplayName = "/"
	} else {
		cn.DisplayName = path
	}
	if version != "" {
		cn.DisplayName += versionSeparator + version
	}

	return cn
}

// IsRoot reports whether this is the root context
func (cn ContextName) IsRoot() bool {
	return cn.Path == ""
}

func (cn ContextName) String() string {
	return cn.DisplayName
}
