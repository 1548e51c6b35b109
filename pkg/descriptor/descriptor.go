// Package descriptor parses context descriptors (context.xml). Parsing is
// stateless; every call builds its own decoder.
package descriptor

import (
	"archive/zip"
	"encoding/xml"
	goerrors "errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-deployer/pkg/errors"
)

// ApplicationContextXml is the location of the embedded descriptor inside a
// WAR or an expanded directory.
const ApplicationContextXml = "META-INF/context.xml"

// ErrNoDescriptor is returned when an archive has no embedded descriptor
var ErrNoDescriptor = goerrors.New("archive has no " + ApplicationContextXml)

// Descriptor is the subset of <Context> the deployer acts on
type Descriptor struct {
	ClassName        string
	DocBase          string
	Path             string
	Reloadable       bool
	WatchedResources []string
}

type contextElement struct {
	XMLName          xml.Name `xml:"Context"`
	ClassName        string   `xml:"className,attr"`
	DocBase          string   `xml:"docBase,attr"`
	Path             string   `xml:"path,attr"`
	Reloadable       string   `xml:"reloadable,attr"`
	WatchedResources []string `xml:"WatchedResource"`
}

// Parse decodes a descriptor from r
func Parse(r io.Reader) (*Descriptor, error) {
	var element contextElement
	decoder := xml.NewDecoder(r)
	decoder.Strict = true
	if err := decoder.Decode(&element); err != nil {
		return nil, errors.NewDescriptorError("failed to parse context descriptor", err)
	}

	d := &Descriptor{
		ClassName: strings.TrimSpace(element.ClassName),
		DocBase:   strings.TrimSpace(element.DocBase),
		Path:      strings.TrimSpace(element.Path),
	}
	if element.Reloadable != "" {
		reloadable, err := strconv.ParseBool(strings.TrimSpace(element.Reloadable))
		if err != nil {
			return nil, errors.NewDescriptorError("invalid reloadable attribute", err).
				WithContext("value", element.Reloadable)
		}
		d.Reloadable = reloadable
	}
	for _, resource := range element.WatchedResources {
		resource = strings.TrimSpace(resource)
		if resource != "" {
			d.WatchedResources = append(d.WatchedResources, resource)
		}
	}
	return d, nil
}

// ParseFile decodes the descriptor stored at path
func ParseFile(path string) (*Descriptor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("failed to open context descriptor", err).WithContext("path", path)
	}
	defer file.Close()

	d, err := Parse(file)
	if err != nil {
		var domainErr *errors.DomainError
		if goerrors.As(err, &domainErr) {
			return nil, domainErr.WithContext("path", path)
		}
		return nil, err
	}
	return d, nil
}

// ParseFromArchive decodes META-INF/context.xml inside a WAR
func ParseFromArchive(warPath string) (*Descriptor, error) {
	reader, err := zip.OpenReader(warPath)
	if err != nil {
		return nil, errors.NewIOError("failed to open archive", err).WithContext("war", warPath)
	}
	defer reader.Close()

	entry := findEntry(&reader.Reader, ApplicationContextXml)
	if entry == nil {
		return nil, ErrNoDescriptor
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, errors.NewIOError("failed to open archive entry", err).
			WithContext("war", warPath).WithContext("entry", ApplicationContextXml)
	}
	defer rc.Close()

	d, err := Parse(rc)
	if err != nil {
		return nil, errors.NewDescriptorError("failed to parse embedded descriptor", err).WithContext("war", warPath)
	}
	return d, nil
}

// HasArchiveDescriptor reports whether a WAR embeds META-INF/context.xml
func HasArchiveDescriptor(warPath string) (bool, error) {
	reader, err := zip.OpenReader(warPath)
	if err != nil {
		return false, errors.NewIOError("failed to open archive", err).WithContext("war", warPath)
	}
	defer reader.Close()
	return findEntry(&reader.Reader, ApplicationContextXml) != nil, nil
}

func findEntry(r *zip.Reader, name string) *zip.File {
	for _, f := range r.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}
