package spec

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultBaseURL is the raw content root of the ESM collection specification repository.
const DefaultBaseURL = "https://raw.githubusercontent.com/NCAR/esm-collection-spec"

// DefaultVersion is the git ref used when no version tag is requested.
const DefaultVersion = "master"

// Collection is the name of the collection schema.
const Collection = "collection"

// ErrUnavailable matches every UnavailableError.
var ErrUnavailable = errors.New("specification unavailable")

// Ref identifies one schema document at one version of the specification.
type Ref struct {
	Name    string
	Version string
}

func (r Ref) String() string {
	return r.Name + "@" + r.Version
}

// cacheName is the file name a resolved schema is persisted under.
func (r Ref) cacheName() string {
	return fmt.Sprintf("%s_%s.json", r.Name, strings.ReplaceAll(r.Version, ".", "_"))
}

// URLFunc builds the remote location of a schema for a version tag.
type URLFunc func(baseURL, version string) string

// URLs maps schema names to the function that locates them remotely.
var URLs = map[string]URLFunc{
	Collection: func(baseURL, version string) string {
		return fmt.Sprintf("%s/%s/collection-spec/json-schema/collection.json", strings.TrimRight(baseURL, "/"), version)
	},
}

// UnavailableError reports that neither local directories nor the remote
// repository produced a schema document.
type UnavailableError struct {
	Ref Ref
	Err error
}

func (e *UnavailableError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrUnavailable.Error(), e.Ref)
	}
	return fmt.Sprintf("%s: %s: %v", ErrUnavailable.Error(), e.Ref, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }
