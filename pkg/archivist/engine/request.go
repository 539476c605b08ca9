package engine

import (
	"fmt"
	"strings"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Kind is the type of an operation request.
type Kind int

const (
	KindExtract Kind = iota + 1
	KindCreate
)

// String returns "extract" or "create".
func (k Kind) String() string {
	switch k {
	case KindExtract:
		return "extract"
	case KindCreate:
		return "create"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DefaultLevel selects the engine's configured compression level.
const DefaultLevel = -1

// ExtractRequest extracts members of an archive into a directory.
type ExtractRequest struct {
	Archive string
	Dest    string

	// Members restricts extraction to these paths. A directory member
	// selects its subtree. Empty means every entry.
	Members  []string
	Password types.Password
}

// CreateRequest writes a new archive from files and directories.
type CreateRequest struct {
	Dest    string
	Sources []string

	// Format and Compression select the container. FormatUnknown resolves
	// both from the destination file name.
	Format      types.Format
	Compression types.Compression

	Password types.Password

	// Level is 0 (fastest) to 9 (smallest), or DefaultLevel.
	Level int

	// Method overrides the ZIP compression method.
	Method string
}

// Request is one unit of work. Exactly one of Extract and Create is set,
// matching Kind.
type Request struct {
	Kind    Kind
	Extract *ExtractRequest
	Create  *CreateRequest
}

// NewExtract builds an extract request.
func NewExtract(archive, dest string, members ...string) Request {
	return Request{Kind: KindExtract, Extract: &ExtractRequest{Archive: archive, Dest: dest, Members: members}}
}

// NewCreate builds a create request that resolves its format from dest.
func NewCreate(dest string, sources ...string) Request {
	return Request{Kind: KindCreate, Create: &CreateRequest{Dest: dest, Sources: sources, Level: DefaultLevel}}
}

// WithPassword returns a copy of r carrying password. The original request
// is not modified, so a driver can resubmit after a password prompt.
func (r Request) WithPassword(password types.Password) Request {
	switch {
	case r.Extract != nil:
		x := *r.Extract
		x.Password = password
		r.Extract = &x
	case r.Create != nil:
		c := *r.Create
		c.Password = password
		r.Create = &c
	}
	return r
}

// Password returns the password carried by the request.
func (r Request) Password() types.Password {
	switch {
	case r.Extract != nil:
		return r.Extract.Password
	case r.Create != nil:
		return r.Create.Password
	}
	return ""
}

// Target names what the request works on: the archive for extraction,
// the destination for creation.
func (r Request) Target() string {
	switch {
	case r.Extract != nil:
		return r.Extract.Archive
	case r.Create != nil:
		return r.Create.Dest
	}
	return ""
}

// String describes the request for logs. The password is never included.
func (r Request) String() string {
	switch {
	case r.Kind == KindExtract && r.Extract != nil:
		return fmt.Sprintf("extract %s -> %s (%d members)", r.Extract.Archive, r.Extract.Dest, len(r.Extract.Members))
	case r.Kind == KindCreate && r.Create != nil:
		return fmt.Sprintf("create %s <- %s", r.Create.Dest, strings.Join(r.Create.Sources, ", "))
	}
	return r.Kind.String()
}
