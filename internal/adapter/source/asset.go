package source

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bnema/transcoder/internal/domain"
	"github.com/bnema/transcoder/internal/port"
)

var ErrInvalidPath = errors.New("invalid source path")

// Volume is a storage location media can live on. Only local volumes can
// be handed to the encoder.
type Volume struct {
	Name  string
	Local bool
	Root  string
}

// Asset is a file on a volume, addressed relative to the volume root.
type Asset struct {
	Volume Volume
	Path   string
}

// ResolveLocalPath joins the asset path onto the volume root. Paths that
// would escape the root are rejected.
func (a Asset) ResolveLocalPath() (string, error) {
	if !a.Volume.Local {
		return "", fmt.Errorf("volume %q: %w", a.Volume.Name, domain.ErrUnsupportedSource)
	}

	rel, err := CleanRelative(a.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(a.Volume.Root, rel), nil
}

// LocalPath is a source that is already a filesystem path.
type LocalPath string

func (p LocalPath) ResolveLocalPath() (string, error) {
	if p == "" || strings.ContainsRune(string(p), 0) {
		return "", ErrInvalidPath
	}
	return string(p), nil
}

// CleanRelative normalizes a client supplied relative path and rejects
// anything absolute, containing control characters, or climbing out with "..".
func CleanRelative(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, r := range p {
		if r < 32 || r == 127 {
			return "", fmt.Errorf("%w: control character", ErrInvalidPath)
		}
	}

	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) || strings.HasPrefix(p, `\`) {
		return "", fmt.Errorf("%w: absolute path", ErrInvalidPath)
	}

	cleaned := filepath.Clean(p)
	if cleaned == "." {
		return "", fmt.Errorf("%w: no file name", ErrInvalidPath)
	}
	if !filepath.IsLocal(cleaned) {
		return "", fmt.Errorf("%w: escapes volume", ErrInvalidPath)
	}
	return cleaned, nil
}

// Resolver maps request source strings onto assets. Plain paths address
// the local media root; "scheme://..." strings name remote volumes.
type Resolver struct {
	media Volume
}

func NewResolver(mediaRoot string) *Resolver {
	return &Resolver{media: Volume{Name: "media", Local: true, Root: mediaRoot}}
}

func (r *Resolver) Resolve(src string) port.Source {
	if scheme, rest, ok := strings.Cut(src, "://"); ok && scheme != "" {
		return Asset{Volume: Volume{Name: scheme}, Path: rest}
	}
	return Asset{Volume: r.media, Path: src}
}

var (
	_ port.Source = Asset{}
	_ port.Source = LocalPath("")
)
