package port

// Source is anything that can be resolved to a file on the local
// filesystem. Implementations return domain.ErrUnsupportedSource when the
// media does not live on a local volume.
type Source interface {
	ResolveLocalPath() (string, error)
}
