package service

import (
	"fmt"

	"github.com/bnema/transcoder/internal/domain"
)

// OptionResolver layers caller options over the configured defaults of
// each kind. There are no built-in defaults.
type OptionResolver struct {
	defaults map[domain.Kind]domain.Options
}

func NewOptionResolver(video, thumbnail domain.Options) *OptionResolver {
	return &OptionResolver{
		defaults: map[domain.Kind]domain.Options{
			domain.KindVideo:     video,
			domain.KindThumbnail: thumbnail,
		},
	}
}

// Resolve returns the full option set for kind. Caller values win per key.
func (r *OptionResolver) Resolve(kind domain.Kind, partial domain.Options) (domain.Options, error) {
	defaults := r.defaults[kind]
	if len(defaults) == 0 {
		return nil, fmt.Errorf("%s: %w", kind, domain.ErrMissingDefaults)
	}
	return defaults.Merge(partial), nil
}
