package port

import "github.com/bnema/transcoder/internal/domain"

// CommandBuilder turns resolved options into encoder and prober invocations.
type CommandBuilder interface {
	Video(sourcePath, outputPath string, opts domain.Options) domain.Command
	Thumbnail(sourcePath, outputPath string, opts domain.Options) domain.Command
	Probe(sourcePath string) domain.Command
}
