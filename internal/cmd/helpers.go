package cmd

import (
	"io"
	"os"

	"github.com/juju/clock"
	"github.com/juju/loggo"

	"github.com/adamancini/hoist/internal/config"
	"github.com/adamancini/hoist/internal/interactive"
	"github.com/adamancini/hoist/internal/output"
	"github.com/adamancini/hoist/internal/update"
	"github.com/adamancini/hoist/internal/webbundle"
)

var logger = loggo.GetLogger("hoist.cmd")

// newOutput returns a writer for the --output format.
func newOutput(w io.Writer) (*output.Writer, output.Format, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, "", err
	}
	return output.NewWriter(w, format), format, nil
}

// openCache returns the configured bundle cache.
func openCache(cfg *config.Config) (*webbundle.Cache, error) {
	dir, err := cfg.CacheDir()
	if err != nil {
		return nil, err
	}
	return webbundle.NewCache(dir, uint64(cfg.QuotaBytes()), clock.WallClock), nil
}

// newChannel returns the web bundle channel over cache.
func newChannel(cfg *config.Config, cache *webbundle.Cache) *webbundle.Channel {
	return webbundle.NewChannel(webbundle.ChannelConfig{
		ManifestURL: cfg.Web.ManifestURL,
		Cache:       cache,
	})
}

// newGitHubChecker returns the native release checker for cfg.
func newGitHubChecker(cfg *config.Config) *update.GitHubChecker {
	checker := update.NewGitHubChecker(hoistVersion, cfg.Native.Owner, cfg.Native.Repo)

	// Use GITHUB_TOKEN if no token is configured
	token := cfg.Native.Token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token != "" {
		checker = checker.WithToken(token)
	}
	if cfg.Native.BinaryPath != "" {
		checker = checker.WithBinaryPath(cfg.Native.BinaryPath)
	}
	return checker
}

// newGate prompts on the terminal, or answers autoAnswer when stdin is not
// one.
func newGate(out io.Writer, autoAnswer bool) interactive.Gate {
	if interactive.IsTerminal() {
		return interactive.NewPrompterWithIO(os.Stdin, out)
	}
	return interactive.AutoGate{Answer: autoAnswer, Out: out}
}
