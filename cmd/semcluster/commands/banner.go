package commands

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"

	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/logger"
	"github.com/teranos/semcluster/version"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(verbosity int, cfg *am.Config, models []string) {
	versionInfo := version.Get()

	_ = pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("sem", pterm.FgCyan.ToStyle()),
		putils.LettersFromStringWithStyle("cluster", pterm.FgLightMagenta.ToStyle()),
	).Render()

	metricsPath := "disabled"
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	info := [][]string{
		{"Version", versionInfo.Version + " (commit " + versionInfo.Short() + ")"},
		{"Built", versionInfo.BuildTime},
		{"Listen", cfg.Addr()},
		{"Backend", cfg.Embeddings.Backend + " " + backendTarget(cfg)},
		{"Models", strings.Join(models, ", ")},
		{"Default", cfg.Embeddings.DefaultModel},
		{"Metrics", metricsPath},
		{"Verbosity", logger.LevelName(verbosity)},
	}
	_ = pterm.DefaultTable.WithData(info).WithLeftAlignment().Render()

	pterm.Println()
	pterm.Info.Println("POST /cluster with {\"texts\": [...], \"weights\": [...]} to group texts")
	pterm.Println(pterm.Gray("Press Ctrl+C to stop"))
	pterm.Println()
}

func backendTarget(cfg *am.Config) string {
	if cfg.Embeddings.Backend == am.BackendHTTP {
		return cfg.Embeddings.BaseURL
	}
	return ""
}
