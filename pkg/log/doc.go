/*
Package log provides structured logging for dnsseed using zerolog.

The package wraps a single global zerolog.Logger that every other package
writes through. Until Init is called the logger is disabled, which keeps unit
tests quiet.

# Levels

	debug  per-query and per-peer decisions
	info   lifecycle: refresh loop start/stop, master file published
	warn   recoverable problems: a refresh that failed, a bad persisted file
	error  operation failures that need an operator

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	logger := log.WithComponent("whitelist")
	logger.Info().Int("peers", 12).Msg("whitelist refreshed")

Refresh cycles carry a correlation id so every line produced by one cycle can
be grouped:

	logger := log.WithRefreshID("seeder", id)
	logger.Warn().Err(err).Msg("refresh failed")

Console output (JSONOutput false) is meant for development:

	10:30AM INF whitelist refreshed component=whitelist peers=12
*/
package log
