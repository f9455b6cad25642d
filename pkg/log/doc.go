/*
Package log provides structured logging for nexusdb using zerolog.

The log package wraps zerolog to give every layer of the core — storage,
transactions, shard sync, and the query executor — JSON-structured logging
with component-specific child loggers and a handful of context helpers for
the identifiers that recur across the codebase (collection, shard,
transaction, query).

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	collLog := log.WithCollection("mydb", "orders")
	collLog.Info().Msg("collection loaded")

	shardLog := log.WithShard("orders/s0042")
	shardLog.Warn().Str("reason", "timeout").Msg("catch-up iteration did not converge")

Component loggers (log.WithComponent) are for subsystems (e.g. "shardsync",
"index", "executor"); the other With* helpers attach request-scoped
identifiers. Every With* helper derives its child logger from the
package-level Logger, so its fields are not combined with those of a
component logger.
*/
package log
