/*
Package log provides structured logging for tiersync using zerolog.

The log package wraps zerolog with a package-global logger, configurable
levels and child loggers carrying the context the sync engine cares about:
the component, the database (record type) and the record key.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - zerolog instance, set by log.Init()      │          │
	│  │  - safe for concurrent use                  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Context Loggers                     │          │
	│  │  - WithComponent("connectivity")            │          │
	│  │  - WithDatabase("notes")                    │          │
	│  │  - WithRecord(dbLog, "42")                  │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	dbLog := log.WithDatabase("notes")
	log.WithRecord(dbLog, key).Warn().Err(err).Msg("local put failed")

Console output is used unless JSONOutput is set:

	10:30:01 INF went offline component=connectivity
	10:30:02 WRN local put failed component=engine database=notes key=42 error="disk full"

# Levels

The engine logs stage execution at debug, local-tier failures at warn
(the local cache is best-effort), terminal remote failures at error and
offline suspension/resumption at info.
*/
package log
