// Package main is the entry point for the omc CLI.
//
// Usage:
//
//	omc [flags] <command> [subcommand] [args]
//
// Commands:
//
//	config     - Configuration management (contexts)
//	remember   - Store text through the write pipeline
//	recall     - Search memories (smart, onto, chain modes)
//	forget     - Soft or hard delete a memory
//	restore    - Restore a soft-deleted memory
//	revise     - Adjust a memory's certainty or importance
//	supersede  - Mark one stored memory as replacing another
//	entities   - Entity resolution, search, and inspection
//	context    - Situational contexts memories can be filed under
//	ontology   - Ontology bootstrap and inspection
//	stats      - Store-wide statistics
//	cleanup    - Remove orphaned entities and edges
//	export     - Export a user's memories to a snapshot file
//	import     - Import memories from a snapshot file
//	deploy     - Plan and apply schema deployment levels
//	health     - Check the backing store
//	version    - Show version information
package main

import (
	"os"

	"github.com/ontomem/omc/cmd/omc/commands"
	"github.com/ontomem/omc/pkg/cli"
)

func main() {
	if err := commands.Execute(); err != nil {
		cli.PrintError("%v", err)
		os.Exit(1)
	}
}
