// Package harness runs scripted end-to-end sync scenarios.
//
// A scenario describes a sequence of cycles: the snapshot tables
// visible to each cycle and the outcome it must produce. The harness
// encodes the tables as real dBase files in a temporary input
// directory, runs the real engine over them with a frozen clock and
// predetermined cycle tokens, and checks each cycle's result against
// the scenario's expectations. State accumulates across the cycles of
// one scenario exactly as it would across daemon ticks, so scenarios
// exercise change detection, not just single-cycle plumbing.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: lifecycle
//	description: "Adds, modifies and removes records across cycles."
//	cycles:
//	  - snapshots:
//	      stock.dbf:
//	        columns: [PART_NO, PRICE, STOCK, DOC_NO]
//	        rows:
//	          - ["A-100", "19.90", "10", "INV-1"]
//	    expect:
//	      status: ok
//	      added: 1
//	      outputs: [stock]
//	  - advance: 60s
//	    snapshots:
//	      stock.dbf:
//	        columns: [PART_NO, PRICE, STOCK, DOC_NO]
//	        rows:
//	          - ["A-100", "21.50", "10", "INV-1"]
//	    expect:
//	      status: ok
//	      modified: 1
//	      outputs: [stock]
//
// Each cycle's snapshots map is the complete input directory: files
// from earlier cycles that are absent from it are deleted before the
// cycle runs. Tables always use the built-in mapping profiles.
//
// Golden files under testdata/golden capture a transcript of every
// cycle, including the full content of every published output.
// Regenerate them with:
//
//	go test ./internal/harness -update
package harness
