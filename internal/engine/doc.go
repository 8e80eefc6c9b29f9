// Package engine orchestrates sync cycles.
//
// A cycle is a strict pipeline over every monitored snapshot:
//
//  1. discover: list snapshot files in the input directory
//  2. read: stream rows under a shared lock (internal/source)
//  3. map: resolve legacy columns to canonical fields (internal/transform)
//  4. detect: compare checksums against committed state (internal/detect)
//  5. transform: validate and build output records for changed keys
//  6. publish: write one atomic output file per changed source (internal/publish)
//  7. commit: fold the published checksums into state, atomically
//
// Detection runs before strict validation on purpose. Checksums cover
// the mapped field texts, so a record that fails validation today is
// still detected as changed, dropped with a warning, and retried on
// every later cycle until the source fixes it or the row disappears.
//
// Sources are independent: a locked or corrupt snapshot never stops
// the others from synchronizing. State commits per source, strictly
// after that source's output file is visible. A crash between publish
// and commit therefore replays the same changes on the next cycle; the
// downstream importer sees a duplicate file, never a gap.
//
// The engine itself is synchronous and single-threaded. The Scheduler
// supplies the polling loop, the single-flight guarantee, and the
// lifecycle states around it.
package engine
