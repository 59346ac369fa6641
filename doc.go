// Package livefs provides the virtual filesystem behind the editor's live
// preview server.
//
// Like the filesystem abstractions it grew from, livefs segregates the
// read-only ([FileReader]) and write ([FileWriter]) halves of the contract,
// combined in [FileSystem]. The preview server only depends on
// [FileReader], so it can never mutate what it serves.
//
// # Nodes
//
// Every node is described by a [FileInfo]: an absolute '/'-separated path,
// size, modification time, and a content [FileInfo.Hash] that changes iff
// the content changes. Directories carry no size or hash.
//
// # Storage Backends
//
//   - In-memory (github.com/gobeaver/livefs/driver/memory): scratch space and tests
//   - Local directory (github.com/gobeaver/livefs/driver/local): the open project
//
// # Mount Manager
//
// The [MountManager] combines backends under one namespace:
//
//	mounts := livefs.NewMountManager()
//	mounts.Mount("/project", local.New(dir))
//	mounts.Mount("/app", memory.New())
//
//	data, err := mounts.ReadAll(ctx, "/project/index.html")
//
// # Optional Capabilities
//
// Drivers may implement [CanCopy], [CanMove], [CanChecksum] and [CanWatch].
// Use type assertions to check for support.
//
// # Error Handling
//
//	_, err := fs.Stat(ctx, "missing.txt")
//	if livefs.IsNotExist(err) {
//	    // File does not exist
//	}
//
// Boundaries that must not tell "absent" from "unreadable" apart fold every
// failure with [NotFound].
//
// # Configuration
//
// [GetConfig] loads the driver selection from BEAVER_LIVEFS_* environment
// variables; a [Registry] turns it into a [FileSystem].
package livefs
