// Package deb provides a pure Go library for reading Debian packages and APT
// repository metadata.
//
// # Design Philosophy
//
// The package is designed to operate primarily in-memory, treating Debian packages and
// repository metadata as structured objects that can be read from and written to
// streams (io.Reader/io.Writer). This approach eliminates the need for temporary
// files or external system dependencies like 'dpkg' or 'apt-ftparchive', making it
// ideal for serverless environments, CI/CD pipelines, and cross-platform tools.
//
// # Features
//
// Package Management:
//   - Read and parse .deb files from any io.Reader.
//   - Create new packages from scratch or patch existing ones.
//   - Modify control metadata, maintainer scripts, and payload files.
//   - Generate valid .deb archives. The output is not byte-for-byte
//     reproducible: ar member and control-archive timestamps are taken from
//     the current time, and ExtraFields are written in map iteration order.
//
// Repository Metadata:
//   - Parse a repository's Release file into its top-level fields and its
//     SHA256 manifest of index files.
//   - Verify detached GPG signatures (Release/Release.gpg, or a package's own
//     embedded signature) using Go's openpgp.
//
// Versioning:
//   - Implements Debian version comparison logic.
package deb
