// Package assetcache stores generated media as content-addressed files.
//
// Every artifact is written through a temp file, hashed with SHA-256, and
// renamed to cache/<hh>/<hash><ext>. Identical content lands on the same
// path, so re-running a project never duplicates assets and a job's output
// reference stays valid across resumes. References are paths relative to the
// cache root; Resolve turns them back into absolute paths.
//
// Pruning follows the configured size budget and a free-space floor,
// evicting least-recently-touched entries first. References belonging to the
// active run can be pinned so a prune never deletes an asset a pending job
// still needs.
package assetcache
