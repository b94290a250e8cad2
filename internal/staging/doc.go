// Package staging manages the per-job artifact directories under
// paths.work_dir: listing them with their sizes and pruning the ones whose
// jobs finished long enough ago.
package staging
