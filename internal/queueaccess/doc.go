// Package queueaccess gives the CLI one job interface whether or not a
// daemon is running. When the daemon API answers, calls go over HTTP;
// otherwise the configured store is opened directly.
package queueaccess
