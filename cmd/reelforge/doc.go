// Command reelforge plans and drives media generation projects from the
// terminal. A run executes in the foreground and exits non-zero when the
// project finishes below the configured success-rate threshold, so CI and
// cron wrappers can gate on it directly.
package main
