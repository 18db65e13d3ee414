// Package convstore owns per-conversation, ordered, de-duplicated message
// logs. Logs are created lazily, ordered by arrival, and retained for the
// life of the process.
package convstore
