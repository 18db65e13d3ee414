// Package dedupe provides a time-bounded seen-key cache used to skip
// redelivered frames under the at-least-once delivery contract.
package dedupe
