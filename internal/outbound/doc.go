// Package outbound turns user submissions into optimistic messages and
// delivers them, queueing in a single global FIFO while disconnected.
package outbound
