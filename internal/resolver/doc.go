// Package resolver derives conversation identity from the user's
// project/team/agent selection and the roster.
package resolver
