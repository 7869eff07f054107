// Package scheduler drives automatic uploads on a fixed period.
package scheduler
