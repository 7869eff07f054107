// Package superprops holds the super properties stamped onto every new
// entry.
//
// There are two maps. Transient properties live as long as the process;
// persistent ones are written through the storage adapter on every change
// and reloaded on start. Setting a key in one map removes it from the other,
// and Effective merges them with transient values winning.
package superprops
