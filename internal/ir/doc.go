// Package ir provides the value and document model shared by every other
// package.
//
// ir imports nothing internal. Documents are normalized by (type, id);
// relationships are stored raw as {type, id} references and are only turned
// into live associations by the association package.
package ir
