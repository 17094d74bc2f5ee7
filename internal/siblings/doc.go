// Package siblings resolves the ordered list of media that belong with a
// freshly captured anchor, either from an explicit id list supplied by the
// capture client or by discovering the anchor's capture group in the store.
package siblings
