// Package formats provides parsers for mesh interchange formats that can be
// imported into a 3MF model.
package formats
