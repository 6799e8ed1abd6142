// Package extract turns raw source files into plain text snippets.
//
// Every supported format is handled by an Extractor registered under its
// lower-case file extension. Extractors return the text units of a file
// in document order (rows, pages, JSON objects) and leave normalization
// and deduplication to the caller.
package extract
