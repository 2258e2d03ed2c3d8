/*
Package rangeref parses range selectors of the command language.

A selector names a single position in a sequence:

	#s          the start of the sequence
	#e          the end of the sequence
	name        the first node called name
	name[n]     the n-th occurrence (1-based) of a node called name

A range is either one selector, or two joined by a slash: `first/last`.
Names are case-insensitive and stored lower-cased.
*/
package rangeref
