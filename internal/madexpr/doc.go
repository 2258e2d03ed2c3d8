// Package madexpr parses and evaluates arithmetic expressions of the
// command language, e.g. `kqf*sqrt(2) + mq.b1->l/2`.
//
// Names in the command language may contain dots and the `->` attribute
// operator, neither of which HCL accepts in an identifier. Parse replaces
// every variable name with a placeholder, hands the result to the HCL
// native-syntax parser, and maps the placeholders back when the expression
// is analysed or evaluated. Functions are go-cty functions.
package madexpr
