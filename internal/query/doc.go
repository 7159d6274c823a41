// Package query normalizes loosely typed options into a Query and composes
// queries.
//
// New validates every option and resolves condition keys ("age.gte",
// "author.name", Gte(prop), *Path) into a condition tree rooted at an and
// operation. Queries combine with Union, Intersection and Difference; a
// paginated or linked operand is rewritten into a self-relationship
// subquery so that combination stays exact. FilterRecords applies a query
// to records already in memory.
//
// Errors are *Error values carrying an ErrorCode. Use IsArgumentError and
// IsRangeError to classify them.
package query
