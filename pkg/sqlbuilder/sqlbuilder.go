// Package sqlbuilder defines the SqlBuilder seam the Generator compiles
// a validated PlanModel through, keeping the SQL dialect pluggable per
// spec.md §4.8.4. The Generator is a visitor over PlanModel.Expr's tagged
// union; SqlBuilder supplies one compile method per Expr kind plus the
// identifier-quoting and limit-clause conventions a concrete dialect
// needs.
package sqlbuilder

import "github.com/nl2sql-engine/core/pkg/models"

// SqlBuilder compiles validated plan fragments into dialect-specific SQL
// text. Every method receives already-validated input (the
// LogicalValidator has run); implementations are not expected to
// re-validate.
type SqlBuilder interface {
	// QuoteIdent quotes a table/column/alias identifier for the dialect.
	QuoteIdent(name string) string

	// CompileExpr compiles one Expr node together with all of its
	// sub-expressions: implementations recurse internally, and the
	// Generator calls it once per top-level expression.
	CompileExpr(e models.Expr) (string, error)

	// JoinKeyword returns the SQL keyword for a JoinKind ("INNER JOIN",
	// "LEFT JOIN", etc).
	JoinKeyword(kind models.JoinKind) string

	// LimitClause returns the dialect's LIMIT/TOP/FETCH clause text for
	// an already-clamped effective limit.
	LimitClause(effectiveLimit int) string
}
