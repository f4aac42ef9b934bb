// Package genericsql is a reference ANSI-ish SqlBuilder implementation so
// the Generator and its tests are exercised end-to-end without depending
// on a concrete production dialect library. Grounded on the dialect-hint
// tables in the Zqzqsb-ReActSqlExp and Vantagics reference agents:
// double-quoted identifiers, standard comparison/logical operators, and
// a trailing LIMIT clause. Production deployments supply their own
// SqlBuilder (Postgres, MySQL, MSSQL, ...).
package genericsql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nl2sql-engine/core/pkg/models"
)

// Builder is the reference SqlBuilder.
type Builder struct{}

// New constructs a Builder.
func New() *Builder { return &Builder{} }

// QuoteIdent double-quotes an identifier, escaping embedded quotes.
func (b *Builder) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// JoinKeyword implements sqlbuilder.SqlBuilder.
func (b *Builder) JoinKeyword(kind models.JoinKind) string {
	switch kind {
	case models.JoinInner:
		return "INNER JOIN"
	case models.JoinLeft:
		return "LEFT JOIN"
	case models.JoinRight:
		return "RIGHT JOIN"
	case models.JoinFull:
		return "FULL JOIN"
	default:
		return "JOIN"
	}
}

// LimitClause implements sqlbuilder.SqlBuilder.
func (b *Builder) LimitClause(effectiveLimit int) string {
	if effectiveLimit <= 0 {
		return ""
	}
	return "LIMIT " + strconv.Itoa(effectiveLimit)
}

// CompileExpr implements sqlbuilder.SqlBuilder, recursively compiling
// Expr's tagged union.
func (b *Builder) CompileExpr(e models.Expr) (string, error) {
	switch e.Kind {
	case models.ExprLiteral:
		return b.compileLiteral(e)
	case models.ExprColumn:
		if e.Alias == "" {
			return b.QuoteIdent(e.Column), nil
		}
		return b.QuoteIdent(e.Alias) + "." + b.QuoteIdent(e.Column), nil
	case models.ExprFunc:
		return b.compileFunc(e)
	case models.ExprBinary:
		return b.compileBinary(e)
	case models.ExprUnary:
		return b.compileUnary(e)
	case models.ExprCase:
		return b.compileCase(e)
	default:
		return "", fmt.Errorf("genericsql: unknown expr kind %q", e.Kind)
	}
}

func (b *Builder) compileLiteral(e models.Expr) (string, error) {
	if e.LiteralValue == nil {
		return "NULL", nil
	}
	switch v := e.LiteralValue.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func (b *Builder) compileFunc(e models.Expr) (string, error) {
	args := make([]string, 0, len(e.Args))
	for _, a := range e.Args {
		compiled, err := b.CompileExpr(a)
		if err != nil {
			return "", err
		}
		args = append(args, compiled)
	}
	return strings.ToUpper(e.FuncName) + "(" + strings.Join(args, ", ") + ")", nil
}

func (b *Builder) compileBinary(e models.Expr) (string, error) {
	left, err := b.CompileExpr(*e.Left)
	if err != nil {
		return "", err
	}
	right, err := b.CompileExpr(*e.Right)
	if err != nil {
		return "", err
	}
	return "(" + left + " " + compileOp(e.Op) + " " + right + ")", nil
}

func (b *Builder) compileUnary(e models.Expr) (string, error) {
	operand, err := b.CompileExpr(*e.Operand)
	if err != nil {
		return "", err
	}
	op := strings.ToUpper(e.Op)
	switch op {
	case "NOT":
		return "(NOT " + operand + ")", nil
	case "IS NULL", "ISNULL":
		return "(" + operand + " IS NULL)", nil
	case "IS NOT NULL":
		return "(" + operand + " IS NOT NULL)", nil
	default:
		return "(" + op + " " + operand + ")", nil
	}
}

func (b *Builder) compileCase(e models.Expr) (string, error) {
	var sb strings.Builder
	sb.WriteString("CASE")
	for _, wt := range e.WhenThen {
		when, err := b.CompileExpr(wt.When)
		if err != nil {
			return "", err
		}
		then, err := b.CompileExpr(wt.Then)
		if err != nil {
			return "", err
		}
		sb.WriteString(" WHEN " + when + " THEN " + then)
	}
	if e.Else != nil {
		els, err := b.CompileExpr(*e.Else)
		if err != nil {
			return "", err
		}
		sb.WriteString(" ELSE " + els)
	}
	sb.WriteString(" END")
	return sb.String(), nil
}

func compileOp(op string) string {
	switch op {
	case "eq", "==":
		return "="
	case "neq", "!=", "<>":
		return "<>"
	case "and":
		return "AND"
	case "or":
		return "OR"
	default:
		return strings.ToUpper(op)
	}
}
