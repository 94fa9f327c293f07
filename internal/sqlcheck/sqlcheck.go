// Package sqlcheck runs a local static pass over change statements before
// they are submitted to the platform's SQL check. It catches plain syntax
// errors and a few operationally risky patterns without a network round
// trip.
package sqlcheck

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Issue is one finding for a statement.
type Issue struct {
	Severity string `json:"severity"` // "error" or "warning"
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
}

// Check parses the statement and reports findings. An empty result means
// the statement passed. Only "error" severity should block a batch;
// warnings are advisory.
func Check(statement string) []Issue {
	var issues []Issue

	tree, err := pg_query.Parse(statement)
	if err != nil {
		return []Issue{{
			Severity: "error",
			Message:  fmt.Sprintf("syntax error: %v", err),
			Code:     "syntax_error",
		}}
	}

	for _, stmt := range tree.Stmts {
		if stmt.Stmt == nil {
			continue
		}
		issues = append(issues, checkStatement(stmt.Stmt)...)
	}
	return issues
}

// HasErrors reports whether any finding should block execution.
func HasErrors(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == "error" {
			return true
		}
	}
	return false
}

// Format renders findings into one diagnostic string.
func Format(issues []Issue) string {
	parts := make([]string, len(issues))
	for i, issue := range issues {
		parts[i] = issue.Severity + ": " + issue.Message
	}
	return strings.Join(parts, "; ")
}

func checkStatement(stmt *pg_query.Node) []Issue {
	var issues []Issue

	switch node := stmt.Node.(type) {
	case *pg_query.Node_DeleteStmt:
		if node.DeleteStmt.WhereClause == nil {
			issues = append(issues, Issue{
				Severity: "warning",
				Message:  fmt.Sprintf("DELETE without WHERE clause removes all rows from %q", rangeVarName(node.DeleteStmt.Relation)),
				Code:     "delete_all",
			})
		}

	case *pg_query.Node_UpdateStmt:
		if node.UpdateStmt.WhereClause == nil {
			issues = append(issues, Issue{
				Severity: "warning",
				Message:  fmt.Sprintf("UPDATE without WHERE clause touches all rows of %q", rangeVarName(node.UpdateStmt.Relation)),
				Code:     "update_all",
			})
		}

	case *pg_query.Node_TruncateStmt:
		issues = append(issues, Issue{
			Severity: "warning",
			Message:  "TRUNCATE TABLE deletes all rows and cannot be undone by the platform",
			Code:     "truncate",
		})

	case *pg_query.Node_TransactionStmt:
		// The execution gateway wraps each change itself; explicit
		// transaction control would interleave with that wrapping.
		issues = append(issues, Issue{
			Severity: "error",
			Message:  "transaction control statements (BEGIN/COMMIT/ROLLBACK) are managed by the platform",
			Code:     "transaction_control",
		})
	}
	return issues
}

func rangeVarName(relation *pg_query.RangeVar) string {
	if relation == nil {
		return ""
	}
	if relation.Schemaname != "" {
		return relation.Schemaname + "." + relation.Relname
	}
	return relation.Relname
}
