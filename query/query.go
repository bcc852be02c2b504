// Package query implements the query engine collaborator boundary: a
// Query's `matches(document)` predicate and its path-prefix index.
// Matching is expressed as a compiled CEL expression over a document's
// field map.
package query

import (
	"fmt"

	"github.com/google/cel-go/cel"

	localstore "github.com/sharedcode/localstore"
)

// Query is either a collection query (all direct children of CollectionPath
// that satisfy Filter) or a single-document query (DocumentKey set,
// CollectionPath empty).
type Query struct {
	CollectionPath string
	DocumentKey    localstore.DocumentKey
	IsDocumentGet  bool
	Filter         *Evaluator
}

// NewCollectionQuery builds a query matching every document directly under
// collectionPath for which filter (if non-nil) evaluates truthy.
func NewCollectionQuery(collectionPath string, filter *Evaluator) Query {
	return Query{CollectionPath: collectionPath, Filter: filter}
}

// NewDocumentQuery builds a query matching exactly one document key.
func NewDocumentQuery(key localstore.DocumentKey) Query {
	return Query{DocumentKey: key, IsDocumentGet: true}
}

// CanonicalID returns a stable string identity for this query, used by
// allocateQuery to look up an existing QueryData registration.
func (q Query) CanonicalID() string {
	if q.IsDocumentGet {
		return "doc:" + q.DocumentKey.Path()
	}
	expr := ""
	if q.Filter != nil {
		expr = q.Filter.Expression
	}
	return "col:" + q.CollectionPath + "?" + expr
}

// Matches reports whether doc is selected by this query: for a document-get
// query, key equality; for a collection query, direct-child membership plus
// Filter (when set).
func (q Query) Matches(doc localstore.MaybeDocument) bool {
	if !doc.IsDocument() {
		return false
	}
	if q.IsDocumentGet {
		return doc.Key == q.DocumentKey
	}
	if !doc.Key.IsDirectChildOf(q.CollectionPath) {
		return false
	}
	if q.Filter == nil {
		return true
	}
	ok, err := q.Filter.Evaluate(doc.Fields)
	return err == nil && ok
}

// Evaluator compiles and runs a CEL boolean predicate against a document's
// field map, exposed to the expression as the variable `fields`.
type Evaluator struct {
	Expression string
	program    cel.Program
}

// NewEvaluator compiles expression, a CEL expression over the `fields`
// variable that must evaluate to a bool.
func NewEvaluator(expression string) (*Evaluator, error) {
	if expression == "" {
		return nil, fmt.Errorf("query: expression must not be empty")
	}
	env, err := cel.NewEnv(
		cel.Variable("fields", cel.MapType(cel.StringType, cel.AnyType)),
	)
	if err != nil {
		return nil, fmt.Errorf("query: creating CEL environment: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("query: compiling expression: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("query: building program: %w", err)
	}
	return &Evaluator{Expression: expression, program: prg}, nil
}

// Evaluate runs the compiled predicate against fields.
func (e *Evaluator) Evaluate(fields localstore.Fields) (bool, error) {
	out, _, err := e.program.Eval(map[string]any{"fields": map[string]any(fields)})
	if err != nil {
		return false, fmt.Errorf("query: evaluating expression: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("query: expression %q did not evaluate to bool", e.Expression)
	}
	return b, nil
}
