package index

// QueryBuilder provides a fluent interface for building queries
type QueryBuilder struct {
	query Query
}

// NewQueryBuilder creates a builder for the given query type
func NewQueryBuilder(qt QueryType) *QueryBuilder {
	return &QueryBuilder{query: Query{Type: qt, Operator: OpEq}}
}

// Where sets the primary field and value
func (qb *QueryBuilder) Where(field Field, value any) *QueryBuilder {
	qb.query.Field = string(field)
	qb.query.Value = value
	return qb
}

// Match sets a fuzzy attribute ("name" or "node_type") and search text
func (qb *QueryBuilder) Match(attr, text string) *QueryBuilder {
	qb.query.Field = attr
	qb.query.Value = text
	return qb
}

// Op sets the range operator
func (qb *QueryBuilder) Op(op Operator) *QueryBuilder {
	qb.query.Operator = op
	return qb
}

// And sets the secondary condition of a composite query
func (qb *QueryBuilder) And(field Field, value any) *QueryBuilder {
	qb.query.SecondaryField = string(field)
	qb.query.SecondaryValue = value
	qb.query.SecondaryOperator = OpEq
	return qb
}

// Build returns the constructed query
func (qb *QueryBuilder) Build() Query {
	return qb.query
}

// Exact is shorthand for an exact query on one field
func Exact(field Field, value any) Query {
	return NewQueryBuilder(QueryExact).Where(field, value).Build()
}

// Range is shorthand for a range query
func Range(field Field, op Operator, value any) Query {
	return NewQueryBuilder(QueryRange).Where(field, value).Op(op).Build()
}

// Fuzzy is shorthand for a substring query on name or node_type
func Fuzzy(attr, text string) Query {
	return NewQueryBuilder(QueryFuzzy).Match(attr, text).Build()
}

// Both is shorthand for a composite query over two fields
func Both(field Field, value any, secondary Field, secondaryValue any) Query {
	return NewQueryBuilder(QueryComposite).Where(field, value).And(secondary, secondaryValue).Build()
}
