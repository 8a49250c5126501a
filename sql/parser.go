package sql

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/nickyhof/MiniDB/core"
)

// ErrSyntax is wrapped by every error the parser returns.
var ErrSyntax = errors.New("syntax error")

func syntaxError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

type StatementType int

const (
	SelectStatementType StatementType = iota
	InsertStatementType
	UpdateStatementType
	DeleteStatementType
	CreateTableStatementType
	DropTableStatementType
	CreateIndexStatementType
	DropIndexStatementType
	DescribeStatementType
	ShowTablesStatementType
	ShowIndexesStatementType
)

type Statement interface {
	Type() StatementType
}

// SelectStatement reads one table, optionally inner-joined with a second.
// Empty Columns means *.
type SelectStatement struct {
	Table   string
	Columns []string
	Join    *JoinClause
	Where   WhereClause
}

// JoinClause is an inner equi-join. LeftCol and RightCol are the two sides
// of the ON condition as written.
type JoinClause struct {
	Table    string
	LeftCol  string
	RightCol string
}

// InsertStatement holds one or more value rows. When Columns is set the
// rows are in that column order and the rest of the columns get NULL.
type InsertStatement struct {
	Table   string
	Columns []string
	Rows    [][]core.Value
}

type UpdateStatement struct {
	Table   string
	Updates []SetClause
	Where   WhereClause
}

type SetClause struct {
	Column string
	Value  core.Value
}

type DeleteStatement struct {
	Table string
	Where WhereClause
}

type CreateTableStatement struct {
	Table   string
	Columns []core.Column
}

type DropTableStatement struct {
	Table string
}

type CreateIndexStatement struct {
	Name   string
	Table  string
	Column string
	Unique bool
}

type DropIndexStatement struct {
	Name string
}

type DescribeStatement struct {
	Table string
}

type ShowTablesStatement struct{}

type ShowIndexesStatement struct {
	Table string
}

// WhereClause is a conjunction of conditions. An empty clause matches
// every row.
type WhereClause struct {
	Conditions []WhereCondition
}

func (w WhereClause) IsEmpty() bool {
	return len(w.Conditions) == 0
}

type WhereCondition struct {
	Column   string
	Operator WhereOperator
	Value    core.Value
}

func (c WhereCondition) String() string {
	return c.Column + " " + c.Operator.String() + " " + c.Value.SQL()
}

type WhereOperator int

const (
	EqualsOperator WhereOperator = iota
	NotEqualsOperator
	LessThanOperator
	GreaterThanOperator
	LessThanOrEqualOperator
	GreaterThanOrEqualOperator
)

func (op WhereOperator) String() string {
	switch op {
	case EqualsOperator:
		return "="
	case NotEqualsOperator:
		return "<>"
	case LessThanOperator:
		return "<"
	case GreaterThanOperator:
		return ">"
	case LessThanOrEqualOperator:
		return "<="
	case GreaterThanOrEqualOperator:
		return ">="
	default:
		return "?"
	}
}

// Matches reports whether a comparison result from core.Compare satisfies
// the operator.
func (op WhereOperator) Matches(cmp int) bool {
	switch op {
	case EqualsOperator:
		return cmp == 0
	case NotEqualsOperator:
		return cmp != 0
	case LessThanOperator:
		return cmp < 0
	case GreaterThanOperator:
		return cmp > 0
	case LessThanOrEqualOperator:
		return cmp <= 0
	case GreaterThanOrEqualOperator:
		return cmp >= 0
	default:
		return false
	}
}

func (s SelectStatement) Type() StatementType {
	return SelectStatementType
}

func (s InsertStatement) Type() StatementType {
	return InsertStatementType
}

func (s UpdateStatement) Type() StatementType {
	return UpdateStatementType
}

func (s DeleteStatement) Type() StatementType {
	return DeleteStatementType
}

func (s CreateTableStatement) Type() StatementType {
	return CreateTableStatementType
}

func (s DropTableStatement) Type() StatementType {
	return DropTableStatementType
}

func (s CreateIndexStatement) Type() StatementType {
	return CreateIndexStatementType
}

func (s DropIndexStatement) Type() StatementType {
	return DropIndexStatementType
}

func (s DescribeStatement) Type() StatementType {
	return DescribeStatementType
}

func (s ShowTablesStatement) Type() StatementType {
	return ShowTablesStatementType
}

func (s ShowIndexesStatement) Type() StatementType {
	return ShowIndexesStatementType
}

type Parser struct {
	lexer *Lexer
}

func NewParser(sql string) *Parser {
	lexer := NewLexer(sql)
	return &Parser{lexer: lexer}
}

// Parse reads exactly one statement. A trailing semicolon is allowed;
// anything after it is an error.
func (parser *Parser) Parse() (Statement, error) {
	statement, err := parser.parseStatement()
	if err != nil {
		return nil, err
	}

	token := parser.lexer.NextToken()
	if token.Type == Semicolon {
		token = parser.lexer.NextToken()
	}
	if token.Type != EOF {
		return nil, syntaxError("unexpected %s after statement", token)
	}
	return statement, nil
}

func (parser *Parser) parseStatement() (Statement, error) {
	token := parser.lexer.NextToken()
	switch token.Type {
	case Select:
		return ParseSelect(parser)
	case Insert:
		return ParseInsert(parser)
	case Update:
		return ParseUpdate(parser)
	case Delete:
		return ParseDelete(parser)
	case Create:
		return ParseCreate(parser)
	case Drop:
		return ParseDrop(parser)
	case Describe:
		return ParseDescribe(parser)
	case Show:
		return ParseShow(parser)
	case EOF:
		return nil, syntaxError("empty statement")
	default:
		return nil, syntaxError("unknown statement %s", token)
	}
}

func (parser *Parser) expect(tokenType TokenType, context string) (Token, error) {
	token := parser.lexer.NextToken()
	if token.Type != tokenType {
		return token, syntaxError("expected %s %s, got %s", tokenType, context, token)
	}
	return token, nil
}

func (parser *Parser) identifier(context string) (string, error) {
	token, err := parser.expect(Identifier, context)
	if err != nil {
		return "", err
	}
	return token.Value, nil
}

func ParseSelect(parser *Parser) (Statement, error) {
	var selectStatement SelectStatement

	token := parser.lexer.NextToken()
	if token.Type == Wildcard {
		token = parser.lexer.NextToken()
	} else {
		for {
			if token.Type != Identifier {
				return nil, syntaxError("expected column name or '*' in SELECT, got %s", token)
			}
			selectStatement.Columns = append(selectStatement.Columns, token.Value)

			token = parser.lexer.NextToken()
			if token.Type != Comma {
				break
			}
			token = parser.lexer.NextToken()
		}
	}

	if token.Type != From {
		return nil, syntaxError("expected FROM, got %s", token)
	}
	table, err := parser.identifier("after FROM")
	if err != nil {
		return nil, err
	}
	selectStatement.Table = table

	token = parser.lexer.PeekToken()
	if token.Type == Inner || token.Type == Join {
		parser.lexer.NextToken()
		if token.Type == Inner {
			if _, err := parser.expect(Join, "after INNER"); err != nil {
				return nil, err
			}
		}
		join, err := parseJoin(parser)
		if err != nil {
			return nil, err
		}
		selectStatement.Join = join
		token = parser.lexer.PeekToken()
	}

	if token.Type == Where {
		parser.lexer.NextToken()
		where, err := ParseWhere(parser)
		if err != nil {
			return nil, err
		}
		selectStatement.Where = where
	}

	return selectStatement, nil
}

func parseJoin(parser *Parser) (*JoinClause, error) {
	var join JoinClause

	table, err := parser.identifier("after JOIN")
	if err != nil {
		return nil, err
	}
	join.Table = table

	if _, err := parser.expect(On, "after join table"); err != nil {
		return nil, err
	}
	if join.LeftCol, err = parser.identifier("in ON condition"); err != nil {
		return nil, err
	}
	if _, err := parser.expect(Equals, "in ON condition"); err != nil {
		return nil, err
	}
	if join.RightCol, err = parser.identifier("in ON condition"); err != nil {
		return nil, err
	}

	return &join, nil
}

// ParseWhere reads conditions joined by AND. OR is not supported.
func ParseWhere(parser *Parser) (WhereClause, error) {
	var whereClause WhereClause

	for {
		column, err := parser.identifier("in WHERE clause")
		if err != nil {
			return whereClause, err
		}

		token := parser.lexer.NextToken()
		var operator WhereOperator
		switch token.Type {
		case Equals:
			operator = EqualsOperator
		case NotEquals:
			operator = NotEqualsOperator
		case LessThan:
			operator = LessThanOperator
		case GreaterThan:
			operator = GreaterThanOperator
		case LessThanOrEqual:
			operator = LessThanOrEqualOperator
		case GreaterThanOrEqual:
			operator = GreaterThanOrEqualOperator
		default:
			return whereClause, syntaxError("expected comparison operator after %s, got %s", column, token)
		}

		value, err := parseLiteral(parser)
		if err != nil {
			return whereClause, err
		}
		if value.IsNull() {
			return whereClause, syntaxError("NULL cannot be compared in WHERE clause")
		}

		whereClause.Conditions = append(whereClause.Conditions, WhereCondition{
			Column:   column,
			Operator: operator,
			Value:    value,
		})

		token = parser.lexer.PeekToken()
		switch token.Type {
		case And:
			parser.lexer.NextToken()
		case Or:
			return whereClause, syntaxError("OR is not supported")
		default:
			return whereClause, nil
		}
	}
}

func parseLiteral(parser *Parser) (core.Value, error) {
	token := parser.lexer.NextToken()
	switch token.Type {
	case Int:
		i, err := strconv.ParseInt(token.Value, 10, 64)
		if err != nil {
			return core.Null, syntaxError("integer out of range: %s", token.Value)
		}
		return core.Int(i), nil
	case Float:
		f, err := strconv.ParseFloat(token.Value, 64)
		if err != nil {
			return core.Null, syntaxError("invalid number: %s", token.Value)
		}
		return core.Float(f), nil
	case String:
		return core.Text(token.Value), nil
	case True:
		return core.Bool(true), nil
	case False:
		return core.Bool(false), nil
	case Null:
		return core.Null, nil
	default:
		return core.Null, syntaxError("expected literal, got %s", token)
	}
}

func ParseInsert(parser *Parser) (Statement, error) {
	var insertStatement InsertStatement

	if _, err := parser.expect(Into, "after INSERT"); err != nil {
		return nil, err
	}
	table, err := parser.identifier("after INSERT INTO")
	if err != nil {
		return nil, err
	}
	insertStatement.Table = table

	token := parser.lexer.NextToken()
	if token.Type == ParenOpen {
		for {
			column, err := parser.identifier("in column list")
			if err != nil {
				return nil, err
			}
			insertStatement.Columns = append(insertStatement.Columns, column)

			token = parser.lexer.NextToken()
			if token.Type == ParenClose {
				break
			}
			if token.Type != Comma {
				return nil, syntaxError("expected ',' or ')' in column list, got %s", token)
			}
		}
		token = parser.lexer.NextToken()
	}

	if token.Type != Values {
		return nil, syntaxError("expected VALUES, got %s", token)
	}

	for {
		if _, err := parser.expect(ParenOpen, "before values"); err != nil {
			return nil, err
		}

		var row []core.Value
		for {
			value, err := parseLiteral(parser)
			if err != nil {
				return nil, err
			}
			row = append(row, value)

			token = parser.lexer.NextToken()
			if token.Type == ParenClose {
				break
			}
			if token.Type != Comma {
				return nil, syntaxError("expected ',' or ')' in values list, got %s", token)
			}
		}
		if insertStatement.Columns != nil && len(row) != len(insertStatement.Columns) {
			return nil, syntaxError("%d columns but %d values", len(insertStatement.Columns), len(row))
		}
		insertStatement.Rows = append(insertStatement.Rows, row)

		if parser.lexer.PeekToken().Type != Comma {
			break
		}
		parser.lexer.NextToken()
	}

	return insertStatement, nil
}

func ParseUpdate(parser *Parser) (Statement, error) {
	var updateStatement UpdateStatement

	table, err := parser.identifier("after UPDATE")
	if err != nil {
		return nil, err
	}
	updateStatement.Table = table

	if _, err := parser.expect(Set, "after table name"); err != nil {
		return nil, err
	}

	for {
		column, err := parser.identifier("in SET clause")
		if err != nil {
			return nil, err
		}
		if _, err := parser.expect(Equals, "after "+column); err != nil {
			return nil, err
		}
		value, err := parseLiteral(parser)
		if err != nil {
			return nil, err
		}
		updateStatement.Updates = append(updateStatement.Updates, SetClause{Column: column, Value: value})

		if parser.lexer.PeekToken().Type != Comma {
			break
		}
		parser.lexer.NextToken()
	}

	if parser.lexer.PeekToken().Type == Where {
		parser.lexer.NextToken()
		where, err := ParseWhere(parser)
		if err != nil {
			return nil, err
		}
		updateStatement.Where = where
	}

	return updateStatement, nil
}

func ParseDelete(parser *Parser) (Statement, error) {
	var deleteStatement DeleteStatement

	if _, err := parser.expect(From, "after DELETE"); err != nil {
		return nil, err
	}
	table, err := parser.identifier("after DELETE FROM")
	if err != nil {
		return nil, err
	}
	deleteStatement.Table = table

	if parser.lexer.PeekToken().Type == Where {
		parser.lexer.NextToken()
		where, err := ParseWhere(parser)
		if err != nil {
			return nil, err
		}
		deleteStatement.Where = where
	}

	return deleteStatement, nil
}

func ParseCreate(parser *Parser) (Statement, error) {
	token := parser.lexer.NextToken()
	switch token.Type {
	case TableIdentifier:
		return ParseCreateTable(parser)
	case IndexIdentifier:
		return ParseCreateIndex(parser, false)
	case Unique:
		if _, err := parser.expect(IndexIdentifier, "after UNIQUE"); err != nil {
			return nil, err
		}
		return ParseCreateIndex(parser, true)
	default:
		return nil, syntaxError("expected TABLE or INDEX after CREATE, got %s", token)
	}
}

func ParseCreateTable(parser *Parser) (Statement, error) {
	var createTableStatement CreateTableStatement

	table, err := parser.identifier("after TABLE")
	if err != nil {
		return nil, err
	}
	createTableStatement.Table = table

	if _, err := parser.expect(ParenOpen, "after table name"); err != nil {
		return nil, err
	}

	for {
		columnName, err := parser.identifier("in column list")
		if err != nil {
			return nil, err
		}

		token := parser.lexer.NextToken()
		columnType, err := core.ParseColumnType(token.Value)
		if token.Type != Identifier || err != nil {
			return nil, syntaxError("expected column type (INT, TEXT, FLOAT, BOOL) for %s, got %s", columnName, token)
		}
		column := core.Column{Name: columnName, Type: columnType}

	constraints:
		for {
			token = parser.lexer.NextToken()
			switch token.Type {
			case PrimaryKey:
				column.PrimaryKey = true
			case Unique:
				column.Unique = true
			case Not:
				if _, err := parser.expect(Null, "after NOT"); err != nil {
					return nil, err
				}
				column.NotNull = true
			case Null:
			default:
				break constraints
			}
		}
		createTableStatement.Columns = append(createTableStatement.Columns, column)

		if token.Type == ParenClose {
			break
		}
		if token.Type != Comma {
			return nil, syntaxError("expected ',' or ')' in column list, got %s", token)
		}
	}

	return createTableStatement, nil
}

func ParseCreateIndex(parser *Parser, unique bool) (Statement, error) {
	createIndexStatement := CreateIndexStatement{Unique: unique}

	name, err := parser.identifier("after INDEX")
	if err != nil {
		return nil, err
	}
	createIndexStatement.Name = name

	if _, err := parser.expect(On, "after index name"); err != nil {
		return nil, err
	}
	if createIndexStatement.Table, err = parser.identifier("after ON"); err != nil {
		return nil, err
	}
	if _, err := parser.expect(ParenOpen, "after table name"); err != nil {
		return nil, err
	}
	if createIndexStatement.Column, err = parser.identifier("in index definition"); err != nil {
		return nil, err
	}
	if _, err := parser.expect(ParenClose, "after column name"); err != nil {
		return nil, err
	}

	return createIndexStatement, nil
}

func ParseDrop(parser *Parser) (Statement, error) {
	token := parser.lexer.NextToken()
	switch token.Type {
	case TableIdentifier:
		table, err := parser.identifier("after DROP TABLE")
		if err != nil {
			return nil, err
		}
		return DropTableStatement{Table: table}, nil
	case IndexIdentifier:
		name, err := parser.identifier("after DROP INDEX")
		if err != nil {
			return nil, err
		}
		return DropIndexStatement{Name: name}, nil
	default:
		return nil, syntaxError("expected TABLE or INDEX after DROP, got %s", token)
	}
}

func ParseShow(parser *Parser) (Statement, error) {
	token := parser.lexer.NextToken()
	switch token.Type {
	case TablesIdentifier:
		return ShowTablesStatement{}, nil
	case IndexesIdentifier:
		if _, err := parser.expect(On, "after SHOW INDEXES"); err != nil {
			return nil, err
		}
		table, err := parser.identifier("after SHOW INDEXES ON")
		if err != nil {
			return nil, err
		}
		return ShowIndexesStatement{Table: table}, nil
	default:
		return nil, syntaxError("expected TABLES or INDEXES after SHOW, got %s", token)
	}
}

func ParseDescribe(parser *Parser) (Statement, error) {
	table, err := parser.identifier("after DESCRIBE")
	if err != nil {
		return nil, err
	}
	return DescribeStatement{Table: table}, nil
}

func parse(sql string) (Statement, error) {
	return NewParser(sql).Parse()
}
