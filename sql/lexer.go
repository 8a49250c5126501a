package sql

import "strings"

type Token struct {
	Type  TokenType
	Value string
}

type TokenType int

const (
	Identifier TokenType = iota
	TableIdentifier
	TablesIdentifier
	IndexIdentifier
	IndexesIdentifier
	Show
	On
	Wildcard
	String
	Int
	Float
	PrimaryKey
	Unique
	Comma
	Semicolon
	ParenOpen
	ParenClose
	Equals
	NotEquals
	LessThan
	GreaterThan
	LessThanOrEqual
	GreaterThanOrEqual
	And
	Or
	Not
	Null
	True
	False
	Select
	From
	Where
	Join
	Inner
	Insert
	Into
	Values
	Update
	Set
	Delete
	Create
	Drop
	Describe
	Unknown
	EOF
)

// keywords maps upper-cased words to their token. PRIMARY KEY spans two
// words and is handled by the lexer directly.
var keywords = map[string]TokenType{
	"TABLE":    TableIdentifier,
	"TABLES":   TablesIdentifier,
	"INDEX":    IndexIdentifier,
	"INDEXES":  IndexesIdentifier,
	"SHOW":     Show,
	"ON":       On,
	"UNIQUE":   Unique,
	"AND":      And,
	"OR":       Or,
	"NOT":      Not,
	"NULL":     Null,
	"TRUE":     True,
	"FALSE":    False,
	"SELECT":   Select,
	"FROM":     From,
	"WHERE":    Where,
	"JOIN":     Join,
	"INNER":    Inner,
	"INSERT":   Insert,
	"INTO":     Into,
	"VALUES":   Values,
	"UPDATE":   Update,
	"SET":      Set,
	"DELETE":   Delete,
	"CREATE":   Create,
	"DROP":     Drop,
	"DESCRIBE": Describe,
	"DESC":     Describe,
}

var punctuation = map[byte]TokenType{
	',': Comma,
	';': Semicolon,
	'(': ParenOpen,
	')': ParenClose,
	'*': Wildcard,
}

var operators = map[string]TokenType{
	"=":  Equals,
	"!=": NotEquals,
	"<>": NotEquals,
	"<":  LessThan,
	">":  GreaterThan,
	"<=": LessThanOrEqual,
	">=": GreaterThanOrEqual,
}

var tokenNames = map[TokenType]string{
	Identifier:         "Identifier",
	String:             "String",
	Int:                "Int",
	Float:              "Float",
	PrimaryKey:         "PRIMARY KEY",
	NotEquals:          "<>",
	LessThanOrEqual:    "<=",
	GreaterThanOrEqual: ">=",
	Describe:           "DESCRIBE",
	EOF:                "EOF",
}

func init() {
	for word, tokenType := range keywords {
		if _, ok := tokenNames[tokenType]; !ok {
			tokenNames[tokenType] = word
		}
	}
	for ch, tokenType := range punctuation {
		tokenNames[tokenType] = string(ch)
	}
	for op, tokenType := range operators {
		if _, ok := tokenNames[tokenType]; !ok {
			tokenNames[tokenType] = op
		}
	}
}

func (tokenType TokenType) String() string {
	if name, ok := tokenNames[tokenType]; ok {
		return name
	}
	return "Unknown"
}

func (token Token) String() string {
	switch token.Type {
	case Identifier, String, Int, Float, Unknown:
		return token.Type.String() + "(" + token.Value + ")"
	}
	return token.Type.String()
}

// Lexer walks a statement byte by byte. Keywords are case-insensitive and
// `--` starts a comment running to the end of the line.
type Lexer struct {
	sql          string
	position     int
	readPosition int
	ch           byte
}

func NewLexer(sql string) *Lexer {
	lexer := &Lexer{sql: sql}
	lexer.readChar()
	return lexer
}

func (lexer *Lexer) readChar() {
	lexer.ch = lexer.at(lexer.readPosition)
	lexer.position = lexer.readPosition
	lexer.readPosition++
}

func (lexer *Lexer) peekChar() byte {
	return lexer.at(lexer.readPosition)
}

func (lexer *Lexer) at(i int) byte {
	if i >= len(lexer.sql) {
		return 0
	}
	return lexer.sql[i]
}

func (lexer *Lexer) NextToken() Token {
	lexer.skipIgnored()

	ch := lexer.ch
	switch {
	case ch == 0:
		return Token{Type: EOF}
	case ch == '\'':
		str, ok := lexer.readString()
		if !ok {
			return Token{Type: Unknown, Value: "'" + str}
		}
		return Token{Type: String, Value: str}
	case isDigit(ch) || (ch == '-' && isDigit(lexer.peekChar())):
		return lexer.readNumber()
	case isLetter(ch):
		return lexer.readWord()
	case isOperator(ch):
		operator := lexer.readOperator()
		if tokenType, ok := operators[operator]; ok {
			return Token{Type: tokenType, Value: operator}
		}
		return Token{Type: Unknown, Value: operator}
	}

	lexer.readChar()
	if tokenType, ok := punctuation[ch]; ok {
		return Token{Type: tokenType, Value: string(ch)}
	}
	return Token{Type: Unknown, Value: string(ch)}
}

func (lexer *Lexer) PeekToken() Token {
	saved := *lexer
	token := lexer.NextToken()
	*lexer = saved
	return token
}

func (lexer *Lexer) skipIgnored() {
	for {
		switch {
		case lexer.ch == ' ' || lexer.ch == '\t' || lexer.ch == '\n' || lexer.ch == '\r':
			lexer.readChar()
		case lexer.ch == '-' && lexer.peekChar() == '-':
			for lexer.ch != '\n' && lexer.ch != 0 {
				lexer.readChar()
			}
		default:
			return
		}
	}
}

// readWord reads an identifier or keyword and folds PRIMARY KEY into one
// token.
func (lexer *Lexer) readWord() Token {
	literal := lexer.readIdentifier()
	upper := strings.ToUpper(literal)
	if upper == "PRIMARY" {
		lexer.skipIgnored()
		next := lexer.readIdentifier()
		if strings.EqualFold(next, "KEY") {
			return Token{Type: PrimaryKey, Value: "PRIMARY KEY"}
		}
		return Token{Type: Unknown, Value: literal + " " + next}
	}
	if tokenType, ok := keywords[upper]; ok {
		return Token{Type: tokenType, Value: literal}
	}
	return Token{Type: Identifier, Value: literal}
}

// readIdentifier accepts dots so that qualified names such as users.id
// arrive as one token.
func (lexer *Lexer) readIdentifier() string {
	return lexer.readWhile(isAlphaNumeric)
}

// readString consumes a single-quoted literal. A doubled quote inside the
// literal stands for one quote. The closing quote is consumed; ok is false
// when the input ends first.
func (lexer *Lexer) readString() (string, bool) {
	var out strings.Builder
	for {
		lexer.readChar()
		switch lexer.ch {
		case 0:
			return out.String(), false
		case '\'':
			if lexer.peekChar() != '\'' {
				lexer.readChar()
				return out.String(), true
			}
			lexer.readChar()
		}
		out.WriteByte(lexer.ch)
	}
}

func (lexer *Lexer) readNumber() Token {
	start := lexer.position
	if lexer.ch == '-' {
		lexer.readChar()
	}
	lexer.readWhile(isDigit)
	if lexer.ch == '.' && isDigit(lexer.peekChar()) {
		lexer.readChar()
		lexer.readWhile(isDigit)
		return Token{Type: Float, Value: lexer.sql[start:lexer.position]}
	}
	return Token{Type: Int, Value: lexer.sql[start:lexer.position]}
}

func (lexer *Lexer) readOperator() string {
	return lexer.readWhile(isOperator)
}

func (lexer *Lexer) readWhile(accept func(byte) bool) string {
	start := lexer.position
	for lexer.ch != 0 && accept(lexer.ch) {
		lexer.readChar()
	}
	return lexer.sql[start:lexer.position]
}

func isLetter(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
}

func isAlphaNumeric(ch byte) bool {
	return isLetter(ch) || ch == '.' || isDigit(ch)
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isOperator(ch byte) bool {
	return ch == '=' || ch == '!' || ch == '<' || ch == '>'
}

func tokenize(sql string) []Token {
	lexer := NewLexer(sql)

	var tokens []Token
	for {
		token := lexer.NextToken()
		tokens = append(tokens, token)
		if token.Type == EOF {
			return tokens
		}
	}
}
