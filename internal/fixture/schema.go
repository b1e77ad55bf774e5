package fixture

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaSource string

// Definition names in schema.cue.
const (
	DefUser               = "#User"
	DefProfile            = "#Profile"
	DefBankAccount        = "#BankAccount"
	DefCreatedBankAccount = "#CreatedBankAccount"
	DefTransaction        = "#Transaction"
	DefComment            = "#Comment"
)

var collectionDefs = map[string]string{
	CollectionUsers:        DefUser,
	CollectionTransactions: DefTransaction,
	CollectionBankAccounts: DefBankAccount,
	CollectionComments:     DefComment,
}

// Schema validates raw JSON records against the CUE definitions.
// A cue.Context is not safe for concurrent use, so calls are serialized.
//
// The context keeps every value built on it, so a Schema grows with each
// record it validates. Use one per batch (a Parse, an assertion) and drop it.
type Schema struct {
	mu   sync.Mutex
	ctx  *cue.Context
	root cue.Value
}

// NewSchema compiles the embedded definitions.
func NewSchema() (*Schema, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{ctx: ctx, root: root}, nil
}

// Validate checks one JSON value against the named definition.
// Every required field must be present with a concrete value of the declared kind.
func (s *Schema) Validate(definition string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def := s.root.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("unknown schema definition %s", definition)
	}

	expr, err := cuejson.Extract(definition, data)
	if err != nil {
		return fmt.Errorf("parse record: %w", err)
	}
	value := s.ctx.BuildExpr(expr)
	if err := value.Err(); err != nil {
		return fmt.Errorf("build record: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s: %w", definition, err)
	}
	return nil
}

// Definitions returns the names of all definitions in the schema.
func (s *Schema) Definitions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	iter, err := s.root.Fields(cue.Definitions(true))
	if err != nil {
		return nil
	}
	for iter.Next() {
		if iter.Selector().IsDefinition() {
			names = append(names, iter.Selector().String())
		}
	}
	return names
}

// ValidateRecord validates one record with a Schema of its own.
func ValidateRecord(definition string, data []byte) error {
	schema, err := NewSchema()
	if err != nil {
		return err
	}
	return schema.Validate(definition, data)
}
