package chunker

import (
	"go/ast"
	"go/parser"
	"go/token"

	"dupguard/internal/domain"
)

// GoParser parses Go source code into function and type spans.
type GoParser struct{}

// NewGoParser creates a new Go parser.
func NewGoParser() *GoParser {
	return &GoParser{}
}

// Language returns the language this parser handles.
func (p *GoParser) Language() string {
	return "go"
}

// Parse returns one span per function, method and type declaration.
func (p *GoParser) Parse(content string) ([]span, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", content, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}

	var spans []span
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			spans = append(spans, span{
				Kind:      domain.UnitFunction,
				Name:      funcName(d),
				StartLine: fset.Position(d.Pos()).Line,
				EndLine:   fset.Position(d.End()).Line,
			})

		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, s := range d.Specs {
				ts := s.(*ast.TypeSpec)
				start, end := fset.Position(ts.Pos()).Line, fset.Position(ts.End()).Line
				// an ungrouped declaration includes the "type" keyword line
				if d.Lparen == 0 {
					start, end = fset.Position(d.Pos()).Line, fset.Position(d.End()).Line
				}
				spans = append(spans, span{
					Kind:      domain.UnitClass,
					Name:      ts.Name.Name,
					StartLine: start,
					EndLine:   end,
				})
			}
		}
	}
	return spans, nil
}

// funcName returns Name for functions and Recv.Name for methods.
func funcName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return fn.Name.Name
	}
	if recv := receiverType(fn.Recv.List[0].Type); recv != "" {
		return recv + "." + fn.Name.Name
	}
	return fn.Name.Name
}

func receiverType(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.StarExpr:
		return receiverType(e.X)
	case *ast.Ident:
		return e.Name
	case *ast.IndexExpr:
		return receiverType(e.X)
	case *ast.IndexListExpr:
		return receiverType(e.X)
	}
	return ""
}
