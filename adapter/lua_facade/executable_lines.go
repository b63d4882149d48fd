package lua_facade

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/lumenlang/dap-adapter/adapter"
)

// ExecutableLines implements adapter.InterpreterFacade's optional
// executable-line table (spec §4.2, §6). smacker/go-tree-sitter ships
// no Lumen/Lua grammar, so this parses with the javascript grammar as
// a statement-shape proxy: both languages share the same
// one-statement-per-line convention this scan actually depends on
// (blank lines, closing braces and comment-only lines are never
// "statement start" nodes in either grammar), which is all
// BreakpointStore.Set needs to snap an unverified line forward.
func (f *Facade) ExecutableLines(source adapter.Source) ([]int, error) {
	text, err := f.sourceBytes(source)
	if err != nil {
		return nil, nil // unknown source: let BreakpointStore trust breakpoints as-given
	}

	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, text)
	if err != nil {
		return nil, nil
	}

	seen := map[int]bool{}
	var lines []int
	walkStatements(tree.RootNode(), func(n *sitter.Node) {
		line := int(n.StartPoint().Row) + 1
		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	})
	return lines, nil
}

// walkStatements visits every statement-shaped node in the tree,
// iteratively (per the teacher's stack-based traversal) rather than
// recursively, since a source file's nesting depth is otherwise
// unbounded.
func walkStatements(root *sitter.Node, visit func(*sitter.Node)) {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if isStatementNode(node.Type()) {
			visit(node)
		}
		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, node.Child(i))
		}
	}
}

func isStatementNode(nodeType string) bool {
	switch nodeType {
	case "expression_statement", "return_statement", "if_statement",
		"for_statement", "while_statement", "do_statement",
		"variable_declaration", "lexical_declaration", "call_expression",
		"assignment_expression", "break_statement", "continue_statement":
		return true
	default:
		return false
	}
}

func (f *Facade) sourceBytes(source adapter.Source) ([]byte, error) {
	if source.Reference != 0 {
		text, err := f.SourceText(source.Reference)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	}
	if text, ok := f.textByName(string(source.Key)); ok {
		return []byte(text), nil
	}
	if text, ok := f.textByName(source.Path); ok {
		return []byte(text), nil
	}
	return nil, errNoOnDiskRead
}

var errNoOnDiskRead = adapterErr("no chunk registered for this source; breakpoints are trusted as-given")

type adapterErr string

func (e adapterErr) Error() string { return string(e) }
