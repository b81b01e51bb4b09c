package codegen

import (
	"tinygo.org/x/go-llvm"

	"tml/internal/types"
)

// pushScope opens a new lexical scope, mirroring the teacher's st.Push of a
// fresh symTab in ir/llvm/transform.go's gen(ast.BLOCK) case.
func (g *Generator) pushScope() {
	g.scopes = append(g.scopes, newSymTab())
}

func (g *Generator) popScope() {
	g.scopes = g.scopes[:len(g.scopes)-1]
}

// declareLocal registers a new binding's alloca in the innermost scope.
func (g *Generator) declareLocal(name string, alloca llvm.Value, t types.Type) {
	g.scopes[len(g.scopes)-1].set(name, alloca)
	g.locals[name] = &local{alloca: alloca, semType: t}
}

// lookupAlloca finds name's stack slot by walking scopes innermost-first,
// then falls back to the global symbol table, mirroring the teacher's
// genLoad/genStore scan order over its scope Stack.
func (g *Generator) lookupAlloca(name string) (llvm.Value, bool) {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if v, ok := g.scopes[i].get(name); ok {
			return v, true
		}
	}
	return g.globals.get(name)
}

func (g *Generator) lookupLocalType(name string) (types.Type, bool) {
	l, ok := g.locals[name]
	if !ok {
		return nil, false
	}
	return l.semType, true
}
