package check

import (
	"tml/internal/ast"
	"tml/internal/types"
)

// checkHierarchy validates every collected class's `extends` chain per
// §4.4.4: no cycles (T039), every `override` method has a matching
// `virtual` method upward in the chain (T064/T065) with an identical
// parameter count (T058), and a non-abstract class implements every
// abstract method it inherits (T045). Called once after collectPass has
// populated Env.Classes for the whole module, since override resolution
// needs every class — including ones declared after the overriding class
// — visible.
func (c *Checker) checkHierarchy(decls []ast.Decl) {
	for _, d := range decls {
		switch v := d.(type) {
		case *ast.ClassDecl:
			c.checkClassHierarchy(v)
		case *ast.ModDecl:
			c.checkHierarchy(v.Decls)
		}
	}
}

func (c *Checker) checkClassHierarchy(v *ast.ClassDecl) {
	if c.hasExtendsCycle(v.Name) {
		c.errorf(TModuleCycle, v, "class %q participates in an `extends` cycle", v.Name)
		return
	}
	ci := c.Env.Classes[v.Name]
	if ci == nil {
		return
	}
	for _, m := range v.Methods {
		if !m.IsOverride {
			continue
		}
		base := c.findVirtualUpward(ci.Base, m.Name)
		if base == nil {
			c.errorf(TOverrideNoVirtual, m, "`override` method %q has no matching `virtual` method in a base class", m.Name)
			continue
		}
		if mine := ci.Methods[m.Name]; mine != nil && len(mine.Params) != len(base.Params) {
			c.errorf(TOverrideSignature, m, "override %q parameter count does not match the virtual method it overrides", m.Name)
		}
	}
	if !ci.IsAbstract {
		for _, abs := range c.abstractMethodsUpward(ci.Base) {
			if m, ok := ci.Methods[abs]; !ok || !m.HasBody {
				c.errorf(TAbstractUnimpl, v, "non-abstract class %q does not implement abstract method %q", v.Name, abs)
			}
		}
	}
}

func (c *Checker) hasExtendsCycle(start string) bool {
	seen := map[string]bool{}
	cur := start
	for {
		ci, ok := c.Env.Classes[cur]
		if !ok || ci.Base == "" {
			return false
		}
		if seen[ci.Base] || ci.Base == start {
			return true
		}
		seen[ci.Base] = true
		cur = ci.Base
	}
}

// findVirtualUpward walks the base chain starting at className looking
// for a `virtual` method named method, returning the FuncSig the override
// binds to (T064's "matching virtual method upward in the chain").
func (c *Checker) findVirtualUpward(className, method string) *types.FuncSig {
	for className != "" {
		ci, ok := c.Env.Classes[className]
		if !ok {
			return nil
		}
		if fs, ok := ci.Methods[method]; ok && fs.IsVirtual {
			return fs
		}
		className = ci.Base
	}
	return nil
}

// abstractMethodsUpward collects every method declared without a body
// (i.e. an abstract method signature) anywhere in className's base chain,
// for T045's "descendant must implement every abstract method" check.
func (c *Checker) abstractMethodsUpward(className string) []string {
	var out []string
	for className != "" {
		ci, ok := c.Env.Classes[className]
		if !ok {
			break
		}
		if ci.IsAbstract {
			for name, fs := range ci.Methods {
				if !fs.HasBody {
					out = append(out, name)
				}
			}
		}
		className = ci.Base
	}
	return out
}
