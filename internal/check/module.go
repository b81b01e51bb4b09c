package check

import (
	"strings"

	"tml/internal/ast"
	"tml/internal/types"
)

// collectUse validates `use path::to::Name[ as alias]` per §4.4.1: the
// target module must already be registered in Env.ModuleRegistry (the
// driver populates it, compiling imported modules before their importers
// — see internal/driver's topological ordering) and must not name this
// module itself (a direct self-cycle; deeper cross-module cycles are
// caught by the driver's own dependency-graph traversal before any
// Checker runs, since detecting them requires seeing every module's
// import list at once, not just one module's). Importing a symbol seeds
// the const/function/struct/... table with its short name (or alias) so
// unqualified references inside this module resolve; the fully qualified
// path is not added to the table.
func (c *Checker) collectUse(v *ast.UseDecl) {
	if len(v.Path) == 0 {
		return
	}
	modPath := strings.Join(v.Path[:len(v.Path)-1], "::")
	name := v.Path[len(v.Path)-1]
	if modPath == "" {
		return
	}
	if modPath == c.modulePath {
		c.errorf(TModuleCycle, v, "module %q cannot `use` a path into itself", c.modulePath)
		return
	}
	view, ok := c.Env.ModuleRegistry[modPath]
	if !ok {
		c.errorf(TUnknownModule, v, "unknown module %q", modPath)
		return
	}
	local := name
	if v.Alias != "" {
		local = v.Alias
	}
	if fs, ok := view.Functions[name]; ok {
		c.Env.Functions[local] = fs
		return
	}
	if si, ok := view.Structs[name]; ok {
		c.Env.Structs[local] = si
		return
	}
	if ei, ok := view.Enums[name]; ok {
		c.Env.Enums[local] = ei
		return
	}
	if ci, ok := view.Classes[name]; ok {
		c.Env.Classes[local] = ci
		return
	}
	if ti, ok := view.Traits[name]; ok {
		c.Env.Traits[local] = ti
		return
	}
	if ct, ok := view.Consts[name]; ok {
		c.Env.Consts[local] = ct
		return
	}
	c.errorf(TUndeclared, v, "module %q has no public symbol %q", modPath, name)
}

// ExportView wraps the checker's Env tables (every entry, public or not;
// visibility is not filtered) as a *types.ModuleView for registration in
// a shared ModuleRegistry, so
// subsequent modules' `use` declarations can resolve against it. Called
// by internal/driver after a module's CheckModule pass completes.
func (c *Checker) ExportView() *types.ModuleView {
	return &types.ModuleView{
		Path:      c.modulePath,
		Functions: c.Env.Functions,
		Structs:   c.Env.Structs,
		Enums:     c.Env.Enums,
		Classes:   c.Env.Classes,
		Traits:    c.Env.Traits,
		Consts:    c.Env.Consts,
	}
}
