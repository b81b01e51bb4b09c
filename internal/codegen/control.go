package codegen

import (
	"tinygo.org/x/go-llvm"

	"tml/internal/ast"
	"tml/internal/types"
)

// lowerIf mirrors the teacher's genIf: a then/else/converge three-block
// wiring, generalized to produce a PHI-joined value since `if` is an
// expression in TML rather than VSL's statement-only conditional.
func (g *Generator) lowerIf(v *ast.IfExpr) (llvm.Value, types.Type, error) {
	cond, _, err := g.lowerExpr(v.Cond)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	thenBB := llvm.AddBasicBlock(g.fn, "if.then")
	var elseBB, convBB llvm.BasicBlock
	hasElse := v.Else != nil
	if hasElse {
		elseBB = llvm.AddBasicBlock(g.fn, "if.else")
	}
	convBB = llvm.AddBasicBlock(g.fn, "if.conv")
	if hasElse {
		g.builder.CreateCondBr(g.truthy(cond), thenBB, elseBB)
	} else {
		g.builder.CreateCondBr(g.truthy(cond), thenBB, convBB)
	}

	g.builder.SetInsertPointAtEnd(thenBB)
	thenVal, t, err := g.lowerBlockExpr(v.Then)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	thenTerminated := g.terminated
	thenEnd := g.builder.GetInsertBlock()
	if !thenTerminated {
		g.builder.CreateBr(convBB)
	}

	var elseVal llvm.Value
	var elseTerminated bool
	var elseEnd llvm.BasicBlock
	if hasElse {
		g.builder.SetInsertPointAtEnd(elseBB)
		g.terminated = false
		switch e := v.Else.(type) {
		case *ast.BlockExpr:
			elseVal, _, err = g.lowerBlockExpr(e)
		case *ast.IfExpr:
			elseVal, _, err = g.lowerIf(e)
		default:
			elseVal, _, err = g.lowerExpr(v.Else)
		}
		if err != nil {
			return llvm.Value{}, nil, err
		}
		elseTerminated = g.terminated
		elseEnd = g.builder.GetInsertBlock()
		if !elseTerminated {
			g.builder.CreateBr(convBB)
		}
	}

	g.builder.SetInsertPointAtEnd(convBB)
	g.terminated = thenTerminated && (hasElse && elseTerminated)
	if g.terminated {
		g.builder.CreateUnreachable()
		return llvm.Value{}, types.Unit, nil
	}
	if !hasElse || thenVal.IsNil() || elseVal.IsNil() {
		return llvm.Value{}, types.Unit, nil
	}
	phi := g.builder.CreatePHI(thenVal.Type(), "")
	var incomingVals []llvm.Value
	var incomingBlocks []llvm.BasicBlock
	if !thenTerminated {
		incomingVals = append(incomingVals, thenVal)
		incomingBlocks = append(incomingBlocks, thenEnd)
	}
	if !elseTerminated {
		incomingVals = append(incomingVals, elseVal)
		incomingBlocks = append(incomingBlocks, elseEnd)
	}
	phi.AddIncoming(incomingVals, incomingBlocks)
	return phi, t, nil
}

// lowerWhen lowers `when` to a tag-load-and-compare decision cascade per
// §4.5.5's "when lowering" note: each arm is tried in order, falling
// through to the next arm's test block on mismatch, with pattern bindings
// materialized in the matched arm's own scope.
func (g *Generator) lowerWhen(v *ast.WhenExpr) (llvm.Value, types.Type, error) {
	scrut, st, err := g.lowerExpr(v.Scrutinee)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	slt, err := g.lowerType(st)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	slot := g.builder.CreateAlloca(slt, "when_scrutinee")
	g.builder.CreateStore(scrut, slot)

	convBB := llvm.AddBasicBlock(g.fn, "when.conv")
	var resultType types.Type = types.Unit
	var incomingVals []llvm.Value
	var incomingBlocks []llvm.BasicBlock

	for i, arm := range v.Arms {
		armBB := llvm.AddBasicBlock(g.fn, "when.arm")
		var nextBB llvm.BasicBlock
		if i < len(v.Arms)-1 {
			nextBB = llvm.AddBasicBlock(g.fn, "when.next")
		} else {
			nextBB = convBB
		}
		if err := g.emitPatternTest(arm.Pattern, slot, st, armBB, nextBB); err != nil {
			return llvm.Value{}, nil, err
		}

		g.builder.SetInsertPointAtEnd(armBB)
		g.pushScope()
		if err := g.bindPattern(arm.Pattern, slot, st); err != nil {
			return llvm.Value{}, nil, err
		}
		if arm.Guard != nil {
			guardVal, _, err := g.lowerExpr(arm.Guard)
			if err != nil {
				return llvm.Value{}, nil, err
			}
			guardPass := llvm.AddBasicBlock(g.fn, "when.guard_pass")
			g.builder.CreateCondBr(g.truthy(guardVal), guardPass, nextBB)
			g.builder.SetInsertPointAtEnd(guardPass)
		}
		armVal, armT, err := g.lowerExpr(arm.Body)
		if err != nil {
			g.popScope()
			return llvm.Value{}, nil, err
		}
		resultType = armT
		if !g.terminated {
			incomingVals = append(incomingVals, armVal)
			incomingBlocks = append(incomingBlocks, g.builder.GetInsertBlock())
			g.builder.CreateBr(convBB)
		}
		g.terminated = false
		g.popScope()

		g.emitCovHit()
		if i < len(v.Arms)-1 {
			g.builder.SetInsertPointAtEnd(nextBB)
		}
	}

	g.builder.SetInsertPointAtEnd(convBB)
	if len(incomingVals) == 0 {
		g.builder.CreateUnreachable()
		g.terminated = true
		return llvm.Value{}, types.Unit, nil
	}
	if resultType == types.Unit {
		return llvm.Value{}, types.Unit, nil
	}
	phi := g.builder.CreatePHI(incomingVals[0].Type(), "")
	phi.AddIncoming(incomingVals, incomingBlocks)
	return phi, resultType, nil
}

// emitPatternTest branches to matchBB when pat matches the value at slot,
// or failBB otherwise. Irrefutable patterns (wildcard/ident/tuple/struct)
// always match; enum/literal patterns compare a tag or value.
func (g *Generator) emitPatternTest(pat ast.Pattern, slot llvm.Value, t types.Type, matchBB, failBB llvm.BasicBlock) error {
	switch p := pat.(type) {
	case *ast.WildcardPattern, *ast.IdentPattern, *ast.TuplePattern, *ast.StructPattern:
		g.builder.CreateBr(matchBB)
		return nil
	case *ast.EnumPattern:
		tag := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 0, ""), "")
		want := llvm.ConstInt(llvm.Int32Type(), uint64(g.variantTag(t, p.Path[len(p.Path)-1])), false)
		cond := g.builder.CreateICmp(llvm.IntEQ, tag, want, "")
		g.builder.CreateCondBr(cond, matchBB, failBB)
		return nil
	case *ast.LiteralPattern:
		lv, _, err := g.lowerExpr(p.Expr)
		if err != nil {
			return err
		}
		if _, err := g.lowerType(t); err != nil {
			return err
		}
		cur := g.builder.CreateLoad(slot, "")
		var cond llvm.Value
		if isFloatType(t) {
			cond = g.builder.CreateFCmp(llvm.FloatOEQ, cur, lv, "")
		} else {
			cond = g.builder.CreateICmp(llvm.IntEQ, cur, lv, "")
		}
		g.builder.CreateCondBr(cond, matchBB, failBB)
		return nil
	case *ast.OrPattern:
		for i, alt := range p.Alts {
			var next llvm.BasicBlock
			if i < len(p.Alts)-1 {
				next = llvm.AddBasicBlock(g.fn, "when.or")
			} else {
				next = failBB
			}
			if err := g.emitPatternTest(alt, slot, t, matchBB, next); err != nil {
				return err
			}
			if i < len(p.Alts)-1 {
				g.builder.SetInsertPointAtEnd(next)
			}
		}
		return nil
	case *ast.RangePattern:
		lo, _, err := g.lowerExpr(p.Lo)
		if err != nil {
			return err
		}
		hi, _, err := g.lowerExpr(p.Hi)
		if err != nil {
			return err
		}
		if _, err := g.lowerType(t); err != nil {
			return err
		}
		cur := g.builder.CreateLoad(slot, "")
		geLo := g.builder.CreateICmp(llvm.IntSGE, cur, lo, "")
		hiPred := llvm.IntSLE
		if !p.Inclusive {
			hiPred = llvm.IntSLT
		}
		leHi := g.builder.CreateICmp(hiPred, cur, hi, "")
		cond := g.builder.CreateAnd(geLo, leHi, "")
		g.builder.CreateCondBr(cond, matchBB, failBB)
		return nil
	}
	return errf(CUnsupportedPattern, "unsupported when pattern %T", pat)
}

func (g *Generator) lowerLoop(v *ast.LoopExpr) (llvm.Value, types.Type, error) {
	headBB := llvm.AddBasicBlock(g.fn, "loop.head")
	exitBB := llvm.AddBasicBlock(g.fn, "loop.exit")
	g.builder.CreateBr(headBB)
	g.builder.SetInsertPointAtEnd(headBB)

	g.loopExits = append(g.loopExits, exitBB)
	g.loopContinue = append(g.loopContinue, headBB)
	g.loopLabels = append(g.loopLabels, v.Label)
	_, _, err := g.lowerBlockExpr(v.Body)
	g.loopExits = g.loopExits[:len(g.loopExits)-1]
	g.loopContinue = g.loopContinue[:len(g.loopContinue)-1]
	g.loopLabels = g.loopLabels[:len(g.loopLabels)-1]
	if err != nil {
		return llvm.Value{}, nil, err
	}
	if !g.terminated {
		g.builder.CreateBr(headBB)
	}
	g.terminated = false
	g.builder.SetInsertPointAtEnd(exitBB)
	return llvm.Value{}, types.Unit, nil
}

func (g *Generator) lowerWhileExpr(v *ast.WhileExpr) (llvm.Value, types.Type, error) {
	headBB := llvm.AddBasicBlock(g.fn, "while.head")
	bodyBB := llvm.AddBasicBlock(g.fn, "while.body")
	exitBB := llvm.AddBasicBlock(g.fn, "while.exit")
	g.builder.CreateBr(headBB)
	g.builder.SetInsertPointAtEnd(headBB)
	cond, _, err := g.lowerExpr(v.Cond)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	g.builder.CreateCondBr(g.truthy(cond), bodyBB, exitBB)

	g.builder.SetInsertPointAtEnd(bodyBB)
	g.loopExits = append(g.loopExits, exitBB)
	g.loopContinue = append(g.loopContinue, headBB)
	g.loopLabels = append(g.loopLabels, v.Label)
	_, _, err = g.lowerBlockExpr(v.Body)
	g.loopExits = g.loopExits[:len(g.loopExits)-1]
	g.loopContinue = g.loopContinue[:len(g.loopContinue)-1]
	g.loopLabels = g.loopLabels[:len(g.loopLabels)-1]
	if err != nil {
		return llvm.Value{}, nil, err
	}
	if !g.terminated {
		g.builder.CreateBr(headBB)
	}
	g.terminated = false
	g.builder.SetInsertPointAtEnd(exitBB)
	return llvm.Value{}, types.Unit, nil
}

// lowerFor desugars `for pat in iter { body }` over a Range into a
// counting loop; any other iterable is out of this generator's scope
// (documented simplification — see DESIGN.md).
func (g *Generator) lowerFor(v *ast.ForExpr) (llvm.Value, types.Type, error) {
	rangeExpr, ok := v.Iter.(*ast.RangeExpr)
	if !ok {
		return llvm.Value{}, nil, errf(CUnsupportedPattern, "`for` over a non-Range iterable is not supported by this generator")
	}
	lo, _, err := g.lowerExpr(rangeExpr.Lo)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	hi, _, err := g.lowerExpr(rangeExpr.Hi)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	idxSlot := g.builder.CreateAlloca(g.i64, "for_idx")
	g.builder.CreateStore(lo, idxSlot)

	headBB := llvm.AddBasicBlock(g.fn, "for.head")
	bodyBB := llvm.AddBasicBlock(g.fn, "for.body")
	stepBB := llvm.AddBasicBlock(g.fn, "for.step")
	exitBB := llvm.AddBasicBlock(g.fn, "for.exit")
	g.builder.CreateBr(headBB)

	g.builder.SetInsertPointAtEnd(headBB)
	cur := g.builder.CreateLoad(idxSlot, "")
	pred := llvm.IntSLT
	if rangeExpr.Inclusive {
		pred = llvm.IntSLE
	}
	cond := g.builder.CreateICmp(pred, cur, hi, "")
	g.builder.CreateCondBr(cond, bodyBB, exitBB)

	g.builder.SetInsertPointAtEnd(bodyBB)
	g.pushScope()
	if err := g.bindPattern(v.Pattern, idxSlot, types.I64); err != nil {
		g.popScope()
		return llvm.Value{}, nil, err
	}
	g.loopExits = append(g.loopExits, exitBB)
	g.loopContinue = append(g.loopContinue, stepBB)
	g.loopLabels = append(g.loopLabels, v.Label)
	_, _, err = g.lowerBlockExpr(v.Body)
	g.loopExits = g.loopExits[:len(g.loopExits)-1]
	g.loopContinue = g.loopContinue[:len(g.loopContinue)-1]
	g.loopLabels = g.loopLabels[:len(g.loopLabels)-1]
	g.popScope()
	if err != nil {
		return llvm.Value{}, nil, err
	}
	if !g.terminated {
		g.builder.CreateBr(stepBB)
	}
	g.terminated = false

	g.builder.SetInsertPointAtEnd(stepBB)
	next := g.builder.CreateAdd(g.builder.CreateLoad(idxSlot, ""), llvm.ConstInt(g.i64, 1, false), "")
	g.builder.CreateStore(next, idxSlot)
	g.builder.CreateBr(headBB)

	g.builder.SetInsertPointAtEnd(exitBB)
	return llvm.Value{}, types.Unit, nil
}

func (g *Generator) lowerReturn(v *ast.ReturnExpr) (llvm.Value, types.Type, error) {
	if v.Value == nil {
		g.builder.CreateRetVoid()
		g.terminated = true
		return llvm.Value{}, types.Unit, nil
	}
	val, _, err := g.lowerExpr(v.Value)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	g.builder.CreateRet(val)
	g.terminated = true
	return llvm.Value{}, types.Unit, nil
}

func (g *Generator) lowerBreak(v *ast.BreakExpr) (llvm.Value, types.Type, error) {
	if len(g.loopExits) == 0 {
		return llvm.Value{}, nil, errf(CUnsupportedPattern, "`break` used outside a loop")
	}
	idx := g.loopIndex(v.Label)
	if v.Value != nil {
		if _, _, err := g.lowerExpr(v.Value); err != nil {
			return llvm.Value{}, nil, err
		}
	}
	g.builder.CreateBr(g.loopExits[idx])
	g.terminated = true
	return llvm.Value{}, types.Unit, nil
}

func (g *Generator) lowerContinue(v *ast.ContinueExpr) (llvm.Value, types.Type, error) {
	if len(g.loopContinue) == 0 {
		return llvm.Value{}, nil, errf(CUnsupportedPattern, "`continue` used outside a loop")
	}
	idx := g.loopIndex(v.Label)
	g.builder.CreateBr(g.loopContinue[idx])
	g.terminated = true
	return llvm.Value{}, types.Unit, nil
}

func (g *Generator) loopIndex(label string) int {
	if label == "" {
		return len(g.loopExits) - 1
	}
	for i := len(g.loopLabels) - 1; i >= 0; i-- {
		if g.loopLabels[i] == label {
			return i
		}
	}
	return len(g.loopExits) - 1
}
