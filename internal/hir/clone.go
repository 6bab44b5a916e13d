package hir

// CloneExprs copies every expression of list.
func CloneExprs(list []*Expr) []*Expr {
	if list == nil {
		return nil
	}
	out := make([]*Expr, len(list))
	for i, e := range list {
		out[i] = CloneExpr(e)
	}
	return out
}

// CloneExpr copies e deeply, IDs included.
func CloneExpr(e *Expr) *Expr {
	if e == nil {
		return nil
	}
	c := *e
	switch d := e.Data.(type) {
	case UnaryData:
		d.Operand = CloneExpr(d.Operand)
		c.Data = d
	case BinaryData:
		d.Left, d.Right = CloneExpr(d.Left), CloneExpr(d.Right)
		c.Data = d
	case AssignData:
		d.Target, d.Value = CloneExpr(d.Target), CloneExpr(d.Value)
		c.Data = d
	case CallData:
		d.Target, d.Args = CloneExpr(d.Target), CloneExprs(d.Args)
		c.Data = d
	case FieldData:
		d.Object = CloneExpr(d.Object)
		c.Data = d
	case IndexData:
		d.Object, d.Index = CloneExpr(d.Object), CloneExpr(d.Index)
		c.Data = d
	case CastData:
		d.Value = CloneExpr(d.Value)
		c.Data = d
	case SizeofData:
		d.Value = CloneExpr(d.Value)
		c.Data = d
	case TernaryData:
		d.Cond, d.Then, d.Else = CloneExpr(d.Cond), CloneExpr(d.Then), CloneExpr(d.Else)
		c.Data = d
	case InitListData:
		items := make([]InitItem, len(d.Items))
		for i, it := range d.Items {
			it.Index, it.Value = CloneExpr(it.Index), CloneExpr(it.Value)
			items[i] = it
		}
		d.Items = items
		c.Data = d
	case AllocData:
		d.Size, d.Count, d.Ptr = CloneExpr(d.Size), CloneExpr(d.Count), CloneExpr(d.Ptr)
		c.Data = d
	}
	return &c
}
